package filters

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestAllowMessage(t *testing.T) {
	f := NewEventFilter()

	assert.False(t, f.AllowMessage(nil))
	assert.False(t, f.AllowMessage(&discordgo.Message{GuildID: "1"}))
	assert.False(t, f.AllowMessage(&discordgo.Message{Author: &discordgo.User{ID: "10"}}))
	assert.True(t, f.AllowMessage(&discordgo.Message{GuildID: "1", Author: &discordgo.User{ID: "10"}}))
}

func TestAllowReaction(t *testing.T) {
	f := NewEventFilter()
	f.SetSelf("99")

	assert.False(t, f.AllowReaction(nil, nil))
	assert.False(t, f.AllowReaction(&discordgo.MessageReaction{UserID: "10"}, nil))
	assert.False(t, f.AllowReaction(&discordgo.MessageReaction{GuildID: "1", UserID: "99"}, nil))

	bot := &discordgo.Member{User: &discordgo.User{ID: "20", Bot: true}}
	assert.False(t, f.AllowReaction(&discordgo.MessageReaction{GuildID: "1", UserID: "20"}, bot))

	human := &discordgo.Member{User: &discordgo.User{ID: "10"}}
	assert.True(t, f.AllowReaction(&discordgo.MessageReaction{GuildID: "1", UserID: "10"}, human))
	assert.True(t, f.AllowReaction(&discordgo.MessageReaction{GuildID: "1", UserID: "10"}, nil))
}
