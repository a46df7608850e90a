package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const restMessage = `{
	"id": "3",
	"channel_id": "2",
	"guild_id": "1",
	"content": "hi",
	"timestamp": "2024-05-01T12:00:00Z",
	"author": {"id": "10", "username": "alice"},
	"reactions": [{"count": 5, "emoji": {"name": "⭐"}}]
}`

func TestFetchMessage_ReactionsComeFromREST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(restMessage))
	}))
	defer srv.Close()

	orig := discordgo.EndpointChannelMessage
	discordgo.EndpointChannelMessage = func(cID, mID string) string {
		return srv.URL + "/channels/" + cID + "/messages/" + mID
	}
	t.Cleanup(func() { discordgo.EndpointChannelMessage = orig })

	session, err := discordgo.New("Bot test")
	require.NoError(t, err)
	session.Client = srv.Client()

	// в кэше состояния устаревший счётчик
	session.State.MaxMessageCount = 10
	require.NoError(t, session.State.GuildAdd(&discordgo.Guild{ID: "1"}))
	require.NoError(t, session.State.ChannelAdd(&discordgo.Channel{ID: "2", GuildID: "1", Type: discordgo.ChannelTypeGuildText}))
	require.NoError(t, session.State.MessageAdd(&discordgo.Message{
		ID:        "3",
		ChannelID: "2",
		GuildID:   "1",
		Author:    &discordgo.User{ID: "10"},
		Reactions: []*discordgo.MessageReactions{{Count: 1, Emoji: &discordgo.Emoji{Name: "⭐"}}},
	}))

	msg, err := NewClient(session).FetchMessage(context.Background(), 2, 3)
	require.NoError(t, err)
	require.Len(t, msg.Reactions, 1)
	assert.Equal(t, 5, msg.Reactions[0].Count)
}
