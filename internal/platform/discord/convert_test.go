package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

func TestConvertMessage(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "3",
		ChannelID: "2",
		GuildID:   "1",
		Content:   "hello",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "10", Username: "alice", GlobalName: "Alice"},
		Member:    &discordgo.Member{Nick: "ally"},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn/x.png", Filename: "x.png", ContentType: "image/png"},
		},
		Reactions: []*discordgo.MessageReactions{
			{Count: 3, Emoji: &discordgo.Emoji{Name: "⭐"}},
			{Count: 1, Emoji: &discordgo.Emoji{ID: "77", Name: "pepe"}},
			{Count: 5},
		},
	}

	out := ConvertMessage(m)
	assert.Equal(t, int64(3), out.ID)
	assert.Equal(t, int64(2), out.ChannelID)
	assert.Equal(t, int64(1), out.GuildID)
	assert.Equal(t, int64(10), out.AuthorID)
	assert.Equal(t, "ally", out.AuthorName)
	assert.Equal(t, ts, out.CreatedAt)
	require.Len(t, out.Attachments, 1)
	assert.Equal(t, "image/png", out.Attachments[0].ContentType)
	require.Len(t, out.Reactions, 2)
	assert.Equal(t, platform.Emoji{Name: "⭐"}, out.Reactions[0].Emoji)
	assert.Equal(t, platform.Emoji{ID: 77, Name: "pepe"}, out.Reactions[1].Emoji)
	assert.False(t, out.ThreadStarter)
}

func TestConvertMessage_Fallbacks(t *testing.T) {
	m := &discordgo.Message{
		ID:     "175928847299117063",
		Type:   discordgo.MessageTypeThreadStarterMessage,
		Author: &discordgo.User{ID: "10", Username: "alice"},
	}

	out := ConvertMessage(m)
	assert.Equal(t, "alice", out.AuthorName)
	assert.False(t, out.CreatedAt.IsZero())
	assert.True(t, out.ThreadStarter)
}

func TestApiEmoji(t *testing.T) {
	assert.Equal(t, "⭐", apiEmoji(platform.Emoji{Name: "⭐"}))
	assert.Equal(t, "pepe:77", apiEmoji(platform.Emoji{ID: 77, Name: "pepe"}))
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapError(plain))

	unknown := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage},
	}
	assert.ErrorIs(t, mapError(unknown), platform.ErrNotFound)

	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	assert.ErrorIs(t, mapError(notFound), platform.ErrNotFound)

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	assert.ErrorIs(t, mapError(forbidden), platform.ErrForbidden)
}

func TestFillNames(t *testing.T) {
	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{ID: "1", Name: "guild"}))
	require.NoError(t, state.ChannelAdd(&discordgo.Channel{ID: "2", GuildID: "1", Name: "general", Type: discordgo.ChannelTypeGuildText}))
	require.NoError(t, state.ChannelAdd(&discordgo.Channel{ID: "3", GuildID: "1", ParentID: "2", Name: "talk", Type: discordgo.ChannelTypeGuildPublicThread}))

	msg := &platform.Message{GuildID: 1, ChannelID: 2}
	FillNames(state, msg)
	assert.Equal(t, "guild", msg.GuildName)
	assert.Equal(t, "general", msg.ChannelName)

	thread := &platform.Message{GuildID: 1, ChannelID: 3}
	FillNames(state, thread)
	assert.Equal(t, "general: 🧵talk", thread.ChannelName)

	unknown := &platform.Message{GuildID: 9, ChannelID: 9}
	FillNames(state, unknown)
	assert.Empty(t, unknown.GuildName)
	assert.Empty(t, unknown.ChannelName)
}
