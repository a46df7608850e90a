package discord

import (
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// ConvertReactionAdd переводит событие шлюза в platform.ReactionEvent.
func ConvertReactionAdd(ev *discordgo.MessageReactionAdd) platform.ReactionEvent {
	return convertReaction(ev.MessageReaction)
}

// ConvertReactionRemove переводит событие шлюза в platform.ReactionEvent.
func ConvertReactionRemove(ev *discordgo.MessageReactionRemove) platform.ReactionEvent {
	return convertReaction(ev.MessageReaction)
}

func convertReaction(r *discordgo.MessageReaction) platform.ReactionEvent {
	return platform.ReactionEvent{
		GuildID:   common.ParseID(r.GuildID),
		ChannelID: common.ParseID(r.ChannelID),
		MessageID: common.ParseID(r.MessageID),
		UserID:    common.ParseID(r.UserID),
		Emoji:     convertEmoji(&r.Emoji),
	}
}

// ConvertMessage переводит сообщение discordgo в platform.Message.
func ConvertMessage(m *discordgo.Message) *platform.Message {
	return convertMessage(m)
}

func convertMessage(m *discordgo.Message) *platform.Message {
	out := &platform.Message{
		ID:            common.ParseID(m.ID),
		ChannelID:     common.ParseID(m.ChannelID),
		GuildID:       common.ParseID(m.GuildID),
		WebhookID:     common.ParseID(m.WebhookID),
		Content:       m.Content,
		CreatedAt:     m.Timestamp,
		ThreadStarter: m.Type == discordgo.MessageTypeThreadStarterMessage,
	}
	if out.CreatedAt.IsZero() && out.ID != 0 {
		out.CreatedAt = common.SnowflakeTime(out.ID)
	}

	if m.Author != nil {
		out.AuthorID = common.ParseID(m.Author.ID)
		out.AuthorName = displayName(m)
		out.AuthorAvatarURL = m.Author.AvatarURL("")
		out.AuthorBot = m.Author.Bot
	}

	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, platform.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}
	for _, r := range m.Reactions {
		if r.Emoji == nil {
			continue
		}
		out.Reactions = append(out.Reactions, platform.Reaction{
			Emoji: convertEmoji(r.Emoji),
			Count: r.Count,
		})
	}
	return out
}

// displayName: ник на сервере, затем глобальное имя, затем username.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func convertEmoji(e *discordgo.Emoji) platform.Emoji {
	return platform.Emoji{
		ID:   common.ParseID(e.ID),
		Name: e.Name,
	}
}

// apiEmoji — формат эмодзи для URL реакций: "name:id" или сам символ.
func apiEmoji(e platform.Emoji) string {
	if e.ID == 0 {
		return e.Name
	}
	return e.Name + ":" + strconv.FormatInt(e.ID, 10)
}

func convertEmbed(e *platform.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title: e.Title,
		Color: e.Color,
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	if e.AuthorName != "" {
		out.Author = &discordgo.MessageEmbedAuthor{
			Name:    e.AuthorName,
			IconURL: e.AuthorIconURL,
		}
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:  f.Name,
			Value: f.Value,
		})
	}
	return out
}

// FillNames дописывает в сообщение имена сервера и канала из кэша состояния.
// Для тредов имя канала имеет вид "родитель: 🧵тред".
func FillNames(state *discordgo.State, m *platform.Message) {
	if state == nil {
		return
	}
	if g, err := state.Guild(common.FormatID(m.GuildID)); err == nil {
		m.GuildName = g.Name
	}
	ch, err := state.Channel(common.FormatID(m.ChannelID))
	if err != nil {
		return
	}
	m.ChannelName = ch.Name
	if !isThread(ch) {
		return
	}
	if parent, err := state.Channel(ch.ParentID); err == nil {
		m.ChannelName = parent.Name + ": 🧵" + ch.Name
	}
}

func isThread(ch *discordgo.Channel) bool {
	switch ch.Type {
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return true
	}
	return false
}
