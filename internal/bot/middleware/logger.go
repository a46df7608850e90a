// Package middleware содержит промежуточные обработчики событий:
// логирование и восстановление после паники.
package middleware

import (
	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// LogMessage логирует входящее сообщение.
// Записывает: guild_id, channel_id, user_id, имя автора, текст (первые 50 символов).
func LogMessage(msg *platform.Message) {
	if msg == nil {
		return
	}

	text := []rune(msg.Content)
	if len(text) > 50 {
		text = append(text[:50], []rune("...")...)
	}

	log.WithFields(log.Fields{
		"guild_id":   msg.GuildID,
		"channel_id": msg.ChannelID,
		"user_id":    msg.AuthorID,
		"username":   msg.AuthorName,
		"text":       string(text),
	}).Debug("Входящее сообщение")
}

// LogReaction логирует добавление или снятие реакции.
func LogReaction(ev platform.ReactionEvent, added bool) {
	action := "remove"
	if added {
		action = "add"
	}
	log.WithFields(log.Fields{
		"guild_id":   ev.GuildID,
		"channel_id": ev.ChannelID,
		"message_id": ev.MessageID,
		"user_id":    ev.UserID,
		"emoji":      ev.Emoji.String(),
		"action":     action,
	}).Debug("Реакция")
}
