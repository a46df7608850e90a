// Package karma — handlers.go обрабатывает реакции, не забранные starboard.
package karma

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// Handler обрабатывает события кармы.
type Handler struct {
	service *Service
	client  platform.Client
}

// NewHandler создаёт обработчик кармы.
func NewHandler(service *Service, client platform.Client) *Handler {
	return &Handler{service: service, client: client}
}

// HandleReaction учитывает обычную реакцию: added=true для добавления, false для снятия.
func (h *Handler) HandleReaction(ctx context.Context, ev platform.ReactionEvent, added bool) {
	if ev.GuildID == 0 {
		return
	}

	value := h.service.EmojiValue(ctx, ev.GuildID, ev.Emoji)
	if value == 0 {
		return
	}
	if h.service.IsIgnored(ctx, ev.GuildID, ev.ChannelID) {
		return
	}

	authorID := ev.AuthorID
	if authorID == 0 {
		msg, err := h.client.FetchMessage(ctx, ev.ChannelID, ev.MessageID)
		if err != nil {
			entry := log.WithError(err).WithFields(log.Fields{
				"channel_id": ev.ChannelID,
				"message_id": ev.MessageID,
			})
			if errors.Is(err, platform.ErrNotFound) {
				entry.Debug("Сообщение для кармы не найдено")
			} else {
				entry.Warn("Не удалось получить сообщение для кармы")
			}
			return
		}
		if msg.AuthorBot {
			return
		}
		authorID = msg.AuthorID
	}

	if added {
		h.service.ReactionAdded(ev.GuildID, authorID, ev.UserID, value)
	} else {
		h.service.ReactionRemoved(ev.GuildID, authorID, ev.UserID, value)
	}
}
