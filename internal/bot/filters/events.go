// Package filters отсеивает события шлюза, которые фичи не обрабатывают.
package filters

import (
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/common"
)

// EventFilter пропускает только события серверов и не пропускает
// реакции самого бота и других ботов.
type EventFilter struct {
	selfID atomic.Int64
}

// NewEventFilter создаёт фильтр. ID бота задаётся через SetSelf после Ready.
func NewEventFilter() *EventFilter {
	return &EventFilter{}
}

// SetSelf запоминает ID бота.
func (f *EventFilter) SetSelf(userID string) {
	f.selfID.Store(common.ParseID(userID))
}

// AllowMessage пропускает сообщения с автором, отправленные на сервере.
func (f *EventFilter) AllowMessage(m *discordgo.Message) bool {
	if m == nil {
		return false
	}
	if m.Author == nil {
		log.WithFields(log.Fields{
			"component":  "EventFilter",
			"channel_id": m.ChannelID,
			"message_id": m.ID,
		}).Debug("deny: message without author")
		return false
	}
	// личные сообщения
	return m.GuildID != ""
}

// AllowReaction пропускает реакции на сервере, поставленные не ботами.
// member известен только для добавления реакции.
func (f *EventFilter) AllowReaction(r *discordgo.MessageReaction, member *discordgo.Member) bool {
	if r == nil || r.GuildID == "" {
		return false
	}
	if self := f.selfID.Load(); self != 0 && common.ParseID(r.UserID) == self {
		return false
	}
	if member != nil && member.User != nil && member.User.Bot {
		log.WithFields(log.Fields{
			"component":  "EventFilter",
			"user_id":    r.UserID,
			"message_id": r.MessageID,
		}).Debug("deny: reaction from bot")
		return false
	}
	return true
}
