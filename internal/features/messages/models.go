// Package messages считает сообщения участников по каналам.
// models.go описывает ключи кэша и строки досок.
package messages

import (
	"time"
)

// Key — счётчик сообщений участника в канале.
type Key struct {
	GuildID   int64
	ChannelID int64
	UserID    int64
}

// Counter — аккумулятор кэша.
type Counter int

const (
	Sent    Counter = iota // отправленные сообщения
	Deleted                // удалённые сообщения
)

// sign — знак, с которым дельта аккумулятора попадает в count.
func (c Counter) sign() int64 {
	if c == Deleted {
		return -1
	}
	return 1
}

// String реализует fmt.Stringer.
func (c Counter) String() string {
	if c == Deleted {
		return "deleted"
	}
	return "sent"
}

// Meta — отображаемые данные строки. Пишутся вместе со счётчиком.
type Meta struct {
	GuildName   string
	ChannelName string
	UserName    string
	Webhook     bool
	LastMsgAt   time.Time
}

// merge обновляет метаданные более свежими: непустые имена заменяют старые,
// время последнего сообщения только растёт.
func (m *Meta) merge(o Meta) {
	if o.GuildName != "" {
		m.GuildName = o.GuildName
	}
	if o.ChannelName != "" {
		m.ChannelName = o.ChannelName
	}
	if o.UserName != "" {
		m.UserName = o.UserName
	}
	m.Webhook = m.Webhook || o.Webhook
	if o.LastMsgAt.After(m.LastMsgAt) {
		m.LastMsgAt = o.LastMsgAt
	}
}

// Filter — условия выборки для досок.
type Filter struct {
	ChannelID      int64 // только этот канал (0 — все)
	UserID         int64 // только этот участник (0 — все)
	Webhooks       bool  // включать сообщения вебхуков
	IncludeIgnored bool  // не применять список игнорируемых
}

// UserCount — строка доски участников.
type UserCount struct {
	UserID    int64
	UserName  string
	Total     int64
	LastMsgAt time.Time
	Rank      int
}

// ChannelCount — строка доски каналов.
type ChannelCount struct {
	ChannelID   int64
	ChannelName string
	Total       int64
	LastMsgAt   time.Time
	Rank        int
}

// Config — каналы и участники, скрытые с досок сервера.
type Config struct {
	GuildID         int64
	IgnoredChannels []int64
	IgnoredMembers  []int64
}
