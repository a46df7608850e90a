// Package starboard репостит популярные сообщения из каналов-источников
// в starboard-каналы и проксирует карму с репостов.
// models.go описывает настройки каналов и записи о репостах.
package starboard

import "time"

// Channel — настройка пары «источник → starboard».
type Channel struct {
	ID              int64     `db:"id"`
	GuildID         int64     `db:"guild_id"`
	SourceChannelID int64     `db:"source_channel_id"`
	TargetChannelID int64     `db:"target_channel_id"`
	Threshold       int       `db:"threshold"` // сколько реакций одного типа нужно для репоста
	CreatedAt       time.Time `db:"created_at"`
}

// Message — запись о том, что исходное сообщение было отправлено в starboard.
// Один репост может состоять из двух сообщений (основное и вложения),
// поэтому на одно исходное сообщение бывает несколько записей.
type Message struct {
	ID              int64     `db:"id"`
	GuildID         int64     `db:"guild_id"`
	AuthorID        int64     `db:"author_id"`
	SourceChannelID int64     `db:"source_channel_id"`
	SourceMessageID int64     `db:"source_message_id"`
	TargetChannelID int64     `db:"target_channel_id"`
	TargetMessageID int64     `db:"target_message_id"`
	CreatedAt       time.Time `db:"created_at"`
}

// AuthorCount — строка доски авторов.
type AuthorCount struct {
	AuthorID int64
	Count    int
}

// ChannelCount — число репостов автора в одном starboard-канале.
type ChannelCount struct {
	ChannelID int64
	Count     int
}

// messageRef — ссылка на сообщение платформы.
type messageRef struct {
	channelID int64
	messageID int64
}
