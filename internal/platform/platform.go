// Package platform описывает модель чат-платформы, с которой работает бот:
// сообщения, реакции, посты и клиент для REST-запросов.
//
// Фичи (karma, starboard, messages, points) зависят только от этого пакета,
// а конкретная реализация (Discord) живёт в platform/discord.
package platform

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotFound — сообщение или канал удалены.
	ErrNotFound = errors.New("объект не найден на платформе")
	// ErrForbidden — у бота нет доступа.
	ErrForbidden = errors.New("нет доступа к объекту на платформе")
)

// Emoji — эмодзи реакции. У кастомных эмодзи ID != 0,
// у юникодных ID == 0 и Name содержит сам символ.
type Emoji struct {
	ID   int64
	Name string
}

// IsCustom возвращает true для кастомного эмодзи сервера.
func (e Emoji) IsCustom() bool {
	return e.ID != 0
}

// Same сравнивает эмодзи: кастомные по ID, юникодные по строке.
func (e Emoji) Same(o Emoji) bool {
	if e.ID != 0 || o.ID != 0 {
		return e.ID == o.ID
	}
	return e.Name == o.Name
}

// String возвращает эмодзи в виде, пригодном для текста сообщения.
func (e Emoji) String() string {
	if e.ID == 0 {
		return e.Name
	}
	return "<:" + e.Name + ":" + strconv.FormatInt(e.ID, 10) + ">"
}

// Reaction — один тип реакции на сообщении и число поставивших её.
type Reaction struct {
	Emoji Emoji
	Count int
}

// Attachment — вложение сообщения.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// Message — сообщение, как его видят фичи.
type Message struct {
	ID        int64
	ChannelID int64
	GuildID   int64

	// Имена из кэша состояния шлюза. Могут быть пустыми.
	GuildName   string
	ChannelName string

	AuthorID        int64
	AuthorName      string
	AuthorAvatarURL string
	AuthorBot       bool
	WebhookID       int64

	Content     string
	CreatedAt   time.Time
	Attachments []Attachment
	Reactions   []Reaction

	// ThreadStarter — служебное сообщение о создании треда.
	ThreadStarter bool
}

// ReactionEvent — событие добавления или снятия реакции.
type ReactionEvent struct {
	GuildID   int64
	ChannelID int64
	MessageID int64
	UserID    int64
	Emoji     Emoji

	// AuthorID известен только для добавления реакции, иначе 0.
	AuthorID int64
}

// File — загруженный файл для отправки.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// EmbedField — поле embed-блока.
type EmbedField struct {
	Name  string
	Value string
}

// Embed — карточка сообщения.
type Embed struct {
	Title         string
	Color         int
	Timestamp     time.Time
	AuthorName    string
	AuthorIconURL string
	ImageURL      string
	Fields        []EmbedField
}

// Post — исходящее сообщение.
type Post struct {
	Content string
	Embed   *Embed
	Files   []*File
}

// Client — REST-доступ к платформе.
type Client interface {
	// FetchMessage возвращает сообщение с реакциями. ErrNotFound, если удалено.
	FetchMessage(ctx context.Context, channelID, messageID int64) (*Message, error)
	// ChannelMessages возвращает до limit последних сообщений канала, от новых к старым.
	ChannelMessages(ctx context.Context, channelID int64, limit int) ([]*Message, error)
	// ReactionUsers возвращает ID всех пользователей, поставивших emoji.
	ReactionUsers(ctx context.Context, channelID, messageID int64, emoji Emoji) ([]int64, error)
	// Send отправляет пост и возвращает ID созданного сообщения.
	Send(ctx context.Context, channelID int64, post *Post) (int64, error)
	// Download скачивает вложение.
	Download(ctx context.Context, att Attachment) (*File, error)
}
