// Package platformtest содержит потокобезопасный in-memory platform.Client для тестов.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

type msgKey struct {
	channelID int64
	messageID int64
}

type reactionKey struct {
	messageID int64
	emoji     platform.Emoji
}

// Sent — отправленный пост.
type Sent struct {
	ChannelID int64
	MessageID int64
	Post      *platform.Post
}

// Client — фейковый клиент платформы.
type Client struct {
	mu        sync.Mutex
	messages  map[msgKey]*platform.Message
	reactors  map[reactionKey][]int64
	fetchErr  map[int64]error
	downloads map[string]error
	sent      []Sent
	nextID    int64

	// SendErr, если задан, возвращается из Send.
	SendErr error
	// OnFetch вызывается перед каждым FetchMessage (без блокировки).
	OnFetch func(messageID int64)

	fetches int
}

// NewClient создаёт пустой клиент. ID отправленных сообщений начинаются с 9000.
func NewClient() *Client {
	return &Client{
		messages:  make(map[msgKey]*platform.Message),
		reactors:  make(map[reactionKey][]int64),
		fetchErr:  make(map[int64]error),
		downloads: make(map[string]error),
		nextID:    9000,
	}
}

// AddMessage добавляет сообщение.
func (c *Client) AddMessage(m *platform.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[msgKey{m.ChannelID, m.ID}] = m
}

// React добавляет реакцию userID на сообщение и обновляет счётчик реакций.
func (c *Client) React(channelID, messageID, userID int64, emoji platform.Emoji) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rk := reactionKey{messageID, emoji}
	c.reactors[rk] = append(c.reactors[rk], userID)

	m, ok := c.messages[msgKey{channelID, messageID}]
	if !ok {
		return
	}
	for i := range m.Reactions {
		if m.Reactions[i].Emoji.Same(emoji) {
			m.Reactions[i].Count++
			return
		}
	}
	m.Reactions = append(m.Reactions, platform.Reaction{Emoji: emoji, Count: 1})
}

// Unreact снимает реакцию userID с сообщения.
func (c *Client) Unreact(channelID, messageID, userID int64, emoji platform.Emoji) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rk := reactionKey{messageID, emoji}
	users := c.reactors[rk]
	for i, id := range users {
		if id == userID {
			c.reactors[rk] = append(users[:i:i], users[i+1:]...)
			break
		}
	}

	m, ok := c.messages[msgKey{channelID, messageID}]
	if !ok {
		return
	}
	for i := range m.Reactions {
		if !m.Reactions[i].Emoji.Same(emoji) {
			continue
		}
		m.Reactions[i].Count--
		if m.Reactions[i].Count <= 0 {
			m.Reactions = append(m.Reactions[:i:i], m.Reactions[i+1:]...)
		}
		return
	}
}

// FailFetch заставляет FetchMessage и ReactionUsers для messageID возвращать err.
func (c *Client) FailFetch(messageID int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchErr[messageID] = err
}

// FailDownload заставляет Download для url возвращать err.
func (c *Client) FailDownload(url string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads[url] = err
}

// Sent возвращает копию списка отправленных постов.
func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Fetches возвращает число вызовов FetchMessage.
func (c *Client) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// FetchMessage реализует platform.Client.
func (c *Client) FetchMessage(_ context.Context, channelID, messageID int64) (*platform.Message, error) {
	if c.OnFetch != nil {
		c.OnFetch(messageID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++

	if err := c.fetchErr[messageID]; err != nil {
		return nil, err
	}
	m, ok := c.messages[msgKey{channelID, messageID}]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", messageID, platform.ErrNotFound)
	}
	cp := *m
	cp.Reactions = append([]platform.Reaction(nil), m.Reactions...)
	return &cp, nil
}

// ChannelMessages реализует platform.Client. Порядок не гарантируется.
func (c *Client) ChannelMessages(_ context.Context, channelID int64, limit int) ([]*platform.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*platform.Message
	for k, m := range c.messages {
		if k.channelID != channelID {
			continue
		}
		if len(out) >= limit {
			break
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// ReactionUsers реализует platform.Client.
func (c *Client) ReactionUsers(_ context.Context, _, messageID int64, emoji platform.Emoji) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fetchErr[messageID]; err != nil {
		return nil, err
	}
	return append([]int64(nil), c.reactors[reactionKey{messageID, emoji}]...), nil
}

// Send реализует platform.Client.
func (c *Client) Send(_ context.Context, channelID int64, post *platform.Post) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return 0, c.SendErr
	}
	c.nextID++
	id := c.nextID
	c.sent = append(c.sent, Sent{ChannelID: channelID, MessageID: id, Post: post})
	c.messages[msgKey{channelID, id}] = &platform.Message{ID: id, ChannelID: channelID}
	return id, nil
}

// Download реализует platform.Client: содержимым файла становится его URL.
func (c *Client) Download(_ context.Context, att platform.Attachment) (*platform.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.downloads[att.URL]; err != nil {
		return nil, err
	}
	return &platform.File{Name: att.Filename, ContentType: att.ContentType, Data: []byte(att.URL)}, nil
}

var _ platform.Client = (*Client)(nil)
