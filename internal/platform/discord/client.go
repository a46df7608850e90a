// Package discord реализует platform.Client поверх discordgo.
//
// Все REST-вызовы идут через circuit breaker: если Discord отвечает ошибками
// подряд, запросы какое-то время не отправляются вовсе и сразу считаются
// неудачными (для starboard это равнозначно «сообщение не получено»).
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/metrics"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// reactionsPageSize — максимум пользователей за один запрос реакций.
const reactionsPageSize = 100

// maxDownloadSize — вложения больше этого размера не скачиваются.
const maxDownloadSize = 25 << 20

// Client — адаптер discordgo-сессии к platform.Client.
type Client struct {
	session *discordgo.Session
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[any]
}

// NewClient создаёт клиент. Circuit breaker размыкается после 5 ошибок подряд
// и пробует снова через 30 секунд.
func NewClient(session *discordgo.Session) *Client {
	c := &Client{
		session: session,
		http:    session.Client,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}

	c.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "discord-rest",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Удалённое сообщение или закрытый канал — нормальный ответ API.
			return err == nil ||
				errors.Is(err, platform.ErrNotFound) ||
				errors.Is(err, platform.ErrForbidden)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker сменил состояние")
		},
	})
	return c
}

// execute выполняет fn через circuit breaker и считает ошибки в метриках.
func execute[T any](c *Client, op string, fn func() (T, error)) (T, error) {
	res, err := c.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, mapError(err)
	})
	if err != nil {
		metrics.PlatformErrors.WithLabelValues(op).Inc()
		var zero T
		return zero, fmt.Errorf("discord %s: %w", op, err)
	}
	return res.(T), nil
}

// mapError переводит REST-ошибки Discord в ошибки platform.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", platform.ErrForbidden, err)
		}
	}
	return err
}

// FetchMessage возвращает сообщение с актуальными реакциями.
// Всегда идёт в REST: кэш состояния не обновляет счётчики реакций.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID int64) (*platform.Message, error) {
	chID, msgID := common.FormatID(channelID), common.FormatID(messageID)

	m, err := execute(c, "fetch_message", func() (*discordgo.Message, error) {
		return c.session.ChannelMessage(chID, msgID, discordgo.WithContext(ctx))
	})
	if err != nil {
		return nil, err
	}
	return convertMessage(m), nil
}

// ChannelMessages возвращает до limit последних сообщений канала.
func (c *Client) ChannelMessages(ctx context.Context, channelID int64, limit int) ([]*platform.Message, error) {
	chID := common.FormatID(channelID)

	var (
		out      []*platform.Message
		beforeID string
	)
	for len(out) < limit {
		page := limit - len(out)
		if page > 100 {
			page = 100
		}
		msgs, err := execute(c, "channel_messages", func() ([]*discordgo.Message, error) {
			return c.session.ChannelMessages(chID, page, beforeID, "", "", discordgo.WithContext(ctx))
		})
		if err != nil {
			return out, err
		}
		for _, m := range msgs {
			out = append(out, convertMessage(m))
		}
		if len(msgs) < page {
			break
		}
		beforeID = msgs[len(msgs)-1].ID
	}
	return out, nil
}

// ReactionUsers возвращает всех пользователей, поставивших emoji, постранично.
func (c *Client) ReactionUsers(ctx context.Context, channelID, messageID int64, emoji platform.Emoji) ([]int64, error) {
	chID, msgID := common.FormatID(channelID), common.FormatID(messageID)
	apiName := apiEmoji(emoji)

	var (
		ids     []int64
		afterID string
	)
	for {
		users, err := execute(c, "reaction_users", func() ([]*discordgo.User, error) {
			return c.session.MessageReactions(chID, msgID, apiName, reactionsPageSize, "", afterID, discordgo.WithContext(ctx))
		})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			ids = append(ids, common.ParseID(u.ID))
		}
		if len(users) < reactionsPageSize {
			return ids, nil
		}
		afterID = users[len(users)-1].ID
	}
}

// Send отправляет пост в канал.
func (c *Client) Send(ctx context.Context, channelID int64, post *platform.Post) (int64, error) {
	data := &discordgo.MessageSend{
		Content: post.Content,
	}
	if post.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{convertEmbed(post.Embed)}
	}
	for _, f := range post.Files {
		data.Files = append(data.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}

	m, err := execute(c, "send", func() (*discordgo.Message, error) {
		return c.session.ChannelMessageSendComplex(common.FormatID(channelID), data, discordgo.WithContext(ctx))
	})
	if err != nil {
		return 0, err
	}
	return common.ParseID(m.ID), nil
}

// Download скачивает вложение через HTTP-клиент сессии.
func (c *Client) Download(ctx context.Context, att platform.Attachment) (*platform.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.PlatformErrors.WithLabelValues("download").Inc()
		return nil, fmt.Errorf("ошибка скачивания %s: %w", att.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.PlatformErrors.WithLabelValues("download").Inc()
		return nil, fmt.Errorf("ошибка скачивания %s: статус %d", att.Filename, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", att.Filename, err)
	}
	if len(data) > maxDownloadSize {
		return nil, fmt.Errorf("вложение %s слишком большое", att.Filename)
	}

	return &platform.File{
		Name:        att.Filename,
		ContentType: att.ContentType,
		Data:        data,
	}, nil
}

var _ platform.Client = (*Client)(nil)
