package starboard

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/strawberry-py/strawberry-boards/internal/metrics"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// relatedFetchLimit — сколько связанных сообщений запрашиваем параллельно.
const relatedFetchLimit = 4

var errDuplicate = errors.New("реакция уже стоит на связанном сообщении")

// Store — хранилище starboard. Реализуется Repository.
type Store interface {
	AllChannels(ctx context.Context) ([]*Channel, error)
	Channels(ctx context.Context, guildID int64) ([]*Channel, error)
	GetChannel(ctx context.Context, guildID, sourceChannelID int64) (*Channel, error)
	AddChannel(ctx context.Context, c *Channel) error
	RemoveChannel(ctx context.Context, guildID, sourceChannelID int64) error

	BySource(ctx context.Context, guildID, sourceMessageID int64) ([]*Message, error)
	ByTarget(ctx context.Context, guildID, targetMessageID int64) ([]*Message, error)
	AddMessage(ctx context.Context, m *Message) error

	AuthorCounts(ctx context.Context, guildID, targetChannelID int64) ([]AuthorCount, error)
	AuthorStats(ctx context.Context, guildID, authorID int64) ([]ChannelCount, error)
	AuthorTotal(ctx context.Context, guildID, authorID int64) (int, error)
}

// Karma — то, что starboard использует из кармы. Реализуется karma.Service.
type Karma interface {
	EmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji) int
	IsIgnored(ctx context.Context, guildID, channelID int64) bool
	ReactionAdded(guildID, authorID, reactorID int64, value int)
	ReactionRemoved(guildID, authorID, reactorID int64, value int)
}

// Engine решает судьбу каждой реакции в каналах starboard:
// репост по достижении порога или перенос кармы с репостов.
type Engine struct {
	store    Store
	client   platform.Client
	karma    Karma // nil, если карма выключена
	channels *ChannelSet

	mu         sync.Mutex
	processing map[int64]struct{} // сообщения, которые сейчас проверяются на репост
}

// NewEngine создаёт движок. karma может быть nil.
func NewEngine(store Store, client platform.Client, karma Karma, channels *ChannelSet) *Engine {
	return &Engine{
		store:      store,
		client:     client,
		karma:      karma,
		channels:   channels,
		processing: make(map[int64]struct{}),
	}
}

// OnReactionAdd обрабатывает добавление реакции.
// Возвращает true, если событие забрал starboard и обычная карма его считать не должна.
func (e *Engine) OnReactionAdd(ctx context.Context, ev platform.ReactionEvent) bool {
	return e.route(ctx, ev, true)
}

// OnReactionRemove обрабатывает снятие реакции. Возвращаемое значение как у OnReactionAdd.
func (e *Engine) OnReactionRemove(ctx context.Context, ev platform.ReactionEvent) bool {
	return e.route(ctx, ev, false)
}

func (e *Engine) route(ctx context.Context, ev platform.ReactionEvent, added bool) bool {
	entry := log.WithFields(log.Fields{
		"component":  "starboard",
		"guild_id":   ev.GuildID,
		"channel_id": ev.ChannelID,
		"message_id": ev.MessageID,
	})

	switch {
	case e.channels.IsTarget(ev.ChannelID):
		records, err := e.store.ByTarget(ctx, ev.GuildID, ev.MessageID)
		if err != nil {
			entry.WithError(err).Error("Ошибка поиска репоста")
			return true
		}
		if len(records) == 0 {
			return false
		}
		e.relay(ctx, ev, records[0], added)
		return true

	case e.channels.IsSource(ev.ChannelID):
		records, err := e.store.BySource(ctx, ev.GuildID, ev.MessageID)
		if err != nil {
			entry.WithError(err).Error("Ошибка поиска репоста")
			return true
		}
		if len(records) > 0 {
			e.relay(ctx, ev, records[0], added)
			return true
		}
		if added {
			e.processReaction(ctx, ev.GuildID, ev.ChannelID, ev.MessageID)
		}
		return false
	}
	return false
}

// tryBegin атомарно помечает сообщение как обрабатываемое.
// false — его уже обрабатывает другое событие.
func (e *Engine) tryBegin(messageID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.processing[messageID]; busy {
		return false
	}
	e.processing[messageID] = struct{}{}
	return true
}

func (e *Engine) end(messageID int64) {
	e.mu.Lock()
	delete(e.processing, messageID)
	e.mu.Unlock()
}

// processReaction проверяет, набрало ли сообщение порог, и репостит его один раз.
func (e *Engine) processReaction(ctx context.Context, guildID, channelID, messageID int64) {
	if !e.tryBegin(messageID) {
		return
	}
	defer e.end(messageID)

	entry := log.WithFields(log.Fields{
		"component":  "starboard",
		"guild_id":   guildID,
		"channel_id": channelID,
		"message_id": messageID,
	})

	// Другое событие могло успеть сделать репост до того, как мы пометили сообщение.
	records, err := e.store.BySource(ctx, guildID, messageID)
	if err != nil {
		entry.WithError(err).Error("Ошибка поиска репоста")
		return
	}
	if len(records) > 0 {
		return
	}

	msg, err := e.client.FetchMessage(ctx, channelID, messageID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) || errors.Is(err, platform.ErrForbidden) {
			entry.WithError(err).Debug("Сообщение недоступно")
		} else {
			entry.WithError(err).Warn("Не удалось получить сообщение")
		}
		return
	}
	if msg.GuildID == 0 {
		msg.GuildID = guildID
	}

	cfg, err := e.store.GetChannel(ctx, guildID, channelID)
	if err != nil {
		entry.WithError(err).Error("Ошибка чтения настройки канала")
		return
	}

	for _, r := range msg.Reactions {
		if r.Count < cfg.Threshold {
			continue
		}
		if e.karma != nil && e.karma.EmojiValue(ctx, guildID, r.Emoji) < 1 {
			continue
		}

		if e.repost(ctx, cfg, msg) {
			entry.WithFields(log.Fields{
				"threshold": cfg.Threshold,
				"target_id": cfg.TargetChannelID,
			}).Info("Сообщение набрало порог и отправлено в starboard")
		}
		return
	}
}

// repost отправляет сообщение в starboard и сохраняет записи о каждом отправленном посте.
func (e *Engine) repost(ctx context.Context, cfg *Channel, msg *platform.Message) bool {
	entry := log.WithFields(log.Fields{
		"component":  "starboard",
		"message_id": msg.ID,
		"target_id":  cfg.TargetChannelID,
	})

	primary, secondary := buildPosts(ctx, e.client, msg)

	primaryID, err := e.client.Send(ctx, cfg.TargetChannelID, primary)
	if err != nil {
		metrics.StarboardReposts.WithLabelValues("failed").Inc()
		entry.WithError(err).Error("Не удалось отправить репост")
		return false
	}
	sent := []int64{primaryID}

	if secondary != nil {
		id, err := e.client.Send(ctx, cfg.TargetChannelID, secondary)
		if err != nil {
			entry.WithError(err).Error("Не удалось отправить вложения репоста")
		} else {
			sent = append(sent, id)
		}
	}

	for _, id := range sent {
		rec := &Message{
			GuildID:         msg.GuildID,
			AuthorID:        msg.AuthorID,
			SourceChannelID: msg.ChannelID,
			SourceMessageID: msg.ID,
			TargetChannelID: cfg.TargetChannelID,
			TargetMessageID: id,
		}
		if err := e.store.AddMessage(ctx, rec); err != nil {
			entry.WithError(err).WithField("target_message_id", id).Error("Не удалось сохранить запись о репосте")
		}
	}

	metrics.StarboardReposts.WithLabelValues("sent").Inc()
	return true
}

// relay переносит реакцию на репостнутое сообщение в карму автора,
// если такая же реакция этого же пользователя ещё не стоит на связанном сообщении.
// В каналах с отключённой кармой реакции не переносятся, как и до репоста.
func (e *Engine) relay(ctx context.Context, ev platform.ReactionEvent, rec *Message, added bool) {
	if e.karma == nil {
		return
	}
	if e.karma.IsIgnored(ctx, ev.GuildID, ev.ChannelID) {
		metrics.KarmaRelays.WithLabelValues("ignored").Inc()
		return
	}
	if rec.AuthorID == ev.UserID {
		metrics.KarmaRelays.WithLabelValues("self").Inc()
		return
	}

	value := e.karma.EmojiValue(ctx, ev.GuildID, ev.Emoji)
	if value == 0 {
		metrics.KarmaRelays.WithLabelValues("no_value").Inc()
		return
	}

	if e.isDuplicate(ctx, ev, rec) {
		metrics.KarmaRelays.WithLabelValues("duplicate").Inc()
		return
	}

	if added {
		e.karma.ReactionAdded(ev.GuildID, rec.AuthorID, ev.UserID, value)
	} else {
		e.karma.ReactionRemoved(ev.GuildID, rec.AuthorID, ev.UserID, value)
	}
	metrics.KarmaRelays.WithLabelValues("relayed").Inc()
}

// related возвращает исходное сообщение и все его репосты, кроме exclude.
func (e *Engine) related(ctx context.Context, rec *Message, exclude int64) ([]messageRef, error) {
	records, err := e.store.BySource(ctx, rec.GuildID, rec.SourceMessageID)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{exclude: true}
	var refs []messageRef
	add := func(channelID, messageID int64) {
		if seen[messageID] {
			return
		}
		seen[messageID] = true
		refs = append(refs, messageRef{channelID: channelID, messageID: messageID})
	}

	add(rec.SourceChannelID, rec.SourceMessageID)
	for _, r := range records {
		add(r.TargetChannelID, r.TargetMessageID)
	}
	return refs, nil
}

// isDuplicate проверяет, поставил ли тот же пользователь ту же реакцию
// на другое сообщение из группы. Сообщения, которые не удалось получить,
// в проверке не участвуют.
func (e *Engine) isDuplicate(ctx context.Context, ev platform.ReactionEvent, rec *Message) bool {
	entry := log.WithFields(log.Fields{
		"component":         "starboard",
		"source_message_id": rec.SourceMessageID,
	})

	refs, err := e.related(ctx, rec, ev.MessageID)
	if err != nil {
		entry.WithError(err).Error("Ошибка поиска связанных сообщений")
		return false
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(relatedFetchLimit)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			msg, err := e.client.FetchMessage(gctx, ref.channelID, ref.messageID)
			if err != nil {
				if gctx.Err() == nil {
					entry.WithError(err).WithField("message_id", ref.messageID).
						Warn("Не удалось получить связанное сообщение для проверки дубликата")
				}
				return nil
			}
			if !hasReaction(msg, ev.Emoji) {
				return nil
			}

			users, err := e.client.ReactionUsers(gctx, ref.channelID, ref.messageID, ev.Emoji)
			if err != nil {
				if gctx.Err() == nil {
					entry.WithError(err).WithField("message_id", ref.messageID).
						Warn("Не удалось получить список реакций")
				}
				return nil
			}
			for _, id := range users {
				if id == ev.UserID {
					return errDuplicate
				}
			}
			return nil
		})
	}
	return errors.Is(g.Wait(), errDuplicate)
}

func hasReaction(msg *platform.Message, emoji platform.Emoji) bool {
	for _, r := range msg.Reactions {
		if r.Emoji.Same(emoji) {
			return true
		}
	}
	return false
}
