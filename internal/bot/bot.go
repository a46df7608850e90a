// Package bot содержит главный модуль бота — подключение к шлюзу,
// маршрутизацию событий по фичам и остановку.
package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/bot/filters"
	"github.com/strawberry-py/strawberry-boards/internal/bot/middleware"
	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/config"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
	"github.com/strawberry-py/strawberry-boards/internal/platform/discord"
)

// Intents — события шлюза, которые нужны фичам.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

// ReactionRouter забирает реакции на репосты и сообщения источников (starboard).
type ReactionRouter interface {
	OnReactionAdd(ctx context.Context, ev platform.ReactionEvent) bool
	OnReactionRemove(ctx context.Context, ev platform.ReactionEvent) bool
}

// ReactionHandler учитывает реакции, которые не забрал ReactionRouter (карма).
type ReactionHandler interface {
	HandleReaction(ctx context.Context, ev platform.ReactionEvent, added bool)
}

// MessageCounter считает сообщения.
type MessageCounter interface {
	OnMessage(msg *platform.Message)
	OnMessageDelete(msg *platform.Message)
	OnBulkDelete(msgs []*platform.Message)
}

// PointsAwarder начисляет очки активности.
type PointsAwarder interface {
	OnMessage(guildID, userID int64)
	OnReaction(guildID, userID int64)
}

// Handlers — включённые фичи. Выключенная фича — nil.
type Handlers struct {
	Starboard ReactionRouter
	Karma     ReactionHandler
	Messages  MessageCounter
	Points    PointsAwarder
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	session *discordgo.Session
	cfg     *config.Config
	filter  *filters.EventFilter
	recent  *RecentMessages
	h       Handlers

	ctx context.Context

	// ограничитель параллелизма обработки событий
	inflight chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	session *discordgo.Session,
	cfg *config.Config,
	filter *filters.EventFilter,
	recent *RecentMessages,
	h Handlers,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		session:  session,
		cfg:      cfg,
		filter:   filter,
		recent:   recent,
		h:        h,
		ctx:      context.Background(),
		inflight: make(chan struct{}, maxInFlight),
	}
}

// Start подключается к шлюзу и обрабатывает события до отмены ctx.
// После отмены закрывает соединение и дожидается обработчиков в полёте.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onReactionAdd)
	b.session.AddHandler(b.onReactionRemove)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onMessageDeleteBulk)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("ошибка подключения к шлюзу: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"starboard":    b.h.Starboard != nil,
		"karma":        b.h.Karma != nil,
		"messages":     b.h.Messages != nil,
		"points":       b.h.Points != nil,
	}).Info("Бот запущен и ожидает события...")

	<-ctx.Done()
	log.Info("Бот останавливается (ctx done)...")

	if err := b.session.Close(); err != nil {
		log.WithError(err).Warn("Ошибка закрытия соединения со шлюзом")
	}
	b.wait()
	log.Info("Обработчики событий завершены")
	return nil
}

// dispatch запускает обработчик события в отдельной горутине,
// соблюдая лимит параллелизма.
func (b *Bot) dispatch(event string, fn func(ctx context.Context)) {
	select {
	case b.inflight <- struct{}{}:
	case <-b.ctx.Done():
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.inflight
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer func() { <-b.inflight }()
		defer middleware.RecoverFromPanic(event)
		fn(b.ctx)
	}()
}

// wait запрещает новые обработчики и дожидается запущенных.
func (b *Bot) wait() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	b.filter.SetSelf(r.User.ID)
	log.WithFields(log.Fields{
		"user":   r.User.Username,
		"guilds": len(r.Guilds),
	}).Info("Авторизован")
}

func (b *Bot) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if !b.filter.AllowReaction(r.MessageReaction, r.Member) {
		return
	}
	ev := discord.ConvertReactionAdd(r)
	b.dispatch("reaction_add", func(ctx context.Context) {
		b.handleReaction(ctx, ev, true)
	})
}

func (b *Bot) onReactionRemove(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if !b.filter.AllowReaction(r.MessageReaction, nil) {
		return
	}
	ev := discord.ConvertReactionRemove(r)
	b.dispatch("reaction_remove", func(ctx context.Context) {
		b.handleReaction(ctx, ev, false)
	})
}

// handleReaction: сначала starboard, и только если он не забрал событие — карма.
// Очки начисляются за любую поставленную реакцию.
func (b *Bot) handleReaction(ctx context.Context, ev platform.ReactionEvent, added bool) {
	middleware.LogReaction(ev, added)

	consumed := false
	if b.h.Starboard != nil {
		if added {
			consumed = b.h.Starboard.OnReactionAdd(ctx, ev)
		} else {
			consumed = b.h.Starboard.OnReactionRemove(ctx, ev)
		}
	}
	if !consumed && b.h.Karma != nil {
		b.h.Karma.HandleReaction(ctx, ev, added)
	}
	if added && b.h.Points != nil {
		b.h.Points.OnReaction(ev.GuildID, ev.UserID)
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !b.filter.AllowMessage(m.Message) {
		return
	}
	msg := discord.ConvertMessage(m.Message)
	discord.FillNames(s.State, msg)
	b.dispatch("message_create", func(context.Context) {
		b.handleMessage(msg)
	})
}

// handleMessage считает сообщение и начисляет очки живому автору.
func (b *Bot) handleMessage(msg *platform.Message) {
	middleware.LogMessage(msg)

	if b.recent != nil {
		b.recent.Remember(msg)
	}
	if b.h.Messages != nil {
		b.h.Messages.OnMessage(msg)
	}
	if b.h.Points != nil && !msg.AuthorBot && msg.WebhookID == 0 {
		b.h.Points.OnMessage(msg.GuildID, msg.AuthorID)
	}
}

func (b *Bot) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if m.GuildID == "" {
		return
	}
	id := common.ParseID(m.ID)
	b.dispatch("message_delete", func(context.Context) {
		b.handleDelete([]int64{id})
	})
}

func (b *Bot) onMessageDeleteBulk(_ *discordgo.Session, m *discordgo.MessageDeleteBulk) {
	if m.GuildID == "" {
		return
	}
	ids := make([]int64, 0, len(m.Messages))
	for _, id := range m.Messages {
		ids = append(ids, common.ParseID(id))
	}
	b.dispatch("message_delete_bulk", func(context.Context) {
		b.handleDelete(ids)
	})
}

// handleDelete вычитает удалённые сообщения, автор которых известен
// по индексу недавних сообщений. Остальные пропускаются.
func (b *Bot) handleDelete(ids []int64) {
	if b.h.Messages == nil || b.recent == nil {
		return
	}

	var known []*platform.Message
	for _, id := range ids {
		if msg, ok := b.recent.Take(id); ok {
			known = append(known, msg)
		}
	}
	if skipped := len(ids) - len(known); skipped > 0 {
		log.WithField("skipped", skipped).Debug("Удалённые сообщения не найдены в индексе")
	}

	switch len(known) {
	case 0:
	case 1:
		b.h.Messages.OnMessageDelete(known[0])
	default:
		b.h.Messages.OnBulkDelete(known)
	}
}
