// Package messages — service.go копит события сообщений в кэше
// и отдаёт доски участников и каналов.
package messages

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/cache"
	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// Store — хранилище статистики сообщений. Реализуется Repository.
type Store interface {
	Add(ctx context.Context, key Key, meta Meta, delta int64) error
	Users(ctx context.Context, guildID int64, f Filter, limit, offset int) ([]UserCount, error)
	Channels(ctx context.Context, guildID int64, f Filter, limit, offset int) ([]ChannelCount, error)
	UserRank(ctx context.Context, guildID, userID int64, f Filter) (*UserCount, error)
	Total(ctx context.Context, guildID int64, f Filter) (int64, error)

	Config(ctx context.Context, guildID int64) (*Config, error)
	Ignore(ctx context.Context, guildID int64, channels, members []int64) error
	Unignore(ctx context.Context, guildID int64, channels, members []int64) error
	ResetConfig(ctx context.Context, guildID int64) error
}

type metaEntry struct {
	Meta
	seq uint64 // номер последнего изменения
}

// Service считает сообщения. Созданные и удалённые сообщения копятся
// в отдельных аккумуляторах, метаданные ключа живут до ближайшего сброса.
type Service struct {
	store Store
	cache *cache.Counter[Counter, Key]

	mu   sync.Mutex
	meta map[Key]*metaEntry
	seq  uint64
}

// NewService создаёт сервис статистики сообщений.
func NewService(store Store) *Service {
	s := &Service{
		store: store,
		meta:  make(map[Key]*metaEntry),
	}
	s.cache = cache.NewCounter[Counter, Key]("messages", cache.SinkFunc[Counter, Key](s.write))
	return s
}

// OnMessage учитывает новое сообщение.
func (s *Service) OnMessage(msg *platform.Message) {
	s.record(Sent, msg)
}

// OnMessageDelete учитывает удалённое сообщение.
func (s *Service) OnMessageDelete(msg *platform.Message) {
	s.record(Deleted, msg)
}

// OnBulkDelete учитывает массовое удаление.
func (s *Service) OnBulkDelete(msgs []*platform.Message) {
	for _, m := range msgs {
		s.record(Deleted, m)
	}
}

func (s *Service) record(c Counter, msg *platform.Message) {
	// личные сообщения и служебные сообщения о тредах не считаются
	if msg == nil || msg.GuildID == 0 || msg.ThreadStarter {
		return
	}

	key := Key{GuildID: msg.GuildID, ChannelID: msg.ChannelID, UserID: msg.AuthorID}
	meta := Meta{
		GuildName:   msg.GuildName,
		ChannelName: msg.ChannelName,
		UserName:    msg.AuthorName,
		Webhook:     msg.WebhookID != 0,
		LastMsgAt:   msg.CreatedAt,
	}

	s.mu.Lock()
	s.seq++
	e, ok := s.meta[key]
	if !ok {
		e = &metaEntry{}
		s.meta[key] = e
	}
	e.merge(meta)
	e.seq = s.seq
	// под s.mu, чтобы prune не удалил метаданные до попадания дельты в кэш
	s.cache.Apply(c, key, 1)
	s.mu.Unlock()
}

// write — приёмник кэша: дельта Deleted уходит в count со знаком минус.
func (s *Service) write(ctx context.Context, c Counter, key Key, delta int64) error {
	s.mu.Lock()
	var meta Meta
	if e, ok := s.meta[key]; ok {
		meta = e.Meta
	}
	s.mu.Unlock()

	return s.store.Add(ctx, key, meta, c.sign()*delta)
}

// Name возвращает имя кэша.
func (s *Service) Name() string {
	return s.cache.Name()
}

// Flush сбрасывает кэш и забывает метаданные ключей, которые
// не менялись с начала сброса.
func (s *Service) Flush(ctx context.Context) cache.FlushResult {
	seq := s.currentSeq()
	res := s.cache.Flush(ctx)
	if !res.Skipped {
		s.prune(seq)
	}
	return res
}

// Drain выполняет финальный сброс при остановке.
func (s *Service) Drain(ctx context.Context) cache.FlushResult {
	seq := s.currentSeq()
	res := s.cache.Drain(ctx)
	s.prune(seq)
	return res
}

// Pending возвращает число несброшенных записей.
func (s *Service) Pending() int {
	return s.cache.Pending()
}

func (s *Service) currentSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Service) prune(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.meta {
		if e.seq <= seq {
			delete(s.meta, k)
		}
	}
}

// UserBoard возвращает страницу доски участников.
func (s *Service) UserBoard(ctx context.Context, guildID int64, f Filter, limit, offset int) ([]UserCount, error) {
	if limit <= 0 || offset < 0 {
		return nil, common.ErrInvalidLimit
	}
	return s.store.Users(ctx, guildID, f, limit, offset)
}

// ChannelBoard возвращает страницу доски каналов.
func (s *Service) ChannelBoard(ctx context.Context, guildID int64, f Filter, limit, offset int) ([]ChannelCount, error) {
	if limit <= 0 || offset < 0 {
		return nil, common.ErrInvalidLimit
	}
	return s.store.Channels(ctx, guildID, f, limit, offset)
}

// UserRank возвращает место участника. Участник без сообщений
// получает нулевую строку без места.
func (s *Service) UserRank(ctx context.Context, guildID, userID int64, f Filter) (*UserCount, error) {
	c, err := s.store.UserRank(ctx, guildID, userID, f)
	if errors.Is(err, common.ErrNotFound) {
		return &UserCount{UserID: userID}, nil
	}
	return c, err
}

// UserTotal возвращает число сообщений участника на сервере.
func (s *Service) UserTotal(ctx context.Context, guildID, userID int64) (int64, error) {
	return s.store.Total(ctx, guildID, Filter{UserID: userID, IncludeIgnored: true})
}

// ChannelTotal возвращает число сообщений в канале.
func (s *Service) ChannelTotal(ctx context.Context, guildID, channelID int64) (int64, error) {
	return s.store.Total(ctx, guildID, Filter{ChannelID: channelID, Webhooks: true, IncludeIgnored: true})
}

// Config возвращает настройки сервера. Если их нет — пустые настройки.
func (s *Service) Config(ctx context.Context, guildID int64) (*Config, error) {
	c, err := s.store.Config(ctx, guildID)
	if errors.Is(err, common.ErrNotFound) {
		return &Config{GuildID: guildID}, nil
	}
	return c, err
}

// Ignore скрывает каналы и участников с досок.
func (s *Service) Ignore(ctx context.Context, guildID int64, channels, members []int64) error {
	if len(channels) == 0 && len(members) == 0 {
		return common.ErrEmptyIgnoreList
	}
	if err := s.store.Ignore(ctx, guildID, channels, members); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"guild_id": guildID,
		"channels": channels,
		"members":  members,
	}).Info("Списки игнорируемых дополнены")
	return nil
}

// Unignore возвращает каналы и участников на доски.
func (s *Service) Unignore(ctx context.Context, guildID int64, channels, members []int64) error {
	if len(channels) == 0 && len(members) == 0 {
		return common.ErrEmptyIgnoreList
	}
	if err := s.store.Unignore(ctx, guildID, channels, members); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"guild_id": guildID,
		"channels": channels,
		"members":  members,
	}).Info("Списки игнорируемых уменьшены")
	return nil
}

// ResetConfig очищает списки игнорируемых.
func (s *Service) ResetConfig(ctx context.Context, guildID int64) error {
	if err := s.store.ResetConfig(ctx, guildID); err != nil {
		return err
	}
	log.WithField("guild_id", guildID).Info("Настройки статистики сообщений сброшены")
	return nil
}
