// Package starboard — service.go содержит настройку каналов и статистику.
package starboard

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// DefaultHistoryLimit — сколько сообщений проверяет History по умолчанию.
const DefaultHistoryLimit = 300

// Service управляет настройками starboard.
type Service struct {
	store    Store
	client   platform.Client
	engine   *Engine
	channels *ChannelSet
}

// NewService создаёт сервис starboard.
func NewService(store Store, client platform.Client, engine *Engine, channels *ChannelSet) *Service {
	return &Service{store: store, client: client, engine: engine, channels: channels}
}

// LoadChannels загружает настройки всех серверов в память. Вызывается при старте.
func (s *Service) LoadChannels(ctx context.Context) error {
	all, err := s.store.AllChannels(ctx)
	if err != nil {
		return err
	}
	s.channels.Load(all)
	log.WithField("channels", len(all)).Info("Настройки starboard загружены")
	return nil
}

// SetChannel настраивает репост из source в target при threshold реакциях.
//
// Ограничения:
//   - threshold > 0
//   - source и target различаются
//   - source ещё не используется ни как источник, ни как starboard
//   - target не используется как источник
//
// Несколько источников могут делить один starboard.
func (s *Service) SetChannel(ctx context.Context, guildID, sourceID, targetID int64, threshold int) (*Channel, error) {
	if threshold <= 0 {
		return nil, common.ErrInvalidThreshold
	}
	if sourceID == targetID {
		return nil, common.ErrSameChannel
	}
	if s.channels.InUse(sourceID) {
		return nil, common.ErrChannelInUse
	}
	if s.channels.IsSource(targetID) {
		return nil, common.ErrTargetIsSource
	}

	c := &Channel{
		GuildID:         guildID,
		SourceChannelID: sourceID,
		TargetChannelID: targetID,
		Threshold:       threshold,
	}
	if err := s.store.AddChannel(ctx, c); err != nil {
		return nil, err
	}
	s.channels.Add(c)

	log.WithFields(log.Fields{
		"guild_id":  guildID,
		"source_id": sourceID,
		"target_id": targetID,
		"threshold": threshold,
	}).Info("Канал starboard настроен")
	return c, nil
}

// UnsetChannel удаляет настройку канала-источника.
func (s *Service) UnsetChannel(ctx context.Context, guildID, sourceID int64) error {
	if err := s.store.RemoveChannel(ctx, guildID, sourceID); err != nil {
		return err
	}
	s.channels.Remove(sourceID)

	log.WithFields(log.Fields{
		"guild_id":  guildID,
		"source_id": sourceID,
	}).Info("Канал starboard удалён")
	return nil
}

// Channels возвращает настройки сервера.
func (s *Service) Channels(ctx context.Context, guildID int64) ([]*Channel, error) {
	return s.store.Channels(ctx, guildID)
}

// History проверяет последние limit сообщений канала-источника на порог
// (от старых к новым) и возвращает число проверенных сообщений.
func (s *Service) History(ctx context.Context, guildID, sourceID int64, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if _, err := s.store.GetChannel(ctx, guildID, sourceID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, common.ErrNotConfigured
		}
		return 0, err
	}

	msgs, err := s.client.ChannelMessages(ctx, sourceID, limit)
	if err != nil {
		return 0, err
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return len(msgs) - 1 - i, err
		}
		s.engine.processReaction(ctx, guildID, sourceID, msgs[i].ID)
	}

	log.WithFields(log.Fields{
		"guild_id":  guildID,
		"source_id": sourceID,
		"messages":  len(msgs),
	}).Info("История канала starboard проверена")
	return len(msgs), nil
}

// Leaderboard возвращает авторов по числу репостов. targetID = 0 — все каналы.
func (s *Service) Leaderboard(ctx context.Context, guildID, targetID int64) ([]AuthorCount, error) {
	return s.store.AuthorCounts(ctx, guildID, targetID)
}

// AuthorStats возвращает число репостов автора по каналам.
func (s *Service) AuthorStats(ctx context.Context, guildID, authorID int64) ([]ChannelCount, error) {
	return s.store.AuthorStats(ctx, guildID, authorID)
}

// AuthorTotal возвращает общее число репостов автора.
func (s *Service) AuthorTotal(ctx context.Context, guildID, authorID int64) (int, error) {
	return s.store.AuthorTotal(ctx, guildID, authorID)
}
