// Package karma — service.go содержит бизнес-логику кармы.
package karma

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/cache"
	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// Store — хранилище кармы. Реализуется Repository.
type Store interface {
	Increment(ctx context.Context, board Board, key ScopeKey, delta int64) error
	Get(ctx context.Context, key ScopeKey) (*Member, error)
	Position(ctx context.Context, guildID int64, board Board, value int64) (int, error)
	List(ctx context.Context, guildID int64, board Board, order Order, limit, offset int) ([]*Member, error)
	Count(ctx context.Context, guildID int64) (int, error)

	EmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji) (int, error)
	SetEmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji, value int) error
	RemoveEmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji) error
	Emojis(ctx context.Context, guildID int64) ([]EmojiValue, error)

	IsIgnored(ctx context.Context, guildID, channelID int64) (bool, error)
	Ignore(ctx context.Context, guildID, channelID int64) error
	Unignore(ctx context.Context, guildID, channelID int64) error
	IgnoredChannels(ctx context.Context, guildID int64) ([]int64, error)
}

// Service управляет кармой. Изменения от реакций копятся в кэше
// и пишутся в БД планировщиком.
type Service struct {
	store Store
	cache *cache.Counter[Board, ScopeKey]
}

// NewService создаёт сервис кармы.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		cache: cache.NewCounter[Board, ScopeKey]("karma", store),
	}
}

// Cache возвращает кэш кармы (для регистрации в планировщике).
func (s *Service) Cache() *cache.Counter[Board, ScopeKey] {
	return s.cache
}

// ReactionAdded учитывает реакцию со значением value, поставленную reactorID
// на сообщение authorID.
func (s *Service) ReactionAdded(guildID, authorID, reactorID int64, value int) {
	s.apply(guildID, authorID, reactorID, value, 1)
}

// ReactionRemoved откатывает ровно то, что сделал ReactionAdded с теми же аргументами.
func (s *Service) ReactionRemoved(guildID, authorID, reactorID int64, value int) {
	s.apply(guildID, authorID, reactorID, value, -1)
}

// apply раскладывает реакцию по счётчикам:
//   - автору сообщения value ± v
//   - реактору given ± v, если v > 0
//   - реактору taken ± |v|, если v < 0
func (s *Service) apply(guildID, authorID, reactorID int64, value int, sign int64) {
	if value == 0 || authorID == reactorID {
		return
	}

	v := int64(value) * sign
	s.cache.Apply(BoardValue, ScopeKey{GuildID: guildID, UserID: authorID}, v)

	reactor := ScopeKey{GuildID: guildID, UserID: reactorID}
	if value > 0 {
		s.cache.Apply(BoardGiven, reactor, v)
	} else {
		s.cache.Apply(BoardTaken, reactor, -v)
	}
}

// EmojiValue возвращает значение кармы эмодзи. 0 — значение не задано.
// Ошибка БД логируется и тоже даёт 0.
func (s *Service) EmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji) int {
	value, err := s.store.EmojiValue(ctx, guildID, emoji)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			log.WithError(err).WithFields(log.Fields{
				"guild_id": guildID,
				"emoji":    emoji.String(),
			}).Error("Ошибка получения значения эмодзи")
		}
		return 0
	}
	return value
}

// SetEmojiValue задаёт значение эмодзи. Для юникодных эмодзи 0 удаляет запись,
// кастомные с 0 остаются в списке как нейтральные.
func (s *Service) SetEmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji, value int) error {
	if value < -1 || value > 1 {
		return common.ErrInvalidEmojiValue
	}
	if !emoji.IsCustom() && value == 0 {
		return s.store.RemoveEmojiValue(ctx, guildID, emoji)
	}
	if err := s.store.SetEmojiValue(ctx, guildID, emoji, value); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"guild_id": guildID,
		"emoji":    emoji.String(),
		"value":    value,
	}).Info("Значение кармы эмодзи изменено")
	return nil
}

// Emojis возвращает эмодзи сервера, разбитые на положительные, нейтральные и отрицательные.
func (s *Service) Emojis(ctx context.Context, guildID int64) (*EmojiList, error) {
	all, err := s.store.Emojis(ctx, guildID)
	if err != nil {
		return nil, err
	}

	var out EmojiList
	for _, e := range all {
		switch {
		case e.Value > 0:
			out.Positive = append(out.Positive, e)
		case e.Value < 0:
			out.Negative = append(out.Negative, e)
		default:
			out.Neutral = append(out.Neutral, e)
		}
	}
	return &out, nil
}

// Give выдаёт участникам value кармы напрямую, минуя кэш.
func (s *Service) Give(ctx context.Context, guildID int64, userIDs []int64, value int) error {
	for _, userID := range userIDs {
		key := ScopeKey{GuildID: guildID, UserID: userID}
		if err := s.store.Increment(ctx, BoardValue, key, int64(value)); err != nil {
			return fmt.Errorf("выдача кармы участнику %d: %w", userID, err)
		}
	}

	log.WithFields(log.Fields{
		"guild_id": guildID,
		"users":    len(userIDs),
		"value":    value,
	}).Info("Карма выдана вручную")
	return nil
}

// Member возвращает карму участника и его места на всех трёх досках.
// Участник без записи считается участником с нулями.
func (s *Service) Member(ctx context.Context, key ScopeKey) (*MemberStats, error) {
	m, err := s.store.Get(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		m = &Member{GuildID: key.GuildID, UserID: key.UserID}
	} else if err != nil {
		return nil, err
	}

	stats := &MemberStats{Member: *m}
	positions := []struct {
		board Board
		dst   *int
	}{
		{BoardValue, &stats.ValuePosition},
		{BoardGiven, &stats.GivenPosition},
		{BoardTaken, &stats.TakenPosition},
	}
	for _, p := range positions {
		pos, err := s.store.Position(ctx, key.GuildID, p.board, m.Counter(p.board))
		if err != nil {
			return nil, err
		}
		*p.dst = pos
	}
	return stats, nil
}

// Board возвращает страницу доски.
func (s *Service) Board(ctx context.Context, guildID int64, board Board, order Order, limit, offset int) ([]*Member, error) {
	if !board.Valid() {
		return nil, common.ErrInvalidBoard
	}
	if limit <= 0 || offset < 0 {
		return nil, common.ErrInvalidLimit
	}
	return s.store.List(ctx, guildID, board, order, limit, offset)
}

// Count возвращает число участников с кармой на сервере.
func (s *Service) Count(ctx context.Context, guildID int64) (int, error) {
	return s.store.Count(ctx, guildID)
}

// MessageKarma считает суммарную карму сообщения: каждая реакция со значением
// даёт ±count, нейтральные не влияют на сумму.
func (s *Service) MessageKarma(ctx context.Context, msg *platform.Message) (*MessageKarma, error) {
	ignored, err := s.store.IsIgnored(ctx, msg.GuildID, msg.ChannelID)
	if err != nil {
		return nil, err
	}
	if ignored {
		return nil, common.ErrChannelIgnored
	}

	out := &MessageKarma{}
	for _, r := range msg.Reactions {
		value, err := s.store.EmojiValue(ctx, msg.GuildID, r.Emoji)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		switch {
		case value > 0:
			out.Positive = append(out.Positive, r.Emoji)
			out.Total += r.Count
		case value < 0:
			out.Negative = append(out.Negative, r.Emoji)
			out.Total -= r.Count
		default:
			out.Neutral = append(out.Neutral, r.Emoji)
		}
	}
	return out, nil
}

// IsIgnored проверяет, отключена ли карма в канале. Ошибка БД логируется,
// а канал считается неигнорируемым.
func (s *Service) IsIgnored(ctx context.Context, guildID, channelID int64) bool {
	ignored, err := s.store.IsIgnored(ctx, guildID, channelID)
	if err != nil {
		log.WithError(err).WithField("channel_id", channelID).Error("Ошибка проверки игнорируемого канала")
		return false
	}
	return ignored
}

// IgnoreChannel отключает карму в канале.
func (s *Service) IgnoreChannel(ctx context.Context, guildID, channelID int64) error {
	return s.store.Ignore(ctx, guildID, channelID)
}

// UnignoreChannel включает карму в канале.
func (s *Service) UnignoreChannel(ctx context.Context, guildID, channelID int64) error {
	return s.store.Unignore(ctx, guildID, channelID)
}

// IgnoredChannels возвращает каналы сервера с отключённой кармой.
func (s *Service) IgnoredChannels(ctx context.Context, guildID int64) ([]int64, error) {
	return s.store.IgnoredChannels(ctx, guildID)
}
