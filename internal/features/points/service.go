// Package points — service.go начисляет очки с учётом кулдауна.
package points

import (
	"context"
	"errors"
	"math/rand"

	"github.com/strawberry-py/strawberry-boards/internal/cache"
	"github.com/strawberry-py/strawberry-boards/internal/common"
)

// Store — хранилище очков. Реализуется Repository.
type Store interface {
	Increment(ctx context.Context, acc Counter, key Key, delta int64) error
	Get(ctx context.Context, key Key) (*Member, error)
	Position(ctx context.Context, guildID, points int64) (int, error)
	List(ctx context.Context, guildID int64, order Order, limit, offset int) ([]*Member, error)
}

// Service начисляет очки активности.
type Service struct {
	store    Store
	rules    Rules
	cache    *cache.Counter[Counter, Key]
	message  *Cooldown
	reaction *Cooldown

	// randInt возвращает число из [0, n).
	randInt func(n int) int
}

// NewService создаёт сервис очков. Close останавливает его фоновые горутины.
func NewService(store Store, rules Rules) *Service {
	return &Service{
		store:    store,
		rules:    rules,
		cache:    cache.NewCounter[Counter, Key]("points", store),
		message:  NewCooldown(rules.MessageCooldown),
		reaction: NewCooldown(rules.ReactionCooldown),
		randInt:  rand.Intn,
	}
}

// Cache возвращает кэш очков (для регистрации в планировщике).
func (s *Service) Cache() *cache.Counter[Counter, Key] {
	return s.cache
}

// Close останавливает очистку кулдаунов.
func (s *Service) Close() {
	s.message.Close()
	s.reaction.Close()
}

// OnMessage начисляет очки за сообщение, если кулдаун участника прошёл.
func (s *Service) OnMessage(guildID, userID int64) {
	s.award(s.message, s.rules.Message, Key{GuildID: guildID, UserID: userID})
}

// OnReaction начисляет очки за реакцию, если кулдаун участника прошёл.
func (s *Service) OnReaction(guildID, userID int64) {
	s.award(s.reaction, s.rules.Reaction, Key{GuildID: guildID, UserID: userID})
}

func (s *Service) award(cd *Cooldown, r Range, key Key) {
	if key.GuildID == 0 || !cd.Allow(key) {
		return
	}
	s.cache.Apply(Points, key, int64(s.roll(r)))
}

// roll возвращает случайное число из r.
func (s *Service) roll(r Range) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + s.randInt(r.Max-r.Min+1)
}

// Get возвращает очки участника и его место. Участник без записи
// считается участником с нулём очков.
func (s *Service) Get(ctx context.Context, key Key) (*MemberStats, error) {
	m, err := s.store.Get(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		m = &Member{GuildID: key.GuildID, UserID: key.UserID}
	} else if err != nil {
		return nil, err
	}

	pos, err := s.store.Position(ctx, key.GuildID, m.Points)
	if err != nil {
		return nil, err
	}
	return &MemberStats{Member: *m, Position: pos}, nil
}

// Board возвращает страницу доски очков.
func (s *Service) Board(ctx context.Context, guildID int64, order Order, limit, offset int) ([]*Member, error) {
	if limit <= 0 || offset < 0 {
		return nil, common.ErrInvalidLimit
	}
	return s.store.List(ctx, guildID, order, limit, offset)
}
