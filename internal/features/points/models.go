// Package points начисляет очки активности за сообщения и реакции.
// models.go описывает участников и настройки начисления.
package points

import "time"

// Key — участник внутри сервера.
type Key struct {
	GuildID int64
	UserID  int64
}

// Counter — аккумулятор кэша очков. Он один, очки пишутся в одну колонку.
type Counter int

const Points Counter = 0

// String реализует fmt.Stringer.
func (Counter) String() string {
	return "points"
}

// Member — строка таблицы boards_points_users.
type Member struct {
	ID      int64
	GuildID int64
	UserID  int64
	Points  int64
}

// MemberStats — очки участника и его место на доске.
type MemberStats struct {
	Member
	Position int
}

// Order — порядок сортировки доски.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

// Range — диапазон случайного начисления, обе границы включены.
type Range struct {
	Min int
	Max int
}

// Rules — правила начисления очков.
type Rules struct {
	Message          Range
	Reaction         Range
	MessageCooldown  time.Duration
	ReactionCooldown time.Duration
}

// DefaultRules — 15–25 очков за сообщение раз в минуту
// и 0–5 очков за реакцию раз в 30 секунд.
func DefaultRules() Rules {
	return Rules{
		Message:          Range{Min: 15, Max: 25},
		Reaction:         Range{Min: 0, Max: 5},
		MessageCooldown:  time.Minute,
		ReactionCooldown: 30 * time.Second,
	}
}
