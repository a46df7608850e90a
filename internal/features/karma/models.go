// Package karma реализует систему репутации (кармы) на реакциях.
// models.go описывает участников, доски и значения эмодзи.
package karma

import (
	"fmt"

	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// ScopeKey — ключ участника внутри сервера.
type ScopeKey struct {
	GuildID int64
	UserID  int64
}

// Board — тип доски и одновременно имя счётчика в кэше.
type Board int

const (
	BoardValue Board = iota // полученная карма
	BoardGiven              // отданная положительная карма
	BoardTaken              // отданная отрицательная карма
)

// boardColumns — фиксированная таблица «доска → колонка в boards_karma_members».
var boardColumns = [...]string{
	BoardValue: "value",
	BoardGiven: "given",
	BoardTaken: "taken",
}

// Valid проверяет, что доска известна.
func (b Board) Valid() bool {
	return b >= 0 && int(b) < len(boardColumns)
}

// Column возвращает колонку таблицы для доски.
func (b Board) Column() (string, error) {
	if !b.Valid() {
		return "", fmt.Errorf("доска %d: неизвестный тип", int(b))
	}
	return boardColumns[b], nil
}

// String реализует fmt.Stringer.
func (b Board) String() string {
	if !b.Valid() {
		return fmt.Sprintf("Board(%d)", int(b))
	}
	return boardColumns[b]
}

// Order — порядок сортировки доски.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

// Member — счётчики кармы участника.
type Member struct {
	ID      int64 `db:"id"`
	GuildID int64 `db:"guild_id"`
	UserID  int64 `db:"user_id"`
	Value   int64 `db:"value"`
	Given   int64 `db:"given"`
	Taken   int64 `db:"taken"`
}

// Counter возвращает значение счётчика для доски.
func (m *Member) Counter(b Board) int64 {
	switch b {
	case BoardGiven:
		return m.Given
	case BoardTaken:
		return m.Taken
	default:
		return m.Value
	}
}

// MemberStats — карма участника вместе с местами на досках.
type MemberStats struct {
	Member
	ValuePosition int
	GivenPosition int
	TakenPosition int
}

// EmojiValue — значение кармы эмодзи на сервере.
type EmojiValue struct {
	GuildID int64
	Emoji   platform.Emoji
	Value   int
}

// EmojiList — эмодзи сервера, разбитые по знаку значения.
type EmojiList struct {
	Positive []EmojiValue
	Neutral  []EmojiValue
	Negative []EmojiValue
}

// MessageKarma — суммарная карма сообщения по его реакциям.
type MessageKarma struct {
	Total    int
	Positive []platform.Emoji
	Neutral  []platform.Emoji
	Negative []platform.Emoji
}
