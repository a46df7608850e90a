// Package karma — repository.go выполняет операции с таблицами boards_karma_*.
package karma

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// Repository работает с таблицами кармы.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий кармы.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Increment прибавляет delta к счётчику доски участника.
// Если участника ещё нет — создаёт его с нулями. Используется кэшем при сбросе.
func (r *Repository) Increment(ctx context.Context, board Board, key ScopeKey, delta int64) error {
	column, err := board.Column()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO boards_karma_members (guild_id, user_id, %[1]s)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id)
		DO UPDATE SET %[1]s = boards_karma_members.%[1]s + EXCLUDED.%[1]s
	`, column)

	if _, err := r.db.Exec(ctx, query, key.GuildID, key.UserID, delta); err != nil {
		return fmt.Errorf("ошибка изменения кармы (%s): %w", column, err)
	}
	return nil
}

// Get возвращает карму участника. Если записи нет — common.ErrNotFound.
func (r *Repository) Get(ctx context.Context, key ScopeKey) (*Member, error) {
	query := `
		SELECT id, guild_id, user_id, value, given, taken
		FROM boards_karma_members
		WHERE guild_id = $1 AND user_id = $2
	`
	var m Member
	err := r.db.QueryRow(ctx, query, key.GuildID, key.UserID).Scan(
		&m.ID, &m.GuildID, &m.UserID, &m.Value, &m.Given, &m.Taken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("карма участника %d: %w", key.UserID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения кармы (user_id=%d): %w", key.UserID, err)
	}
	return &m, nil
}

// Position возвращает место участника со значением value на доске (с 1).
func (r *Repository) Position(ctx context.Context, guildID int64, board Board, value int64) (int, error) {
	column, err := board.Column()
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM boards_karma_members
		WHERE guild_id = $1 AND %s > $2
	`, column)

	var ahead int
	if err := r.db.QueryRow(ctx, query, guildID, value).Scan(&ahead); err != nil {
		return 0, fmt.Errorf("ошибка вычисления места: %w", err)
	}
	return ahead + 1, nil
}

// List возвращает страницу доски.
func (r *Repository) List(ctx context.Context, guildID int64, board Board, order Order, limit, offset int) ([]*Member, error) {
	column, err := board.Column()
	if err != nil {
		return nil, err
	}
	direction := "DESC"
	if order == OrderAsc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, guild_id, user_id, value, given, taken
		FROM boards_karma_members
		WHERE guild_id = $1
		ORDER BY %s %s, user_id
		LIMIT $2 OFFSET $3
	`, column, direction)

	rows, err := r.db.Query(ctx, query, guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса доски: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.GuildID, &m.UserID, &m.Value, &m.Given, &m.Taken); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// Count возвращает число участников с кармой на сервере.
func (r *Repository) Count(ctx context.Context, guildID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM boards_karma_members WHERE guild_id = $1`, guildID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта участников: %w", err)
	}
	return n, nil
}

// EmojiValue возвращает значение эмодзи. Если значение не задано — common.ErrNotFound.
func (r *Repository) EmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji) (int, error) {
	var (
		value int
		err   error
	)
	if emoji.IsCustom() {
		err = r.db.QueryRow(ctx, `
			SELECT value FROM boards_karma_discord_emojis
			WHERE guild_id = $1 AND emoji_id = $2
		`, guildID, emoji.ID).Scan(&value)
	} else {
		err = r.db.QueryRow(ctx, `
			SELECT value FROM boards_karma_unicode_emojis
			WHERE guild_id = $1 AND emoji = $2
		`, guildID, emoji.Name).Scan(&value)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("ошибка чтения значения эмодзи: %w", err)
	}
	return value, nil
}

// SetEmojiValue сохраняет значение эмодзи.
func (r *Repository) SetEmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji, value int) error {
	var err error
	if emoji.IsCustom() {
		_, err = r.db.Exec(ctx, `
			INSERT INTO boards_karma_discord_emojis (guild_id, emoji_id, name, value)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (guild_id, emoji_id) DO UPDATE SET value = EXCLUDED.value, name = EXCLUDED.name
		`, guildID, emoji.ID, emoji.Name, value)
	} else {
		_, err = r.db.Exec(ctx, `
			INSERT INTO boards_karma_unicode_emojis (guild_id, emoji, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (guild_id, emoji) DO UPDATE SET value = EXCLUDED.value
		`, guildID, emoji.Name, value)
	}
	if err != nil {
		return fmt.Errorf("ошибка сохранения значения эмодзи: %w", err)
	}
	return nil
}

// RemoveEmojiValue удаляет значение эмодзи.
func (r *Repository) RemoveEmojiValue(ctx context.Context, guildID int64, emoji platform.Emoji) error {
	var err error
	if emoji.IsCustom() {
		_, err = r.db.Exec(ctx, `DELETE FROM boards_karma_discord_emojis WHERE guild_id = $1 AND emoji_id = $2`, guildID, emoji.ID)
	} else {
		_, err = r.db.Exec(ctx, `DELETE FROM boards_karma_unicode_emojis WHERE guild_id = $1 AND emoji = $2`, guildID, emoji.Name)
	}
	if err != nil {
		return fmt.Errorf("ошибка удаления значения эмодзи: %w", err)
	}
	return nil
}

// Emojis возвращает все эмодзи сервера со значениями: сначала кастомные, затем юникодные.
func (r *Repository) Emojis(ctx context.Context, guildID int64) ([]EmojiValue, error) {
	query := `
		SELECT emoji_id, name, value FROM boards_karma_discord_emojis WHERE guild_id = $1
		UNION ALL
		SELECT 0, emoji, value FROM boards_karma_unicode_emojis WHERE guild_id = $1
	`
	rows, err := r.db.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса эмодзи: %w", err)
	}
	defer rows.Close()

	var out []EmojiValue
	for rows.Next() {
		e := EmojiValue{GuildID: guildID}
		if err := rows.Scan(&e.Emoji.ID, &e.Emoji.Name, &e.Value); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// IsIgnored проверяет, отключена ли карма в канале.
func (r *Repository) IsIgnored(ctx context.Context, guildID, channelID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM boards_karma_ignored WHERE guild_id = $1 AND channel_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, guildID, channelID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки канала: %w", err)
	}
	return exists, nil
}

// Ignore отключает карму в канале.
func (r *Repository) Ignore(ctx context.Context, guildID, channelID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO boards_karma_ignored (guild_id, channel_id) VALUES ($1, $2)
		ON CONFLICT (guild_id, channel_id) DO NOTHING
	`, guildID, channelID)
	if err != nil {
		return fmt.Errorf("ошибка отключения кармы в канале: %w", err)
	}
	return nil
}

// Unignore включает карму в канале обратно.
func (r *Repository) Unignore(ctx context.Context, guildID, channelID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM boards_karma_ignored WHERE guild_id = $1 AND channel_id = $2`, guildID, channelID)
	if err != nil {
		return fmt.Errorf("ошибка включения кармы в канале: %w", err)
	}
	return nil
}

// IgnoredChannels возвращает каналы сервера, где карма отключена.
func (r *Repository) IgnoredChannels(ctx context.Context, guildID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT channel_id FROM boards_karma_ignored WHERE guild_id = $1 ORDER BY channel_id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса каналов: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
