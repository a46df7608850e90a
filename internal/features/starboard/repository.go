// Package starboard — repository.go выполняет операции с таблицами
// boards_starboard_channels и boards_starboard_messages.
package starboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strawberry-py/strawberry-boards/internal/common"
)

// Repository работает с таблицами starboard.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий starboard.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const channelColumns = `id, guild_id, source_channel_id, target_channel_id, threshold, created_at`

const messageColumns = `id, guild_id, author_id, source_channel_id, source_message_id,
	target_channel_id, target_message_id, created_at`

// AllChannels возвращает настройки всех серверов (для загрузки при старте).
func (r *Repository) AllChannels(ctx context.Context) ([]*Channel, error) {
	return r.queryChannels(ctx, `SELECT `+channelColumns+` FROM boards_starboard_channels ORDER BY id`)
}

// Channels возвращает настройки сервера.
func (r *Repository) Channels(ctx context.Context, guildID int64) ([]*Channel, error) {
	return r.queryChannels(ctx, `
		SELECT `+channelColumns+` FROM boards_starboard_channels
		WHERE guild_id = $1 ORDER BY id
	`, guildID)
}

// GetChannel возвращает настройку канала-источника. Если её нет — common.ErrNotFound.
func (r *Repository) GetChannel(ctx context.Context, guildID, sourceChannelID int64) (*Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM boards_starboard_channels
		WHERE guild_id = $1 AND source_channel_id = $2`

	var c Channel
	err := r.db.QueryRow(ctx, query, guildID, sourceChannelID).Scan(
		&c.ID, &c.GuildID, &c.SourceChannelID, &c.TargetChannelID, &c.Threshold, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("канал %d: %w", sourceChannelID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения настройки starboard: %w", err)
	}
	return &c, nil
}

// AddChannel сохраняет новую пару каналов.
func (r *Repository) AddChannel(ctx context.Context, c *Channel) error {
	query := `
		INSERT INTO boards_starboard_channels (guild_id, source_channel_id, target_channel_id, threshold)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, c.GuildID, c.SourceChannelID, c.TargetChannelID, c.Threshold).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения настройки starboard: %w", err)
	}
	return nil
}

// RemoveChannel удаляет настройку канала-источника.
func (r *Repository) RemoveChannel(ctx context.Context, guildID, sourceChannelID int64) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM boards_starboard_channels WHERE guild_id = $1 AND source_channel_id = $2
	`, guildID, sourceChannelID)
	if err != nil {
		return fmt.Errorf("ошибка удаления настройки starboard: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotConfigured
	}
	return nil
}

func (r *Repository) queryChannels(ctx context.Context, query string, args ...interface{}) ([]*Channel, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса настроек starboard: %w", err)
	}
	defer rows.Close()

	var out []*Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.GuildID, &c.SourceChannelID, &c.TargetChannelID, &c.Threshold, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// BySource возвращает все записи о репостах исходного сообщения.
func (r *Repository) BySource(ctx context.Context, guildID, sourceMessageID int64) ([]*Message, error) {
	return r.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM boards_starboard_messages
		WHERE guild_id = $1 AND source_message_id = $2 ORDER BY id
	`, guildID, sourceMessageID)
}

// ByTarget возвращает записи, в которых сообщение является репостом.
func (r *Repository) ByTarget(ctx context.Context, guildID, targetMessageID int64) ([]*Message, error) {
	return r.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM boards_starboard_messages
		WHERE guild_id = $1 AND target_message_id = $2 ORDER BY id
	`, guildID, targetMessageID)
}

// AddMessage сохраняет запись о репосте. Повторная запись той же пары игнорируется.
func (r *Repository) AddMessage(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO boards_starboard_messages
			(guild_id, author_id, source_channel_id, source_message_id, target_channel_id, target_message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_message_id, target_message_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		m.GuildID, m.AuthorID, m.SourceChannelID, m.SourceMessageID, m.TargetChannelID, m.TargetMessageID,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения репоста: %w", err)
	}
	return nil
}

func (r *Repository) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса репостов: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.GuildID, &m.AuthorID, &m.SourceChannelID, &m.SourceMessageID,
			&m.TargetChannelID, &m.TargetMessageID, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// AuthorCounts возвращает авторов по числу репостов (по убыванию).
// targetChannelID = 0 — по всем starboard-каналам сервера.
func (r *Repository) AuthorCounts(ctx context.Context, guildID, targetChannelID int64) ([]AuthorCount, error) {
	query := `
		SELECT author_id, COUNT(DISTINCT source_message_id) AS cnt
		FROM boards_starboard_messages
		WHERE guild_id = $1 AND ($2::bigint = 0 OR target_channel_id = $2)
		GROUP BY author_id
		ORDER BY cnt DESC, author_id
	`
	rows, err := r.db.Query(ctx, query, guildID, targetChannelID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса доски starboard: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuthorCount, error) {
		var a AuthorCount
		err := row.Scan(&a.AuthorID, &a.Count)
		return a, err
	})
}

// AuthorStats возвращает число репостов автора по starboard-каналам.
func (r *Repository) AuthorStats(ctx context.Context, guildID, authorID int64) ([]ChannelCount, error) {
	query := `
		SELECT target_channel_id, COUNT(DISTINCT source_message_id) AS cnt
		FROM boards_starboard_messages
		WHERE guild_id = $1 AND author_id = $2
		GROUP BY target_channel_id
		ORDER BY cnt DESC, target_channel_id
	`
	rows, err := r.db.Query(ctx, query, guildID, authorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса статистики автора: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ChannelCount, error) {
		var c ChannelCount
		err := row.Scan(&c.ChannelID, &c.Count)
		return c, err
	})
}

// AuthorTotal возвращает общее число репостов автора на сервере.
func (r *Repository) AuthorTotal(ctx context.Context, guildID, authorID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT source_message_id) FROM boards_starboard_messages
		WHERE guild_id = $1 AND author_id = $2
	`, guildID, authorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта репостов автора: %w", err)
	}
	return n, nil
}
