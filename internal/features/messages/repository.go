// Package messages — repository.go выполняет операции с таблицами boards_messages_*.
package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strawberry-py/strawberry-boards/internal/common"
)

// Repository работает с таблицами статистики сообщений.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий сообщений.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Add прибавляет delta к счётчику, создавая строку при необходимости.
// Имена сервера, канала и участника обновляются во всех строках,
// чтобы доски не показывали устаревшие названия.
func (r *Repository) Add(ctx context.Context, key Key, meta Meta, delta int64) error {
	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO boards_messages_userchannels
			(guild_id, guild_name, channel_id, channel_name, user_id, user_name, is_webhook, count, last_msg_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (guild_id, channel_id, user_id) DO UPDATE SET
			count        = boards_messages_userchannels.count + EXCLUDED.count,
			last_msg_at  = GREATEST(boards_messages_userchannels.last_msg_at, EXCLUDED.last_msg_at),
			guild_name   = COALESCE(NULLIF(EXCLUDED.guild_name, ''), boards_messages_userchannels.guild_name),
			channel_name = COALESCE(NULLIF(EXCLUDED.channel_name, ''), boards_messages_userchannels.channel_name),
			user_name    = COALESCE(NULLIF(EXCLUDED.user_name, ''), boards_messages_userchannels.user_name)
	`, key.GuildID, meta.GuildName, key.ChannelID, meta.ChannelName, key.UserID, meta.UserName,
		meta.Webhook, delta, meta.LastMsgAt)

	if meta.GuildName != "" {
		b.Queue(`
			UPDATE boards_messages_userchannels SET guild_name = $2
			WHERE guild_id = $1 AND guild_name <> $2
		`, key.GuildID, meta.GuildName)
	}
	if meta.ChannelName != "" {
		b.Queue(`
			UPDATE boards_messages_userchannels SET channel_name = $2
			WHERE channel_id = $1 AND channel_name <> $2
		`, key.ChannelID, meta.ChannelName)
	}
	if meta.UserName != "" {
		b.Queue(`
			UPDATE boards_messages_userchannels SET user_name = $3
			WHERE guild_id = $1 AND user_id = $2 AND user_name <> $3
		`, key.GuildID, key.UserID, meta.UserName)
	}

	br := r.db.SendBatch(ctx, b)
	defer br.Close()

	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("ошибка записи счётчика сообщений (user_id=%d, channel_id=%d): %w",
				key.UserID, key.ChannelID, err)
		}
	}
	return nil
}

// ignoredCond исключает скрытые каналы и участников сервера.
const ignoredCond = `NOT EXISTS (
	SELECT 1 FROM boards_messages_config c
	WHERE c.guild_id = u.guild_id
	  AND (u.channel_id = ANY(c.ignored_channels) OR u.user_id = ANY(c.ignored_members))
)`

// where строит условие выборки и аргументы к нему.
func where(guildID int64, f Filter) (string, []any) {
	conds := []string{"u.guild_id = $1"}
	args := []any{guildID}

	if f.ChannelID != 0 {
		args = append(args, f.ChannelID)
		conds = append(conds, fmt.Sprintf("u.channel_id = $%d", len(args)))
	}
	if f.UserID != 0 {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("u.user_id = $%d", len(args)))
	}
	if !f.Webhooks {
		conds = append(conds, "NOT u.is_webhook")
	}
	if !f.IncludeIgnored {
		conds = append(conds, ignoredCond)
	}
	return strings.Join(conds, " AND "), args
}

// usersQuery — ранжированная доска участников. Равные суммы делят место,
// при равенстве выше тот, кто написал раньше.
func usersQuery(cond string) string {
	return `
		SELECT u.user_id, MAX(u.user_name), SUM(u.count)::bigint AS total, MAX(u.last_msg_at) AS last_msg_at,
			DENSE_RANK() OVER (ORDER BY SUM(u.count) DESC, MAX(u.last_msg_at) ASC) AS rank
		FROM boards_messages_userchannels u
		WHERE ` + cond + `
		GROUP BY u.user_id`
}

func channelsQuery(cond string) string {
	return `
		SELECT u.channel_id, MAX(u.channel_name), SUM(u.count)::bigint AS total, MAX(u.last_msg_at) AS last_msg_at,
			DENSE_RANK() OVER (ORDER BY SUM(u.count) DESC, MAX(u.last_msg_at) ASC) AS rank
		FROM boards_messages_userchannels u
		WHERE ` + cond + `
		GROUP BY u.channel_id`
}

// Users возвращает страницу доски участников.
func (r *Repository) Users(ctx context.Context, guildID int64, f Filter, limit, offset int) ([]UserCount, error) {
	cond, args := where(guildID, f)
	args = append(args, limit, offset)
	query := fmt.Sprintf("%s ORDER BY rank, user_id LIMIT $%d OFFSET $%d",
		usersQuery(cond), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса доски участников: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserCount, error) {
		var c UserCount
		err := row.Scan(&c.UserID, &c.UserName, &c.Total, &c.LastMsgAt, &c.Rank)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения доски участников: %w", err)
	}
	return out, nil
}

// Channels возвращает страницу доски каналов.
func (r *Repository) Channels(ctx context.Context, guildID int64, f Filter, limit, offset int) ([]ChannelCount, error) {
	cond, args := where(guildID, f)
	args = append(args, limit, offset)
	query := fmt.Sprintf("%s ORDER BY rank, channel_id LIMIT $%d OFFSET $%d",
		channelsQuery(cond), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса доски каналов: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ChannelCount, error) {
		var c ChannelCount
		err := row.Scan(&c.ChannelID, &c.ChannelName, &c.Total, &c.LastMsgAt, &c.Rank)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения доски каналов: %w", err)
	}
	return out, nil
}

// UserRank возвращает строку участника на доске с учётом фильтра.
// Если у участника нет сообщений — common.ErrNotFound.
func (r *Repository) UserRank(ctx context.Context, guildID, userID int64, f Filter) (*UserCount, error) {
	cond, args := where(guildID, f)
	args = append(args, userID)
	query := fmt.Sprintf("SELECT * FROM (%s) board WHERE user_id = $%d", usersQuery(cond), len(args))

	var c UserCount
	err := r.db.QueryRow(ctx, query, args...).Scan(&c.UserID, &c.UserName, &c.Total, &c.LastMsgAt, &c.Rank)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("сообщения участника %d: %w", userID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка вычисления места участника: %w", err)
	}
	return &c, nil
}

// Total возвращает сумму сообщений по фильтру.
func (r *Repository) Total(ctx context.Context, guildID int64, f Filter) (int64, error) {
	cond, args := where(guildID, f)
	query := `SELECT COALESCE(SUM(u.count), 0)::bigint FROM boards_messages_userchannels u WHERE ` + cond

	var total int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта сообщений: %w", err)
	}
	return total, nil
}

// Config возвращает настройки сервера. Если их нет — common.ErrNotFound.
func (r *Repository) Config(ctx context.Context, guildID int64) (*Config, error) {
	c := Config{GuildID: guildID}
	err := r.db.QueryRow(ctx, `
		SELECT ignored_channels, ignored_members
		FROM boards_messages_config WHERE guild_id = $1
	`, guildID).Scan(&c.IgnoredChannels, &c.IgnoredMembers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("настройки сервера %d: %w", guildID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения настроек: %w", err)
	}
	return &c, nil
}

// Ignore добавляет каналы и участников в списки игнорируемых (без повторов).
func (r *Repository) Ignore(ctx context.Context, guildID int64, channels, members []int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO boards_messages_config (guild_id, ignored_channels, ignored_members)
		VALUES ($1, $2::bigint[], $3::bigint[])
		ON CONFLICT (guild_id) DO UPDATE SET
			ignored_channels = ARRAY(SELECT DISTINCT unnest(boards_messages_config.ignored_channels || EXCLUDED.ignored_channels)),
			ignored_members  = ARRAY(SELECT DISTINCT unnest(boards_messages_config.ignored_members || EXCLUDED.ignored_members))
	`, guildID, nonNil(channels), nonNil(members))
	if err != nil {
		return fmt.Errorf("ошибка изменения списка игнорируемых: %w", err)
	}
	return nil
}

// Unignore убирает каналы и участников из списков игнорируемых.
func (r *Repository) Unignore(ctx context.Context, guildID int64, channels, members []int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE boards_messages_config SET
			ignored_channels = ARRAY(SELECT x FROM unnest(ignored_channels) x WHERE x <> ALL($2::bigint[])),
			ignored_members  = ARRAY(SELECT x FROM unnest(ignored_members) x WHERE x <> ALL($3::bigint[]))
		WHERE guild_id = $1
	`, guildID, nonNil(channels), nonNil(members))
	if err != nil {
		return fmt.Errorf("ошибка изменения списка игнорируемых: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNoMessagesConfig
	}
	return nil
}

// ResetConfig очищает оба списка игнорируемых.
func (r *Repository) ResetConfig(ctx context.Context, guildID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE boards_messages_config
		SET ignored_channels = '{}', ignored_members = '{}'
		WHERE guild_id = $1
	`, guildID)
	if err != nil {
		return fmt.Errorf("ошибка сброса настроек: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNoMessagesConfig
	}
	return nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
