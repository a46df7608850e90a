// Package points — repository.go выполняет операции с таблицей boards_points_users.
package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strawberry-py/strawberry-boards/internal/common"
)

// Repository работает с таблицей очков.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий очков.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Increment прибавляет delta к очкам участника, создавая его при необходимости.
func (r *Repository) Increment(ctx context.Context, _ Counter, key Key, delta int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO boards_points_users (guild_id, user_id, points)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id)
		DO UPDATE SET points = boards_points_users.points + EXCLUDED.points
	`, key.GuildID, key.UserID, delta)
	if err != nil {
		return fmt.Errorf("ошибка начисления очков (user_id=%d): %w", key.UserID, err)
	}
	return nil
}

// Get возвращает очки участника. Если записи нет — common.ErrNotFound.
func (r *Repository) Get(ctx context.Context, key Key) (*Member, error) {
	var m Member
	err := r.db.QueryRow(ctx, `
		SELECT id, guild_id, user_id, points
		FROM boards_points_users
		WHERE guild_id = $1 AND user_id = $2
	`, key.GuildID, key.UserID).Scan(&m.ID, &m.GuildID, &m.UserID, &m.Points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("очки участника %d: %w", key.UserID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения очков (user_id=%d): %w", key.UserID, err)
	}
	return &m, nil
}

// Position возвращает место участника с points очками (с 1).
func (r *Repository) Position(ctx context.Context, guildID, points int64) (int, error) {
	var ahead int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM boards_points_users
		WHERE guild_id = $1 AND points > $2
	`, guildID, points).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("ошибка вычисления места: %w", err)
	}
	return ahead + 1, nil
}

// List возвращает страницу доски.
func (r *Repository) List(ctx context.Context, guildID int64, order Order, limit, offset int) ([]*Member, error) {
	direction := "DESC"
	if order == OrderAsc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, guild_id, user_id, points
		FROM boards_points_users
		WHERE guild_id = $1
		ORDER BY points %s, user_id
		LIMIT $2 OFFSET $3
	`, direction)

	rows, err := r.db.Query(ctx, query, guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса доски очков: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Member, error) {
		var m Member
		err := row.Scan(&m.ID, &m.GuildID, &m.UserID, &m.Points)
		return &m, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения доски очков: %w", err)
	}
	return out, nil
}
