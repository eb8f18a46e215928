package review

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists review items in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Add(ctx context.Context, item *Item) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO review_queue (id, chat_id, source_msg_id, reason, detail, raw_text, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.ChatID, item.SourceMsgID, item.Reason, item.Detail, item.RawText, item.Resolved, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to queue review item: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListUnresolved(ctx context.Context, limit int) ([]*Item, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, chat_id, source_msg_id, reason, detail, raw_text, resolved, created_at
		FROM review_queue WHERE NOT resolved ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it := &Item{}
		if err := rows.Scan(&it.ID, &it.ChatID, &it.SourceMsgID, &it.Reason, &it.Detail,
			&it.RawText, &it.Resolved, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Resolve(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE review_queue SET resolved = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve review item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
