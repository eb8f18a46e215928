package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists signal groups in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Save(ctx context.Context, group *Group) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO signal_groups (group_key, source_msg_id, chat_id, symbol, side, closed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (group_key) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			side = EXCLUDED.side,
			closed = EXCLUDED.closed,
			updated_at = EXCLUDED.updated_at`,
		group.Key, group.SourceMsgID, group.ChatID, group.Symbol, group.Side, group.Closed, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert group %s: %w", group.Key, err)
	}

	for _, leg := range group.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO group_legs (group_key, leg_index, symbol, side, volume, entry, stop_loss, take_profit, ticket, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (group_key, leg_index) DO UPDATE SET
				volume = EXCLUDED.volume,
				entry = EXCLUDED.entry,
				stop_loss = EXCLUDED.stop_loss,
				take_profit = EXCLUDED.take_profit,
				ticket = EXCLUDED.ticket,
				status = EXCLUDED.status`,
			group.Key, leg.Index, leg.Symbol, leg.Side, leg.Volume, leg.Entry,
			leg.StopLoss, leg.TakeProfit, leg.Ticket, leg.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert leg %d of %s: %w", leg.Index, group.Key, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) Get(ctx context.Context, key string) (*Group, error) {
	group := &Group{}
	err := r.pool.QueryRow(ctx, `
		SELECT group_key, source_msg_id, chat_id, symbol, side, closed, created_at, updated_at
		FROM signal_groups WHERE group_key = $1`, key,
	).Scan(&group.Key, &group.SourceMsgID, &group.ChatID, &group.Symbol, &group.Side,
		&group.Closed, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load group %s: %w", key, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT leg_index, symbol, side, volume, entry, stop_loss, take_profit, ticket, status
		FROM group_legs WHERE group_key = $1 ORDER BY leg_index`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load legs of %s: %w", key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var leg Leg
		if err := rows.Scan(&leg.Index, &leg.Symbol, &leg.Side, &leg.Volume, &leg.Entry,
			&leg.StopLoss, &leg.TakeProfit, &leg.Ticket, &leg.Status); err != nil {
			return nil, fmt.Errorf("failed to scan leg of %s: %w", key, err)
		}
		group.Legs = append(group.Legs, leg)
	}
	return group, rows.Err()
}

func (r *PostgresRepository) SetLegTicket(ctx context.Context, key string, legIndex int, ticket int64) error {
	return r.execLeg(ctx, key, legIndex, `
		UPDATE group_legs SET ticket = $3 WHERE group_key = $1 AND leg_index = $2`, ticket)
}

func (r *PostgresRepository) SetLegStatus(ctx context.Context, key string, legIndex int, status LegStatus) error {
	return r.execLeg(ctx, key, legIndex, `
		UPDATE group_legs SET status = $3 WHERE group_key = $1 AND leg_index = $2`, status)
}

func (r *PostgresRepository) SetLegStops(ctx context.Context, key string, legIndex int, stopLoss, takeProfit float64) error {
	return r.execLeg(ctx, key, legIndex, `
		UPDATE group_legs SET stop_loss = $3, take_profit = $4 WHERE group_key = $1 AND leg_index = $2`,
		stopLoss, takeProfit)
}

func (r *PostgresRepository) MarkClosed(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE signal_groups SET closed = TRUE, updated_at = NOW() WHERE group_key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to close group %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT group_key FROM signal_groups WHERE NOT closed ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active groups: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := make([]*Group, 0, len(keys))
	for _, key := range keys {
		g, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (r *PostgresRepository) execLeg(ctx context.Context, key string, legIndex int, sql string, args ...any) error {
	all := append([]any{key, legIndex}, args...)
	tag, err := r.pool.Exec(ctx, sql, all...)
	if err != nil {
		return fmt.Errorf("failed to update leg %d of %s: %w", legIndex, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLegNotFound
	}
	// touch the parent row so UpdatedAt tracks leg changes
	_, err = r.pool.Exec(ctx, `UPDATE signal_groups SET updated_at = NOW() WHERE group_key = $1`, key)
	return err
}
