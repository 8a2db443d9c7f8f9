package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

// EventRepo implements storage.EventRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Record inserts the event unless its signature is already recorded for destination.
func (r *EventRepo) Record(ctx context.Context, destination string, ev *domain.TransactionEvent) (bool, error) {
	var blockTime sql.NullTime
	if !ev.BlockTime.IsZero() {
		blockTime = sql.NullTime{Time: ev.BlockTime, Valid: true}
	}

	query := `
		INSERT INTO transaction_events (
			destination_id, signature, slot, block_time, type, direction, mint,
			sender, recipient, raw_amount, decimals, amount_usd, fee
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (destination_id, signature) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		destination, ev.Signature, int64(ev.Slot), blockTime, string(ev.Type), string(ev.Direction), ev.Mint,
		ev.Sender, ev.Recipient, ev.RawAmount, ev.Decimals, ev.AmountUSD, int64(ev.Fee),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}
	return n == 1, nil
}

// Exists reports whether signature was recorded for destination.
func (r *EventRepo) Exists(ctx context.Context, destination, signature string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM transaction_events WHERE destination_id = $1 AND signature = $2)`,
		destination, signature)
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return exists, nil
}

// Count returns the number of events recorded for destination.
func (r *EventRepo) Count(ctx context.Context, destination string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM transaction_events WHERE destination_id = $1`, destination); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes events recorded before the given time.
func (r *EventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transaction_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return n, nil
}
