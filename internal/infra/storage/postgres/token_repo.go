package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
	"github.com/cenetex/cosyworld-sub000/internal/infra/storage"
)

// TokenRepo implements storage.TokenRepository using PostgreSQL.
type TokenRepo struct {
	db *DB
}

// NewTokenRepo creates a new PostgreSQL token repository.
func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

type tokenRow struct {
	ID                 string       `db:"id"`
	DestinationID      string       `db:"destination_id"`
	Scope              string       `db:"scope"`
	TokenAddress       string       `db:"token_address"`
	Platform           string       `db:"platform"`
	Active             bool         `db:"active"`
	LastSeenSlot       int64        `db:"last_seen_slot"`
	LastSeenSignature  string       `db:"last_seen_signature"`
	LastSeenAt         sql.NullTime `db:"last_seen_at"`
	ConsecutiveErrors  int          `db:"consecutive_errors"`
	LastPriceUSD       float64      `db:"last_price_usd"`
	LastMarketCapUSD   float64      `db:"last_market_cap_usd"`
	Preferences        []byte       `db:"preferences"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
	DeactivatedAt      sql.NullTime `db:"deactivated_at"`
	DeactivationReason string       `db:"deactivation_reason"`
}

const tokenColumns = `id, destination_id, scope, token_address, platform, active,
	last_seen_slot, last_seen_signature, last_seen_at, consecutive_errors,
	last_price_usd, last_market_cap_usd, preferences, created_at, updated_at,
	deactivated_at, deactivation_reason`

func (r tokenRow) toDomain() (*domain.TrackedToken, error) {
	t := &domain.TrackedToken{
		ID:                 r.ID,
		DestinationID:      r.DestinationID,
		Scope:              domain.Scope(r.Scope),
		TokenAddress:       r.TokenAddress,
		Platform:           domain.Platform(r.Platform),
		Active:             r.Active,
		ConsecutiveErrors:  r.ConsecutiveErrors,
		LastPriceUSD:       r.LastPriceUSD,
		LastMarketCapUSD:   r.LastMarketCapUSD,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		DeactivationReason: r.DeactivationReason,
		Cursor: domain.Cursor{
			LastSeenSlot:      uint64(r.LastSeenSlot),
			LastSeenSignature: r.LastSeenSignature,
		},
	}
	if r.LastSeenAt.Valid {
		t.Cursor.LastSeenAt = r.LastSeenAt.Time
	}
	if r.DeactivatedAt.Valid {
		at := r.DeactivatedAt.Time
		t.DeactivatedAt = &at
	}
	if len(r.Preferences) > 0 {
		if err := json.Unmarshal(r.Preferences, &t.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences of %s: %w", r.ID, err)
		}
	}
	return t, nil
}

// Subscribe creates a fresh active subscription.
func (r *TokenRepo) Subscribe(ctx context.Context, token *domain.TrackedToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	prefs, err := json.Marshal(token.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	query := `
		INSERT INTO tracked_tokens (id, destination_id, scope, token_address, platform, active, preferences)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING created_at, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		token.ID, token.DestinationID, string(token.Scope), token.TokenAddress, string(token.Platform), prefs,
	)
	if err := row.Scan(&token.CreatedAt, &token.UpdatedAt); err != nil {
		if err = mapError(err); errors.Is(err, storage.ErrDuplicate) {
			return storage.ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	token.Active = true
	token.ConsecutiveErrors = 0
	token.DeactivatedAt = nil
	token.DeactivationReason = ""
	return nil
}

// Unsubscribe soft-deletes the active subscriptions for (destination, token).
func (r *TokenRepo) Unsubscribe(ctx context.Context, destination, token string) (*domain.TrackedToken, error) {
	var removed *domain.TrackedToken
	err := r.db.InTx(ctx, func(tx *sqlx.Tx) error {
		var rows []tokenRow
		query := `
			UPDATE tracked_tokens
			SET active = FALSE, deactivated_at = NOW(), deactivation_reason = 'unsubscribed', updated_at = NOW()
			WHERE destination_id = $1 AND token_address = $2 AND active
			RETURNING ` + tokenColumns
		if err := tx.SelectContext(ctx, &rows, query, destination, token); err != nil {
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}
		if len(rows) == 0 {
			return storage.ErrNotFound
		}
		t, err := rows[0].toDomain()
		if err != nil {
			return err
		}
		removed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Get retrieves the most relevant subscription for (destination, token).
func (r *TokenRepo) Get(ctx context.Context, destination, token string) (*domain.TrackedToken, error) {
	var row tokenRow
	query := `SELECT ` + tokenColumns + `
		FROM tracked_tokens
		WHERE destination_id = $1 AND token_address = $2
		ORDER BY active DESC, created_at DESC
		LIMIT 1`
	err := r.db.GetContext(ctx, &row, query, destination, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return row.toDomain()
}

// ListByDestination lists active subscriptions of a destination.
func (r *TokenRepo) ListByDestination(ctx context.Context, destination string) ([]*domain.TrackedToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM tracked_tokens
		WHERE destination_id = $1 AND active
		ORDER BY created_at`
	return r.selectTokens(ctx, query, destination)
}

// ListActive lists every active subscription.
func (r *TokenRepo) ListActive(ctx context.Context) ([]*domain.TrackedToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM tracked_tokens
		WHERE active
		ORDER BY created_at`
	return r.selectTokens(ctx, query)
}

func (r *TokenRepo) selectTokens(ctx context.Context, query string, args ...any) ([]*domain.TrackedToken, error) {
	var rows []tokenRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	out := make([]*domain.TrackedToken, 0, len(rows))
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateCursor merges cursor into the stored one. GREATEST keeps every field
// monotonic even with concurrent writers; the signature follows the slot.
func (r *TokenRepo) UpdateCursor(ctx context.Context, id string, cursor domain.Cursor) (domain.Cursor, error) {
	var lastSeenAt sql.NullTime
	if !cursor.LastSeenAt.IsZero() {
		lastSeenAt = sql.NullTime{Time: cursor.LastSeenAt, Valid: true}
	}

	query := `
		UPDATE tracked_tokens SET
			last_seen_signature = CASE
				WHEN $2 > last_seen_slot THEN $3
				WHEN $2 = last_seen_slot AND last_seen_signature = '' THEN $3
				ELSE last_seen_signature
			END,
			last_seen_slot = GREATEST(last_seen_slot, $2),
			last_seen_at = GREATEST(last_seen_at, $4),
			updated_at = NOW()
		WHERE id = $1
		RETURNING last_seen_slot, last_seen_signature, last_seen_at
	`
	var (
		slot int64
		sig  string
		at   sql.NullTime
	)
	err := r.db.QueryRowxContext(ctx, query, id, int64(cursor.LastSeenSlot), cursor.LastSeenSignature, lastSeenAt).
		Scan(&slot, &sig, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cursor{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("failed to update cursor: %w", err)
	}

	out := domain.Cursor{LastSeenSlot: uint64(slot), LastSeenSignature: sig}
	if at.Valid {
		out.LastSeenAt = at.Time
	}
	return out, nil
}

// UpdateErrorCount sets the consecutive error counter.
func (r *TokenRepo) UpdateErrorCount(ctx context.Context, id string, count int) error {
	return r.exec(ctx, "update error count",
		`UPDATE tracked_tokens SET consecutive_errors = $2, updated_at = NOW() WHERE id = $1`,
		id, count)
}

// UpdateSnapshot records the last seen price and market cap.
func (r *TokenRepo) UpdateSnapshot(ctx context.Context, id string, priceUSD, marketCapUSD float64) error {
	return r.exec(ctx, "update snapshot",
		`UPDATE tracked_tokens SET last_price_usd = $2, last_market_cap_usd = $3, updated_at = NOW() WHERE id = $1`,
		id, priceUSD, marketCapUSD)
}

// Deactivate transitions an active subscription to inactive exactly once.
func (r *TokenRepo) Deactivate(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tracked_tokens
		SET active = FALSE, deactivated_at = $3, deactivation_reason = $2, updated_at = $3
		WHERE id = $1 AND active`,
		id, reason, at)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM tracked_tokens WHERE id = $1)`, id); err != nil {
			return false, fmt.Errorf("failed to deactivate: %w", err)
		}
		if !exists {
			return false, storage.ErrNotFound
		}
	}
	return n == 1, nil
}

func (r *TokenRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
