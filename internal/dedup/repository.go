package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Executor represents the subset of pgx methods required for dedup operations.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repository remembers processed restock event keys in restock_event_dedup.
// Entries older than ttl are treated as absent.
type Repository struct {
	executor Executor
	ttl      time.Duration
	now      func() time.Time
}

func NewRepository(exec Executor, ttl time.Duration) *Repository {
	return &Repository{
		executor: exec,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Seen reports whether key was remembered within the ttl window.
func (r *Repository) Seen(ctx context.Context, key string) (bool, error) {
	var one int
	err := r.executor.QueryRow(ctx, `
		SELECT 1
		FROM restock_event_dedup
		WHERE dedupe_key=$1 AND seen_at >= $2
	`, key, r.now().Add(-r.ttl)).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select dedupe key: %w", err)
	}
	return true, nil
}

// Remember records key as processed, refreshing its timestamp if it already exists.
func (r *Repository) Remember(ctx context.Context, key string) error {
	_, err := r.executor.Exec(ctx, `
		INSERT INTO restock_event_dedup (dedupe_key, seen_at)
		VALUES ($1, $2)
		ON CONFLICT (dedupe_key)
		DO UPDATE SET seen_at = GREATEST(restock_event_dedup.seen_at, EXCLUDED.seen_at)
	`, key, r.now())
	if err != nil {
		return fmt.Errorf("upsert dedupe key: %w", err)
	}
	return nil
}

// Purge deletes entries that fell out of the ttl window.
func (r *Repository) Purge(ctx context.Context) (int64, error) {
	tag, err := r.executor.Exec(ctx, `DELETE FROM restock_event_dedup WHERE seen_at < $1`, r.now().Add(-r.ttl))
	if err != nil {
		return 0, fmt.Errorf("purge dedupe keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
