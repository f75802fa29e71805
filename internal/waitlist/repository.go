package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("not found")

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repository is the subscription store. Every mutation is a single-record
// conditional statement; Claim is the only write that races.
type Repository interface {
	Create(ctx context.Context, s Subscription) error
	Get(ctx context.Context, id string) (Subscription, error)
	// FindClaimable returns pending subscriptions matching m, plus notifying ones
	// whose claim is older than staleBefore.
	FindClaimable(ctx context.Context, m Match, staleBefore time.Time) ([]Subscription, error)
	// Claim moves a claimable subscription to notifying under token. ok is false
	// when another pass owns it or it no longer exists.
	Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (s Subscription, ok bool, err error)
	Delete(ctx context.Context, id string) error
	// Release reverts a claim held under token back to pending.
	Release(ctx context.Context, id, token string) (bool, error)
	// ReleaseExpired reverts every claim older than staleBefore.
	ReleaseExpired(ctx context.Context, staleBefore time.Time) (int64, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const subscriptionColumns = `id, email, product_id, variant_id, inventory_item_id, status, claim_token, claimed_at, created_at`

func (r *PostgresRepository) Create(ctx context.Context, s Subscription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO waitlist_subscriptions(id, email, product_id, variant_id, inventory_item_id, status, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Email, s.ProductID, s.VariantID, s.InventoryItemID, string(StatusPending), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Subscription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM waitlist_subscriptions WHERE id=$1`, id)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, fmt.Errorf("select subscription: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) FindClaimable(ctx context.Context, m Match, staleBefore time.Time) ([]Subscription, error) {
	column, err := matchColumn(m.Field)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM waitlist_subscriptions
		WHERE `+column+`=$1
		  AND (status='pending' OR (status='notifying' AND claimed_at < $2))
		ORDER BY created_at
	`, m.Value, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("query claimable: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimable: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (Subscription, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_subscriptions
		SET status='notifying', claim_token=$2, claimed_at=$3
		WHERE id=$1
		  AND (status='pending' OR (status='notifying' AND claimed_at < $4))
		RETURNING `+subscriptionColumns, id, token, now, staleBefore)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, false, nil
		}
		return Subscription{}, false, fmt.Errorf("claim subscription %s: %w", id, err)
	}
	return s, true, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM waitlist_subscriptions WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	return nil
}

func (r *PostgresRepository) Release(ctx context.Context, id, token string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waitlist_subscriptions
		SET status='pending', claim_token='', claimed_at=NULL
		WHERE id=$1 AND status='notifying' AND claim_token=$2
	`, id, token)
	if err != nil {
		return false, fmt.Errorf("release subscription %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) ReleaseExpired(ctx context.Context, staleBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waitlist_subscriptions
		SET status='pending', claim_token='', claimed_at=NULL
		WHERE status='notifying' AND claimed_at < $1
	`, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("release expired claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

func matchColumn(f Field) (string, error) {
	switch f {
	case FieldInventoryItemID, FieldVariantID, FieldProductID:
		return string(f), nil
	}
	return "", fmt.Errorf("unknown match field %q", f)
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var (
		s      Subscription
		status string
	)
	if err := row.Scan(
		&s.ID,
		&s.Email,
		&s.ProductID,
		&s.VariantID,
		&s.InventoryItemID,
		&status,
		&s.ClaimToken,
		&s.ClaimedAt,
		&s.CreatedAt,
	); err != nil {
		return Subscription{}, err
	}
	s.Status = Status(status)
	return s, nil
}
