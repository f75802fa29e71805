package restock

import (
	"context"
	"fmt"
	"time"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

// SelectMatch picks the single identifier an event is matched on:
// inventory item, then variant, then product. ok is false when the event
// carries none, which callers treat as malformed rather than matching everyone.
func SelectMatch(ids events.Identifiers) (m waitlist.Match, ok bool) {
	switch {
	case ids.InventoryItemID != "":
		return waitlist.Match{Field: waitlist.FieldInventoryItemID, Value: ids.InventoryItemID}, true
	case ids.VariantID != "":
		return waitlist.Match{Field: waitlist.FieldVariantID, Value: ids.VariantID}, true
	case ids.ProductID != "":
		return waitlist.Match{Field: waitlist.FieldProductID, Value: ids.ProductID}, true
	}
	return waitlist.Match{}, false
}

// Resolver reads the subscriptions a match satisfies. It never writes.
type Resolver struct {
	repo         waitlist.Repository
	claimTimeout time.Duration
	now          func() time.Time
}

func NewResolver(repo waitlist.Repository, claimTimeout time.Duration) *Resolver {
	return &Resolver{
		repo:         repo,
		claimTimeout: claimTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns pending subscriptions for m, plus notifying ones whose claim
// has outlived the claim timeout.
func (r *Resolver) Resolve(ctx context.Context, m waitlist.Match) ([]waitlist.Subscription, error) {
	subs, err := r.repo.FindClaimable(ctx, m, r.now().Add(-r.claimTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrStoreUnavailable, m, err)
	}
	return subs, nil
}
