package restock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

// Claimer moves candidates to notifying, one conditional update per record.
// A record another pass already holds is skipped, not reported.
type Claimer struct {
	repo         waitlist.Repository
	claimTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

func NewClaimer(repo waitlist.Repository, claimTimeout time.Duration, logger *zap.Logger) *Claimer {
	return &Claimer{
		repo:         repo,
		claimTimeout: claimTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// Claim returns the candidates this pass now owns under token. Store errors on
// individual records are logged and skipped; only when every attempt errored is
// ErrStoreUnavailable returned.
func (c *Claimer) Claim(ctx context.Context, token string, candidates []waitlist.Subscription) ([]waitlist.Subscription, error) {
	now := c.now()
	staleBefore := now.Add(-c.claimTimeout)

	var (
		claimed  []waitlist.Subscription
		failures int
		lastErr  error
	)
	for _, cand := range candidates {
		sub, ok, err := c.repo.Claim(ctx, cand.ID, token, now, staleBefore)
		if err != nil {
			failures++
			lastErr = err
			c.logger.Warn("claim failed", zap.String("subscription_id", cand.ID), zap.Error(err))
			continue
		}
		if !ok {
			c.logger.Debug("claim conflict", zap.String("subscription_id", cand.ID))
			continue
		}
		claimed = append(claimed, sub)
	}

	if failures > 0 && failures == len(candidates) {
		return nil, fmt.Errorf("%w: claim: %v", ErrStoreUnavailable, lastErr)
	}
	return claimed, nil
}
