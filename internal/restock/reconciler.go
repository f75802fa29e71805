package restock

import (
	"context"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

// OutcomePublisher announces reconciled outcomes to other services.
type OutcomePublisher interface {
	PublishNotified(ctx context.Context, meta events.EventMeta, sub waitlist.Subscription) error
	PublishNotifyFailed(ctx context.Context, meta events.EventMeta, sub waitlist.Subscription, reason string) error
}

type Tally struct {
	Sent   int
	Failed int
}

// Reconciler retires notified subscriptions and returns failed ones to pending.
type Reconciler struct {
	repo      waitlist.Repository
	publisher OutcomePublisher
	logger    *zap.Logger
}

// NewReconciler builds a Reconciler. publisher may be nil.
func NewReconciler(repo waitlist.Repository, publisher OutcomePublisher, logger *zap.Logger) *Reconciler {
	return &Reconciler{repo: repo, publisher: publisher, logger: logger}
}

// Reconcile closes out every claimed subscription. A subscription with no
// outcome counts as failed. Store and publish errors are logged per record;
// a claim left behind by a store error is recovered by the claim timeout.
func (r *Reconciler) Reconcile(ctx context.Context, token string, meta events.EventMeta, claimed []waitlist.Subscription, outcomes map[string]Outcome) Tally {
	var t Tally
	for _, sub := range claimed {
		out, ok := outcomes[sub.ID]
		if !ok {
			out = failed("no outcome recorded")
		}

		switch out.Status {
		case OutcomeSent:
			t.Sent++
			if err := r.repo.Delete(ctx, sub.ID); err != nil {
				r.logger.Error("delete notified subscription", zap.String("subscription_id", sub.ID), zap.Error(err))
			}
			if r.publisher != nil {
				if err := r.publisher.PublishNotified(ctx, meta, sub); err != nil {
					r.logger.Warn("publish notified event", zap.String("subscription_id", sub.ID), zap.Error(err))
				}
			}
		default:
			t.Failed++
			released, err := r.repo.Release(ctx, sub.ID, token)
			switch {
			case err != nil:
				r.logger.Error("release failed subscription", zap.String("subscription_id", sub.ID), zap.Error(err))
			case !released:
				r.logger.Warn("claim no longer held", zap.String("subscription_id", sub.ID))
			}
			if r.publisher != nil {
				if err := r.publisher.PublishNotifyFailed(ctx, meta, sub, out.Reason); err != nil {
					r.logger.Warn("publish notify failed event", zap.String("subscription_id", sub.ID), zap.Error(err))
				}
			}
		}
	}
	return t
}
