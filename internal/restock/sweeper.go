package restock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

// Purger drops expired dedupe entries.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Sweeper periodically returns abandoned claims to pending. Matching already
// treats expired claims as claimable, so a stopped sweeper only delays retries
// until the next matching event.
type Sweeper struct {
	repo         waitlist.Repository
	purger       Purger
	claimTimeout time.Duration
	interval     time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewSweeper builds a Sweeper. purger may be nil.
func NewSweeper(repo waitlist.Repository, purger Purger, claimTimeout, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		repo:         repo,
		purger:       purger,
		claimTimeout: claimTimeout,
		interval:     interval,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With(zap.String("component", "sweeper")),
	}
}

// Sweep reverts every claim older than the claim timeout.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	return s.repo.ReleaseExpired(ctx, s.now().Add(-s.claimTimeout))
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.Sweep(ctx)
	switch {
	case err != nil:
		s.logger.Error("release expired claims", zap.Error(err))
	case n > 0:
		s.logger.Info("released expired claims", zap.Int64("count", n))
	}

	if s.purger == nil {
		return
	}
	if purged, err := s.purger.Purge(ctx); err != nil {
		s.logger.Warn("purge dedupe entries", zap.Error(err))
	} else if purged > 0 {
		s.logger.Debug("purged dedupe entries", zap.Int64("count", purged))
	}
}
