package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/dedup"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/restock"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

type dedupeStore interface {
	restock.DedupeCache
	restock.Purger
}

// store bundles the subscription repository with the dedupe cache that fits
// the same backend. dedupe is nil when DEDUPE_TTL is 0.
type store struct {
	repo   waitlist.Repository
	dedupe dedupeStore
	close  func()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger, migrate bool) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if migrate && cfg.RunMigrations {
			if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
				pool.Close()
				return nil, fmt.Errorf("db migrate: %w", err)
			}
		}
		st := &store{repo: waitlist.NewPostgresRepository(pool), close: pool.Close}
		if cfg.DedupeTTL > 0 {
			st.dedupe = dedup.NewRepository(pool, cfg.DedupeTTL)
		}
		return st, nil

	case config.DriverMongo:
		client, err := db.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		repo := waitlist.NewMongoRepository(client.Database(cfg.MongoDB))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		st := &store{repo: repo, close: func() { _ = client.Disconnect(context.Background()) }}
		if cfg.DedupeTTL > 0 {
			st.dedupe = dedup.NewMemoryCache(cfg.DedupeTTL)
		}
		return st, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store; subscriptions are lost on restart")
		st := &store{repo: waitlist.NewMemoryRepository(), close: func() {}}
		if cfg.DedupeTTL > 0 {
			st.dedupe = dedup.NewMemoryCache(cfg.DedupeTTL)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func (s *store) dedupeCache() restock.DedupeCache {
	if s.dedupe == nil {
		return nil
	}
	return s.dedupe
}

func (s *store) purger() restock.Purger {
	if s.dedupe == nil {
		return nil
	}
	return s.dedupe
}
