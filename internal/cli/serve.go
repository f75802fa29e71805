package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/notify"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/observability"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/restock"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the subscribe and inventory webhook endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.OtelInsecure)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// --- store ---
	st, err := openStore(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer st.close()

	// --- mail ---
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
	})
	if err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	composer, err := notify.NewComposer(cfg.ShopDomain)
	if err != nil {
		return fmt.Errorf("mail templates: %w", err)
	}

	// --- AMQP ---
	deps := restock.Deps{
		Auth:     events.NewAuthenticator(cfg.WebhookSecret),
		Store:    st.repo,
		Sender:   sender,
		Composer: composer,
		Logger:   logger,
		Dedupe:   st.dedupeCache(),
	}
	if cfg.RabbitMQURL != "" {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn)
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
		defer pub.Close()
		deps.Publisher = pub
	}

	engine := restock.NewEngine(deps, restock.Options{
		ClaimTimeout: cfg.ClaimTimeout,
		Concurrency:  cfg.DispatchConcurrency,
		Async:        cfg.AsyncDispatch,
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := restock.NewSweeper(st.repo, st.purger(), cfg.ClaimTimeout, cfg.SweepInterval, logger)
	go sweeper.Run(sweepCtx)

	// --- HTTP ---
	h := httpapi.NewHandler(waitlist.NewService(st.repo), engine, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("http server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := engine.Wait(shutdownCtx); err != nil {
		logger.Warn("background dispatch still running; claims will be recovered after the claim timeout", zap.Error(err))
	}
	stopSweep()

	logger.Info("shutdown complete")
	return serveErr
}
