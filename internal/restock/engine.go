package restock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

const tracerName = "github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/restock"

// Verifier authenticates a raw delivery body.
type Verifier interface {
	Verify(body []byte, signature string) error
}

// DedupeCache remembers restock events that were fully processed.
type DedupeCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// Delivery is one inbound inventory webhook exactly as received.
type Delivery struct {
	Body      []byte
	Signature string
	WebhookID string
	Topic     string
}

// Report summarizes one pass. Sent and Failed stay zero when dispatch runs in
// the background.
type Report struct {
	DedupeKey  string
	Match      string
	Actionable bool
	Duplicate  bool
	Matched    int
	Claimed    int
	Sent       int
	Failed     int
	Async      bool
}

type Deps struct {
	Auth     Verifier
	Store    waitlist.Repository
	Sender   Sender
	Composer Composer
	Logger   *zap.Logger
	// Dedupe and Publisher are optional.
	Dedupe    DedupeCache
	Publisher OutcomePublisher
}

type Options struct {
	ClaimTimeout time.Duration
	Concurrency  int
	// Async acknowledges once claims are taken and dispatches in the background.
	Async bool
}

// Engine runs the reconciliation pass for inbound restock events.
type Engine struct {
	auth       Verifier
	dedupe     DedupeCache
	resolver   *Resolver
	claimer    *Claimer
	dispatcher *Dispatcher
	reconciler *Reconciler
	async      bool
	logger     *zap.Logger
	tracer     trace.Tracer
	newToken   func() string

	inflight sync.WaitGroup
}

func NewEngine(d Deps, opts Options) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "restock"))

	return &Engine{
		auth:       d.Auth,
		dedupe:     d.Dedupe,
		resolver:   NewResolver(d.Store, opts.ClaimTimeout),
		claimer:    NewClaimer(d.Store, opts.ClaimTimeout, logger),
		dispatcher: NewDispatcher(d.Sender, d.Composer, opts.Concurrency, logger),
		reconciler: NewReconciler(d.Store, d.Publisher, logger),
		async:      opts.Async,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		newToken:   uuid.NewString,
	}
}

// Handle authenticates, normalizes and reconciles one delivery. Authentication
// failures return events.ErrUnauthorized before anything is parsed or queried;
// bad payloads return events.ErrMalformedEvent; store outages return
// ErrStoreUnavailable. Per-recipient failures never surface as errors.
func (e *Engine) Handle(ctx context.Context, d Delivery) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "restock.handle")
	defer span.End()

	if err := e.auth.Verify(d.Body, d.Signature); err != nil {
		span.SetStatus(codes.Error, "unauthorized")
		return Report{}, err
	}

	ev, err := events.Normalize(d.Body, d.WebhookID)
	if err != nil {
		span.SetStatus(codes.Error, "malformed event")
		return Report{}, err
	}
	report := Report{DedupeKey: ev.DedupeKey, Actionable: ev.Actionable()}
	span.SetAttributes(
		attribute.String("restock.dedupe_key", ev.DedupeKey),
		attribute.String("restock.topic", d.Topic),
		attribute.Int("restock.available", ev.Available),
	)
	if !report.Actionable {
		e.logger.Debug("restock event not actionable",
			zap.String("dedupe_key", ev.DedupeKey),
			zap.Int("available", ev.Available),
		)
		return report, nil
	}

	match, ok := SelectMatch(ev.Identifiers)
	if !ok {
		return report, fmt.Errorf("%w: no usable identifier", events.ErrMalformedEvent)
	}
	report.Match = match.String()
	span.SetAttributes(attribute.String("restock.match", report.Match))

	if e.seen(ctx, ev.DedupeKey) {
		report.Duplicate = true
		e.logPass(report, d.Topic)
		return report, nil
	}

	candidates, err := e.resolver.Resolve(ctx, match)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve")
		return report, err
	}
	report.Matched = len(candidates)

	token := e.newToken()
	claimed, err := e.claimer.Claim(ctx, token, candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim")
		return report, err
	}
	report.Claimed = len(claimed)
	span.SetAttributes(
		attribute.Int("restock.matched", report.Matched),
		attribute.Int("restock.claimed", report.Claimed),
	)

	meta := events.EventMeta{CorrelationID: ev.DedupeKey, CausationID: d.WebhookID}
	// Sends and reconciliation outlive the caller; an abandoned send is
	// recovered by the claim timeout, never by cancellation.
	settleCtx := context.WithoutCancel(ctx)

	if e.async && len(claimed) > 0 {
		report.Async = true
		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()
			final := report
			t := e.settle(settleCtx, token, meta, claimed)
			final.Sent, final.Failed = t.Sent, t.Failed
			e.finish(settleCtx, final, d.Topic)
		}()
		return report, nil
	}

	t := e.settle(settleCtx, token, meta, claimed)
	report.Sent, report.Failed = t.Sent, t.Failed
	e.finish(settleCtx, report, d.Topic)
	return report, nil
}

// Wait blocks until background dispatches finish or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) settle(ctx context.Context, token string, meta events.EventMeta, claimed []waitlist.Subscription) Tally {
	if len(claimed) == 0 {
		return Tally{}
	}
	ctx, span := e.tracer.Start(ctx, "restock.settle", trace.WithAttributes(
		attribute.Int("restock.claimed", len(claimed)),
	))
	defer span.End()

	outcomes := e.dispatcher.Dispatch(ctx, claimed)
	t := e.reconciler.Reconcile(ctx, token, meta, claimed, outcomes)
	span.SetAttributes(
		attribute.Int("restock.sent", t.Sent),
		attribute.Int("restock.failed", t.Failed),
	)
	return t
}

// finish remembers a pass only when it claimed and sent every subscription it
// matched. A pass that lost claims to a concurrent pass cannot vouch for that
// pass's sends, so a redelivery must still be able to retry them.
func (e *Engine) finish(ctx context.Context, r Report, topic string) {
	if e.dedupe != nil && r.Claimed > 0 && r.Claimed == r.Matched && r.Failed == 0 {
		if err := e.dedupe.Remember(ctx, r.DedupeKey); err != nil {
			e.logger.Warn("remember restock event", zap.String("dedupe_key", r.DedupeKey), zap.Error(err))
		}
	}
	e.logPass(r, topic)
}

// seen treats a cache error as a miss; claims keep a redelivery harmless.
func (e *Engine) seen(ctx context.Context, key string) bool {
	if e.dedupe == nil {
		return false
	}
	seen, err := e.dedupe.Seen(ctx, key)
	if err != nil {
		e.logger.Warn("dedupe lookup failed", zap.String("dedupe_key", key), zap.Error(err))
		return false
	}
	return seen
}

func (e *Engine) logPass(r Report, topic string) {
	e.logger.Info("restock event reconciled",
		zap.String("dedupe_key", r.DedupeKey),
		zap.String("topic", topic),
		zap.String("match", r.Match),
		zap.Bool("duplicate", r.Duplicate),
		zap.Int("matched", r.Matched),
		zap.Int("claimed", r.Claimed),
		zap.Int("sent", r.Sent),
		zap.Int("failed", r.Failed),
	)
}
