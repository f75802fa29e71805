package restock

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/notify"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Composer renders the message for a subscription.
type Composer interface {
	Compose(sub waitlist.Subscription) (notify.Message, error)
}

type OutcomeStatus string

const (
	OutcomeSent   OutcomeStatus = "sent"
	OutcomeFailed OutcomeStatus = "failed"
)

type Outcome struct {
	Status OutcomeStatus
	Reason string
}

func sent() Outcome { return Outcome{Status: OutcomeSent} }

func failed(reason string) Outcome { return Outcome{Status: OutcomeFailed, Reason: reason} }

// Dispatcher sends one message per claimed subscription with at most limit
// sends in flight.
type Dispatcher struct {
	sender   Sender
	composer Composer
	limit    int
	logger   *zap.Logger
}

func NewDispatcher(sender Sender, composer Composer, limit int, logger *zap.Logger) *Dispatcher {
	if limit < 1 {
		limit = 1
	}
	return &Dispatcher{sender: sender, composer: composer, limit: limit, logger: logger}
}

// Dispatch returns one outcome per subscription id. A failed send only marks
// its own subscription.
func (d *Dispatcher) Dispatch(ctx context.Context, subs []waitlist.Subscription) map[string]Outcome {
	var (
		mu       sync.Mutex
		outcomes = make(map[string]Outcome, len(subs))
	)
	record := func(id string, o Outcome) {
		mu.Lock()
		outcomes[id] = o
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(d.limit)
	for _, sub := range subs {
		g.Go(func() error {
			record(sub.ID, d.send(ctx, sub))
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *Dispatcher) send(ctx context.Context, sub waitlist.Subscription) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("send panicked", zap.String("subscription_id", sub.ID), zap.Any("panic", r))
			out = failed("send panicked")
		}
	}()

	msg, err := d.composer.Compose(sub)
	if err != nil {
		d.logger.Warn("compose failed", zap.String("subscription_id", sub.ID), zap.Error(err))
		return failed(err.Error())
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Warn("send failed", zap.String("subscription_id", sub.ID), zap.Error(err))
		return failed(err.Error())
	}
	return sent()
}
