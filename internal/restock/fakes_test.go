package restock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/notify"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

const testSecret = "shpss_test_secret"

var errSMTP = errors.New("550 mailbox unavailable")

// fakeSender records deliveries per recipient and fails for listed recipients.
type fakeSender struct {
	mu      sync.Mutex
	sent    map[string]int
	failFor map[string]bool
	delay   time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeSender(failFor ...string) *fakeSender {
	f := &fakeSender{sent: map[string]int{}, failFor: map[string]bool{}}
	for _, to := range failFor {
		f.failFor[to] = true
	}
	return f
}

func (f *fakeSender) Send(ctx context.Context, msg notify.Message) error {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.maxInflight.Load()
		if n <= peak || f.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.To] {
		return errSMTP
	}
	f.sent[msg.To]++
	return nil
}

func (f *fakeSender) count(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[to]
}

func (f *fakeSender) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.sent {
		n += c
	}
	return n
}

type fakePublisher struct {
	mu       sync.Mutex
	notified []string
	failed   map[string]string
	err      error
}

func (p *fakePublisher) PublishNotified(ctx context.Context, meta events.EventMeta, sub waitlist.Subscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notified = append(p.notified, sub.ID)
	return p.err
}

func (p *fakePublisher) PublishNotifyFailed(ctx context.Context, meta events.EventMeta, sub waitlist.Subscription, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed == nil {
		p.failed = map[string]string{}
	}
	p.failed[sub.ID] = reason
	return p.err
}

// countingRepo counts every store call that reads or writes subscriptions.
type countingRepo struct {
	waitlist.Repository
	calls atomic.Int32
}

func (r *countingRepo) FindClaimable(ctx context.Context, m waitlist.Match, staleBefore time.Time) ([]waitlist.Subscription, error) {
	r.calls.Add(1)
	return r.Repository.FindClaimable(ctx, m, staleBefore)
}

func (r *countingRepo) Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (waitlist.Subscription, bool, error) {
	r.calls.Add(1)
	return r.Repository.Claim(ctx, id, token, now, staleBefore)
}

// brokenRepo fails every call.
type brokenRepo struct {
	waitlist.Repository
	err error
}

func (r brokenRepo) FindClaimable(ctx context.Context, m waitlist.Match, staleBefore time.Time) ([]waitlist.Subscription, error) {
	return nil, r.err
}

func (r brokenRepo) Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (waitlist.Subscription, bool, error) {
	return waitlist.Subscription{}, false, r.err
}

func seed(t *testing.T, repo waitlist.Repository, subs ...waitlist.Subscription) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	for i, s := range subs {
		s.Status = waitlist.StatusPending
		s.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(context.Background(), s))
	}
}

func signed(body string) Delivery {
	return Delivery{
		Body:      []byte(body),
		Signature: events.Sign([]byte(body), testSecret),
		Topic:     "inventory_levels/update",
	}
}
