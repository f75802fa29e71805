package restock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/notify"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

func TestSelectMatch(t *testing.T) {
	tests := map[string]struct {
		ids    events.Identifiers
		want   waitlist.Match
		wantOK bool
	}{
		"inventory item wins": {
			ids:    events.Identifiers{ProductID: "9", VariantID: "11", InventoryItemID: "77"},
			want:   waitlist.Match{Field: waitlist.FieldInventoryItemID, Value: "77"},
			wantOK: true,
		},
		"variant over product": {
			ids:    events.Identifiers{ProductID: "9", VariantID: "11"},
			want:   waitlist.Match{Field: waitlist.FieldVariantID, Value: "11"},
			wantOK: true,
		},
		"product alone": {
			ids:    events.Identifiers{ProductID: "9"},
			want:   waitlist.Match{Field: waitlist.FieldProductID, Value: "9"},
			wantOK: true,
		},
		"nothing": {},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := SelectMatch(tt.ids)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// flakyRepo fails Claim for the listed ids.
type flakyRepo struct {
	waitlist.Repository
	failIDs map[string]bool
}

func (r flakyRepo) Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (waitlist.Subscription, bool, error) {
	if r.failIDs[id] {
		return waitlist.Subscription{}, false, errors.New("connection reset")
	}
	return r.Repository.Claim(ctx, id, token, now, staleBefore)
}

func TestClaimer(t *testing.T) {
	ctx := context.Background()

	t.Run("skips conflicts and per-record errors", func(t *testing.T) {
		mem := waitlist.NewMemoryRepository()
		seed(t, mem,
			waitlist.Subscription{ID: "a", Email: "a@x.com", ProductID: "9"},
			waitlist.Subscription{ID: "b", Email: "b@x.com", ProductID: "9"},
			waitlist.Subscription{ID: "c", Email: "c@x.com", ProductID: "9"},
		)
		candidates, err := mem.FindClaimable(ctx, waitlist.Match{Field: waitlist.FieldProductID, Value: "9"}, time.Now())
		require.NoError(t, err)

		_, ok, err := mem.Claim(ctx, "a", "other", time.Now().UTC(), time.Now().UTC().Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		c := NewClaimer(flakyRepo{Repository: mem, failIDs: map[string]bool{"b": true}}, 5*time.Minute, zap.NewNop())
		claimed, err := c.Claim(ctx, "mine", candidates)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, "c", claimed[0].ID)
		assert.Equal(t, "mine", claimed[0].ClaimToken)
		assert.Equal(t, waitlist.StatusNotifying, claimed[0].Status)
	})

	t.Run("all attempts erroring is a store outage", func(t *testing.T) {
		c := NewClaimer(brokenRepo{err: errors.New("no route to host")}, 5*time.Minute, zap.NewNop())
		_, err := c.Claim(ctx, "mine", []waitlist.Subscription{{ID: "a"}, {ID: "b"}})
		require.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("no candidates", func(t *testing.T) {
		c := NewClaimer(brokenRepo{err: errors.New("unused")}, 5*time.Minute, zap.NewNop())
		claimed, err := c.Claim(ctx, "mine", nil)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})
}

type panicSender struct{}

func (panicSender) Send(ctx context.Context, msg notify.Message) error { panic("boom") }

type brokenComposer struct{}

func (brokenComposer) Compose(sub waitlist.Subscription) (notify.Message, error) {
	return notify.Message{}, errors.New("template missing")
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	composer, err := notify.NewComposer("shop.example.com")
	require.NoError(t, err)

	subs := make([]waitlist.Subscription, 8)
	for i := range subs {
		subs[i] = waitlist.Subscription{ID: fmt.Sprintf("sub-%d", i), Email: fmt.Sprintf("r%d@x.com", i), ProductID: "9"}
	}

	t.Run("bounds concurrent sends", func(t *testing.T) {
		sender := newFakeSender("r3@x.com")
		sender.delay = 15 * time.Millisecond
		d := NewDispatcher(sender, composer, 2, zap.NewNop())

		outcomes := d.Dispatch(ctx, subs)
		require.Len(t, outcomes, len(subs))
		assert.LessOrEqual(t, sender.maxInflight.Load(), int32(2))
		assert.Equal(t, Outcome{Status: OutcomeFailed, Reason: errSMTP.Error()}, outcomes["sub-3"])
		assert.Equal(t, OutcomeSent, outcomes["sub-4"].Status)
		assert.Equal(t, 7, sender.total())
	})

	t.Run("panicking sender fails its subscription", func(t *testing.T) {
		d := NewDispatcher(panicSender{}, composer, 3, zap.NewNop())
		outcomes := d.Dispatch(ctx, subs[:2])
		assert.Equal(t, OutcomeFailed, outcomes["sub-0"].Status)
		assert.Equal(t, OutcomeFailed, outcomes["sub-1"].Status)
	})

	t.Run("compose error fails without sending", func(t *testing.T) {
		sender := newFakeSender()
		d := NewDispatcher(sender, brokenComposer{}, 0, zap.NewNop())
		outcomes := d.Dispatch(ctx, subs[:1])
		assert.Equal(t, Outcome{Status: OutcomeFailed, Reason: "template missing"}, outcomes["sub-0"])
		assert.Zero(t, sender.total())
	})
}

func TestReconciler(t *testing.T) {
	ctx := context.Background()
	repo := waitlist.NewMemoryRepository()
	seed(t, repo,
		waitlist.Subscription{ID: "sent", Email: "a@x.com", ProductID: "9"},
		waitlist.Subscription{ID: "failed", Email: "b@x.com", ProductID: "9"},
		waitlist.Subscription{ID: "missing", Email: "c@x.com", ProductID: "9"},
		waitlist.Subscription{ID: "stolen", Email: "d@x.com", ProductID: "9"},
	)
	now := time.Now().UTC()
	var claimed []waitlist.Subscription
	for _, id := range []string{"sent", "failed", "missing", "stolen"} {
		s, ok, err := repo.Claim(ctx, id, "tok", now, now.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		claimed = append(claimed, s)
	}
	// a later pass took over "stolen" after our claim expired
	_, ok, err := repo.Claim(ctx, "stolen", "newer", now.Add(time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	pub := &fakePublisher{err: errors.New("channel closed")}
	r := NewReconciler(repo, pub, zap.NewNop())
	tally := r.Reconcile(ctx, "tok", events.EventMeta{CorrelationID: "webhook:1"}, claimed, map[string]Outcome{
		"sent":   sent(),
		"failed": failed("bounced"),
		"stolen": failed("timeout"),
	})

	assert.Equal(t, Tally{Sent: 1, Failed: 3}, tally)

	_, err = repo.Get(ctx, "sent")
	assert.ErrorIs(t, err, waitlist.ErrNotFound)

	for _, id := range []string{"failed", "missing"} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, waitlist.StatusPending, got.Status, id)
	}

	stolen, err := repo.Get(ctx, "stolen")
	require.NoError(t, err)
	assert.Equal(t, waitlist.StatusNotifying, stolen.Status)
	assert.Equal(t, "newer", stolen.ClaimToken)

	assert.Equal(t, []string{"sent"}, pub.notified)
	assert.Equal(t, "no outcome recorded", pub.failed["missing"])
}

type countingPurger struct{ calls int }

func (p *countingPurger) Purge(ctx context.Context) (int64, error) {
	p.calls++
	return 1, nil
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	repo := waitlist.NewMemoryRepository()
	seed(t, repo,
		waitlist.Subscription{ID: "old", Email: "a@x.com", ProductID: "9"},
		waitlist.Subscription{ID: "fresh", Email: "b@x.com", ProductID: "9"},
	)
	now := time.Now().UTC()
	_, _, err := repo.Claim(ctx, "old", "t1", now.Add(-time.Hour), now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, _, err = repo.Claim(ctx, "fresh", "t2", now, now.Add(-time.Hour))
	require.NoError(t, err)

	purger := &countingPurger{}
	s := NewSweeper(repo, purger, 5*time.Minute, time.Minute, zap.NewNop())

	s.tick(ctx)
	assert.Equal(t, 1, purger.calls)

	old, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, waitlist.StatusPending, old.Status)

	fresh, err := repo.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, waitlist.StatusNotifying, fresh.Status)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	s := NewSweeper(waitlist.NewMemoryRepository(), nil, time.Minute, 5*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
