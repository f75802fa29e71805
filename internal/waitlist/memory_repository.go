package waitlist

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps subscriptions in process memory. It gives the same
// per-record atomicity as the database stores and backs STORE_DRIVER=memory.
type MemoryRepository struct {
	mu   sync.Mutex
	subs map[string]Subscription
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[string]Subscription)}
}

func (r *MemoryRepository) Create(ctx context.Context, s Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Status = StatusPending
	s.ClaimToken = ""
	s.ClaimedAt = nil
	r.subs[s.ID] = s
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	return copySubscription(s), nil
}

func (r *MemoryRepository) FindClaimable(ctx context.Context, m Match, staleBefore time.Time) ([]Subscription, error) {
	if _, err := matchColumn(m.Field); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Subscription
	for _, s := range r.subs {
		if m.matches(s) && claimable(s, staleBefore) {
			out = append(out, copySubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) Claim(ctx context.Context, id, token string, now, staleBefore time.Time) (Subscription, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok || !claimable(s, staleBefore) {
		return Subscription{}, false, nil
	}
	claimedAt := now
	s.Status = StatusNotifying
	s.ClaimToken = token
	s.ClaimedAt = &claimedAt
	r.subs[id] = s
	return copySubscription(s), true, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	return nil
}

func (r *MemoryRepository) Release(ctx context.Context, id, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok || s.Status != StatusNotifying || s.ClaimToken != token {
		return false, nil
	}
	r.subs[id] = released(s)
	return true, nil
}

func (r *MemoryRepository) ReleaseExpired(ctx context.Context, staleBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.subs {
		if s.Status == StatusNotifying && s.ClaimedAt != nil && s.ClaimedAt.Before(staleBefore) {
			r.subs[id] = released(s)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored subscriptions.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func released(s Subscription) Subscription {
	s.Status = StatusPending
	s.ClaimToken = ""
	s.ClaimedAt = nil
	return s
}

func copySubscription(s Subscription) Subscription {
	if s.ClaimedAt != nil {
		t := *s.ClaimedAt
		s.ClaimedAt = &t
	}
	return s
}
