package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/alert-relay/internal/repository"
)

// Registry records which recipients currently have a consumer. Claims are an
// atomic compare-and-set, so at most one consumer per recipient runs in this
// process.
//
// A registry built with NewLeasedRegistry also takes a Redis lease for every
// claim, extending the guarantee to every process sharing the store.
type Registry struct {
	mu     sync.Mutex
	active map[string]struct{}

	leases   repository.LeaseStore
	owner    string
	leaseTTL time.Duration
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]struct{})}
}

// NewLeasedRegistry returns a registry that also holds a lease of ttl for
// every active recipient. The owner token is unique per registry.
func NewLeasedRegistry(leases repository.LeaseStore, ttl time.Duration) *Registry {
	r := NewRegistry()
	r.leases = leases
	r.owner = uuid.New().String()
	r.leaseTTL = ttl
	return r
}

// TryAcquire claims recipientID. It returns false when a consumer already
// holds the claim here or, for leased registries, in another process.
func (r *Registry) TryAcquire(ctx context.Context, recipientID string) (bool, error) {
	r.mu.Lock()
	if _, busy := r.active[recipientID]; busy {
		r.mu.Unlock()
		return false, nil
	}
	r.active[recipientID] = struct{}{}
	r.mu.Unlock()

	if r.leases == nil {
		return true, nil
	}

	ok, err := r.leases.AcquireLease(ctx, recipientID, r.owner, r.leaseTTL)
	if err != nil || !ok {
		r.drop(recipientID)
		return false, err
	}
	return true, nil
}

// Refresh extends the lease for recipientID. Without leases it reports
// whether the local claim is still held.
func (r *Registry) Refresh(ctx context.Context, recipientID string) (bool, error) {
	if r.leases == nil {
		return r.IsActive(recipientID), nil
	}
	return r.leases.RefreshLease(ctx, recipientID, r.owner, r.leaseTTL)
}

// RefreshEvery is how often a consumer must refresh its lease: a third of
// the TTL, or zero when the registry is process-local.
func (r *Registry) RefreshEvery() time.Duration {
	if r.leases == nil {
		return 0
	}
	return r.leaseTTL / 3
}

// Release gives up the claim on recipientID. The lease is released with ctx;
// the local claim always is.
func (r *Registry) Release(ctx context.Context, recipientID string) error {
	r.drop(recipientID)
	if r.leases == nil {
		return nil
	}
	return r.leases.ReleaseLease(ctx, recipientID, r.owner)
}

func (r *Registry) drop(recipientID string) {
	r.mu.Lock()
	delete(r.active, recipientID)
	r.mu.Unlock()
}

func (r *Registry) IsActive(recipientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[recipientID]
	return ok
}

// Active returns the claimed recipients in sorted order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.active))
	for id := range r.active {
		out = append(out, id)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
