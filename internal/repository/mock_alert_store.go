package repository

import (
	"context"
	"sync"
	"time"

	"github.com/notifyhub/alert-relay/internal/domain"
)

// MockAlertStore is a hand-written, in-memory implementation of AlertStore
// and LeaseStore used in unit tests. No mock-generation library needed.
type MockAlertStore struct {
	mu       sync.Mutex
	queues   map[string][]string // head at index 0, tail at the end
	payloads map[string]*domain.Alert
	leases   map[string]mockLease
	pushed   chan struct{} // closed and replaced on every push

	// Optional error overrides, set in tests to simulate failure paths.
	EnqueueErr error
	DequeueErr error
	LoadErr    error
	DeleteErr  error
	ListErr    error

	// LoadHook, when set, runs before every Load; tests use it to panic or
	// to observe call counts.
	LoadHook func(id string)
}

func NewMockAlertStore() *MockAlertStore {
	return &MockAlertStore{
		queues:   make(map[string][]string),
		payloads: make(map[string]*domain.Alert),
		leases:   make(map[string]mockLease),
		pushed:   make(chan struct{}),
	}
}

func (m *MockAlertStore) Enqueue(_ context.Context, a *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	clone := *a
	m.payloads[a.ID] = &clone
	m.pushLocked(a.RecipientID, a.ID)
	return nil
}

// PushID pushes an id without a payload, simulating a store inconsistency.
func (m *MockAlertStore) PushID(recipientID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushLocked(recipientID, id)
}

// PutPayload writes a payload without queueing its id.
func (m *MockAlertStore) PutPayload(a *domain.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *a
	m.payloads[a.ID] = &clone
}

func (m *MockAlertStore) pushLocked(recipientID, id string) {
	m.queues[recipientID] = append([]string{id}, m.queues[recipientID]...)
	close(m.pushed)
	m.pushed = make(chan struct{})
}

func (m *MockAlertStore) DequeueBlocking(ctx context.Context, recipientID string, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if m.DequeueErr != nil {
			err := m.DequeueErr
			m.mu.Unlock()
			return "", false, err
		}
		q := m.queues[recipientID]
		if n := len(q); n > 0 {
			id := q[n-1]
			if n == 1 {
				delete(m.queues, recipientID)
			} else {
				m.queues[recipientID] = q[:n-1]
			}
			m.mu.Unlock()
			return id, true, nil
		}
		wait := m.pushed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return "", false, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

func (m *MockAlertStore) Load(_ context.Context, id string) (*domain.Alert, error) {
	m.mu.Lock()
	hook, loadErr := m.LoadHook, m.LoadErr
	m.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if loadErr != nil {
		return nil, loadErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.payloads[id]
	if !ok {
		return nil, domain.ErrAlertNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *MockAlertStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.payloads, id)
	return nil
}

func (m *MockAlertStore) ListRecipients(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]string, 0, len(m.queues))
	for r, q := range m.queues {
		if len(q) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockAlertStore) QueueLength(_ context.Context, recipientID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[recipientID])), nil
}

// HasPayload reports whether a payload is still stored for id.
func (m *MockAlertStore) HasPayload(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.payloads[id]
	return ok
}

// SetErr updates an error override under the store lock so tests can flip
// failure modes while workers are running.
func (m *MockAlertStore) SetErr(target *error, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*target = err
}

type mockLease struct {
	owner   string
	expires time.Time
}

// leaseLocked returns the unexpired lease on recipientID, if any.
func (m *MockAlertStore) leaseLocked(recipientID string) (mockLease, bool) {
	l, ok := m.leases[recipientID]
	if ok && !time.Now().Before(l.expires) {
		delete(m.leases, recipientID)
		return mockLease{}, false
	}
	return l, ok
}

func (m *MockAlertStore) AcquireLease(_ context.Context, recipientID, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.leaseLocked(recipientID); held {
		return false, nil
	}
	m.leases[recipientID] = mockLease{owner: owner, expires: time.Now().Add(ttl)}
	return true, nil
}

func (m *MockAlertStore) RefreshLease(_ context.Context, recipientID, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, held := m.leaseLocked(recipientID)
	if !held || l.owner != owner {
		return false, nil
	}
	m.leases[recipientID] = mockLease{owner: owner, expires: time.Now().Add(ttl)}
	return true, nil
}

func (m *MockAlertStore) ReleaseLease(_ context.Context, recipientID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, held := m.leaseLocked(recipientID); held && l.owner == owner {
		delete(m.leases, recipientID)
	}
	return nil
}

// ExpireLease drops recipientID's lease as if its TTL had run out.
func (m *MockAlertStore) ExpireLease(recipientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, recipientID)
}

// LeaseOwner returns the current holder of recipientID's lease, or "".
func (m *MockAlertStore) LeaseOwner(recipientID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, _ := m.leaseLocked(recipientID)
	return l.owner
}

var (
	_ AlertStore = (*MockAlertStore)(nil)
	_ LeaseStore = (*MockAlertStore)(nil)
)
