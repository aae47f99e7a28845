package repository

import (
	"context"
	"time"

	"github.com/notifyhub/alert-relay/internal/domain"
)

// Key layout in the shared store.
const (
	QueueKeyPrefix = "queue:"
	AlertKeyPrefix = "alert:"
	LeaseKeyPrefix = "lease:"
)

func QueueKey(recipientID string) string { return QueueKeyPrefix + recipientID }
func AlertKey(alertID string) string     { return AlertKeyPrefix + alertID }
func LeaseKey(recipientID string) string { return LeaseKeyPrefix + recipientID }

// AlertStore is the durable per-recipient queue the pipeline runs on.
// The Redis implementation is in redis_alert_store.go.
// Tests use a hand-written mock (mock_alert_store.go).
//
// Ids are pushed at the head and popped from the tail, so each recipient's
// queue is strictly FIFO in Enqueue order.
type AlertStore interface {
	// Enqueue stores the serialized alert and pushes its id onto the
	// recipient's queue. The payload is visible before the id.
	Enqueue(ctx context.Context, a *domain.Alert) error

	// DequeueBlocking pops the oldest id, waiting up to timeout.
	// ok is false when the wait timed out.
	DequeueBlocking(ctx context.Context, recipientID string, timeout time.Duration) (id string, ok bool, err error)

	// Load returns domain.ErrAlertNotFound when no payload exists for id.
	Load(ctx context.Context, id string) (*domain.Alert, error)

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error

	// ListRecipients returns every recipient that currently has a non-empty queue.
	ListRecipients(ctx context.Context) ([]string, error)

	QueueLength(ctx context.Context, recipientID string) (int64, error)
}

// LeaseStore provides per-recipient ownership that holds across processes.
type LeaseStore interface {
	AcquireLease(ctx context.Context, recipientID, owner string, ttl time.Duration) (bool, error)
	RefreshLease(ctx context.Context, recipientID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, recipientID, owner string) error
}
