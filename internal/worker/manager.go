package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/alert-relay/internal/domain"
	"github.com/notifyhub/alert-relay/internal/repository"
)

// ManagerConfig tunes the scan loop and every consumer it spawns.
type ManagerConfig struct {
	ScanInterval     time.Duration
	ScanErrorBackoff time.Duration
	Consumer         ConsumerConfig
}

// Manager periodically looks for recipients with queued alerts and makes sure
// each has exactly one consumer. Recipients that already have one are left
// alone, even if their queue is currently empty.
type Manager struct {
	store  repository.AlertStore
	hub    Deliverer
	pacer  Pacer
	reg    *Registry
	cfg    ManagerConfig
	logger *zap.Logger
	hooks  MetricHooks

	wg sync.WaitGroup
}

func NewManager(
	store repository.AlertStore,
	hub Deliverer,
	pacer Pacer,
	reg *Registry,
	cfg ManagerConfig,
	logger *zap.Logger,
	hooks MetricHooks,
) *Manager {
	return &Manager{
		store:  store,
		hub:    hub,
		pacer:  pacer,
		reg:    reg,
		cfg:    cfg,
		logger: logger,
		hooks:  hooks,
	}
}

// Run scans immediately and then every ScanInterval until ctx is cancelled.
// A failed scan delays the next one by ScanErrorBackoff instead.
// Consumers inherit ctx, so cancelling it stops them too; call Wait after.
func (m *Manager) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	m.logger.Info("worker manager started", zap.Duration("interval", m.cfg.ScanInterval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("worker manager stopping", zap.Int("active", m.reg.Len()))
			return
		case <-timer.C:
		}

		next := m.cfg.ScanInterval
		if _, err := m.Scan(ctx); err != nil {
			m.logger.Error("queue scan failed", zap.Error(err))
			next = m.cfg.ScanErrorBackoff
		}
		timer.Reset(next)
	}
}

// Scan runs one pass and returns how many consumers it spawned.
func (m *Manager) Scan(ctx context.Context) (int, error) {
	recipients, err := m.store.ListRecipients(ctx)
	if err != nil {
		return 0, err
	}

	spawned := 0
	for _, rid := range recipients {
		if m.reg.IsActive(rid) {
			continue
		}
		ok, err := m.reg.TryAcquire(ctx, rid)
		if err != nil {
			m.logger.Warn("claim recipient failed",
				zap.String("recipient_id", domain.ShortID(rid)), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		m.spawn(ctx, rid)
		spawned++
	}

	if spawned > 0 {
		m.logger.Info("spawned consumers", zap.Int("count", spawned), zap.Int("active", m.reg.Len()))
	}
	return spawned, nil
}

func (m *Manager) spawn(ctx context.Context, recipientID string) {
	c := NewConsumer(
		recipientID, m.store, m.hub, m.pacer, m.reg,
		m.cfg.Consumer,
		m.logger.With(zap.String("recipient_id", domain.ShortID(recipientID))),
		m.hooks,
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.Run(ctx)
	}()
}

// Wait blocks until every spawned consumer has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// ActiveWorkers returns the number of recipients with a running consumer.
func (m *Manager) ActiveWorkers() int {
	return m.reg.Len()
}

// QueueDepths reports the backlog of every recipient with an active consumer.
func (m *Manager) QueueDepths(ctx context.Context) (map[string]int64, error) {
	active := m.reg.Active()
	depths := make(map[string]int64, len(active))
	for _, rid := range active {
		n, err := m.store.QueueLength(ctx, rid)
		if err != nil {
			return nil, err
		}
		depths[rid] = n
	}
	return depths, nil
}
