package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/alert-relay/internal/domain"
	"github.com/notifyhub/alert-relay/internal/repository"
)

// State is a consumer's lifecycle position.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopped
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Deliverer fans an alert out to live connections and reports how many
// received it.
type Deliverer interface {
	Deliver(ctx context.Context, a *domain.Alert) int
}

// Pacer spaces deliveries per recipient.
type Pacer interface {
	Wait(ctx context.Context, recipientID string) error
	Forget(recipientID string)
}

type noPacer struct{}

func (noPacer) Wait(ctx context.Context, _ string) error { return ctx.Err() }
func (noPacer) Forget(string)                            {}

// ConsumerConfig tunes the drain loop.
type ConsumerConfig struct {
	DequeueTimeout time.Duration // blocking pop timeout; one timeout is one idle cycle
	MaxIdle        int           // consecutive idle cycles before the consumer stops
	ErrorBackoff   time.Duration // pause after a failed iteration
	LoadRetries    int           // extra Load attempts for a popped id with no payload
	LoadRetryDelay time.Duration
}

// MetricHooks carries the metric callbacks injected by main.
// Using a struct keeps the constructor signatures clean; nil fields are no-ops.
type MetricHooks struct {
	OnDelivered func(a *domain.Alert)
	OnDropped   func()
	OnExit      func(state string)
}

func (h MetricHooks) withDefaults() MetricHooks {
	if h.OnDelivered == nil {
		h.OnDelivered = func(*domain.Alert) {}
	}
	if h.OnDropped == nil {
		h.OnDropped = func() {}
	}
	if h.OnExit == nil {
		h.OnExit = func(string) {}
	}
	return h
}

// releaseTimeout bounds the lease release issued after ctx is already done.
const releaseTimeout = 2 * time.Second

// Consumer drains one recipient's queue in order: pop, load, deliver, delete.
// It stops after MaxIdle empty polls, on shutdown, or when its lease is lost.
// A lost lease cancels the in-flight alert so two processes never deliver
// for the same recipient at once.
type Consumer struct {
	recipientID string
	store       repository.AlertStore
	hub         Deliverer
	pacer       Pacer
	reg         *Registry
	cfg         ConsumerConfig
	logger      *zap.Logger
	hooks       MetricHooks

	state atomic.Int32
}

// NewConsumer builds a consumer for recipientID. The caller must already
// hold recipientID in reg; Run releases it on exit. pacer may be nil.
func NewConsumer(
	recipientID string,
	store repository.AlertStore,
	hub Deliverer,
	pacer Pacer,
	reg *Registry,
	cfg ConsumerConfig,
	logger *zap.Logger,
	hooks MetricHooks,
) *Consumer {
	if pacer == nil {
		pacer = noPacer{}
	}
	return &Consumer{
		recipientID: recipientID,
		store:       store,
		hub:         hub,
		pacer:       pacer,
		reg:         reg,
		cfg:         cfg,
		logger:      logger,
		hooks:       hooks.withDefaults(),
	}
}

func (c *Consumer) State() State { return State(c.state.Load()) }

// Run blocks until the consumer stops and returns its final state. A panic
// inside the loop ends it as StateCrashed; either way the registry claim is
// released so the manager can respawn it on a later scan.
func (c *Consumer) Run(parent context.Context) (final State) {
	ctx, cancel := context.WithCancel(parent)
	keeper := c.keepClaim(ctx, cancel)

	defer func() {
		r := recover()
		cancel()
		<-keeper
		if r != nil {
			c.logger.Error("consumer crashed", zap.Any("panic", r), zap.Stack("stack"))
			final = StateCrashed
		}
		c.state.Store(int32(final))
		c.release()
		c.hooks.OnExit(final.String())
		c.logger.Info("consumer exited", zap.Stringer("state", final))
	}()

	c.state.Store(int32(StateRunning))
	c.logger.Info("consumer started")
	return c.loop(ctx)
}

func (c *Consumer) loop(ctx context.Context) State {
	idle := 0
	for {
		if ctx.Err() != nil {
			return StateStopped
		}

		id, ok, err := c.store.DequeueBlocking(ctx, c.recipientID, c.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return StateStopped
			}
			c.logger.Error("dequeue failed", zap.Error(err))
			c.pause(ctx, c.cfg.ErrorBackoff)
			continue
		}
		if !ok {
			idle++
			if idle >= c.cfg.MaxIdle {
				c.logger.Info("queue idle, stopping", zap.Int("idle_cycles", idle))
				return StateStopped
			}
			continue
		}

		idle = 0
		if err := c.process(ctx, id); err != nil {
			if ctx.Err() != nil {
				return StateStopped
			}
			c.logger.Error("alert processing failed", zap.String("alert_id", id), zap.Error(err))
			c.pause(ctx, c.cfg.ErrorBackoff)
		}
	}
}

// keepClaim refreshes the lease every RefreshEvery for as long as ctx lives,
// independent of how long one delivery takes. Losing the lease cancels ctx.
// The returned channel is closed once the refresher has exited.
func (c *Consumer) keepClaim(ctx context.Context, cancel context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	every := c.reg.RefreshEvery()
	if every <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			held, err := c.reg.Refresh(ctx, c.recipientID)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("lease refresh failed", zap.Error(err))
			case !held:
				c.logger.Warn("lease lost, stopping")
				cancel()
				return
			}
		}
	}()
	return done
}

// process handles one popped id. On error the payload stays in the store.
func (c *Consumer) process(ctx context.Context, id string) error {
	log := c.logger.With(zap.String("alert_id", id))

	a, err := c.load(ctx, id)
	switch {
	case errors.Is(err, domain.ErrAlertNotFound):
		log.Error("queued id has no payload, dropping")
		c.hooks.OnDropped()
		return nil
	case errors.Is(err, domain.ErrMalformedEvent):
		log.Error("stored payload is corrupt, dropping", zap.Error(err))
		c.hooks.OnDropped()
		return c.store.Delete(ctx, id)
	case err != nil:
		return err
	}

	if err := c.pacer.Wait(ctx, c.recipientID); err != nil {
		return err
	}

	sent := c.hub.Deliver(ctx, a)

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}

	c.hooks.OnDelivered(a)
	log.Debug("alert delivered", zap.String("type", string(a.Type())), zap.Int("connections", sent))
	return nil
}

// load retries a missing payload a bounded number of times before giving up.
func (c *Consumer) load(ctx context.Context, id string) (*domain.Alert, error) {
	for attempt := 0; ; attempt++ {
		a, err := c.store.Load(ctx, id)
		if !errors.Is(err, domain.ErrAlertNotFound) || attempt >= c.cfg.LoadRetries {
			return a, err
		}
		if !c.pause(ctx, c.cfg.LoadRetryDelay) {
			return nil, ctx.Err()
		}
	}
}

// pause sleeps for d and reports false if ctx ended first.
func (c *Consumer) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) release() {
	c.pacer.Forget(c.recipientID)

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := c.reg.Release(ctx, c.recipientID); err != nil {
		c.logger.Warn("release claim failed", zap.Error(err))
	}
}
