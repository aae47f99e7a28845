package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RecipientLimiters paces delivery with one token bucket per recipient.
// Burst equals the rate so an idle overlay cannot save up a burst of alerts
// and play them on top of each other.
//
// A zero rate disables pacing: Wait returns immediately.
type RecipientLimiters struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates RecipientLimiters allowing perSecond deliveries per recipient.
// Fractional rates are valid: 0.2 means one alert every five seconds.
func New(perSecond float64) *RecipientLimiters {
	rl := &RecipientLimiters{limiters: make(map[string]*rate.Limiter)}
	if perSecond <= 0 {
		rl.limit = rate.Inf
		rl.burst = 1
		return rl
	}
	rl.limit = rate.Limit(perSecond)
	rl.burst = max(1, int(perSecond))
	return rl
}

// Wait blocks until recipientID's limiter grants a token.
// Called by the consumer immediately before handing an alert to the hub.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (rl *RecipientLimiters) Wait(ctx context.Context, recipientID string) error {
	if rl.limit == rate.Inf {
		return ctx.Err()
	}
	return rl.get(recipientID).Wait(ctx)
}

// Forget drops recipientID's bucket. Consumers call it on exit so the map
// only holds recipients with a live worker.
func (rl *RecipientLimiters) Forget(recipientID string) {
	rl.mu.Lock()
	delete(rl.limiters, recipientID)
	rl.mu.Unlock()
}

// Len reports how many buckets are currently held.
func (rl *RecipientLimiters) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RecipientLimiters) get(recipientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[recipientID]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[recipientID] = l
	}
	return l
}
