package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/alert-relay/internal/domain"
)

// Kick event types the builder knows how to turn into alerts.
const (
	EventChannelFollowed     = "channel.followed"
	EventSubscriptionNew     = "channel.subscription.new"
	EventSubscriptionRenewal = "channel.subscription.renewal"
	EventKicksGifted         = "kicks.gifted"
)

type kickUser struct {
	UserID   *int64 `json:"user_id"`
	Username string `json:"username"`
}

type followEvent struct {
	Broadcaster kickUser `json:"broadcaster"`
	Follower    kickUser `json:"follower"`
}

type subscriptionEvent struct {
	Broadcaster kickUser `json:"broadcaster"`
	Subscriber  kickUser `json:"subscriber"`
	Duration    int      `json:"duration"`
}

type kicksGiftedEvent struct {
	Broadcaster kickUser `json:"broadcaster"`
	Sender      kickUser `json:"sender"`
	Gift        struct {
		Amount  float64 `json:"amount"`
		Message string  `json:"message"`
	} `json:"gift"`
}

// Builder normalizes verified vendor events into canonical alerts.
type Builder struct {
	newID func() string
	now   func() time.Time
}

// Option customizes a Builder; tests use it to pin ids and clocks.
type Option func(*Builder)

func WithIDFunc(f func() string) Option   { return func(b *Builder) { b.newID = f } }
func WithClock(f func() time.Time) Option { return func(b *Builder) { b.now = f } }

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build maps eventType + raw body to an Alert.
//
// Unrecognized event types return (nil, nil): the source still gets its
// acknowledgment, there is simply nothing to show. A recognized type whose
// body cannot be decoded, or that decodes to an alert without a sender
// username, returns domain.ErrMalformedEvent.
func (b *Builder) Build(eventType string, rawEvent []byte) (*domain.Alert, error) {
	var (
		broadcaster kickUser
		payload     domain.Payload
	)

	switch eventType {
	case EventChannelFollowed:
		var ev followEvent
		if err := decode(rawEvent, &ev); err != nil {
			return nil, err
		}
		broadcaster = ev.Broadcaster
		f := domain.Follow{Username: ev.Follower.Username}
		if ev.Follower.UserID != nil {
			f.OriginID = *ev.Follower.UserID
		}
		payload = f

	case EventSubscriptionNew:
		var ev subscriptionEvent
		if err := decode(rawEvent, &ev); err != nil {
			return nil, err
		}
		broadcaster = ev.Broadcaster
		payload = domain.Subscribe{Username: ev.Subscriber.Username}

	case EventSubscriptionRenewal:
		var ev subscriptionEvent
		if err := decode(rawEvent, &ev); err != nil {
			return nil, err
		}
		broadcaster = ev.Broadcaster
		payload = domain.SubscriptionRenewal{
			Username: ev.Subscriber.Username,
			Months:   ev.Duration,
		}

	case EventKicksGifted:
		var ev kicksGiftedEvent
		if err := decode(rawEvent, &ev); err != nil {
			return nil, err
		}
		broadcaster = ev.Broadcaster
		payload = domain.Tip{
			Username: ev.Sender.Username,
			Message:  ev.Gift.Message,
			Amount:   ev.Gift.Amount,
		}

	default:
		return nil, nil
	}

	if broadcaster.UserID == nil {
		return nil, fmt.Errorf("%w: %s without broadcaster.user_id", domain.ErrMalformedEvent, eventType)
	}

	a := domain.NewAlert(
		b.newID(),
		domain.RecipientID(*broadcaster.UserID),
		b.now(),
		payload,
	)
	// a missing follower/subscriber/sender object decodes to an empty username
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMalformedEvent, eventType, err)
	}
	return a, nil
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return nil
}
