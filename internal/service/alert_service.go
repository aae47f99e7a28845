package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/alert-relay/internal/domain"
	"github.com/notifyhub/alert-relay/internal/envelope"
	"github.com/notifyhub/alert-relay/internal/repository"
	"github.com/notifyhub/alert-relay/internal/signature"
)

// Webhook headers Kick sends with every event. All six are required.
const (
	HeaderMessageID      = "Kick-Event-Message-Id"
	HeaderSubscriptionID = "Kick-Event-Subscription-Id"
	HeaderSignature      = "Kick-Event-Signature"
	HeaderTimestamp      = "Kick-Event-Message-Timestamp"
	HeaderEventType      = "Kick-Event-Type"
	HeaderEventVersion   = "Kick-Event-Version"
)

// Rejection reasons reported to metrics.
const (
	ReasonMissingHeaders = "missing_headers"
	ReasonBadSignature   = "bad_signature"
	ReasonMalformed      = "malformed_event"
)

// InboundHeaders are the transport headers of one webhook delivery.
type InboundHeaders struct {
	MessageID      string
	SubscriptionID string
	Signature      string
	Timestamp      string
	EventType      string
	EventVersion   string
}

// HeadersFrom extracts the webhook headers from an HTTP request.
func HeadersFrom(h http.Header) InboundHeaders {
	return InboundHeaders{
		MessageID:      h.Get(HeaderMessageID),
		SubscriptionID: h.Get(HeaderSubscriptionID),
		Signature:      h.Get(HeaderSignature),
		Timestamp:      h.Get(HeaderTimestamp),
		EventType:      h.Get(HeaderEventType),
		EventVersion:   h.Get(HeaderEventVersion),
	}
}

func (h InboundHeaders) complete() bool {
	return h.MessageID != "" && h.SubscriptionID != "" && h.Signature != "" &&
		h.Timestamp != "" && h.EventType != "" && h.EventVersion != ""
}

// Hooks carries the metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnReceived func(t domain.AlertType)
	OnRejected func(reason string)
}

// AlertService is the only way alerts enter the queue store: verified
// webhooks through HandleInboundEvent, and collaborators through Submit.
type AlertService struct {
	verifier *signature.Verifier
	builder  *envelope.Builder
	store    repository.AlertStore
	logger   *zap.Logger
	hooks    Hooks
}

func NewAlertService(
	verifier *signature.Verifier,
	builder *envelope.Builder,
	store repository.AlertStore,
	logger *zap.Logger,
	hooks Hooks,
) *AlertService {
	if hooks.OnReceived == nil {
		hooks.OnReceived = func(domain.AlertType) {}
	}
	if hooks.OnRejected == nil {
		hooks.OnRejected = func(string) {}
	}
	return &AlertService{
		verifier: verifier,
		builder:  builder,
		store:    store,
		logger:   logger,
		hooks:    hooks,
	}
}

// HandleInboundEvent authenticates one webhook delivery and queues the alert
// it describes.
//
// Returns nil when the event was accepted, including event types that carry
// nothing to show. Rejections wrap domain.ErrMissingHeaders,
// domain.ErrBadSignature or domain.ErrMalformedEvent; a store failure wraps
// domain.ErrStoreUnavailable so the source redelivers.
func (s *AlertService) HandleInboundEvent(ctx context.Context, h InboundHeaders, rawBody []byte) error {
	log := s.logger.With(
		zap.String("message_id", h.MessageID),
		zap.String("event_type", h.EventType),
	)

	if !h.complete() {
		s.hooks.OnRejected(ReasonMissingHeaders)
		log.Warn("webhook rejected: missing headers")
		return domain.ErrMissingHeaders
	}

	if !s.verifier.Verify(rawBody, h.MessageID, h.Timestamp, h.Signature) {
		s.hooks.OnRejected(ReasonBadSignature)
		log.Warn("webhook rejected: bad signature")
		return domain.ErrBadSignature
	}

	a, err := s.builder.Build(h.EventType, rawBody)
	if err != nil {
		s.hooks.OnRejected(ReasonMalformed)
		log.Warn("webhook rejected: malformed event", zap.Error(err))
		return err
	}
	if a == nil {
		log.Debug("ignoring unhandled event type")
		return nil
	}

	if err := s.store.Enqueue(ctx, a); err != nil {
		log.Error("enqueue failed", zap.String("alert_id", a.ID), zap.Error(err))
		return fmt.Errorf("enqueue alert: %w", err)
	}

	s.hooks.OnReceived(a.Type())
	log.Info("alert queued",
		zap.String("alert_id", a.ID),
		zap.String("type", string(a.Type())),
		zap.String("recipient_id", domain.ShortID(a.RecipientID)),
	)
	return nil
}

// Submit queues an alert built outside the webhook path. Fire-and-forget:
// the caller learns only whether the store accepted it.
func (s *AlertService) Submit(ctx context.Context, a *domain.Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.store.Enqueue(ctx, a); err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}
	s.hooks.OnReceived(a.Type())
	return nil
}

// SubmitTest queues a synthetic alert so a creator can preview the overlay.
func (s *AlertService) SubmitTest(ctx context.Context, recipientID string, req domain.TestAlertRequest) (*domain.Alert, error) {
	if !domain.IsRecipientID(recipientID) {
		return nil, domain.ErrInvalidRecipient
	}
	p, err := req.Payload()
	if err != nil {
		return nil, err
	}

	a := domain.NewAlert(uuid.New().String(), recipientID, time.Now(), p)
	a.Media = req.Media()

	if err := s.Submit(ctx, a); err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			s.logger.Warn("test alert rejected", zap.Error(err))
		}
		return nil, err
	}
	return a, nil
}
