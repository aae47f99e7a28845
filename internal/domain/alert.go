package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlertType is the variant tag of an Alert. It is also the "type" field of
// the envelope the overlay receives.
type AlertType string

const (
	AlertFollow              AlertType = "follow"
	AlertSubscribe           AlertType = "subscribe"
	AlertSubscriptionRenewal AlertType = "subscriptionRenewal"
	AlertTip                 AlertType = "tip"
)

func (t AlertType) IsValid() bool {
	switch t {
	case AlertFollow, AlertSubscribe, AlertSubscriptionRenewal, AlertTip:
		return true
	}
	return false
}

// Payload is the variant-specific part of an Alert. The set of
// implementations is closed: Follow, Subscribe, SubscriptionRenewal and Tip.
type Payload interface {
	Type() AlertType
	sender() string
}

type Follow struct {
	Username string
	OriginID int64
}

type Subscribe struct {
	Username string
}

type SubscriptionRenewal struct {
	Username string
	Months   int
}

type Tip struct {
	Username string
	Message  string
	Amount   float64
}

func (Follow) Type() AlertType              { return AlertFollow }
func (Subscribe) Type() AlertType           { return AlertSubscribe }
func (SubscriptionRenewal) Type() AlertType { return AlertSubscriptionRenewal }
func (Tip) Type() AlertType                 { return AlertTip }

func (p Follow) sender() string              { return p.Username }
func (p Subscribe) sender() string           { return p.Username }
func (p SubscriptionRenewal) sender() string { return p.Username }
func (p Tip) sender() string                 { return p.Username }

// Media is an optional pre-rendered clip the overlay plays with the alert.
type Media struct {
	URL        string
	DurationMs int64
}

// Alert is the unit of delivery. It is immutable once built: the worker that
// pops its id reads it exactly once and then deletes it from the store.
type Alert struct {
	ID          string
	RecipientID string
	CreatedAt   int64 // epoch millis
	Payload     Payload
	Media       *Media
}

// NewAlert stamps a payload with identity and creation time.
func NewAlert(id, recipientID string, createdAt time.Time, p Payload) *Alert {
	return &Alert{
		ID:          id,
		RecipientID: recipientID,
		CreatedAt:   createdAt.UnixMilli(),
		Payload:     p,
	}
}

// Type returns the variant tag, or "" when the payload is unset.
func (a *Alert) Type() AlertType {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Type()
}

// Username returns the display name carried by every variant.
func (a *Alert) Username() string {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.sender()
}

func (a *Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: empty id", ErrMalformedEvent)
	}
	if !IsRecipientID(a.RecipientID) {
		return ErrInvalidRecipient
	}
	if a.Payload == nil || !a.Payload.Type().IsValid() {
		return ErrInvalidAlertType
	}
	if a.Payload.sender() == "" {
		return ErrInvalidUsername
	}
	return nil
}

// wireAlert is the flat JSON shape shared by the store and the overlay:
//
//	{ id, type, username, originId?, recipientId, timestamp,
//	  message?, amount?, months?, videoUrl?, videoDuration? }
type wireAlert struct {
	ID            string    `json:"id"`
	Type          AlertType `json:"type"`
	Username      string    `json:"username"`
	OriginID      *int64    `json:"originId,omitempty"`
	RecipientID   string    `json:"recipientId"`
	Timestamp     int64     `json:"timestamp"`
	Message       string    `json:"message,omitempty"`
	Amount        *float64  `json:"amount,omitempty"`
	Months        *int      `json:"months,omitempty"`
	VideoURL      string    `json:"videoUrl,omitempty"`
	VideoDuration *int64    `json:"videoDuration,omitempty"`
}

func (a Alert) MarshalJSON() ([]byte, error) {
	w := wireAlert{
		ID:          a.ID,
		RecipientID: a.RecipientID,
		Timestamp:   a.CreatedAt,
	}

	switch p := a.Payload.(type) {
	case Follow:
		w.Type, w.Username = AlertFollow, p.Username
		w.OriginID = &p.OriginID
	case Subscribe:
		w.Type, w.Username = AlertSubscribe, p.Username
	case SubscriptionRenewal:
		w.Type, w.Username = AlertSubscriptionRenewal, p.Username
		w.Months = &p.Months
	case Tip:
		w.Type, w.Username = AlertTip, p.Username
		w.Message = p.Message
		w.Amount = &p.Amount
	default:
		return nil, fmt.Errorf("marshal alert %s: %w", a.ID, ErrInvalidAlertType)
	}

	if a.Media != nil && a.Media.URL != "" {
		w.VideoURL = a.Media.URL
		d := a.Media.DurationMs
		w.VideoDuration = &d
	}

	return json.Marshal(w)
}

func (a *Alert) UnmarshalJSON(data []byte) error {
	var w wireAlert
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var p Payload
	switch w.Type {
	case AlertFollow:
		f := Follow{Username: w.Username}
		if w.OriginID != nil {
			f.OriginID = *w.OriginID
		}
		p = f
	case AlertSubscribe:
		p = Subscribe{Username: w.Username}
	case AlertSubscriptionRenewal:
		r := SubscriptionRenewal{Username: w.Username}
		if w.Months != nil {
			r.Months = *w.Months
		}
		p = r
	case AlertTip:
		t := Tip{Username: w.Username, Message: w.Message}
		if w.Amount != nil {
			t.Amount = *w.Amount
		}
		p = t
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAlertType, w.Type)
	}

	*a = Alert{
		ID:          w.ID,
		RecipientID: w.RecipientID,
		CreatedAt:   w.Timestamp,
		Payload:     p,
	}
	if w.VideoURL != "" {
		a.Media = &Media{URL: w.VideoURL}
		if w.VideoDuration != nil {
			a.Media.DurationMs = *w.VideoDuration
		}
	}
	return nil
}
