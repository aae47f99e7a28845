package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	// ErrAuthentication is the parent of every inbound-event rejection.
	ErrAuthentication = errors.New("authentication failed")

	ErrMissingHeaders = fmt.Errorf("%w: missing required headers", ErrAuthentication)
	ErrBadSignature   = fmt.Errorf("%w: invalid signature", ErrAuthentication)

	ErrMalformedEvent   = errors.New("malformed event payload")
	ErrInvalidAlertType = errors.New("invalid alert type: must be follow, subscribe, subscriptionRenewal, or tip")
	ErrInvalidRecipient = errors.New("recipient id must be a 64 character lowercase hex digest")
	ErrInvalidUsername  = errors.New("username must not be empty")
	ErrAlertNotFound    = errors.New("alert payload not found")
	ErrStoreUnavailable = errors.New("queue store unavailable")
	ErrDelivery         = errors.New("delivery to connection failed")
	ErrConnectionClosed = errors.New("connection closed")
)
