package types

import "errors"

// Domain specific errors for billing synchronization.
var (
	// ErrAuthentication covers a missing, malformed, or mismatched webhook
	// signature. Client fault; the delivery is considered unprocessed.
	ErrAuthentication = errors.New("webhook signature verification failed")
	// ErrValidation covers malformed request bodies and unrecognized plans.
	ErrValidation = errors.New("invalid request")
	// ErrUnresolvableIdentity means no email could be derived for an event
	// from any source. Acknowledged and dropped, never retried.
	ErrUnresolvableIdentity = errors.New("no email resolvable for billing event")
	// ErrUpstream covers payment-processor API failures. Retryable via
	// webhook redelivery.
	ErrUpstream = errors.New("payment processor request failed")
	// ErrStore covers persistence failures. Retryable via webhook redelivery.
	ErrStore = errors.New("profile store operation failed")

	ErrNotFound = errors.New("requested item not found")
)
