// Package services defines the business logic for the oracle endpoint and
// conversation logging. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrEmptyConversation is returned when a request carries no turns.
	ErrEmptyConversation = errors.New("conversation is empty")

	// ErrEmptyPrompt is returned when the newest turn has no content.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrInvalidRole is returned when a turn's role is outside the allowed
	// set (currently "user" and "model").
	ErrInvalidRole = errors.New("turn role must be user or model")

	// ErrTooLong is returned when a single turn exceeds the maximum
	// configured length limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrQuotaExceeded indicates the per-conversation turn cap was reached.
	// It is a business rule distinct from rate limiting and is not retriable
	// within the same conversation.
	ErrQuotaExceeded = errors.New("conversation turn limit reached")

	// ErrGenerationUnavailable indicates every fallback model failed or
	// timed out. The caller may retry immediately.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
