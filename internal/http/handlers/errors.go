// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. The codes give clients a stable, machine-readable taxonomy that
// supplements the human-readable message; handlers pick the most specific
// matching code and pass it to fail() together with the HTTP status.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:

	// ErrCodeConversationLimit marks the per-conversation turn cap, which is
	// a business rule distinct from rate limiting: retrying the same
	// conversation will not succeed, starting a new one will.
	ErrCodeConversationLimit = "conversation_limit"
	// ErrCodeAnswerFailed marks exhaustion of every fallback model.
	ErrCodeAnswerFailed = "answer_failed"
	ErrCodeListFailed   = "list_failed"
)
