package domain

import "errors"

var (
	// ErrUnauthenticated is returned for a bad or expired token. The
	// join is denied and no state changes.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConversationNotFound is returned for explicit joins against an
	// unknown conversation; callback reconciliation drops it silently.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrStreamNotFound is the stream-side analogue of
	// ErrConversationNotFound.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrNotJoinable means the underlying broadcast has ended or never
	// started; the client should not retry without a fresh session.
	ErrNotJoinable = errors.New("broadcast not joinable")

	// ErrGatewayUnavailable means the broadcast status lookup failed;
	// joins are denied with a retryable hint.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
)
