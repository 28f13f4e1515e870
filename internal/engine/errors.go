package engine

import "errors"

// Error taxonomy for message processing. Callers match with errors.Is to
// decide whether a failure is terminal, self-healing, or retryable.
var (
	// ErrAuthentication marks an invalid or missing webhook signature or
	// verify token. Terminal for the request; no side effects.
	ErrAuthentication = errors.New("authentication failed")

	// ErrValidation marks a malformed payload unit. The unit is skipped,
	// the rest of the batch proceeds.
	ErrValidation = errors.New("invalid payload")

	// ErrNotFound marks a missing entity where presence was assumed.
	ErrNotFound = errors.New("not found")

	// ErrExternalService marks a failed or timed-out booking authority
	// call. Recoverable at the conversation level: the FSM reverts and the
	// user's next message re-drives the flow.
	ErrExternalService = errors.New("external service failure")

	// ErrConcurrency marks a failure to acquire the per-conversation
	// critical section in time. Retryable: the message must be redelivered,
	// never dropped.
	ErrConcurrency = errors.New("conversation busy")
)
