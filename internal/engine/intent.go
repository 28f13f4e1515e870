package engine

// Intent is the discrete classification of a user's message purpose.
type Intent string

const (
	IntentBook       Intent = "book"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentInfo       Intent = "info"
	IntentHuman      Intent = "human"
	IntentUnknown    Intent = "unknown"
)

// AllIntents enumerates every intent; used by the exhaustiveness tests.
var AllIntents = []Intent{
	IntentBook,
	IntentReschedule,
	IntentCancel,
	IntentInfo,
	IntentHuman,
	IntentUnknown,
}

// Classifier maps free text plus the current conversation state to an
// intent. Implementations must be pure and side effect free so they can be
// swapped without touching the engine.
type Classifier interface {
	Classify(text string, state State) Intent
}
