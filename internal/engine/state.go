package engine

// State is the position of a conversation inside the booking flow.
type State string

const (
	StateNew                  State = "NEW"
	StateNeedIntent           State = "NEED_INTENT"
	StateNeedService          State = "NEED_SERVICE"
	StateNeedDatePref         State = "NEED_DATE_PREF"
	StateFetchingAvailability State = "FETCHING_AVAILABILITY"
	StateProposeSlots         State = "PROPOSE_SLOTS"
	StateNeedConfirmSlot      State = "NEED_CONFIRM_SLOT"
	StateBooking              State = "BOOKING"
	StateBooked               State = "BOOKED"
	StateHandoff              State = "HANDOFF"
)

// AllStates enumerates every state; used by the exhaustiveness tests.
var AllStates = []State{
	StateNew,
	StateNeedIntent,
	StateNeedService,
	StateNeedDatePref,
	StateFetchingAvailability,
	StateProposeSlots,
	StateNeedConfirmSlot,
	StateBooking,
	StateBooked,
	StateHandoff,
}

// InBookingFlow reports whether unmatched text should be treated as a
// continuation of an active booking sub-flow rather than a new request.
func (s State) InBookingFlow() bool {
	switch s {
	case StateNeedService, StateNeedDatePref, StateProposeSlots, StateNeedConfirmSlot:
		return true
	}
	return false
}
