package checkout

// Stage is one state of the checkout state machine.
type Stage string

const (
	StageBrowsing    Stage = "browsing"
	StageCartOpen    Stage = "cart_open"
	StagePaymentOpen Stage = "payment_open"
	StageSubmitting  Stage = "submitting"
	StageClosed      Stage = "closed"
)

func (s Stage) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Stage) IsTerminal() bool {
	return s == StageClosed
}

// AllowedTransitions defines the valid stage transitions.
// The key is the current stage, and the value is the list of valid targets.
var AllowedTransitions = map[Stage][]Stage{
	StageBrowsing: {
		StageCartOpen,
		StageClosed,
	},
	StageCartOpen: {
		StageBrowsing,
		StagePaymentOpen,
		StageClosed,
	},
	StagePaymentOpen: {
		StageCartOpen,
		StageSubmitting,
		StageBrowsing, // cart emptied while paying
		StageClosed,
	},
	StageSubmitting: {
		StageClosed,      // success, or session end
		StagePaymentOpen, // failure, retry allowed
	},
	StageClosed: {}, // Terminal state
}

// CanTransition checks if a transition from one stage to another is allowed.
func CanTransition(from, to Stage) bool {
	allowed, exists := AllowedTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
