package models

// Outcome classifies how an action ended. Callers log one
// event per action keyed by Outcome.String().
type Outcome int

// Outcomes.
const (
	OutcomeUnknown Outcome = iota
	OutcomeAccepted
	OutcomePromptTimeout
	OutcomePasswordRejected
	OutcomeTransportFailure
	OutcomeCanceled
	// OutcomeInvalidRequest means the action was refused before anything
	// was sent to the target.
	OutcomeInvalidRequest
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomePromptTimeout:
		return "prompt_timeout"
	case OutcomePasswordRejected:
		return "password_rejected"
	case OutcomeTransportFailure:
		return "transport_error"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}
