package verification

import "time"

// Status is the coordinator state.
type Status uint8

const (
	StatusIdle Status = iota
	StatusGenerating
	StatusActive
	StatusExpired
	StatusVerifying
	StatusVerified
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusGenerating:
		return "generating"
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusVerifying:
		return "verifying"
	case StatusVerified:
		return "verified"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Action is the user or system action that produced a state.
type Action uint8

const (
	ActionNone Action = iota
	ActionGenerate
	ActionResend
	ActionCheck
)

func (a Action) String() string {
	switch a {
	case ActionGenerate:
		return "generate"
	case ActionResend:
		return "resend"
	case ActionCheck:
		return "check"
	default:
		return "none"
	}
}

// Challenge is one issued code.
type Challenge struct {
	Code     string
	Link     string
	IssuedAt time.Time
	TTL      time.Duration
	// Remaining is the number of countdown ticks left.
	Remaining int
}

// State is a copy of the coordinator's observable state.
type State struct {
	Status    Status
	Challenge Challenge
	// Message is the user-facing text for the state, if any.
	Message    string
	Err        error
	LastAction Action
}

const (
	msgExpired     = "The code has expired. Request a new one."
	msgIssueFailed = "Could not get a verification code. Please try again."
	msgNotYet      = "Not confirmed yet. Send the code to the bot, then check again."
	msgCheckFailed = "Could not reach the verification service. Not confirmed yet."
	msgVerified    = "Your account is verified."
)

// EventKind classifies coordinator events.
type EventKind uint8

const (
	EventCodeIssued EventKind = iota
	EventPoll
	EventCheck
	EventExpired
	EventVerified
	EventFailed
)

// Event is reported through Options.Observe for metrics and audit.
type Event struct {
	Kind     EventKind
	UserID   string
	Action   Action
	Verified bool
	Err      error
}
