// Package domain provides core business rules for the leads bounded context.
package domain

// Step is the position of a customer's conversation.
type Step string

const (
	StepStart                   Step = "START"
	StepWaitService             Step = "WAIT_SERVICE"
	StepWaitIntentClarification Step = "WAIT_INTENT_CLARIFICATION"
	StepWaitComuna              Step = "WAIT_COMUNA"
	StepWaitChoice              Step = "WAIT_CHOICE"
	StepWaitConsent             Step = "WAIT_CONSENT"
	StepConnected               Step = "CONNECTED"
	StepContactConfirmPending   Step = "CONTACT_CONFIRM_PENDING"
	StepServiceConfirmPending   Step = "SERVICE_CONFIRM_PENDING"
	StepRatingPending           Step = "RATING_PENDING"
	StepClosed                  Step = "CLOSED"
)

// Status is the lifecycle status stored on a lead.
type Status string

const (
	StatusOpen                  Status = "OPEN"
	StatusWaitService           Status = "WAIT_SERVICE"
	StatusWaitComuna            Status = "WAIT_COMUNA"
	StatusWaitChoice            Status = "WAIT_CHOICE"
	StatusWaitConsent           Status = "WAIT_CONSENT"
	StatusConnected             Status = "CONNECTED"
	StatusContactConfirmPending Status = "CONTACT_CONFIRM_PENDING"
	StatusServiceConfirmPending Status = "SERVICE_CONFIRM_PENDING"
	StatusRatingPending         Status = "RATING_PENDING"
	StatusClosed                Status = "CLOSED"
)

var stepStatus = map[Step]Status{
	StepStart:                   StatusOpen,
	StepWaitService:             StatusWaitService,
	StepWaitIntentClarification: StatusWaitService,
	StepWaitComuna:              StatusWaitComuna,
	StepWaitChoice:              StatusWaitChoice,
	StepWaitConsent:             StatusWaitConsent,
	StepConnected:               StatusConnected,
	StepContactConfirmPending:   StatusContactConfirmPending,
	StepServiceConfirmPending:   StatusServiceConfirmPending,
	StepRatingPending:           StatusRatingPending,
	StepClosed:                  StatusClosed,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	_, ok := stepStatus[s]
	return ok
}

// LeadStatus returns the lead status paired with s. The clarification sub-step shares
// WAIT_SERVICE with its parent. Unknown steps pair with OPEN.
func (s Step) LeadStatus() Status {
	if st, ok := stepStatus[s]; ok {
		return st
	}
	return StatusOpen
}

// Step returns the conversation step a lead status corresponds to. Statuses written by
// the follow-up scheduler share their name with the step.
func (s Status) Step() Step {
	switch s {
	case StatusOpen:
		return StepStart
	case StatusWaitService, StatusWaitComuna, StatusWaitChoice, StatusWaitConsent,
		StatusConnected, StatusContactConfirmPending, StatusServiceConfirmPending,
		StatusRatingPending, StatusClosed:
		return Step(s)
	default:
		return StepStart
	}
}

// PostConnection reports whether the customer's contact was already shared for this lead.
func (s Status) PostConnection() bool {
	switch s {
	case StatusConnected, StatusContactConfirmPending, StatusServiceConfirmPending, StatusRatingPending:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

// Paired reports whether a step and a status satisfy the lockstep invariant.
func Paired(step Step, status Status) bool {
	return step.LeadStatus() == status
}
