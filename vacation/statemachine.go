/*
statemachine.go - Vacation request lifecycle

REQUEST FLOW:

  requested ──leader_approve──▶ leader_approved ──hr_approve──▶ hr_approved
      │                               │                             │
  leader_reject                   hr_reject                      schedule
      ▼                               ▼                             ▼
  leader_rejected                hr_rejected     scheduled ◀─schedule (reschedule)
                                                     │
                                                   enjoy
                                                     ▼
                                                  enjoyed

  cancel: any non-terminal status ──▶ cancelled

  Terminal: leader_rejected, hr_rejected, cancelled, enjoyed.

BALANCE EFFECTS:
  hr_approve   reserves requestedDays into approvedPending (the only reservation)
  enjoy        moves them from approvedPending to enjoyed
  cancel       releases them when a reservation exists
  everything else leaves the counters alone

The table below is the single source of truth; code never compares statuses
ad hoc to decide whether a transition is allowed.
*/
package vacation

import "github.com/warp/vacation-engine/generic"

// Status is the lifecycle state of a request.
type Status string

const (
	StatusRequested      Status = "requested"
	StatusLeaderApproved Status = "leader_approved"
	StatusLeaderRejected Status = "leader_rejected"
	StatusHRApproved     Status = "hr_approved"
	StatusHRRejected     Status = "hr_rejected"
	StatusScheduled      Status = "scheduled"
	StatusEnjoyed        Status = "enjoyed"
	StatusCancelled      Status = "cancelled"
)

// AllStatuses is the closed status domain.
var AllStatuses = []Status{
	StatusRequested, StatusLeaderApproved, StatusLeaderRejected, StatusHRApproved,
	StatusHRRejected, StatusScheduled, StatusEnjoyed, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal statuses accept no further action.
func (s Status) Terminal() bool {
	switch s {
	case StatusLeaderRejected, StatusHRRejected, StatusCancelled, StatusEnjoyed:
		return true
	}
	return false
}

// Active requests block overlapping dates.
func (s Status) Active() bool { return s.Valid() && !s.Terminal() }

// Reserving statuses hold days in approvedPending.
func (s Status) Reserving() bool { return s == StatusHRApproved || s == StatusScheduled }

// Action is a request transition trigger.
type Action string

const (
	TransitionLeaderApprove Action = "leader_approve"
	TransitionLeaderReject  Action = "leader_reject"
	TransitionHRApprove     Action = "hr_approve"
	TransitionHRReject      Action = "hr_reject"
	TransitionSchedule      Action = "schedule"
	TransitionEnjoy         Action = "enjoy"
	TransitionCancel        Action = "cancel"
)

type transitionKey struct {
	from   Status
	action Action
}

var transitions = map[transitionKey]Status{
	{StatusRequested, TransitionLeaderApprove}:  StatusLeaderApproved,
	{StatusRequested, TransitionLeaderReject}:   StatusLeaderRejected,
	{StatusLeaderApproved, TransitionHRApprove}: StatusHRApproved,
	{StatusLeaderApproved, TransitionHRReject}:  StatusHRRejected,
	{StatusHRApproved, TransitionSchedule}:      StatusScheduled,
	{StatusScheduled, TransitionSchedule}:       StatusScheduled,
	{StatusScheduled, TransitionEnjoy}:          StatusEnjoyed,
	{StatusRequested, TransitionCancel}:         StatusCancelled,
	{StatusLeaderApproved, TransitionCancel}:    StatusCancelled,
	{StatusHRApproved, TransitionCancel}:        StatusCancelled,
	{StatusScheduled, TransitionCancel}:         StatusCancelled,
}

// Next returns the status an action leads to, or IllegalTransitionError.
func Next(from Status, action Action) (Status, error) {
	to, ok := transitions[transitionKey{from, action}]
	if !ok {
		return "", &generic.IllegalTransitionError{From: string(from), Action: string(action)}
	}
	return to, nil
}

// CanTransition reports whether the action is allowed from the status.
func CanTransition(from Status, action Action) bool {
	_, ok := transitions[transitionKey{from, action}]
	return ok
}

// auditAction maps a transition to its trail action.
func (a Action) auditAction() AuditAction {
	switch a {
	case TransitionLeaderApprove:
		return ActionLeaderApprove
	case TransitionLeaderReject:
		return ActionLeaderReject
	case TransitionHRApprove:
		return ActionHRApprove
	case TransitionHRReject:
		return ActionHRReject
	case TransitionSchedule:
		return ActionSchedule
	case TransitionEnjoy:
		return ActionEnjoy
	default:
		return ActionCancel
	}
}
