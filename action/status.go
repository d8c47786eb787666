// Package action defines the LiveAction/QueueItem data model shared by the
// scheduling core and its store implementations.
package action

// Status is the closed set of states a LiveAction can occupy.
type Status string

const (
	StatusRequested     Status = "requested"
	StatusScheduled     Status = "scheduled"
	StatusDelayed       Status = "delayed"
	StatusPolicyDelayed Status = "policy_delayed"
	StatusCanceling     Status = "canceling"
	StatusCanceled      Status = "canceled"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
	StatusTimeout       Status = "timeout"
	StatusAbandoned     Status = "abandoned"
	StatusExpired       Status = "expired"
)

// RunnableStates is the set of statuses the dispatch worker will schedule.
var RunnableStates = map[Status]bool{
	StatusRequested: true,
	StatusScheduled: true,
	StatusDelayed:   true,
}

// CompletedStates is the set of terminal, successfully-run-or-failed statuses.
var CompletedStates = map[Status]bool{
	StatusSucceeded: true,
	StatusFailed:    true,
	StatusTimeout:   true,
	StatusAbandoned: true,
	StatusExpired:   true,
}

// CancelStates is the set of cancellation statuses.
var CancelStates = map[Status]bool{
	StatusCanceling: true,
	StatusCanceled:  true,
}

// IsRunnable reports whether s is eligible to be scheduled.
func (s Status) IsRunnable() bool { return RunnableStates[s] }

// IsCompletedOrCanceled reports whether s is a terminal or cancel status.
func (s Status) IsCompletedOrCanceled() bool {
	return CompletedStates[s] || CancelStates[s]
}
