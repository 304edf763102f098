package invoice

import "fmt"

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusExpired    Status = "EXPIRED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"

	// StatusDeleted names the soft-delete request in transition errors. It is never stored.
	StatusDeleted Status = "DELETED"
)

// AllStatuses lists the storable states.
var AllStatuses = []Status{
	StatusDraft, StatusPending, StatusProcessing, StatusPaid,
	StatusExpired, StatusFailed, StatusCancelled,
}

// AwaitingSettlement are the states the scanner watches.
var AwaitingSettlement = []Status{StatusPending, StatusProcessing}

func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown invoice status %q", s)
}

// IsAwaitingSettlement reports whether the scanner treats s as payable.
func (s Status) IsAwaitingSettlement() bool {
	return s == StatusPending || s == StatusProcessing
}

func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusExpired, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Actor identifies who requests a transition.
type Actor string

const (
	ActorPayee      Actor = "payee"
	ActorPayer      Actor = "payer"
	ActorSweeper    Actor = "sweeper"
	ActorSettlement Actor = "settlement"
)

type transition struct {
	from Status
	to   Status
	by   Actor
}

var transitions = map[transition]bool{
	{StatusDraft, StatusPending, ActorPayee}:        true,
	{StatusDraft, StatusCancelled, ActorPayee}:      true,
	{StatusDraft, StatusDeleted, ActorPayee}:        true,
	{StatusPending, StatusProcessing, ActorPayer}:   true,
	{StatusProcessing, StatusPending, ActorPayer}:   true,
	{StatusPending, StatusExpired, ActorSweeper}:    true,
	{StatusProcessing, StatusExpired, ActorSweeper}: true,
	{StatusPending, StatusPaid, ActorSettlement}:    true,
	{StatusProcessing, StatusPaid, ActorSettlement}: true,
}

// CheckTransition returns nil when actor may move an invoice from one state to another.
func CheckTransition(from, to Status, actor Actor) error {
	if transitions[transition{from, to, actor}] {
		return nil
	}
	return &InvalidStateTransition{Current: from, Requested: to}
}

// SourcesFor lists the states from which actor may reach to.
func SourcesFor(to Status, actor Actor) []Status {
	var out []Status
	for _, from := range AllStatuses {
		if transitions[transition{from, to, actor}] {
			out = append(out, from)
		}
	}
	return out
}
