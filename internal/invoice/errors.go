package invoice

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("invoice not found")
	ErrForbidden      = errors.New("invoice belongs to another wallet")
	ErrImmutable      = errors.New("invoice is no longer editable")
	ErrAlreadySettled = errors.New("transaction already settled")
	ErrRateLimited    = errors.New("invoice creation rate limit exceeded")
)

// InvalidStateTransition rejects a lifecycle change the state machine does not allow.
type InvalidStateTransition struct {
	Current   Status
	Requested Status
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.Current, e.Requested)
}

// IsInvalidTransition reports whether err is an *InvalidStateTransition.
func IsInvalidTransition(err error) bool {
	var ist *InvalidStateTransition
	return errors.As(err, &ist)
}

type ValidationErrorItem struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError carries every failed rule of a create or update request.
type ValidationError struct {
	Items []ValidationErrorItem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		msgs = append(msgs, it.Path+": "+it.Message)
	}
	return "invalid invoice: " + strings.Join(msgs, "; ")
}
