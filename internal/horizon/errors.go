package horizon

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// ErrTransactionNotFound is returned when the ledger has no record of a hash.
var ErrTransactionNotFound = errors.New("transaction not found")

// Error is a failed ledger request. Status is 0 when the request never
// produced an HTTP response.
type Error struct {
	Status  int
	Code    string
	Detail  string
	TxCode  string
	OpCodes []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("horizon")
	if e.Status != 0 {
		fmt.Fprintf(&b, " %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.TxCode != "" {
		fmt.Fprintf(&b, " [%s", e.TxCode)
		if len(e.OpCodes) > 0 {
			fmt.Fprintf(&b, " %s", strings.Join(e.OpCodes, ","))
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: rate limiting, a
// server-side error, or a transport failure.
func (e *Error) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Definitive reports whether the ledger rejected a submitted transaction
// with result codes, so it can never succeed as submitted.
func (e *Error) Definitive() bool {
	return e.Status == http.StatusBadRequest && e.TxCode != ""
}

// UserMessage maps ledger result codes to a message safe to show a payer.
func (e *Error) UserMessage() string {
	switch {
	case slices.Contains(e.OpCodes, "op_underfunded"):
		return "Insufficient balance to complete this payment. Please fund your wallet and try again."
	case slices.Contains(e.OpCodes, "op_no_trust"):
		return "Your wallet does not have a trustline for this asset. Please add a trustline in your wallet."
	case slices.Contains(e.OpCodes, "op_no_destination"):
		return "The recipient wallet does not exist on the Stellar network."
	case slices.Contains(e.OpCodes, "op_line_full"):
		return "The recipient wallet cannot receive more of this asset (limit reached)."
	}
	switch e.TxCode {
	case "tx_bad_seq":
		return "Transaction sequence error. Please try again."
	case "tx_too_late":
		return "The transaction timed out. Please create a new payment and try again."
	case "tx_insufficient_fee":
		return "Transaction fee was too low. Please try again."
	}
	switch e.Status {
	case http.StatusTooManyRequests:
		return "Network is busy. Please wait a moment and try again."
	case http.StatusServiceUnavailable:
		return "Stellar network is temporarily unavailable. Please try again later."
	}
	return defaultUserMessage
}

const defaultUserMessage = "Payment processing failed. Please try again."

// UserMessage returns the payer-facing message for any ledger error.
func UserMessage(err error) string {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.UserMessage()
	}
	return defaultUserMessage
}

// IsRetryable reports whether err is worth retrying on a later attempt.
// Errors that are not ledger errors are treated as transient.
func IsRetryable(err error) bool {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Retryable()
	}
	return !errors.Is(err, ErrTransactionNotFound)
}
