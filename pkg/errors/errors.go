// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Submission errors. Each maps to exactly one rejection reason so callers
// can render a precise message instead of a generic failure.
var (
	ErrAccountNotFound      = errors.New("card account not found")
	ErrCardInactive         = errors.New("card is not active")
	ErrCardExpired          = errors.New("card is expired")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateTransaction = errors.New("transaction already processed")
	ErrComplianceRejected   = errors.New("transaction rejected by compliance rules")

	ErrTransactionNotFound = errors.New("transaction not found")

	ErrVendorNotFound   = errors.New("vendor not found")
	ErrCitizenNotFound  = errors.New("citizen not found")
	ErrCardTypeNotFound = errors.New("card type not found")
	ErrRuleNotFound     = errors.New("rule not found")

	// ErrRuleEvaluation marks a rule that could not be parsed or scored.
	// It is logged and the rule skipped, never surfaced to the submitter.
	ErrRuleEvaluation = errors.New("rule evaluation failed")
)

// Reason is the machine-readable rejection code surfaced to callers.
type Reason string

const (
	ReasonAccountNotFound      Reason = "AccountNotFound"
	ReasonCardInactive         Reason = "CardInactive"
	ReasonCardExpired          Reason = "CardExpired"
	ReasonInsufficientFunds    Reason = "InsufficientFunds"
	ReasonDuplicateTransaction Reason = "DuplicateTransaction"
	ReasonComplianceRejected   Reason = "ComplianceRejected"
	ReasonVendorNotFound       Reason = "VendorNotFound"
	ReasonInternal             Reason = "Internal"
)

// ReasonFor maps a submission error to its rejection code.
func ReasonFor(err error) Reason {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return ReasonAccountNotFound
	case errors.Is(err, ErrCardInactive):
		return ReasonCardInactive
	case errors.Is(err, ErrCardExpired):
		return ReasonCardExpired
	case errors.Is(err, ErrInsufficientFunds):
		return ReasonInsufficientFunds
	case errors.Is(err, ErrDuplicateTransaction):
		return ReasonDuplicateTransaction
	case errors.Is(err, ErrComplianceRejected):
		return ReasonComplianceRejected
	case errors.Is(err, ErrVendorNotFound):
		return ReasonVendorNotFound
	default:
		return ReasonInternal
	}
}

// IsRejection reports whether err is a typed submission rejection rather
// than an infrastructure failure.
func IsRejection(err error) bool {
	return ReasonFor(err) != ReasonInternal
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// New is re-exported so callers don't need both error packages.
func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
