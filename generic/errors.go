/*
errors.go - Centralized error types for the vacation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is against a CATEGORY sentinel and, when they
  care, against the specific RULE sentinel. Structured errors unwrap to both.

ERROR CATEGORIES:
  1. Validation errors      - malformed input (bad dates, non-positive days)
  2. Business rule errors   - well-formed input the rules refuse
                              (insufficient balance, overlap, illegal transition)
  3. Data integrity errors  - persisted state that violates an invariant
                              (negative balance, drifted available days).
                              Surfaced, never auto-corrected.
  4. Store errors           - not found, concurrent modification

USAGE:

    if errors.Is(err, generic.ErrBusinessRule) { ... 422 ... }
    if errors.Is(err, generic.ErrInsufficientBalance) { ... }

    var ibe *generic.InsufficientBalanceError
    if errors.As(err, &ibe) { log shortfall }

SEE ALSO:
  - vacation/balance.go: raises DataIntegrityError
  - vacation/statemachine.go: raises IllegalTransitionError
  - api/handlers.go: maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORY SENTINELS
// =============================================================================

var (
	ErrValidation    = errors.New("validation error")
	ErrBusinessRule  = errors.New("business rule violation")
	ErrDataIntegrity = errors.New("data integrity error")
)

// =============================================================================
// RULE SENTINELS - Use with errors.Is()
// =============================================================================

var (
	// Validation
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidDates     = errors.New("invalid dates")
	ErrInvalidDateOrder = errors.New("date precedes hire date")
	ErrFutureDate       = errors.New("date is in the future")
	ErrReasonRequired   = errors.New("reason required")

	// Business rules
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrOverlappingRequest    = errors.New("overlapping request")
	ErrIllegalTransition     = errors.New("illegal status transition")
	ErrForbidden             = errors.New("actor not allowed")
	ErrOverlappingSuspension = errors.New("overlapping suspension")
	ErrNotYetStarted         = errors.New("vacation has not started")
	ErrBaseUnchanged         = errors.New("calculation base unchanged")
	ErrNothingToRevert       = errors.New("no base change to revert")
	ErrBaseChangeActive      = errors.New("previous base change must be reverted")
	ErrAlreadyVerified       = errors.New("record already verified")
	ErrAlreadyExists         = errors.New("already exists")

	// Data integrity
	ErrNegativeBalance = errors.New("negative balance")
	ErrBalanceDrift    = errors.New("available days drift from counters")
	ErrPIIInAuditLog   = errors.New("personal data in audit log")

	// Store
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError rejects malformed input.
type ValidationError struct {
	Rule    error
	Field   string
	Message string
}

func NewValidationError(rule error, field, message string) *ValidationError {
	return &ValidationError{Rule: rule, Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Rule, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrValidation, e.Rule} }

// BusinessRuleError rejects a well-formed operation the rules forbid.
type BusinessRuleError struct {
	Rule    error
	Message string
}

func NewBusinessRuleError(rule error, format string, args ...any) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() []error { return []error{ErrBusinessRule, e.Rule} }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		Round2(e.Available), e.Requested, Round2(e.Shortfall()))
}

func (e *InsufficientBalanceError) Unwrap() []error {
	return []error{ErrBusinessRule, ErrInsufficientBalance}
}

// IllegalTransitionError names the refused (status, action) pair.
type IllegalTransitionError struct {
	From   string
	Action string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition: cannot %s from %s", e.Action, e.From)
}

func (e *IllegalTransitionError) Unwrap() []error {
	return []error{ErrBusinessRule, ErrIllegalTransition}
}

// DataIntegrityError reports persisted state that breaks an invariant.
type DataIntegrityError struct {
	Rule       error
	CompanyID  string
	EmployeeID string
	Message    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("%s: company %s employee %s: %s", e.Rule, e.CompanyID, e.EmployeeID, e.Message)
}

func (e *DataIntegrityError) Unwrap() []error { return []error{ErrDataIntegrity, e.Rule} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrBusinessRule)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotFound wraps ErrNotFound with the missing resource.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
