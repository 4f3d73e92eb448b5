/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The payrun and export packages wrap these with additional context.

ERROR CATEGORIES:
  1. Calculation errors - Missing inputs that make pay uncomputable
  2. Lifecycle errors - Rejected pay-period transitions
  3. Store errors - Uniqueness and not-found conditions

USAGE:
  if errors.Is(err, payroll.ErrNoRateCard) {
      // surface "no rate card" to the caller, nothing was written
  }

SEE ALSO:
  - calculator.go: Returns the terminal calculation errors
  - period.go: Returns InvalidTransitionError
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoRateCard is returned when no tier of the precedence hierarchy
	// yields an eligible rate card. Distinct from a zero-rate card.
	ErrNoRateCard = errors.New("no applicable rate card")

	// ErrTripHasNoDriver is returned when pay is requested for an
	// unassigned trip. Terminal: no partial record is written.
	ErrTripHasNoDriver = errors.New("trip has no driver")

	// ErrTripHasNoLinehaul is returned when the trip carries no linehaul
	// profile. Terminal: no partial record is written.
	ErrTripHasNoLinehaul = errors.New("trip has no linehaul profile")

	// ErrNoOpenPeriod is returned by manual calculation when no OPEN pay
	// period covers the trip's dispatch date. The arrival path auto-creates
	// a monthly period instead.
	ErrNoOpenPeriod = errors.New("no open pay period covers dispatch date")

	// ErrDuplicateTripPay is returned when inserting a second pay record
	// for a trip. The storage layer enforces this with a unique constraint.
	ErrDuplicateTripPay = errors.New("trip already has a pay record")

	// ErrUnknownItemType is returned by bulk operations for item types
	// other than trip pay and cut pay.
	ErrUnknownItemType = errors.New("unknown line item type")

	// ErrRecordNotFound is returned when a referenced record doesn't exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidInput is the base for caller-input validation failures in the
	// write flows (bad adjustment type, missing driver, unsupported status).
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError names the rejected pay-period edge.
type InvalidTransitionError struct {
	From PeriodStatus
	To   PeriodStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid pay period transition: %s -> %s", e.From, e.To)
}

// NoOpenPeriodError carries the dispatch date that no OPEN period covers.
type NoOpenPeriodError struct {
	DispatchDate Date
}

func (e *NoOpenPeriodError) Error() string {
	return fmt.Sprintf("no open pay period covers %s", e.DispatchDate)
}

func (e *NoOpenPeriodError) Unwrap() error { return ErrNoOpenPeriod }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than an internal failure.
func IsClientError(err error) bool {
	var transition *InvalidTransitionError
	return errors.Is(err, ErrNoRateCard) ||
		errors.Is(err, ErrTripHasNoDriver) ||
		errors.Is(err, ErrTripHasNoLinehaul) ||
		errors.Is(err, ErrNoOpenPeriod) ||
		errors.Is(err, ErrUnknownItemType) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.As(err, &transition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
