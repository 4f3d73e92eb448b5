/*
status.go - Canonical line-item status and the native-vocabulary adapters

PURPOSE:
  Three status vocabularies exist in this system: the trip-pay record's,
  the cut-pay record's, and the unified status carried on the payroll line
  item projection. This file holds the ONE canonical status type and the
  only four functions allowed to translate between vocabularies. No other
  code may switch over a native status.

TRANSLATION TABLE:
  TripPay    | CutPay   | Unified
  -----------+----------+-----------
  PENDING    | PENDING  | PENDING
  CALCULATED | -        | CALCULATED
  REVIEWED   | -        | REVIEWED
  APPROVED   | APPROVED | APPROVED
  PAID       | PAID     | PAID
  DISPUTED   | REJECTED | DISPUTED
  -          | -        | COMPLETE   (arrival-completion step only)
  DISPUTED*  | REJECTED*| CANCELLED  (* write-back direction only)

UNMAPPED INPUTS:
  A source status with no mapping translates to PENDING; callers log a
  warning and carry on. Translation is never a hard failure.

SEE ALSO:
  - payrun/sync.go: The only caller of the forward adapters
  - export/export.go: Approvable-status sets
*/
package payroll

// =============================================================================
// CANONICAL STATUS - Carried on the PayrollLineItem projection
// =============================================================================

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusCalculated Status = "CALCULATED"
	StatusReviewed   Status = "REVIEWED"
	StatusApproved   Status = "APPROVED"
	StatusPaid       Status = "PAID"
	StatusDisputed   Status = "DISPUTED"
	StatusComplete   Status = "COMPLETE"
	StatusCancelled  Status = "CANCELLED"
)

// =============================================================================
// NATIVE VOCABULARIES
// =============================================================================

type TripPayStatus string

const (
	TripPayPending    TripPayStatus = "PENDING"
	TripPayCalculated TripPayStatus = "CALCULATED"
	TripPayReviewed   TripPayStatus = "REVIEWED"
	TripPayApproved   TripPayStatus = "APPROVED"
	TripPayPaid       TripPayStatus = "PAID"
	TripPayDisputed   TripPayStatus = "DISPUTED"
)

type CutPayStatus string

const (
	CutPayPending  CutPayStatus = "PENDING"
	CutPayApproved CutPayStatus = "APPROVED"
	CutPayRejected CutPayStatus = "REJECTED"
	CutPayPaid     CutPayStatus = "PAID"
)

// =============================================================================
// ADAPTERS - The only translation code in the repository
// =============================================================================

// StatusFromTripPay maps a trip-pay status to the unified vocabulary.
// The second return is false when the input has no mapping; callers default
// to StatusPending and log a warning.
func StatusFromTripPay(s TripPayStatus) (Status, bool) {
	switch s {
	case TripPayPending:
		return StatusPending, true
	case TripPayCalculated:
		return StatusCalculated, true
	case TripPayReviewed:
		return StatusReviewed, true
	case TripPayApproved:
		return StatusApproved, true
	case TripPayPaid:
		return StatusPaid, true
	case TripPayDisputed:
		return StatusDisputed, true
	}
	return StatusPending, false
}

// StatusFromCutPay maps a cut-pay status to the unified vocabulary.
func StatusFromCutPay(s CutPayStatus) (Status, bool) {
	switch s {
	case CutPayPending:
		return StatusPending, true
	case CutPayApproved:
		return StatusApproved, true
	case CutPayRejected:
		return StatusDisputed, true
	case CutPayPaid:
		return StatusPaid, true
	}
	return StatusPending, false
}

// ToTripPayStatus is the write-back adapter. CANCELLED lands as DISPUTED on
// the source record. COMPLETE is projection-only and has no native
// equivalent, so the second return is false and the source is left untouched.
func ToTripPayStatus(s Status) (TripPayStatus, bool) {
	switch s {
	case StatusPending:
		return TripPayPending, true
	case StatusCalculated:
		return TripPayCalculated, true
	case StatusReviewed:
		return TripPayReviewed, true
	case StatusApproved:
		return TripPayApproved, true
	case StatusPaid:
		return TripPayPaid, true
	case StatusDisputed, StatusCancelled:
		return TripPayDisputed, true
	}
	return TripPayPending, false
}

// ToCutPayStatus is the cut-pay write-back adapter. CANCELLED and DISPUTED
// both land as REJECTED. The review states only exist for trip pay.
func ToCutPayStatus(s Status) (CutPayStatus, bool) {
	switch s {
	case StatusPending:
		return CutPayPending, true
	case StatusApproved:
		return CutPayApproved, true
	case StatusPaid:
		return CutPayPaid, true
	case StatusDisputed, StatusCancelled:
		return CutPayRejected, true
	}
	return CutPayPending, false
}
