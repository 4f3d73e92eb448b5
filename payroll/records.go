/*
records.go - Persisted pay records and the line-item projection

PURPOSE:
  Three record shapes carry pay through its lifecycle:

  TripPayRecord  - source of truth for automatically calculated trip pay.
                   At most one per trip, created on arrival, only ever
                   updated thereafter.
  CutPayRecord   - source of truth for manually requested adjustments.
  PayrollLineItem - the read/export projection. Exactly one per trip-pay
                   OR cut-pay record (mutually exclusive foreign keys).
                   The KPI/reporting layer reads ONLY this table.

INVARIANT:
  totalGrossPay == basePay + mileagePay + accessorialPay + bonusPay
                   - deductions
  holds after every mutation. RecomputeTotal re-establishes it; every
  write path calls it before persisting.

SEE ALSO:
  - payrun/sync.go: Keeps projection and source in lock-step
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRIP PAY RECORD - Source of truth for automatic pay
// =============================================================================

type TripPayRecord struct {
	ID          TripPayID
	TripID      TripID
	PayPeriodID PayPeriodID
	DriverID    DriverID

	BasePay        Money
	MileagePay     Money
	AccessorialPay Money
	BonusPay       Money
	Deductions     Money
	TotalGrossPay  Money

	Status TripPayStatus

	CalculatedAt *time.Time
	ReviewedAt   *time.Time
	ApprovedAt   *time.Time
	PaidAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputeTotal re-establishes the total-pay invariant.
func (r *TripPayRecord) RecomputeTotal() {
	r.TotalGrossPay = r.BasePay.
		Add(r.MileagePay).
		Add(r.AccessorialPay).
		Add(r.BonusPay).
		Sub(r.Deductions)
}

// SetStatus moves the record to the given status and stamps the matching
// lifecycle timestamp. Timestamps are write-once: a re-review does not
// erase the original approval time of an earlier pass.
func (r *TripPayRecord) SetStatus(to TripPayStatus, at time.Time) {
	r.Status = to
	switch to {
	case TripPayCalculated:
		if r.CalculatedAt == nil {
			r.CalculatedAt = &at
		}
	case TripPayReviewed:
		if r.ReviewedAt == nil {
			r.ReviewedAt = &at
		}
	case TripPayApproved:
		if r.ApprovedAt == nil {
			r.ApprovedAt = &at
		}
	case TripPayPaid:
		if r.PaidAt == nil {
			r.PaidAt = &at
		}
	}
	r.UpdatedAt = at
}

// =============================================================================
// CUT PAY RECORD - Source of truth for manual adjustments
// =============================================================================

type AdjustmentType string

const (
	AdjustHours AdjustmentType = "HOURS"
	AdjustMiles AdjustmentType = "MILES"
)

type CutPayRecord struct {
	ID       CutPayID
	DriverID DriverID
	TripID   TripID // optional; empty when not tied to a trip

	Amount         Money
	AdjustmentType AdjustmentType
	Quantity       decimal.Decimal // hours or miles, per AdjustmentType
	Description    string

	Status CutPayStatus

	WorkDate  Date
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetStatus moves the cut-pay record to the given status.
func (r *CutPayRecord) SetStatus(to CutPayStatus, at time.Time) {
	r.Status = to
	r.UpdatedAt = at
}

// =============================================================================
// PAYROLL LINE ITEM - Read/export projection
// =============================================================================

type PayrollLineItem struct {
	ID LineItemID

	// Mutually exclusive source keys; exactly one is set.
	TripPayID TripPayID
	CutPayID  CutPayID

	// Denormalized display fields.
	DriverID      DriverID
	DriverName    string
	TripNumber    string
	TrailerConfig TrailerConfig
	WorkDate      Date

	// Monetary fields mirrored from the source, with the aggregate
	// accessorial pay decomposed into named sub-categories.
	BasePay             Money
	MileagePay          Money
	DropHookPay         Money
	ChainUpPay          Money
	WaitTimePay         Money
	OtherAccessorialPay Money
	BonusPay            Money
	Deductions          Money
	CutPayHours         Money
	CutPayMiles         Money
	TotalPay            Money

	Miles    decimal.Decimal
	Quantity decimal.Decimal // cut-pay hours or miles

	Status Status

	ApprovedBy string
	ApprovedAt *time.Time
	ExportedBy string
	ExportedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FromTripPay reports whether this projection row mirrors a trip-pay record.
func (li *PayrollLineItem) FromTripPay() bool { return li.TripPayID != "" }
