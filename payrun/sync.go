/*
Package payrun drives pay calculation and keeps the line-item projection in
lock-step with its source records.

PURPOSE:
  The synchronizer in this file is the single consistency component between
  the two sources of truth (trip pay, cut pay) and the read/export
  projection (payroll line items). Every mutation of a source record -
  creation, status change, bonus/deduction edit - must be followed by a
  sync so the projection never diverges. Divergence is a correctness bug,
  not an acceptable eventual-consistency window.

HOW IT STAYS CONSISTENT:
  - The upsert is atomic on the unique source-id foreign key; there is no
    existence-check-then-branch window.
  - Source write + sync run inside one store transaction (callers in
    service.go pass the transactional store through).
  - Sync is idempotent: re-running it over unchanged state writes the same
    projection row with the same identity and creation timestamp.

ACCESSORIAL DECOMPOSITION:
  The source record stores only the aggregate accessorial figure. The
  projection decomposes it into drop-and-hook, chain-up, wait-time, and
  other, using fixed per-unit estimate rates over the trip's delay
  records:
    other = max(0, total - dropHook - chainUp - waitTime)

SEE ALSO:
  - service.go: The write paths that invoke the synchronizer
  - payroll/status.go: The only status translation code
*/
package payrun

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetline/payroll-engine/payroll"
)

// =============================================================================
// ESTIMATE RATES - Fixed per-unit rates for the sub-category split
// =============================================================================

var (
	dropHookEstimateRate = payroll.MustParseMoney("25.00") // per drop-and-hook event
	chainUpEstimateRate  = payroll.MustParseMoney("50.00") // per chain-up event
	waitTimeEstimateRate = payroll.MustParseMoney("0.25")  // per detention minute
)

// =============================================================================
// SYNCHRONIZER
// =============================================================================

type Synchronizer struct {
	Store payroll.TxStore
	Log   *log.Logger
}

func NewSynchronizer(store payroll.TxStore, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synchronizer{Store: store, Log: logger}
}

// SyncTripPay upserts the projection row for a trip-pay record. Idempotent;
// safe to call redundantly.
func (s *Synchronizer) SyncTripPay(ctx context.Context, id payroll.TripPayID) error {
	return s.Store.WithTx(ctx, func(st payroll.Store) error {
		return s.syncTripPay(ctx, st, id, nil)
	})
}

// SyncCutPay upserts the projection row for a cut-pay record.
func (s *Synchronizer) SyncCutPay(ctx context.Context, id payroll.CutPayID) error {
	return s.Store.WithTx(ctx, func(st payroll.Store) error {
		return s.syncCutPay(ctx, st, id, nil)
	})
}

// SyncTripPayIn is SyncTripPay for callers already inside a transaction,
// such as the bulk approval batches.
func (s *Synchronizer) SyncTripPayIn(ctx context.Context, st payroll.Store, id payroll.TripPayID) error {
	return s.syncTripPay(ctx, st, id, nil)
}

// SyncCutPayIn is SyncCutPay for callers already inside a transaction.
func (s *Synchronizer) SyncCutPayIn(ctx context.Context, st payroll.Store, id payroll.CutPayID) error {
	return s.syncCutPay(ctx, st, id, nil)
}

// syncTripPay runs inside the caller's transaction. statusOverride carries a
// unified status that has no native equivalent on the source (CANCELLED);
// when nil the status is derived from the source record.
func (s *Synchronizer) syncTripPay(ctx context.Context, st payroll.Store, id payroll.TripPayID, statusOverride *payroll.Status) error {
	rec, err := st.GetTripPay(ctx, id)
	if err != nil {
		return fmt.Errorf("sync trip pay %s: %w", id, err)
	}
	trip, err := st.GetTrip(ctx, rec.TripID)
	if err != nil {
		return fmt.Errorf("sync trip pay %s: trip %s: %w", id, rec.TripID, err)
	}

	status := s.translateTripPay(rec)
	if statusOverride != nil {
		status = *statusOverride
	}

	dropHook, chainUp, waitTime, other := decomposeAccessorial(rec.AccessorialPay, trip.Delays)

	now := time.Now().UTC()
	item := &payroll.PayrollLineItem{
		ID:        payroll.LineItemID(uuid.NewString()),
		TripPayID: rec.ID,

		DriverID:   rec.DriverID,
		DriverName: trip.DriverName,
		TripNumber: trip.Number,
		WorkDate:   trip.DispatchDate,

		BasePay:             rec.BasePay,
		MileagePay:          rec.MileagePay,
		DropHookPay:         dropHook,
		ChainUpPay:          chainUp,
		WaitTimePay:         waitTime,
		OtherAccessorialPay: other,
		BonusPay:            rec.BonusPay,
		Deductions:          rec.Deductions,
		TotalPay:            rec.TotalGrossPay,

		Miles:  trip.Miles(),
		Status: status,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if trip.Linehaul != nil {
		item.TrailerConfig = trip.Linehaul.TrailerConfig
	}

	return st.UpsertLineItem(ctx, item)
}

func (s *Synchronizer) syncCutPay(ctx context.Context, st payroll.Store, id payroll.CutPayID, statusOverride *payroll.Status) error {
	rec, err := st.GetCutPay(ctx, id)
	if err != nil {
		return fmt.Errorf("sync cut pay %s: %w", id, err)
	}

	status := s.translateCutPay(rec)
	if statusOverride != nil {
		status = *statusOverride
	}

	now := time.Now().UTC()
	item := &payroll.PayrollLineItem{
		ID:       payroll.LineItemID(uuid.NewString()),
		CutPayID: rec.ID,

		DriverID: rec.DriverID,
		WorkDate: rec.WorkDate,

		TotalPay: rec.Amount,
		Quantity: rec.Quantity,
		Status:   status,

		CreatedAt: now,
		UpdatedAt: now,
	}

	switch rec.AdjustmentType {
	case payroll.AdjustMiles:
		item.CutPayMiles = rec.Amount
	default:
		item.CutPayHours = rec.Amount
	}

	// Denormalize trip display fields when the adjustment is tied to one.
	if rec.TripID != "" {
		trip, err := st.GetTrip(ctx, rec.TripID)
		if err == nil {
			item.DriverName = trip.DriverName
			item.TripNumber = trip.Number
			if trip.Linehaul != nil {
				item.TrailerConfig = trip.Linehaul.TrailerConfig
			}
		} else if !payroll.IsNotFound(err) {
			return fmt.Errorf("sync cut pay %s: trip %s: %w", id, rec.TripID, err)
		}
	}

	return st.UpsertLineItem(ctx, item)
}

// translateTripPay maps the native status, defaulting to PENDING with a
// warning on unmapped input. Never a hard failure.
func (s *Synchronizer) translateTripPay(rec *payroll.TripPayRecord) payroll.Status {
	status, ok := payroll.StatusFromTripPay(rec.Status)
	if !ok {
		s.Log.Printf("WARN: trip pay %s has unmapped status %q, defaulting line item to PENDING", rec.ID, rec.Status)
	}
	return status
}

func (s *Synchronizer) translateCutPay(rec *payroll.CutPayRecord) payroll.Status {
	status, ok := payroll.StatusFromCutPay(rec.Status)
	if !ok {
		s.Log.Printf("WARN: cut pay %s has unmapped status %q, defaulting line item to PENDING", rec.ID, rec.Status)
	}
	return status
}

// =============================================================================
// ACCESSORIAL DECOMPOSITION
// =============================================================================

func decomposeAccessorial(total payroll.Money, delays []payroll.Delay) (dropHook, chainUp, waitTime, other payroll.Money) {
	var dropHookCount, chainUpCount, detentionMinutes int64
	for _, d := range delays {
		switch d.Code {
		case payroll.DelayDropHook:
			dropHookCount++
		case payroll.DelayChainUp:
			chainUpCount++
		default:
			if cat, ok := payroll.CategoryForDelay(d.Code); ok && cat == payroll.CategoryDetention {
				detentionMinutes += int64(d.Minutes)
			}
		}
	}

	dropHook = dropHookEstimateRate.Mul(decimal.NewFromInt(dropHookCount))
	chainUp = chainUpEstimateRate.Mul(decimal.NewFromInt(chainUpCount))
	waitTime = waitTimeEstimateRate.Mul(decimal.NewFromInt(detentionMinutes))

	other = total.Sub(dropHook).Sub(chainUp).Sub(waitTime)
	if other.IsNegative() {
		other = payroll.ZeroMoney()
	}
	return dropHook, chainUp, waitTime, other
}
