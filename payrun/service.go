/*
service.go - Pay calculation and mutation flows

PURPOSE:
  The write paths of the engine. Each flow mutates a source record and
  re-synchronizes its projection inside one store transaction.

FLOWS:
  HandleTripArrival  - best-effort automatic calculation on trip arrival;
                       failures are reported as "pay not calculated" and
                       never block the arrival event
  CalculatePay       - manual calculation; strict, surfaces specific errors
                       (no rate card / no driver / no open period)
  SetTripPayStatus   - status change through the unified vocabulary
  ApplyAdjustments   - bonus/deduction edits, total invariant re-established
  RequestCutPay      - manual adjustment record + projection
  SetCutPayStatus    - cut-pay status change
  CreatePeriod /
  TransitionPeriod   - operator-driven pay-period lifecycle

IDEMPOTENT RECOMPUTE:
  Calculating twice for the same trip never creates a second record. The
  insert runs against the storage-level uniqueness guarantee on trip id;
  on conflict the existing record's numeric fields are refreshed in place,
  preserving identity, creation timestamp, status, and any bonus or
  deduction already applied.

SEE ALSO:
  - sync.go: The projection synchronizer every flow ends with
*/
package payrun

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetline/payroll-engine/payroll"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store payroll.TxStore
	Calc  *payroll.PayCalculator
	Sync  *Synchronizer
	Log   *log.Logger
}

func NewService(store payroll.TxStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		Store: store,
		Calc:  payroll.NewPayCalculator(store),
		Sync:  NewSynchronizer(store, logger),
		Log:   logger,
	}
}

// =============================================================================
// TRIP ARRIVAL - Best-effort automatic calculation
// =============================================================================

// ArrivalResult reports whether pay was calculated for an arriving trip.
// Calculation is best-effort relative to the operational trip lifecycle:
// the arrival itself always succeeds.
type ArrivalResult struct {
	PayCalculated bool
	Reason        string
	TripPay       *payroll.TripPayRecord
}

// HandleTripArrival runs the automatic calculation path. On failure the
// error is logged and reported in the result, never returned.
func (s *Service) HandleTripArrival(ctx context.Context, tripID payroll.TripID) *ArrivalResult {
	rec, err := s.calculate(ctx, tripID, true)
	if err != nil {
		s.Log.Printf("WARN: trip %s arrived, pay not calculated: %v", tripID, err)
		return &ArrivalResult{Reason: fmt.Sprintf("pay not calculated: %v", err)}
	}

	// Arrival-completion step: the projection, and only the projection,
	// moves to COMPLETE.
	if err := s.completeArrival(ctx, rec.ID); err != nil {
		s.Log.Printf("WARN: trip %s: arrival completion: %v", tripID, err)
	}

	return &ArrivalResult{PayCalculated: true, TripPay: rec}
}

// CalculatePay is the manual path. Errors are surfaced to the caller and
// nothing is written on any of them.
func (s *Service) CalculatePay(ctx context.Context, tripID payroll.TripID) (*payroll.TripPayRecord, error) {
	return s.calculate(ctx, tripID, false)
}

func (s *Service) calculate(ctx context.Context, tripID payroll.TripID, autoCreatePeriod bool) (*payroll.TripPayRecord, error) {
	trip, err := s.Store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.Calc.GrossPay(ctx, trip, payroll.Today())
	if err != nil {
		return nil, err
	}

	period, err := s.Store.OpenPeriodContaining(ctx, trip.DispatchDate)
	if err != nil {
		return nil, err
	}
	var newPeriod *payroll.PayPeriod
	if period == nil {
		if !autoCreatePeriod {
			return nil, &payroll.NoOpenPeriodError{DispatchDate: trip.DispatchDate}
		}
		// Arrival-path fallback: a monthly OPEN period covering today.
		newPeriod = payroll.MonthlyPeriodFor(payroll.PayPeriodID(uuid.NewString()), payroll.Today())
		period = newPeriod
	}

	now := time.Now().UTC()
	var result *payroll.TripPayRecord

	err = s.Store.WithTx(ctx, func(st payroll.Store) error {
		rec := &payroll.TripPayRecord{
			ID:             payroll.TripPayID(uuid.NewString()),
			TripID:         trip.ID,
			PayPeriodID:    period.ID,
			DriverID:       trip.DriverID,
			BasePay:        breakdown.BasePay,
			MileagePay:     breakdown.MileagePay,
			AccessorialPay: breakdown.AccessorialPay,
			BonusPay:       payroll.ZeroMoney(),
			Deductions:     payroll.ZeroMoney(),
			Status:         payroll.TripPayCalculated,
			CalculatedAt:   &now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		rec.RecomputeTotal()

		switch insertErr := st.InsertTripPay(ctx, rec); {
		case insertErr == nil:
			// The fallback period is persisted only when a new record
			// actually lands in it; a recompute keeps the existing
			// record's original period.
			if newPeriod != nil {
				if err := st.SavePeriod(ctx, newPeriod); err != nil {
					return err
				}
			}
			result = rec
		case errors.Is(insertErr, payroll.ErrDuplicateTripPay):
			// Recompute: refresh the existing record's numeric fields,
			// keep its identity, status, and applied bonus/deductions.
			existing, err := st.TripPayByTrip(ctx, trip.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return insertErr
			}
			existing.BasePay = breakdown.BasePay
			existing.MileagePay = breakdown.MileagePay
			existing.AccessorialPay = breakdown.AccessorialPay
			existing.RecomputeTotal()
			existing.CalculatedAt = &now
			existing.UpdatedAt = now
			if err := st.UpdateTripPay(ctx, existing); err != nil {
				return err
			}
			result = existing
		default:
			return insertErr
		}

		return s.Sync.syncTripPay(ctx, st, result.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// completeArrival marks the projection COMPLETE. A missing projection is a
// reconciliation mismatch: logged as a warning, not corrected here.
func (s *Service) completeArrival(ctx context.Context, id payroll.TripPayID) error {
	return s.Store.WithTx(ctx, func(st payroll.Store) error {
		li, err := st.LineItemByTripPay(ctx, id)
		if err != nil {
			return err
		}
		if li == nil {
			s.Log.Printf("WARN: trip pay %s has no line item at arrival completion", id)
			return nil
		}
		complete := payroll.StatusComplete
		return s.Sync.syncTripPay(ctx, st, id, &complete)
	})
}

// =============================================================================
// STATUS AND ADJUSTMENT EDITS
// =============================================================================

// SetTripPayStatus applies a unified status to a trip-pay record. The native
// write-back goes through the adapter; COMPLETE has no trip-pay equivalent
// and is rejected here (it is set only by the arrival-completion step).
func (s *Service) SetTripPayStatus(ctx context.Context, id payroll.TripPayID, status payroll.Status) (*payroll.TripPayRecord, error) {
	native, ok := payroll.ToTripPayStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: status %s cannot be applied to a trip pay record", payroll.ErrInvalidInput, status)
	}

	now := time.Now().UTC()
	var result *payroll.TripPayRecord
	err := s.Store.WithTx(ctx, func(st payroll.Store) error {
		rec, err := st.GetTripPay(ctx, id)
		if err != nil {
			return err
		}
		rec.SetStatus(native, now)
		if err := st.UpdateTripPay(ctx, rec); err != nil {
			return err
		}
		result = rec

		// CANCELLED survives only on the projection; the source holds the
		// mapped native status.
		var override *payroll.Status
		if status == payroll.StatusCancelled {
			override = &status
		}
		return s.Sync.syncTripPay(ctx, st, id, override)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyAdjustments edits bonus pay and/or deductions. Nil leaves a field
// unchanged. The total invariant is re-established before persisting.
func (s *Service) ApplyAdjustments(ctx context.Context, id payroll.TripPayID, bonus, deductions *payroll.Money) (*payroll.TripPayRecord, error) {
	now := time.Now().UTC()
	var result *payroll.TripPayRecord
	err := s.Store.WithTx(ctx, func(st payroll.Store) error {
		rec, err := st.GetTripPay(ctx, id)
		if err != nil {
			return err
		}
		if bonus != nil {
			rec.BonusPay = *bonus
		}
		if deductions != nil {
			rec.Deductions = *deductions
		}
		rec.RecomputeTotal()
		rec.UpdatedAt = now
		if err := st.UpdateTripPay(ctx, rec); err != nil {
			return err
		}
		result = rec
		return s.Sync.syncTripPay(ctx, st, id, nil)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// CUT PAY
// =============================================================================

type CutPayInput struct {
	DriverID       payroll.DriverID
	TripID         payroll.TripID // optional
	Amount         payroll.Money
	AdjustmentType payroll.AdjustmentType
	Quantity       decimal.Decimal
	Description    string
	WorkDate       payroll.Date // zero = today
}

// RequestCutPay creates a manual pay adjustment and its projection.
func (s *Service) RequestCutPay(ctx context.Context, in CutPayInput) (*payroll.CutPayRecord, error) {
	if in.DriverID == "" {
		return nil, fmt.Errorf("%w: cut pay requires a driver", payroll.ErrInvalidInput)
	}
	if in.AdjustmentType != payroll.AdjustHours && in.AdjustmentType != payroll.AdjustMiles {
		return nil, fmt.Errorf("%w: unknown adjustment type %q", payroll.ErrInvalidInput, in.AdjustmentType)
	}

	workDate := in.WorkDate
	if workDate.IsZero() {
		workDate = payroll.Today()
	}

	now := time.Now().UTC()
	rec := &payroll.CutPayRecord{
		ID:             payroll.CutPayID(uuid.NewString()),
		DriverID:       in.DriverID,
		TripID:         in.TripID,
		Amount:         in.Amount,
		AdjustmentType: in.AdjustmentType,
		Quantity:       in.Quantity,
		Description:    in.Description,
		Status:         payroll.CutPayPending,
		WorkDate:       workDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.Store.WithTx(ctx, func(st payroll.Store) error {
		if err := st.InsertCutPay(ctx, rec); err != nil {
			return err
		}
		return s.Sync.syncCutPay(ctx, st, rec.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetCutPayStatus applies a unified status to a cut-pay record.
func (s *Service) SetCutPayStatus(ctx context.Context, id payroll.CutPayID, status payroll.Status) (*payroll.CutPayRecord, error) {
	native, ok := payroll.ToCutPayStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: status %s cannot be applied to a cut pay record", payroll.ErrInvalidInput, status)
	}

	now := time.Now().UTC()
	var result *payroll.CutPayRecord
	err := s.Store.WithTx(ctx, func(st payroll.Store) error {
		rec, err := st.GetCutPay(ctx, id)
		if err != nil {
			return err
		}
		rec.SetStatus(native, now)
		if err := st.UpdateCutPay(ctx, rec); err != nil {
			return err
		}
		result = rec

		var override *payroll.Status
		if status == payroll.StatusCancelled {
			override = &status
		}
		return s.Sync.syncCutPay(ctx, st, id, override)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// PAY PERIODS
// =============================================================================

// CreatePeriod opens a new pay period over [start, end].
func (s *Service) CreatePeriod(ctx context.Context, start, end payroll.Date) (*payroll.PayPeriod, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: pay period end %s before start %s", payroll.ErrInvalidInput, end, start)
	}
	p := &payroll.PayPeriod{
		ID:        payroll.PayPeriodID(uuid.NewString()),
		StartDate: start,
		EndDate:   end,
		Status:    payroll.PeriodOpen,
	}
	if err := s.Store.SavePeriod(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// TransitionPeriod applies one lifecycle edge to a period.
func (s *Service) TransitionPeriod(ctx context.Context, id payroll.PayPeriodID, target payroll.PeriodStatus) (*payroll.PayPeriod, error) {
	var result *payroll.PayPeriod
	err := s.Store.WithTx(ctx, func(st payroll.Store) error {
		p, err := st.GetPeriod(ctx, id)
		if err != nil {
			return err
		}
		if err := p.Transition(target); err != nil {
			return err
		}
		if err := st.SavePeriod(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
