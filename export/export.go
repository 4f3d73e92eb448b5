/*
export.go - Bulk approval and the external payroll feed

PURPOSE:
  The two back-office operations that close out a pay cycle:

  BulkApprove    - approve a mixed batch of trip-pay and cut-pay items.
                   Each item type is one batched status update in its own
                   transaction; a failure in one type's batch does not
                   roll back the other's. Items outside the approvable
                   window are skipped, never errored.
  ExportApproved - build the driver-grouped feed over a date range and,
                   optionally, stamp the included line items as exported.
                   Artifact selection and stamping run in one transaction
                   so the file never names an item it failed to stamp.

APPROVABLE WINDOWS:
  Trip pay: PENDING, CALCULATED, REVIEWED
  Cut pay:  PENDING

SEE ALSO:
  - types.go: Paycode table and the artifact shapes
  - payrun/sync.go: The synchronizer re-run after each batch
*/
package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetline/payroll-engine/payroll"
	"github.com/fleetline/payroll-engine/payrun"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store payroll.TxStore
	Sync  *payrun.Synchronizer
	Log   *log.Logger
}

func NewService(store payroll.TxStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		Store: store,
		Sync:  payrun.NewSynchronizer(store, logger),
		Log:   logger,
	}
}

// =============================================================================
// BULK APPROVAL
// =============================================================================

var (
	tripPayApprovable = []payroll.TripPayStatus{
		payroll.TripPayPending,
		payroll.TripPayCalculated,
		payroll.TripPayReviewed,
	}
	cutPayApprovable = []payroll.CutPayStatus{
		payroll.CutPayPending,
	}
)

// BulkApprove approves a mixed batch. The whole request is rejected up front
// when any item carries an unknown type; after that point the two per-type
// batches are independent and the result reports what each achieved.
func (s *Service) BulkApprove(ctx context.Context, items []ItemRef, approvedBy string) (*ApprovalResult, error) {
	var tripIDs []payroll.TripPayID
	var cutIDs []payroll.CutPayID
	for _, it := range items {
		switch it.Type {
		case ItemTripPay:
			tripIDs = append(tripIDs, payroll.TripPayID(it.ID))
		case ItemCutPay:
			cutIDs = append(cutIDs, payroll.CutPayID(it.ID))
		default:
			return nil, fmt.Errorf("%w: %q", payroll.ErrUnknownItemType, it.Type)
		}
	}

	result := &ApprovalResult{}
	now := time.Now().UTC()

	var tripErr, cutErr error
	if len(tripIDs) > 0 {
		result.TripPayApproved, tripErr = s.approveTripPay(ctx, tripIDs, approvedBy, now)
		if tripErr != nil {
			s.Log.Printf("WARN: bulk approval: trip pay batch failed: %v", tripErr)
		}
	}
	if len(cutIDs) > 0 {
		result.CutPayApproved, cutErr = s.approveCutPay(ctx, cutIDs, approvedBy, now)
		if cutErr != nil {
			s.Log.Printf("WARN: bulk approval: cut pay batch failed: %v", cutErr)
		}
	}
	return result, errors.Join(tripErr, cutErr)
}

func (s *Service) approveTripPay(ctx context.Context, ids []payroll.TripPayID, approvedBy string, now time.Time) (int, error) {
	var approved int
	err := s.Store.WithTx(ctx, func(st payroll.Store) error {
		transitioned, err := st.UpdateTripPayStatusBatch(ctx, ids, tripPayApprovable, payroll.TripPayApproved, now)
		if err != nil {
			return err
		}

		var lineItemIDs []payroll.LineItemID
		for _, id := range transitioned {
			if err := s.Sync.SyncTripPayIn(ctx, st, id); err != nil {
				return err
			}
			li, err := st.LineItemByTripPay(ctx, id)
			if err != nil {
				return err
			}
			if li != nil {
				lineItemIDs = append(lineItemIDs, li.ID)
			}
		}
		if len(lineItemIDs) > 0 {
			if err := st.SetLineItemApproval(ctx, lineItemIDs, approvedBy, now); err != nil {
				return err
			}
		}
		approved = len(transitioned)
		return nil
	})
	return approved, err
}

func (s *Service) approveCutPay(ctx context.Context, ids []payroll.CutPayID, approvedBy string, now time.Time) (int, error) {
	var approved int
	err := s.Store.WithTx(ctx, func(st payroll.Store) error {
		transitioned, err := st.UpdateCutPayStatusBatch(ctx, ids, cutPayApprovable, payroll.CutPayApproved, now)
		if err != nil {
			return err
		}

		var lineItemIDs []payroll.LineItemID
		for _, id := range transitioned {
			if err := s.Sync.SyncCutPayIn(ctx, st, id); err != nil {
				return err
			}
			li, err := st.LineItemByCutPay(ctx, id)
			if err != nil {
				return err
			}
			if li != nil {
				lineItemIDs = append(lineItemIDs, li.ID)
			}
		}
		if len(lineItemIDs) > 0 {
			if err := st.SetLineItemApproval(ctx, lineItemIDs, approvedBy, now); err != nil {
				return err
			}
		}
		approved = len(transitioned)
		return nil
	})
	return approved, err
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportApproved builds the feed from every APPROVED line item whose work
// date falls in [from, to]. With markExported set, the included items are
// stamped in the same transaction that selected them.
func (s *Service) ExportApproved(ctx context.Context, from, to payroll.Date, markExported bool, operator string) (*ExportFile, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: export range %s to %s", payroll.ErrInvalidInput, from, to)
	}

	now := time.Now().UTC()
	var file *ExportFile
	err := s.Store.WithTx(ctx, func(st payroll.Store) error {
		approved := payroll.StatusApproved
		items, err := st.ListLineItems(ctx, payroll.LineItemFilter{
			From:   &from,
			To:     &to,
			Status: &approved,
		})
		if err != nil {
			return err
		}

		file = buildFile(items, from, to, now)

		if markExported && len(items) > 0 {
			ids := make([]payroll.LineItemID, len(items))
			for i, li := range items {
				ids[i] = li.ID
			}
			if err := st.MarkLineItemsExported(ctx, ids, operator, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// buildFile turns line items into the driver-grouped artifact. Items arrive
// already ordered by (driver, work date, id), so grouping on driver change
// yields a deterministic file.
func buildFile(items []payroll.PayrollLineItem, from, to payroll.Date, generatedAt time.Time) *ExportFile {
	file := &ExportFile{
		GeneratedAt: generatedAt,
		From:        from,
		To:          to,
		Total:       payroll.ZeroMoney(),
	}

	var current *DriverExport
	flush := func() {
		if current == nil {
			return
		}
		current.Subtotals = subtotals(current.Lines)
		file.Drivers = append(file.Drivers, *current)
		file.Total = file.Total.Add(current.Total)
		current = nil
	}

	for _, li := range items {
		if current == nil || current.DriverID != li.DriverID {
			flush()
			current = &DriverExport{
				DriverID:   li.DriverID,
				DriverName: li.DriverName,
				Total:      payroll.ZeroMoney(),
			}
		}
		if current.DriverName == "" {
			current.DriverName = li.DriverName
		}
		for _, line := range linesFor(&li) {
			current.Lines = append(current.Lines, line)
			current.Total = current.Total.Add(line.Amount)
		}
	}
	flush()

	for _, d := range file.Drivers {
		file.LineCount += len(d.Lines)
	}
	return file
}

// linesFor expands one line item into its paycode lines. Zero-amount
// categories are omitted; deductions export as a negative amount.
func linesFor(li *payroll.PayrollLineItem) []ExportLine {
	ref := li.TripNumber
	if !li.FromTripPay() {
		ref = cutPayReference(li.CutPayID)
	}

	type entry struct {
		category PayCategory
		amount   payroll.Money
		quantity decimal.Decimal
	}

	var entries []entry
	if li.FromTripPay() {
		entries = []entry{
			{CategoryBase, li.BasePay, decimal.Zero},
			{CategoryMileage, li.MileagePay, li.Miles},
			{CategoryDropHook, li.DropHookPay, decimal.Zero},
			{CategoryChainUp, li.ChainUpPay, decimal.Zero},
			{CategoryWaitTime, li.WaitTimePay, decimal.Zero},
			{CategoryOther, li.OtherAccessorialPay, decimal.Zero},
			{CategoryBonus, li.BonusPay, decimal.Zero},
			{CategoryDeduct, li.Deductions.Neg(), decimal.Zero},
		}
	} else {
		entries = []entry{
			{CategoryCutHours, li.CutPayHours, li.Quantity},
			{CategoryCutMiles, li.CutPayMiles, li.Quantity},
		}
	}

	var lines []ExportLine
	for _, e := range entries {
		if e.amount.IsZero() {
			continue
		}
		lines = append(lines, ExportLine{
			EmployeeID:   string(li.DriverID),
			Paycode:      PaycodeFor(e.category, li.TrailerConfig),
			RateSystemID: rateSystemIDs[e.category],
			Category:     e.category,
			Amount:       e.amount,
			Quantity:     e.quantity,
			Date:         li.WorkDate,
			Reference:    ref,
			Description:  describeLine(e.category, ref),
		})
	}
	return lines
}

func subtotals(lines []ExportLine) []CategorySubtotal {
	byCategory := make(map[PayCategory]payroll.Money, len(categoryOrder))
	for _, line := range lines {
		byCategory[line.Category] = byCategory[line.Category].Add(line.Amount)
	}

	var out []CategorySubtotal
	for _, cat := range categoryOrder {
		amount, ok := byCategory[cat]
		if !ok {
			continue
		}
		out = append(out, CategorySubtotal{Category: cat, Amount: amount})
	}
	return out
}

// cutPayReference builds the synthetic reference for adjustments not tied to
// a trip number.
func cutPayReference(id payroll.CutPayID) string {
	s := string(id)
	if len(s) > 8 {
		s = s[:8]
	}
	return "CUT-" + s
}

var lineDescriptions = map[PayCategory]string{
	CategoryBase:     "Base pay",
	CategoryMileage:  "Mileage pay",
	CategoryDropHook: "Drop and hook",
	CategoryChainUp:  "Chain up",
	CategoryWaitTime: "Wait time",
	CategoryOther:    "Other accessorial",
	CategoryBonus:    "Bonus",
	CategoryDeduct:   "Deduction",
	CategoryCutHours: "Cut pay (hours)",
	CategoryCutMiles: "Cut pay (miles)",
}

func describeLine(category PayCategory, ref string) string {
	desc := lineDescriptions[category]
	if ref == "" {
		return desc
	}
	return desc + " - " + ref
}
