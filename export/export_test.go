package export_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetline/payroll-engine/export"
	"github.com/fleetline/payroll-engine/payroll"
	"github.com/fleetline/payroll-engine/payroll/store"
	"github.com/fleetline/payroll-engine/payrun"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	store  *store.Memory
	payrun *payrun.Service
	export *export.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	logger := log.New(io.Discard, "", 0)
	env := &testEnv{
		store:  mem,
		payrun: payrun.NewService(mem, logger),
		export: export.NewService(mem, logger),
	}

	ctx := context.Background()
	require.NoError(t, mem.SaveRateCard(ctx, &payroll.RateCard{
		ID:            "rc-default",
		Scope:         payroll.ScopeDefault,
		Method:        payroll.MethodPerMile,
		Rate:          decimal.RequireFromString("0.50"),
		EffectiveDate: payroll.NewDate(2000, 1, 1),
		Active:        true,
	}))
	require.NoError(t, mem.SavePeriod(ctx, &payroll.PayPeriod{
		ID:        "pp-open",
		StartDate: payroll.NewDate(2000, 1, 1),
		EndDate:   payroll.NewDate(2099, 12, 31),
		Status:    payroll.PeriodOpen,
	}))
	return env
}

// calculatedTripPay ingests a trip for the driver and runs the manual
// calculation, returning the CALCULATED record.
func (env *testEnv) calculatedTripPay(t *testing.T, tripID payroll.TripID, driver payroll.DriverID, name string) *payroll.TripPayRecord {
	t.Helper()
	ctx := context.Background()
	actual := decimal.NewFromInt(300)
	require.NoError(t, env.store.SaveTrip(ctx, &payroll.Trip{
		ID:         tripID,
		Number:     "T-" + string(tripID),
		DriverID:   driver,
		DriverName: name,
		Linehaul: &payroll.Linehaul{
			ID:              payroll.LinehaulID("lh-" + string(tripID)),
			PlannedDistance: decimal.NewFromInt(174),
			TransitMinutes:  200,
			TrailerConfig:   payroll.TrailerDoubles,
		},
		ActualMiles:  &actual,
		DispatchDate: payroll.Today(),
	}))
	rec, err := env.payrun.CalculatePay(ctx, tripID)
	require.NoError(t, err)
	return rec
}

func (env *testEnv) pendingCutPay(t *testing.T, driver payroll.DriverID, amount string) *payroll.CutPayRecord {
	t.Helper()
	rec, err := env.payrun.RequestCutPay(context.Background(), payrun.CutPayInput{
		DriverID:       driver,
		Amount:         payroll.MustParseMoney(amount),
		AdjustmentType: payroll.AdjustHours,
		Quantity:       decimal.NewFromInt(4),
		Description:    "yard shift coverage",
	})
	require.NoError(t, err)
	return rec
}

var exportRange = struct{ from, to payroll.Date }{
	from: payroll.NewDate(2000, 1, 1),
	to:   payroll.NewDate(2099, 12, 31),
}

// =============================================================================
// BULK APPROVAL
// =============================================================================

func TestBulkApprove_UnknownTypeRejectedUpFront(t *testing.T) {
	// GIVEN: A batch holding a valid reference and an unknown item type
	// WHEN: The batch is approved
	// THEN: The whole request is rejected and nothing transitions

	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.calculatedTripPay(t, "trip-1", "drv-a", "Pat Kowalski")

	_, err := env.export.BulkApprove(ctx, []export.ItemRef{
		{Type: export.ItemTripPay, ID: string(rec.ID)},
		{Type: "VACATION_PAY", ID: "vp-1"},
	}, "back-office")
	assert.ErrorIs(t, err, payroll.ErrUnknownItemType)

	unchanged, err := env.store.GetTripPay(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.TripPayCalculated, unchanged.Status)
}

func TestBulkApprove_MixedBatchSelectivity(t *testing.T) {
	// GIVEN: Two trip pays (one already PAID) and a pending cut pay
	// WHEN: All three are submitted for approval
	// THEN: Only items inside the approvable window transition; the PAID
	//       record is skipped silently

	env := newTestEnv(t)
	ctx := context.Background()

	eligible := env.calculatedTripPay(t, "trip-1", "drv-a", "Pat Kowalski")
	paid := env.calculatedTripPay(t, "trip-2", "drv-a", "Pat Kowalski")
	_, err := env.payrun.SetTripPayStatus(ctx, paid.ID, payroll.StatusPaid)
	require.NoError(t, err)
	cut := env.pendingCutPay(t, "drv-a", "80.00")

	result, err := env.export.BulkApprove(ctx, []export.ItemRef{
		{Type: export.ItemTripPay, ID: string(eligible.ID)},
		{Type: export.ItemTripPay, ID: string(paid.ID)},
		{Type: export.ItemCutPay, ID: string(cut.ID)},
	}, "back-office")
	require.NoError(t, err)

	assert.Equal(t, 1, result.TripPayApproved)
	assert.Equal(t, 1, result.CutPayApproved)

	approved, err := env.store.GetTripPay(ctx, eligible.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.TripPayApproved, approved.Status)

	skipped, err := env.store.GetTripPay(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.TripPayPaid, skipped.Status)

	li, err := env.store.LineItemByTripPay(ctx, eligible.ID)
	require.NoError(t, err)
	require.NotNil(t, li)
	assert.Equal(t, payroll.StatusApproved, li.Status, "projection resynced inside the batch")
	assert.Equal(t, "back-office", li.ApprovedBy)
	require.NotNil(t, li.ApprovedAt)

	cutLI, err := env.store.LineItemByCutPay(ctx, cut.ID)
	require.NoError(t, err)
	require.NotNil(t, cutLI)
	assert.Equal(t, payroll.StatusApproved, cutLI.Status)
	assert.Equal(t, "back-office", cutLI.ApprovedBy)
}

func TestBulkApprove_EmptyBatch(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.export.BulkApprove(context.Background(), nil, "back-office")
	require.NoError(t, err)
	assert.Equal(t, 0, result.TripPayApproved)
	assert.Equal(t, 0, result.CutPayApproved)
}

// =============================================================================
// EXPORT
// =============================================================================

func approveAll(t *testing.T, env *testEnv, refs ...export.ItemRef) {
	t.Helper()
	_, err := env.export.BulkApprove(context.Background(), refs, "back-office")
	require.NoError(t, err)
}

func TestExportApproved_GroupsByDriverWithSubtotals(t *testing.T) {
	// GIVEN: Approved items for two drivers, one carrying a bonus and a
	//        deduction
	// THEN: The file groups by driver in order, omits zero-amount lines,
	//       exports the deduction negative, and subtotals per category

	env := newTestEnv(t)
	ctx := context.Background()

	a := env.calculatedTripPay(t, "trip-1", "drv-a", "Pat Kowalski")
	bonus := payroll.MustParseMoney("50.00")
	deductions := payroll.MustParseMoney("20.00")
	_, err := env.payrun.ApplyAdjustments(ctx, a.ID, &bonus, &deductions)
	require.NoError(t, err)

	b := env.calculatedTripPay(t, "trip-2", "drv-b", "Lee Tran")

	approveAll(t, env,
		export.ItemRef{Type: export.ItemTripPay, ID: string(a.ID)},
		export.ItemRef{Type: export.ItemTripPay, ID: string(b.ID)},
	)

	file, err := env.export.ExportApproved(ctx, exportRange.from, exportRange.to, false, "")
	require.NoError(t, err)

	require.Len(t, file.Drivers, 2)
	first, second := file.Drivers[0], file.Drivers[1]
	assert.Equal(t, payroll.DriverID("drv-a"), first.DriverID)
	assert.Equal(t, "Pat Kowalski", first.DriverName)
	assert.Equal(t, payroll.DriverID("drv-b"), second.DriverID)

	// drv-a: mileage 150.00, bonus 50.00, deduction -20.00; base pay is zero
	// and therefore absent.
	require.Len(t, first.Lines, 3)
	assert.Equal(t, export.CategoryMileage, first.Lines[0].Category)
	assert.Equal(t, "LH-MILE-D", first.Lines[0].Paycode, "doubles configuration paycode")
	assert.Equal(t, "150.00", first.Lines[0].Amount.String())
	assert.True(t, first.Lines[0].Quantity.Equal(decimal.NewFromInt(300)), "mileage line carries miles as quantity")
	assert.Equal(t, "T-trip-1", first.Lines[0].Reference)

	assert.Equal(t, export.CategoryBonus, first.Lines[1].Category)
	assert.Equal(t, "50.00", first.Lines[1].Amount.String())

	assert.Equal(t, export.CategoryDeduct, first.Lines[2].Category)
	assert.Equal(t, "-20.00", first.Lines[2].Amount.String(), "deductions export negative")

	assert.Equal(t, "180.00", first.Total.String())
	require.Len(t, first.Subtotals, 3)
	assert.Equal(t, export.CategoryMileage, first.Subtotals[0].Category)
	assert.Equal(t, export.CategoryBonus, first.Subtotals[1].Category)
	assert.Equal(t, export.CategoryDeduct, first.Subtotals[2].Category)

	require.Len(t, second.Lines, 1)
	assert.Equal(t, "150.00", second.Total.String())

	assert.Equal(t, 4, file.LineCount)
	assert.Equal(t, "330.00", file.Total.String())
}

func TestExportApproved_CutPayLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cut := env.pendingCutPay(t, "drv-a", "120.00")
	approveAll(t, env, export.ItemRef{Type: export.ItemCutPay, ID: string(cut.ID)})

	file, err := env.export.ExportApproved(ctx, exportRange.from, exportRange.to, false, "")
	require.NoError(t, err)

	require.Len(t, file.Drivers, 1)
	require.Len(t, file.Drivers[0].Lines, 1)
	line := file.Drivers[0].Lines[0]

	assert.Equal(t, export.CategoryCutHours, line.Category)
	assert.Equal(t, "CP-HOURS", line.Paycode)
	assert.Equal(t, "120.00", line.Amount.String())
	assert.True(t, line.Quantity.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, "CUT-"+string(cut.ID)[:8], line.Reference)
}

func TestExportApproved_OnlyApprovedInRange(t *testing.T) {
	// CALCULATED items and items outside the window stay out of the feed.

	env := newTestEnv(t)
	ctx := context.Background()

	approved := env.calculatedTripPay(t, "trip-1", "drv-a", "Pat Kowalski")
	env.calculatedTripPay(t, "trip-2", "drv-a", "Pat Kowalski") // stays CALCULATED
	approveAll(t, env, export.ItemRef{Type: export.ItemTripPay, ID: string(approved.ID)})

	file, err := env.export.ExportApproved(ctx, exportRange.from, exportRange.to, false, "")
	require.NoError(t, err)
	require.Len(t, file.Drivers, 1)
	assert.Equal(t, 1, file.LineCount)

	// A range before any work date selects nothing.
	empty, err := env.export.ExportApproved(ctx, payroll.NewDate(1990, 1, 1), payroll.NewDate(1990, 12, 31), false, "")
	require.NoError(t, err)
	assert.Empty(t, empty.Drivers)
	assert.Equal(t, 0, empty.LineCount)
	assert.True(t, empty.Total.IsZero())
}

func TestExportApproved_InvalidRange(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.export.ExportApproved(context.Background(), payroll.NewDate(2025, 4, 1), payroll.NewDate(2025, 3, 1), false, "")
	assert.ErrorIs(t, err, payroll.ErrInvalidInput)
}

func TestExportApproved_MarkExportedStampsItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.calculatedTripPay(t, "trip-1", "drv-a", "Pat Kowalski")
	approveAll(t, env, export.ItemRef{Type: export.ItemTripPay, ID: string(rec.ID)})

	_, err := env.export.ExportApproved(ctx, exportRange.from, exportRange.to, true, "exporter")
	require.NoError(t, err)

	li, err := env.store.LineItemByTripPay(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, li)
	assert.Equal(t, "exporter", li.ExportedBy)
	require.NotNil(t, li.ExportedAt)
}

func TestExportApproved_WithoutMarkLeavesItemsUnstamped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.calculatedTripPay(t, "trip-1", "drv-a", "Pat Kowalski")
	approveAll(t, env, export.ItemRef{Type: export.ItemTripPay, ID: string(rec.ID)})

	_, err := env.export.ExportApproved(ctx, exportRange.from, exportRange.to, false, "")
	require.NoError(t, err)

	li, err := env.store.LineItemByTripPay(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, li)
	assert.Empty(t, li.ExportedBy)
	assert.Nil(t, li.ExportedAt)
}

// =============================================================================
// EXPORT ATOMICITY
// =============================================================================

// stampFailStore fails the export stamp so the surrounding transaction must
// roll back.
type stampFailStore struct {
	*store.Memory
	fail error
}

func (s *stampFailStore) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	return s.Memory.WithTx(ctx, func(st payroll.Store) error {
		return fn(&stampFailView{Store: st, fail: s.fail})
	})
}

type stampFailView struct {
	payroll.Store
	fail error
}

func (v *stampFailView) MarkLineItemsExported(context.Context, []payroll.LineItemID, string, time.Time) error {
	return v.fail
}

func TestExportApproved_StampFailureRollsBackArtifact(t *testing.T) {
	// GIVEN: A store that fails the export stamp
	// WHEN: An export runs with markExported set
	// THEN: No file is returned and no item carries a partial stamp

	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.calculatedTripPay(t, "trip-1", "drv-a", "Pat Kowalski")
	approveAll(t, env, export.ItemRef{Type: export.ItemTripPay, ID: string(rec.ID)})

	boom := errors.New("feed handoff unavailable")
	failing := &stampFailStore{Memory: env.store, fail: boom}
	svc := export.NewService(failing, log.New(io.Discard, "", 0))

	file, err := svc.ExportApproved(ctx, exportRange.from, exportRange.to, true, "exporter")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, file)

	li, err := env.store.LineItemByTripPay(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, li)
	assert.Empty(t, li.ExportedBy)
	assert.Nil(t, li.ExportedAt)
}
