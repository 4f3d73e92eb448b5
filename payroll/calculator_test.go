package payroll_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetline/payroll-engine/payroll"
	"github.com/fleetline/payroll-engine/payroll/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newCalculator(t *testing.T, cards ...payroll.RateCard) *payroll.PayCalculator {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	for i := range cards {
		require.NoError(t, mem.SaveRateCard(ctx, &cards[i]))
	}
	return payroll.NewPayCalculator(mem)
}

func defaultCard(method payroll.RateMethod, rate string) payroll.RateCard {
	return payroll.RateCard{
		ID:            "rc-1",
		Scope:         payroll.ScopeDefault,
		Method:        method,
		Rate:          decimal.RequireFromString(rate),
		EffectiveDate: payroll.NewDate(2025, 1, 1),
		Active:        true,
	}
}

var asOf = payroll.NewDate(2025, 3, 10)

// =============================================================================
// BASE/MILEAGE SPLIT BY METHOD
// =============================================================================

func TestGrossPay_PerMile(t *testing.T) {
	// GIVEN: A per-mile rate of 0.58 and a trip with 412 recorded miles
	// THEN: All earnings land on MileagePay; BasePay stays zero

	calc := newCalculator(t, defaultCard(payroll.MethodPerMile, "0.58"))
	trip := testTrip()
	actual := decimal.NewFromInt(412)
	trip.ActualMiles = &actual

	got, err := calc.GrossPay(context.Background(), trip, asOf)
	require.NoError(t, err)

	assert.Equal(t, "0.00", got.BasePay.String())
	assert.Equal(t, "238.96", got.MileagePay.String())
	assert.Equal(t, "238.96", got.TotalGrossPay.String())
	assert.Equal(t, payroll.MethodPerMile, got.Method)
	assert.True(t, got.Miles.Equal(decimal.NewFromInt(412)))
}

func TestGrossPay_Hourly(t *testing.T) {
	// Hourly pay derives from the linehaul's transit minutes, not miles.

	calc := newCalculator(t, defaultCard(payroll.MethodHourly, "30.00"))
	trip := testTrip()
	trip.Linehaul.TransitMinutes = 480

	got, err := calc.GrossPay(context.Background(), trip, asOf)
	require.NoError(t, err)

	assert.Equal(t, "240.00", got.BasePay.String())
	assert.Equal(t, "0.00", got.MileagePay.String())
	assert.Equal(t, "240.00", got.TotalGrossPay.String())
}

func TestGrossPay_Flat(t *testing.T) {
	calc := newCalculator(t, defaultCard(payroll.MethodFlatRate, "185.00"))

	got, err := calc.GrossPay(context.Background(), testTrip(), asOf)
	require.NoError(t, err)

	assert.Equal(t, "185.00", got.BasePay.String())
	assert.Equal(t, "0.00", got.MileagePay.String())
}

// =============================================================================
// MILES FALLBACK
// =============================================================================

func TestGrossPay_MilesFallBackToPlannedDistance(t *testing.T) {
	// No actual miles recorded: the linehaul's planned 174 miles apply.

	calc := newCalculator(t, defaultCard(payroll.MethodPerMile, "0.50"))
	trip := testTrip()
	trip.ActualMiles = nil

	got, err := calc.GrossPay(context.Background(), trip, asOf)
	require.NoError(t, err)

	assert.Equal(t, "87.00", got.MileagePay.String())
	assert.True(t, got.Miles.Equal(decimal.NewFromInt(174)))
}

func TestGrossPay_ActualMilesOverridePlanned(t *testing.T) {
	calc := newCalculator(t, defaultCard(payroll.MethodPerMile, "0.50"))
	trip := testTrip()
	actual := decimal.NewFromInt(200)
	trip.ActualMiles = &actual

	got, err := calc.GrossPay(context.Background(), trip, asOf)
	require.NoError(t, err)

	assert.Equal(t, "100.00", got.MileagePay.String())
}

// =============================================================================
// MINIMUM FLOOR
// =============================================================================

func TestGrossPay_MinimumFloorRaisesBasePay(t *testing.T) {
	// GIVEN: 150 miles at 0.50/mile earns 75.00, below the 100.00 floor
	// THEN: BasePay absorbs the 25.00 shortfall; MileagePay is untouched

	card := defaultCard(payroll.MethodPerMile, "0.50")
	min := money("100.00")
	card.MinimumAmount = &min

	calc := newCalculator(t, card)
	trip := testTrip()
	actual := decimal.NewFromInt(150)
	trip.ActualMiles = &actual

	got, err := calc.GrossPay(context.Background(), trip, asOf)
	require.NoError(t, err)

	assert.Equal(t, "25.00", got.BasePay.String())
	assert.Equal(t, "75.00", got.MileagePay.String())
	assert.Equal(t, "100.00", got.TotalGrossPay.String())
}

func TestGrossPay_MinimumFloorNotAppliedWhenEarnedExceedsIt(t *testing.T) {
	card := defaultCard(payroll.MethodPerMile, "0.50")
	min := money("100.00")
	card.MinimumAmount = &min

	calc := newCalculator(t, card)
	trip := testTrip()
	actual := decimal.NewFromInt(400)
	trip.ActualMiles = &actual

	got, err := calc.GrossPay(context.Background(), trip, asOf)
	require.NoError(t, err)

	assert.Equal(t, "0.00", got.BasePay.String())
	assert.Equal(t, "200.00", got.MileagePay.String())
}

func TestGrossPay_MinimumFloorExcludesAccessorials(t *testing.T) {
	// Accessorial pay does not count toward the floor: 75.00 earned on
	// mileage still gets topped up to 100.00 even though detention pay
	// already puts the total over the floor.

	card := defaultCard(payroll.MethodPerMile, "0.50")
	min := money("100.00")
	card.MinimumAmount = &min
	card.Accessorials = []payroll.AccessorialRate{{
		Category: payroll.CategoryDetention,
		Method:   payroll.MethodHourly,
		Rate:     decimal.RequireFromString("30.00"),
	}}

	calc := newCalculator(t, card)
	trip := testTrip()
	actual := decimal.NewFromInt(150)
	trip.ActualMiles = &actual
	trip.Delays = []payroll.Delay{{Code: payroll.DelayDetention, Minutes: 120}}

	got, err := calc.GrossPay(context.Background(), trip, asOf)
	require.NoError(t, err)

	assert.Equal(t, "25.00", got.BasePay.String())
	assert.Equal(t, "60.00", got.AccessorialPay.String())
	assert.Equal(t, "160.00", got.TotalGrossPay.String())
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

func TestGrossPay_TripWithoutDriver(t *testing.T) {
	calc := newCalculator(t, defaultCard(payroll.MethodPerMile, "0.58"))
	trip := testTrip()
	trip.DriverID = ""

	_, err := calc.GrossPay(context.Background(), trip, asOf)
	assert.ErrorIs(t, err, payroll.ErrTripHasNoDriver)
}

func TestGrossPay_TripWithoutLinehaul(t *testing.T) {
	calc := newCalculator(t, defaultCard(payroll.MethodPerMile, "0.58"))
	trip := testTrip()
	trip.Linehaul = nil

	_, err := calc.GrossPay(context.Background(), trip, asOf)
	assert.ErrorIs(t, err, payroll.ErrTripHasNoLinehaul)
}

func TestGrossPay_NoEligibleRateCard(t *testing.T) {
	calc := newCalculator(t)

	_, err := calc.GrossPay(context.Background(), testTrip(), asOf)
	assert.ErrorIs(t, err, payroll.ErrNoRateCard)
}

func TestGrossPay_BreakdownCarriesRateCardID(t *testing.T) {
	calc := newCalculator(t, defaultCard(payroll.MethodPerMile, "0.58"))

	got, err := calc.GrossPay(context.Background(), testTrip(), asOf)
	require.NoError(t, err)
	assert.Equal(t, payroll.RateCardID("rc-1"), got.RateCardID)
}
