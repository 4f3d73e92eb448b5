/*
calculator.go - Gross-pay assembly

PURPOSE:
  Combines the rate resolver and accessorial calculator into a single
  gross-pay figure for a completed trip. This is a pure computation:
  nothing is persisted here, and every error is terminal - the caller
  must not create a partial record on any of them.

STEPS:
  1. Miles: actual mileage, else planned distance, else 0
  2. Base/mileage split by rate method
  3. Minimum-amount floor raises basePay only (mileagePay never reduced)
  4. Accessorial pay from the trip's delays
  5. total = base + mileage + accessorial

  Bonus and deductions are applied later through explicit status-update
  calls, never during initial calculation.

SEE ALSO:
  - payrun/service.go: Persists the result and keeps the projection in sync
*/
package payroll

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAY BREAKDOWN - Result of a gross-pay computation
// =============================================================================

type PayBreakdown struct {
	RateCardID     RateCardID
	Method         RateMethod
	Miles          decimal.Decimal
	BasePay        Money
	MileagePay     Money
	AccessorialPay Money
	TotalGrossPay  Money
	Accessorials   []AccessorialCharge
}

// =============================================================================
// PAY CALCULATOR
// =============================================================================

type PayCalculator struct {
	Resolver     *RateResolver
	Accessorials AccessorialCalculator
}

func NewPayCalculator(rates RateStore) *PayCalculator {
	return &PayCalculator{Resolver: NewRateResolver(rates)}
}

// GrossPay computes the full pay breakdown for a trip as of the given date.
func (c *PayCalculator) GrossPay(ctx context.Context, trip *Trip, asOf Date) (*PayBreakdown, error) {
	if trip.DriverID == "" {
		return nil, ErrTripHasNoDriver
	}
	if trip.Linehaul == nil {
		return nil, ErrTripHasNoLinehaul
	}

	card, err := c.Resolver.Resolve(ctx, trip, asOf)
	if err != nil {
		return nil, err
	}

	miles := trip.Miles()
	basePay, mileagePay := splitBasePay(card, trip, miles)

	// Minimum floor: raise basePay by the shortfall so base+mileage equals
	// the floor. MileagePay is never reduced to make room.
	if card.MinimumAmount != nil {
		earned := basePay.Add(mileagePay)
		if earned.LessThan(*card.MinimumAmount) {
			basePay = basePay.Add(card.MinimumAmount.Sub(earned))
		}
	}

	accessorialPay, charges := c.Accessorials.Calculate(trip.Delays, card.Accessorials)

	return &PayBreakdown{
		RateCardID:     card.ID,
		Method:         card.Method,
		Miles:          miles,
		BasePay:        basePay,
		MileagePay:     mileagePay,
		AccessorialPay: accessorialPay,
		TotalGrossPay:  basePay.Add(mileagePay).Add(accessorialPay),
		Accessorials:   charges,
	}, nil
}

func splitBasePay(card *RateCard, trip *Trip, miles decimal.Decimal) (base, mileage Money) {
	switch card.Method {
	case MethodPerMile:
		return ZeroMoney(), MoneyFromDecimal(miles.Mul(card.Rate))
	case MethodHourly:
		hours := decimal.NewFromInt(int64(trip.Linehaul.TransitMinutes)).Div(decimal.NewFromInt(60))
		return MoneyFromDecimal(hours.Mul(card.Rate)), ZeroMoney()
	default: // FLAT_RATE
		return MoneyFromDecimal(card.Rate), ZeroMoney()
	}
}
