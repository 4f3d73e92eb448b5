/*
accessorial.go - Accessorial charge calculation from trip delays

PURPOSE:
  Turns a trip's recorded delays into accessorial pay using the rate card's
  accessorial child rates. Each delay code maps to a pay category; a delay
  with no matching rate contributes zero and produces no breakdown entry.

CHARGE RULES:
  HOURLY: charge = (minutes / 60) * rate
  Flat:   charge = rate (minutes irrelevant)
  Clamps apply independently, minimum first, then maximum. A maximum below
  a minimum is a configuration error not validated at this layer.

SEE ALSO:
  - rate.go: AccessorialRate ownership (exactly one RateCard)
  - payrun/sync.go: Sub-category decomposition for the projection
*/
package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// CATEGORIES AND DELAY CODES
// =============================================================================

type AccessorialCategory string

const (
	CategoryDetention AccessorialCategory = "DETENTION"
	CategoryBreakdown AccessorialCategory = "BREAKDOWN"
	CategoryLayover   AccessorialCategory = "LAYOVER"
)

// DelayCode is the dispatch layer's classification of a delay event.
type DelayCode string

const (
	DelayDetention    DelayCode = "DETENTION"
	DelayCustomerHold DelayCode = "CUSTOMER_HOLD"
	DelayDockWait     DelayCode = "DOCK_WAIT"
	DelayBreakdown    DelayCode = "BREAKDOWN"
	DelayMechanical   DelayCode = "MECHANICAL"
	DelayFlatTire     DelayCode = "FLAT_TIRE"
	DelayLayover      DelayCode = "LAYOVER"
	DelayDOTRest      DelayCode = "DOT_REST"
	DelayNoDriver     DelayCode = "NO_DRIVER"

	// Paid events without an accessorial category of their own; they feed
	// the projection's sub-category decomposition instead.
	DelayDropHook DelayCode = "DROP_HOOK"
	DelayChainUp  DelayCode = "CHAIN_UP"
)

var delayCategories = map[DelayCode]AccessorialCategory{
	DelayDetention:    CategoryDetention,
	DelayCustomerHold: CategoryDetention,
	DelayDockWait:     CategoryDetention,
	DelayBreakdown:    CategoryBreakdown,
	DelayMechanical:   CategoryBreakdown,
	DelayFlatTire:     CategoryBreakdown,
	DelayLayover:      CategoryLayover,
	DelayDOTRest:      CategoryLayover,
	DelayNoDriver:     CategoryLayover,
}

// CategoryForDelay maps a delay code to its accessorial category.
func CategoryForDelay(code DelayCode) (AccessorialCategory, bool) {
	cat, ok := delayCategories[code]
	return cat, ok
}

// =============================================================================
// ACCESSORIAL RATE - Child of exactly one RateCard
// =============================================================================

type AccessorialRate struct {
	Category      AccessorialCategory
	Method        RateMethod
	Rate          decimal.Decimal
	MinimumCharge *Money
	MaximumCharge *Money
}

// =============================================================================
// CALCULATOR
// =============================================================================

// AccessorialCharge is a per-delay breakdown entry kept for audit display.
type AccessorialCharge struct {
	Category AccessorialCategory
	Reason   string
	Minutes  int
	Amount   Money
}

type AccessorialCalculator struct{}

// Calculate sums per-delay charges against the card's accessorial rates.
// Delays with no category or no matching rate are skipped silently.
func (AccessorialCalculator) Calculate(delays []Delay, rates []AccessorialRate) (Money, []AccessorialCharge) {
	total := ZeroMoney()
	var breakdown []AccessorialCharge

	for _, delay := range delays {
		category, ok := CategoryForDelay(delay.Code)
		if !ok {
			continue
		}
		rate, ok := rateForCategory(rates, category)
		if !ok {
			continue
		}

		charge := chargeFor(rate, delay.Minutes)
		total = total.Add(charge)
		breakdown = append(breakdown, AccessorialCharge{
			Category: category,
			Reason:   delay.Reason,
			Minutes:  delay.Minutes,
			Amount:   charge,
		})
	}

	return total, breakdown
}

func rateForCategory(rates []AccessorialRate, category AccessorialCategory) (AccessorialRate, bool) {
	for _, r := range rates {
		if r.Category == category {
			return r, true
		}
	}
	return AccessorialRate{}, false
}

func chargeFor(rate AccessorialRate, minutes int) Money {
	var charge Money
	if rate.Method == MethodHourly {
		hours := decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60))
		charge = MoneyFromDecimal(hours.Mul(rate.Rate))
	} else {
		charge = MoneyFromDecimal(rate.Rate)
	}

	// Min first, then max.
	if rate.MinimumCharge != nil && charge.LessThan(*rate.MinimumCharge) {
		charge = *rate.MinimumCharge
	}
	if rate.MaximumCharge != nil && charge.GreaterThan(*rate.MaximumCharge) {
		charge = *rate.MaximumCharge
	}
	return charge
}
