/*
Package payroll provides the core pay rate-resolution and calculation engine.

PURPOSE:
  This package contains the domain types and algorithms for computing driver
  compensation: rate cards with scoped precedence, accessorial charges for
  non-driving events, gross-pay assembly, and the pay-period lifecycle that
  governs when records may still change.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A fixed-point currency amount (decimal, never float)
  - Typed IDs: Prevent mixing driver/trip/record identifiers
  - Trip/Delay/Linehaul: Read-only operational inputs from the dispatch layer

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so pay math is reproducible to the cent
  2. Type Safety: Strong typing for IDs
  3. Read-only inputs: Trips and rate cards are consumed, never mutated here
  4. Single write path: All pay records flow through the payrun synchronizer

USAGE:
  rate := payroll.MustParseMoney("0.58")
  miles := decimal.NewFromInt(412)
  pay := payroll.MoneyFromDecimal(miles.Mul(rate.Decimal()))

SEE ALSO:
  - rate.go: Rate cards and the precedence resolver
  - calculator.go: Gross-pay assembly
  - status.go: The canonical status type and its adapters
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point currency amount
// =============================================================================

type Money struct {
	value decimal.Decimal
}

func NewMoney(value float64) Money         { return Money{value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int) Money      { return Money{value: decimal.NewFromInt(int64(value))} }
func MoneyFromDecimal(d decimal.Decimal) Money { return Money{value: d} }
func ZeroMoney() Money                     { return Money{value: decimal.Zero} }

// MustParseMoney parses a decimal string, returning zero on malformed input.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{value: d}
}

func (m Money) Decimal() decimal.Decimal    { return m.value }
func (m Money) Add(b Money) Money           { return Money{value: m.value.Add(b.value)} }
func (m Money) Sub(b Money) Money           { return Money{value: m.value.Sub(b.value)} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{value: m.value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money { return Money{value: m.value.Div(s)} }
func (m Money) Neg() Money                  { return Money{value: m.value.Neg()} }
func (m Money) IsZero() bool                { return m.value.IsZero() }
func (m Money) IsNegative() bool            { return m.value.IsNegative() }
func (m Money) IsPositive() bool            { return m.value.IsPositive() }
func (m Money) Equal(b Money) bool          { return m.value.Equal(b.value) }
func (m Money) GreaterThan(b Money) bool    { return m.value.GreaterThan(b.value) }
func (m Money) LessThan(b Money) bool       { return m.value.LessThan(b.value) }

// String renders with two decimal places, the external payroll-feed format.
func (m Money) String() string { return m.value.StringFixed(2) }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.value.StringFixed(2) + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal literals.
func (m *Money) UnmarshalJSON(b []byte) error {
	return m.value.UnmarshalJSON(b)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DriverID string
type TripID string
type LinehaulID string
type TerminalID string
type RateCardID string
type TripPayID string
type CutPayID string
type LineItemID string
type PayPeriodID string

// =============================================================================
// TRAILER CONFIGURATION
// =============================================================================

// TrailerConfig is carried on the linehaul profile and keys the external
// paycode mapping together with the pay category.
type TrailerConfig string

const (
	TrailerSingle  TrailerConfig = "SINGLE"
	TrailerDoubles TrailerConfig = "DOUBLES"
	TrailerTriples TrailerConfig = "TRIPLES"
)

// =============================================================================
// TRIP - Read-only operational input
// =============================================================================

// Linehaul is the scheduled point-to-point movement profile a trip runs on.
type Linehaul struct {
	ID                    LinehaulID
	OriginTerminalID      TerminalID
	DestinationTerminalID TerminalID
	PlannedDistance       decimal.Decimal // miles
	TransitMinutes        int
	TrailerConfig         TrailerConfig
}

// Delay is a recorded non-driving event on a trip.
type Delay struct {
	Code    DelayCode
	Minutes int
	Reason  string
}

// Trip is the completed movement the engine computes pay for.
// Consumed read-only from the dispatch layer; this engine never mutates it.
type Trip struct {
	ID           TripID
	Number       string
	DriverID     DriverID // empty = unassigned
	DriverName   string
	Linehaul     *Linehaul
	DispatchDate Date
	ActualMiles  *decimal.Decimal
	Delays       []Delay
}

// Miles returns the billable distance: actual mileage when recorded,
// otherwise the linehaul's planned distance, otherwise zero.
func (t *Trip) Miles() decimal.Decimal {
	if t.ActualMiles != nil {
		return *t.ActualMiles
	}
	if t.Linehaul != nil {
		return t.Linehaul.PlannedDistance
	}
	return decimal.Zero
}
