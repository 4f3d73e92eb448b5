/*
rate.go - Rate cards and the precedence resolver

PURPOSE:
  A rate card is a priced compensation rule scoped to a driver, a linehaul
  profile, an origin-destination terminal pair, or the system default. The
  resolver walks those tiers in order and returns the first tier that
  yields an eligible card - tiers are never merged.

PRECEDENCE:
  1. DRIVER    keyed by the trip's driver
  2. LINEHAUL  keyed by the trip's linehaul profile (if any)
  3. OD_PAIR   keyed by (origin terminal, destination terminal) (if known)
  4. DEFAULT   no key

ELIGIBILITY:
  active AND effectiveDate <= asOf AND (no expiration OR expiration >= asOf).
  A card expired yesterday is never selected, even if it is the only card
  at its tier.

TIE-BREAK:
  At most one active, currently-effective card should exist per scope+key.
  The resolver tolerates duplicates by taking the lowest-ID eligible card,
  so resolution is deterministic across store implementations.

SEE ALSO:
  - accessorial.go: The accessorial child rates a card carries
  - calculator.go: The only consumer of Resolve
*/
package payroll

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE CARD
// =============================================================================

type ScopeType string

const (
	ScopeDriver   ScopeType = "DRIVER"
	ScopeLinehaul ScopeType = "LINEHAUL"
	ScopeODPair   ScopeType = "OD_PAIR"
	ScopeDefault  ScopeType = "DEFAULT"
)

type RateMethod string

const (
	MethodPerMile  RateMethod = "PER_MILE"
	MethodFlatRate RateMethod = "FLAT_RATE"
	MethodHourly   RateMethod = "HOURLY"
)

type RateCard struct {
	ID    RateCardID
	Scope ScopeType

	// Scoping keys; which ones are set depends on Scope.
	DriverID              DriverID
	LinehaulID            LinehaulID
	OriginTerminalID      TerminalID
	DestinationTerminalID TerminalID

	Method         RateMethod
	Rate           decimal.Decimal
	MinimumAmount  *Money
	EffectiveDate  Date
	ExpirationDate *Date
	Active         bool

	Accessorials []AccessorialRate
}

// EligibleOn reports whether the card may be applied on the given date.
func (c *RateCard) EligibleOn(asOf Date) bool {
	if !c.Active {
		return false
	}
	if c.EffectiveDate.After(asOf) {
		return false
	}
	if c.ExpirationDate != nil && c.ExpirationDate.Before(asOf) {
		return false
	}
	return true
}

// =============================================================================
// SCOPE KEY - Lookup key passed to the rate store
// =============================================================================

// RateKey carries the scoping values for a tier lookup. Only the fields
// relevant to the queried scope are consulted.
type RateKey struct {
	DriverID              DriverID
	LinehaulID            LinehaulID
	OriginTerminalID      TerminalID
	DestinationTerminalID TerminalID
}

// =============================================================================
// RESOLVER
// =============================================================================

// RateStore is the read surface the resolver needs. Cards are owned by the
// excluded CRUD layer; this engine only reads them.
type RateStore interface {
	// RateCardsByScope returns every card at the given scope+key,
	// regardless of eligibility. Order is unspecified.
	RateCardsByScope(ctx context.Context, scope ScopeType, key RateKey) ([]RateCard, error)
}

type RateResolver struct {
	Rates RateStore
}

func NewRateResolver(rates RateStore) *RateResolver {
	return &RateResolver{Rates: rates}
}

// Resolve finds the applicable rate card for a trip on the given date.
// Returns ErrNoRateCard when no tier yields a card; callers must treat
// that as distinct from a zero-rate card.
func (r *RateResolver) Resolve(ctx context.Context, trip *Trip, asOf Date) (*RateCard, error) {
	type tier struct {
		scope ScopeType
		key   RateKey
		skip  bool
	}

	tiers := []tier{
		{scope: ScopeDriver, key: RateKey{DriverID: trip.DriverID}, skip: trip.DriverID == ""},
		{scope: ScopeLinehaul, skip: trip.Linehaul == nil},
		{scope: ScopeODPair, skip: trip.Linehaul == nil},
		{scope: ScopeDefault},
	}
	if trip.Linehaul != nil {
		tiers[1].key = RateKey{LinehaulID: trip.Linehaul.ID}
		tiers[2].key = RateKey{
			OriginTerminalID:      trip.Linehaul.OriginTerminalID,
			DestinationTerminalID: trip.Linehaul.DestinationTerminalID,
		}
		tiers[2].skip = trip.Linehaul.OriginTerminalID == "" || trip.Linehaul.DestinationTerminalID == ""
	}

	for _, t := range tiers {
		if t.skip {
			continue
		}
		cards, err := r.Rates.RateCardsByScope(ctx, t.scope, t.key)
		if err != nil {
			return nil, fmt.Errorf("rate lookup at %s tier: %w", t.scope, err)
		}
		if card := firstEligible(cards, asOf); card != nil {
			return card, nil
		}
	}

	return nil, fmt.Errorf("trip %s as of %s: %w", trip.ID, asOf, ErrNoRateCard)
}

// firstEligible filters to eligible cards and picks the lowest ID.
func firstEligible(cards []RateCard, asOf Date) *RateCard {
	var eligible []RateCard
	for _, c := range cards {
		if c.EligibleOn(asOf) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return &eligible[0]
}
