/*
period.go - Pay-period lifecycle

PURPOSE:
  A pay period is the accounting date range through which trip pay records
  are grouped, reviewed, and exported. Its status gates whether pay inside
  the window may still change.

STATE MACHINE:
  OPEN -> CLOSED
  CLOSED -> LOCKED
  CLOSED -> OPEN      (the one permitted backward edge)
  LOCKED -> EXPORTED
  LOCKED -> CLOSED
  EXPORTED is terminal - no outgoing edges.

  Every other transition is rejected with InvalidTransitionError naming
  source and target.

SEE ALSO:
  - payrun/service.go: OPEN-period lookup and the monthly auto-create
    fallback used by the arrival path
*/
package payroll

// =============================================================================
// PAY PERIOD
// =============================================================================

type PeriodStatus string

const (
	PeriodOpen     PeriodStatus = "OPEN"
	PeriodClosed   PeriodStatus = "CLOSED"
	PeriodLocked   PeriodStatus = "LOCKED"
	PeriodExported PeriodStatus = "EXPORTED"
)

type PayPeriod struct {
	ID        PayPeriodID
	StartDate Date
	EndDate   Date
	Status    PeriodStatus
}

// Contains returns true if the date falls within [StartDate, EndDate].
func (p *PayPeriod) Contains(d Date) bool {
	return d.AfterOrEqual(p.StartDate) && d.BeforeOrEqual(p.EndDate)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

var periodEdges = map[PeriodStatus][]PeriodStatus{
	PeriodOpen:     {PeriodClosed},
	PeriodClosed:   {PeriodLocked, PeriodOpen},
	PeriodLocked:   {PeriodExported, PeriodClosed},
	PeriodExported: {},
}

// CanTransition reports whether the edge Status -> target is allowed.
func (p *PayPeriod) CanTransition(target PeriodStatus) bool {
	for _, next := range periodEdges[p.Status] {
		if next == target {
			return true
		}
	}
	return false
}

// Transition moves the period to target or rejects the edge.
func (p *PayPeriod) Transition(target PeriodStatus) error {
	if !p.CanTransition(target) {
		return &InvalidTransitionError{From: p.Status, To: target}
	}
	p.Status = target
	return nil
}

// MonthlyPeriodFor returns a new OPEN period spanning the calendar month
// containing d. Used by the automatic-on-arrival fallback only.
func MonthlyPeriodFor(id PayPeriodID, d Date) *PayPeriod {
	return &PayPeriod{
		ID:        id,
		StartDate: StartOfMonth(d),
		EndDate:   EndOfMonth(d),
		Status:    PeriodOpen,
	}
}
