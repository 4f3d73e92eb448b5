// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetline/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	rateCards map[payroll.RateCardID]payroll.RateCard
	trips     map[payroll.TripID]payroll.Trip
	periods   map[payroll.PayPeriodID]payroll.PayPeriod

	tripPay       map[payroll.TripPayID]payroll.TripPayRecord
	tripPayByTrip map[payroll.TripID]payroll.TripPayID
	cutPay        map[payroll.CutPayID]payroll.CutPayRecord

	lineItems   map[payroll.LineItemID]payroll.PayrollLineItem
	liByTripPay map[payroll.TripPayID]payroll.LineItemID
	liByCutPay  map[payroll.CutPayID]payroll.LineItemID
}

func NewMemory() *Memory {
	return &Memory{
		rateCards:     make(map[payroll.RateCardID]payroll.RateCard),
		trips:         make(map[payroll.TripID]payroll.Trip),
		periods:       make(map[payroll.PayPeriodID]payroll.PayPeriod),
		tripPay:       make(map[payroll.TripPayID]payroll.TripPayRecord),
		tripPayByTrip: make(map[payroll.TripID]payroll.TripPayID),
		cutPay:        make(map[payroll.CutPayID]payroll.CutPayRecord),
		lineItems:     make(map[payroll.LineItemID]payroll.PayrollLineItem),
		liByTripPay:   make(map[payroll.TripPayID]payroll.LineItemID),
		liByCutPay:    make(map[payroll.CutPayID]payroll.LineItemID),
	}
}

// Compile-time check that Memory satisfies the full store surface.
var _ payroll.TxStore = (*Memory)(nil)

// =============================================================================
// RATE CARDS
// =============================================================================

func (m *Memory) SaveRateCard(_ context.Context, card *payroll.RateCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateCards[card.ID] = *card
	return nil
}

func (m *Memory) RateCardsByScope(_ context.Context, scope payroll.ScopeType, key payroll.RateKey) ([]payroll.RateCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rateCardsByScopeLocked(scope, key), nil
}

func (m *Memory) rateCardsByScopeLocked(scope payroll.ScopeType, key payroll.RateKey) []payroll.RateCard {
	var out []payroll.RateCard
	for _, c := range m.rateCards {
		if c.Scope != scope {
			continue
		}
		switch scope {
		case payroll.ScopeDriver:
			if c.DriverID != key.DriverID {
				continue
			}
		case payroll.ScopeLinehaul:
			if c.LinehaulID != key.LinehaulID {
				continue
			}
		case payroll.ScopeODPair:
			if c.OriginTerminalID != key.OriginTerminalID ||
				c.DestinationTerminalID != key.DestinationTerminalID {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// TRIPS
// =============================================================================

func (m *Memory) SaveTrip(_ context.Context, trip *payroll.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = *trip
	return nil
}

func (m *Memory) GetTrip(_ context.Context, id payroll.TripID) (*payroll.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &t, nil
}

// =============================================================================
// PAY PERIODS
// =============================================================================

func (m *Memory) SavePeriod(_ context.Context, p *payroll.PayPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[p.ID] = *p
	return nil
}

func (m *Memory) GetPeriod(_ context.Context, id payroll.PayPeriodID) (*payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.periods[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &p, nil
}

func (m *Memory) OpenPeriodContaining(_ context.Context, d payroll.Date) (*payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []payroll.PayPeriod
	for _, p := range m.periods {
		if p.Status == payroll.PeriodOpen && p.Contains(d) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return &candidates[0], nil
}

func (m *Memory) ListPeriods(_ context.Context) ([]payroll.PayPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]payroll.PayPeriod, 0, len(m.periods))
	for _, p := range m.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// =============================================================================
// TRIP PAY
// =============================================================================

func (m *Memory) InsertTripPay(_ context.Context, rec *payroll.TripPayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTripPayLocked(rec)
}

func (m *Memory) insertTripPayLocked(rec *payroll.TripPayRecord) error {
	// Uniqueness guarantee on trip id, the moral equivalent of the sqlite
	// unique index. No read-then-write window.
	if _, exists := m.tripPayByTrip[rec.TripID]; exists {
		return payroll.ErrDuplicateTripPay
	}
	m.tripPay[rec.ID] = *rec
	m.tripPayByTrip[rec.TripID] = rec.ID
	return nil
}

func (m *Memory) UpdateTripPay(_ context.Context, rec *payroll.TripPayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTripPayLocked(rec)
}

func (m *Memory) updateTripPayLocked(rec *payroll.TripPayRecord) error {
	if _, ok := m.tripPay[rec.ID]; !ok {
		return payroll.ErrRecordNotFound
	}
	m.tripPay[rec.ID] = *rec
	return nil
}

func (m *Memory) GetTripPay(_ context.Context, id payroll.TripPayID) (*payroll.TripPayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTripPayLocked(id)
}

func (m *Memory) getTripPayLocked(id payroll.TripPayID) (*payroll.TripPayRecord, error) {
	rec, ok := m.tripPay[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &rec, nil
}

func (m *Memory) TripPayByTrip(_ context.Context, tripID payroll.TripID) (*payroll.TripPayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tripPayByTrip[tripID]
	if !ok {
		return nil, nil
	}
	rec := m.tripPay[id]
	return &rec, nil
}

func (m *Memory) UpdateTripPayStatusBatch(_ context.Context, ids []payroll.TripPayID, eligible []payroll.TripPayStatus, to payroll.TripPayStatus, at time.Time) ([]payroll.TripPayID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTripPayStatusBatchLocked(ids, eligible, to, at), nil
}

func (m *Memory) updateTripPayStatusBatchLocked(ids []payroll.TripPayID, eligible []payroll.TripPayStatus, to payroll.TripPayStatus, at time.Time) []payroll.TripPayID {
	allowed := make(map[payroll.TripPayStatus]bool, len(eligible))
	for _, s := range eligible {
		allowed[s] = true
	}

	var transitioned []payroll.TripPayID
	for _, id := range ids {
		rec, ok := m.tripPay[id]
		if !ok || !allowed[rec.Status] {
			continue
		}
		rec.SetStatus(to, at)
		m.tripPay[id] = rec
		transitioned = append(transitioned, id)
	}
	return transitioned
}

// =============================================================================
// CUT PAY
// =============================================================================

func (m *Memory) InsertCutPay(_ context.Context, rec *payroll.CutPayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutPay[rec.ID] = *rec
	return nil
}

func (m *Memory) UpdateCutPay(_ context.Context, rec *payroll.CutPayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cutPay[rec.ID]; !ok {
		return payroll.ErrRecordNotFound
	}
	m.cutPay[rec.ID] = *rec
	return nil
}

func (m *Memory) GetCutPay(_ context.Context, id payroll.CutPayID) (*payroll.CutPayRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.cutPay[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &rec, nil
}

func (m *Memory) UpdateCutPayStatusBatch(_ context.Context, ids []payroll.CutPayID, eligible []payroll.CutPayStatus, to payroll.CutPayStatus, at time.Time) ([]payroll.CutPayID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := make(map[payroll.CutPayStatus]bool, len(eligible))
	for _, s := range eligible {
		allowed[s] = true
	}

	var transitioned []payroll.CutPayID
	for _, id := range ids {
		rec, ok := m.cutPay[id]
		if !ok || !allowed[rec.Status] {
			continue
		}
		rec.SetStatus(to, at)
		m.cutPay[id] = rec
		transitioned = append(transitioned, id)
	}
	return transitioned, nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func (m *Memory) UpsertLineItem(_ context.Context, item *payroll.PayrollLineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLineItemLocked(item)
}

func (m *Memory) upsertLineItemLocked(item *payroll.PayrollLineItem) error {
	var existingID payroll.LineItemID
	var found bool
	if item.TripPayID != "" {
		existingID, found = m.liByTripPay[item.TripPayID]
	} else {
		existingID, found = m.liByCutPay[item.CutPayID]
	}

	if found {
		// Update in place: identity, creation time, and audit fields are
		// never overwritten by a sync.
		existing := m.lineItems[existingID]
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
		item.ApprovedBy = existing.ApprovedBy
		item.ApprovedAt = existing.ApprovedAt
		item.ExportedBy = existing.ExportedBy
		item.ExportedAt = existing.ExportedAt
	}

	m.lineItems[item.ID] = *item
	if item.TripPayID != "" {
		m.liByTripPay[item.TripPayID] = item.ID
	} else {
		m.liByCutPay[item.CutPayID] = item.ID
	}
	return nil
}

func (m *Memory) GetLineItem(_ context.Context, id payroll.LineItemID) (*payroll.PayrollLineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	li, ok := m.lineItems[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &li, nil
}

func (m *Memory) LineItemByTripPay(_ context.Context, id payroll.TripPayID) (*payroll.PayrollLineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	liID, ok := m.liByTripPay[id]
	if !ok {
		return nil, nil
	}
	li := m.lineItems[liID]
	return &li, nil
}

func (m *Memory) LineItemByCutPay(_ context.Context, id payroll.CutPayID) (*payroll.PayrollLineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	liID, ok := m.liByCutPay[id]
	if !ok {
		return nil, nil
	}
	li := m.lineItems[liID]
	return &li, nil
}

func (m *Memory) ListLineItems(_ context.Context, filter payroll.LineItemFilter) ([]payroll.PayrollLineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLineItemsLocked(filter), nil
}

func (m *Memory) listLineItemsLocked(filter payroll.LineItemFilter) []payroll.PayrollLineItem {
	var out []payroll.PayrollLineItem
	for _, li := range m.lineItems {
		if filter.From != nil && li.WorkDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && li.WorkDate.After(*filter.To) {
			continue
		}
		if filter.Status != nil && li.Status != *filter.Status {
			continue
		}
		if filter.Driver != nil && li.DriverID != *filter.Driver {
			continue
		}
		out = append(out, li)
	}
	// Deterministic order so repeated exports over unchanged data match.
	sort.Slice(out, func(i, j int) bool {
		if out[i].DriverID != out[j].DriverID {
			return out[i].DriverID < out[j].DriverID
		}
		if !out[i].WorkDate.Equal(out[j].WorkDate) {
			return out[i].WorkDate.Before(out[j].WorkDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) SetLineItemApproval(_ context.Context, ids []payroll.LineItemID, by string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		li, ok := m.lineItems[id]
		if !ok {
			continue
		}
		li.ApprovedBy = by
		li.ApprovedAt = &at
		li.UpdatedAt = at
		m.lineItems[id] = li
	}
	return nil
}

func (m *Memory) MarkLineItemsExported(_ context.Context, ids []payroll.LineItemID, by string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markExportedLocked(ids, by, at)
}

func (m *Memory) markExportedLocked(ids []payroll.LineItemID, by string, at time.Time) error {
	for _, id := range ids {
		li, ok := m.lineItems[id]
		if !ok {
			return payroll.ErrRecordNotFound
		}
		li.ExportedBy = by
		li.ExportedAt = &at
		li.UpdatedAt = at
		m.lineItems[id] = li
	}
	return nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx simulates a transaction by snapshotting state and restoring it if
// fn fails. The view passed to fn reuses the already-held lock.
func (m *Memory) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	view := &txMemoryView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	rateCards     map[payroll.RateCardID]payroll.RateCard
	trips         map[payroll.TripID]payroll.Trip
	periods       map[payroll.PayPeriodID]payroll.PayPeriod
	tripPay       map[payroll.TripPayID]payroll.TripPayRecord
	tripPayByTrip map[payroll.TripID]payroll.TripPayID
	cutPay        map[payroll.CutPayID]payroll.CutPayRecord
	lineItems     map[payroll.LineItemID]payroll.PayrollLineItem
	liByTripPay   map[payroll.TripPayID]payroll.LineItemID
	liByCutPay    map[payroll.CutPayID]payroll.LineItemID
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		rateCards:     copyMap(m.rateCards),
		trips:         copyMap(m.trips),
		periods:       copyMap(m.periods),
		tripPay:       copyMap(m.tripPay),
		tripPayByTrip: copyMap(m.tripPayByTrip),
		cutPay:        copyMap(m.cutPay),
		lineItems:     copyMap(m.lineItems),
		liByTripPay:   copyMap(m.liByTripPay),
		liByCutPay:    copyMap(m.liByCutPay),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.rateCards = s.rateCards
	m.trips = s.trips
	m.periods = s.periods
	m.tripPay = s.tripPay
	m.tripPayByTrip = s.tripPayByTrip
	m.cutPay = s.cutPay
	m.lineItems = s.lineItems
	m.liByTripPay = s.liByTripPay
	m.liByCutPay = s.liByCutPay
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// txMemoryView calls the parent's unlocked methods; the parent holds the
// write lock for the duration of WithTx.
type txMemoryView struct {
	parent *Memory
}

var _ payroll.Store = (*txMemoryView)(nil)

func (v *txMemoryView) SaveRateCard(_ context.Context, card *payroll.RateCard) error {
	v.parent.rateCards[card.ID] = *card
	return nil
}

func (v *txMemoryView) RateCardsByScope(_ context.Context, scope payroll.ScopeType, key payroll.RateKey) ([]payroll.RateCard, error) {
	return v.parent.rateCardsByScopeLocked(scope, key), nil
}

func (v *txMemoryView) SaveTrip(_ context.Context, trip *payroll.Trip) error {
	v.parent.trips[trip.ID] = *trip
	return nil
}

func (v *txMemoryView) GetTrip(_ context.Context, id payroll.TripID) (*payroll.Trip, error) {
	t, ok := v.parent.trips[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &t, nil
}

func (v *txMemoryView) SavePeriod(_ context.Context, p *payroll.PayPeriod) error {
	v.parent.periods[p.ID] = *p
	return nil
}

func (v *txMemoryView) GetPeriod(_ context.Context, id payroll.PayPeriodID) (*payroll.PayPeriod, error) {
	p, ok := v.parent.periods[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &p, nil
}

func (v *txMemoryView) OpenPeriodContaining(_ context.Context, d payroll.Date) (*payroll.PayPeriod, error) {
	var candidates []payroll.PayPeriod
	for _, p := range v.parent.periods {
		if p.Status == payroll.PeriodOpen && p.Contains(d) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return &candidates[0], nil
}

func (v *txMemoryView) ListPeriods(_ context.Context) ([]payroll.PayPeriod, error) {
	out := make([]payroll.PayPeriod, 0, len(v.parent.periods))
	for _, p := range v.parent.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (v *txMemoryView) InsertTripPay(_ context.Context, rec *payroll.TripPayRecord) error {
	return v.parent.insertTripPayLocked(rec)
}

func (v *txMemoryView) UpdateTripPay(_ context.Context, rec *payroll.TripPayRecord) error {
	return v.parent.updateTripPayLocked(rec)
}

func (v *txMemoryView) GetTripPay(_ context.Context, id payroll.TripPayID) (*payroll.TripPayRecord, error) {
	return v.parent.getTripPayLocked(id)
}

func (v *txMemoryView) TripPayByTrip(_ context.Context, tripID payroll.TripID) (*payroll.TripPayRecord, error) {
	id, ok := v.parent.tripPayByTrip[tripID]
	if !ok {
		return nil, nil
	}
	rec := v.parent.tripPay[id]
	return &rec, nil
}

func (v *txMemoryView) UpdateTripPayStatusBatch(_ context.Context, ids []payroll.TripPayID, eligible []payroll.TripPayStatus, to payroll.TripPayStatus, at time.Time) ([]payroll.TripPayID, error) {
	return v.parent.updateTripPayStatusBatchLocked(ids, eligible, to, at), nil
}

func (v *txMemoryView) InsertCutPay(_ context.Context, rec *payroll.CutPayRecord) error {
	v.parent.cutPay[rec.ID] = *rec
	return nil
}

func (v *txMemoryView) UpdateCutPay(_ context.Context, rec *payroll.CutPayRecord) error {
	if _, ok := v.parent.cutPay[rec.ID]; !ok {
		return payroll.ErrRecordNotFound
	}
	v.parent.cutPay[rec.ID] = *rec
	return nil
}

func (v *txMemoryView) GetCutPay(_ context.Context, id payroll.CutPayID) (*payroll.CutPayRecord, error) {
	rec, ok := v.parent.cutPay[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &rec, nil
}

func (v *txMemoryView) UpdateCutPayStatusBatch(_ context.Context, ids []payroll.CutPayID, eligible []payroll.CutPayStatus, to payroll.CutPayStatus, at time.Time) ([]payroll.CutPayID, error) {
	allowed := make(map[payroll.CutPayStatus]bool, len(eligible))
	for _, s := range eligible {
		allowed[s] = true
	}
	var transitioned []payroll.CutPayID
	for _, id := range ids {
		rec, ok := v.parent.cutPay[id]
		if !ok || !allowed[rec.Status] {
			continue
		}
		rec.SetStatus(to, at)
		v.parent.cutPay[id] = rec
		transitioned = append(transitioned, id)
	}
	return transitioned, nil
}

func (v *txMemoryView) UpsertLineItem(_ context.Context, item *payroll.PayrollLineItem) error {
	return v.parent.upsertLineItemLocked(item)
}

func (v *txMemoryView) GetLineItem(_ context.Context, id payroll.LineItemID) (*payroll.PayrollLineItem, error) {
	li, ok := v.parent.lineItems[id]
	if !ok {
		return nil, payroll.ErrRecordNotFound
	}
	return &li, nil
}

func (v *txMemoryView) LineItemByTripPay(_ context.Context, id payroll.TripPayID) (*payroll.PayrollLineItem, error) {
	liID, ok := v.parent.liByTripPay[id]
	if !ok {
		return nil, nil
	}
	li := v.parent.lineItems[liID]
	return &li, nil
}

func (v *txMemoryView) LineItemByCutPay(_ context.Context, id payroll.CutPayID) (*payroll.PayrollLineItem, error) {
	liID, ok := v.parent.liByCutPay[id]
	if !ok {
		return nil, nil
	}
	li := v.parent.lineItems[liID]
	return &li, nil
}

func (v *txMemoryView) ListLineItems(_ context.Context, filter payroll.LineItemFilter) ([]payroll.PayrollLineItem, error) {
	return v.parent.listLineItemsLocked(filter), nil
}

func (v *txMemoryView) SetLineItemApproval(_ context.Context, ids []payroll.LineItemID, by string, at time.Time) error {
	for _, id := range ids {
		li, ok := v.parent.lineItems[id]
		if !ok {
			continue
		}
		li.ApprovedBy = by
		li.ApprovedAt = &at
		li.UpdatedAt = at
		v.parent.lineItems[id] = li
	}
	return nil
}

func (v *txMemoryView) MarkLineItemsExported(_ context.Context, ids []payroll.LineItemID, by string, at time.Time) error {
	return v.parent.markExportedLocked(ids, by, at)
}
