/*
store.go - Persistence interfaces for the payroll engine

PURPOSE:
  Defines the interface between the engine and its database. Every
  component takes these interfaces, never a concrete handle, so each can
  be tested against the in-memory store.

KEY INTERFACES:
  RateStore:     Rate-card lookup by scope tier (read-only; see rate.go)
  TripStore:     Trip lookup (read-only input from the dispatch layer)
  PeriodStore:   Pay-period persistence and OPEN-window lookup
  TripPayStore:  Trip pay source records; insert is guarded by a
                 uniqueness constraint on trip id
  CutPayStore:   Cut pay source records
  LineItemStore: The projection; upsert is atomic on the source key
  TxStore:       Wraps everything in a database transaction

UPSERT CONTRACT:
  UpsertLineItem is keyed by the unique source-id foreign key. On update
  it overwrites money, denormalized, and status fields in place and never
  touches identity, creation timestamp, or the approval/export audit
  fields - those change only through SetLineItemApproval and
  MarkLineItemsExported.

DUAL-WRITE CONTRACT:
  A source record and its projection are one logical write. Callers wrap
  both in WithTx; the sync step is idempotent and safe to call
  redundantly.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - payroll/store/memory.go: In-memory for testing

SEE ALSO:
  - payrun/sync.go: The synchronizer that relies on the upsert contract
*/
package payroll

import (
	"context"
	"time"
)

// =============================================================================
// READ-ONLY INPUTS
// =============================================================================

// TripStore provides trips. SaveTrip exists as the ingestion point from the
// excluded CRUD layer; the engine itself never mutates trips.
type TripStore interface {
	GetTrip(ctx context.Context, id TripID) (*Trip, error)
	SaveTrip(ctx context.Context, trip *Trip) error
}

// RateAdminStore is the ingestion point for rate cards. Lookup lives on
// RateStore (rate.go).
type RateAdminStore interface {
	SaveRateCard(ctx context.Context, card *RateCard) error
}

// =============================================================================
// PAY PERIODS
// =============================================================================

type PeriodStore interface {
	GetPeriod(ctx context.Context, id PayPeriodID) (*PayPeriod, error)

	// OpenPeriodContaining returns the OPEN period whose range contains d,
	// or (nil, nil) when none exists.
	OpenPeriodContaining(ctx context.Context, d Date) (*PayPeriod, error)

	SavePeriod(ctx context.Context, p *PayPeriod) error
	ListPeriods(ctx context.Context) ([]PayPeriod, error)
}

// =============================================================================
// SOURCE RECORDS
// =============================================================================

type TripPayStore interface {
	// InsertTripPay creates the record. Returns ErrDuplicateTripPay when the
	// trip already has one; callers then fetch the existing record instead.
	// This is the atomic insert-or-fetch-existing primitive - there is no
	// separate existence check.
	InsertTripPay(ctx context.Context, rec *TripPayRecord) error

	UpdateTripPay(ctx context.Context, rec *TripPayRecord) error
	GetTripPay(ctx context.Context, id TripPayID) (*TripPayRecord, error)

	// TripPayByTrip returns (nil, nil) when the trip has no pay record.
	TripPayByTrip(ctx context.Context, tripID TripID) (*TripPayRecord, error)

	// UpdateTripPayStatusBatch transitions, in one statement, every listed
	// record whose current status is in eligible. Returns the IDs actually
	// transitioned; the rest are silently skipped.
	UpdateTripPayStatusBatch(ctx context.Context, ids []TripPayID, eligible []TripPayStatus, to TripPayStatus, at time.Time) ([]TripPayID, error)
}

type CutPayStore interface {
	InsertCutPay(ctx context.Context, rec *CutPayRecord) error
	UpdateCutPay(ctx context.Context, rec *CutPayRecord) error
	GetCutPay(ctx context.Context, id CutPayID) (*CutPayRecord, error)
	UpdateCutPayStatusBatch(ctx context.Context, ids []CutPayID, eligible []CutPayStatus, to CutPayStatus, at time.Time) ([]CutPayID, error)
}

// =============================================================================
// PROJECTION
// =============================================================================

type LineItemFilter struct {
	From   *Date
	To     *Date
	Status *Status
	Driver *DriverID
}

type LineItemStore interface {
	// UpsertLineItem inserts or updates atomically, keyed on the source
	// foreign key. See the upsert contract in the package comment.
	UpsertLineItem(ctx context.Context, item *PayrollLineItem) error

	GetLineItem(ctx context.Context, id LineItemID) (*PayrollLineItem, error)

	// Source-key lookups return (nil, nil) when no projection exists yet.
	LineItemByTripPay(ctx context.Context, id TripPayID) (*PayrollLineItem, error)
	LineItemByCutPay(ctx context.Context, id CutPayID) (*PayrollLineItem, error)

	ListLineItems(ctx context.Context, filter LineItemFilter) ([]PayrollLineItem, error)

	SetLineItemApproval(ctx context.Context, ids []LineItemID, by string, at time.Time) error
	MarkLineItemsExported(ctx context.Context, ids []LineItemID, by string, at time.Time) error
}

// =============================================================================
// COMBINED STORE
// =============================================================================

type Store interface {
	RateStore
	RateAdminStore
	TripStore
	PeriodStore
	TripPayStore
	CutPayStore
	LineItemStore
}

// TxStore wraps Store with transaction support. A source write and its
// projection sync run inside one WithTx call.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
