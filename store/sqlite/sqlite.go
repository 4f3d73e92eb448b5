/*
Package sqlite provides the SQLite-backed implementation of the payroll
storage interfaces.

PURPOSE:
  Implements payroll.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  rate_cards:         Scoped compensation rules (accessorial child rates
                      embedded as JSON)
  trips:              Operational trip snapshots from the dispatch layer
                      (linehaul profile and delays embedded as JSON)
  pay_periods:        Accounting windows and their lifecycle status
  trip_pay:           Source records for automatic pay; UNIQUE(trip_id)
                      backs the insert-or-fetch-existing primitive
  cut_pay:            Source records for manual adjustments
  payroll_line_items: The read/export projection; partial unique indexes on
                      each source key back the atomic upsert

UPSERT CONTRACT:
  UpsertLineItem runs as one INSERT .. ON CONFLICT DO UPDATE against the
  source-key index. The conflict branch never touches id, created_at, or
  the approval/export audit columns; after the statement the preserved
  identity is read back into the caller's struct.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := payrun.NewService(store, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/store.go: Interface definitions and contracts
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fleetline/payroll-engine/payroll"
)

// Store implements payroll.TxStore using SQLite.
type Store struct {
	conn
	db *sql.DB
	mu sync.Mutex // serializes writers; SQLite WAL allows one at a time
}

var _ payroll.TxStore = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection to ":memory:" is a separate empty
		// database; pin the pool to one so the schema is shared.
		db.SetMaxOpenConns(1)
	}

	store := &Store{conn: conn{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Rate cards (accessorial child rates embedded as JSON)
	CREATE TABLE IF NOT EXISTS rate_cards (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		driver_id TEXT NOT NULL DEFAULT '',
		linehaul_id TEXT NOT NULL DEFAULT '',
		origin_terminal_id TEXT NOT NULL DEFAULT '',
		destination_terminal_id TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		rate TEXT NOT NULL,
		minimum_amount TEXT,
		effective_date TEXT NOT NULL,
		expiration_date TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		accessorials_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_rate_cards_scope
		ON rate_cards(scope, driver_id, linehaul_id, origin_terminal_id, destination_terminal_id);

	-- Trips (read-only snapshots from the dispatch layer)
	CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		driver_id TEXT NOT NULL DEFAULT '',
		driver_name TEXT NOT NULL DEFAULT '',
		linehaul_json TEXT,
		dispatch_date TEXT NOT NULL,
		actual_miles TEXT,
		delays_json TEXT NOT NULL DEFAULT '[]'
	);

	-- Pay periods
	CREATE TABLE IF NOT EXISTS pay_periods (
		id TEXT PRIMARY KEY,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pay_periods_status_range
		ON pay_periods(status, start_date, end_date);

	-- Trip pay source records
	-- CRITICAL: UNIQUE(trip_id) backs the insert-or-fetch-existing primitive;
	-- a trip can never grow a second pay record.
	CREATE TABLE IF NOT EXISTS trip_pay (
		id TEXT PRIMARY KEY,
		trip_id TEXT NOT NULL UNIQUE,
		pay_period_id TEXT NOT NULL,
		driver_id TEXT NOT NULL,
		base_pay TEXT NOT NULL,
		mileage_pay TEXT NOT NULL,
		accessorial_pay TEXT NOT NULL,
		bonus_pay TEXT NOT NULL,
		deductions TEXT NOT NULL,
		total_gross_pay TEXT NOT NULL,
		status TEXT NOT NULL,
		calculated_at TEXT,
		reviewed_at TEXT,
		approved_at TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trip_pay_period
		ON trip_pay(pay_period_id);
	CREATE INDEX IF NOT EXISTS idx_trip_pay_driver
		ON trip_pay(driver_id);
	CREATE INDEX IF NOT EXISTS idx_trip_pay_status
		ON trip_pay(status);

	-- Cut pay source records
	CREATE TABLE IF NOT EXISTS cut_pay (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		trip_id TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		adjustment_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		work_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cut_pay_driver
		ON cut_pay(driver_id);
	CREATE INDEX IF NOT EXISTS idx_cut_pay_status
		ON cut_pay(status);

	-- Line item projection
	-- Partial unique indexes on the mutually exclusive source keys back the
	-- atomic upsert: exactly one projection row per source record.
	CREATE TABLE IF NOT EXISTS payroll_line_items (
		id TEXT PRIMARY KEY,
		trip_pay_id TEXT NOT NULL DEFAULT '',
		cut_pay_id TEXT NOT NULL DEFAULT '',
		driver_id TEXT NOT NULL,
		driver_name TEXT NOT NULL DEFAULT '',
		trip_number TEXT NOT NULL DEFAULT '',
		trailer_config TEXT NOT NULL DEFAULT '',
		work_date TEXT NOT NULL,
		base_pay TEXT NOT NULL,
		mileage_pay TEXT NOT NULL,
		drop_hook_pay TEXT NOT NULL,
		chain_up_pay TEXT NOT NULL,
		wait_time_pay TEXT NOT NULL,
		other_accessorial_pay TEXT NOT NULL,
		bonus_pay TEXT NOT NULL,
		deductions TEXT NOT NULL,
		cut_pay_hours TEXT NOT NULL,
		cut_pay_miles TEXT NOT NULL,
		total_pay TEXT NOT NULL,
		miles TEXT NOT NULL,
		quantity TEXT NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT NOT NULL DEFAULT '',
		approved_at TEXT,
		exported_by TEXT NOT NULL DEFAULT '',
		exported_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_line_items_trip_pay
		ON payroll_line_items(trip_pay_id) WHERE trip_pay_id != '';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_line_items_cut_pay
		ON payroll_line_items(cut_pay_id) WHERE cut_pay_id != '';
	CREATE INDEX IF NOT EXISTS idx_line_items_driver_date
		ON payroll_line_items(driver_id, work_date);
	CREATE INDEX IF NOT EXISTS idx_line_items_status
		ON payroll_line_items(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CONNECTION - Shared implementation over *sql.DB or *sql.Tx
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	db dbtx
}

var _ payroll.Store = (*conn)(nil)

// =============================================================================
// RATE CARDS
// =============================================================================

func (c *conn) SaveRateCard(ctx context.Context, card *payroll.RateCard) error {
	accessorials, err := json.Marshal(card.Accessorials)
	if err != nil {
		return fmt.Errorf("failed to encode accessorial rates: %w", err)
	}

	query := `
		INSERT INTO rate_cards
		(id, scope, driver_id, linehaul_id, origin_terminal_id, destination_terminal_id,
		 method, rate, minimum_amount, effective_date, expiration_date, active, accessorials_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope,
			driver_id = excluded.driver_id,
			linehaul_id = excluded.linehaul_id,
			origin_terminal_id = excluded.origin_terminal_id,
			destination_terminal_id = excluded.destination_terminal_id,
			method = excluded.method,
			rate = excluded.rate,
			minimum_amount = excluded.minimum_amount,
			effective_date = excluded.effective_date,
			expiration_date = excluded.expiration_date,
			active = excluded.active,
			accessorials_json = excluded.accessorials_json
	`

	_, err = c.db.ExecContext(ctx, query,
		card.ID, card.Scope, card.DriverID, card.LinehaulID,
		card.OriginTerminalID, card.DestinationTerminalID,
		card.Method, card.Rate.String(),
		nullMoney(card.MinimumAmount),
		card.EffectiveDate.String(),
		nullDate(card.ExpirationDate),
		card.Active,
		string(accessorials),
	)
	return err
}

func (c *conn) RateCardsByScope(ctx context.Context, scope payroll.ScopeType, key payroll.RateKey) ([]payroll.RateCard, error) {
	query := `
		SELECT id, scope, driver_id, linehaul_id, origin_terminal_id, destination_terminal_id,
		       method, rate, minimum_amount, effective_date, expiration_date, active, accessorials_json
		FROM rate_cards
		WHERE scope = ?
	`
	args := []any{scope}

	switch scope {
	case payroll.ScopeDriver:
		query += " AND driver_id = ?"
		args = append(args, key.DriverID)
	case payroll.ScopeLinehaul:
		query += " AND linehaul_id = ?"
		args = append(args, key.LinehaulID)
	case payroll.ScopeODPair:
		query += " AND origin_terminal_id = ? AND destination_terminal_id = ?"
		args = append(args, key.OriginTerminalID, key.DestinationTerminalID)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate cards: %w", err)
	}
	defer rows.Close()

	var cards []payroll.RateCard
	for rows.Next() {
		var (
			card           payroll.RateCard
			rate           string
			minimumAmount  sql.NullString
			effectiveDate  string
			expirationDate sql.NullString
			accessorials   string
		)
		if err := rows.Scan(
			&card.ID, &card.Scope, &card.DriverID, &card.LinehaulID,
			&card.OriginTerminalID, &card.DestinationTerminalID,
			&card.Method, &rate, &minimumAmount, &effectiveDate,
			&expirationDate, &card.Active, &accessorials,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rate card: %w", err)
		}

		card.Rate, _ = decimal.NewFromString(rate)
		card.MinimumAmount = scanNullMoney(minimumAmount)
		card.EffectiveDate, _ = payroll.ParseDate(effectiveDate)
		card.ExpirationDate = scanNullDate(expirationDate)
		if err := json.Unmarshal([]byte(accessorials), &card.Accessorials); err != nil {
			return nil, fmt.Errorf("failed to decode accessorial rates for card %s: %w", card.ID, err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// =============================================================================
// TRIPS
// =============================================================================

func (c *conn) SaveTrip(ctx context.Context, trip *payroll.Trip) error {
	var linehaul sql.NullString
	if trip.Linehaul != nil {
		b, err := json.Marshal(trip.Linehaul)
		if err != nil {
			return fmt.Errorf("failed to encode linehaul: %w", err)
		}
		linehaul = sql.NullString{String: string(b), Valid: true}
	}
	delays, err := json.Marshal(trip.Delays)
	if err != nil {
		return fmt.Errorf("failed to encode delays: %w", err)
	}

	var actualMiles sql.NullString
	if trip.ActualMiles != nil {
		actualMiles = sql.NullString{String: trip.ActualMiles.String(), Valid: true}
	}

	query := `
		INSERT INTO trips (id, number, driver_id, driver_name, linehaul_json, dispatch_date, actual_miles, delays_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			driver_id = excluded.driver_id,
			driver_name = excluded.driver_name,
			linehaul_json = excluded.linehaul_json,
			dispatch_date = excluded.dispatch_date,
			actual_miles = excluded.actual_miles,
			delays_json = excluded.delays_json
	`

	_, err = c.db.ExecContext(ctx, query,
		trip.ID, trip.Number, trip.DriverID, trip.DriverName,
		linehaul, trip.DispatchDate.String(), actualMiles, string(delays),
	)
	return err
}

func (c *conn) GetTrip(ctx context.Context, id payroll.TripID) (*payroll.Trip, error) {
	var (
		trip         payroll.Trip
		linehaul     sql.NullString
		dispatchDate string
		actualMiles  sql.NullString
		delays       string
	)

	err := c.db.QueryRowContext(ctx,
		"SELECT id, number, driver_id, driver_name, linehaul_json, dispatch_date, actual_miles, delays_json FROM trips WHERE id = ?",
		id,
	).Scan(&trip.ID, &trip.Number, &trip.DriverID, &trip.DriverName, &linehaul, &dispatchDate, &actualMiles, &delays)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trip %s: %w", id, payroll.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}

	if linehaul.Valid && linehaul.String != "" {
		trip.Linehaul = &payroll.Linehaul{}
		if err := json.Unmarshal([]byte(linehaul.String), trip.Linehaul); err != nil {
			return nil, fmt.Errorf("failed to decode linehaul for trip %s: %w", id, err)
		}
	}
	trip.DispatchDate, _ = payroll.ParseDate(dispatchDate)
	if actualMiles.Valid {
		miles, err := decimal.NewFromString(actualMiles.String)
		if err == nil {
			trip.ActualMiles = &miles
		}
	}
	if err := json.Unmarshal([]byte(delays), &trip.Delays); err != nil {
		return nil, fmt.Errorf("failed to decode delays for trip %s: %w", id, err)
	}
	return &trip, nil
}

// =============================================================================
// PAY PERIODS
// =============================================================================

func (c *conn) SavePeriod(ctx context.Context, p *payroll.PayPeriod) error {
	query := `
		INSERT INTO pay_periods (id, start_date, end_date, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status
	`
	_, err := c.db.ExecContext(ctx, query, p.ID, p.StartDate.String(), p.EndDate.String(), p.Status)
	return err
}

func (c *conn) GetPeriod(ctx context.Context, id payroll.PayPeriodID) (*payroll.PayPeriod, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT id, start_date, end_date, status FROM pay_periods WHERE id = ?", id)
	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pay period %s: %w", id, payroll.ErrRecordNotFound)
	}
	return p, err
}

func (c *conn) OpenPeriodContaining(ctx context.Context, d payroll.Date) (*payroll.PayPeriod, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, start_date, end_date, status FROM pay_periods
		WHERE status = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC
		LIMIT 1
	`, payroll.PeriodOpen, d.String(), d.String())

	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (c *conn) ListPeriods(ctx context.Context) ([]payroll.PayPeriod, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, start_date, end_date, status FROM pay_periods ORDER BY start_date ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []payroll.PayPeriod
	for rows.Next() {
		var p payroll.PayPeriod
		var start, end string
		if err := rows.Scan(&p.ID, &start, &end, &p.Status); err != nil {
			return nil, err
		}
		p.StartDate, _ = payroll.ParseDate(start)
		p.EndDate, _ = payroll.ParseDate(end)
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanPeriod(row *sql.Row) (*payroll.PayPeriod, error) {
	var p payroll.PayPeriod
	var start, end string
	if err := row.Scan(&p.ID, &start, &end, &p.Status); err != nil {
		return nil, err
	}
	p.StartDate, _ = payroll.ParseDate(start)
	p.EndDate, _ = payroll.ParseDate(end)
	return &p, nil
}

// =============================================================================
// TRIP PAY
// =============================================================================

const tripPayColumns = `id, trip_id, pay_period_id, driver_id,
	base_pay, mileage_pay, accessorial_pay, bonus_pay, deductions, total_gross_pay,
	status, calculated_at, reviewed_at, approved_at, paid_at, created_at, updated_at`

func (c *conn) InsertTripPay(ctx context.Context, rec *payroll.TripPayRecord) error {
	query := `
		INSERT INTO trip_pay (` + tripPayColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query,
		rec.ID, rec.TripID, rec.PayPeriodID, rec.DriverID,
		rec.BasePay.String(), rec.MileagePay.String(), rec.AccessorialPay.String(),
		rec.BonusPay.String(), rec.Deductions.String(), rec.TotalGrossPay.String(),
		rec.Status,
		nullTime(rec.CalculatedAt), nullTime(rec.ReviewedAt),
		nullTime(rec.ApprovedAt), nullTime(rec.PaidAt),
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err, "trip_pay.trip_id") {
			return fmt.Errorf("trip %s: %w", rec.TripID, payroll.ErrDuplicateTripPay)
		}
		return fmt.Errorf("failed to insert trip pay: %w", err)
	}
	return nil
}

func (c *conn) UpdateTripPay(ctx context.Context, rec *payroll.TripPayRecord) error {
	query := `
		UPDATE trip_pay SET
			pay_period_id = ?, driver_id = ?,
			base_pay = ?, mileage_pay = ?, accessorial_pay = ?,
			bonus_pay = ?, deductions = ?, total_gross_pay = ?,
			status = ?, calculated_at = ?, reviewed_at = ?, approved_at = ?, paid_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := c.db.ExecContext(ctx, query,
		rec.PayPeriodID, rec.DriverID,
		rec.BasePay.String(), rec.MileagePay.String(), rec.AccessorialPay.String(),
		rec.BonusPay.String(), rec.Deductions.String(), rec.TotalGrossPay.String(),
		rec.Status,
		nullTime(rec.CalculatedAt), nullTime(rec.ReviewedAt),
		nullTime(rec.ApprovedAt), nullTime(rec.PaidAt),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update trip pay: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trip pay %s: %w", rec.ID, payroll.ErrRecordNotFound)
	}
	return nil
}

func (c *conn) GetTripPay(ctx context.Context, id payroll.TripPayID) (*payroll.TripPayRecord, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+tripPayColumns+" FROM trip_pay WHERE id = ?", id)
	rec, err := scanTripPay(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trip pay %s: %w", id, payroll.ErrRecordNotFound)
	}
	return rec, err
}

func (c *conn) TripPayByTrip(ctx context.Context, tripID payroll.TripID) (*payroll.TripPayRecord, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+tripPayColumns+" FROM trip_pay WHERE trip_id = ?", tripID)
	rec, err := scanTripPay(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (c *conn) UpdateTripPayStatusBatch(ctx context.Context, ids []payroll.TripPayID, eligible []payroll.TripPayStatus, to payroll.TripPayStatus, at time.Time) ([]payroll.TripPayID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := []any{to, at.Format(time.RFC3339)}
	query := "UPDATE trip_pay SET status = ?, updated_at = ?"
	if col := tripPayTimestampColumn(to); col != "" {
		query += ", " + col + " = COALESCE(" + col + ", ?)"
		args = append(args, at.Format(time.RFC3339))
	}

	query += " WHERE id IN (" + placeholders(len(ids)) + ")"
	for _, id := range ids {
		args = append(args, id)
	}
	query += " AND status IN (" + placeholders(len(eligible)) + ")"
	for _, s := range eligible {
		args = append(args, s)
	}
	query += " RETURNING id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch update trip pay status: %w", err)
	}
	defer rows.Close()

	var transitioned []payroll.TripPayID
	for rows.Next() {
		var id payroll.TripPayID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		transitioned = append(transitioned, id)
	}
	return transitioned, rows.Err()
}

// tripPayTimestampColumn maps a target status to its write-once lifecycle
// timestamp column, empty when the status has none.
func tripPayTimestampColumn(to payroll.TripPayStatus) string {
	switch to {
	case payroll.TripPayCalculated:
		return "calculated_at"
	case payroll.TripPayReviewed:
		return "reviewed_at"
	case payroll.TripPayApproved:
		return "approved_at"
	case payroll.TripPayPaid:
		return "paid_at"
	}
	return ""
}

func scanTripPay(scan func(...any) error) (*payroll.TripPayRecord, error) {
	var (
		rec                payroll.TripPayRecord
		basePay            string
		mileagePay         string
		accessorialPay     string
		bonusPay           string
		deductions         string
		totalGrossPay      string
		calculatedAt       sql.NullString
		reviewedAt         sql.NullString
		approvedAt         sql.NullString
		paidAt             sql.NullString
		createdAt, updated string
	)

	err := scan(
		&rec.ID, &rec.TripID, &rec.PayPeriodID, &rec.DriverID,
		&basePay, &mileagePay, &accessorialPay, &bonusPay, &deductions, &totalGrossPay,
		&rec.Status, &calculatedAt, &reviewedAt, &approvedAt, &paidAt,
		&createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}

	rec.BasePay = payroll.MustParseMoney(basePay)
	rec.MileagePay = payroll.MustParseMoney(mileagePay)
	rec.AccessorialPay = payroll.MustParseMoney(accessorialPay)
	rec.BonusPay = payroll.MustParseMoney(bonusPay)
	rec.Deductions = payroll.MustParseMoney(deductions)
	rec.TotalGrossPay = payroll.MustParseMoney(totalGrossPay)
	rec.CalculatedAt = scanNullTime(calculatedAt)
	rec.ReviewedAt = scanNullTime(reviewedAt)
	rec.ApprovedAt = scanNullTime(approvedAt)
	rec.PaidAt = scanNullTime(paidAt)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &rec, nil
}

// =============================================================================
// CUT PAY
// =============================================================================

const cutPayColumns = `id, driver_id, trip_id, amount, adjustment_type, quantity,
	description, status, work_date, created_at, updated_at`

func (c *conn) InsertCutPay(ctx context.Context, rec *payroll.CutPayRecord) error {
	query := `
		INSERT INTO cut_pay (` + cutPayColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query,
		rec.ID, rec.DriverID, rec.TripID,
		rec.Amount.String(), rec.AdjustmentType, rec.Quantity.String(),
		rec.Description, rec.Status, rec.WorkDate.String(),
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cut pay: %w", err)
	}
	return nil
}

func (c *conn) UpdateCutPay(ctx context.Context, rec *payroll.CutPayRecord) error {
	query := `
		UPDATE cut_pay SET
			driver_id = ?, trip_id = ?, amount = ?, adjustment_type = ?, quantity = ?,
			description = ?, status = ?, work_date = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := c.db.ExecContext(ctx, query,
		rec.DriverID, rec.TripID, rec.Amount.String(), rec.AdjustmentType,
		rec.Quantity.String(), rec.Description, rec.Status, rec.WorkDate.String(),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cut pay: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cut pay %s: %w", rec.ID, payroll.ErrRecordNotFound)
	}
	return nil
}

func (c *conn) GetCutPay(ctx context.Context, id payroll.CutPayID) (*payroll.CutPayRecord, error) {
	var (
		rec                payroll.CutPayRecord
		amount, quantity   string
		workDate           string
		createdAt, updated string
	)

	err := c.db.QueryRowContext(ctx,
		"SELECT "+cutPayColumns+" FROM cut_pay WHERE id = ?", id,
	).Scan(
		&rec.ID, &rec.DriverID, &rec.TripID, &amount, &rec.AdjustmentType,
		&quantity, &rec.Description, &rec.Status, &workDate, &createdAt, &updated,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cut pay %s: %w", id, payroll.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}

	rec.Amount = payroll.MustParseMoney(amount)
	rec.Quantity, _ = decimal.NewFromString(quantity)
	rec.WorkDate, _ = payroll.ParseDate(workDate)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &rec, nil
}

func (c *conn) UpdateCutPayStatusBatch(ctx context.Context, ids []payroll.CutPayID, eligible []payroll.CutPayStatus, to payroll.CutPayStatus, at time.Time) ([]payroll.CutPayID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := []any{to, at.Format(time.RFC3339)}
	query := "UPDATE cut_pay SET status = ?, updated_at = ?"
	query += " WHERE id IN (" + placeholders(len(ids)) + ")"
	for _, id := range ids {
		args = append(args, id)
	}
	query += " AND status IN (" + placeholders(len(eligible)) + ")"
	for _, s := range eligible {
		args = append(args, s)
	}
	query += " RETURNING id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch update cut pay status: %w", err)
	}
	defer rows.Close()

	var transitioned []payroll.CutPayID
	for rows.Next() {
		var id payroll.CutPayID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		transitioned = append(transitioned, id)
	}
	return transitioned, rows.Err()
}

// =============================================================================
// LINE ITEMS
// =============================================================================

const lineItemColumns = `id, trip_pay_id, cut_pay_id, driver_id, driver_name, trip_number,
	trailer_config, work_date,
	base_pay, mileage_pay, drop_hook_pay, chain_up_pay, wait_time_pay, other_accessorial_pay,
	bonus_pay, deductions, cut_pay_hours, cut_pay_miles, total_pay,
	miles, quantity, status,
	approved_by, approved_at, exported_by, exported_at, created_at, updated_at`

func (c *conn) UpsertLineItem(ctx context.Context, item *payroll.PayrollLineItem) error {
	// The conflict branch leaves id, created_at, and the audit columns alone.
	conflictTarget := "trip_pay_id) WHERE trip_pay_id != ''"
	if !item.FromTripPay() {
		conflictTarget = "cut_pay_id) WHERE cut_pay_id != ''"
	}

	query := `
		INSERT INTO payroll_line_items (` + lineItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(` + conflictTarget + ` DO UPDATE SET
			driver_id = excluded.driver_id,
			driver_name = excluded.driver_name,
			trip_number = excluded.trip_number,
			trailer_config = excluded.trailer_config,
			work_date = excluded.work_date,
			base_pay = excluded.base_pay,
			mileage_pay = excluded.mileage_pay,
			drop_hook_pay = excluded.drop_hook_pay,
			chain_up_pay = excluded.chain_up_pay,
			wait_time_pay = excluded.wait_time_pay,
			other_accessorial_pay = excluded.other_accessorial_pay,
			bonus_pay = excluded.bonus_pay,
			deductions = excluded.deductions,
			cut_pay_hours = excluded.cut_pay_hours,
			cut_pay_miles = excluded.cut_pay_miles,
			total_pay = excluded.total_pay,
			miles = excluded.miles,
			quantity = excluded.quantity,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query,
		item.ID, item.TripPayID, item.CutPayID,
		item.DriverID, item.DriverName, item.TripNumber,
		item.TrailerConfig, item.WorkDate.String(),
		item.BasePay.String(), item.MileagePay.String(),
		item.DropHookPay.String(), item.ChainUpPay.String(), item.WaitTimePay.String(),
		item.OtherAccessorialPay.String(), item.BonusPay.String(), item.Deductions.String(),
		item.CutPayHours.String(), item.CutPayMiles.String(), item.TotalPay.String(),
		item.Miles.String(), item.Quantity.String(), item.Status,
		item.ApprovedBy, nullTime(item.ApprovedAt),
		item.ExportedBy, nullTime(item.ExportedAt),
		item.CreatedAt.Format(time.RFC3339), item.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert line item: %w", err)
	}

	// Read the surviving row back so the caller sees the preserved identity
	// and audit fields.
	var existing *payroll.PayrollLineItem
	if item.FromTripPay() {
		existing, err = c.LineItemByTripPay(ctx, item.TripPayID)
	} else {
		existing, err = c.LineItemByCutPay(ctx, item.CutPayID)
	}
	if err != nil {
		return err
	}
	if existing != nil {
		*item = *existing
	}
	return nil
}

func (c *conn) GetLineItem(ctx context.Context, id payroll.LineItemID) (*payroll.PayrollLineItem, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+lineItemColumns+" FROM payroll_line_items WHERE id = ?", id)
	item, err := scanLineItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("line item %s: %w", id, payroll.ErrRecordNotFound)
	}
	return item, err
}

func (c *conn) LineItemByTripPay(ctx context.Context, id payroll.TripPayID) (*payroll.PayrollLineItem, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+lineItemColumns+" FROM payroll_line_items WHERE trip_pay_id = ?", id)
	item, err := scanLineItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (c *conn) LineItemByCutPay(ctx context.Context, id payroll.CutPayID) (*payroll.PayrollLineItem, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+lineItemColumns+" FROM payroll_line_items WHERE cut_pay_id = ?", id)
	item, err := scanLineItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (c *conn) ListLineItems(ctx context.Context, filter payroll.LineItemFilter) ([]payroll.PayrollLineItem, error) {
	query := "SELECT " + lineItemColumns + " FROM payroll_line_items WHERE 1=1"
	var args []any

	if filter.From != nil {
		query += " AND work_date >= ?"
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		query += " AND work_date <= ?"
		args = append(args, filter.To.String())
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Driver != nil {
		query += " AND driver_id = ?"
		args = append(args, *filter.Driver)
	}
	query += " ORDER BY driver_id ASC, work_date ASC, id ASC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []payroll.PayrollLineItem
	for rows.Next() {
		item, err := scanLineItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (c *conn) SetLineItemApproval(ctx context.Context, ids []payroll.LineItemID, by string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{by, at.Format(time.RFC3339), at.Format(time.RFC3339)}
	query := "UPDATE payroll_line_items SET approved_by = ?, approved_at = ?, updated_at = ? WHERE id IN (" + placeholders(len(ids)) + ")"
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func (c *conn) MarkLineItemsExported(ctx context.Context, ids []payroll.LineItemID, by string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{by, at.Format(time.RFC3339), at.Format(time.RFC3339)}
	query := "UPDATE payroll_line_items SET exported_by = ?, exported_at = ?, updated_at = ? WHERE id IN (" + placeholders(len(ids)) + ")"
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func scanLineItem(scan func(...any) error) (*payroll.PayrollLineItem, error) {
	var (
		item payroll.PayrollLineItem

		workDate string
		basePay, mileagePay, dropHookPay, chainUpPay, waitTimePay string
		otherPay, bonusPay, deductions, cutHours, cutMiles        string
		totalPay, miles, quantity                                 string
		approvedAt, exportedAt                                    sql.NullString
		createdAt, updatedAt                                      string
	)

	err := scan(
		&item.ID, &item.TripPayID, &item.CutPayID,
		&item.DriverID, &item.DriverName, &item.TripNumber,
		&item.TrailerConfig, &workDate,
		&basePay, &mileagePay, &dropHookPay, &chainUpPay, &waitTimePay,
		&otherPay, &bonusPay, &deductions, &cutHours, &cutMiles, &totalPay,
		&miles, &quantity, &item.Status,
		&item.ApprovedBy, &approvedAt, &item.ExportedBy, &exportedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.WorkDate, _ = payroll.ParseDate(workDate)
	item.BasePay = payroll.MustParseMoney(basePay)
	item.MileagePay = payroll.MustParseMoney(mileagePay)
	item.DropHookPay = payroll.MustParseMoney(dropHookPay)
	item.ChainUpPay = payroll.MustParseMoney(chainUpPay)
	item.WaitTimePay = payroll.MustParseMoney(waitTimePay)
	item.OtherAccessorialPay = payroll.MustParseMoney(otherPay)
	item.BonusPay = payroll.MustParseMoney(bonusPay)
	item.Deductions = payroll.MustParseMoney(deductions)
	item.CutPayHours = payroll.MustParseMoney(cutHours)
	item.CutPayMiles = payroll.MustParseMoney(cutMiles)
	item.TotalPay = payroll.MustParseMoney(totalPay)
	item.Miles, _ = decimal.NewFromString(miles)
	item.Quantity, _ = decimal.NewFromString(quantity)
	item.ApprovedAt = scanNullTime(approvedAt)
	item.ExportedAt = scanNullTime(exportedAt)
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &item, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullMoney(m *payroll.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.String(), Valid: true}
}

func scanNullMoney(s sql.NullString) *payroll.Money {
	if !s.Valid {
		return nil
	}
	m := payroll.MustParseMoney(s.String)
	return &m
}

func nullDate(d *payroll.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func scanNullDate(s sql.NullString) *payroll.Date {
	if !s.Valid {
		return nil
	}
	d, err := payroll.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func scanNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error, index string) bool {
	return err != nil &&
		strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), index)
}
