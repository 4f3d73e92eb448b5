/*
Package export implements the bulk approval workflow and the external
payroll feed.

KEY CONCEPTS IN THIS FILE (types.go):
  - ItemRef: A (type, id) reference into either source table
  - PayCategory: The monetary sub-categories that become feed lines
  - Paycode table: External paycodes keyed by (category, trailer config)
  - ExportFile: The deterministic, driver-grouped artifact

PAYCODES:
  The external rate system keys compensation on a paycode that depends on
  both the pay category and the trailer configuration the linehaul runs.
  Categories without a configuration-specific code fall back to a default.

SEE ALSO:
  - export.go: BulkApprove and ExportApproved
*/
package export

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetline/payroll-engine/payroll"
)

// =============================================================================
// ITEM REFERENCES
// =============================================================================

type ItemType string

const (
	ItemTripPay ItemType = "TRIP_PAY"
	ItemCutPay  ItemType = "CUT_PAY"
)

// ItemRef identifies one source record in a mixed bulk request.
type ItemRef struct {
	Type ItemType `json:"type"`
	ID   string   `json:"id"`
}

// ApprovalResult reports how many items of each type actually transitioned.
// Items already past the approvable window are skipped, not errored.
type ApprovalResult struct {
	TripPayApproved int `json:"trip_pay_approved"`
	CutPayApproved  int `json:"cut_pay_approved"`
}

// =============================================================================
// PAY CATEGORIES
// =============================================================================

type PayCategory string

const (
	CategoryBase     PayCategory = "BASE"
	CategoryMileage  PayCategory = "MILEAGE"
	CategoryDropHook PayCategory = "DROP_HOOK"
	CategoryChainUp  PayCategory = "CHAIN_UP"
	CategoryWaitTime PayCategory = "WAIT_TIME"
	CategoryOther    PayCategory = "OTHER_ACCESSORIAL"
	CategoryBonus    PayCategory = "BONUS"
	CategoryDeduct   PayCategory = "DEDUCTION"
	CategoryCutHours PayCategory = "CUT_PAY_HOURS"
	CategoryCutMiles PayCategory = "CUT_PAY_MILES"
)

// categoryOrder fixes the order of lines and subtotals within a driver so
// repeated exports over unchanged data are identical.
var categoryOrder = []PayCategory{
	CategoryBase,
	CategoryMileage,
	CategoryDropHook,
	CategoryChainUp,
	CategoryWaitTime,
	CategoryOther,
	CategoryBonus,
	CategoryDeduct,
	CategoryCutHours,
	CategoryCutMiles,
}

// =============================================================================
// PAYCODE TABLE - (category, trailer configuration) -> external paycode
// =============================================================================

type paycodeKey struct {
	Category PayCategory
	Config   payroll.TrailerConfig
}

var paycodeTable = map[paycodeKey]string{
	{CategoryMileage, payroll.TrailerSingle}:  "LH-MILE-S",
	{CategoryMileage, payroll.TrailerDoubles}: "LH-MILE-D",
	{CategoryMileage, payroll.TrailerTriples}: "LH-MILE-T",
	{CategoryBase, payroll.TrailerDoubles}:    "LH-BASE-D",
	{CategoryBase, payroll.TrailerTriples}:    "LH-BASE-T",
}

var defaultPaycodes = map[PayCategory]string{
	CategoryBase:     "LH-BASE",
	CategoryMileage:  "LH-MILE",
	CategoryDropHook: "AC-DROP",
	CategoryChainUp:  "AC-CHAIN",
	CategoryWaitTime: "AC-WAIT",
	CategoryOther:    "AC-OTHER",
	CategoryBonus:    "AD-BONUS",
	CategoryDeduct:   "AD-DEDUCT",
	CategoryCutHours: "CP-HOURS",
	CategoryCutMiles: "CP-MILES",
}

// rateSystemIDs map categories to the external rate-system identifier.
var rateSystemIDs = map[PayCategory]string{
	CategoryBase:     "RS-100",
	CategoryMileage:  "RS-110",
	CategoryDropHook: "RS-210",
	CategoryChainUp:  "RS-211",
	CategoryWaitTime: "RS-212",
	CategoryOther:    "RS-219",
	CategoryBonus:    "RS-300",
	CategoryDeduct:   "RS-310",
	CategoryCutHours: "RS-400",
	CategoryCutMiles: "RS-410",
}

// PaycodeFor resolves the external paycode for a category under a trailer
// configuration, falling back to the category default.
func PaycodeFor(category PayCategory, config payroll.TrailerConfig) string {
	if code, ok := paycodeTable[paycodeKey{Category: category, Config: config}]; ok {
		return code
	}
	return defaultPaycodes[category]
}

// =============================================================================
// EXPORT ARTIFACT
// =============================================================================

// ExportLine is one paycode entry in the external payroll feed.
type ExportLine struct {
	EmployeeID   string          `json:"employee_id"`
	Paycode      string          `json:"paycode"`
	RateSystemID string          `json:"rate_system_id"`
	Category     PayCategory     `json:"category"`
	Amount       payroll.Money   `json:"amount"`
	Quantity     decimal.Decimal `json:"quantity"` // miles or hours, category-dependent
	Date         payroll.Date    `json:"date"`
	Reference    string          `json:"reference"` // trip number or synthetic cut-pay reference
	Description  string          `json:"description"`
}

// CategorySubtotal is one entry of a driver's per-category rollup.
type CategorySubtotal struct {
	Category PayCategory   `json:"category"`
	Amount   payroll.Money `json:"amount"`
}

// DriverExport groups a driver's lines with their subtotals.
type DriverExport struct {
	DriverID   payroll.DriverID   `json:"driver_id"`
	DriverName string             `json:"driver_name"`
	Subtotals  []CategorySubtotal `json:"subtotals"`
	Lines      []ExportLine       `json:"lines"`
	Total      payroll.Money      `json:"total"`
}

// ExportFile is the artifact handed back to the caller.
type ExportFile struct {
	GeneratedAt time.Time      `json:"generated_at"`
	From        payroll.Date   `json:"from"`
	To          payroll.Date   `json:"to"`
	Drivers     []DriverExport `json:"drivers"`
	LineCount   int            `json:"line_count"`
	Total       payroll.Money  `json:"total"`
}
