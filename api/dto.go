/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - export/types.go: The export artifact returned as-is
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetline/payroll-engine/export"
	"github.com/fleetline/payroll-engine/payroll"
)

// =============================================================================
// INGESTION TYPES - Trips and rate cards arrive from the dispatch/CRUD layer
// =============================================================================

// LinehaulDTO carries the scheduled movement profile on a trip.
type LinehaulDTO struct {
	ID                    string          `json:"id"`
	OriginTerminalID      string          `json:"origin_terminal_id"`
	DestinationTerminalID string          `json:"destination_terminal_id"`
	PlannedDistance       decimal.Decimal `json:"planned_distance"`
	TransitMinutes        int             `json:"transit_minutes"`
	TrailerConfig         string          `json:"trailer_config"`
}

type DelayDTO struct {
	Code    string `json:"code"`
	Minutes int    `json:"minutes"`
	Reason  string `json:"reason,omitempty"`
}

// SaveTripRequest is the ingestion payload for a trip snapshot.
type SaveTripRequest struct {
	ID           string           `json:"id"`
	Number       string           `json:"number"`
	DriverID     string           `json:"driver_id"`
	DriverName   string           `json:"driver_name"`
	Linehaul     *LinehaulDTO     `json:"linehaul,omitempty"`
	DispatchDate string           `json:"dispatch_date"`
	ActualMiles  *decimal.Decimal `json:"actual_miles,omitempty"`
	Delays       []DelayDTO       `json:"delays,omitempty"`
}

type AccessorialRateDTO struct {
	Category      string          `json:"category"`
	Method        string          `json:"method"`
	Rate          decimal.Decimal `json:"rate"`
	MinimumCharge *payroll.Money  `json:"minimum_charge,omitempty"`
	MaximumCharge *payroll.Money  `json:"maximum_charge,omitempty"`
}

// SaveRateCardRequest is the ingestion payload for a rate card.
type SaveRateCardRequest struct {
	ID                    string               `json:"id"`
	Scope                 string               `json:"scope"`
	DriverID              string               `json:"driver_id,omitempty"`
	LinehaulID            string               `json:"linehaul_id,omitempty"`
	OriginTerminalID      string               `json:"origin_terminal_id,omitempty"`
	DestinationTerminalID string               `json:"destination_terminal_id,omitempty"`
	Method                string               `json:"method"`
	Rate                  decimal.Decimal      `json:"rate"`
	MinimumAmount         *payroll.Money       `json:"minimum_amount,omitempty"`
	EffectiveDate         string               `json:"effective_date"`
	ExpirationDate        *string              `json:"expiration_date,omitempty"`
	Active                bool                 `json:"active"`
	Accessorials          []AccessorialRateDTO `json:"accessorials,omitempty"`
}

// =============================================================================
// PAY RECORD TYPES
// =============================================================================

// TripPayDTO represents a trip pay source record in API responses.
type TripPayDTO struct {
	ID             string        `json:"id"`
	TripID         string        `json:"trip_id"`
	PayPeriodID    string        `json:"pay_period_id"`
	DriverID       string        `json:"driver_id"`
	BasePay        payroll.Money `json:"base_pay"`
	MileagePay     payroll.Money `json:"mileage_pay"`
	AccessorialPay payroll.Money `json:"accessorial_pay"`
	BonusPay       payroll.Money `json:"bonus_pay"`
	Deductions     payroll.Money `json:"deductions"`
	TotalGrossPay  payroll.Money `json:"total_gross_pay"`
	Status         string        `json:"status"`
	CalculatedAt   *string       `json:"calculated_at,omitempty"`
	ApprovedAt     *string       `json:"approved_at,omitempty"`
	CreatedAt      string        `json:"created_at"`
	UpdatedAt      string        `json:"updated_at"`
}

// ArrivalResponse reports whether arrival triggered a pay calculation.
type ArrivalResponse struct {
	PayCalculated bool        `json:"pay_calculated"`
	Reason        string      `json:"reason,omitempty"`
	TripPay       *TripPayDTO `json:"trip_pay,omitempty"`
}

// SetStatusRequest carries a unified status for a source record.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// AdjustmentsRequest edits bonus pay and/or deductions; omitted fields are
// left unchanged.
type AdjustmentsRequest struct {
	BonusPay   *payroll.Money `json:"bonus_pay,omitempty"`
	Deductions *payroll.Money `json:"deductions,omitempty"`
}

// CutPayRequest is the request to create a manual pay adjustment.
type CutPayRequest struct {
	DriverID       string          `json:"driver_id"`
	TripID         string          `json:"trip_id,omitempty"`
	Amount         payroll.Money   `json:"amount"`
	AdjustmentType string          `json:"adjustment_type"`
	Quantity       decimal.Decimal `json:"quantity"`
	Description    string          `json:"description,omitempty"`
	WorkDate       string          `json:"work_date,omitempty"`
}

// CutPayDTO represents a cut pay record in API responses.
type CutPayDTO struct {
	ID             string          `json:"id"`
	DriverID       string          `json:"driver_id"`
	TripID         string          `json:"trip_id,omitempty"`
	Amount         payroll.Money   `json:"amount"`
	AdjustmentType string          `json:"adjustment_type"`
	Quantity       decimal.Decimal `json:"quantity"`
	Description    string          `json:"description,omitempty"`
	Status         string          `json:"status"`
	WorkDate       string          `json:"work_date"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// =============================================================================
// LINE ITEM TYPES
// =============================================================================

// LineItemDTO represents a projection row in API responses.
type LineItemDTO struct {
	ID            string `json:"id"`
	TripPayID     string `json:"trip_pay_id,omitempty"`
	CutPayID      string `json:"cut_pay_id,omitempty"`
	DriverID      string `json:"driver_id"`
	DriverName    string `json:"driver_name,omitempty"`
	TripNumber    string `json:"trip_number,omitempty"`
	TrailerConfig string `json:"trailer_config,omitempty"`
	WorkDate      string `json:"work_date"`

	BasePay             payroll.Money `json:"base_pay"`
	MileagePay          payroll.Money `json:"mileage_pay"`
	DropHookPay         payroll.Money `json:"drop_hook_pay"`
	ChainUpPay          payroll.Money `json:"chain_up_pay"`
	WaitTimePay         payroll.Money `json:"wait_time_pay"`
	OtherAccessorialPay payroll.Money `json:"other_accessorial_pay"`
	BonusPay            payroll.Money `json:"bonus_pay"`
	Deductions          payroll.Money `json:"deductions"`
	CutPayHours         payroll.Money `json:"cut_pay_hours"`
	CutPayMiles         payroll.Money `json:"cut_pay_miles"`
	TotalPay            payroll.Money `json:"total_pay"`

	Miles    decimal.Decimal `json:"miles"`
	Quantity decimal.Decimal `json:"quantity"`
	Status   string          `json:"status"`

	ApprovedBy string  `json:"approved_by,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty"`
	ExportedBy string  `json:"exported_by,omitempty"`
	ExportedAt *string `json:"exported_at,omitempty"`
}

// =============================================================================
// PAY PERIOD TYPES
// =============================================================================

type PayPeriodDTO struct {
	ID        string `json:"id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
}

type CreatePeriodRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type TransitionPeriodRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// APPROVAL AND EXPORT TYPES
// =============================================================================

type BulkApproveRequest struct {
	Items      []export.ItemRef `json:"items"`
	ApprovedBy string           `json:"approved_by"`
}

type ExportRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	MarkExported bool   `json:"mark_exported"`
	Operator     string `json:"operator,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toTripPayDTO(rec *payroll.TripPayRecord) *TripPayDTO {
	return &TripPayDTO{
		ID:             string(rec.ID),
		TripID:         string(rec.TripID),
		PayPeriodID:    string(rec.PayPeriodID),
		DriverID:       string(rec.DriverID),
		BasePay:        rec.BasePay,
		MileagePay:     rec.MileagePay,
		AccessorialPay: rec.AccessorialPay,
		BonusPay:       rec.BonusPay,
		Deductions:     rec.Deductions,
		TotalGrossPay:  rec.TotalGrossPay,
		Status:         string(rec.Status),
		CalculatedAt:   timeString(rec.CalculatedAt),
		ApprovedAt:     timeString(rec.ApprovedAt),
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      rec.UpdatedAt.Format(time.RFC3339),
	}
}

func toCutPayDTO(rec *payroll.CutPayRecord) *CutPayDTO {
	return &CutPayDTO{
		ID:             string(rec.ID),
		DriverID:       string(rec.DriverID),
		TripID:         string(rec.TripID),
		Amount:         rec.Amount,
		AdjustmentType: string(rec.AdjustmentType),
		Quantity:       rec.Quantity,
		Description:    rec.Description,
		Status:         string(rec.Status),
		WorkDate:       rec.WorkDate.String(),
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      rec.UpdatedAt.Format(time.RFC3339),
	}
}

func toLineItemDTO(li *payroll.PayrollLineItem) LineItemDTO {
	return LineItemDTO{
		ID:            string(li.ID),
		TripPayID:     string(li.TripPayID),
		CutPayID:      string(li.CutPayID),
		DriverID:      string(li.DriverID),
		DriverName:    li.DriverName,
		TripNumber:    li.TripNumber,
		TrailerConfig: string(li.TrailerConfig),
		WorkDate:      li.WorkDate.String(),

		BasePay:             li.BasePay,
		MileagePay:          li.MileagePay,
		DropHookPay:         li.DropHookPay,
		ChainUpPay:          li.ChainUpPay,
		WaitTimePay:         li.WaitTimePay,
		OtherAccessorialPay: li.OtherAccessorialPay,
		BonusPay:            li.BonusPay,
		Deductions:          li.Deductions,
		CutPayHours:         li.CutPayHours,
		CutPayMiles:         li.CutPayMiles,
		TotalPay:            li.TotalPay,

		Miles:    li.Miles,
		Quantity: li.Quantity,
		Status:   string(li.Status),

		ApprovedBy: li.ApprovedBy,
		ApprovedAt: timeString(li.ApprovedAt),
		ExportedBy: li.ExportedBy,
		ExportedAt: timeString(li.ExportedAt),
	}
}

func toPeriodDTO(p *payroll.PayPeriod) PayPeriodDTO {
	return PayPeriodDTO{
		ID:        string(p.ID),
		StartDate: p.StartDate.String(),
		EndDate:   p.EndDate.String(),
		Status:    string(p.Status),
	}
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
