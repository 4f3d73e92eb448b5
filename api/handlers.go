/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Ingestion (from the dispatch/CRUD layer):
    POST   /api/trips                     Upsert a trip snapshot
    POST   /api/rate-cards                Upsert a rate card

  Trip pay:
    POST   /api/trips/{id}/arrival        Arrival event (best-effort calc)
    POST   /api/trips/{id}/pay/calculate  Manual calculation
    GET    /api/trip-pay/{id}             Get a trip pay record
    PUT    /api/trip-pay/{id}/status      Apply a unified status
    PUT    /api/trip-pay/{id}/adjustments Edit bonus/deductions

  Cut pay:
    POST   /api/cut-pay                   Create a manual adjustment
    PUT    /api/cut-pay/{id}/status       Apply a unified status

  Line items:
    GET    /api/line-items                Filtered projection listing

  Pay periods:
    GET    /api/pay-periods               List periods
    POST   /api/pay-periods               Create a period
    POST   /api/pay-periods/{id}/transition  Lifecycle transition

  Payroll operations:
    POST   /api/payroll/approve           Bulk approval
    POST   /api/payroll/export            Build the export feed

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, rejected transitions
  - 404: Resource not found
  - 409: Conflict (duplicate trip pay)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetline/payroll-engine/export"
	"github.com/fleetline/payroll-engine/payroll"
	"github.com/fleetline/payroll-engine/payrun"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  payroll.TxStore
	Payrun *payrun.Service
	Export *export.Service
	Log    *log.Logger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store payroll.TxStore, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		Store:  store,
		Payrun: payrun.NewService(store, logger),
		Export: export.NewService(store, logger),
		Log:    logger,
	}
}

// =============================================================================
// INGESTION HANDLERS
// =============================================================================

// SaveTrip upserts a trip snapshot from the dispatch layer.
func (h *Handler) SaveTrip(w http.ResponseWriter, r *http.Request) {
	var req SaveTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Trip id is required", nil)
		return
	}

	dispatchDate, err := payroll.ParseDate(req.DispatchDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dispatch_date format (use YYYY-MM-DD)", err)
		return
	}

	trip := &payroll.Trip{
		ID:           payroll.TripID(req.ID),
		Number:       req.Number,
		DriverID:     payroll.DriverID(req.DriverID),
		DriverName:   req.DriverName,
		DispatchDate: dispatchDate,
		ActualMiles:  req.ActualMiles,
	}
	if req.Linehaul != nil {
		trip.Linehaul = &payroll.Linehaul{
			ID:                    payroll.LinehaulID(req.Linehaul.ID),
			OriginTerminalID:      payroll.TerminalID(req.Linehaul.OriginTerminalID),
			DestinationTerminalID: payroll.TerminalID(req.Linehaul.DestinationTerminalID),
			PlannedDistance:       req.Linehaul.PlannedDistance,
			TransitMinutes:        req.Linehaul.TransitMinutes,
			TrailerConfig:         payroll.TrailerConfig(req.Linehaul.TrailerConfig),
		}
	}
	for _, d := range req.Delays {
		trip.Delays = append(trip.Delays, payroll.Delay{
			Code:    payroll.DelayCode(d.Code),
			Minutes: d.Minutes,
			Reason:  d.Reason,
		})
	}

	if err := h.Store.SaveTrip(r.Context(), trip); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save trip", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// SaveRateCard upserts a rate card.
func (h *Handler) SaveRateCard(w http.ResponseWriter, r *http.Request) {
	var req SaveRateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Rate card id is required", nil)
		return
	}

	effective, err := payroll.ParseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date format (use YYYY-MM-DD)", err)
		return
	}
	var expiration *payroll.Date
	if req.ExpirationDate != nil {
		d, err := payroll.ParseDate(*req.ExpirationDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expiration_date format (use YYYY-MM-DD)", err)
			return
		}
		expiration = &d
	}

	card := &payroll.RateCard{
		ID:                    payroll.RateCardID(req.ID),
		Scope:                 payroll.ScopeType(req.Scope),
		DriverID:              payroll.DriverID(req.DriverID),
		LinehaulID:            payroll.LinehaulID(req.LinehaulID),
		OriginTerminalID:      payroll.TerminalID(req.OriginTerminalID),
		DestinationTerminalID: payroll.TerminalID(req.DestinationTerminalID),
		Method:                payroll.RateMethod(req.Method),
		Rate:                  req.Rate,
		MinimumAmount:         req.MinimumAmount,
		EffectiveDate:         effective,
		ExpirationDate:        expiration,
		Active:                req.Active,
	}
	for _, a := range req.Accessorials {
		card.Accessorials = append(card.Accessorials, payroll.AccessorialRate{
			Category:      payroll.AccessorialCategory(a.Category),
			Method:        payroll.RateMethod(a.Method),
			Rate:          a.Rate,
			MinimumCharge: a.MinimumCharge,
			MaximumCharge: a.MaximumCharge,
		})
	}

	if err := h.Store.SaveRateCard(r.Context(), card); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate card", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// =============================================================================
// TRIP PAY HANDLERS
// =============================================================================

// TripArrival processes an arrival event. The response always succeeds;
// calculation failures are reported in the body, not the status code.
func (h *Handler) TripArrival(w http.ResponseWriter, r *http.Request) {
	tripID := payroll.TripID(chi.URLParam(r, "id"))

	result := h.Payrun.HandleTripArrival(r.Context(), tripID)

	resp := ArrivalResponse{
		PayCalculated: result.PayCalculated,
		Reason:        result.Reason,
	}
	if result.TripPay != nil {
		resp.TripPay = toTripPayDTO(result.TripPay)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CalculatePay runs the manual calculation path.
func (h *Handler) CalculatePay(w http.ResponseWriter, r *http.Request) {
	tripID := payroll.TripID(chi.URLParam(r, "id"))

	rec, err := h.Payrun.CalculatePay(r.Context(), tripID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripPayDTO(rec))
}

// GetTripPay returns a single trip pay record.
func (h *Handler) GetTripPay(w http.ResponseWriter, r *http.Request) {
	id := payroll.TripPayID(chi.URLParam(r, "id"))

	rec, err := h.Store.GetTripPay(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripPayDTO(rec))
}

// SetTripPayStatus applies a unified status to a trip pay record.
func (h *Handler) SetTripPayStatus(w http.ResponseWriter, r *http.Request) {
	id := payroll.TripPayID(chi.URLParam(r, "id"))

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Payrun.SetTripPayStatus(r.Context(), id, payroll.Status(req.Status))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripPayDTO(rec))
}

// ApplyAdjustments edits bonus pay and/or deductions on a trip pay record.
func (h *Handler) ApplyAdjustments(w http.ResponseWriter, r *http.Request) {
	id := payroll.TripPayID(chi.URLParam(r, "id"))

	var req AdjustmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Payrun.ApplyAdjustments(r.Context(), id, req.BonusPay, req.Deductions)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripPayDTO(rec))
}

// =============================================================================
// CUT PAY HANDLERS
// =============================================================================

// CreateCutPay creates a manual pay adjustment.
func (h *Handler) CreateCutPay(w http.ResponseWriter, r *http.Request) {
	var req CutPayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := payrun.CutPayInput{
		DriverID:       payroll.DriverID(req.DriverID),
		TripID:         payroll.TripID(req.TripID),
		Amount:         req.Amount,
		AdjustmentType: payroll.AdjustmentType(req.AdjustmentType),
		Quantity:       req.Quantity,
		Description:    req.Description,
	}
	if req.WorkDate != "" {
		d, err := payroll.ParseDate(req.WorkDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid work_date format (use YYYY-MM-DD)", err)
			return
		}
		in.WorkDate = d
	}

	rec, err := h.Payrun.RequestCutPay(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCutPayDTO(rec))
}

// SetCutPayStatus applies a unified status to a cut pay record.
func (h *Handler) SetCutPayStatus(w http.ResponseWriter, r *http.Request) {
	id := payroll.CutPayID(chi.URLParam(r, "id"))

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Payrun.SetCutPayStatus(r.Context(), id, payroll.Status(req.Status))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCutPayDTO(rec))
}

// =============================================================================
// LINE ITEM HANDLERS
// =============================================================================

// ListLineItems returns projection rows filtered by the query parameters
// from, to, status, and driver_id.
func (h *Handler) ListLineItems(w http.ResponseWriter, r *http.Request) {
	var filter payroll.LineItemFilter

	if v := r.URL.Query().Get("from"); v != "" {
		d, err := payroll.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		filter.From = &d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := payroll.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		filter.To = &d
	}
	if v := r.URL.Query().Get("status"); v != "" {
		s := payroll.Status(v)
		filter.Status = &s
	}
	if v := r.URL.Query().Get("driver_id"); v != "" {
		d := payroll.DriverID(v)
		filter.Driver = &d
	}

	items, err := h.Store.ListLineItems(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list line items", err)
		return
	}

	dtos := make([]LineItemDTO, len(items))
	for i := range items {
		dtos[i] = toLineItemDTO(&items[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAY PERIOD HANDLERS
// =============================================================================

// ListPeriods returns all pay periods.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Store.ListPeriods(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pay periods", err)
		return
	}

	dtos := make([]PayPeriodDTO, len(periods))
	for i := range periods {
		dtos[i] = toPeriodDTO(&periods[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePeriod opens a new pay period.
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := payroll.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := payroll.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	p, err := h.Payrun.CreatePeriod(r.Context(), start, end)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(p))
}

// TransitionPeriod applies one lifecycle edge to a pay period.
func (h *Handler) TransitionPeriod(w http.ResponseWriter, r *http.Request) {
	id := payroll.PayPeriodID(chi.URLParam(r, "id"))

	var req TransitionPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Payrun.TransitionPeriod(r.Context(), id, payroll.PeriodStatus(req.Status))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// =============================================================================
// PAYROLL OPERATION HANDLERS
// =============================================================================

// BulkApprove approves a mixed batch of trip-pay and cut-pay items.
func (h *Handler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req BulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Export.BulkApprove(r.Context(), req.Items, req.ApprovedBy)
	if err != nil {
		if errors.Is(err, payroll.ErrUnknownItemType) {
			writeError(w, http.StatusBadRequest, "Unknown item type", err)
			return
		}
		// Partial outcome: one type's batch failed, the other may have
		// committed. Report both the counts and the failure.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"result": result,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExportPayroll builds the export feed for a date range.
func (h *Handler) ExportPayroll(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, err := payroll.ParseDate(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := payroll.ParseDate(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	file, err := h.Export.ExportApproved(r.Context(), from, to, req.MarkExported, req.Operator)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, payroll.ErrDuplicateTripPay):
		writeError(w, http.StatusConflict, "Trip already has a pay record", err)
	case payroll.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.Log.Printf("ERROR: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
