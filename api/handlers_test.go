package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetline/payroll-engine/api"
	"github.com/fleetline/payroll-engine/payroll"
	"github.com/fleetline/payroll-engine/payroll/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	mem := store.NewMemory()
	handler := api.NewHandler(mem, log.New(io.Discard, "", 0))
	return api.NewRouter(handler)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func seedRateCardAPI(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/rate-cards", map[string]any{
		"id":             "rc-default",
		"scope":          "DEFAULT",
		"method":         "PER_MILE",
		"rate":           "0.50",
		"effective_date": "2000-01-01",
		"active":         true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func seedTripAPI(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/trips", map[string]any{
		"id":          id,
		"number":      "T-" + id,
		"driver_id":   "drv-1",
		"driver_name": "Pat Kowalski",
		"linehaul": map[string]any{
			"id":                      "lh-1",
			"origin_terminal_id":      "SEA",
			"destination_terminal_id": "PDX",
			"planned_distance":        "174",
			"transit_minutes":         200,
			"trailer_config":          "DOUBLES",
		},
		"dispatch_date": payroll.Today().String(),
		"actual_miles":  "300",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func seedPeriodAPI(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/pay-periods", map[string]any{
		"start_date": "2000-01-01",
		"end_date":   "2099-12-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// calculateAPI runs the manual calculation and returns the trip pay DTO.
func calculateAPI(t *testing.T, router http.Handler, tripID string) api.TripPayDTO {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/trips/"+tripID+"/pay/calculate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[api.TripPayDTO](t, rec)
}

// =============================================================================
// HEALTH AND INGESTION
// =============================================================================

func TestAPI_Health(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_SaveTrip_Validation(t *testing.T) {
	router := newTestRouter(t)

	t.Run("missing id", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/trips", map[string]any{
			"dispatch_date": "2025-03-10",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad dispatch date", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/trips", map[string]any{
			"id":            "trip-1",
			"dispatch_date": "03/10/2025",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[api.ErrorResponse](t, rec)
		assert.Contains(t, resp.Error, "dispatch_date")
	})
}

// =============================================================================
// CALCULATION AND TRIP PAY
// =============================================================================

func TestAPI_CalculatePay_RoundTrip(t *testing.T) {
	// GIVEN: A rate card, trip, and open period ingested through the API
	// WHEN: Pay is calculated and fetched back
	// THEN: Both responses carry the same record with the expected figures

	router := newTestRouter(t)
	seedRateCardAPI(t, router)
	seedTripAPI(t, router, "trip-1")
	seedPeriodAPI(t, router)

	dto := calculateAPI(t, router, "trip-1")
	assert.Equal(t, "trip-1", dto.TripID)
	assert.Equal(t, "CALCULATED", dto.Status)
	assert.Equal(t, "150.00", dto.MileagePay.String())
	assert.Equal(t, "150.00", dto.TotalGrossPay.String())
	require.NotNil(t, dto.CalculatedAt)

	rec := doJSON(t, router, http.MethodGet, "/api/trip-pay/"+dto.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decode[api.TripPayDTO](t, rec)
	assert.Equal(t, dto.ID, fetched.ID)
}

func TestAPI_CalculatePay_Errors(t *testing.T) {
	router := newTestRouter(t)
	seedRateCardAPI(t, router)
	seedTripAPI(t, router, "trip-1")

	t.Run("unknown trip is 404", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/trips/trip-ghost/pay/calculate", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no open period is 400", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/trips/trip-1/pay/calculate", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[api.ErrorResponse](t, rec)
		assert.Contains(t, resp.Details, "no open pay period")
	})
}

func TestAPI_GetTripPay_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/trip-pay/tp-ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ARRIVAL
// =============================================================================

func TestAPI_TripArrival_AlwaysSucceeds(t *testing.T) {
	router := newTestRouter(t)
	seedRateCardAPI(t, router)
	seedTripAPI(t, router, "trip-1")

	t.Run("calculated", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/trips/trip-1/arrival", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[api.ArrivalResponse](t, rec)
		assert.True(t, resp.PayCalculated)
		require.NotNil(t, resp.TripPay)
		assert.Equal(t, "CALCULATED", resp.TripPay.Status)
	})

	t.Run("unknown trip still returns 200", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/trips/trip-ghost/arrival", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[api.ArrivalResponse](t, rec)
		assert.False(t, resp.PayCalculated)
		assert.Contains(t, resp.Reason, "pay not calculated")
	})
}

// =============================================================================
// STATUS AND ADJUSTMENTS
// =============================================================================

func TestAPI_SetTripPayStatus(t *testing.T) {
	router := newTestRouter(t)
	seedRateCardAPI(t, router)
	seedTripAPI(t, router, "trip-1")
	seedPeriodAPI(t, router)
	dto := calculateAPI(t, router, "trip-1")

	t.Run("cancel lands as disputed on the source", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPut, "/api/trip-pay/"+dto.ID+"/status", map[string]any{
			"status": "CANCELLED",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		updated := decode[api.TripPayDTO](t, rec)
		assert.Equal(t, "DISPUTED", updated.Status)
	})

	t.Run("complete is rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPut, "/api/trip-pay/"+dto.ID+"/status", map[string]any{
			"status": "COMPLETE",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_ApplyAdjustments(t *testing.T) {
	router := newTestRouter(t)
	seedRateCardAPI(t, router)
	seedTripAPI(t, router, "trip-1")
	seedPeriodAPI(t, router)
	dto := calculateAPI(t, router, "trip-1")

	rec := doJSON(t, router, http.MethodPut, "/api/trip-pay/"+dto.ID+"/adjustments", map[string]any{
		"bonus_pay":  "50.00",
		"deductions": "20.00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[api.TripPayDTO](t, rec)
	assert.Equal(t, "50.00", updated.BonusPay.String())
	assert.Equal(t, "20.00", updated.Deductions.String())
	assert.Equal(t, "180.00", updated.TotalGrossPay.String())
}

// =============================================================================
// CUT PAY
// =============================================================================

func TestAPI_CreateCutPay(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cut-pay", map[string]any{
		"driver_id":       "drv-1",
		"amount":          "120.00",
		"adjustment_type": "HOURS",
		"quantity":        "4",
		"description":     "yard shift coverage",
		"work_date":       "2025-03-12",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decode[api.CutPayDTO](t, rec)
	assert.Equal(t, "PENDING", dto.Status)
	assert.Equal(t, "120.00", dto.Amount.String())
	assert.Equal(t, "2025-03-12", dto.WorkDate)
}

func TestAPI_CreateCutPay_Validation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cut-pay", map[string]any{
		"amount":          "120.00",
		"adjustment_type": "HOURS",
		"quantity":        "4",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing driver")

	rec = doJSON(t, router, http.MethodPost, "/api/cut-pay", map[string]any{
		"driver_id":       "drv-1",
		"amount":          "120.00",
		"adjustment_type": "OVERTIME",
		"quantity":        "4",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown adjustment type")
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func TestAPI_ListLineItems(t *testing.T) {
	router := newTestRouter(t)
	seedRateCardAPI(t, router)
	seedTripAPI(t, router, "trip-1")
	seedPeriodAPI(t, router)
	calculateAPI(t, router, "trip-1")

	rec := doJSON(t, router, http.MethodGet, "/api/line-items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]api.LineItemDTO](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "drv-1", items[0].DriverID)
	assert.Equal(t, "CALCULATED", items[0].Status)
	assert.Equal(t, "150.00", items[0].TotalPay.String())

	t.Run("status filter", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/line-items?status=APPROVED", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]api.LineItemDTO](t, rec))
	})

	t.Run("bad date is 400", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/line-items?from=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// PAY PERIODS
// =============================================================================

func TestAPI_PayPeriodLifecycle(t *testing.T) {
	router := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/api/pay-periods", map[string]any{
		"start_date": "2025-03-01",
		"end_date":   "2025-03-31",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	period := decode[api.PayPeriodDTO](t, created)
	assert.Equal(t, "OPEN", period.Status)

	closed := doJSON(t, router, http.MethodPost, "/api/pay-periods/"+period.ID+"/transition", map[string]any{
		"status": "CLOSED",
	})
	require.Equal(t, http.StatusOK, closed.Code)
	assert.Equal(t, "CLOSED", decode[api.PayPeriodDTO](t, closed).Status)

	rejected := doJSON(t, router, http.MethodPost, "/api/pay-periods/"+period.ID+"/transition", map[string]any{
		"status": "EXPORTED",
	})
	assert.Equal(t, http.StatusBadRequest, rejected.Code, "CLOSED to EXPORTED is not an edge")

	list := doJSON(t, router, http.MethodGet, "/api/pay-periods", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]api.PayPeriodDTO](t, list), 1)
}

func TestAPI_CreatePeriod_InvalidRange(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/pay-periods", map[string]any{
		"start_date": "2025-03-31",
		"end_date":   "2025-03-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// APPROVAL AND EXPORT
// =============================================================================

func TestAPI_BulkApproveAndExport(t *testing.T) {
	router := newTestRouter(t)
	seedRateCardAPI(t, router)
	seedTripAPI(t, router, "trip-1")
	seedPeriodAPI(t, router)
	dto := calculateAPI(t, router, "trip-1")

	approve := doJSON(t, router, http.MethodPost, "/api/payroll/approve", map[string]any{
		"items": []map[string]string{
			{"type": "TRIP_PAY", "id": dto.ID},
		},
		"approved_by": "back-office",
	})
	require.Equal(t, http.StatusOK, approve.Code, approve.Body.String())
	result := decode[map[string]int](t, approve)
	assert.Equal(t, 1, result["trip_pay_approved"])

	exported := doJSON(t, router, http.MethodPost, "/api/payroll/export", map[string]any{
		"from":          "2000-01-01",
		"to":            "2099-12-31",
		"mark_exported": true,
		"operator":      "exporter",
	})
	require.Equal(t, http.StatusOK, exported.Code, exported.Body.String())

	var file struct {
		Drivers []struct {
			DriverID string `json:"driver_id"`
			Total    string `json:"total"`
		} `json:"drivers"`
		LineCount int    `json:"line_count"`
		Total     string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(exported.Body.Bytes(), &file))
	require.Len(t, file.Drivers, 1)
	assert.Equal(t, "drv-1", file.Drivers[0].DriverID)
	assert.Equal(t, "150.00", file.Total)
	assert.Equal(t, 1, file.LineCount)

	items := doJSON(t, router, http.MethodGet, "/api/line-items?status=APPROVED", nil)
	require.Equal(t, http.StatusOK, items.Code)
	lineItems := decode[[]api.LineItemDTO](t, items)
	require.Len(t, lineItems, 1)
	assert.Equal(t, "exporter", lineItems[0].ExportedBy)
	require.NotNil(t, lineItems[0].ExportedAt)
}

func TestAPI_BulkApprove_UnknownType(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/payroll/approve", map[string]any{
		"items": []map[string]string{
			{"type": "VACATION_PAY", "id": "vp-1"},
		},
		"approved_by": "back-office",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Export_InvalidRange(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/payroll/export", map[string]any{
		"from": "2025-04-01",
		"to":   "2025-03-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
