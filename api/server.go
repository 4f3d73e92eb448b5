/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/trips/*        Trip ingestion, arrival, and manual calculation
  /api/rate-cards     Rate card ingestion
  /api/trip-pay/*     Trip pay record access and edits
  /api/cut-pay/*      Manual adjustments
  /api/line-items     Projection listing
  /api/pay-periods/*  Pay period lifecycle
  /api/payroll/*      Bulk approval and export

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Ingestion from the dispatch/CRUD layer
		r.Route("/trips", func(r chi.Router) {
			r.Post("/", h.SaveTrip)
			r.Post("/{id}/arrival", h.TripArrival)
			r.Post("/{id}/pay/calculate", h.CalculatePay)
		})
		r.Post("/rate-cards", h.SaveRateCard)

		// Trip pay records
		r.Route("/trip-pay", func(r chi.Router) {
			r.Get("/{id}", h.GetTripPay)
			r.Put("/{id}/status", h.SetTripPayStatus)
			r.Put("/{id}/adjustments", h.ApplyAdjustments)
		})

		// Cut pay records
		r.Route("/cut-pay", func(r chi.Router) {
			r.Post("/", h.CreateCutPay)
			r.Put("/{id}/status", h.SetCutPayStatus)
		})

		// Projection
		r.Get("/line-items", h.ListLineItems)

		// Pay periods
		r.Route("/pay-periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Post("/", h.CreatePeriod)
			r.Post("/{id}/transition", h.TransitionPeriod)
		})

		// Back-office payroll operations
		r.Route("/payroll", func(r chi.Router) {
			r.Post("/approve", h.BulkApprove)
			r.Post("/export", h.ExportPayroll)
		})
	})

	return r
}
