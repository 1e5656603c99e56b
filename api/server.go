/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Tracing:    OpenTelemetry server span per request
  6. Actor:      Caller identity from gateway headers (API routes only)

ROUTE GROUPS:
  /healthz                              Liveness + store ping
  /metrics                              Prometheus scrape endpoint
  /api/accrual/projection               Stateless accrual calculator
  /api/scenarios/*                      Demo scenarios (dev only)
  /api/companies/{companyID}/balances   Balances, accrual and adjustments
  /api/companies/{companyID}/requests   Request workflow
  /api/companies/{companyID}/historical Historical records
  /api/companies/{companyID}/accrual    Daily accrual sweep
  /api/companies/{companyID}/audit      Integrity audit runs and reports

SECURITY NOTE:
  Authentication happens upstream. The gateway forwards the verified identity
  in X-Actor-ID, X-Company-ID and X-Actor-Role; the engine enforces tenancy
  and roles on every operation.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Tracing and actor extraction
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName names the server in traces.
const ServiceName = "vacation-engine"

// NewRouter creates a new router with all routes configured. A nil gatherer
// leaves /metrics unmounted.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderActorID, HeaderCompanyID, HeaderActorRole},
		AllowCredentials: true,
	}))
	r.Use(Tracing(ServiceName))

	r.Get("/healthz", h.Health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/accrual/projection", h.ProjectAccrual)

		// Scenario routes (demo data)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.Use(RequireActor)

			r.Route("/balances", func(r chi.Router) {
				r.Post("/", h.OpenBalance)
				r.Route("/{employeeID}", func(r chi.Router) {
					r.Get("/", h.GetBalance)
					r.Get("/accrual", h.GetAccrual)
					r.Get("/projection", h.GetProjection)
					r.Post("/suspensions", h.RegisterSuspension)
					r.Delete("/suspensions/{suspensionID}", h.RemoveSuspension)
					r.Post("/base-change", h.ChangeBase)
					r.Post("/base-change/revert", h.RevertBaseChange)
					r.Post("/hire-date", h.ChangeHireDate)
					r.Get("/historical", h.ListHistorical)
					r.Get("/audit-log", h.ListEmployeeAudit)
				})
			})

			r.Route("/historical", func(r chi.Router) {
				r.Post("/", h.RegisterHistorical)
				r.Post("/{recordID}/verify", h.VerifyHistorical)
			})

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", h.CreateRequest)
				r.Get("/", h.ListRequests)
				r.Route("/{requestID}", func(r chi.Router) {
					r.Get("/", h.GetRequest)
					r.Post("/leader-decision", h.LeaderDecision)
					r.Post("/hr-decision", h.HRDecision)
					r.Post("/schedule", h.ScheduleRequest)
					r.Post("/enjoy", h.MarkEnjoyed)
					r.Post("/cancel", h.CancelRequest)
				})
			})

			r.Post("/accrual/run", h.RunAccrual)
			r.Post("/audit/run", h.RunAudit)
			r.Get("/audit/reports/latest", h.LatestReport)
			r.Get("/audit-log", h.ListAudit)
		})
	})

	return r
}
