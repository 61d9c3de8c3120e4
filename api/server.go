/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique ID per request for tracing
  2. Recoverer:  panic recovery (500 instead of crash)
  3. CORS:       cross-origin requests for the counter frontend
  4. zerolog:    structured request log with method/path/status/duration

ROUTE GROUPS:
  /api/customers/*   member registry, statements, payments
  /api/inventory/*   sellable items
  /api/sales         sale recording
  /api/demands/*     pre-order lifecycle
  /api/reports/*     fleet-wide master report
  /api/settings      config record
  /api/menu          daily menu
  /health            liveness probe

SECURITY NOTE:
  No authentication middleware. The service fronts a single trusted
  counter terminal.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(requestLogger(h.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Post("/import", h.ImportCustomers)
			r.Put("/{id}", h.UpdateCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
			r.Get("/{id}/transactions", h.GetCustomerTransactions)
			r.Get("/{id}/statement", h.GetStatement)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Post("/{id}/recompute", h.RecomputeBalance)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", h.ListInventory)
			r.Post("/", h.CreateInventoryItem)
			r.Put("/{id}", h.UpdateInventoryItem)
			r.Delete("/{id}", h.DeleteInventoryItem)
		})

		r.Post("/sales", h.RecordSale)

		r.Route("/demands", func(r chi.Router) {
			r.Get("/", h.ListDemands)
			r.Post("/", h.PlaceDemand)
			r.Post("/{id}/approve", h.ApproveDemand)
			r.Post("/{id}/cancel", h.CancelDemand)
		})

		r.Get("/reports/master", h.GetMasterReport)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)

		r.Get("/menu", h.GetMenu)
		r.Put("/menu", h.PutMenu)
	})

	r.Get("/health", h.Health)

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
