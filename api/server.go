/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. instrument: zerolog access log and Prometheus HTTP metrics
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the presentation layer

ROUTE GROUPS:
  /health, /metrics, /ws       infrastructure
  /api/articles, movements, stock, reports
  /api/requisitions/*
  /api/schedule/*, availability/*, shifts/*
  /api/admin/*                 maintenance (admin role)

SECURITY NOTE:
  No authentication here. Identity headers are trusted; put the service
  behind the presentation layer that sets them.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the router around the handlers.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(instrument(h.Log, h.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderActorName, HeaderActorRole, HeaderActorArea},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		// Stock routes
		r.Route("/articles", func(r chi.Router) {
			r.Get("/", h.ListArticles)
			r.Post("/", h.SaveArticle)
			r.Get("/{name}", h.GetArticle)
			r.Delete("/{name}", h.DeleteArticle)
		})
		r.Route("/movements", func(r chi.Router) {
			r.Get("/", h.ListMovements)
			r.Post("/", h.RecordMovement)
			r.Post("/{id}/receive", h.ReceiveMovement)
			r.Post("/{id}/archive", h.ArchiveMovement)
		})
		r.Get("/stock/{article}", h.StockStatus)

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/inventory", h.InventoryReport)
			r.Get("/inventory.xlsx", h.InventoryXLSX)
			r.Get("/in-transit", h.InTransitReport)
			r.Get("/history", h.HistoryReport)
		})

		// Requisition routes
		r.Route("/requisitions", func(r chi.Router) {
			r.Post("/", h.CreateRequisition)
			r.Get("/pending", h.ListPendingRequisitions)
			r.Get("/history", h.RequisitionHistory)
			r.Post("/approve", h.ApproveRequisitions)
			r.Get("/{id}", h.GetRequisition)
			r.Post("/{id}/reject", h.RejectRequisition)
			r.Delete("/{id}", h.DeleteRequisition)
		})

		// Scheduling routes
		r.Route("/schedule", func(r chi.Router) {
			r.Get("/config", h.GetScheduleConfig)
			r.Put("/config", h.PutScheduleConfig)
			r.Get("/weeks", h.ScheduleWeeks)
		})
		r.Route("/availability", func(r chi.Router) {
			r.Get("/", h.ListAvailability)
			r.Delete("/", h.ClearAvailability)
			r.Put("/me", h.PutMyAvailability)
			r.Get("/me/sheet", h.MyAvailabilitySheet)
		})
		r.Route("/shifts", func(r chi.Router) {
			r.Post("/", h.AssignShift)
			r.Get("/week", h.ShiftWeek)
			r.Get("/by-person/{person}", h.ShiftsByPerson)
			r.Get("/by-area/{area}", h.ShiftsByArea)
			r.Put("/{id}", h.ReassignShift)
			r.Delete("/{id}", h.UnassignShift)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/seed", h.SeedFixture)
			r.Post("/reset", h.ResetData)
		})
	})

	return r
}
