/*
handlers.go - HTTP API handlers for the back-office engine

PURPOSE:
  Exposes stock, requisitions, availability and shifts over REST. Handlers
  parse the request, call one service, and serialize the answer. No domain
  rule lives here.

ENDPOINTS:
  Stock:
    GET    /api/articles?area=            List catalog
    POST   /api/articles                  Create or edit an article
    GET    /api/articles/{name}           One article
    DELETE /api/articles/{name}           Remove from catalog
    GET    /api/movements?area=           Active (non-archived) movements
    POST   /api/movements                 Record a movement
    POST   /api/movements/{id}/receive    Confirm an in-transit order
    POST   /api/movements/{id}/archive    Hide from the active table
    GET    /api/stock/{article}           Current stock and low flag

  Reports:
    GET    /api/reports/inventory?area=&low=
    GET    /api/reports/inventory.xlsx?area=
    GET    /api/reports/in-transit?from=&to=
    GET    /api/reports/history?from=&to=

  Requisitions, schedule, availability, shifts:
    see requisitions.go and schedule.go

IDENTITY:
  The caller comes from X-Actor-Name / X-Actor-Role / X-Actor-Area, set by
  the presentation layer after authentication. Routes that record who acted
  answer 400 without X-Actor-Name.

ERROR HANDLING:
  Errors are returned as JSON with a status derived from the error kind:
  - 400: invalid input, quantity, config or period
  - 403: forbidden
  - 404: unknown id
  - 409: invalid transition, not in transit, duplicate, concurrent modification
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/backoffice/availability"
	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/requisition"
	"github.com/warp/backoffice/shift"
	"github.com/warp/backoffice/stock"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services are the domain entry points the handlers call.
type Services struct {
	Ledger       *stock.Ledger
	Workflow     *requisition.Workflow
	Availability *availability.Register
	Shifts       *shift.Board
	Schedule     calendar.Store

	// Inventory serves the inventory report from the live view. When nil
	// the report is folded from the ledger on each request.
	Inventory *stock.InventoryView
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services

	Log     zerolog.Logger
	Metrics *Metrics
	Hub     *Hub

	// Ping reports store health for /health. Nil means healthy.
	Ping func(ctx context.Context) error

	// Admin enables the maintenance routes under /api/admin.
	Admin *Admin
}

// NewHandler creates a handler with a no-op logger and no metrics.
func NewHandler(svc Services) *Handler {
	return &Handler{Services: svc, Log: zerolog.Nop()}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ARTICLES
// =============================================================================

// ListArticles returns the catalog, optionally restricted to areas.
// GET /api/articles?area=Sala,Cucina
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	areas, err := areaSet(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	articles, err := h.Ledger.Articles(r.Context(), areas)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(articles))
}

// SaveArticle creates or edits an article by name.
// POST /api/articles
func (h *Handler) SaveArticle(w http.ResponseWriter, r *http.Request) {
	var req ArticleRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	a := req.toArticle()
	if err := h.Ledger.SaveArticle(r.Context(), a); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.Ledger.Article(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteArticle(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// ListMovements returns non-archived movements, newest first.
// GET /api/movements?area=
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	areas, err := areaSet(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ms, err := h.Ledger.ActiveMovements(r.Context(), areas)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ms))
}

// RecordMovement appends one movement to the log.
// POST /api/movements
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m := stock.Movement{
		Article:  req.Article,
		Quantity: req.Quantity,
		Type:     req.Type,
		Area:     req.Area,
	}
	if req.At != nil {
		m.At = *req.At
	}
	id, err := h.Ledger.RecordMovement(r.Context(), m)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.MovementsRecorded.WithLabelValues(string(req.Type)).Inc()
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// ReceiveMovement turns an in-transit order into an ingress of the
// quantity actually received.
// POST /api/movements/{id}/receive
func (h *Handler) ReceiveMovement(w http.ResponseWriter, r *http.Request) {
	var req ReceiveRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Ledger.ConfirmReceipt(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.ReceiptsConfirmed.Inc()
	}
	writeJSON(w, http.StatusOK, m)
}

// POST /api/movements/{id}/archive
func (h *Handler) ArchiveMovement(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.Archive(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/stock/{article}
func (h *Handler) StockStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Ledger.Status(r.Context(), chi.URLParam(r, "article"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) inventory(ctx context.Context, areas generic.AreaSet) ([]stock.Level, *InventoryResponse, error) {
	if h.Inventory != nil && h.Inventory.Err() == nil {
		levels := h.Inventory.Levels(areas)
		at := h.Inventory.UpdatedAt()
		return levels, &InventoryResponse{Levels: levels, Total: stock.TotalValue(levels), UpdatedAt: &at}, nil
	}
	levels, err := h.Ledger.Inventory(ctx, areas)
	if err != nil {
		return nil, nil, err
	}
	return levels, &InventoryResponse{Levels: levels, Total: stock.TotalValue(levels)}, nil
}

// Inventory returns stock levels per article. low=true keeps only rows
// below their minimum.
// GET /api/reports/inventory?area=&low=
func (h *Handler) InventoryReport(w http.ResponseWriter, r *http.Request) {
	areas, err := areaSet(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, resp, err := h.inventory(r.Context(), areas)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if low, _ := strconv.ParseBool(r.URL.Query().Get("low")); low {
		filtered := make([]stock.Level, 0, len(resp.Levels))
		for _, l := range resp.Levels {
			if l.Low {
				filtered = append(filtered, l)
			}
		}
		resp.Levels = filtered
		resp.Total = stock.TotalValue(filtered)
	}
	resp.Levels = nonNil(resp.Levels)
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/reports/inventory.xlsx?area=
func (h *Handler) InventoryXLSX(w http.ResponseWriter, r *http.Request) {
	areas, err := areaSet(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	levels, _, err := h.inventory(r.Context(), areas)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// Render fully before writing so a failure is still a clean 500.
	var buf bytes.Buffer
	if err := stock.WriteInventoryXLSX(&buf, levels); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="inventario.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GET /api/reports/in-transit?from=&to=
func (h *Handler) InTransitReport(w http.ResponseWriter, r *http.Request) {
	p, err := period(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ms, err := h.Ledger.InTransitOrders(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ms))
}

// GET /api/reports/history?from=&to=
func (h *Handler) HistoryReport(w http.ResponseWriter, r *http.Request) {
	p, err := period(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ms, err := h.Ledger.History(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ms))
}

// =============================================================================
// HELPERS
// =============================================================================

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

// fieldErrors is a failed request-body validation, one message per field.
type fieldErrors map[string]string

func (f fieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+" "+v)
	}
	return strings.Join(parts, "; ")
}

func (f fieldErrors) Unwrap() error { return generic.ErrInvalidInput }

// decode reads a JSON body into dst and runs its validator tags.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &generic.ValidationError{Field: "body", Reason: err.Error()}
	}
	if fields := generic.ValidationFields(dst); fields != nil {
		return fieldErrors(fields)
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden
	case generic.IsConflict(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "Internal error", err)
		return
	}
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}
	var fields fieldErrors
	if errors.As(err, &fields) {
		resp.Fields = fields
	}
	writeJSON(w, status, resp)
}

// areaSet parses ?area=, repeated or comma-separated. Absent means all.
func areaSet(r *http.Request) (generic.AreaSet, error) {
	set := generic.AreaSet{}
	for _, v := range r.URL.Query()["area"] {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			a, err := generic.ParseArea(s)
			if err != nil {
				return nil, err
			}
			set[a] = true
		}
	}
	return set, nil
}

// period parses ?from=&to= as inclusive days; either side may be open.
func period(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	var from, to *generic.Day
	for _, side := range []struct {
		key string
		dst **generic.Day
	}{{"from", &from}, {"to", &to}} {
		v := q.Get(side.key)
		if v == "" {
			continue
		}
		d, err := generic.ParseDay(v)
		if err != nil {
			return generic.Period{}, &generic.ValidationError{Field: side.key, Reason: err.Error()}
		}
		*side.dst = &d
	}
	return generic.Bounded(from, to)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
