package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/backoffice/availability"
	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/shift"
)

// =============================================================================
// SCHEDULE CONFIG
// =============================================================================

// GET /api/schedule/config
func (h *Handler) GetScheduleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Schedule.ScheduleConfig(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PUT /api/schedule/config
func (h *Handler) PutScheduleConfig(w http.ResponseWriter, r *http.Request) {
	var req ScheduleConfigRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := calendar.Parse(req.WeekStart, req.WeekCount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Schedule.SaveScheduleConfig(r.Context(), cfg); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.Info().Str("week_start", cfg.WeekStart.String()).Int("week_count", cfg.WeekCount).Msg("schedule window updated")
	writeJSON(w, http.StatusOK, cfg)
}

// ScheduleWeeks returns the calendar grid of the current window.
// GET /api/schedule/weeks
func (h *Handler) ScheduleWeeks(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Schedule.ScheduleConfig(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	weeks, err := cfg.Weeks()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"weekStart": cfg.WeekStart,
		"weekCount": cfg.WeekCount,
		"weeks":     weeks,
	})
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// ListAvailability returns every person's days in one area, the caller's
// own area when omitted.
// GET /api/availability?area=
func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	requested, err := optionalArea(r.URL.Query().Get("area"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	area, err := actorArea(requested, actorFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	byPerson, err := h.Availability.ListByArea(r.Context(), area)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"people": availability.People(byPerson),
		"days":   byPerson,
	})
}

// PutMyAvailability replaces the caller's selection within the window.
// PUT /api/availability/me
func (h *Handler) PutMyAvailability(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req AvailabilityRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	area, err := actorArea(req.Area, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := h.Schedule.ScheduleConfig(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	diff, err := h.Availability.Submit(r.Context(), cfg, actor.Name, area, req.Days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{Added: diff.Added, Removed: diff.Removed})
}

// MyAvailabilitySheet is the submission grid with the caller's days marked.
// GET /api/availability/me/sheet?area=
func (h *Handler) MyAvailabilitySheet(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	requested, err := optionalArea(r.URL.Query().Get("area"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	area, err := actorArea(requested, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := h.Schedule.ScheduleConfig(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sheet, err := h.Availability.Sheet(r.Context(), cfg, actor.Name, area)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// ClearAvailability wipes every submission. Admin only.
// DELETE /api/availability
func (h *Handler) ClearAvailability(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !actor.IsAdmin() {
		h.fail(w, r, fmt.Errorf("%w: clearing availability needs the admin role", generic.ErrForbidden))
		return
	}
	n, err := h.Availability.Clear(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// =============================================================================
// SHIFTS
// =============================================================================

// GET /api/shifts/by-person/{person}
func (h *Handler) ShiftsByPerson(w http.ResponseWriter, r *http.Request) {
	byDay, err := h.Shifts.ListByPerson(r.Context(), chi.URLParam(r, "person"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, byDay)
}

// GET /api/shifts/by-area/{area}
func (h *Handler) ShiftsByArea(w http.ResponseWriter, r *http.Request) {
	area, err := generic.ParseArea(chi.URLParam(r, "area"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	byDay, err := h.Shifts.ListByArea(r.Context(), area)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, byDay)
}

// ShiftWeek is the shift grid for the schedule window.
// GET /api/shifts/week?area=
func (h *Handler) ShiftWeek(w http.ResponseWriter, r *http.Request) {
	area, err := optionalArea(r.URL.Query().Get("area"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cfg, err := h.Schedule.ScheduleConfig(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grid, err := h.Shifts.Week(r.Context(), cfg, area)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// AssignShift books a shift and reports the person's other shifts that
// day so the client can warn about the overlap.
// POST /api/shifts
func (h *Handler) AssignShift(w http.ResponseWriter, r *http.Request) {
	var req ShiftRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := h.shiftStart(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.Shifts.Assign(r.Context(), req.Person, req.Area, start)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeShift(w, r, http.StatusCreated, id, req.Person, start)
}

// PUT /api/shifts/{id}
func (h *Handler) ReassignShift(w http.ResponseWriter, r *http.Request) {
	var req ShiftRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := h.shiftStart(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Shifts.Reassign(r.Context(), id, req.Person, req.Area, start); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeShift(w, r, http.StatusOK, id, req.Person, start)
}

// DELETE /api/shifts/{id}
func (h *Handler) UnassignShift(w http.ResponseWriter, r *http.Request) {
	if err := h.Shifts.Unassign(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) shiftStart(req ShiftRequest) (time.Time, error) {
	switch {
	case req.Start != nil:
		return *req.Start, nil
	case req.Day != nil:
		return h.Shifts.DefaultStart(*req.Day), nil
	default:
		return time.Time{}, &generic.ValidationError{Field: "start", Reason: "start or day is required"}
	}
}

func (h *Handler) writeShift(w http.ResponseWriter, r *http.Request, status int, id, person string, start time.Time) {
	resp := ShiftResponse{ID: id, SameDay: []ShiftDTO{}}
	same, err := h.Shifts.SameDay(r.Context(), person, generic.DayIn(start, h.Shifts.Loc))
	if err != nil {
		// The write succeeded; a failed warning lookup only loses the hint.
		h.Log.Warn().Err(err).Str("shift_id", id).Msg("same-day lookup failed")
	}
	for _, s := range same {
		if s.ID == id {
			continue
		}
		resp.SameDay = append(resp.SameDay, toShiftDTO(s))
	}
	writeJSON(w, status, resp)
}

func toShiftDTO(s shift.Shift) ShiftDTO {
	return ShiftDTO{ID: s.ID, Area: s.Area, Start: s.Start, End: s.End()}
}

// =============================================================================
// HELPERS
// =============================================================================

func optionalArea(s string) (generic.Area, error) {
	if s == "" {
		return "", nil
	}
	return generic.ParseArea(s)
}

// actorArea picks the requested area, else the caller's own.
func actorArea(requested generic.Area, actor generic.Actor) (generic.Area, error) {
	if requested != "" {
		return requested, nil
	}
	if actor.Area != "" {
		return actor.Area, nil
	}
	return "", &generic.ValidationError{Field: "area", Reason: "is required when the caller has no area"}
}
