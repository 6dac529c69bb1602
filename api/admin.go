/*
admin.go - Maintenance routes for demos and fresh installs

PURPOSE:
  Loads the configured YAML fixture (catalog and schedule window) and, in
  development, wipes every collection so a demo can start over.

ROUTES:
  POST /api/admin/seed     apply the fixture (upsert, safe to repeat)
  POST /api/admin/reset    delete all data (only when AllowReset)

Both need the admin role.

SEE ALSO:
  - seed/seed.go: fixture format
  - store/sqlite/sqlite.go: Reset
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/seed"
)

// Admin configures the maintenance routes.
type Admin struct {
	// Fixture is applied by POST /api/admin/seed. Nil answers 404.
	Fixture *seed.Fixture

	// Reset clears every collection.
	Reset func(ctx context.Context) error

	// AllowReset gates POST /api/admin/reset. Only set it in development.
	AllowReset bool
}

func requireAdmin(r *http.Request) (generic.Actor, error) {
	actor, err := requireActor(r)
	if err != nil {
		return generic.Actor{}, err
	}
	if !actor.IsAdmin() {
		return generic.Actor{}, fmt.Errorf("%w: %s is not an admin", generic.ErrForbidden, actor.Name)
	}
	return actor, nil
}

// SeedFixture applies the configured fixture.
func (h *Handler) SeedFixture(w http.ResponseWriter, r *http.Request) {
	actor, err := requireAdmin(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.Admin == nil || h.Admin.Fixture == nil {
		writeError(w, http.StatusNotFound, "No fixture configured", nil)
		return
	}
	res, err := seed.Apply(r.Context(), *h.Admin.Fixture, h.Ledger, h.Schedule)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.Info().Str("by", actor.Name).Int("articles", res.Articles).Bool("schedule", res.Schedule).Msg("fixture applied")
	writeJSON(w, http.StatusOK, map[string]any{"articles": res.Articles, "schedule": res.Schedule})
}

// ResetData deletes every document.
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	actor, err := requireAdmin(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.Admin == nil || !h.Admin.AllowReset || h.Admin.Reset == nil {
		h.fail(w, r, fmt.Errorf("%w: reset is disabled outside development", generic.ErrForbidden))
		return
	}
	if err := h.Admin.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	if h.Inventory != nil {
		if err := h.Inventory.Refresh(r.Context()); err != nil {
			h.Log.Error().Err(err).Msg("inventory refresh after reset failed")
		}
	}
	h.Log.Warn().Str("by", actor.Name).Msg("all data reset")
	w.WriteHeader(http.StatusNoContent)
}
