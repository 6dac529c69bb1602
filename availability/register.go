/*
Package availability records which days each person can work, per area.

STORAGE MODEL:
  One document per (person, area, day). Presence means available; there is
  no boolean field and no "unavailable" document.

RECONCILE:
  SetAvailability replaces a person's set for an area with a new set by
  inserting what is missing and deleting what is extra. Submitting the same
  set twice performs no writes the second time.

  Submit scopes the reconcile to the current schedule window: days outside
  the window belong to earlier windows and are left alone.

SEE ALSO:
  - calendar/grid.go: the window and its week rows
  - shift/board.go: the other consumer of the same grid
*/
package availability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
)

// Entry is one available day.
type Entry struct {
	ID        string       `json:"id" validate:"required"`
	Person    string       `json:"person" validate:"required"`
	Area      generic.Area `json:"area" validate:"area"`
	Day       generic.Day  `json:"day"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Filter narrows ListAvailability. Zero values match everything.
type Filter struct {
	Person string
	Area   generic.Area
}

func (f Filter) Match(e Entry) bool {
	return (f.Person == "" || e.Person == f.Person) && (f.Area == "" || e.Area == f.Area)
}

// Store persists the availability collection.
type Store interface {
	// ListAvailability returns matches ordered by Day, then Person.
	ListAvailability(ctx context.Context, f Filter) ([]Entry, error)

	// InsertAvailability fails with ErrDuplicate if (person, area, day) exists.
	InsertAvailability(ctx context.Context, e Entry) error

	DeleteAvailability(ctx context.Context, id string) error

	// ClearAvailability deletes every document and returns how many.
	ClearAvailability(ctx context.Context) (int, error)
}

// =============================================================================
// REGISTER
// =============================================================================

type Register struct {
	store Store

	Log zerolog.Logger
	Now func() time.Time
}

func NewRegister(store Store) *Register {
	return &Register{store: store, Log: zerolog.Nop(), Now: time.Now}
}

// Diff counts the writes a reconcile performed.
type Diff struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

func (d Diff) Writes() int { return d.Added + d.Removed }

// SetAvailability makes the stored set for (person, area) equal days.
func (r *Register) SetAvailability(ctx context.Context, person string, area generic.Area, days []generic.Day) (Diff, error) {
	return r.reconcile(ctx, person, area, days, generic.Unbounded())
}

// Submit validates days against the schedule window and reconciles within it.
func (r *Register) Submit(ctx context.Context, cfg calendar.Config, person string, area generic.Area, days []generic.Day) (Diff, error) {
	if err := cfg.Validate(); err != nil {
		return Diff{}, err
	}
	window := cfg.Window()
	for _, d := range days {
		if !window.Contains(d) {
			return Diff{}, &generic.ValidationError{
				Field:  "days",
				Reason: fmt.Sprintf("%s is outside the schedule window %s", d, window),
			}
		}
	}
	return r.reconcile(ctx, person, area, days, window)
}

func (r *Register) reconcile(ctx context.Context, person string, area generic.Area, days []generic.Day, scope generic.Period) (Diff, error) {
	person = strings.TrimSpace(person)
	if person == "" {
		return Diff{}, &generic.ValidationError{Field: "person", Reason: "is required"}
	}
	if !area.Valid() {
		return Diff{}, &generic.ValidationError{Field: "area", Reason: "must be Sala or Cucina"}
	}

	want := make(map[generic.Day]bool, len(days))
	for _, d := range days {
		want[d] = true
	}

	stored, err := r.store.ListAvailability(ctx, Filter{Person: person, Area: area})
	if err != nil {
		return Diff{}, err
	}
	have := make(map[generic.Day]bool, len(stored))

	var diff Diff
	for _, e := range stored {
		have[e.Day] = true
		if !scope.Contains(e.Day) || want[e.Day] {
			continue
		}
		if err := r.store.DeleteAvailability(ctx, e.ID); err != nil && !generic.IsNotFound(err) {
			return diff, fmt.Errorf("removing %s: %w", e.Day, err)
		}
		diff.Removed++
	}

	added := make([]generic.Day, 0, len(want))
	for d := range want {
		if !have[d] {
			added = append(added, d)
		}
	}
	generic.SortDays(added)

	now := r.Now()
	for _, d := range added {
		e := Entry{ID: uuid.New().String(), Person: person, Area: area, Day: d, CreatedAt: now}
		if err := generic.Validate(e); err != nil {
			return diff, err
		}
		if err := r.store.InsertAvailability(ctx, e); err != nil {
			if generic.IsConflict(err) {
				// A concurrent submit already stored it.
				continue
			}
			return diff, fmt.Errorf("adding %s: %w", d, err)
		}
		diff.Added++
	}

	if diff.Writes() > 0 {
		r.Log.Info().
			Str("person", person).
			Str("area", string(area)).
			Int("added", diff.Added).
			Int("removed", diff.Removed).
			Msg("availability updated")
	}
	return diff, nil
}

// ListByArea maps each person to their ascending days in area. The area is
// required; days from different areas are never merged.
func (r *Register) ListByArea(ctx context.Context, area generic.Area) (map[string][]generic.Day, error) {
	if _, err := generic.ParseArea(string(area)); err != nil {
		return nil, err
	}
	entries, err := r.store.ListAvailability(ctx, Filter{Area: area})
	if err != nil {
		return nil, err
	}
	out := make(map[string][]generic.Day)
	for _, e := range entries {
		out[e.Person] = append(out[e.Person], e.Day)
	}
	for _, days := range out {
		generic.SortDays(days)
	}
	return out, nil
}

// ListFor returns one person's ascending days in area.
func (r *Register) ListFor(ctx context.Context, person string, area generic.Area) ([]generic.Day, error) {
	entries, err := r.store.ListAvailability(ctx, Filter{Person: person, Area: area})
	if err != nil {
		return nil, err
	}
	days := make([]generic.Day, len(entries))
	for i, e := range entries {
		days[i] = e.Day
	}
	generic.SortDays(days)
	return days, nil
}

// People returns the names present in ListByArea, sorted.
func People(byPerson map[string][]generic.Day) []string {
	names := make([]string, 0, len(byPerson))
	for n := range byPerson {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SheetDay is one selectable cell of the submission grid.
type SheetDay struct {
	Day      generic.Day `json:"day"`
	Selected bool        `json:"selected"`
}

// Sheet renders the schedule window for one person with their current
// selection marked.
func (r *Register) Sheet(ctx context.Context, cfg calendar.Config, person string, area generic.Area) ([][]SheetDay, error) {
	weeks, err := cfg.Weeks()
	if err != nil {
		return nil, err
	}
	days, err := r.ListFor(ctx, person, area)
	if err != nil {
		return nil, err
	}
	selected := make(map[generic.Day]bool, len(days))
	for _, d := range days {
		selected[d] = true
	}

	sheet := make([][]SheetDay, len(weeks))
	for w, row := range weeks {
		sheet[w] = make([]SheetDay, len(row))
		for i, d := range row {
			sheet[w][i] = SheetDay{Day: d, Selected: selected[d]}
		}
	}
	return sheet, nil
}

// Clear deletes every availability document. Used when a new schedule
// window opens.
func (r *Register) Clear(ctx context.Context) (int, error) {
	n, err := r.store.ClearAvailability(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing availability: %w", err)
	}
	r.Log.Warn().Int("deleted", n).Msg("availability cleared")
	return n, nil
}
