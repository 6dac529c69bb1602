/*
Package shift assigns people to area/day/time slots.

ONE COLLECTION, TWO VIEWS:
  Shifts are stored once. ByPerson (date -> start) and ByArea
  (date -> ordered slots) are projections of the same list filtered
  differently; neither is maintained separately.

DAY BUCKETING:
  A shift's calendar day is its start instant seen in the venue timezone,
  so a 00:30 shift is not pushed onto the previous day by a UTC conversion.

OVERLAPS:
  Two shifts for the same person on the same day are allowed. SameDay
  returns what is already booked so a caller can warn.

SEE ALSO:
  - calendar/grid.go: Week uses the same grid as availability
*/
package shift

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

const (
	// Length is the display length of a shift.
	Length = time.Hour

	// DefaultStartHour is the start time proposed for a new shift.
	DefaultStartHour = 11
)

// Shift is one person in one area starting at one instant.
type Shift struct {
	ID        string       `json:"id" validate:"required"`
	Person    string       `json:"person" validate:"required"`
	Area      generic.Area `json:"area" validate:"area"`
	Start     time.Time    `json:"start"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (s Shift) End() time.Time { return s.Start.Add(Length) }

// Day is the calendar day of the start in loc.
func (s Shift) Day(loc *time.Location) generic.Day { return generic.DayIn(s.Start, loc) }

type Filter struct {
	Person string
	Area   generic.Area
}

func (f Filter) Match(s Shift) bool {
	return (f.Person == "" || s.Person == f.Person) && (f.Area == "" || s.Area == f.Area)
}

// Store persists the shifts collection.
type Store interface {
	InsertShift(ctx context.Context, s Shift) error
	GetShift(ctx context.Context, id string) (Shift, error)

	// UpdateShift replaces an existing document; NotFoundError otherwise.
	UpdateShift(ctx context.Context, s Shift) error

	DeleteShift(ctx context.Context, id string) error

	// ListShifts returns matches ordered by Start, then ID.
	ListShifts(ctx context.Context, f Filter) ([]Shift, error)
}

// =============================================================================
// PROJECTIONS - Pure
// =============================================================================

// Slot is one entry of the by-area view.
type Slot struct {
	ShiftID string    `json:"shiftId"`
	Person  string    `json:"person"`
	Start   time.Time `json:"start"`
}

// ByPerson maps each day to the start of that day's shift. When a day has
// more than one shift, the earliest start wins.
func ByPerson(shifts []Shift, loc *time.Location) map[generic.Day]time.Time {
	out := make(map[generic.Day]time.Time, len(shifts))
	for _, s := range shifts {
		d := s.Day(loc)
		if cur, ok := out[d]; !ok || s.Start.Before(cur) {
			out[d] = s.Start
		}
	}
	return out
}

// ByArea maps each day to its slots ordered by start, then person.
func ByArea(shifts []Shift, loc *time.Location) map[generic.Day][]Slot {
	out := make(map[generic.Day][]Slot)
	for _, s := range shifts {
		d := s.Day(loc)
		out[d] = append(out[d], Slot{ShiftID: s.ID, Person: s.Person, Start: s.Start})
	}
	for _, slots := range out {
		sortSlots(slots)
	}
	return out
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].Person < slots[j].Person
	})
}

// =============================================================================
// BOARD
// =============================================================================

type Board struct {
	store Store

	Log zerolog.Logger
	Now func() time.Time

	// Loc is the venue timezone.
	Loc *time.Location
}

func NewBoard(store Store, loc *time.Location) *Board {
	if loc == nil {
		loc = time.UTC
	}
	return &Board{store: store, Log: zerolog.Nop(), Now: time.Now, Loc: loc}
}

func (b *Board) validate(s Shift) error {
	if s.Start.IsZero() {
		return &generic.ValidationError{Field: "start", Reason: "is required"}
	}
	return generic.Validate(s)
}

// Assign books one shift. Overlaps are not checked.
func (b *Board) Assign(ctx context.Context, person string, area generic.Area, start time.Time) (string, error) {
	now := b.Now()
	s := Shift{
		ID:        uuid.New().String(),
		Person:    strings.TrimSpace(person),
		Area:      area,
		Start:     start,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.validate(s); err != nil {
		return "", err
	}
	if err := b.store.InsertShift(ctx, s); err != nil {
		return "", fmt.Errorf("assigning shift: %w", err)
	}
	b.Log.Info().
		Str("shift_id", s.ID).
		Str("person", s.Person).
		Str("area", string(area)).
		Time("start", start).
		Msg("shift assigned")
	return s.ID, nil
}

// Reassign replaces person, area and start of an existing shift.
func (b *Board) Reassign(ctx context.Context, id, person string, area generic.Area, start time.Time) error {
	s, err := b.store.GetShift(ctx, id)
	if err != nil {
		return err
	}
	s.Person = strings.TrimSpace(person)
	s.Area = area
	s.Start = start
	s.UpdatedAt = b.Now()
	if err := b.validate(s); err != nil {
		return err
	}
	if err := b.store.UpdateShift(ctx, s); err != nil {
		return fmt.Errorf("reassigning shift: %w", err)
	}
	b.Log.Info().Str("shift_id", id).Str("person", s.Person).Time("start", start).Msg("shift reassigned")
	return nil
}

func (b *Board) Unassign(ctx context.Context, id string) error {
	if err := b.store.DeleteShift(ctx, id); err != nil {
		return err
	}
	b.Log.Info().Str("shift_id", id).Msg("shift removed")
	return nil
}

func (b *Board) Get(ctx context.Context, id string) (Shift, error) {
	return b.store.GetShift(ctx, id)
}

func (b *Board) ListByPerson(ctx context.Context, person string) (map[generic.Day]time.Time, error) {
	shifts, err := b.store.ListShifts(ctx, Filter{Person: person})
	if err != nil {
		return nil, err
	}
	return ByPerson(shifts, b.Loc), nil
}

func (b *Board) ListByArea(ctx context.Context, area generic.Area) (map[generic.Day][]Slot, error) {
	shifts, err := b.store.ListShifts(ctx, Filter{Area: area})
	if err != nil {
		return nil, err
	}
	return ByArea(shifts, b.Loc), nil
}

// SameDay returns the person's shifts on day, ordered by start.
func (b *Board) SameDay(ctx context.Context, person string, day generic.Day) ([]Shift, error) {
	shifts, err := b.store.ListShifts(ctx, Filter{Person: person})
	if err != nil {
		return nil, err
	}
	var out []Shift
	for _, s := range shifts {
		if s.Day(b.Loc) == day {
			out = append(out, s)
		}
	}
	return out, nil
}

// WeekDay is one cell of the shift grid.
type WeekDay struct {
	Day   generic.Day `json:"day"`
	Slots []Slot      `json:"slots"`
}

// Week renders the schedule window for area, one row per week. An empty
// area renders every area.
func (b *Board) Week(ctx context.Context, cfg calendar.Config, area generic.Area) ([][]WeekDay, error) {
	weeks, err := cfg.Weeks()
	if err != nil {
		return nil, err
	}
	byDay, err := b.ListByArea(ctx, area)
	if err != nil {
		return nil, err
	}

	grid := make([][]WeekDay, len(weeks))
	for w, row := range weeks {
		grid[w] = make([]WeekDay, len(row))
		for i, d := range row {
			slots := byDay[d]
			if slots == nil {
				slots = []Slot{}
			}
			grid[w][i] = WeekDay{Day: d, Slots: slots}
		}
	}
	return grid, nil
}

// DefaultStart is DefaultStartHour on day in the venue timezone.
func (b *Board) DefaultStart(day generic.Day) time.Time {
	return day.At(DefaultStartHour, 0, b.Loc)
}
