package generic

import "time"

// =============================================================================
// PERIOD - Inclusive range of days
// =============================================================================

// Period is an inclusive [Start, End] range of calendar days.
// A zero Start or End leaves that side unbounded (see Bounded).
//
// Examples:
//   - Availability window: weekStart .. weekStart + 7*weekCount - 1
//   - Report filter: "from 2024-03-01 to 2024-03-31"
type Period struct {
	Start Day
	End   Day

	// open flags mark unbounded sides; Day zero is 1970-01-01, a valid date.
	openStart bool
	openEnd   bool
}

// NewPeriod builds a closed period. End before Start is rejected.
func NewPeriod(start, end Day) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Unbounded matches every day.
func Unbounded() Period { return Period{openStart: true, openEnd: true} }

// Bounded builds a period from optional sides; nil leaves that side open.
func Bounded(from, to *Day) (Period, error) {
	p := Period{openStart: from == nil, openEnd: to == nil}
	if from != nil {
		p.Start = *from
	}
	if to != nil {
		p.End = *to
	}
	if from != nil && to != nil && p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// Contains returns true if the day is within the period [Start, End].
func (p Period) Contains(d Day) bool {
	if !p.openStart && d.Before(p.Start) {
		return false
	}
	if !p.openEnd && d.After(p.End) {
		return false
	}
	return true
}

// ContainsTime checks the calendar day of t in loc.
func (p Period) ContainsTime(t time.Time, loc *time.Location) bool {
	return p.Contains(DayIn(t, loc))
}

// Days returns all days in a closed period.
func (p Period) Days() []Day {
	if p.openStart || p.openEnd {
		return nil
	}
	days := make([]Day, 0, p.Len())
	for d := p.Start; !d.After(p.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Len is the number of days in a closed period.
func (p Period) Len() int {
	if p.openStart || p.openEnd {
		return 0
	}
	return p.End.Sub(p.Start) + 1
}

func (p Period) String() string {
	start, end := "-inf", "+inf"
	if !p.openStart {
		start = p.Start.String()
	}
	if !p.openEnd {
		end = p.End.String()
	}
	return "[" + start + ", " + end + "]"
}
