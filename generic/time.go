package generic

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"
)

// =============================================================================
// DAY - Timezone-neutral calendar date
// =============================================================================

// Day is a calendar date counted in days since 1970-01-01.
// Arithmetic is plain integer math, so adding N days can never drift across
// a DST boundary the way instant arithmetic does.
type Day int32

const dayLayout = "2006-01-02"

func NewDay(year int, month time.Month, day int) Day {
	return Day(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// DayOf returns the calendar date of t as seen in t's own location.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// DayIn returns the calendar date of t as seen in loc.
func DayIn(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return DayOf(t.In(loc))
}

func Today(loc *time.Location) Day { return DayIn(time.Now(), loc) }

// ParseDay parses YYYY-MM-DD.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return 0, &ValidationError{Field: "day", Reason: fmt.Sprintf("malformed date %q", s)}
	}
	return DayOf(t), nil
}

// MustParseDay is for tests and fixtures.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Arithmetic
func (d Day) AddDays(n int) Day { return d + Day(n) }
func (d Day) Sub(o Day) int     { return int(d - o) }

// Comparison
func (d Day) Before(o Day) bool { return d < o }
func (d Day) After(o Day) bool  { return d > o }
func (d Day) Equal(o Day) bool  { return d == o }

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time { return time.Unix(int64(d)*86400, 0).UTC() }

// In returns midnight of the day in loc.
func (d Day) In(loc *time.Location) time.Time {
	t := d.Time()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// At combines the day with a wall-clock time in loc.
func (d Day) At(hour, minute int, loc *time.Location) time.Time {
	t := d.Time()
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, loc)
}

// Properties
func (d Day) Year() int              { return d.Time().Year() }
func (d Day) Month() time.Month      { return d.Time().Month() }
func (d Day) DayOfMonth() int        { return d.Time().Day() }
func (d Day) Weekday() time.Weekday  { return d.Time().Weekday() }
func (d Day) String() string         { return d.Time().Format(dayLayout) }

func (d Day) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SortDays sorts ascending in place.
func SortDays(days []Day) {
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
}

// LoadLocation resolves a venue timezone name, falling back to UTC for "".
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidConfig, name)
	}
	return loc, nil
}
