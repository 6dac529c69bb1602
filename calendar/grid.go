/*
Package calendar builds the week grid shared by availability and shifts.

PURPOSE:
  A schedule window is a start date plus a number of weeks. Generate turns
  it into weekCount rows of 7 contiguous days. Availability submission and
  shift display render the same rows, so both views line up day for day.

DAY ARITHMETIC:
  All arithmetic is on generic.Day (days since epoch), never on instants.
  Day N of week W is weekStart + W*7 + N. There is no DST drift: the last
  day of week 10 is exactly 69 days after weekStart.

CONFIG:
  The schedule config is a stored singleton, but nothing in this package
  reads it implicitly. Callers fetch it once (Store.ScheduleConfig) and pass
  the value down.

SEE ALSO:
  - availability/register.go: Submit and Sheet validate against Config.Window
  - shift/board.go: Week renders shifts on the same grid
*/
package calendar

import (
	"context"
	"fmt"

	"github.com/warp/backoffice/generic"
)

const DaysPerWeek = 7

// =============================================================================
// CONFIG - Schedule window
// =============================================================================

// Config parameterizes the grid. Stored as the scheduleConfig singleton.
type Config struct {
	WeekStart generic.Day `json:"weekStart"`
	WeekCount int         `json:"weekCount" validate:"gt=0"`
}

// Validate rejects a non-positive week count.
func (c Config) Validate() error {
	if c.WeekCount <= 0 {
		return fmt.Errorf("%w: week count must be positive, got %d", generic.ErrInvalidConfig, c.WeekCount)
	}
	return nil
}

// Window is the closed period covered by the grid.
func (c Config) Window() generic.Period {
	return generic.Period{
		Start: c.WeekStart,
		End:   c.WeekStart.AddDays(c.WeekCount*DaysPerWeek - 1),
	}
}

// Weeks is Generate over the config.
func (c Config) Weeks() ([][]generic.Day, error) {
	return Generate(c.WeekStart, c.WeekCount)
}

// Store persists the schedule config singleton.
type Store interface {
	// ScheduleConfig returns a NotFoundError when no config was ever saved.
	ScheduleConfig(ctx context.Context) (Config, error)
	SaveScheduleConfig(ctx context.Context, cfg Config) error
}

// ConfigID is the document id of the singleton.
const ConfigID = "disponibilita"

// =============================================================================
// GRID
// =============================================================================

// Generate returns weekCount rows of 7 ascending, contiguous days starting at
// weekStart. Fails with ErrInvalidConfig when weekCount <= 0.
func Generate(weekStart generic.Day, weekCount int) ([][]generic.Day, error) {
	if weekCount <= 0 {
		return nil, fmt.Errorf("%w: week count must be positive, got %d", generic.ErrInvalidConfig, weekCount)
	}

	weeks := make([][]generic.Day, weekCount)
	for w := range weeks {
		row := make([]generic.Day, DaysPerWeek)
		for d := range row {
			row[d] = weekStart.AddDays(w*DaysPerWeek + d)
		}
		weeks[w] = row
	}
	return weeks, nil
}

// Flatten returns the grid as one ascending list of days.
func Flatten(weeks [][]generic.Day) []generic.Day {
	days := make([]generic.Day, 0, len(weeks)*DaysPerWeek)
	for _, row := range weeks {
		days = append(days, row...)
	}
	return days
}

// Parse builds a Config from a YYYY-MM-DD date and a week count, the shape
// the settings form submits. A malformed date is an ErrInvalidConfig.
func Parse(weekStart string, weekCount int) (Config, error) {
	day, err := generic.ParseDay(weekStart)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", generic.ErrInvalidConfig, err)
	}
	cfg := Config{WeekStart: day, WeekCount: weekCount}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
