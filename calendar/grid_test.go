package calendar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
)

func TestGenerate_TwoWeeksFromJanuaryFirst(t *testing.T) {
	// GIVEN: weekStart = 2024-01-01, weekCount = 2
	// WHEN: the grid is generated
	// THEN: week 1 is 01-01..01-07, week 2 is 01-08..01-14

	weeks, err := calendar.Generate(generic.MustParseDay("2024-01-01"), 2)
	require.NoError(t, err)
	require.Len(t, weeks, 2)

	assert.Equal(t, "2024-01-01", weeks[0][0].String())
	assert.Equal(t, "2024-01-07", weeks[0][6].String())
	assert.Equal(t, "2024-01-08", weeks[1][0].String())
	assert.Equal(t, "2024-01-14", weeks[1][6].String())
}

func TestGenerate_ShapeProperties(t *testing.T) {
	starts := []string{"2024-01-01", "2024-02-26", "2024-03-25", "2024-10-21", "2023-12-25", "1970-01-01"}

	for _, s := range starts {
		for count := 1; count <= 12; count++ {
			weeks, err := calendar.Generate(generic.MustParseDay(s), count)
			require.NoError(t, err)
			require.Len(t, weeks, count)

			days := calendar.Flatten(weeks)
			require.Len(t, days, count*7)
			assert.Equal(t, s, days[0].String())
			for i := 1; i < len(days); i++ {
				assert.Equal(t, 1, days[i].Sub(days[i-1]), "gap after %s", days[i-1])
			}
			for _, row := range weeks {
				assert.Len(t, row, 7)
			}
		}
	}
}

func TestGenerate_AcrossDSTChange(t *testing.T) {
	// Europe/Rome switches to summer time on 2024-03-31.
	weeks, err := calendar.Generate(generic.MustParseDay("2024-03-25"), 2)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-31", weeks[0][6].String())
	assert.Equal(t, "2024-04-01", weeks[1][0].String())
	assert.Equal(t, "2024-04-07", weeks[1][6].String())
}

func TestGenerate_InvalidWeekCount(t *testing.T) {
	for _, count := range []int{0, -1, -52} {
		_, err := calendar.Generate(generic.MustParseDay("2024-01-01"), count)
		assert.ErrorIs(t, err, generic.ErrInvalidConfig)
	}
}

func TestConfig_Window(t *testing.T) {
	cfg := calendar.Config{WeekStart: generic.MustParseDay("2024-01-01"), WeekCount: 2}

	w := cfg.Window()
	assert.Equal(t, "2024-01-01", w.Start.String())
	assert.Equal(t, "2024-01-14", w.End.String())
	assert.Equal(t, 14, w.Len())
	assert.True(t, w.Contains(generic.MustParseDay("2024-01-14")))
	assert.False(t, w.Contains(generic.MustParseDay("2024-01-15")))
}

func TestParse(t *testing.T) {
	cfg, err := calendar.Parse("2024-05-06", 4)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06", cfg.WeekStart.String())
	assert.Equal(t, 4, cfg.WeekCount)

	_, err = calendar.Parse("06/05/2024", 4)
	assert.ErrorIs(t, err, generic.ErrInvalidConfig)

	_, err = calendar.Parse("2024-05-06", 0)
	assert.ErrorIs(t, err, generic.ErrInvalidConfig)
}
