package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/generic"
)

func TestDay_ParseAndFormat(t *testing.T) {
	d, err := generic.ParseDay("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())
	assert.Equal(t, time.Thursday, d.Weekday())
	assert.Equal(t, "2024-03-01", d.AddDays(1).String())

	_, err = generic.ParseDay("29/02/2024")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestDay_ArithmeticAcrossDST(t *testing.T) {
	// Rome switches to summer time on 2024-03-31.
	rome, err := generic.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	start := generic.MustParseDay("2024-03-30")
	for i := 0; i < 3; i++ {
		d := start.AddDays(i)
		assert.Equal(t, d, generic.DayIn(d.At(0, 30, rome), rome), "day %s", d)
	}
	assert.Equal(t, 2, start.AddDays(2).Sub(start))
}

func TestDayIn_UsesVenueZone(t *testing.T) {
	rome, err := generic.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	// 23:30 UTC on Jan 1 is already Jan 2 in Rome.
	instant := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01", generic.DayIn(instant, time.UTC).String())
	assert.Equal(t, "2024-01-02", generic.DayIn(instant, rome).String())
	assert.Equal(t, "2024-01-01", generic.DayIn(instant, nil).String())
}

func TestDay_JSON(t *testing.T) {
	var body struct {
		Days []generic.Day `json:"days"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"days":["2024-01-03","2024-01-01"]}`), &body))
	generic.SortDays(body.Days)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"days":["2024-01-01","2024-01-03"]}`, string(out))

	var bad generic.Day
	assert.ErrorIs(t, json.Unmarshal([]byte(`"tomorrow"`), &bad), generic.ErrInvalidInput)
}

func TestLoadLocation(t *testing.T) {
	loc, err := generic.LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = generic.LoadLocation("Mars/Olympus")
	assert.ErrorIs(t, err, generic.ErrInvalidConfig)
}
