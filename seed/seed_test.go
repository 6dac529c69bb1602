package seed_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/seed"
	"github.com/warp/backoffice/stock"
	"github.com/warp/backoffice/store/memory"
)

const fixture = `
schedule:
  weekStart: 2024-01-01
  weekCount: 4
articles:
  - name: Farina
    unit: kg
    minStock: 10
    supplier: Molino Rossi
    unitPrice: "0.90"
    area: Cucina
  - name: Tovaglioli
    unit: pz
    minStock: 200
    area: Sala
`

func TestApply(t *testing.T) {
	fx, err := seed.Parse(strings.NewReader(fixture))
	require.NoError(t, err)

	store := memory.New(nil)
	ledger := stock.NewLedger(store, store)
	ctx := context.Background()

	res, err := seed.Apply(ctx, fx, ledger, store)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Articles)
	assert.True(t, res.Schedule)

	a, err := ledger.Article(ctx, "Farina")
	require.NoError(t, err)
	assert.Equal(t, generic.AreaCucina, a.Area)
	assert.True(t, decimal.RequireFromString("0.9").Equal(a.UnitPrice))

	cfg, err := store.ScheduleConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", cfg.WeekStart.String())
	assert.Equal(t, 4, cfg.WeekCount)

	// Idempotent.
	_, err = seed.Apply(ctx, fx, ledger, store)
	require.NoError(t, err)
	all, _ := ledger.Articles(ctx, nil)
	assert.Len(t, all, 2)
}

func TestApply_RejectsBeforeWriting(t *testing.T) {
	fx, err := seed.Parse(strings.NewReader(`
articles:
  - name: Farina
    unit: kg
    area: Cucina
  - name: Bicchieri
    unit: pz
    area: Bar
`))
	require.NoError(t, err)

	store := memory.New(nil)
	ledger := stock.NewLedger(store, store)

	_, err = seed.Apply(context.Background(), fx, ledger, store)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	all, _ := ledger.Articles(context.Background(), nil)
	assert.Empty(t, all)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := seed.Parse(strings.NewReader("articoli: []\n"))
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}
