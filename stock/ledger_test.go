package stock_test

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/stock"
	"github.com/warp/backoffice/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var t0 = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*stock.Ledger, *memory.Store) {
	t.Helper()
	store := memory.New(nil)
	ledger := stock.NewLedger(store, store)
	ledger.Now = func() time.Time { return t0 }
	return ledger, store
}

func farina() stock.Article {
	return stock.Article{
		Name:      "Farina",
		Unit:      "kg",
		MinStock:  10,
		Supplier:  "Molino Rossi",
		UnitPrice: decimal.RequireFromString("0.90"),
		Area:      generic.AreaCucina,
	}
}

func record(t *testing.T, l *stock.Ledger, article string, qty int, typ stock.MovementType) string {
	t.Helper()
	id, err := l.RecordMovement(context.Background(), stock.Movement{Article: article, Quantity: qty, Type: typ})
	require.NoError(t, err)
	return id
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestLedger_FarinaScenario(t *testing.T) {
	// GIVEN: Farina with minimum 10
	// WHEN: +20 ingress, -15 egress, +20 in transit, receipt confirmed
	// THEN: stock 5 (low) -> 5 (order ignored) -> 25 (not low)

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))

	record(t, ledger, "Farina", 20, stock.Ingress)
	record(t, ledger, "Farina", 15, stock.Egress)

	s, err := ledger.CurrentStock(ctx, "Farina")
	require.NoError(t, err)
	assert.Equal(t, 5, s)
	low, err := ledger.LowStock(ctx, "Farina")
	require.NoError(t, err)
	assert.True(t, low)

	order := record(t, ledger, "Farina", 20, stock.InTransit)
	s, _ = ledger.CurrentStock(ctx, "Farina")
	assert.Equal(t, 5, s, "in-transit orders are not inventory")

	received, err := ledger.ConfirmReceipt(ctx, order, 20)
	require.NoError(t, err)
	assert.Equal(t, stock.Ingress, received.Type)

	s, _ = ledger.CurrentStock(ctx, "Farina")
	assert.Equal(t, 25, s)
	low, _ = ledger.LowStock(ctx, "Farina")
	assert.False(t, low)
}

func TestLedger_RecordMovement_DefaultsAreaFromArticle(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))

	id := record(t, ledger, "Farina", 3, stock.Ingress)

	m, err := ledger.Movement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generic.AreaCucina, m.Area)
	assert.Equal(t, t0, m.At)
	assert.Equal(t, 1, m.Version)
	assert.False(t, m.Archived)
}

func TestLedger_RecordMovement_InvalidQuantity(t *testing.T) {
	ledger, _ := newTestLedger(t)

	for _, q := range []int{0, -1} {
		_, err := ledger.RecordMovement(context.Background(), stock.Movement{
			Article: "Farina", Quantity: q, Type: stock.Ingress, Area: generic.AreaCucina,
		})
		assert.ErrorIs(t, err, generic.ErrInvalidQuantity)
	}
}

func TestLedger_RecordMovement_UnknownArticleNeedsArea(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.RecordMovement(context.Background(), stock.Movement{Article: "Zucchero", Quantity: 1, Type: stock.Ingress})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	_, err = ledger.RecordMovement(context.Background(), stock.Movement{Article: "Zucchero", Quantity: 1, Type: stock.Ingress, Area: generic.AreaSala})
	assert.NoError(t, err)
}

// =============================================================================
// RECEIPT
// =============================================================================

func TestLedger_ConfirmReceipt_KeepsOrderedQuantity(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))

	order := record(t, ledger, "Farina", 20, stock.InTransit)
	_, err := ledger.ConfirmReceipt(ctx, order, 18)
	require.NoError(t, err)

	m, err := ledger.Movement(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, 18, m.Quantity)
	assert.Equal(t, 20, m.OrderedQuantity)
	require.NotNil(t, m.ReceivedAt)
	assert.Equal(t, t0, *m.ReceivedAt)
	assert.Equal(t, 2, m.Version)
}

func TestLedger_ConfirmReceipt_NotInTransitNeverMutates(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))

	for _, typ := range []stock.MovementType{stock.Ingress, stock.Egress} {
		id := record(t, ledger, "Farina", 4, typ)
		before, _ := ledger.Movement(ctx, id)

		_, err := ledger.ConfirmReceipt(ctx, id, 9)
		assert.ErrorIs(t, err, generic.ErrNotInTransit)

		after, _ := ledger.Movement(ctx, id)
		assert.Equal(t, before, after)
	}

	// Second confirmation of the same order.
	order := record(t, ledger, "Farina", 5, stock.InTransit)
	_, err := ledger.ConfirmReceipt(ctx, order, 5)
	require.NoError(t, err)
	_, err = ledger.ConfirmReceipt(ctx, order, 5)
	assert.ErrorIs(t, err, generic.ErrNotInTransit)
}

func TestLedger_ConfirmReceipt_Errors(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.ConfirmReceipt(ctx, "missing", 3)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	// Lookup and type come before the quantity check.
	_, err = ledger.ConfirmReceipt(ctx, "missing", 0)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	require.NoError(t, ledger.SaveArticle(ctx, farina()))
	egress := record(t, ledger, "Farina", 2, stock.Egress)
	_, err = ledger.ConfirmReceipt(ctx, egress, 0)
	assert.ErrorIs(t, err, generic.ErrNotInTransit)

	order := record(t, ledger, "Farina", 5, stock.InTransit)
	_, err = ledger.ConfirmReceipt(ctx, order, 0)
	assert.ErrorIs(t, err, generic.ErrInvalidQuantity)
	m, err := ledger.Movement(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, stock.InTransit, m.Type)
}

// =============================================================================
// ARCHIVE
// =============================================================================

func TestLedger_Archive_StillCounts(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))

	in := record(t, ledger, "Farina", 12, stock.Ingress)
	record(t, ledger, "Farina", 2, stock.Egress)

	require.NoError(t, ledger.Archive(ctx, in))
	require.NoError(t, ledger.Archive(ctx, in), "archive is idempotent")

	s, _ := ledger.CurrentStock(ctx, "Farina")
	assert.Equal(t, 10, s)

	m, _ := ledger.Movement(ctx, in)
	assert.True(t, m.Archived)
	assert.Equal(t, 12, m.Quantity)
	assert.Equal(t, stock.Ingress, m.Type)

	active, err := ledger.ActiveMovements(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, stock.Egress, active[0].Type)
}

func TestLedger_Archive_InTransitRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))

	order := record(t, ledger, "Farina", 5, stock.InTransit)
	err := ledger.Archive(ctx, order)
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)

	assert.ErrorIs(t, ledger.Archive(ctx, "missing"), generic.ErrNotFound)
}

// =============================================================================
// FOLD PROPERTIES
// =============================================================================

func TestFold_Commutative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		var ms []stock.Movement
		want := 0
		for i := 0; i < 30; i++ {
			q := rng.Intn(20) + 1
			typ := []stock.MovementType{stock.Ingress, stock.Egress, stock.InTransit}[rng.Intn(3)]
			switch typ {
			case stock.Ingress:
				want += q
			case stock.Egress:
				want -= q
			}
			ms = append(ms, stock.Movement{Article: "Farina", Quantity: q, Type: typ, Archived: rng.Intn(4) == 0})
		}

		for shuffle := 0; shuffle < 5; shuffle++ {
			rng.Shuffle(len(ms), func(i, j int) { ms[i], ms[j] = ms[j], ms[i] })
			assert.Equal(t, want, stock.StockOf(ms, "Farina"))
			assert.Equal(t, want, stock.Fold(ms)["Farina"])
		}
	}
}

func TestLedger_EditedArticleKeepsSnapshot(t *testing.T) {
	// GIVEN: movements recorded under Cucina
	// WHEN: the article is moved to Sala
	// THEN: stock is unchanged and old movements keep area Cucina

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))
	id := record(t, ledger, "Farina", 7, stock.Ingress)

	edited := farina()
	edited.Area = generic.AreaSala
	edited.MinStock = 3
	require.NoError(t, ledger.SaveArticle(ctx, edited))

	m, _ := ledger.Movement(ctx, id)
	assert.Equal(t, generic.AreaCucina, m.Area)

	st, err := ledger.Status(ctx, "Farina")
	require.NoError(t, err)
	assert.Equal(t, 7, st.Stock)
	assert.False(t, st.Low)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestLedger_Inventory(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))
	require.NoError(t, ledger.SaveArticle(ctx, stock.Article{
		Name: "Tovaglioli", Unit: "pz", MinStock: 100, UnitPrice: decimal.RequireFromString("0.05"), Area: generic.AreaSala,
	}))

	record(t, ledger, "Farina", 20, stock.Ingress)
	record(t, ledger, "Tovaglioli", 500, stock.Ingress)
	record(t, ledger, "Tovaglioli", 450, stock.Egress)
	_, err := ledger.RecordMovement(ctx, stock.Movement{Article: "Dismesso", Quantity: 3, Type: stock.Ingress, Area: generic.AreaSala})
	require.NoError(t, err)

	levels, err := ledger.Inventory(ctx, nil)
	require.NoError(t, err)
	require.Len(t, levels, 2, "movements for unknown articles are ignored")

	assert.Equal(t, "Farina", levels[0].Article)
	assert.Equal(t, 20, levels[0].Stock)
	assert.False(t, levels[0].Low)
	assert.True(t, decimal.RequireFromString("18").Equal(levels[0].Value))

	assert.Equal(t, "Tovaglioli", levels[1].Article)
	assert.Equal(t, 50, levels[1].Stock)
	assert.True(t, levels[1].Low)

	sala, err := ledger.Inventory(ctx, generic.NewAreaSet(generic.AreaSala))
	require.NoError(t, err)
	require.Len(t, sala, 1)
	assert.Equal(t, "Tovaglioli", sala[0].Article)

	assert.True(t, decimal.RequireFromString("20.5").Equal(stock.TotalValue(levels)))
}

func TestLedger_InTransitAndHistoryPeriods(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.SaveArticle(ctx, farina()))

	mk := func(day string, typ stock.MovementType) {
		at := generic.MustParseDay(day).At(10, 0, time.UTC)
		_, err := ledger.RecordMovement(ctx, stock.Movement{Article: "Farina", Quantity: 1, Type: typ, At: at})
		require.NoError(t, err)
	}
	mk("2024-03-01", stock.InTransit)
	mk("2024-03-10", stock.InTransit)
	mk("2024-03-02", stock.Ingress)
	mk("2024-03-20", stock.Egress)

	p, err := generic.NewPeriod(generic.MustParseDay("2024-03-01"), generic.MustParseDay("2024-03-05"))
	require.NoError(t, err)

	orders, err := ledger.InTransitOrders(ctx, p)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	history, err := ledger.History(ctx, generic.Unbounded())
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, m := range history {
		assert.NotEqual(t, stock.InTransit, m.Type)
	}
}

// =============================================================================
// VIEW + EXPORT
// =============================================================================

func TestInventoryView_RecomputesOnChange(t *testing.T) {
	bus := generic.NewBus()
	store := memory.New(bus)
	ledger := stock.NewLedger(store, store)
	ctx := context.Background()

	view := stock.NewInventoryView(ctx, ledger, bus)
	defer view.Close()
	assert.Empty(t, view.Levels(nil))

	require.NoError(t, ledger.SaveArticle(ctx, farina()))
	require.Len(t, view.Levels(nil), 1)
	assert.Equal(t, 0, view.Levels(nil)[0].Stock)
	assert.Len(t, view.Low(nil), 1)

	_, err := ledger.RecordMovement(ctx, stock.Movement{Article: "Farina", Quantity: 11, Type: stock.Ingress})
	require.NoError(t, err)
	assert.Equal(t, 11, view.Levels(nil)[0].Stock)
	assert.Empty(t, view.Low(nil))
	assert.NoError(t, view.Err())
}

// gatedStore pauses the first ListMovements after arm until release closes.
type gatedStore struct {
	*memory.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListMovements(ctx context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	ms, err := g.Store.ListMovements(ctx, f)
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return ms, err
}

func TestInventoryView_SlowRefreshNeverOverwritesNewer(t *testing.T) {
	bus := generic.NewBus()
	mem := memory.New(bus)
	gate := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	ledger := stock.NewLedger(gate, mem)
	ctx := context.Background()

	require.NoError(t, ledger.SaveArticle(ctx, farina()))
	view := stock.NewInventoryView(ctx, ledger, bus)
	defer view.Close()
	record(t, ledger, "Farina", 10, stock.Ingress)

	// GIVEN: a refresh that has read stock 10 and is paused before saving
	gate.armed.Store(true)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = view.Refresh(ctx)
	}()
	<-gate.entered

	// WHEN: another writer records +5 and its own refresh runs
	go func() {
		defer wg.Done()
		_, _ = ledger.RecordMovement(ctx, stock.Movement{Article: "Farina", Quantity: 5, Type: stock.Ingress})
	}()
	require.Eventually(t, func() bool {
		n, err := ledger.CurrentStock(ctx, "Farina")
		return err == nil && n == 15
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	// THEN: the view shows the newest stock
	require.Len(t, view.Levels(nil), 1)
	assert.Equal(t, 15, view.Levels(nil)[0].Stock)
}

func TestWriteInventoryXLSX(t *testing.T) {
	levels := []stock.Level{
		{Article: "Farina", Unit: "kg", Area: generic.AreaCucina, MinStock: 10, Stock: 5, Low: true, Value: decimal.RequireFromString("4.5")},
		{Article: "Sale", Unit: "kg", Area: generic.AreaCucina, MinStock: 1, Stock: 3, Value: decimal.Zero},
	}

	var buf bytes.Buffer
	require.NoError(t, stock.WriteInventoryXLSX(&buf, levels))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Inventario")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Articolo", rows[0][0])
	assert.Equal(t, "Farina", rows[1][0])
	assert.Equal(t, "5", rows[1][3])
	assert.Equal(t, "sì", rows[1][5])
	assert.Equal(t, "Sale", rows[2][0])
}
