package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/availability"
	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/requisition"
	"github.com/warp/backoffice/shift"
	"github.com/warp/backoffice/stock"
	"github.com/warp/backoffice/store/sqlite"
)

var (
	t0      = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	manager = generic.Actor{Name: "Giulia", Role: generic.RoleManager, Area: generic.AreaCucina}
)

type recorder struct{ changes []generic.Change }

func (r *recorder) Publish(changes ...generic.Change) { r.changes = append(r.changes, changes...) }

func newStore(t *testing.T, pub generic.Publisher) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "backoffice.db"), pub)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func farina() stock.Article {
	return stock.Article{
		Name: "Farina", Unit: "kg", MinStock: 10, Supplier: "Molino Rossi",
		UnitPrice: decimal.RequireFromString("0.90"), Area: generic.AreaCucina,
	}
}

// =============================================================================
// ARTICLES AND MOVEMENTS
// =============================================================================

func TestArticles_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newStore(t, rec)

	require.NoError(t, s.SaveArticle(ctx, farina()))
	a := farina()
	a.MinStock = 15
	require.NoError(t, s.SaveArticle(ctx, a))

	got, err := s.GetArticle(ctx, "Farina")
	require.NoError(t, err)
	assert.Equal(t, 15, got.MinStock)
	assert.True(t, decimal.RequireFromString("0.9").Equal(got.UnitPrice))

	require.Len(t, rec.changes, 2)
	assert.Equal(t, generic.ChangeAdded, rec.changes[0].Kind)
	assert.Equal(t, generic.ChangeModified, rec.changes[1].Kind)

	require.NoError(t, s.DeleteArticle(ctx, "Farina"))
	_, err = s.GetArticle(ctx, "Farina")
	assert.True(t, generic.IsNotFound(err))
	assert.True(t, generic.IsNotFound(s.DeleteArticle(ctx, "Farina")))
}

func TestMovements_LedgerFold(t *testing.T) {
	// GIVEN: the ledger on SQLite
	// WHEN: ingress 20, egress 5, in-transit 10
	// THEN: stock is 15 (the order does not count) and survives a reopen
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "backoffice.db")
	s, err := sqlite.New(path, nil)
	require.NoError(t, err)

	ledger := stock.NewLedger(s, s)
	require.NoError(t, ledger.SaveArticle(ctx, farina()))
	for _, m := range []stock.Movement{
		{Article: "Farina", Quantity: 20, Type: stock.Ingress},
		{Article: "Farina", Quantity: 5, Type: stock.Egress},
		{Article: "Farina", Quantity: 10, Type: stock.InTransit},
	} {
		_, err := ledger.RecordMovement(ctx, m)
		require.NoError(t, err)
	}
	got, err := ledger.CurrentStock(ctx, "Farina")
	require.NoError(t, err)
	assert.Equal(t, 15, got)
	require.NoError(t, s.Close())

	s, err = sqlite.New(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err = stock.NewLedger(s, s).CurrentStock(ctx, "Farina")
	require.NoError(t, err)
	assert.Equal(t, 15, got)
}

func TestMovements_OrderedByTime(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)

	// Sub-second precision must still order correctly.
	for i, at := range []time.Time{t0.Add(time.Second), t0.Add(500 * time.Millisecond), t0} {
		require.NoError(t, s.InsertMovement(ctx, stock.Movement{
			ID: string(rune('a' + i)), Article: "Farina", Quantity: 1, Type: stock.Ingress,
			Area: generic.AreaCucina, At: at, CreatedAt: at, Version: 1,
		}))
	}
	ms, err := s.ListMovements(ctx, stock.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{ms[0].ID, ms[1].ID, ms[2].ID})
	assert.True(t, ms[1].At.Equal(t0.Add(500*time.Millisecond)))
}

func TestMovements_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	m := stock.Movement{
		ID: "m1", Article: "Farina", Quantity: 10, Type: stock.InTransit,
		Area: generic.AreaCucina, At: t0, CreatedAt: t0, Version: 1,
	}
	require.NoError(t, s.InsertMovement(ctx, m))

	m.Quantity = 9
	require.NoError(t, s.UpdateMovement(ctx, m))

	// Stale version.
	m.Quantity = 8
	assert.ErrorIs(t, s.UpdateMovement(ctx, m), generic.ErrConcurrentModification)

	got, err := s.GetMovement(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Quantity)
	assert.Equal(t, 2, got.Version)

	missing := m
	missing.ID = "nope"
	assert.True(t, generic.IsNotFound(s.UpdateMovement(ctx, missing)))
}

func TestMovements_OneOrderPerRequisition(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	order := stock.Movement{
		ID: "m1", Article: "Farina", Quantity: 10, Type: stock.InTransit, Area: generic.AreaCucina,
		At: t0, CreatedAt: t0, SourceRequisition: "r1", OrderedQuantity: 10, Version: 1,
	}
	require.NoError(t, s.InsertMovement(ctx, order))

	order.ID = "m2"
	assert.ErrorIs(t, s.InsertMovement(ctx, order), generic.ErrDuplicate)

	// Movements without a source are unconstrained.
	plain := stock.Movement{ID: "m3", Article: "Farina", Quantity: 1, Type: stock.Ingress, Area: generic.AreaCucina, At: t0, CreatedAt: t0, Version: 1}
	require.NoError(t, s.InsertMovement(ctx, plain))
	plain.ID = "m4"
	require.NoError(t, s.InsertMovement(ctx, plain))
}

// =============================================================================
// REQUISITIONS AND TRANSACTIONS
// =============================================================================

func newWorkflow(t *testing.T, s *sqlite.Store) *requisition.Workflow {
	t.Helper()
	ledger := stock.NewLedger(s, s)
	require.NoError(t, ledger.SaveArticle(context.Background(), farina()))
	return requisition.NewWorkflow(s, ledger).WithTxRunner(s)
}

func TestRequisitions_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	for i, r := range []requisition.Requisition{
		{ID: "r1", Article: "Farina", Quantity: 1, Area: generic.AreaCucina, Requester: "Marco", Status: requisition.StatusPending},
		{ID: "r2", Article: "Vino", Quantity: 1, Area: generic.AreaSala, Requester: "Sara", Status: requisition.StatusPending},
		{ID: "r3", Article: "Farina", Quantity: 1, Area: generic.AreaCucina, Requester: "Sara", Status: requisition.StatusRejected},
	} {
		r.At = t0.Add(time.Duration(i) * time.Minute)
		r.Version = 1
		require.NoError(t, s.InsertRequisition(ctx, r))
	}

	tests := []struct {
		name   string
		filter requisition.Filter
		want   []string
	}{
		{"all", requisition.Filter{}, []string{"r1", "r2", "r3"}},
		{"pending", requisition.Filter{Status: requisition.StatusPending}, []string{"r1", "r2"}},
		{"cucina", requisition.Filter{Areas: generic.NewAreaSet(generic.AreaCucina)}, []string{"r1", "r3"}},
		{"both areas", requisition.Filter{Areas: generic.NewAreaSet(generic.AreaCucina, generic.AreaSala)}, []string{"r1", "r2", "r3"}},
		{"requester", requisition.Filter{Requester: "Sara", Status: requisition.StatusPending}, []string{"r2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := s.ListRequisitions(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, r := range rs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRun_ApproveCommitsBothDocuments(t *testing.T) {
	// GIVEN: a pending requisition on SQLite with a TxRunner
	// WHEN: approved
	// THEN: status, movement link and InTransit order all persisted,
	//       and changes are published after commit
	ctx := context.Background()
	rec := &recorder{}
	s := newStore(t, rec)
	wf := newWorkflow(t, s)

	id, err := wf.Create(ctx, requisition.Draft{Article: "Farina", Quantity: 20, Requester: "Marco"})
	require.NoError(t, err)
	rec.changes = nil

	res := wf.Approve(ctx, []string{id}, manager)
	require.Len(t, res.Approved, 1)
	assert.Empty(t, res.Failed)

	r, err := s.GetRequisition(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, requisition.StatusApproved, r.Status)
	assert.Equal(t, 2, r.Version)
	require.NotNil(t, r.DecidedAt)

	m, err := s.GetMovement(ctx, r.MovementID)
	require.NoError(t, err)
	assert.Equal(t, stock.InTransit, m.Type)
	assert.Equal(t, id, m.SourceRequisition)
	assert.Equal(t, 20, m.Quantity)

	var collections []generic.Collection
	for _, c := range rec.changes {
		collections = append(collections, c.Collection)
	}
	assert.ElementsMatch(t, []generic.Collection{generic.CollectionStockMovements, generic.CollectionRequisitions}, collections)

	again := wf.Approve(ctx, []string{id}, manager)
	assert.Equal(t, []string{id}, again.Skipped)
	orders, err := s.ListMovements(ctx, stock.MovementFilter{Types: []stock.MovementType{stock.InTransit}})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestRun_RollbackPublishesNothing(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newStore(t, rec)
	require.NoError(t, s.InsertRequisition(ctx, requisition.Requisition{
		ID: "r1", Article: "Farina", Quantity: 5, Area: generic.AreaCucina,
		Requester: "Marco", At: t0, Status: requisition.StatusPending, Version: 1,
	}))
	rec.changes = nil

	boom := errors.New("boom")
	err := s.Run(ctx, func(reqs requisition.Store, movements stock.Store) error {
		r, err := reqs.GetRequisition(ctx, "r1")
		if err != nil {
			return err
		}
		r.Status = requisition.StatusApproved
		if err := reqs.UpdateRequisition(ctx, r); err != nil {
			return err
		}
		if err := movements.InsertMovement(ctx, stock.Movement{
			ID: "m1", Article: "Farina", Quantity: 5, Type: stock.InTransit, Area: generic.AreaCucina,
			At: t0, CreatedAt: t0, SourceRequisition: "r1", Version: 1,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rec.changes)

	r, err := s.GetRequisition(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, requisition.StatusPending, r.Status)
	assert.Equal(t, 1, r.Version)
	_, err = s.GetMovement(ctx, "m1")
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// AVAILABILITY, SHIFTS, SCHEDULE
// =============================================================================

func TestAvailability_UniqueTriple(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	day, err := generic.ParseDay("2024-01-03")
	require.NoError(t, err)

	e := availability.Entry{ID: "a1", Person: "Anna", Area: generic.AreaSala, Day: day, CreatedAt: t0}
	require.NoError(t, s.InsertAvailability(ctx, e))
	e.ID = "a2"
	assert.ErrorIs(t, s.InsertAvailability(ctx, e), generic.ErrDuplicate)

	e.Area = generic.AreaCucina
	require.NoError(t, s.InsertAvailability(ctx, e))

	got, err := s.ListAvailability(ctx, availability.Filter{Person: "Anna", Area: generic.AreaSala})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day, got[0].Day)
}

func TestAvailability_RegisterIdempotentAndClear(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newStore(t, rec)
	reg := availability.NewRegister(s)

	d1, _ := generic.ParseDay("2024-01-01")
	days := []generic.Day{d1, d1.AddDays(2), d1.AddDays(4)}

	diff, err := reg.SetAvailability(ctx, "Anna", generic.AreaSala, days)
	require.NoError(t, err)
	assert.Equal(t, 3, diff.Added)

	rec.changes = nil
	diff, err = reg.SetAvailability(ctx, "Anna", generic.AreaSala, days)
	require.NoError(t, err)
	assert.Zero(t, diff.Writes())
	assert.Empty(t, rec.changes)

	n, err := reg.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, rec.changes, 3)
}

func TestShifts_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, nil)
	board := shift.NewBoard(s, time.UTC)

	id, err := board.Assign(ctx, "Luca", generic.AreaSala, t0)
	require.NoError(t, err)
	_, err = board.Assign(ctx, "Anna", generic.AreaSala, t0.Add(-time.Hour))
	require.NoError(t, err)

	require.NoError(t, board.Reassign(ctx, id, "Luca", generic.AreaCucina, t0.Add(2*time.Hour)))
	got, err := board.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generic.AreaCucina, got.Area)
	assert.True(t, got.Start.Equal(t0.Add(2*time.Hour)))

	sala, err := s.ListShifts(ctx, shift.Filter{Area: generic.AreaSala})
	require.NoError(t, err)
	require.Len(t, sala, 1)
	assert.Equal(t, "Anna", sala[0].Person)

	require.NoError(t, board.Unassign(ctx, id))
	assert.True(t, generic.IsNotFound(s.UpdateShift(ctx, got)))
}

func TestScheduleConfig(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newStore(t, rec)

	_, err := s.ScheduleConfig(ctx)
	assert.True(t, generic.IsNotFound(err))

	cfg, err := calendar.Parse("2024-01-01", 2)
	require.NoError(t, err)
	require.NoError(t, s.SaveScheduleConfig(ctx, cfg))
	cfg.WeekCount = 4
	require.NoError(t, s.SaveScheduleConfig(ctx, cfg))

	got, err := s.ScheduleConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	require.Len(t, rec.changes, 2)
	assert.Equal(t, generic.ChangeAdded, rec.changes[0].Kind)
	assert.Equal(t, generic.ChangeModified, rec.changes[1].Kind)

	assert.ErrorIs(t, s.SaveScheduleConfig(ctx, calendar.Config{WeekStart: cfg.WeekStart}), generic.ErrInvalidConfig)
}

func TestReset_PublishesRemovals(t *testing.T) {
	ctx := context.Background()
	bus := generic.NewBus()
	s := newStore(t, bus)

	ledger := stock.NewLedger(s, s)
	require.NoError(t, ledger.SaveArticle(ctx, farina()))
	_, err := ledger.RecordMovement(ctx, stock.Movement{Article: "Farina", Quantity: 5, Type: stock.Ingress})
	require.NoError(t, err)
	require.NoError(t, s.InsertRequisition(ctx, requisition.Requisition{
		ID: "r1", Article: "Farina", Quantity: 5, Area: generic.AreaCucina,
		Requester: "Marco", At: t0, Status: requisition.StatusPending, Version: 1,
	}))

	view := stock.NewInventoryView(ctx, ledger, bus)
	defer view.Close()
	require.Len(t, view.Levels(nil), 1)

	var removed []generic.Change
	defer bus.SubscribeAll(func(c generic.Change) { removed = append(removed, c) })()

	// WHEN: everything is reset
	require.NoError(t, s.Reset(ctx))

	// THEN: one removal per document, and subscribers have caught up
	byCollection := map[generic.Collection][]string{}
	for _, c := range removed {
		assert.Equal(t, generic.ChangeRemoved, c.Kind)
		byCollection[c.Collection] = append(byCollection[c.Collection], c.ID)
	}
	assert.Len(t, byCollection[generic.CollectionStockMovements], 1)
	assert.Equal(t, []string{"r1"}, byCollection[generic.CollectionRequisitions])
	assert.Equal(t, []string{"Farina"}, byCollection[generic.CollectionArticles])
	assert.Empty(t, view.Levels(nil))

	arts, err := s.ListArticles(ctx)
	require.NoError(t, err)
	assert.Empty(t, arts)
}
