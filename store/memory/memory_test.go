package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/availability"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/requisition"
	"github.com/warp/backoffice/stock"
	"github.com/warp/backoffice/store/memory"
)

type recorder struct{ changes []generic.Change }

func (r *recorder) Publish(changes ...generic.Change) { r.changes = append(r.changes, changes...) }

var t0 = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func pending(id string) requisition.Requisition {
	return requisition.Requisition{
		ID: id, Article: "Farina", Quantity: 5, Area: generic.AreaCucina,
		Requester: "Marco", At: t0, Status: requisition.StatusPending, Version: 1,
	}
}

func order(id, source string) stock.Movement {
	return stock.Movement{
		ID: id, Article: "Farina", Quantity: 5, Type: stock.InTransit, Area: generic.AreaCucina,
		At: t0, CreatedAt: t0, SourceRequisition: source, Version: 1,
	}
}

// approveIn flips r1 to approved and inserts its order inside one Run.
func approveIn(ctx context.Context, s *memory.Store, fail error) error {
	return s.Run(ctx, func(reqs requisition.Store, movements stock.Store) error {
		r, err := reqs.GetRequisition(ctx, "r1")
		if err != nil {
			return err
		}
		r.Status = requisition.StatusApproved
		if err := reqs.UpdateRequisition(ctx, r); err != nil {
			return err
		}
		if err := movements.InsertMovement(ctx, order("m1", "r1")); err != nil {
			return err
		}
		return fail
	})
}

func TestRun_CommitPublishesAfterUnlock(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := memory.New(rec)
	require.NoError(t, s.InsertRequisition(ctx, pending("r1")))
	rec.changes = nil

	// WHEN: the pair commits
	require.NoError(t, approveIn(ctx, s, nil))

	// THEN: both documents are visible and both changes are published in order
	r, err := s.GetRequisition(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, requisition.StatusApproved, r.Status)
	assert.Equal(t, 2, r.Version)

	_, err = s.GetMovement(ctx, "m1")
	require.NoError(t, err)

	require.Len(t, rec.changes, 2)
	assert.Equal(t, generic.CollectionRequisitions, rec.changes[0].Collection)
	assert.Equal(t, generic.CollectionStockMovements, rec.changes[1].Collection)
}

func TestRun_RollbackRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := memory.New(rec)
	require.NoError(t, s.InsertRequisition(ctx, pending("r1")))
	rec.changes = nil

	boom := errors.New("boom")
	assert.ErrorIs(t, approveIn(ctx, s, boom), boom)

	r, err := s.GetRequisition(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, requisition.StatusPending, r.Status)
	assert.Equal(t, 1, r.Version)

	_, err = s.GetMovement(ctx, "m1")
	assert.True(t, generic.IsNotFound(err))
	assert.Empty(t, rec.changes)
}

func TestMovements_VersionAndOneOrderPerRequisition(t *testing.T) {
	ctx := context.Background()
	s := memory.New(nil)
	require.NoError(t, s.InsertMovement(ctx, order("m1", "r1")))

	// A second order for the same requisition is refused, whatever its id.
	assert.ErrorIs(t, s.InsertMovement(ctx, order("m2", "r1")), generic.ErrDuplicate)
	assert.ErrorIs(t, s.InsertMovement(ctx, order("m1", "")), generic.ErrDuplicate)

	m, err := s.GetMovement(ctx, "m1")
	require.NoError(t, err)
	stale := m

	m.Type = stock.Ingress
	require.NoError(t, s.UpdateMovement(ctx, m))
	assert.ErrorIs(t, s.UpdateMovement(ctx, stale), generic.ErrConcurrentModification)

	missing := order("nope", "")
	assert.True(t, generic.IsNotFound(s.UpdateMovement(ctx, missing)))
}

func TestAvailability_UniqueTripleAndClear(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := memory.New(rec)
	day := generic.MustParseDay("2024-01-10")

	require.NoError(t, s.InsertAvailability(ctx, availability.Entry{ID: "a1", Person: "Giulia", Area: generic.AreaSala, Day: day}))
	require.NoError(t, s.InsertAvailability(ctx, availability.Entry{ID: "a2", Person: "Giulia", Area: generic.AreaCucina, Day: day}))
	err := s.InsertAvailability(ctx, availability.Entry{ID: "a3", Person: "Giulia", Area: generic.AreaSala, Day: day})
	assert.ErrorIs(t, err, generic.ErrDuplicate)

	rec.changes = nil
	n, err := s.ClearAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, rec.changes, 2)

	left, err := s.ListAvailability(ctx, availability.Filter{})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRun_PanicRestoresAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := memory.New(rec)
	require.NoError(t, s.InsertRequisition(ctx, pending("r1")))
	rec.changes = nil

	// WHEN: fn panics after writing both documents
	assert.Panics(t, func() {
		_ = s.Run(ctx, func(reqs requisition.Store, movements stock.Store) error {
			r, _ := reqs.GetRequisition(ctx, "r1")
			r.Status = requisition.StatusApproved
			_ = reqs.UpdateRequisition(ctx, r)
			_ = movements.InsertMovement(ctx, order("m1", "r1"))
			panic("boom")
		})
	})

	// THEN: nothing was kept, nothing published, and the store still works
	r, err := s.GetRequisition(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, requisition.StatusPending, r.Status)
	_, err = s.GetMovement(ctx, "m1")
	assert.True(t, generic.IsNotFound(err))
	assert.Empty(t, rec.changes)

	require.NoError(t, approveIn(ctx, s, nil))
}

func TestListRequisitions_TiesOrderedByID(t *testing.T) {
	ctx := context.Background()
	s := memory.New(nil)
	for _, id := range []string{"r3", "r1", "r2"} {
		require.NoError(t, s.InsertRequisition(ctx, pending(id)))
	}
	ids := func(rs []requisition.Requisition) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.ID
		}
		return out
	}

	plain, err := s.ListRequisitions(ctx, requisition.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(plain))

	var inTx []requisition.Requisition
	require.NoError(t, s.Run(ctx, func(reqs requisition.Store, _ stock.Store) error {
		var err error
		inTx, err = reqs.ListRequisitions(ctx, requisition.Filter{})
		return err
	}))
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(inTx))
}
