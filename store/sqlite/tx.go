package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/backoffice/availability"
	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/requisition"
	"github.com/warp/backoffice/shift"
	"github.com/warp/backoffice/stock"
)

// =============================================================================
// TRANSACTIONS (requisition.TxRunner)
// =============================================================================

// Run executes fn inside one SQL transaction. The stores handed to fn write
// through that transaction; their changes are published only after COMMIT.
func (s *Store) Run(ctx context.Context, fn func(reqs requisition.Store, movements stock.Store) error) error {
	s.mu.Lock()
	changes, err := s.runLocked(ctx, fn)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.pub.Publish(changes...)
	return nil
}

func (s *Store) runLocked(ctx context.Context, fn func(reqs requisition.Store, movements stock.Store) error) ([]generic.Change, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txView{tx: sqlTx, parent: s}
	if err := fn(view, view); err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return view.changes, nil
}

// txView binds the requisition and movement ports to one *sql.Tx.
type txView struct {
	tx      *sql.Tx
	parent  *Store
	changes []generic.Change
}

func (tv *txView) record(c generic.Collection, kind generic.ChangeKind, id string) {
	tv.changes = append(tv.changes, generic.Change{Collection: c, Kind: kind, ID: id, At: tv.parent.now()})
}

func (tv *txView) InsertMovement(ctx context.Context, m stock.Movement) error {
	if err := insertMovement(ctx, tv.tx, m); err != nil {
		return err
	}
	tv.record(generic.CollectionStockMovements, generic.ChangeAdded, m.ID)
	return nil
}

func (tv *txView) GetMovement(ctx context.Context, id string) (stock.Movement, error) {
	return getMovement(ctx, tv.tx, id)
}

func (tv *txView) UpdateMovement(ctx context.Context, m stock.Movement) error {
	if err := updateMovement(ctx, tv.tx, m); err != nil {
		return err
	}
	tv.record(generic.CollectionStockMovements, generic.ChangeModified, m.ID)
	return nil
}

func (tv *txView) ListMovements(ctx context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	return listMovements(ctx, tv.tx, f)
}

func (tv *txView) InsertRequisition(ctx context.Context, r requisition.Requisition) error {
	if err := insertRequisition(ctx, tv.tx, r); err != nil {
		return err
	}
	tv.record(generic.CollectionRequisitions, generic.ChangeAdded, r.ID)
	return nil
}

func (tv *txView) GetRequisition(ctx context.Context, id string) (requisition.Requisition, error) {
	return getRequisition(ctx, tv.tx, id)
}

func (tv *txView) UpdateRequisition(ctx context.Context, r requisition.Requisition) error {
	if err := updateRequisition(ctx, tv.tx, r); err != nil {
		return err
	}
	tv.record(generic.CollectionRequisitions, generic.ChangeModified, r.ID)
	return nil
}

func (tv *txView) DeleteRequisition(ctx context.Context, id string) error {
	if err := deleteByID(ctx, tv.tx, "requisitions", generic.CollectionRequisitions, id); err != nil {
		return err
	}
	tv.record(generic.CollectionRequisitions, generic.ChangeRemoved, id)
	return nil
}

func (tv *txView) ListRequisitions(ctx context.Context, f requisition.Filter) ([]requisition.Requisition, error) {
	return listRequisitions(ctx, tv.tx, f)
}

// Compile-time interface checks.
var (
	_ stock.Store          = (*Store)(nil)
	_ stock.ArticleStore   = (*Store)(nil)
	_ requisition.Store    = (*Store)(nil)
	_ requisition.TxRunner = (*Store)(nil)
	_ availability.Store   = (*Store)(nil)
	_ shift.Store          = (*Store)(nil)
	_ calendar.Store       = (*Store)(nil)
	_ stock.Store          = (*txView)(nil)
	_ requisition.Store    = (*txView)(nil)
)
