package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/requisition"
)

// =============================================================================
// REQUISITIONS (requisition.Store)
// =============================================================================

func (s *Store) InsertRequisition(ctx context.Context, r requisition.Requisition) error {
	s.mu.Lock()
	err := insertRequisition(ctx, s.db, r)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(generic.CollectionRequisitions, generic.ChangeAdded, r.ID)
	return nil
}

func insertRequisition(ctx context.Context, q querier, r requisition.Requisition) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO requisitions
		(id, article, quantity, area, requester, at, status, decided_by, decided_at, movement_id, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Article, r.Quantity, string(r.Area), r.Requester, formatTime(r.At), string(r.Status),
		r.DecidedBy, nullTime(r.DecidedAt), r.MovementID, r.Version,
	)
	return mapWriteError(err, "requisition "+r.ID)
}

const requisitionColumns = `id, article, quantity, area, requester, at, status, decided_by, decided_at, movement_id, version`

func scanRequisition(row interface{ Scan(...any) error }) (requisition.Requisition, error) {
	var r requisition.Requisition
	var area, at, status string
	var decidedAt sql.NullString
	err := row.Scan(&r.ID, &r.Article, &r.Quantity, &area, &r.Requester, &at, &status,
		&r.DecidedBy, &decidedAt, &r.MovementID, &r.Version)
	if err != nil {
		return requisition.Requisition{}, err
	}
	r.Area = generic.Area(area)
	r.At = parseTime(at)
	r.Status = requisition.Status(status)
	r.DecidedAt = parseNullTime(decidedAt)
	return r, nil
}

func (s *Store) GetRequisition(ctx context.Context, id string) (requisition.Requisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequisition(ctx, s.db, id)
}

func getRequisition(ctx context.Context, q querier, id string) (requisition.Requisition, error) {
	r, err := scanRequisition(q.QueryRowContext(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return requisition.Requisition{}, generic.NotFound(generic.CollectionRequisitions, id)
	}
	return r, err
}

func (s *Store) UpdateRequisition(ctx context.Context, r requisition.Requisition) error {
	s.mu.Lock()
	err := updateRequisition(ctx, s.db, r)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(generic.CollectionRequisitions, generic.ChangeModified, r.ID)
	return nil
}

func updateRequisition(ctx context.Context, q querier, r requisition.Requisition) error {
	res, err := q.ExecContext(ctx, `
		UPDATE requisitions SET
			article = ?, quantity = ?, area = ?, requester = ?, at = ?, status = ?,
			decided_by = ?, decided_at = ?, movement_id = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`,
		r.Article, r.Quantity, string(r.Area), r.Requester, formatTime(r.At), string(r.Status),
		r.DecidedBy, nullTime(r.DecidedAt), r.MovementID,
		r.ID, r.Version,
	)
	if err != nil {
		return mapWriteError(err, "requisition "+r.ID)
	}
	return checkVersioned(ctx, q, res, "requisitions", generic.CollectionRequisitions, r.ID)
}

func (s *Store) DeleteRequisition(ctx context.Context, id string) error {
	s.mu.Lock()
	err := deleteByID(ctx, s.db, "requisitions", generic.CollectionRequisitions, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(generic.CollectionRequisitions, generic.ChangeRemoved, id)
	return nil
}

func (s *Store) ListRequisitions(ctx context.Context, f requisition.Filter) ([]requisition.Requisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequisitions(ctx, s.db, f)
}

func listRequisitions(ctx context.Context, q querier, f requisition.Filter) ([]requisition.Requisition, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Requester != "" {
		where = append(where, "requester = ?")
		args = append(args, f.Requester)
	}
	if len(f.Areas) > 0 {
		areas := selectedAreas(f.Areas)
		if len(areas) == 0 {
			return nil, nil
		}
		ph := make([]string, len(areas))
		for i, a := range areas {
			ph[i] = "?"
			args = append(args, a)
		}
		where = append(where, "area IN ("+strings.Join(ph, ", ")+")")
	}

	query := `SELECT ` + requisitionColumns + ` FROM requisitions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY at, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []requisition.Requisition
	for rows.Next() {
		r, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// selectedAreas returns the set members in a stable order.
func selectedAreas(set generic.AreaSet) []string {
	var out []string
	for a, on := range set {
		if on {
			out = append(out, string(a))
		}
	}
	sort.Strings(out)
	return out
}
