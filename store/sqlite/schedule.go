package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/backoffice/availability"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/shift"
)

// =============================================================================
// AVAILABILITY (availability.Store)
// =============================================================================

func (s *Store) ListAvailability(ctx context.Context, f availability.Filter) ([]availability.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := personAreaWhere(f.Person, f.Area)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, person, area, day, created_at FROM availability`+where+` ORDER BY day, person, area`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Entry
	for rows.Next() {
		var e availability.Entry
		var area, day, createdAt string
		if err := rows.Scan(&e.ID, &e.Person, &area, &day, &createdAt); err != nil {
			return nil, err
		}
		if e.Day, err = generic.ParseDay(day); err != nil {
			return nil, fmt.Errorf("availability %s: %w", e.ID, err)
		}
		e.Area = generic.Area(area)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertAvailability(ctx context.Context, e availability.Entry) error {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO availability (id, person, area, day, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Person, string(e.Area), e.Day.String(), formatTime(e.CreatedAt),
	)
	s.mu.Unlock()
	if err != nil {
		return mapWriteError(err, "availability "+e.Person+"/"+e.Day.String())
	}
	s.publish(generic.CollectionAvailability, generic.ChangeAdded, e.ID)
	return nil
}

func (s *Store) DeleteAvailability(ctx context.Context, id string) error {
	s.mu.Lock()
	err := deleteByID(ctx, s.db, "availability", generic.CollectionAvailability, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(generic.CollectionAvailability, generic.ChangeRemoved, id)
	return nil
}

// ClearAvailability deletes every row in one transaction and publishes one
// removal per deleted id.
func (s *Store) ClearAvailability(ctx context.Context) (int, error) {
	s.mu.Lock()
	ids, err := s.clearAvailabilityLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	changes := make([]generic.Change, len(ids))
	for i, id := range ids {
		changes[i] = generic.Change{Collection: generic.CollectionAvailability, Kind: generic.ChangeRemoved, ID: id, At: s.now()}
	}
	s.pub.Publish(changes...)
	return len(ids), nil
}

func (s *Store) clearAvailabilityLocked(ctx context.Context) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM availability`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability`); err != nil {
		return nil, fmt.Errorf("failed to clear availability: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// =============================================================================
// SHIFTS (shift.Store)
// =============================================================================

func (s *Store) InsertShift(ctx context.Context, sh shift.Shift) error {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shifts (id, person, area, start, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.Person, string(sh.Area), formatTime(sh.Start), formatTime(sh.CreatedAt), formatTime(sh.UpdatedAt),
	)
	s.mu.Unlock()
	if err != nil {
		return mapWriteError(err, "shift "+sh.ID)
	}
	s.publish(generic.CollectionShifts, generic.ChangeAdded, sh.ID)
	return nil
}

const shiftColumns = `id, person, area, start, created_at, updated_at`

func scanShift(row interface{ Scan(...any) error }) (shift.Shift, error) {
	var sh shift.Shift
	var area, start, createdAt, updatedAt string
	if err := row.Scan(&sh.ID, &sh.Person, &area, &start, &createdAt, &updatedAt); err != nil {
		return shift.Shift{}, err
	}
	sh.Area = generic.Area(area)
	sh.Start = parseTime(start)
	sh.CreatedAt = parseTime(createdAt)
	sh.UpdatedAt = parseTime(updatedAt)
	return sh, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return shift.Shift{}, generic.NotFound(generic.CollectionShifts, id)
	}
	return sh, err
}

func (s *Store) UpdateShift(ctx context.Context, sh shift.Shift) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE shifts SET person = ?, area = ?, start = ?, updated_at = ? WHERE id = ?`,
		sh.Person, string(sh.Area), formatTime(sh.Start), formatTime(sh.UpdatedAt), sh.ID,
	)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound(generic.CollectionShifts, sh.ID)
	}
	s.publish(generic.CollectionShifts, generic.ChangeModified, sh.ID)
	return nil
}

func (s *Store) DeleteShift(ctx context.Context, id string) error {
	s.mu.Lock()
	err := deleteByID(ctx, s.db, "shifts", generic.CollectionShifts, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(generic.CollectionShifts, generic.ChangeRemoved, id)
	return nil
}

func (s *Store) ListShifts(ctx context.Context, f shift.Filter) ([]shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := personAreaWhere(f.Person, f.Area)
	rows, err := s.db.QueryContext(ctx, `SELECT `+shiftColumns+` FROM shifts`+where+` ORDER BY start, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shift.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func personAreaWhere(person string, area generic.Area) (string, []any) {
	var where []string
	var args []any
	if person != "" {
		where = append(where, "person = ?")
		args = append(args, person)
	}
	if area != "" {
		where = append(where, "area = ?")
		args = append(args, string(area))
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}
