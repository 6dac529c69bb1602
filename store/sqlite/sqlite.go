/*
Package sqlite provides a SQLite-backed implementation of every store port.

PURPOSE:
  Persists the six collections (articles, stockMovements, requisitions,
  availability, shifts, scheduleConfig) and implements requisition.TxRunner
  so an approval commits its status flip and its order together.

INTERFACES IMPLEMENTED:
  stock.Store, stock.ArticleStore
  requisition.Store, requisition.TxRunner
  availability.Store
  shift.Store
  calendar.Store

KEY TABLES:
  articles:       catalog, keyed by name
  stock_movements: movement log, article/area snapshots, version column
  requisitions:   workflow documents, version column
  availability:   one row per (person, area, day)
  shifts:         one row per shift
  schedule_config: singleton row

INDEXES:
  - idx_availability_unique: one document per (person, area, day)
  - idx_movements_source_order: one open or received order per requisition
  - idx_movements_article: stock folds read by article

OPTIMISTIC VERSIONS:
  Updates on movements and requisitions are
    UPDATE ... SET version = version + 1 WHERE id = ? AND version = ?
  Zero affected rows on an existing id is ErrConcurrentModification.

CHANGE FEED:
  Every write publishes a generic.Change after it is durable: after the
  statement for single writes, after COMMIT for Run. A rolled-back
  transaction publishes nothing.

CONCURRENCY:
  Uses sync.RWMutex around a single connection. SQLite has one writer at a
  time anyway, and one connection keeps ":memory:" databases coherent.

WAL MODE:
  Opened with WAL so readers do not block the writer on file databases.

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - store/memory/memory.go: in-memory implementation with the same contract
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
)

// Store implements all storage ports using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	pub generic.Publisher
	now func() time.Time
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database. A nil pub drops changes.
func New(dbPath string, pub generic.Publisher) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if pub == nil {
		pub = generic.NopPublisher{}
	}
	store := &Store{db: db, pub: pub, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL,
		min_stock INTEGER NOT NULL DEFAULT 0,
		supplier TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL DEFAULT '0',
		area TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock_movements (
		id TEXT PRIMARY KEY,
		article TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		type TEXT NOT NULL CHECK (type IN ('ingress', 'egress', 'in_transit')),
		area TEXT NOT NULL,
		at TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		source_requisition TEXT,
		ordered_quantity INTEGER NOT NULL DEFAULT 0,
		received_at TEXT,
		created_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_movements_article
		ON stock_movements(article);
	CREATE INDEX IF NOT EXISTS idx_movements_at
		ON stock_movements(at);

	-- An approved requisition owns exactly one order.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_source_order
		ON stock_movements(source_requisition)
		WHERE source_requisition IS NOT NULL;

	CREATE TABLE IF NOT EXISTS requisitions (
		id TEXT PRIMARY KEY,
		article TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		area TEXT NOT NULL,
		requester TEXT NOT NULL,
		at TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		decided_by TEXT NOT NULL DEFAULT '',
		decided_at TEXT,
		movement_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_requisitions_status
		ON requisitions(status, at);

	CREATE TABLE IF NOT EXISTS availability (
		id TEXT PRIMARY KEY,
		person TEXT NOT NULL,
		area TEXT NOT NULL,
		day TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_availability_unique
		ON availability(person, area, day);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		person TEXT NOT NULL,
		area TEXT NOT NULL,
		start TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shifts_person ON shifts(person, start);
	CREATE INDEX IF NOT EXISTS idx_shifts_area ON shifts(area, start);

	CREATE TABLE IF NOT EXISTS schedule_config (
		id TEXT PRIMARY KEY,
		week_start TEXT NOT NULL,
		week_count INTEGER NOT NULL CHECK (week_count > 0),
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULE CONFIG (calendar.Store)
// =============================================================================

func (s *Store) ScheduleConfig(ctx context.Context) (calendar.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var weekStart string
	var cfg calendar.Config
	err := s.db.QueryRowContext(ctx,
		`SELECT week_start, week_count FROM schedule_config WHERE id = ?`, calendar.ConfigID,
	).Scan(&weekStart, &cfg.WeekCount)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Config{}, generic.NotFound(generic.CollectionScheduleConfig, calendar.ConfigID)
	}
	if err != nil {
		return calendar.Config{}, err
	}
	if cfg.WeekStart, err = generic.ParseDay(weekStart); err != nil {
		return calendar.Config{}, err
	}
	return cfg, nil
}

func (s *Store) SaveScheduleConfig(ctx context.Context, cfg calendar.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM schedule_config WHERE id = ?`, calendar.ConfigID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.mu.Unlock()
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedule_config (id, week_start, week_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			week_start = excluded.week_start,
			week_count = excluded.week_count,
			updated_at = excluded.updated_at
	`, calendar.ConfigID, cfg.WeekStart.String(), cfg.WeekCount, formatTime(s.now()))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to save schedule config: %w", err)
	}

	kind := generic.ChangeAdded
	if exists {
		kind = generic.ChangeModified
	}
	s.publish(generic.CollectionScheduleConfig, kind, calendar.ConfigID)
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// resetOrder lists every table with its key column, dependents first.
var resetOrder = []struct {
	table, key string
	c          generic.Collection
}{
	{"stock_movements", "id", generic.CollectionStockMovements},
	{"requisitions", "id", generic.CollectionRequisitions},
	{"availability", "id", generic.CollectionAvailability},
	{"shifts", "id", generic.CollectionShifts},
	{"articles", "name", generic.CollectionArticles},
	{"schedule_config", "id", generic.CollectionScheduleConfig},
}

// Reset clears all data (for testing/demo) in one transaction, then
// publishes one removal per deleted document.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	changes, err := s.resetLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.pub.Publish(changes...)
	return nil
}

func (s *Store) resetLocked(ctx context.Context) ([]generic.Change, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	var changes []generic.Change
	now := s.now()
	for _, t := range resetOrder {
		ids, err := selectKeys(ctx, tx, t.table, t.key)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.table); err != nil {
			return nil, fmt.Errorf("failed to reset %s: %w", t.table, err)
		}
		for _, id := range ids {
			changes = append(changes, generic.Change{Collection: t.c, Kind: generic.ChangeRemoved, ID: id, At: now})
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reset: %w", err)
	}
	return changes, nil
}

func selectKeys(ctx context.Context, q querier, table, key string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+key+" FROM "+table+" ORDER BY "+key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) publish(c generic.Collection, kind generic.ChangeKind, id string) {
	s.pub.Publish(generic.Change{Collection: c, Kind: kind, ID: id, At: s.now()})
}

// timeLayout is fixed-width so text order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// mapWriteError turns driver constraint failures into domain errors.
func mapWriteError(err error, what string) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", generic.ErrDuplicate, what)
	}
	return fmt.Errorf("failed to write %s: %w", what, err)
}

// checkVersioned interprets the result of a version-guarded UPDATE.
func checkVersioned(ctx context.Context, q querier, res sql.Result, table string, c generic.Collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var one int
	err = q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.NotFound(c, id)
	}
	if err != nil {
		return err
	}
	return generic.ErrConcurrentModification
}

func deleteByID(ctx context.Context, q querier, table string, c generic.Collection, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.NotFound(c, id)
	}
	return nil
}
