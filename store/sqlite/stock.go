package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/stock"
)

// =============================================================================
// ARTICLES (stock.ArticleStore)
// =============================================================================

func (s *Store) SaveArticle(ctx context.Context, a stock.Article) error {
	s.mu.Lock()
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE name = ?`, a.Name).Scan(&one)
	existed := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.mu.Unlock()
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (name, description, unit, min_stock, supplier, unit_price, area)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			unit = excluded.unit,
			min_stock = excluded.min_stock,
			supplier = excluded.supplier,
			unit_price = excluded.unit_price,
			area = excluded.area
	`, a.Name, a.Description, a.Unit, a.MinStock, a.Supplier, a.UnitPrice.String(), string(a.Area))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}

	kind := generic.ChangeAdded
	if existed {
		kind = generic.ChangeModified
	}
	s.publish(generic.CollectionArticles, kind, a.Name)
	return nil
}

const articleColumns = `name, description, unit, min_stock, supplier, unit_price, area`

func scanArticle(row interface{ Scan(...any) error }) (stock.Article, error) {
	var a stock.Article
	var price, area string
	if err := row.Scan(&a.Name, &a.Description, &a.Unit, &a.MinStock, &a.Supplier, &price, &area); err != nil {
		return stock.Article{}, err
	}
	a.Area = generic.Area(area)
	p, err := decimal.NewFromString(price)
	if err != nil {
		return stock.Article{}, fmt.Errorf("article %q: bad unit price %q: %w", a.Name, price, err)
	}
	a.UnitPrice = p
	return a, nil
}

func (s *Store) GetArticle(ctx context.Context, name string) (stock.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := scanArticle(s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Article{}, generic.NotFound(generic.CollectionArticles, name)
	}
	return a, err
}

func (s *Store) ListArticles(ctx context.Context) ([]stock.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteArticle(ctx context.Context, name string) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE name = ?`, name)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound(generic.CollectionArticles, name)
	}
	s.publish(generic.CollectionArticles, generic.ChangeRemoved, name)
	return nil
}

// =============================================================================
// STOCK MOVEMENTS (stock.Store)
// =============================================================================

func (s *Store) InsertMovement(ctx context.Context, m stock.Movement) error {
	s.mu.Lock()
	err := insertMovement(ctx, s.db, m)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(generic.CollectionStockMovements, generic.ChangeAdded, m.ID)
	return nil
}

func insertMovement(ctx context.Context, q querier, m stock.Movement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_movements
		(id, article, quantity, type, area, at, archived, source_requisition,
		 ordered_quantity, received_at, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Article, m.Quantity, string(m.Type), string(m.Area), formatTime(m.At),
		m.Archived, nullString(m.SourceRequisition), m.OrderedQuantity, nullTime(m.ReceivedAt),
		formatTime(m.CreatedAt), m.Version,
	)
	return mapWriteError(err, "movement "+m.ID)
}

func (s *Store) GetMovement(ctx context.Context, id string) (stock.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMovement(ctx, s.db, id)
}

const movementColumns = `id, article, quantity, type, area, at, archived, source_requisition,
	ordered_quantity, received_at, created_at, version`

func scanMovement(row interface{ Scan(...any) error }) (stock.Movement, error) {
	var m stock.Movement
	var typ, area, at, createdAt string
	var source, receivedAt sql.NullString
	err := row.Scan(&m.ID, &m.Article, &m.Quantity, &typ, &area, &at, &m.Archived, &source,
		&m.OrderedQuantity, &receivedAt, &createdAt, &m.Version)
	if err != nil {
		return stock.Movement{}, err
	}
	m.Type = stock.MovementType(typ)
	m.Area = generic.Area(area)
	m.At = parseTime(at)
	m.SourceRequisition = source.String
	m.ReceivedAt = parseNullTime(receivedAt)
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

func getMovement(ctx context.Context, q querier, id string) (stock.Movement, error) {
	m, err := scanMovement(q.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Movement{}, generic.NotFound(generic.CollectionStockMovements, id)
	}
	return m, err
}

func (s *Store) UpdateMovement(ctx context.Context, m stock.Movement) error {
	s.mu.Lock()
	err := updateMovement(ctx, s.db, m)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(generic.CollectionStockMovements, generic.ChangeModified, m.ID)
	return nil
}

func updateMovement(ctx context.Context, q querier, m stock.Movement) error {
	res, err := q.ExecContext(ctx, `
		UPDATE stock_movements SET
			article = ?, quantity = ?, type = ?, area = ?, at = ?, archived = ?,
			source_requisition = ?, ordered_quantity = ?, received_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`,
		m.Article, m.Quantity, string(m.Type), string(m.Area), formatTime(m.At), m.Archived,
		nullString(m.SourceRequisition), m.OrderedQuantity, nullTime(m.ReceivedAt),
		m.ID, m.Version,
	)
	if err != nil {
		return mapWriteError(err, "movement "+m.ID)
	}
	return checkVersioned(ctx, q, res, "stock_movements", generic.CollectionStockMovements, m.ID)
}

func (s *Store) ListMovements(ctx context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMovements(ctx, s.db, f)
}

func listMovements(ctx context.Context, q querier, f stock.MovementFilter) ([]stock.Movement, error) {
	var where []string
	var args []any
	if f.Article != "" {
		where = append(where, "article = ?")
		args = append(args, f.Article)
	}
	if f.ExcludeArchived {
		where = append(where, "archived = 0")
	}
	if len(f.Types) > 0 {
		ph := make([]string, len(f.Types))
		for i, t := range f.Types {
			ph[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(ph, ", ")+")")
	}

	query := `SELECT ` + movementColumns + ` FROM stock_movements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY at, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
