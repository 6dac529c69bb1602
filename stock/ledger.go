package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/backoffice/generic"
)

// =============================================================================
// LEDGER - Stock movement service
// =============================================================================

// Ledger records movements and answers stock queries by folding the log.
//
// INVARIANTS:
//   - quantity > 0 on every movement
//   - only InTransit -> Ingress via ConfirmReceipt; no other type change
//   - archiving never changes quantity or type
type Ledger struct {
	store    Store
	articles ArticleStore

	Log zerolog.Logger
	Now func() time.Time

	// Loc is the venue timezone, used to bucket movements by calendar day.
	Loc *time.Location
}

func NewLedger(store Store, articles ArticleStore) *Ledger {
	return &Ledger{
		store:    store,
		articles: articles,
		Log:      zerolog.Nop(),
		Now:      time.Now,
		Loc:      time.UTC,
	}
}

// WithStore returns a copy of the ledger bound to s, typically a
// transaction-scoped store.
func (l *Ledger) WithStore(s Store) *Ledger {
	cp := *l
	cp.store = s
	return &cp
}

// =============================================================================
// WRITES
// =============================================================================

// RecordMovement appends one movement and returns its id. Zero ID, At and
// Area are filled in (Area from the article's current area).
func (l *Ledger) RecordMovement(ctx context.Context, m Movement) (string, error) {
	if m.Quantity <= 0 {
		return "", fmt.Errorf("%w: %d", generic.ErrInvalidQuantity, m.Quantity)
	}
	if !m.Type.Valid() {
		return "", &generic.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown movement type %q", m.Type)}
	}
	m.Article = strings.TrimSpace(m.Article)

	if m.Area == "" && m.Article != "" {
		a, err := l.articles.GetArticle(ctx, m.Article)
		switch {
		case err == nil:
			m.Area = a.Area
		case !generic.IsNotFound(err):
			return "", fmt.Errorf("resolving area for %q: %w", m.Article, err)
		}
	}

	now := l.Now()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.At.IsZero() {
		m.At = now
	}
	m.CreatedAt = now
	m.Archived = false
	m.Version = 1

	if err := generic.Validate(m); err != nil {
		return "", err
	}
	if err := l.store.InsertMovement(ctx, m); err != nil {
		return "", fmt.Errorf("recording movement: %w", err)
	}

	l.Log.Info().
		Str("movement_id", m.ID).
		Str("article", m.Article).
		Str("type", string(m.Type)).
		Int("quantity", m.Quantity).
		Str("area", string(m.Area)).
		Str("requisition_id", m.SourceRequisition).
		Msg("movement recorded")
	return m.ID, nil
}

// ConfirmReceipt turns an InTransit movement into Ingress with the delivered
// quantity. The ordered quantity is kept in OrderedQuantity.
// An unknown id or a movement that is not in transit is reported before the
// quantity is checked.
func (l *Ledger) ConfirmReceipt(ctx context.Context, id string, actual int) (Movement, error) {
	m, err := l.store.GetMovement(ctx, id)
	if err != nil {
		return Movement{}, err
	}
	if m.Type != InTransit {
		return Movement{}, fmt.Errorf("%w: %s is %s", generic.ErrNotInTransit, id, m.Type)
	}
	if actual <= 0 {
		return Movement{}, fmt.Errorf("%w: %d", generic.ErrInvalidQuantity, actual)
	}

	received := l.Now()
	updated := m
	updated.OrderedQuantity = m.Quantity
	updated.Quantity = actual
	updated.Type = Ingress
	updated.ReceivedAt = &received

	if err := l.store.UpdateMovement(ctx, updated); err != nil {
		// A concurrent receipt may have won; report what is stored now.
		if errors.Is(err, generic.ErrConcurrentModification) {
			if cur, gerr := l.store.GetMovement(ctx, id); gerr == nil && cur.Type != InTransit {
				return Movement{}, fmt.Errorf("%w: %s was received concurrently", generic.ErrNotInTransit, id)
			}
		}
		return Movement{}, fmt.Errorf("confirming receipt: %w", err)
	}
	updated.Version++

	l.Log.Info().
		Str("movement_id", id).
		Str("article", m.Article).
		Int("ordered", m.Quantity).
		Int("received", actual).
		Msg("receipt confirmed")
	return updated, nil
}

// Archive hides a movement from the operational view. Idempotent. Archived
// movements keep counting toward stock.
func (l *Ledger) Archive(ctx context.Context, id string) error {
	m, err := l.store.GetMovement(ctx, id)
	if err != nil {
		return err
	}
	if m.Type == InTransit {
		return &generic.TransitionError{ID: id, From: string(InTransit), Action: "archive"}
	}
	if m.Archived {
		return nil
	}
	m.Archived = true
	if err := l.store.UpdateMovement(ctx, m); err != nil {
		if errors.Is(err, generic.ErrConcurrentModification) {
			// Someone archived it first: same end state.
			if cur, gerr := l.store.GetMovement(ctx, id); gerr == nil && cur.Archived {
				return nil
			}
		}
		return fmt.Errorf("archiving movement: %w", err)
	}
	l.Log.Info().Str("movement_id", id).Str("article", m.Article).Msg("movement archived")
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) Movement(ctx context.Context, id string) (Movement, error) {
	return l.store.GetMovement(ctx, id)
}

// CurrentStock folds every counted movement for the article name.
func (l *Ledger) CurrentStock(ctx context.Context, article string) (int, error) {
	ms, err := l.store.ListMovements(ctx, MovementFilter{Article: article, Types: []MovementType{Ingress, Egress}})
	if err != nil {
		return 0, err
	}
	return StockOf(ms, article), nil
}

// LowStock compares current stock with the article's minimum. The article
// must exist in the catalog.
func (l *Ledger) LowStock(ctx context.Context, article string) (bool, error) {
	a, err := l.articles.GetArticle(ctx, article)
	if err != nil {
		return false, err
	}
	stock, err := l.CurrentStock(ctx, article)
	if err != nil {
		return false, err
	}
	return IsLow(stock, a), nil
}

// Status is CurrentStock and LowStock in one read of the log.
type Status struct {
	Article string `json:"article"`
	Stock   int    `json:"stock"`
	Low     bool   `json:"low"`
}

func (l *Ledger) Status(ctx context.Context, article string) (Status, error) {
	a, err := l.articles.GetArticle(ctx, article)
	if err != nil {
		return Status{}, err
	}
	stock, err := l.CurrentStock(ctx, article)
	if err != nil {
		return Status{}, err
	}
	return Status{Article: a.Name, Stock: stock, Low: IsLow(stock, a)}, nil
}

// ActiveMovements is the operational table: non-archived movements in the
// given areas, newest first.
func (l *Ledger) ActiveMovements(ctx context.Context, areas generic.AreaSet) ([]Movement, error) {
	ms, err := l.store.ListMovements(ctx, MovementFilter{ExcludeArchived: true})
	if err != nil {
		return nil, err
	}
	out := ms[:0]
	for _, m := range ms {
		if areas.Contains(m.Area) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

// InTransitOrders lists open orders placed within p.
func (l *Ledger) InTransitOrders(ctx context.Context, p generic.Period) ([]Movement, error) {
	return l.inPeriod(ctx, MovementFilter{Types: []MovementType{InTransit}}, p)
}

// History lists counted movements (archived included) within p.
func (l *Ledger) History(ctx context.Context, p generic.Period) ([]Movement, error) {
	return l.inPeriod(ctx, MovementFilter{Types: []MovementType{Ingress, Egress}}, p)
}

func (l *Ledger) inPeriod(ctx context.Context, f MovementFilter, p generic.Period) ([]Movement, error) {
	ms, err := l.store.ListMovements(ctx, f)
	if err != nil {
		return nil, err
	}
	out := ms[:0]
	for _, m := range ms {
		if p.ContainsTime(m.At, l.Loc) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Inventory is the per-article report for the given areas.
func (l *Ledger) Inventory(ctx context.Context, areas generic.AreaSet) ([]Level, error) {
	articles, err := l.articles.ListArticles(ctx)
	if err != nil {
		return nil, err
	}
	ms, err := l.store.ListMovements(ctx, MovementFilter{Types: []MovementType{Ingress, Egress}})
	if err != nil {
		return nil, err
	}
	return Levels(articles, Fold(ms), areas), nil
}

// =============================================================================
// CATALOG
// =============================================================================

// SaveArticle creates or edits an article by name. Existing movements keep
// their snapshot.
func (l *Ledger) SaveArticle(ctx context.Context, a Article) error {
	a.Name = strings.TrimSpace(a.Name)
	if err := generic.Validate(a); err != nil {
		return err
	}
	if a.UnitPrice.LessThan(decimal.Zero) {
		return &generic.ValidationError{Field: "unitPrice", Reason: "must not be negative"}
	}
	if err := l.articles.SaveArticle(ctx, a); err != nil {
		return fmt.Errorf("saving article: %w", err)
	}
	l.Log.Info().Str("article", a.Name).Str("area", string(a.Area)).Msg("article saved")
	return nil
}

func (l *Ledger) Article(ctx context.Context, name string) (Article, error) {
	return l.articles.GetArticle(ctx, name)
}

// Articles lists the catalog in the given areas, sorted by name.
func (l *Ledger) Articles(ctx context.Context, areas generic.AreaSet) ([]Article, error) {
	all, err := l.articles.ListArticles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Article, 0, len(all))
	for _, a := range all {
		if areas.Contains(a.Area) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *Ledger) DeleteArticle(ctx context.Context, name string) error {
	if err := l.articles.DeleteArticle(ctx, name); err != nil {
		return err
	}
	l.Log.Info().Str("article", name).Msg("article deleted")
	return nil
}
