// Package memory provides an in-memory implementation of every store port,
// for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/backoffice/availability"
	"github.com/warp/backoffice/calendar"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/requisition"
	"github.com/warp/backoffice/shift"
	"github.com/warp/backoffice/stock"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps every collection in maps guarded by one RWMutex. Writes
// publish their change after the lock is released.
type Store struct {
	mu           sync.RWMutex
	articles     map[string]stock.Article
	movements    map[string]stock.Movement
	requisitions map[string]requisition.Requisition
	availability map[string]availability.Entry
	shifts       map[string]shift.Shift
	schedule     *calendar.Config

	pub generic.Publisher
	now func() time.Time
}

// New returns an empty store publishing to pub. A nil pub drops changes.
func New(pub generic.Publisher) *Store {
	if pub == nil {
		pub = generic.NopPublisher{}
	}
	return &Store{
		articles:     make(map[string]stock.Article),
		movements:    make(map[string]stock.Movement),
		requisitions: make(map[string]requisition.Requisition),
		availability: make(map[string]availability.Entry),
		shifts:       make(map[string]shift.Shift),
		pub:          pub,
		now:          time.Now,
	}
}

func (m *Store) change(c generic.Collection, kind generic.ChangeKind, id string) generic.Change {
	return generic.Change{Collection: c, Kind: kind, ID: id, At: m.now()}
}

// write runs fn under the write lock and publishes its change on success.
func (m *Store) write(fn func() (generic.Change, error)) error {
	m.mu.Lock()
	ch, err := fn()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.pub.Publish(ch)
	return nil
}

// =============================================================================
// ARTICLES
// =============================================================================

func (m *Store) SaveArticle(_ context.Context, a stock.Article) error {
	return m.write(func() (generic.Change, error) {
		kind := generic.ChangeAdded
		if _, ok := m.articles[a.Name]; ok {
			kind = generic.ChangeModified
		}
		m.articles[a.Name] = a
		return m.change(generic.CollectionArticles, kind, a.Name), nil
	})
}

func (m *Store) GetArticle(_ context.Context, name string) (stock.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[name]
	if !ok {
		return stock.Article{}, generic.NotFound(generic.CollectionArticles, name)
	}
	return a, nil
}

func (m *Store) ListArticles(_ context.Context) ([]stock.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]stock.Article, 0, len(m.articles))
	for _, a := range m.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Store) DeleteArticle(_ context.Context, name string) error {
	return m.write(func() (generic.Change, error) {
		if _, ok := m.articles[name]; !ok {
			return generic.Change{}, generic.NotFound(generic.CollectionArticles, name)
		}
		delete(m.articles, name)
		return m.change(generic.CollectionArticles, generic.ChangeRemoved, name), nil
	})
}

// =============================================================================
// STOCK MOVEMENTS
// =============================================================================

func (m *Store) InsertMovement(_ context.Context, mv stock.Movement) error {
	return m.write(func() (generic.Change, error) { return m.insertMovementLocked(mv) })
}

func (m *Store) insertMovementLocked(mv stock.Movement) (generic.Change, error) {
	if _, ok := m.movements[mv.ID]; ok {
		return generic.Change{}, generic.ErrDuplicate
	}
	if mv.SourceRequisition != "" {
		for _, other := range m.movements {
			if other.SourceRequisition == mv.SourceRequisition {
				return generic.Change{}, generic.ErrDuplicate
			}
		}
	}
	m.movements[mv.ID] = mv
	return m.change(generic.CollectionStockMovements, generic.ChangeAdded, mv.ID), nil
}

func (m *Store) GetMovement(_ context.Context, id string) (stock.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMovementLocked(id)
}

func (m *Store) getMovementLocked(id string) (stock.Movement, error) {
	mv, ok := m.movements[id]
	if !ok {
		return stock.Movement{}, generic.NotFound(generic.CollectionStockMovements, id)
	}
	return mv, nil
}

func (m *Store) UpdateMovement(_ context.Context, mv stock.Movement) error {
	return m.write(func() (generic.Change, error) { return m.updateMovementLocked(mv) })
}

func (m *Store) updateMovementLocked(mv stock.Movement) (generic.Change, error) {
	cur, ok := m.movements[mv.ID]
	if !ok {
		return generic.Change{}, generic.NotFound(generic.CollectionStockMovements, mv.ID)
	}
	if cur.Version != mv.Version {
		return generic.Change{}, generic.ErrConcurrentModification
	}
	mv.Version++
	m.movements[mv.ID] = mv
	return m.change(generic.CollectionStockMovements, generic.ChangeModified, mv.ID), nil
}

func (m *Store) ListMovements(_ context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMovementsLocked(f), nil
}

func (m *Store) listMovementsLocked(f stock.MovementFilter) []stock.Movement {
	var out []stock.Movement
	for _, mv := range m.movements {
		if f.Match(mv) {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// REQUISITIONS
// =============================================================================

func (m *Store) InsertRequisition(_ context.Context, r requisition.Requisition) error {
	return m.write(func() (generic.Change, error) {
		if _, ok := m.requisitions[r.ID]; ok {
			return generic.Change{}, generic.ErrDuplicate
		}
		m.requisitions[r.ID] = r
		return m.change(generic.CollectionRequisitions, generic.ChangeAdded, r.ID), nil
	})
}

func (m *Store) GetRequisition(_ context.Context, id string) (requisition.Requisition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequisitionLocked(id)
}

func (m *Store) getRequisitionLocked(id string) (requisition.Requisition, error) {
	r, ok := m.requisitions[id]
	if !ok {
		return requisition.Requisition{}, generic.NotFound(generic.CollectionRequisitions, id)
	}
	return r, nil
}

func (m *Store) UpdateRequisition(_ context.Context, r requisition.Requisition) error {
	return m.write(func() (generic.Change, error) { return m.updateRequisitionLocked(r) })
}

func (m *Store) updateRequisitionLocked(r requisition.Requisition) (generic.Change, error) {
	cur, ok := m.requisitions[r.ID]
	if !ok {
		return generic.Change{}, generic.NotFound(generic.CollectionRequisitions, r.ID)
	}
	if cur.Version != r.Version {
		return generic.Change{}, generic.ErrConcurrentModification
	}
	r.Version++
	m.requisitions[r.ID] = r
	return m.change(generic.CollectionRequisitions, generic.ChangeModified, r.ID), nil
}

func (m *Store) DeleteRequisition(_ context.Context, id string) error {
	return m.write(func() (generic.Change, error) {
		if _, ok := m.requisitions[id]; !ok {
			return generic.Change{}, generic.NotFound(generic.CollectionRequisitions, id)
		}
		delete(m.requisitions, id)
		return m.change(generic.CollectionRequisitions, generic.ChangeRemoved, id), nil
	})
}

func (m *Store) ListRequisitions(_ context.Context, f requisition.Filter) ([]requisition.Requisition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequisitionsLocked(f), nil
}

// listRequisitionsLocked orders by At, then ID.
func (m *Store) listRequisitionsLocked(f requisition.Filter) []requisition.Requisition {
	var out []requisition.Requisition
	for _, r := range m.requisitions {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func (m *Store) ListAvailability(_ context.Context, f availability.Filter) ([]availability.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []availability.Entry
	for _, e := range m.availability {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Person < out[j].Person
	})
	return out, nil
}

func (m *Store) InsertAvailability(_ context.Context, e availability.Entry) error {
	return m.write(func() (generic.Change, error) {
		if _, ok := m.availability[e.ID]; ok {
			return generic.Change{}, generic.ErrDuplicate
		}
		for _, other := range m.availability {
			if other.Person == e.Person && other.Area == e.Area && other.Day == e.Day {
				return generic.Change{}, generic.ErrDuplicate
			}
		}
		m.availability[e.ID] = e
		return m.change(generic.CollectionAvailability, generic.ChangeAdded, e.ID), nil
	})
}

func (m *Store) DeleteAvailability(_ context.Context, id string) error {
	return m.write(func() (generic.Change, error) {
		if _, ok := m.availability[id]; !ok {
			return generic.Change{}, generic.NotFound(generic.CollectionAvailability, id)
		}
		delete(m.availability, id)
		return m.change(generic.CollectionAvailability, generic.ChangeRemoved, id), nil
	})
}

func (m *Store) ClearAvailability(_ context.Context) (int, error) {
	m.mu.Lock()
	changes := make([]generic.Change, 0, len(m.availability))
	for id := range m.availability {
		changes = append(changes, m.change(generic.CollectionAvailability, generic.ChangeRemoved, id))
	}
	m.availability = make(map[string]availability.Entry)
	m.mu.Unlock()

	m.pub.Publish(changes...)
	return len(changes), nil
}

// =============================================================================
// SHIFTS
// =============================================================================

func (m *Store) InsertShift(_ context.Context, s shift.Shift) error {
	return m.write(func() (generic.Change, error) {
		if _, ok := m.shifts[s.ID]; ok {
			return generic.Change{}, generic.ErrDuplicate
		}
		m.shifts[s.ID] = s
		return m.change(generic.CollectionShifts, generic.ChangeAdded, s.ID), nil
	})
}

func (m *Store) GetShift(_ context.Context, id string) (shift.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shifts[id]
	if !ok {
		return shift.Shift{}, generic.NotFound(generic.CollectionShifts, id)
	}
	return s, nil
}

func (m *Store) UpdateShift(_ context.Context, s shift.Shift) error {
	return m.write(func() (generic.Change, error) {
		if _, ok := m.shifts[s.ID]; !ok {
			return generic.Change{}, generic.NotFound(generic.CollectionShifts, s.ID)
		}
		m.shifts[s.ID] = s
		return m.change(generic.CollectionShifts, generic.ChangeModified, s.ID), nil
	})
}

func (m *Store) DeleteShift(_ context.Context, id string) error {
	return m.write(func() (generic.Change, error) {
		if _, ok := m.shifts[id]; !ok {
			return generic.Change{}, generic.NotFound(generic.CollectionShifts, id)
		}
		delete(m.shifts, id)
		return m.change(generic.CollectionShifts, generic.ChangeRemoved, id), nil
	})
}

func (m *Store) ListShifts(_ context.Context, f shift.Filter) ([]shift.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []shift.Shift
	for _, s := range m.shifts {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// SCHEDULE CONFIG
// =============================================================================

func (m *Store) ScheduleConfig(_ context.Context) (calendar.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.schedule == nil {
		return calendar.Config{}, generic.NotFound(generic.CollectionScheduleConfig, calendar.ConfigID)
	}
	return *m.schedule, nil
}

func (m *Store) SaveScheduleConfig(_ context.Context, cfg calendar.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return m.write(func() (generic.Change, error) {
		kind := generic.ChangeModified
		if m.schedule == nil {
			kind = generic.ChangeAdded
		}
		m.schedule = &cfg
		return m.change(generic.CollectionScheduleConfig, kind, calendar.ConfigID), nil
	})
}

// =============================================================================
// TRANSACTIONS (requisition.TxRunner)
// =============================================================================

// Run executes fn with requisition and movement views that write straight
// into the store under the write lock. On error both collections are
// restored from a snapshot and nothing is published.
// A panic inside fn also restores the snapshot and releases the lock.
func (m *Store) Run(ctx context.Context, fn func(reqs requisition.Store, movements stock.Store) error) error {
	view, err := m.runLocked(fn)
	if err != nil {
		return err
	}
	m.pub.Publish(view.changes...)
	return nil
}

func (m *Store) runLocked(fn func(reqs requisition.Store, movements stock.Store) error) (view *txView, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reqsSnap := make(map[string]requisition.Requisition, len(m.requisitions))
	for k, v := range m.requisitions {
		reqsSnap[k] = v
	}
	movesSnap := make(map[string]stock.Movement, len(m.movements))
	for k, v := range m.movements {
		movesSnap[k] = v
	}

	committed := false
	defer func() {
		if !committed {
			m.requisitions = reqsSnap
			m.movements = movesSnap
		}
	}()

	view = &txView{parent: m}
	if err := fn(view, view); err != nil {
		return nil, err
	}
	committed = true
	return view, nil
}

// txView runs with the parent's write lock already held.
type txView struct {
	parent  *Store
	changes []generic.Change
}

func (tv *txView) record(ch generic.Change, err error) error {
	if err != nil {
		return err
	}
	tv.changes = append(tv.changes, ch)
	return nil
}

func (tv *txView) InsertMovement(_ context.Context, mv stock.Movement) error {
	return tv.record(tv.parent.insertMovementLocked(mv))
}

func (tv *txView) GetMovement(_ context.Context, id string) (stock.Movement, error) {
	return tv.parent.getMovementLocked(id)
}

func (tv *txView) UpdateMovement(_ context.Context, mv stock.Movement) error {
	return tv.record(tv.parent.updateMovementLocked(mv))
}

func (tv *txView) ListMovements(_ context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	return tv.parent.listMovementsLocked(f), nil
}

func (tv *txView) InsertRequisition(_ context.Context, r requisition.Requisition) error {
	if _, ok := tv.parent.requisitions[r.ID]; ok {
		return generic.ErrDuplicate
	}
	tv.parent.requisitions[r.ID] = r
	tv.changes = append(tv.changes, tv.parent.change(generic.CollectionRequisitions, generic.ChangeAdded, r.ID))
	return nil
}

func (tv *txView) GetRequisition(_ context.Context, id string) (requisition.Requisition, error) {
	return tv.parent.getRequisitionLocked(id)
}

func (tv *txView) UpdateRequisition(_ context.Context, r requisition.Requisition) error {
	return tv.record(tv.parent.updateRequisitionLocked(r))
}

func (tv *txView) DeleteRequisition(_ context.Context, id string) error {
	if _, ok := tv.parent.requisitions[id]; !ok {
		return generic.NotFound(generic.CollectionRequisitions, id)
	}
	delete(tv.parent.requisitions, id)
	tv.changes = append(tv.changes, tv.parent.change(generic.CollectionRequisitions, generic.ChangeRemoved, id))
	return nil
}

func (tv *txView) ListRequisitions(_ context.Context, f requisition.Filter) ([]requisition.Requisition, error) {
	return tv.parent.listRequisitionsLocked(f), nil
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
