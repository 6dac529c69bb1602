package stock

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/backoffice/generic"
)

// InventoryView keeps the inventory report current by recomputing it on
// every change to articles or stockMovements.
//
// The fold itself lives in fold.go; this type only owns the subscription
// and the last computed snapshot.
type InventoryView struct {
	ledger *Ledger
	log    zerolog.Logger

	// refreshMu is held across the read and the save so a slower read can
	// never overwrite a newer snapshot.
	refreshMu sync.Mutex

	mu        sync.RWMutex
	levels    []Level
	updatedAt time.Time
	err       error

	unsubscribe []func()
}

// NewInventoryView computes an initial snapshot and subscribes to feed.
func NewInventoryView(ctx context.Context, ledger *Ledger, feed generic.Feed) *InventoryView {
	v := &InventoryView{ledger: ledger, log: ledger.Log}
	_ = v.Refresh(ctx)

	onChange := func(ch generic.Change) {
		if err := v.Refresh(context.Background()); err != nil {
			v.log.Warn().Err(err).Str("collection", string(ch.Collection)).Str("id", ch.ID).Msg("inventory refresh failed")
		}
	}
	v.unsubscribe = []func(){
		feed.Subscribe(generic.CollectionArticles, onChange),
		feed.Subscribe(generic.CollectionStockMovements, onChange),
	}
	return v
}

// Refresh recomputes the snapshot from the store. Concurrent refreshes run
// one at a time, in the order they take the lock.
func (v *InventoryView) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	levels, err := v.ledger.Inventory(ctx, nil)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
	if err != nil {
		return err
	}
	v.levels = levels
	v.updatedAt = v.ledger.Now()
	return nil
}

// Levels returns the last snapshot filtered by areas.
func (v *InventoryView) Levels(areas generic.AreaSet) []Level {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Level, 0, len(v.levels))
	for _, l := range v.levels {
		if areas.Contains(l.Area) {
			out = append(out, l)
		}
	}
	return out
}

// Low returns the rows currently below minimum.
func (v *InventoryView) Low(areas generic.AreaSet) []Level {
	var out []Level
	for _, l := range v.Levels(areas) {
		if l.Low {
			out = append(out, l)
		}
	}
	return out
}

// UpdatedAt is the time of the last successful refresh. Err is the last
// refresh error, nil after a success.
func (v *InventoryView) UpdatedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.updatedAt
}

func (v *InventoryView) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

func (v *InventoryView) Close() {
	for _, u := range v.unsubscribe {
		u()
	}
}
