package repositories

import (
	"context"
	"fmt"

	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
	"github.com/ghuser/inventorycatalog/services/item/domain/models"
)

// ItemRepository is the persistence interface for the inventory collection.
// The domain layer owns this interface; infrastructure implements it.
//
// Every call runs inside a single mutual-exclusion domain, so a
// load-mutate-save cycle can never interleave with another one.
type ItemRepository interface {
	// Transact loads the collection, runs fn against a private copy and, if fn
	// returns nil, persists the result atomically. Commit hooks run after a
	// successful save, rollback hooks after any failure. Both run before the
	// lock is released.
	Transact(ctx context.Context, fn func(tx *Tx) error) error

	// View runs fn against a read-only snapshot of the collection.
	View(ctx context.Context, fn func(items models.Collection) error) error

	// Ping reports whether the persisted document is readable.
	Ping(ctx context.Context) error
}

// Tx is one load-mutate-save cycle. It is not safe for use outside the
// Transact callback that produced it.
type Tx struct {
	items    models.Collection
	dirty    bool
	commit   []func()
	rollback []func()
}

// NewTx wraps items, which the Tx takes ownership of.
func NewTx(items models.Collection) *Tx {
	return &Tx{items: items}
}

// Items returns the working collection.
func (t *Tx) Items() models.Collection {
	return t.items
}

// Find returns the working copy of the item with the given id, or
// ErrItemNotFound. Changes to the returned item are persisted on commit.
func (t *Tx) Find(id string) (*models.Item, error) {
	item := t.items.FindByID(id)
	if item == nil {
		return nil, itemdomain.ErrItemNotFound
	}
	return item, nil
}

// Insert appends item, rejecting duplicate ids.
func (t *Tx) Insert(item *models.Item) error {
	if t.items.IndexOf(item.ID) >= 0 {
		return fmt.Errorf("%w: %s", itemdomain.ErrItemAlreadyExists, item.ID)
	}
	t.items = append(t.items, item)
	t.dirty = true
	return nil
}

// Remove deletes the item with the given id and returns it.
func (t *Tx) Remove(id string) (*models.Item, error) {
	i := t.items.IndexOf(id)
	if i < 0 {
		return nil, itemdomain.ErrItemNotFound
	}
	removed := t.items[i]
	t.items = append(t.items[:i], t.items[i+1:]...)
	t.dirty = true
	return removed, nil
}

// MarkDirty records that an item found via Find was modified in place.
func (t *Tx) MarkDirty() {
	t.dirty = true
}

// Dirty reports whether the collection needs to be written back.
func (t *Tx) Dirty() bool {
	return t.dirty
}

// OnCommit registers f to run once the collection has been persisted.
func (t *Tx) OnCommit(f func()) {
	t.commit = append(t.commit, f)
}

// OnRollback registers f to run if the cycle is abandoned.
func (t *Tx) OnRollback(f func()) {
	t.rollback = append(t.rollback, f)
}

// Committed runs commit hooks in registration order.
func (t *Tx) Committed() {
	for _, f := range t.commit {
		f()
	}
}

// RolledBack runs rollback hooks in reverse registration order.
func (t *Tx) RolledBack() {
	for i := len(t.rollback) - 1; i >= 0; i-- {
		t.rollback[i]()
	}
}
