package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Item is the core aggregate for this bounded context.
type Item struct {
	ID          string // opaque, assigned at creation, never changes
	Name        ItemName
	Description string
	// PhotoRef is the stored name of the item's photo in the photo store.
	// Empty when the item has no photo.
	PhotoRef  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewItem constructs a valid Item aggregate with generated ID and current timestamp.
func NewItem(name ItemName, description string) (*Item, error) {
	now := time.Now().UTC()
	return &Item{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// HasPhoto reports whether the item references a stored photo.
func (i *Item) HasPhoto() bool {
	return i.PhotoRef != ""
}

// ApplyUpdate applies a partial update. A blank or absent name leaves the
// current name in place; a supplied description replaces the old one, even
// when empty. Returns whether anything was supplied.
func (i *Item) ApplyUpdate(name Optional[string], description Optional[string]) (bool, error) {
	changed := false
	if n, ok := name.Get(); ok && strings.TrimSpace(n) != "" {
		itemName, err := NewItemName(n)
		if err != nil {
			return false, err
		}
		i.Name = itemName
		changed = true
	}
	if d, ok := description.Get(); ok {
		i.Description = d
		changed = true
	}
	if changed {
		i.UpdatedAt = time.Now().UTC()
	}
	return changed, nil
}

// Clone returns an independent copy of the item.
func (i *Item) Clone() *Item {
	c := *i
	return &c
}
