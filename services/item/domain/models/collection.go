package models

// Collection is the full set of catalog items in document order.
type Collection []*Item

// FindByID returns the item with the given id, or nil.
func (c Collection) FindByID(id string) *Item {
	if i := c.IndexOf(id); i >= 0 {
		return c[i]
	}
	return nil
}

// IndexOf returns the position of the item with the given id, or -1.
func (c Collection) IndexOf(id string) int {
	for i, item := range c {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Clone deep-copies the collection so callers can mutate it freely.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for i, item := range c {
		out[i] = item.Clone()
	}
	return out
}
