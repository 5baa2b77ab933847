package domain

import "errors"

// Sentinel errors for the item domain. Use errors.Is() to check these.
//
// They form the catalog error taxonomy: validation (ErrInvalidItemName,
// ErrInvalidDescription, ErrInvalidPhoto), conflict (ErrItemAlreadyExists), not found (ErrItemNotFound, ErrPhotoNotFound), integrity
// (ErrPhotoMissing), storage (ErrStorageFault, ErrPhotoCollision) and
// contention (ErrBusy).
var (
	// ErrItemNotFound indicates the requested item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrItemAlreadyExists indicates an item with the same id is already in the catalog.
	ErrItemAlreadyExists = errors.New("item already exists")

	// ErrInvalidItemName indicates the item name violates domain constraints.
	ErrInvalidItemName = errors.New("invalid item name")

	// ErrInvalidDescription indicates the item description is too long.
	ErrInvalidDescription = errors.New("invalid item description")

	// ErrInvalidPhoto indicates an uploaded photo is empty, too large or unreadable.
	ErrInvalidPhoto = errors.New("invalid photo")

	// ErrPhotoNotFound indicates the item has no photo, or a stored photo name
	// does not resolve to a file.
	ErrPhotoNotFound = errors.New("photo not found")

	// ErrPhotoMissing indicates an item references a photo file that is gone
	// from the photo store. The catalog and the photo store have diverged.
	ErrPhotoMissing = errors.New("photo file missing from store")

	// ErrPhotoCollision indicates a generated photo name already exists on disk.
	ErrPhotoCollision = errors.New("photo name collision")

	// ErrStorageFault indicates the inventory document could not be read or written.
	ErrStorageFault = errors.New("inventory storage fault")

	// ErrBusy indicates the inventory lock could not be acquired in time.
	// Callers may retry.
	ErrBusy = errors.New("inventory busy")
)
