package repositories

import "context"

// Photo is a stored photo file and its detected content type.
type Photo struct {
	Name        string
	Data        []byte
	ContentType string
}

// PhotoStore manages binary photo files keyed by generated names.
type PhotoStore interface {
	// Store writes data under a new collision-resistant name ending in ext and
	// returns the name. It never overwrites an existing file.
	Store(ctx context.Context, data []byte, ext string) (string, error)

	// Fetch reads a stored photo. Returns ErrPhotoNotFound when name does not
	// resolve to a file.
	Fetch(ctx context.Context, name string) (*Photo, error)

	// Delete removes a stored photo. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error

	// Ping reports whether the photo directory is usable.
	Ping(ctx context.Context) error
}
