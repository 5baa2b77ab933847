// Package filesystem stores item photos as flat files in one directory.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/ghuser/inventorycatalog/pkg/logger"
	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
	"github.com/ghuser/inventorycatalog/services/item/domain/repositories"
	domainsvcs "github.com/ghuser/inventorycatalog/services/item/domain/services"
)

const (
	// DefaultExt is used when an upload carries no usable extension.
	DefaultExt = ".jpg"

	// DefaultContentType is served when the stored bytes are not recognisably an image.
	DefaultContentType = "image/jpeg"

	photoPerm = 0o644
	dirPerm   = 0o755
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// PhotoStore implements repositories.PhotoStore on a local directory.
type PhotoStore struct {
	dir     string
	log     logger.Logger
	newName func(ext string) (string, error)
}

// NewPhotoStore returns a PhotoStore rooted at dir, creating it if needed.
func NewPhotoStore(dir string, log logger.Logger) (*PhotoStore, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create photo directory: %w", err)
	}
	return &PhotoStore{dir: dir, log: log, newName: generateName}, nil
}

// Dir returns the photo directory.
func (s *PhotoStore) Dir() string {
	return s.dir
}

// NormalizeExt lower-cases ext and falls back to DefaultExt when it is not a
// short alphanumeric extension.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !extPattern.MatchString(ext) {
		return DefaultExt
	}
	return ext
}

// generateName returns a time-ordered UUIDv7 name: millisecond timestamp
// followed by random bits.
func generateName(ext string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate photo name: %w", err)
	}
	return id.String() + ext, nil
}

// Store implements repositories.PhotoStore. The file is created with O_EXCL,
// so an existing name surfaces as ErrPhotoCollision instead of being replaced.
func (s *PhotoStore) Store(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name, err := s.newName(NormalizeExt(ext))
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, photoPerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", itemdomain.ErrPhotoCollision, name)
		}
		return "", fmt.Errorf("create photo file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		s.discard(f, path)
		return "", fmt.Errorf("write photo file: %w", err)
	}
	if err := f.Sync(); err != nil {
		s.discard(f, path)
		return "", fmt.Errorf("sync photo file: %w", err)
	}
	if err := f.Close(); err != nil {
		s.discard(nil, path)
		return "", fmt.Errorf("close photo file: %w", err)
	}
	return name, nil
}

// Fetch implements repositories.PhotoStore.
func (s *PhotoStore) Fetch(ctx context.Context, name string) (*repositories.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := domainsvcs.ValidatePhotoRef(name); err != nil {
		return nil, fmt.Errorf("%w: %w", itemdomain.ErrPhotoNotFound, err)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", itemdomain.ErrPhotoNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read photo file: %w", err)
	}

	return &repositories.Photo{
		Name:        name,
		Data:        data,
		ContentType: contentType(data),
	}, nil
}

// Delete implements repositories.PhotoStore.
func (s *PhotoStore) Delete(_ context.Context, name string) error {
	if err := domainsvcs.ValidatePhotoRef(name); err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete photo file: %w", err)
	}
	return nil
}

// Ping implements repositories.PhotoStore.
func (s *PhotoStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("photo directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("photo directory: %s is not a directory", s.dir)
	}
	return nil
}

func (s *PhotoStore) discard(f *os.File, path string) {
	if f != nil {
		_ = f.Close()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("failed to remove partial photo file", "path", path, "error", err)
	}
}

func contentType(data []byte) string {
	mt := mimetype.Detect(data)
	if strings.HasPrefix(mt.String(), "image/") {
		return mt.String()
	}
	return DefaultContentType
}
