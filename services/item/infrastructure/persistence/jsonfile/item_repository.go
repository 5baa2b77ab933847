// Package jsonfile implements the inventory store as a single JSON document.
//
// The document is an array of item records. Every mutation is a full
// load-mutate-save cycle executed under one process-wide lock, and every save
// replaces the document atomically (temp file in the same directory, fsync,
// rename), so readers see either the previous or the next valid document.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/ghuser/inventorycatalog/pkg/logger"
	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
	"github.com/ghuser/inventorycatalog/services/item/domain/models"
	"github.com/ghuser/inventorycatalog/services/item/domain/repositories"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// ItemRepository implements repositories.ItemRepository on top of a JSON file.
// Only one ItemRepository may own a given path at a time.
type ItemRepository struct {
	path        string
	lockTimeout time.Duration
	sem         *semaphore.Weighted
	log         logger.Logger
	lockWait    metric.Float64Histogram
}

// itemRecord is the persisted shape of an item. Photo is null when the item
// has no photo.
type itemRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Photo       *string   `json:"photo"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// NewItemRepository returns an ItemRepository persisting to path. The parent
// directory is created if needed; the document itself is created on first save.
// lockTimeout bounds how long a caller waits for the store lock; zero means
// wait until ctx is done.
func NewItemRepository(path string, lockTimeout time.Duration, log logger.Logger) (*ItemRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("create inventory directory: %w", err)
	}

	lockWait, err := otel.Meter("inventorycatalog/jsonfile").Float64Histogram(
		"inventory.lock.wait",
		metric.WithDescription("Time spent waiting for the inventory lock"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create lock wait histogram: %w", err)
	}

	return &ItemRepository{
		path:        path,
		lockTimeout: lockTimeout,
		sem:         semaphore.NewWeighted(1),
		log:         log,
		lockWait:    lockWait,
	}, nil
}

// Path returns the location of the inventory document.
func (r *ItemRepository) Path() string {
	return r.path
}

// Transact implements repositories.ItemRepository.
func (r *ItemRepository) Transact(ctx context.Context, fn func(tx *repositories.Tx) error) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	items, err := r.Load()
	if err != nil {
		return err
	}

	tx := repositories.NewTx(items)
	if err := fn(tx); err != nil {
		tx.RolledBack()
		return err
	}

	if tx.Dirty() {
		if err := r.Save(tx.Items()); err != nil {
			tx.RolledBack()
			return err
		}
	}
	tx.Committed()
	return nil
}

// View implements repositories.ItemRepository. The snapshot is freshly loaded,
// so fn may keep references to it after returning.
func (r *ItemRepository) View(ctx context.Context, fn func(items models.Collection) error) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	items, err := r.Load()
	if err != nil {
		return err
	}
	return fn(items)
}

// Ping reports whether the inventory document can be loaded. It takes no lock:
// saves are atomic renames, so a concurrent read sees a whole document.
func (r *ItemRepository) Ping(_ context.Context) error {
	_, err := r.Load()
	return err
}

// Load reads the inventory document. A missing or empty document yields an
// empty collection; an unreadable or corrupt one yields ErrStorageFault.
// Callers outside Transact/View must not mutate and save the result.
func (r *ItemRepository) Load() (models.Collection, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Collection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", itemdomain.ErrStorageFault, r.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.Collection{}, nil
	}

	var records []itemRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", itemdomain.ErrStorageFault, r.path, err)
	}

	items := make(models.Collection, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: record %d has no id", itemdomain.ErrStorageFault, i)
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", itemdomain.ErrStorageFault, rec.ID)
		}
		seen[rec.ID] = struct{}{}
		items = append(items, recordToItem(rec))
	}
	return items, nil
}

// Save serializes items and atomically replaces the inventory document.
// On failure the previous document is left untouched.
func (r *ItemRepository) Save(items models.Collection) error {
	records := make([]itemRecord, len(items))
	for i, item := range items {
		records[i] = itemToRecord(item)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode inventory: %w", itemdomain.ErrStorageFault, err)
	}
	data = append(data, '\n')

	if err := r.writeAtomic(data); err != nil {
		return fmt.Errorf("%w: %w", itemdomain.ErrStorageFault, err)
	}
	return nil
}

func (r *ItemRepository) writeAtomic(data []byte) error {
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("failed to remove inventory temp file", "path", tmpPath, "error", err)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", r.path, err)
	}

	// Persist the rename itself. Not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// acquire takes the store lock, waiting at most lockTimeout. The returned
// func releases it.
func (r *ItemRepository) acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	waitCtx := ctx
	if r.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.lockTimeout)
		defer cancel()
	}

	err := r.sem.Acquire(waitCtx, 1)
	r.lockWait.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		return nil, fmt.Errorf("%w: waited %s: %w", itemdomain.ErrBusy, time.Since(start).Round(time.Millisecond), err)
	}
	return func() { r.sem.Release(1) }, nil
}

func recordToItem(rec itemRecord) *models.Item {
	item := &models.Item{
		ID:          rec.ID,
		Name:        models.ItemName(rec.Name),
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if rec.Photo != nil {
		item.PhotoRef = *rec.Photo
	}
	return item
}

func itemToRecord(item *models.Item) itemRecord {
	rec := itemRecord{
		ID:          item.ID,
		Name:        item.Name.String(),
		Description: item.Description,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	if item.HasPhoto() {
		ref := item.PhotoRef
		rec.Photo = &ref
	}
	return rec
}
