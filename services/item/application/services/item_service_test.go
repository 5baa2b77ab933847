package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/inventorycatalog/pkg/config"
	"github.com/ghuser/inventorycatalog/pkg/logger"
	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
	itemevents "github.com/ghuser/inventorycatalog/services/item/domain/events"
	"github.com/ghuser/inventorycatalog/services/item/domain/models"
	"github.com/ghuser/inventorycatalog/services/item/domain/repositories"
	domainsvcs "github.com/ghuser/inventorycatalog/services/item/domain/services"
	"github.com/ghuser/inventorycatalog/services/item/infrastructure/persistence/jsonfile"
	"github.com/ghuser/inventorycatalog/services/item/infrastructure/storage/filesystem"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type fixture struct {
	svc      *ItemService
	pub      *recordingPublisher
	docPath  string
	photoDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := logger.New(&config.Config{LogLevel: "error"})

	repo, err := jsonfile.NewItemRepository(filepath.Join(dir, "inventory.json"), 30*time.Second, log)
	if err != nil {
		t.Fatalf("NewItemRepository: %v", err)
	}
	photos, err := filesystem.NewPhotoStore(filepath.Join(dir, "photos"), log)
	if err != nil {
		t.Fatalf("NewPhotoStore: %v", err)
	}
	pub := &recordingPublisher{}
	svc, err := NewItemService(repo, photos, pub, log, 1024)
	if err != nil {
		t.Fatalf("NewItemService: %v", err)
	}
	return &fixture{svc: svc, pub: pub, docPath: repo.Path(), photoDir: photos.Dir()}
}

func (f *fixture) photoFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.photoDir)
	if err != nil {
		t.Fatalf("read photo dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func upload(data string) *PhotoUpload {
	return &PhotoUpload{Data: []byte(data), Filename: "shot.JPG"}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("without photo", func(t *testing.T) {
		item, err := f.svc.Register(ctx, "  Ladder ", "aluminium", nil)
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if item.ID == "" || item.Name != "Ladder" || item.Description != "aluminium" {
			t.Fatalf("unexpected item: %+v", item)
		}
		if item.HasPhoto() {
			t.Fatal("expected no photo reference")
		}
	})

	t.Run("with photo", func(t *testing.T) {
		item, err := f.svc.Register(ctx, "Drill", "", upload("drill-bytes"))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if !strings.HasSuffix(item.PhotoRef, ".jpg") {
			t.Fatalf("photo ref %q should keep the lower-cased extension", item.PhotoRef)
		}
		data, err := os.ReadFile(filepath.Join(f.photoDir, item.PhotoRef))
		if err != nil || string(data) != "drill-bytes" {
			t.Fatalf("stored photo: %q, %v", data, err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name    string
			item    string
			photo   *PhotoUpload
			wantErr error
		}{
			{"blank name", "   ", nil, itemdomain.ErrInvalidItemName},
			{"control characters", "saw\x00", nil, itemdomain.ErrInvalidItemName},
			{"empty photo", "Saw", &PhotoUpload{Filename: "a.jpg"}, itemdomain.ErrInvalidPhoto},
			{"oversized photo", "Saw", upload(strings.Repeat("x", 1025)), itemdomain.ErrInvalidPhoto},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				before := len(f.photoFiles(t))
				_, err := f.svc.Register(ctx, tt.item, "", tt.photo)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				if after := len(f.photoFiles(t)); after != before {
					t.Fatalf("photo files changed from %d to %d", before, after)
				}
			})
		}
	})

	items, err := f.svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestRegister_ConcurrentKeepsEveryItem(t *testing.T) {
	f := newFixture(t)
	const n = 32

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Register(context.Background(), "Widget", "", upload("w")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("register: %v", err)
	}

	items, err := f.svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := map[string]bool{}
	for _, item := range items {
		ids[item.ID] = true
		if _, err := os.Stat(filepath.Join(f.photoDir, item.PhotoRef)); err != nil {
			t.Errorf("photo of %s does not resolve: %v", item.ID, err)
		}
	}
	if len(ids) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(ids))
	}
	if files := f.photoFiles(t); len(files) != n {
		t.Fatalf("expected %d photo files, got %d", n, len(files))
	}
}

func TestRegister_CorruptDocumentRefusesMutation(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(f.docPath, []byte("[{"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Register(context.Background(), "Drill", "", upload("bytes"))
	if !errors.Is(err, itemdomain.ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault, got %v", err)
	}
	if files := f.photoFiles(t); len(files) != 0 {
		t.Fatalf("expected no photo files, got %v", files)
	}
	data, _ := os.ReadFile(f.docPath)
	if string(data) != "[{" {
		t.Fatalf("corrupt document was rewritten: %q", data)
	}
}

// failingSaveRepo loads the real collection, runs the callback against it and
// then fails the save, as a full disk would.
type failingSaveRepo struct{ repositories.ItemRepository }

func (r failingSaveRepo) Transact(ctx context.Context, fn func(tx *repositories.Tx) error) error {
	return r.View(ctx, func(items models.Collection) error {
		tx := repositories.NewTx(items.Clone())
		if err := fn(tx); err != nil {
			tx.RolledBack()
			return err
		}
		tx.RolledBack()
		return fmt.Errorf("%w: disk full", itemdomain.ErrStorageFault)
	})
}

func TestRegister_FailedSaveRemovesNewPhoto(t *testing.T) {
	f := newFixture(t)
	f.svc.items = failingSaveRepo{f.svc.items}

	_, err := f.svc.Register(context.Background(), "Drill", "", upload("bytes"))
	if !errors.Is(err, itemdomain.ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault, got %v", err)
	}
	if files := f.photoFiles(t); len(files) != 0 {
		t.Fatalf("expected no photo files, got %v", files)
	}
}

func TestReplacePhoto_FailedSaveKeepsOldPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, err := f.svc.Register(ctx, "Drill", "", upload("old"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	store := f.svc.items
	published := len(f.pub.Topics())

	f.svc.items = failingSaveRepo{store}
	if _, err := f.svc.ReplacePhoto(ctx, item.ID, upload("new")); !errors.Is(err, itemdomain.ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault, got %v", err)
	}
	f.svc.items = store

	if files := f.photoFiles(t); len(files) != 1 || files[0] != item.PhotoRef {
		t.Fatalf("expected only the old photo %q, got %v", item.PhotoRef, files)
	}
	photo, err := f.svc.FetchPhoto(ctx, item.ID)
	if err != nil {
		t.Fatalf("fetch photo: %v", err)
	}
	if string(photo.Data) != "old" {
		t.Fatalf("expected the old photo, got %q", photo.Data)
	}
	if got := len(f.pub.Topics()); got != published {
		t.Fatalf("failed replace published %d events", got-published)
	}
}

func TestDelete_FailedSaveKeepsItemAndPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, err := f.svc.Register(ctx, "Drill", "", upload("drill"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	store := f.svc.items

	f.svc.items = failingSaveRepo{store}
	if _, err := f.svc.Delete(ctx, item.ID); !errors.Is(err, itemdomain.ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault, got %v", err)
	}
	f.svc.items = store

	got, err := f.svc.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("item should survive a failed delete: %v", err)
	}
	if got.PhotoRef != item.PhotoRef {
		t.Fatalf("photo ref changed: %q -> %q", item.PhotoRef, got.PhotoRef)
	}
	if files := f.photoFiles(t); len(files) != 1 || files[0] != item.PhotoRef {
		t.Fatalf("expected photo %q to be kept, got %v", item.PhotoRef, files)
	}
	if topics := f.pub.Topics(); topics[len(topics)-1] == itemevents.TopicItemDeleted {
		t.Fatal("failed delete published item.deleted")
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hammer, err := f.svc.Register(ctx, "Hammer", "claw", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("empty description clears it and keeps the name", func(t *testing.T) {
		got, err := f.svc.Update(ctx, hammer.ID, models.None[string](), models.Some(""))
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Name != "Hammer" || got.Description != "" {
			t.Fatalf("unexpected item: %+v", got)
		}
	})

	t.Run("blank name is ignored", func(t *testing.T) {
		got, err := f.svc.Update(ctx, hammer.ID, models.Some("  "), models.Some("steel"))
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Name != "Hammer" || got.Description != "steel" {
			t.Fatalf("unexpected item: %+v", got)
		}
	})

	t.Run("rename persists", func(t *testing.T) {
		if _, err := f.svc.Update(ctx, hammer.ID, models.Some("Mallet"), models.None[string]()); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := f.svc.Get(ctx, hammer.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Name != "Mallet" || got.Description != "steel" {
			t.Fatalf("unexpected item: %+v", got)
		}
	})

	t.Run("control character in name is rejected", func(t *testing.T) {
		_, err := f.svc.Update(ctx, hammer.ID, models.Some("Ham\x00mer"), models.None[string]())
		if !errors.Is(err, itemdomain.ErrInvalidItemName) {
			t.Fatalf("expected ErrInvalidItemName, got %v", err)
		}
		got, err := f.svc.Get(ctx, hammer.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Name != "Mallet" {
			t.Fatalf("rejected name was stored: %q", got.Name)
		}
	})

	t.Run("overlong description is rejected", func(t *testing.T) {
		long := strings.Repeat("d", domainsvcs.MaxDescriptionLength+1)
		_, err := f.svc.Update(ctx, hammer.ID, models.None[string](), models.Some(long))
		if !errors.Is(err, itemdomain.ErrInvalidDescription) {
			t.Fatalf("expected ErrInvalidDescription, got %v", err)
		}
	})

	t.Run("overlong name is rejected", func(t *testing.T) {
		_, err := f.svc.Update(ctx, hammer.ID, models.Some(strings.Repeat("n", 256)), models.None[string]())
		if !errors.Is(err, itemdomain.ErrInvalidItemName) {
			t.Fatalf("expected ErrInvalidItemName, got %v", err)
		}
	})
}

func TestUnknownID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const id = "never-issued"

	if _, err := f.svc.Get(ctx, id); !errors.Is(err, itemdomain.ErrItemNotFound) {
		t.Errorf("Get: got %v", err)
	}
	if _, err := f.svc.Update(ctx, id, models.Some("x"), models.None[string]()); !errors.Is(err, itemdomain.ErrItemNotFound) {
		t.Errorf("Update: got %v", err)
	}
	if _, err := f.svc.Delete(ctx, id); !errors.Is(err, itemdomain.ErrItemNotFound) {
		t.Errorf("Delete: got %v", err)
	}
	if _, err := f.svc.ReplacePhoto(ctx, id, upload("p")); !errors.Is(err, itemdomain.ErrItemNotFound) {
		t.Errorf("ReplacePhoto: got %v", err)
	}
	if _, err := f.svc.FetchPhoto(ctx, id); !errors.Is(err, itemdomain.ErrItemNotFound) {
		t.Errorf("FetchPhoto: got %v", err)
	}
	if _, err := f.svc.Search(ctx, id, true); !errors.Is(err, itemdomain.ErrItemNotFound) {
		t.Errorf("Search: got %v", err)
	}
	if files := f.photoFiles(t); len(files) != 0 {
		t.Errorf("ReplacePhoto on unknown id left files: %v", files)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep, err := f.svc.Register(ctx, "Saw", "", upload("saw"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("item with photo removes the file", func(t *testing.T) {
		drill, err := f.svc.Register(ctx, "Drill", "", upload("drill"))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		id, err := f.svc.Delete(ctx, drill.ID)
		if err != nil || id != drill.ID {
			t.Fatalf("delete: %q, %v", id, err)
		}
		if _, err := os.Stat(filepath.Join(f.photoDir, drill.PhotoRef)); !os.IsNotExist(err) {
			t.Fatalf("photo file still present: %v", err)
		}
		if _, err := f.svc.FetchPhoto(ctx, drill.ID); !errors.Is(err, itemdomain.ErrItemNotFound) {
			t.Fatalf("expected ErrItemNotFound, got %v", err)
		}
	})

	t.Run("item without photo leaves photo directory untouched", func(t *testing.T) {
		plain, err := f.svc.Register(ctx, "Tape", "", nil)
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		before := f.photoFiles(t)
		if _, err := f.svc.Delete(ctx, plain.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		after := f.photoFiles(t)
		if strings.Join(before, ",") != strings.Join(after, ",") {
			t.Fatalf("photo dir changed: %v -> %v", before, after)
		}
	})

	files := f.photoFiles(t)
	if len(files) != 1 || files[0] != keep.PhotoRef {
		t.Fatalf("expected only %s to remain, got %v", keep.PhotoRef, files)
	}
}

func TestReplacePhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.Register(ctx, "Drill", "", upload("old"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	updated, err := f.svc.ReplacePhoto(ctx, item.ID, &PhotoUpload{Data: []byte("new"), Filename: "n.png"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if updated.PhotoRef == item.PhotoRef || !strings.HasSuffix(updated.PhotoRef, ".png") {
		t.Fatalf("unexpected photo ref %q", updated.PhotoRef)
	}

	files := f.photoFiles(t)
	if len(files) != 1 || files[0] != updated.PhotoRef {
		t.Fatalf("expected exactly the new photo file, got %v", files)
	}

	photo, err := f.svc.FetchPhoto(ctx, item.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(photo.Data, []byte("new")) {
		t.Fatalf("fetched %q, want new bytes", photo.Data)
	}

	t.Run("item without photo gains one", func(t *testing.T) {
		plain, err := f.svc.Register(ctx, "Tape", "", nil)
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		got, err := f.svc.ReplacePhoto(ctx, plain.ID, upload("tape"))
		if err != nil {
			t.Fatalf("replace: %v", err)
		}
		if !got.HasPhoto() {
			t.Fatal("expected a photo reference")
		}
	})

	t.Run("empty upload is rejected", func(t *testing.T) {
		if _, err := f.svc.ReplacePhoto(ctx, item.ID, &PhotoUpload{}); !errors.Is(err, itemdomain.ErrInvalidPhoto) {
			t.Fatalf("expected ErrInvalidPhoto, got %v", err)
		}
	})
}

func TestFetchPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("no photo", func(t *testing.T) {
		item, _ := f.svc.Register(ctx, "Tape", "", nil)
		_, err := f.svc.FetchPhoto(ctx, item.ID)
		if !errors.Is(err, itemdomain.ErrPhotoNotFound) {
			t.Fatalf("expected ErrPhotoNotFound, got %v", err)
		}
		if errors.Is(err, itemdomain.ErrPhotoMissing) {
			t.Fatal("no photo must not be reported as an integrity fault")
		}
	})

	t.Run("file gone from disk", func(t *testing.T) {
		item, _ := f.svc.Register(ctx, "Drill", "", upload("drill"))
		if err := os.Remove(filepath.Join(f.photoDir, item.PhotoRef)); err != nil {
			t.Fatal(err)
		}
		_, err := f.svc.FetchPhoto(ctx, item.ID)
		if !errors.Is(err, itemdomain.ErrPhotoMissing) {
			t.Fatalf("expected ErrPhotoMissing, got %v", err)
		}
	})
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, err := f.svc.Register(ctx, "<Drill>", "cordless", upload("d"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	link := PhotoPath(item.ID)

	withLink, err := f.svc.Search(ctx, item.ID, true)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(withLink, link) {
		t.Errorf("expected photo link %q in %q", link, withLink)
	}
	if !strings.Contains(withLink, "&lt;Drill&gt;") || !strings.Contains(withLink, "cordless") {
		t.Errorf("expected escaped name and description in %q", withLink)
	}

	withoutLink, err := f.svc.Search(ctx, item.ID, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if strings.Contains(withoutLink, link) {
		t.Errorf("unexpected photo link in %q", withoutLink)
	}

	plain, _ := f.svc.Register(ctx, "Tape", "", nil)
	out, err := f.svc.Search(ctx, plain.ID, true)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if strings.Contains(out, "/photo") {
		t.Errorf("item without photo must not link one: %q", out)
	}
}

func TestEventsFollowCommittedChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, _ := f.svc.Register(ctx, "Drill", "", nil)
	_, _ = f.svc.Update(ctx, item.ID, models.None[string](), models.None[string]())
	_, _ = f.svc.Update(ctx, item.ID, models.None[string](), models.Some("x"))
	_, _ = f.svc.ReplacePhoto(ctx, item.ID, upload("p"))
	_, _ = f.svc.Delete(ctx, item.ID)
	_, _ = f.svc.Delete(ctx, item.ID)

	want := []string{
		itemevents.TopicItemRegistered,
		itemevents.TopicItemUpdated,
		itemevents.TopicItemPhotoReplaced,
		itemevents.TopicItemDeleted,
	}
	got := f.pub.Topics()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("topics: got %v, want %v", got, want)
	}
}

// lockCheckingPublisher records, for each event, whether the inventory lock
// was held while it was published.
type lockCheckingPublisher struct {
	repo       repositories.ItemRepository
	mu         sync.Mutex
	lockedWhen []bool
}

func (p *lockCheckingPublisher) Publish(ctx context.Context, _ string, _ ...*message.Message) error {
	err := p.repo.View(ctx, func(models.Collection) error { return nil })
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lockedWhen = append(p.lockedWhen, errors.Is(err, itemdomain.ErrBusy))
	return nil
}

func TestEventsArePublishedUnderTheStoreLock(t *testing.T) {
	dir := t.TempDir()
	log := logger.New(&config.Config{LogLevel: "error"})
	repo, err := jsonfile.NewItemRepository(filepath.Join(dir, "inventory.json"), 20*time.Millisecond, log)
	if err != nil {
		t.Fatalf("NewItemRepository: %v", err)
	}
	photos, err := filesystem.NewPhotoStore(filepath.Join(dir, "photos"), log)
	if err != nil {
		t.Fatalf("NewPhotoStore: %v", err)
	}
	pub := &lockCheckingPublisher{repo: repo}
	svc, err := NewItemService(repo, photos, pub, log, 1024)
	if err != nil {
		t.Fatalf("NewItemService: %v", err)
	}

	ctx := context.Background()
	item, err := svc.Register(ctx, "Drill", "", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Update(ctx, item.ID, models.None[string](), models.Some("cordless")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.ReplacePhoto(ctx, item.ID, upload("p")); err != nil {
		t.Fatalf("replace photo: %v", err)
	}
	if _, err := svc.Delete(ctx, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.lockedWhen) != 4 {
		t.Fatalf("expected 4 events, got %d", len(pub.lockedWhen))
	}
	for i, locked := range pub.lockedWhen {
		if !locked {
			t.Errorf("event %d was published after the lock was released", i)
		}
	}
}

func TestPhotoPath(t *testing.T) {
	if got := PhotoPath("a/b"); got != "/inventory/a%2Fb/photo" {
		t.Fatalf("got %q", got)
	}
}
