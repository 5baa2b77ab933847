package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"path/filepath"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghuser/inventorycatalog/pkg/events"
	"github.com/ghuser/inventorycatalog/pkg/logger"
	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
	itemevents "github.com/ghuser/inventorycatalog/services/item/domain/events"
	"github.com/ghuser/inventorycatalog/services/item/domain/models"
	"github.com/ghuser/inventorycatalog/services/item/domain/repositories"
	domainsvcs "github.com/ghuser/inventorycatalog/services/item/domain/services"
)

const instrumentationName = "inventorycatalog/item"

// Publisher is the part of the EventBus the service needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// PhotoUpload is a photo received from a client.
type PhotoUpload struct {
	Data []byte
	// Filename is the client-side name; only its extension is kept.
	Filename string
}

var searchTemplate = template.Must(template.New("search").Parse(`<div class="item">
  <h2>{{.Name}}</h2>
  <p>ID: {{.ID}}</p>
  <p>Description: {{.Description}}</p>
{{- if .PhotoURL}}
  <p><a href="{{.PhotoURL}}"><img src="{{.PhotoURL}}" alt="{{.Name}}"></a></p>
{{- end}}
</div>
`))

type searchView struct {
	ID          string
	Name        string
	Description string
	PhotoURL    string
}

// ItemService implements the catalog operations on top of the inventory
// store and the photo store. Every operation is one load-mutate-save cycle;
// photo files are written inside the cycle and cleaned up by its commit or
// rollback hooks, so a stored reference always resolves to a file.
type ItemService struct {
	items         repositories.ItemRepository
	photos        repositories.PhotoStore
	bus           Publisher
	log           logger.Logger
	maxPhotoBytes int64

	tracer trace.Tracer
	ops    metric.Int64Counter
}

// NewItemService returns an ItemService. bus may be nil, in which case no
// events are published. maxPhotoBytes <= 0 disables the size cap.
func NewItemService(
	items repositories.ItemRepository,
	photos repositories.PhotoStore,
	bus Publisher,
	log logger.Logger,
	maxPhotoBytes int64,
) (*ItemService, error) {
	ops, err := otel.Meter(instrumentationName).Int64Counter(
		"catalog.operations",
		metric.WithDescription("Catalog operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}
	return &ItemService{
		items:         items,
		photos:        photos,
		bus:           bus,
		log:           log,
		maxPhotoBytes: maxPhotoBytes,
		tracer:        otel.Tracer(instrumentationName),
		ops:           ops,
	}, nil
}

// Register creates an item, storing its photo first when one is supplied.
func (s *ItemService) Register(ctx context.Context, name, description string, photo *PhotoUpload) (_ *models.Item, err error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Register")
	defer func() { s.finish(ctx, span, "register", err) }()

	itemName, err := models.NewItemName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", itemdomain.ErrInvalidItemName, err)
	}
	if photo != nil {
		if err := s.checkPhoto(photo); err != nil {
			return nil, err
		}
	}

	item, err := models.NewItem(itemName, description)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	if err := domainsvcs.ValidateItemForCreation(item); err != nil {
		return nil, fmt.Errorf("validate item: %w", err)
	}

	err = s.items.Transact(ctx, func(tx *repositories.Tx) error {
		if photo != nil {
			ref, err := s.storePhoto(ctx, tx, photo)
			if err != nil {
				return err
			}
			item.PhotoRef = ref
		}
		if err := tx.Insert(item); err != nil {
			return err
		}
		s.publishOnCommit(ctx, tx, itemevents.TopicItemRegistered, item.Clone())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register item: %w", err)
	}

	span.SetAttributes(attribute.String("item.id", item.ID))
	return item, nil
}

// List returns every item in document order.
func (s *ItemService) List(ctx context.Context) (_ models.Collection, err error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.List")
	defer func() { s.finish(ctx, span, "list", err) }()

	var out models.Collection
	err = s.items.View(ctx, func(items models.Collection) error {
		out = items.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return out, nil
}

// Get returns the item with the given id.
func (s *ItemService) Get(ctx context.Context, id string) (_ *models.Item, err error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Get", trace.WithAttributes(attribute.String("item.id", id)))
	defer func() { s.finish(ctx, span, "get", err) }()

	return s.get(ctx, id)
}

func (s *ItemService) get(ctx context.Context, id string) (*models.Item, error) {
	var found *models.Item
	err := s.items.View(ctx, func(items models.Collection) error {
		item := items.FindByID(id)
		if item == nil {
			return fmt.Errorf("%w: %s", itemdomain.ErrItemNotFound, id)
		}
		found = item.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return found, nil
}

// Update applies a partial update. A blank or absent name keeps the current
// name; a supplied description replaces the current one, even when empty.
// A new name and a supplied description pass the same rules as Register.
func (s *ItemService) Update(ctx context.Context, id string, name, description models.Optional[string]) (_ *models.Item, err error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Update", trace.WithAttributes(attribute.String("item.id", id)))
	defer func() { s.finish(ctx, span, "update", err) }()

	var updated *models.Item
	err = s.items.Transact(ctx, func(tx *repositories.Tx) error {
		item, err := tx.Find(id)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		changed, err := item.ApplyUpdate(name, description)
		if err != nil {
			return fmt.Errorf("%w: %w", itemdomain.ErrInvalidItemName, err)
		}
		if err := domainsvcs.ValidateUpdate(item, name, description); err != nil {
			return err
		}
		updated = item.Clone()
		if changed {
			tx.MarkDirty()
			s.publishOnCommit(ctx, tx, itemevents.TopicItemUpdated, updated)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return updated, nil
}

// Delete removes the item and, once the removal is persisted, its photo.
// Failing to remove the photo file is logged and does not fail the call.
func (s *ItemService) Delete(ctx context.Context, id string) (_ string, err error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Delete", trace.WithAttributes(attribute.String("item.id", id)))
	defer func() { s.finish(ctx, span, "delete", err) }()

	var removed *models.Item
	err = s.items.Transact(ctx, func(tx *repositories.Tx) error {
		item, err := tx.Remove(id)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		removed = item
		if item.HasPhoto() {
			ref := item.PhotoRef
			tx.OnCommit(func() { s.removePhoto(ctx, ref, "deleted item photo") })
		}
		s.publishOnCommit(ctx, tx, itemevents.TopicItemDeleted, item)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("delete item: %w", err)
	}
	return removed.ID, nil
}

// ReplacePhoto stores a new photo for the item and points the item at it.
// The superseded file is removed only after the new reference is persisted,
// and the new file is removed if the cycle fails.
func (s *ItemService) ReplacePhoto(ctx context.Context, id string, photo *PhotoUpload) (_ *models.Item, err error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.ReplacePhoto", trace.WithAttributes(attribute.String("item.id", id)))
	defer func() { s.finish(ctx, span, "replace_photo", err) }()

	if err := s.checkPhoto(photo); err != nil {
		return nil, err
	}

	var updated *models.Item
	err = s.items.Transact(ctx, func(tx *repositories.Tx) error {
		item, err := tx.Find(id)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}

		ref, err := s.storePhoto(ctx, tx, photo)
		if err != nil {
			return err
		}

		if old := item.PhotoRef; old != "" {
			tx.OnCommit(func() { s.removePhoto(ctx, old, "superseded photo") })
		}
		item.PhotoRef = ref
		item.UpdatedAt = time.Now().UTC()
		tx.MarkDirty()
		updated = item.Clone()
		s.publishOnCommit(ctx, tx, itemevents.TopicItemPhotoReplaced, updated)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace photo: %w", err)
	}
	return updated, nil
}

// FetchPhoto returns the item's photo. It fails with ErrPhotoNotFound when the
// item has no photo and with ErrPhotoMissing when the referenced file is gone.
func (s *ItemService) FetchPhoto(ctx context.Context, id string) (_ *repositories.Photo, err error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.FetchPhoto", trace.WithAttributes(attribute.String("item.id", id)))
	defer func() { s.finish(ctx, span, "fetch_photo", err) }()

	var photo *repositories.Photo
	// The fetch runs under the store lock so a concurrent replace or delete
	// cannot remove the file between lookup and read.
	err = s.items.View(ctx, func(items models.Collection) error {
		item := items.FindByID(id)
		if item == nil {
			return fmt.Errorf("%w: %s", itemdomain.ErrItemNotFound, id)
		}
		if !item.HasPhoto() {
			return fmt.Errorf("%w: item %s has no photo", itemdomain.ErrPhotoNotFound, id)
		}

		p, err := s.photos.Fetch(ctx, item.PhotoRef)
		if errors.Is(err, itemdomain.ErrPhotoNotFound) {
			s.log.ErrorContext(ctx, "photo file missing for item",
				"item_id", id, "photo", item.PhotoRef, "error", err)
			return fmt.Errorf("%w: item %s references %s", itemdomain.ErrPhotoMissing, id, item.PhotoRef)
		}
		if err != nil {
			return fmt.Errorf("fetch photo: %w", err)
		}
		photo = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch photo: %w", err)
	}
	return photo, nil
}

// Search renders an HTML description of the item. When includePhotoLink is
// set and the item has a photo, the output links to its photo route.
func (s *ItemService) Search(ctx context.Context, id string, includePhotoLink bool) (_ string, err error) {
	ctx, span := s.tracer.Start(ctx, "ItemService.Search", trace.WithAttributes(attribute.String("item.id", id)))
	defer func() { s.finish(ctx, span, "search", err) }()

	item, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}

	view := searchView{
		ID:          item.ID,
		Name:        item.Name.String(),
		Description: item.Description,
	}
	if includePhotoLink && item.HasPhoto() {
		view.PhotoURL = PhotoPath(item.ID)
	}

	var buf bytes.Buffer
	if err := searchTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render item: %w", err)
	}
	return buf.String(), nil
}

// PhotoPath is the route serving the photo of the item with the given id.
func PhotoPath(id string) string {
	return "/inventory/" + url.PathEscape(id) + "/photo"
}

func (s *ItemService) checkPhoto(photo *PhotoUpload) error {
	if photo == nil || len(photo.Data) == 0 {
		return fmt.Errorf("%w: photo is empty", itemdomain.ErrInvalidPhoto)
	}
	if s.maxPhotoBytes > 0 && int64(len(photo.Data)) > s.maxPhotoBytes {
		return fmt.Errorf("%w: photo exceeds %d bytes", itemdomain.ErrInvalidPhoto, s.maxPhotoBytes)
	}
	return nil
}

// storePhoto writes the upload and registers its removal should tx roll back.
func (s *ItemService) storePhoto(ctx context.Context, tx *repositories.Tx, photo *PhotoUpload) (string, error) {
	ref, err := s.photos.Store(ctx, photo.Data, filepath.Ext(photo.Filename))
	if err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	tx.OnRollback(func() { s.removePhoto(ctx, ref, "photo of abandoned change") })
	return ref, nil
}

func (s *ItemService) removePhoto(ctx context.Context, ref, what string) {
	if err := s.photos.Delete(context.WithoutCancel(ctx), ref); err != nil {
		s.log.WarnContext(ctx, "failed to delete "+what, "photo", ref, "error", err)
	}
}

// publishOnCommit emits an item event once tx is persisted. Commit hooks run
// before the store lock is released, so events leave in commit order. The
// mutation is already durable by then, so a failure is only logged.
func (s *ItemService) publishOnCommit(ctx context.Context, tx *repositories.Tx, topic string, item *models.Item) {
	if s.bus == nil {
		return
	}
	tx.OnCommit(func() { s.publish(ctx, topic, item) })
}

func (s *ItemService) publish(ctx context.Context, topic string, item *models.Item) {
	payload, err := json.Marshal(itemevents.NewItemEvent(topic, item.ID, item.Name.String(), item.PhotoRef))
	if err != nil {
		s.log.ErrorContext(ctx, "failed to encode item event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, events.NewMessage(payload)); err != nil {
		s.log.WarnContext(ctx, "failed to publish item event", "topic", topic, "item_id", item.ID, "error", err)
	}
}

func (s *ItemService) finish(ctx context.Context, span trace.Span, op string, err error) {
	outcome := outcomeOf(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if outcome == "storage_fault" {
			s.log.ErrorContext(ctx, "inventory storage fault", "operation", op, "error", err)
		}
	}
	span.End()
	s.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, itemdomain.ErrInvalidItemName),
		errors.Is(err, itemdomain.ErrInvalidDescription),
		errors.Is(err, itemdomain.ErrInvalidPhoto):
		return "invalid"
	case errors.Is(err, itemdomain.ErrPhotoMissing):
		return "integrity_fault"
	case errors.Is(err, itemdomain.ErrItemNotFound), errors.Is(err, itemdomain.ErrPhotoNotFound):
		return "not_found"
	case errors.Is(err, itemdomain.ErrBusy):
		return "busy"
	case errors.Is(err, itemdomain.ErrStorageFault):
		return "storage_fault"
	default:
		return "error"
	}
}
