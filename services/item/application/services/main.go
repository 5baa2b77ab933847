package services

import (
	"fmt"

	"github.com/ghuser/inventorycatalog/pkg/app"
)

// Services is the application-layer service container for this bounded context.
// It wires domain services with their infrastructure implementations.
type Services struct {
	Item *ItemService
}

// New wires all item application services with infrastructure from the Application container.
func New(a *app.Application) (*Services, error) {
	var bus Publisher
	if a.EventBus != nil {
		bus = a.EventBus
	}
	itemSvc, err := NewItemService(a.Items, a.Photos, bus, a.Logger, a.Config.MaxPhotoBytes)
	if err != nil {
		return nil, fmt.Errorf("item service: %w", err)
	}
	return &Services{Item: itemSvc}, nil
}
