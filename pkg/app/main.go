package app

import (
	"github.com/ghuser/inventorycatalog/pkg/config"
	"github.com/ghuser/inventorycatalog/pkg/events"
	"github.com/ghuser/inventorycatalog/pkg/logger"
	"github.com/ghuser/inventorycatalog/services/item/domain/repositories"
)

// Application is the set of long-lived dependencies built once in cmd/api
// and handed to every route registration.
type Application struct {
	Config   *config.Config
	Logger   logger.Logger
	EventBus *events.EventBus
	// Items is the single owner of the inventory document.
	Items  repositories.ItemRepository
	Photos repositories.PhotoStore
}
