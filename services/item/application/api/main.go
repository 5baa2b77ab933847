package api

import (
	"fmt"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/inventorycatalog/pkg/app"
	"github.com/ghuser/inventorycatalog/pkg/config"
	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/services/item/application/handlers"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
)

// ItemRoutes registers item endpoints on the provided chi router.
func ItemRoutes(r chi.Router, a *app.Application) error {
	svcs, err := appsvcs.New(a)
	if err != nil {
		return fmt.Errorf("item routes: %w", err)
	}
	errs := errhttp.Writer{IsProduction: a.Config.Environment == config.EnvProduction}

	r.Group(func(r chi.Router) {
		r.Post("/register", handlers.NewRegisterItemHandler(svcs, errs).Execute)
		r.Post("/search", handlers.NewSearchHandler(svcs, errs).Execute)
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", handlers.NewListItemsHandler(svcs, errs).Execute)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.NewGetItemHandler(svcs, errs).Execute)
				r.Put("/", handlers.NewUpdateItemHandler(svcs, errs).Execute)
				r.Delete("/", handlers.NewDeleteItemHandler(svcs, errs).Execute)
				r.Get("/photo", handlers.NewGetPhotoHandler(svcs, errs).Execute)
				r.Put("/photo", handlers.NewReplacePhotoHandler(svcs, errs).Execute)
			})
		})
	})
	return nil
}
