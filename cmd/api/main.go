package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ghuser/inventorycatalog/pkg/app"
	"github.com/ghuser/inventorycatalog/pkg/config"
	"github.com/ghuser/inventorycatalog/pkg/events"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	"github.com/ghuser/inventorycatalog/pkg/logger"
	"github.com/ghuser/inventorycatalog/pkg/telemetry"
	itemApi "github.com/ghuser/inventorycatalog/services/item/application/api"
	itemSubscribers "github.com/ghuser/inventorycatalog/services/item/application/subscribers"
	"github.com/ghuser/inventorycatalog/services/item/infrastructure/persistence/jsonfile"
	"github.com/ghuser/inventorycatalog/services/item/infrastructure/storage/filesystem"
)

const (
	// multipartOverhead is added to MAX_PHOTO_BYTES for form fields and part headers.
	multipartOverhead = 1 << 20
	shutdownTimeout   = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)
	if err := run(cfg, log); err != nil {
		log.Error("inventory catalog stopped", "error", err)
		os.Exit(1)
	}
}

// run serves the catalog until SIGINT or SIGTERM, then drains in-flight
// requests before stopping subscribers and flushing telemetry.
func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup otel: %w", err)
	}
	defer otelShutdown(context.Background()) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	items, err := jsonfile.NewItemRepository(cfg.InventoryPath(), cfg.LockTimeout, log)
	if err != nil {
		return fmt.Errorf("open inventory store: %w", err)
	}
	// A corrupt document does not stop startup: reads and writes fail with a
	// storage fault until an operator repairs it.
	if err := items.Ping(ctx); err != nil {
		log.Error("inventory document is unreadable", "path", items.Path(), "error", err)
	}

	photos, err := filesystem.NewPhotoStore(cfg.PhotoDir(), log)
	if err != nil {
		return fmt.Errorf("open photo store: %w", err)
	}
	log.Info("stores ready", "inventory", items.Path(), "photos", photos.Dir())

	eventBus := events.NewEventBus(cfg, log)
	defer eventBus.Close() //nolint:errcheck

	// Subscribers stop with subCtx, after the server has drained.
	subCtx, stopSubscribers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSubscribers()
	if err := itemSubscribers.RegisterAudit(subCtx, eventBus, log); err != nil {
		return fmt.Errorf("register subscribers: %w", err)
	}

	a := &app.Application{
		Config:   cfg,
		Logger:   log,
		EventBus: eventBus,
		Items:    items,
		Photos:   photos,
	}

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.Environment == config.EnvDevelopment,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			MaxBodyBytes:       cfg.MaxPhotoBytes + multipartOverhead,
			RequestsPerMinute:  cfg.RateLimitPerMin,
		},
		httpx.Middlewares{
			Recovery: logger.Recovery(log),
			Sentry:   telemetry.SentryMiddleware(),
			Tracing:  otelhttp.NewMiddleware(cfg.ServiceName),
			Logger:   logger.Middleware(log),
		},
	)
	r.Get("/health", httpx.HealthHandler(httpx.HealthChecks{
		Inventory: items,
		Photos:    photos,
		EventBus:  eventBus,
	}))
	r.Get("/metrics", metricsHandler.ServeHTTP)
	if err := registerRoutes(r, a); err != nil {
		return err
	}

	srv := httpx.NewServer(cfg.Addr(), r)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Environment)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// registerRoutes mounts the catalog routes at the root.
func registerRoutes(r chi.Router, a *app.Application) error {
	if err := itemApi.ItemRoutes(r, a); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}
	return nil
}
