package httpx

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker is satisfied by any infrastructure dependency that exposes
// a Ping method (inventory store, photo store and EventBus all qualify).
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthChecks holds the set of dependencies to probe in the health endpoint.
type HealthChecks struct {
	Inventory HealthChecker
	Photos    HealthChecker
	EventBus  HealthChecker
}

type healthResponse struct {
	Status    string `json:"status"`
	Inventory string `json:"inventory"`
	Photos    string `json:"photos"`
	EventBus  string `json:"event_bus"`
}

// HealthHandler returns an http.HandlerFunc that probes all registered
// HealthCheckers and reports degraded status if any of them fail.
func HealthHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:    "ok",
			Inventory: "ok",
			Photos:    "ok",
			EventBus:  "ok",
		}

		if err := checks.Inventory.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Inventory = "unreadable"
		}
		if err := checks.Photos.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Photos = "unavailable"
		}
		if err := checks.EventBus.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.EventBus = "closed"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, resp)
	}
}
