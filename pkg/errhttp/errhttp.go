// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to mapErrorToStatus for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/ghuser/inventorycatalog/pkg/httpx"
	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
)

// retryAfterSeconds is advertised to clients that hit a busy inventory.
const retryAfterSeconds = "1"

// Writer writes domain errors as JSON responses. In production, 5xx messages
// are replaced with the status text.
type Writer struct {
	IsProduction bool
}

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Defaults to 500 Internal Server Error for unrecognized errors.
func WriteError(w http.ResponseWriter, err error) {
	Writer{}.WriteError(w, err)
}

// WriteError maps err to an HTTP status code and writes a JSON error response.
func (ew Writer) WriteError(w http.ResponseWriter, err error) {
	status := mapErrorToStatus(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	httpx.JSONError(w, status, httpx.SafeError(err, status, ew.IsProduction))
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, itemdomain.ErrItemNotFound),
		errors.Is(err, itemdomain.ErrPhotoNotFound),
		errors.Is(err, itemdomain.ErrPhotoMissing):
		return http.StatusNotFound // 404
	case errors.Is(err, itemdomain.ErrItemAlreadyExists):
		return http.StatusConflict // 409
	case errors.Is(err, itemdomain.ErrInvalidItemName),
		errors.Is(err, itemdomain.ErrInvalidDescription),
		errors.Is(err, itemdomain.ErrInvalidPhoto):
		return http.StatusBadRequest // 400
	case errors.Is(err, itemdomain.ErrBusy):
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
