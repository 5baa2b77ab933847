// Package handlers adapts HTTP requests to catalog operations, one handler
// per route.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
	"github.com/ghuser/inventorycatalog/services/item/domain/models"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const multipartMemory = 8 << 20

// ItemResponse is the public shape of an item.
type ItemResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PhotoURL    *string `json:"photoUrl"`
}

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handler carries what every route needs.
type handler struct {
	svc  *appsvcs.Services
	errs errhttp.Writer
}

func newHandler(svc *appsvcs.Services, errs errhttp.Writer) handler {
	return handler{svc: svc, errs: errs}
}

func toItemResponse(item *models.Item) ItemResponse {
	resp := ItemResponse{
		ID:          item.ID,
		Name:        item.Name.String(),
		Description: item.Description,
	}
	if item.HasPhoto() {
		u := appsvcs.PhotoPath(item.ID)
		resp.PhotoURL = &u
	}
	return resp
}

// parseForm accepts multipart and urlencoded bodies. It writes the error
// response itself and returns false on failure.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.JSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	httpx.JSONError(w, http.StatusBadRequest, "Invalid form")
	return false
}

// readPhoto returns the uploaded file in field, or nil when none was sent.
func readPhoto(r *http.Request, field string) (*appsvcs.PhotoUpload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", itemdomain.ErrInvalidPhoto, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %w", itemdomain.ErrInvalidPhoto, err)
	}
	return &appsvcs.PhotoUpload{Data: data, Filename: header.Filename}, nil
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
