package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
)

// GetPhotoHandler handles GET /inventory/{id}/photo requests.
type GetPhotoHandler struct{ handler }

// NewGetPhotoHandler returns a GetPhotoHandler backed by the given services.
func NewGetPhotoHandler(svc *appsvcs.Services, errs errhttp.Writer) *GetPhotoHandler {
	return &GetPhotoHandler{newHandler(svc, errs)}
}

// Execute writes the item's photo bytes.
func (h *GetPhotoHandler) Execute(w http.ResponseWriter, r *http.Request) {
	photo, err := h.svc.Item.FetchPhoto(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}

	httpx.Blob(w, http.StatusOK, photo.ContentType, photo.Data)
}

// ReplacePhotoHandler handles PUT /inventory/{id}/photo requests. The new
// photo is the multipart file field "photo".
type ReplacePhotoHandler struct{ handler }

// NewReplacePhotoHandler returns a ReplacePhotoHandler backed by the given services.
func NewReplacePhotoHandler(svc *appsvcs.Services, errs errhttp.Writer) *ReplacePhotoHandler {
	return &ReplacePhotoHandler{newHandler(svc, errs)}
}

// Execute replaces the item's photo.
func (h *ReplacePhotoHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	defer cleanupForm(r)

	photo, err := readPhoto(r, "photo")
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}
	if photo == nil {
		h.errs.WriteError(w, itemdomain.ErrInvalidPhoto)
		return
	}

	item, err := h.svc.Item.ReplacePhoto(r.Context(), chi.URLParam(r, "id"), photo)
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}
