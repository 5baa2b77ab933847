package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
)

// DeleteItemResponse is returned on successful deletion.
type DeleteItemResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// DeleteItemHandler handles DELETE /inventory/{id} requests.
type DeleteItemHandler struct{ handler }

// NewDeleteItemHandler returns a DeleteItemHandler backed by the given services.
func NewDeleteItemHandler(svc *appsvcs.Services, errs errhttp.Writer) *DeleteItemHandler {
	return &DeleteItemHandler{newHandler(svc, errs)}
}

// Execute deletes an item and its photo.
func (h *DeleteItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.Item.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, DeleteItemResponse{Message: "Item deleted", ID: id})
}
