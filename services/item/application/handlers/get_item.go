package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
)

// GetItemHandler handles GET /inventory/{id} requests.
type GetItemHandler struct{ handler }

// NewGetItemHandler returns a GetItemHandler backed by the given services.
func NewGetItemHandler(svc *appsvcs.Services, errs errhttp.Writer) *GetItemHandler {
	return &GetItemHandler{newHandler(svc, errs)}
}

// Execute returns one item.
func (h *GetItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Item.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}
