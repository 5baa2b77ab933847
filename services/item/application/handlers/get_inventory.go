package handlers

import (
	"net/http"

	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
)

// ListItemsHandler handles GET /inventory requests.
type ListItemsHandler struct{ handler }

// NewListItemsHandler returns a ListItemsHandler backed by the given services.
func NewListItemsHandler(svc *appsvcs.Services, errs errhttp.Writer) *ListItemsHandler {
	return &ListItemsHandler{newHandler(svc, errs)}
}

// Execute lists every item.
func (h *ListItemsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Item.List(r.Context())
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}

	resp := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, resp)
}
