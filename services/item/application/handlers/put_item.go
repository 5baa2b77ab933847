package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	pkgvalidator "github.com/ghuser/inventorycatalog/pkg/validator"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
	"github.com/ghuser/inventorycatalog/services/item/domain/models"
)

// UpdateItemRequest is the JSON body of PUT /inventory/{id}. Omitted fields
// are left unchanged; a blank name is ignored; an empty or null description
// clears it.
type UpdateItemRequest struct {
	Name        models.Optional[string] `json:"name"`
	Description models.Optional[string] `json:"description"`
}

// UpdateItemHandler handles PUT /inventory/{id} requests.
type UpdateItemHandler struct{ handler }

// NewUpdateItemHandler returns an UpdateItemHandler backed by the given services.
func NewUpdateItemHandler(svc *appsvcs.Services, errs errhttp.Writer) *UpdateItemHandler {
	return &UpdateItemHandler{newHandler(svc, errs)}
}

// Execute applies a partial update to an item.
func (h *UpdateItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[UpdateItemRequest](w, r)
	if !ok {
		return
	}

	item, err := h.svc.Item.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}
