package handlers

import (
	"net/http"

	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	pkgvalidator "github.com/ghuser/inventorycatalog/pkg/validator"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
)

// RegisterItemForm is the form body of POST /register. The photo is an
// optional file field named "photo".
type RegisterItemForm struct {
	Name        string `json:"name"        validate:"required,max=255"`
	Description string `json:"description" validate:"max=4096"`
}

// RegisterItemHandler handles POST /register requests.
type RegisterItemHandler struct{ handler }

// NewRegisterItemHandler returns a RegisterItemHandler backed by the given services.
func NewRegisterItemHandler(svc *appsvcs.Services, errs errhttp.Writer) *RegisterItemHandler {
	return &RegisterItemHandler{newHandler(svc, errs)}
}

// Execute registers a new item, with its photo when one is uploaded.
func (h *RegisterItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	defer cleanupForm(r)

	form := RegisterItemForm{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
	}
	if !pkgvalidator.ValidateStruct(w, &form) {
		return
	}

	photo, err := readPhoto(r, "photo")
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}

	item, err := h.svc.Item.Register(r.Context(), form.Name, form.Description, photo)
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}
