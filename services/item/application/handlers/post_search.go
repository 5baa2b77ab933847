package handlers

import (
	"net/http"

	"github.com/ghuser/inventorycatalog/pkg/errhttp"
	"github.com/ghuser/inventorycatalog/pkg/httpx"
	pkgvalidator "github.com/ghuser/inventorycatalog/pkg/validator"
	appsvcs "github.com/ghuser/inventorycatalog/services/item/application/services"
)

// SearchRequest is the JSON body of POST /search.
type SearchRequest struct {
	ID       string `json:"id"        validate:"required,notblank,max=128"`
	HasPhoto bool   `json:"has_photo"`
}

// SearchHandler handles POST /search requests.
type SearchHandler struct{ handler }

// NewSearchHandler returns a SearchHandler backed by the given services.
func NewSearchHandler(svc *appsvcs.Services, errs errhttp.Writer) *SearchHandler {
	return &SearchHandler{newHandler(svc, errs)}
}

// Execute renders the matching item as an HTML fragment.
func (h *SearchHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[SearchRequest](w, r)
	if !ok {
		return
	}

	page, err := h.svc.Item.Search(r.Context(), req.ID, req.HasPhoto)
	if err != nil {
		h.errs.WriteError(w, err)
		return
	}

	httpx.HTML(w, http.StatusOK, page)
}
