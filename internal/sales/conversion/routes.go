package conversion

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/quotations/{id}/convert", h.ConvertQuotation)
	r.Post("/pipeline/deals/{id}/quotation", h.LinkDeal)
}
