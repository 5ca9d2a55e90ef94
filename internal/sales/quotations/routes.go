package quotations

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotations", h.List)
	r.Post("/quotations", h.Create)
	r.Get("/quotations/{id}", h.Show)
	r.Put("/quotations/{id}/items", h.ReplaceItems)
	r.Post("/quotations/{id}/status", h.SetStatus)
}
