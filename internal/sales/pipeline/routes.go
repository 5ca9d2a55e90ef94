package pipeline

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pipeline/stats", h.Stats)
	r.Get("/pipeline/deals", h.List)
	r.Post("/pipeline/deals", h.Create)
	r.Get("/pipeline/deals/{id}", h.Show)
	r.Put("/pipeline/deals/{id}", h.Update)
	r.Post("/pipeline/deals/{id}/stage", h.SetStage)
	r.Get("/pipeline/deals/{id}/history", h.History)
}
