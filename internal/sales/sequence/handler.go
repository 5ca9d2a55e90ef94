package sequence

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smt-trading/crm/internal/platform/httpx"
)

type Handler struct {
	logger    *slog.Logger
	allocator *Allocator
}

func NewHandler(logger *slog.Logger, allocator *Allocator) *Handler {
	return &Handler{logger: logger, allocator: allocator}
}

// Next allocates and returns a number. The number is consumed even if the caller
// never uses it.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	docType, err := ParseDocumentType(chi.URLParam(r, "type"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	number, err := h.allocator.Next(r.Context(), docType)
	if err != nil {
		httpx.Fail(w, h.logger, "allocate document number failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"type": string(docType), "number": number})
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sequences/{type}/next", h.Next)
}
