package conversion

import (
	"log/slog"
	"net/http"

	"github.com/smt-trading/crm/internal/platform/httpx"
	"github.com/smt-trading/crm/internal/sales/pipeline"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) ConvertQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.QuotationToOrder(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "convert quotation failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) LinkDeal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req pipeline.LinkQuotationRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	deal, err := h.service.DealToQuotation(r.Context(), id, req.QuotationID)
	if err != nil {
		httpx.Fail(w, h.logger, "link deal failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, deal)
}
