package quotations

import (
	"log/slog"
	"net/http"

	"github.com/smt-trading/crm/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	if id, ok, err := httpx.QueryInt64(r, "customer_id"); err != nil {
		httpx.RespondError(w, err)
		return
	} else if ok {
		filter.CustomerID = &id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Status = &status
	}
	limit, offset, err := httpx.Page(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list quotations failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotations": items, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get quotation failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuotationRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.Fail(w, h.logger, "create quotation failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ReplaceItemsRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.ReplaceItems(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, "replace quotation items failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req SetStatusRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.Fail(w, h.logger, "set quotation status failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}
