package pipeline

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
	q := r.URL.Query()
	if raw := q.Get("stage"); raw != "" {
		stage, err := ParseStage(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Stage = &stage
	}
	if id, ok, err := httpx.QueryInt64(r, "customer_id"); err != nil {
		httpx.RespondError(w, err)
		return
	} else if ok {
		filter.CustomerID = &id
	}
	filter.Tag = q.Get("tag")
	limit, offset, err := httpx.Page(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	deals, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list deals failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deals": deals, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get deal failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDealRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.CreateDeal(r.Context(), req)
	if err != nil {
		httpx.Fail(w, h.logger, "create deal failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateDealRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, "update deal failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) SetStage(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req SetStageRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.SetStage(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, "set deal stage failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	history, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "deal history failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, "pipeline stats failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
