package orders

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/smt-trading/crm/internal/platform/httpx"
)

// IdempotencyHeader carries the client-chosen key that makes a payment request safe to
// retry.
const IdempotencyHeader = "Idempotency-Key"

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
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Status = &status
	}
	if raw := q.Get("payment_status"); raw != "" {
		ps, err := ParsePaymentStatus(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.PaymentStatus = &ps
	}
	limit, offset, err := httpx.Page(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list orders failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.Fail(w, h.logger, "create order failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Advance(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "advance order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
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
	o, err := h.service.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.Fail(w, h.logger, "set order status failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) SetItemStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req SetStatusRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.SetItemStatus(r.Context(), id, itemID, req.Status)
	if err != nil {
		httpx.Fail(w, h.logger, "set order item status failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RecordPaymentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyHeader))

	o, err := h.service.RecordPayment(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, h.logger, "record payment failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "list payments failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}
