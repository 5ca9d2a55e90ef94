package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/smt-trading/crm/internal/jobs"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
)

var _ salesshared.Recorder = (*SalesMetrics)(nil)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/sales/orders/{id}")
	req := httptest.NewRequest(http.MethodGet, "/api/sales/orders/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `crm_http_requests_total{code="418",route="/api/sales/orders/{id}"} 1`)
	assert.Contains(t, body, `crm_http_request_duration_seconds_bucket{route="/api/sales/orders/{id}"`)
}

func TestSalesMetricsCountEvents(t *testing.T) {
	metrics := NewMetrics()
	sales := NewSalesMetrics(metrics.Registerer())

	sales.DocumentAllocated("quotation")
	sales.DocumentAllocated("quotation")
	sales.StatusChanged("order", "purchasing")
	sales.PaymentRecorded("partial", 10000)
	sales.PaymentRecorded("paid", 12000)

	assert.Equal(t, 2.0, testutil.ToFloat64(sales.allocated.WithLabelValues("quotation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sales.transitions.WithLabelValues("order", "purchasing")))
	assert.Equal(t, 22000.0, testutil.ToFloat64(sales.paidAmount))
	assert.Contains(t, scrape(t, metrics), `crm_sales_payments_total{payment_status="paid"} 1`)
}

func TestWorkerMetricsExposeJobCollectors(t *testing.T) {
	metrics := NewWorkerMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	sales := NewSalesMetrics(metrics.Registerer())

	_ = jobs.Track("sales:quotations:expire").End(errors.New("database unavailable"))
	sales.StatusChanged("quotation", "expired")

	body := scrape(t, metrics)
	assert.Contains(t, body, `crm_jobs_failures_total{job="sales:quotations:expire"} 1`)
	assert.Contains(t, body, `crm_sales_status_transitions_total{entity="quotation",status="expired"} 1`)
	assert.Contains(t, body, "go_goroutines")
	assert.NotContains(t, body, "crm_http_requests_total")

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	metrics.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var sales *SalesMetrics
	sales.StatusChanged("deal", "won")
	sales.PaymentRecorded("paid", 1)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return strings.TrimSpace(rr.Body.String())
}
