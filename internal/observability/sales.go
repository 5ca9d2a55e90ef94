package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SalesMetrics counts sales document lifecycle events. It satisfies the recorder the
// sales services report to.
type SalesMetrics struct {
	allocated   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	payments    *prometheus.CounterVec
	paidAmount  prometheus.Counter
}

func NewSalesMetrics(registerer prometheus.Registerer) *SalesMetrics {
	m := &SalesMetrics{
		allocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sales",
			Name:      "documents_allocated_total",
			Help:      "Document numbers allocated by document type.",
		}, []string{"type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sales",
			Name:      "status_transitions_total",
			Help:      "Lifecycle status changes by entity and target status.",
		}, []string{"entity", "status"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sales",
			Name:      "payments_total",
			Help:      "Payments recorded by resulting payment status.",
		}, []string{"payment_status"}),
		paidAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sales",
			Name:      "payments_amount_total",
			Help:      "Sum of recorded payment amounts across currencies.",
		}),
	}
	registerer.MustRegister(m.allocated, m.transitions, m.payments, m.paidAmount)
	return m
}

func (m *SalesMetrics) DocumentAllocated(docType string) {
	if m == nil {
		return
	}
	m.allocated.WithLabelValues(docType).Inc()
}

func (m *SalesMetrics) StatusChanged(entity, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, status).Inc()
}

func (m *SalesMetrics) PaymentRecorded(paymentStatus string, amount float64) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(paymentStatus).Inc()
	if amount > 0 {
		m.paidAmount.Add(amount)
	}
}
