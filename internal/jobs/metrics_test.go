package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("sales:quotations:expire").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("sales:quotations:expire").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sales:quotations:expire", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sales:quotations:expire", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("sales:quotations:expire")))
}

func TestAddProcessedIgnoresEmptyRuns(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddProcessed("sales:idempotency:cleanup", 0)
	m.AddProcessed("sales:idempotency:cleanup", 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.processed.WithLabelValues("sales:idempotency:cleanup")))

	var nilMetrics *Metrics
	nilMetrics.AddProcessed("x", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
