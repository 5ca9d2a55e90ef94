package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/smt-trading/crm/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// QuotationExpirer is implemented by the quotations service.
type QuotationExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// QuotationExpiryJob expires quotations past their valid_until date.
type QuotationExpiryJob struct {
	Quotations QuotationExpirer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewQuotationExpiryJob wires dependencies for the expiry handler.
func NewQuotationExpiryJob(quotations QuotationExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuotationExpiryJob {
	return &QuotationExpiryJob{Quotations: quotations, Logger: logger, Metrics: metrics}
}

// Handle processes TaskQuotationsExpire.
func (j *QuotationExpiryJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Quotations == nil {
		return errors.New("quotation expiry: handler not configured")
	}
	var payload QuotationExpiryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskQuotationsExpire)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := loggerOrDefault(j.Logger).With(slog.String("trigger", payload.Trigger))
	start := time.Now()
	expired, err := j.Quotations.ExpireOverdue(ctx)
	if err != nil {
		logger.Error("expire quotations", slog.Any("error", err))
		return err
	}
	metrics.AddProcessed(TaskQuotationsExpire, int64(expired))
	logger.Info("quotation expiry completed", slog.Int("expired", expired), slog.Duration("duration", time.Since(start)))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
