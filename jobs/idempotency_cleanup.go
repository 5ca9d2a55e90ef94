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

// DefaultKeyRetention is used when the task payload carries no retention.
const DefaultKeyRetention = 30 * 24 * time.Hour

// KeyPruner deletes idempotency keys created before cutoff.
type KeyPruner interface {
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdempotencyCleanupJob keeps the idempotency_keys table bounded.
type IdempotencyCleanupJob struct {
	Keys    KeyPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

func NewIdempotencyCleanupJob(keys KeyPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{
		Keys:    keys,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskIdempotencyCleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultKeyRetention
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.clock().Add(-payload.Retention)
	removed, err := j.Keys.Cleanup(ctx, cutoff)
	if err != nil {
		loggerOrDefault(j.Logger).Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	metrics.AddProcessed(TaskIdempotencyCleanup, removed)
	loggerOrDefault(j.Logger).Info("idempotency keys pruned", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return nil
}
