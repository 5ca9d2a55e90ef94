package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuotationsExpire sweeps open quotations whose validity has lapsed.
	TaskQuotationsExpire = "sales:quotations:expire"
	// TaskIdempotencyCleanup prunes old payment idempotency keys.
	TaskIdempotencyCleanup = "sales:idempotency:cleanup"
)

// QuotationExpiryPayload carries scheduling metadata.
type QuotationExpiryPayload struct {
	Trigger string `json:"trigger"`
}

// NewQuotationExpiryTask constructs the expiry sweep task.
func NewQuotationExpiryTask(trigger string) (*asynq.Task, error) {
	body, err := json.Marshal(QuotationExpiryPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationsExpire, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the key cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
