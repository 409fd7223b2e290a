package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOrphanSweep voids order-creation attempts that stalled
	// mid-sequence without reporting back.
	TaskTypeOrphanSweep = "orders:orphan_sweep"
	// TaskTypeIdemCleanup prunes expired idempotency keys.
	TaskTypeIdemCleanup = "orders:idempotency_cleanup"
)

// OrphanSweepPayload configures one sweep run.
type OrphanSweepPayload struct {
	OlderThanMinutes int `json:"older_than_minutes"`
}

// NewOrphanSweepTask constructs an orphan sweep task.
func NewOrphanSweepTask(olderThanMinutes int) (*asynq.Task, error) {
	data, err := json.Marshal(OrphanSweepPayload{OlderThanMinutes: olderThanMinutes})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOrphanSweep, data), nil
}

// IdemCleanupPayload configures the idempotency key retention window.
type IdemCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdemCleanupTask constructs an idempotency cleanup task.
func NewIdemCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdemCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdemCleanup, data), nil
}
