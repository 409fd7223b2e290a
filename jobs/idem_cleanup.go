package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyStore prunes claimed idempotency keys past their retention window.
type KeyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdemCleanupJob removes idempotency keys old enough that their requests can
// no longer be retried anyway.
type IdemCleanupJob struct {
	Store  KeyStore
	Logger *slog.Logger
}

// NewIdemCleanupJob initialises the cleanup handler.
func NewIdemCleanupJob(store KeyStore, logger *slog.Logger) *IdemCleanupJob {
	return &IdemCleanupJob{Store: store, Logger: logger}
}

// Handle executes one cleanup run.
func (j *IdemCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdemCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 48
	}

	retention := time.Duration(payload.RetentionHours) * time.Hour
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		j.logger().Error("cleanup idempotency keys", slog.Any("error", err))
		return err
	}
	j.logger().Info("idempotency cleanup completed", slog.Duration("retention", retention))
	return nil
}

func (j *IdemCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeIdemCleanup))
	}
	return slog.Default().With(slog.String("job", TaskTypeIdemCleanup))
}
