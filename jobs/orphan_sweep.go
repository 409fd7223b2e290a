package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/orderdesk/orderdesk/internal/ledger"
	"github.com/orderdesk/orderdesk/internal/observability"
	"github.com/orderdesk/orderdesk/internal/orders"
)

// SweepStore is the slice of order persistence the sweep needs.
type SweepStore interface {
	ListStaleAttempts(ctx context.Context, cutoff time.Time) ([]orders.Attempt, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, status ledger.PaymentStatus) error
	FinishAttempt(ctx context.Context, id int64, state orders.AttemptState) error
}

// OrphanSweepJob settles order-creation attempts whose coordinator died
// mid-sequence. An attempt stalled before inventory applied owns an order
// with no stock behind it, so the order is voided. An attempt stalled after
// inventory applied owns a fully consistent unpaid order, so the attempt is
// simply closed and the order kept.
type OrphanSweepJob struct {
	Store   SweepStore
	Logger  *slog.Logger
	Metrics *observability.Metrics
	clock   func() time.Time
}

// NewOrphanSweepJob initialises the sweep handler.
func NewOrphanSweepJob(store SweepStore, logger *slog.Logger, metrics *observability.Metrics) *OrphanSweepJob {
	return &OrphanSweepJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep run.
func (j *OrphanSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("orphan sweep: handler not configured")
	}
	var payload OrphanSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThanMinutes <= 0 {
		payload.OlderThanMinutes = 30
	}

	logger := j.logger().With(slog.Int("older_than_minutes", payload.OlderThanMinutes))
	cutoff := j.now().Add(-time.Duration(payload.OlderThanMinutes) * time.Minute)

	attempts, err := j.Store.ListStaleAttempts(ctx, cutoff)
	if err != nil {
		logger.Error("list stale attempts", slog.Any("error", err))
		return err
	}
	if len(attempts) == 0 {
		return nil
	}

	voided, closed := 0, 0
	for _, attempt := range attempts {
		switch attempt.Stage {
		case orders.StageStarted, orders.StageItemsPersisted:
			if attempt.OrderID != nil {
				if err := j.Store.UpdatePaymentStatus(ctx, *attempt.OrderID, ledger.StatusCancelled); err != nil {
					logger.Error("void orphan order", slog.Any("error", err), slog.Int64("order_id", *attempt.OrderID))
					continue
				}
				logger.Warn("voided orphan order",
					slog.Int64("order_id", *attempt.OrderID),
					slog.String("stage", string(attempt.Stage)),
					slog.Time("started_at", attempt.CreatedAt),
				)
			}
			if err := j.Store.FinishAttempt(ctx, attempt.ID, orders.AttemptVoided); err != nil {
				logger.Error("void attempt", slog.Any("error", err), slog.Int64("attempt_id", attempt.ID))
				continue
			}
			voided++
			if j.Metrics != nil {
				j.Metrics.OrphanOrdersSwept.Inc()
			}
		default:
			// Inventory already applied: the order is consistent and can
			// still take its payment. Close the attempt, keep the order.
			if err := j.Store.FinishAttempt(ctx, attempt.ID, orders.AttemptCompleted); err != nil {
				logger.Error("close attempt", slog.Any("error", err), slog.Int64("attempt_id", attempt.ID))
				continue
			}
			closed++
		}
	}

	logger.Info("orphan sweep completed",
		slog.Int("stale", len(attempts)),
		slog.Int("voided", voided),
		slog.Int("closed", closed),
	)
	return nil
}

func (j *OrphanSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeOrphanSweep))
	}
	return slog.Default().With(slog.String("job", TaskTypeOrphanSweep))
}

func (j *OrphanSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
