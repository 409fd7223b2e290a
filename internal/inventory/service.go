package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orderdesk/orderdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service applies stock reservations for committed order lines. It is the
// only component that mutates stock.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	audit  AuditPort
}

// NewService builds a Service.
func NewService(logger *slog.Logger, repo RepositoryPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, audit: audit}
}

// Reserve decrements stock for every line inside one transaction. The
// decrement is conditional on sufficient stock, so concurrent orders for the
// same item serialize on the row and at most one drains the last unit. Any
// shortfall rolls the whole reservation back and reports the failing item.
func (s *Service) Reserve(ctx context.Context, actorID int64, refID string, lines []ReservationLine) error {
	if len(lines) == 0 {
		return nil
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			return ErrInvalidQuantity
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			if err := tx.DecrementStock(ctx, line.ItemID, line.Qty); err != nil {
				return fmt.Errorf("reserve item %d: %w", line.ItemID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, actorID, "inventory:reserve", refID, lines)
	return nil
}

// Release re-increments stock, used when a cancelled order returns its
// reserved units. It is not an automatic compensation path: only an explicit
// cancel or the sweep job calls it.
func (s *Service) Release(ctx context.Context, actorID int64, refID string, lines []ReservationLine) error {
	if len(lines) == 0 {
		return nil
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			return ErrInvalidQuantity
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			if err := tx.IncrementStock(ctx, line.ItemID, line.Qty); err != nil {
				return fmt.Errorf("release item %d: %w", line.ItemID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, actorID, "inventory:release", refID, lines)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, refID string, lines []ReservationLine) {
	if s.audit == nil {
		return
	}
	items := make([]map[string]int64, 0, len(lines))
	for _, line := range lines {
		items = append(items, map[string]int64{"item_id": line.ItemID, "qty": line.Qty})
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_reservation",
		EntityID: refID,
		Meta:     map[string]any{"lines": items},
	})
	if err != nil {
		s.logger.Warn("audit reservation", slog.Any("error", err), slog.String("action", action))
	}
}
