package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/orderdesk/orderdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrderBalance(ctx context.Context, orderID int64) (*OrderBalance, error)
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Payment, error)
	MarkCancelled(ctx context.Context, paymentID int64) error
}

// IdempotencyPort claims payment submission keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RecordInput carries everything needed to append one payment.
type RecordInput struct {
	OrderID        int64
	OrgID          int64
	Amount         float64
	Method         string
	Reference      *string
	RecordedBy     int64
	IdempotencyKey string
}

// Service is the payment ledger. All amount validation happens here before
// any write: a rejected payment leaves the ledger and the order balance
// exactly as they were.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	idem   IdempotencyPort
	audit  AuditPort
	now    func() time.Time
}

// NewService builds a Service.
func NewService(logger *slog.Logger, repo RepositoryPort, idem IdempotencyPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, idem: idem, audit: audit, now: time.Now}
}

// Record appends a payment against an order and recomputes its balance and
// status inside one transaction. The order row is locked for the duration,
// so concurrent payments serialize and overpayment is impossible.
func (s *Service) Record(ctx context.Context, in RecordInput) (*Payment, error) {
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if in.Method == "" {
		return nil, shared.Validationf("payment method is required")
	}

	if in.IdempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, "ledger"); err != nil {
			return nil, err
		}
	}

	payment := &Payment{
		OrderID:    in.OrderID,
		Amount:     in.Amount,
		Method:     in.Method,
		Reference:  in.Reference,
		RecordedBy: in.RecordedBy,
		State:      PaymentActive,
		CreatedAt:  s.now().UTC(),
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bal, err := tx.GetOrderForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if in.OrgID != 0 && bal.OrgID != in.OrgID {
			return shared.ErrNotFound
		}
		if bal.Status == StatusCancelled {
			return ErrOrderCancelled
		}
		if in.Amount > bal.Outstanding+balanceEpsilon {
			return fmt.Errorf("amount %.2f against outstanding %.2f: %w", in.Amount, bal.Outstanding, ErrExceedsBalance)
		}

		outstanding := bal.Outstanding - in.Amount
		if outstanding < balanceEpsilon {
			outstanding = 0
		}

		payment.Number = paymentNumber(bal.Number, payment.CreatedAt)
		id, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id

		return tx.UpdateOrderBalance(ctx, in.OrderID, outstanding, DeriveStatus(bal.Total, outstanding, true))
	})
	if err != nil {
		if in.IdempotencyKey != "" {
			if delErr := s.idem.Delete(ctx, in.IdempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr), slog.String("key", in.IdempotencyKey))
			}
		}
		return nil, err
	}

	s.recordAudit(ctx, in.RecordedBy, "ledger:record", payment)
	return payment, nil
}

// Cancel marks a payment cancelled. Per policy this never reverses the order
// balance; corrections are issued as new ledger entries.
func (s *Service) Cancel(ctx context.Context, orgID, paymentID, actorID int64) (*Payment, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if orgID != 0 {
		bal, err := s.repo.GetOrderBalance(ctx, payment.OrderID)
		if err != nil {
			return nil, err
		}
		if bal.OrgID != orgID {
			return nil, shared.ErrNotFound
		}
	}
	if payment.State == PaymentCancelled {
		return nil, ErrPaymentCancelled
	}
	if err := s.repo.MarkCancelled(ctx, paymentID); err != nil {
		return nil, err
	}
	payment.State = PaymentCancelled

	s.recordAudit(ctx, actorID, "ledger:cancel", payment)
	return payment, nil
}

// OrderReceipt builds the receipt view of an order. Cancelled payments stay
// in the listing but contribute nothing to the paid total.
func (s *Service) OrderReceipt(ctx context.Context, orgID, orderID int64) (*Receipt, error) {
	bal, err := s.repo.GetOrderBalance(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if orgID != 0 && bal.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	payments, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var paid float64
	for _, p := range payments {
		if p.State == PaymentActive {
			paid += p.Amount
		}
	}
	return &Receipt{
		OrderID:     bal.OrderID,
		OrderNumber: bal.Number,
		Total:       bal.Total,
		PaidTotal:   paid,
		Outstanding: bal.Outstanding,
		Payments:    payments,
	}, nil
}

// Payments lists the ledger entries for an order, newest first.
func (s *Service) Payments(ctx context.Context, orgID, orderID int64) ([]Payment, error) {
	bal, err := s.repo.GetOrderBalance(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if orgID != 0 && bal.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	return s.repo.ListByOrder(ctx, orderID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, p *Payment) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(p.ID, 10),
		Meta: map[string]any{
			"order_id": p.OrderID,
			"number":   p.Number,
			"amount":   p.Amount,
			"method":   p.Method,
		},
	})
	if err != nil {
		s.logger.Warn("audit payment", slog.Any("error", err), slog.String("action", action))
	}
}

func paymentNumber(orderNumber string, at time.Time) string {
	return fmt.Sprintf("PAY-%s-%d", orderNumber, at.UnixMilli())
}
