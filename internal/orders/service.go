package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/orderdesk/orderdesk/internal/catalog"
	"github.com/orderdesk/orderdesk/internal/inventory"
	"github.com/orderdesk/orderdesk/internal/ledger"
	"github.com/orderdesk/orderdesk/internal/observability"
	"github.com/orderdesk/orderdesk/internal/platform/httpx"
	"github.com/orderdesk/orderdesk/internal/shared"
)

// RepositoryPort abstracts order persistence for the coordinator.
type RepositoryPort interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, status ledger.PaymentStatus) error
	List(ctx context.Context, orgID int64, f Filters) ([]Summary, int, error)
	CreateAttempt(ctx context.Context, a *Attempt) error
	AdvanceAttempt(ctx context.Context, id int64, stage AttemptStage, orderID *int64) error
	FinishAttempt(ctx context.Context, id int64, state AttemptState) error
}

// CatalogPort provides the advisory snapshot the assembler prices against.
type CatalogPort interface {
	Snapshot(ctx context.Context, orgID int64) ([]catalog.CatalogItem, error)
	InvalidateSnapshot(ctx context.Context, orgID int64)
}

// ClientPort resolves the ordering client.
type ClientPort interface {
	GetClient(ctx context.Context, id int64) (orgID int64, err error)
}

// InventoryPort applies and releases stock reservations.
type InventoryPort interface {
	Reserve(ctx context.Context, actorID int64, refID string, lines []inventory.ReservationLine) error
	Release(ctx context.Context, actorID int64, refID string, lines []inventory.ReservationLine) error
}

// LedgerPort records the optional initial payment.
type LedgerPort interface {
	Record(ctx context.Context, in ledger.RecordInput) (*ledger.Payment, error)
}

// IdempotencyPort claims order creation keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ErrAlreadyCancelled rejects cancelling a cancelled order.
var ErrAlreadyCancelled = fmt.Errorf("%w: order already cancelled", httpx.ErrConflict)

// LineInput is one requested order line after transport decoding.
type LineInput struct {
	ItemID    *int64
	Name      string
	Qty       int64
	UnitPrice float64
	IsCustom  bool
}

// InitialPayment is the optional payment applied right after creation.
type InitialPayment struct {
	Amount    float64
	Method    string
	Reference *string
}

// CreateOrderInput carries everything needed to create one order.
type CreateOrderInput struct {
	ClientID       int64
	WorkerID       *int64
	Kind           Kind
	Notes          *string
	Lines          []LineInput
	InitialPayment *InitialPayment
	IdempotencyKey string
}

// Service coordinates order creation across the assembler, the order store,
// the inventory reservation and the payment ledger. Every attempt is
// persisted and advanced stage by stage, so a crashed run is visible to the
// sweep job instead of silently leaving partial state behind.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	catalog   CatalogPort
	clients   ClientPort
	inventory InventoryPort
	ledger    LedgerPort
	idem      IdempotencyPort
	audit     AuditPort
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewService builds the coordinator.
func NewService(
	logger *slog.Logger,
	repo RepositoryPort,
	catalogPort CatalogPort,
	clientPort ClientPort,
	inventoryPort InventoryPort,
	ledgerPort LedgerPort,
	idem IdempotencyPort,
	audit AuditPort,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		catalog:   catalogPort,
		clients:   clientPort,
		inventory: inventoryPort,
		ledger:    ledgerPort,
		idem:      idem,
		audit:     audit,
		metrics:   metrics,
		now:       time.Now,
	}
}

// CreateOrder runs the full creation sequence. Validation happens before any
// write; after that every committed step advances the persisted attempt. A
// failed reservation voids the order immediately. A failed initial payment
// leaves a fully consistent unpaid order behind and reports the order id so
// the payment can be retried on its own.
func (s *Service) CreateOrder(ctx context.Context, actor shared.Actor, in CreateOrderInput) (*Order, error) {
	order, err := s.validate(ctx, actor, in)
	if err != nil {
		return nil, err
	}

	if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, "orders"); err != nil {
		return nil, err
	}

	attempt := &Attempt{OrgID: actor.OrgID, Key: in.IdempotencyKey, Stage: StageStarted, State: AttemptPending}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		s.releaseKey(ctx, in.IdempotencyKey)
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	if err := s.repo.Create(ctx, order); err != nil {
		s.abortAttempt(ctx, attempt.ID)
		s.releaseKey(ctx, in.IdempotencyKey)
		return nil, &StageError{Stage: StageItemsPersisted, Err: err}
	}
	if err := s.repo.AdvanceAttempt(ctx, attempt.ID, StageItemsPersisted, &order.ID); err != nil {
		s.logger.Warn("advance attempt", slog.Any("error", err), slog.Int64("attempt_id", attempt.ID))
	}

	if err := s.reserveStock(ctx, actor, order); err != nil {
		// The header and lines are committed but no stock moved. Void the
		// order right away rather than leaving it for the sweep.
		s.voidOrder(ctx, attempt.ID, order.ID)
		s.releaseKey(ctx, in.IdempotencyKey)
		if s.metrics != nil && isOutOfStock(err) {
			s.metrics.StockRejections.Inc()
		}
		return nil, &StageError{Stage: StageInventoryApplied, OrderID: order.ID, Err: err}
	}
	if err := s.repo.AdvanceAttempt(ctx, attempt.ID, StageInventoryApplied, nil); err != nil {
		s.logger.Warn("advance attempt", slog.Any("error", err), slog.Int64("attempt_id", attempt.ID))
	}
	s.catalog.InvalidateSnapshot(ctx, actor.OrgID)

	if in.InitialPayment != nil {
		payment, err := s.ledger.Record(ctx, ledger.RecordInput{
			OrderID:        order.ID,
			OrgID:          actor.OrgID,
			Amount:         in.InitialPayment.Amount,
			Method:         in.InitialPayment.Method,
			Reference:      in.InitialPayment.Reference,
			RecordedBy:     actor.UserID,
			IdempotencyKey: in.IdempotencyKey + ":initial",
		})
		if err != nil {
			// Order, lines and stock are all consistent. Close the attempt
			// and surface the order id so the payment can be retried alone.
			s.closeAttempt(ctx, attempt.ID)
			return nil, &StageError{Stage: StagePaymentRecorded, OrderID: order.ID, Err: err}
		}
		order.Outstanding = order.Total - payment.Amount
		if order.Outstanding < 0 {
			order.Outstanding = 0
		}
		order.PaymentStatus = ledger.DeriveStatus(order.Total, order.Outstanding, true)
		if err := s.repo.AdvanceAttempt(ctx, attempt.ID, StagePaymentRecorded, nil); err != nil {
			s.logger.Warn("advance attempt", slog.Any("error", err), slog.Int64("attempt_id", attempt.ID))
		}
	}

	s.closeAttempt(ctx, attempt.ID)
	if s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}
	s.recordAudit(ctx, actor.UserID, "orders:create", order)
	return order, nil
}

// validate runs every pre-write check and assembles the order value. Nothing
// is persisted until it returns.
func (s *Service) validate(ctx context.Context, actor shared.Actor, in CreateOrderInput) (*Order, error) {
	if in.ClientID <= 0 {
		return nil, shared.Validationf("client is required")
	}
	if in.Kind != KindService && in.Kind != KindSales {
		return nil, shared.Validationf("unknown order kind %q", in.Kind)
	}
	if len(in.Lines) == 0 {
		return nil, shared.Validationf("order requires at least one line")
	}

	clientOrg, err := s.clients.GetClient(ctx, in.ClientID)
	if err != nil {
		return nil, fmt.Errorf("resolve client: %w", err)
	}
	if clientOrg != actor.OrgID {
		return nil, shared.ErrNotFound
	}

	snapshot, err := s.catalog.Snapshot(ctx, actor.OrgID)
	if err != nil {
		return nil, fmt.Errorf("catalog snapshot: %w", err)
	}

	asm := NewAssembler(snapshot)
	for _, line := range in.Lines {
		if line.IsCustom || line.ItemID == nil {
			asm.AddCustomLine(line.Name, line.Qty, line.UnitPrice)
			continue
		}
		if err := asm.AddCatalogLine(*line.ItemID, line.Qty); err != nil {
			return nil, err
		}
	}
	lines := asm.Lines()
	if len(lines) == 0 {
		return nil, shared.Validationf("order requires at least one valid line")
	}
	total := asm.Total()

	if p := in.InitialPayment; p != nil {
		if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Amount <= 0 {
			return nil, ledger.ErrInvalidAmount
		}
		if p.Method == "" {
			return nil, shared.Validationf("payment method is required")
		}
		if p.Amount > total {
			return nil, fmt.Errorf("initial payment %.2f against total %.2f: %w", p.Amount, total, ledger.ErrExceedsBalance)
		}
	}

	return &Order{
		OrgID:         actor.OrgID,
		ClientID:      in.ClientID,
		WorkerID:      in.WorkerID,
		Kind:          in.Kind,
		Lines:         lines,
		Total:         total,
		Outstanding:   total,
		PaymentStatus: ledger.StatusUnpaid,
		Notes:         in.Notes,
		CreatedAt:     s.now().UTC(),
	}, nil
}

func (s *Service) reserveStock(ctx context.Context, actor shared.Actor, order *Order) error {
	reservations := reservationLines(order.Lines)
	if len(reservations) == 0 {
		return nil
	}
	return s.inventory.Reserve(ctx, actor.UserID, order.Number, reservations)
}

// Cancel marks the order cancelled and returns its reserved stock. This is
// the only path that re-increments stock.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, orderID int64) (*Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OrgID != actor.OrgID {
		return nil, shared.ErrNotFound
	}
	if order.PaymentStatus == ledger.StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	if err := s.repo.UpdatePaymentStatus(ctx, orderID, ledger.StatusCancelled); err != nil {
		return nil, err
	}
	order.PaymentStatus = ledger.StatusCancelled

	if reservations := reservationLines(order.Lines); len(reservations) > 0 {
		if err := s.inventory.Release(ctx, actor.UserID, order.Number, reservations); err != nil {
			// The order is already cancelled; a failed release needs a
			// manual stock correction, not a rollback of the cancel.
			s.logger.Error("release stock on cancel", slog.Any("error", err), slog.Int64("order_id", orderID))
		} else {
			s.catalog.InvalidateSnapshot(ctx, actor.OrgID)
		}
	}

	s.recordAudit(ctx, actor.UserID, "orders:cancel", order)
	return order, nil
}

// Get loads one order for the actor's organization.
func (s *Service) Get(ctx context.Context, actor shared.Actor, orderID int64) (*Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OrgID != actor.OrgID {
		return nil, shared.ErrNotFound
	}
	return order, nil
}

func (s *Service) voidOrder(ctx context.Context, attemptID, orderID int64) {
	if err := s.repo.UpdatePaymentStatus(ctx, orderID, ledger.StatusCancelled); err != nil {
		s.logger.Error("void order", slog.Any("error", err), slog.Int64("order_id", orderID))
	}
	if err := s.repo.FinishAttempt(ctx, attemptID, AttemptVoided); err != nil {
		s.logger.Warn("void attempt", slog.Any("error", err), slog.Int64("attempt_id", attemptID))
	}
}

func (s *Service) abortAttempt(ctx context.Context, attemptID int64) {
	if err := s.repo.FinishAttempt(ctx, attemptID, AttemptVoided); err != nil {
		s.logger.Warn("void attempt", slog.Any("error", err), slog.Int64("attempt_id", attemptID))
	}
}

func (s *Service) closeAttempt(ctx context.Context, attemptID int64) {
	if err := s.repo.FinishAttempt(ctx, attemptID, AttemptCompleted); err != nil {
		s.logger.Warn("complete attempt", slog.Any("error", err), slog.Int64("attempt_id", attemptID))
	}
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key", slog.Any("error", err), slog.String("key", key))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, order *Order) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(order.ID, 10),
		Meta: map[string]any{
			"number": order.Number,
			"total":  order.Total,
			"status": order.PaymentStatus,
		},
	})
	if err != nil {
		s.logger.Warn("audit order", slog.Any("error", err), slog.String("action", action))
	}
}

func reservationLines(lines []OrderLine) []inventory.ReservationLine {
	out := make([]inventory.ReservationLine, 0, len(lines))
	for _, line := range lines {
		if line.IsCustom || line.CatalogItemID == nil {
			continue
		}
		out = append(out, inventory.ReservationLine{ItemID: *line.CatalogItemID, Qty: line.Qty})
	}
	return out
}

func isOutOfStock(err error) bool {
	var oos *inventory.OutOfStockError
	return errors.As(err, &oos)
}
