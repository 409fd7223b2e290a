package ledger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk/orderdesk/internal/shared"
)

type memLedgerRepo struct {
	order    *OrderBalance
	payments []Payment
	nextID   int64
}

func (m *memLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memLedgerRepo) GetOrderForUpdate(_ context.Context, orderID int64) (*OrderBalance, error) {
	if m.order == nil || m.order.OrderID != orderID {
		return nil, shared.ErrNotFound
	}
	cp := *m.order
	return &cp, nil
}

func (m *memLedgerRepo) InsertPayment(_ context.Context, p *Payment) (int64, error) {
	m.nextID++
	cp := *p
	cp.ID = m.nextID
	m.payments = append([]Payment{cp}, m.payments...)
	return m.nextID, nil
}

func (m *memLedgerRepo) UpdateOrderBalance(_ context.Context, orderID int64, outstanding float64, status PaymentStatus) error {
	if m.order == nil || m.order.OrderID != orderID {
		return shared.ErrNotFound
	}
	m.order.Outstanding = outstanding
	m.order.Status = status
	return nil
}

func (m *memLedgerRepo) GetOrderBalance(_ context.Context, orderID int64) (*OrderBalance, error) {
	return m.GetOrderForUpdate(context.Background(), orderID)
}

func (m *memLedgerRepo) GetPayment(_ context.Context, id int64) (*Payment, error) {
	for i := range m.payments {
		if m.payments[i].ID == id {
			cp := m.payments[i]
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memLedgerRepo) ListByOrder(_ context.Context, orderID int64) ([]Payment, error) {
	out := make([]Payment, 0)
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memLedgerRepo) MarkCancelled(_ context.Context, paymentID int64) error {
	for i := range m.payments {
		if m.payments[i].ID == paymentID {
			if m.payments[i].State != PaymentActive {
				return ErrPaymentCancelled
			}
			m.payments[i].State = PaymentCancelled
			return nil
		}
	}
	return ErrPaymentCancelled
}

type memIdemStore struct {
	claimed map[string]bool
	deleted []string
}

func newMemIdemStore() *memIdemStore {
	return &memIdemStore{claimed: map[string]bool{}}
}

func (m *memIdemStore) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.claimed[key] {
		return shared.ErrIdempotencyConflict
	}
	m.claimed[key] = true
	return nil
}

func (m *memIdemStore) Delete(_ context.Context, key string) error {
	delete(m.claimed, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedgerFixture(total, outstanding float64) (*Service, *memLedgerRepo, *memIdemStore) {
	repo := &memLedgerRepo{order: &OrderBalance{
		OrderID:     7,
		OrgID:       1,
		Number:      "ORD-2609-0001",
		Total:       total,
		Outstanding: outstanding,
		Status:      DeriveStatus(total, outstanding, total != outstanding),
	}}
	idem := newMemIdemStore()
	return NewService(testLogger(), repo, idem, nil), repo, idem
}

func recordInput(amount float64) RecordInput {
	return RecordInput{
		OrderID:        7,
		OrgID:          1,
		Amount:         amount,
		Method:         "card",
		RecordedBy:     42,
		IdempotencyKey: uuid.NewString(),
	}
}

func TestRecordPartialThenFull(t *testing.T) {
	svc, repo, _ := newLedgerFixture(250, 250)
	ctx := context.Background()

	p1, err := svc.Record(ctx, recordInput(100))
	require.NoError(t, err)
	require.Equal(t, PaymentActive, p1.State)
	require.InDelta(t, 150, repo.order.Outstanding, 1e-9)
	require.Equal(t, StatusPartiallyPaid, repo.order.Status)

	_, err = svc.Record(ctx, recordInput(150))
	require.NoError(t, err)
	require.Zero(t, repo.order.Outstanding)
	require.Equal(t, StatusPaid, repo.order.Status)
	require.Len(t, repo.payments, 2)
}

func TestRecordRejectsOverpayment(t *testing.T) {
	svc, repo, idem := newLedgerFixture(250, 100)
	in := recordInput(100.01)

	_, err := svc.Record(context.Background(), in)
	require.ErrorIs(t, err, ErrExceedsBalance)

	// Nothing written, status untouched, key released for a corrected retry.
	require.Empty(t, repo.payments)
	require.InDelta(t, 100, repo.order.Outstanding, 1e-9)
	require.Contains(t, idem.deleted, in.IdempotencyKey)
}

func TestRecordRejectsInvalidAmounts(t *testing.T) {
	svc, repo, _ := newLedgerFixture(250, 250)

	for _, amount := range []float64{0, -10, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := svc.Record(context.Background(), recordInput(amount))
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
	require.Empty(t, repo.payments)
	require.Equal(t, StatusUnpaid, repo.order.Status)
}

func TestRecordRejectsDuplicateKey(t *testing.T) {
	svc, repo, _ := newLedgerFixture(250, 250)
	in := recordInput(50)

	_, err := svc.Record(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.payments, 1)
}

func TestRecordRejectsCancelledOrder(t *testing.T) {
	svc, repo, _ := newLedgerFixture(250, 250)
	repo.order.Status = StatusCancelled

	_, err := svc.Record(context.Background(), recordInput(50))
	require.ErrorIs(t, err, ErrOrderCancelled)
	require.Empty(t, repo.payments)
}

func TestRecordCrossOrgNotFound(t *testing.T) {
	svc, repo, _ := newLedgerFixture(250, 250)
	in := recordInput(50)
	in.OrgID = 2

	_, err := svc.Record(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.payments)
}

func TestCancelKeepsBalance(t *testing.T) {
	svc, repo, _ := newLedgerFixture(250, 250)
	ctx := context.Background()

	p, err := svc.Record(ctx, recordInput(100))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, 1, p.ID, 42)
	require.NoError(t, err)
	require.Equal(t, PaymentCancelled, cancelled.State)

	// Cancellation is a ledger annotation only: the balance stays settled.
	require.InDelta(t, 150, repo.order.Outstanding, 1e-9)
	require.Equal(t, StatusPartiallyPaid, repo.order.Status)

	_, err = svc.Cancel(ctx, 1, p.ID, 42)
	require.ErrorIs(t, err, ErrPaymentCancelled)
}

func TestReceiptExcludesCancelledFromPaidTotal(t *testing.T) {
	svc, _, _ := newLedgerFixture(250, 250)
	ctx := context.Background()

	p1, err := svc.Record(ctx, recordInput(100))
	require.NoError(t, err)
	_, err = svc.Record(ctx, recordInput(50))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, 1, p1.ID, 42)
	require.NoError(t, err)

	receipt, err := svc.OrderReceipt(ctx, 1, 7)
	require.NoError(t, err)
	require.Len(t, receipt.Payments, 2)
	require.InDelta(t, 50, receipt.PaidTotal, 1e-9)
	require.InDelta(t, 100, receipt.Outstanding, 1e-9)
	require.Equal(t, "ORD-2609-0001", receipt.OrderNumber)
}

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, StatusUnpaid, DeriveStatus(250, 250, false))
	require.Equal(t, StatusPartiallyPaid, DeriveStatus(250, 100, true))
	require.Equal(t, StatusPaid, DeriveStatus(250, 0, true))
	require.Equal(t, StatusPaid, DeriveStatus(0, 0, false))
	// Cancelled payments can reopen the full balance without reverting to unpaid.
	require.Equal(t, StatusPartiallyPaid, DeriveStatus(250, 250, true))
}
