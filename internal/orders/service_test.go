package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk/orderdesk/internal/catalog"
	"github.com/orderdesk/orderdesk/internal/inventory"
	"github.com/orderdesk/orderdesk/internal/ledger"
	"github.com/orderdesk/orderdesk/internal/shared"
)

type memOrdersRepo struct {
	orders    map[int64]*Order
	attempts  map[int64]*Attempt
	counters  map[int64]int64
	nextID    int64
	createErr error
}

func newMemOrdersRepo() *memOrdersRepo {
	return &memOrdersRepo{orders: map[int64]*Order{}, attempts: map[int64]*Attempt{}, counters: map[int64]int64{}}
}

func (m *memOrdersRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	o.ID = m.nextID
	m.counters[o.OrgID]++
	o.Number = fmt.Sprintf("ORD-2609-%04d", m.counters[o.OrgID])
	for i := range o.Lines {
		o.Lines[i].OrderID = o.ID
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrdersRepo) Get(_ context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrdersRepo) UpdatePaymentStatus(_ context.Context, orderID int64, status ledger.PaymentStatus) error {
	o, ok := m.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	o.PaymentStatus = status
	return nil
}

func (m *memOrdersRepo) List(_ context.Context, _ int64, _ Filters) ([]Summary, int, error) {
	return nil, 0, nil
}

func (m *memOrdersRepo) CreateAttempt(_ context.Context, a *Attempt) error {
	m.nextID++
	a.ID = m.nextID
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memOrdersRepo) AdvanceAttempt(_ context.Context, id int64, stage AttemptStage, orderID *int64) error {
	a := m.attempts[id]
	a.Stage = stage
	if orderID != nil {
		a.OrderID = orderID
	}
	return nil
}

func (m *memOrdersRepo) FinishAttempt(_ context.Context, id int64, state AttemptState) error {
	m.attempts[id].State = state
	return nil
}

func (m *memOrdersRepo) singleAttempt(t *testing.T) *Attempt {
	t.Helper()
	require.Len(t, m.attempts, 1)
	for _, a := range m.attempts {
		return a
	}
	return nil
}

type fakeCatalog struct {
	items       []catalog.CatalogItem
	invalidated int
}

func (f *fakeCatalog) Snapshot(_ context.Context, _ int64) ([]catalog.CatalogItem, error) {
	return f.items, nil
}

func (f *fakeCatalog) InvalidateSnapshot(_ context.Context, _ int64) {
	f.invalidated++
}

type fakeClients struct {
	orgs map[int64]int64
}

func (f *fakeClients) GetClient(_ context.Context, id int64) (int64, error) {
	org, ok := f.orgs[id]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return org, nil
}

type fakeInventory struct {
	stock    map[int64]int64
	released map[int64]int64
}

func (f *fakeInventory) Reserve(_ context.Context, _ int64, _ string, lines []inventory.ReservationLine) error {
	for _, line := range lines {
		if f.stock[line.ItemID] < line.Qty {
			return &inventory.OutOfStockError{ItemID: line.ItemID, Requested: line.Qty, Available: f.stock[line.ItemID]}
		}
	}
	for _, line := range lines {
		f.stock[line.ItemID] -= line.Qty
	}
	return nil
}

func (f *fakeInventory) Release(_ context.Context, _ int64, _ string, lines []inventory.ReservationLine) error {
	for _, line := range lines {
		f.stock[line.ItemID] += line.Qty
		if f.released == nil {
			f.released = map[int64]int64{}
		}
		f.released[line.ItemID] += line.Qty
	}
	return nil
}

type fakeLedger struct {
	err      error
	recorded []ledger.RecordInput
}

func (f *fakeLedger) Record(_ context.Context, in ledger.RecordInput) (*ledger.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.recorded = append(f.recorded, in)
	return &ledger.Payment{ID: int64(len(f.recorded)), OrderID: in.OrderID, Amount: in.Amount, State: ledger.PaymentActive}, nil
}

type memKeys struct {
	claimed map[string]bool
}

func newMemKeys() *memKeys { return &memKeys{claimed: map[string]bool{}} }

func (m *memKeys) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.claimed[key] {
		return shared.ErrIdempotencyConflict
	}
	m.claimed[key] = true
	return nil
}

func (m *memKeys) Delete(_ context.Context, key string) error {
	delete(m.claimed, key)
	return nil
}

type coordinatorFixture struct {
	svc       *Service
	repo      *memOrdersRepo
	catalog   *fakeCatalog
	inventory *fakeInventory
	ledger    *fakeLedger
	keys      *memKeys
}

func newCoordinatorFixture() *coordinatorFixture {
	f := &coordinatorFixture{
		repo: newMemOrdersRepo(),
		catalog: &fakeCatalog{items: []catalog.CatalogItem{
			{ID: 1, Name: "Detergent", Kind: catalog.KindProduct, UnitPrice: 10, StockQty: 5},
			{ID: 2, Name: "Pressing", Kind: catalog.KindService, UnitPrice: 25},
		}},
		inventory: &fakeInventory{stock: map[int64]int64{1: 5}},
		ledger:    &fakeLedger{},
		keys:      newMemKeys(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(logger, f.repo, f.catalog, &fakeClients{orgs: map[int64]int64{10: 1, 20: 2}}, f.inventory, f.ledger, f.keys, nil, nil)
	return f
}

func itemLine(itemID, qty int64) LineInput {
	return LineInput{ItemID: &itemID, Qty: qty}
}

func createInput(lines ...LineInput) CreateOrderInput {
	return CreateOrderInput{
		ClientID:       10,
		Kind:           KindSales,
		Lines:          lines,
		IdempotencyKey: uuid.NewString(),
	}
}

var testActor = shared.Actor{UserID: 42, OrgID: 1}

func TestCreateOrderReservesStock(t *testing.T) {
	f := newCoordinatorFixture()

	order, err := f.svc.CreateOrder(context.Background(), testActor, createInput(itemLine(1, 2)))
	require.NoError(t, err)
	require.InDelta(t, 20, order.Total, 1e-9)
	require.InDelta(t, 20, order.Outstanding, 1e-9)
	require.Equal(t, ledger.StatusUnpaid, order.PaymentStatus)
	require.EqualValues(t, 3, f.inventory.stock[1])
	require.Equal(t, 1, f.catalog.invalidated)

	attempt := f.repo.singleAttempt(t)
	require.Equal(t, AttemptCompleted, attempt.State)
	require.Equal(t, StageInventoryApplied, attempt.Stage)
}

func TestCreateOrderWithInitialPayment(t *testing.T) {
	f := newCoordinatorFixture()
	in := createInput(itemLine(1, 2), LineInput{Name: "Repair", Qty: 1, UnitPrice: 80, IsCustom: true})
	in.InitialPayment = &InitialPayment{Amount: 40, Method: "cash"}

	order, err := f.svc.CreateOrder(context.Background(), testActor, in)
	require.NoError(t, err)
	require.InDelta(t, 100, order.Total, 1e-9)
	require.InDelta(t, 60, order.Outstanding, 1e-9)
	require.Equal(t, ledger.StatusPartiallyPaid, order.PaymentStatus)

	require.Len(t, f.ledger.recorded, 1)
	require.Equal(t, in.IdempotencyKey+":initial", f.ledger.recorded[0].IdempotencyKey)

	attempt := f.repo.singleAttempt(t)
	require.Equal(t, StagePaymentRecorded, attempt.Stage)
	require.Equal(t, AttemptCompleted, attempt.State)
}

func TestCreateOrderDropsHalfFilledCustomRows(t *testing.T) {
	f := newCoordinatorFixture()
	in := createInput(
		itemLine(1, 1),
		LineInput{Name: "Repair", Qty: 0, IsCustom: true},
		LineInput{Name: "", Qty: 2, UnitPrice: 5, IsCustom: true},
	)

	order, err := f.svc.CreateOrder(context.Background(), testActor, in)
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	require.InDelta(t, 10, order.Total, 1e-9)
}

func TestCreateOrderValidationFailsBeforeAnyWrite(t *testing.T) {
	f := newCoordinatorFixture()

	cases := []CreateOrderInput{
		{Kind: KindSales, Lines: []LineInput{itemLine(1, 1)}, IdempotencyKey: uuid.NewString()},
		{ClientID: 10, Kind: Kind("BOGUS"), Lines: []LineInput{itemLine(1, 1)}, IdempotencyKey: uuid.NewString()},
		{ClientID: 10, Kind: KindSales, IdempotencyKey: uuid.NewString()},
	}
	for _, in := range cases {
		_, err := f.svc.CreateOrder(context.Background(), testActor, in)
		require.Error(t, err)
	}

	// Lines made only of dropped custom rows assemble to nothing.
	in := createInput(LineInput{Name: "", Qty: 0, IsCustom: true})
	_, err := f.svc.CreateOrder(context.Background(), testActor, in)
	require.Error(t, err)

	// Invalid initial payments are rejected before the order exists.
	in = createInput(itemLine(1, 1))
	in.InitialPayment = &InitialPayment{Amount: 75, Method: "cash"}
	_, err = f.svc.CreateOrder(context.Background(), testActor, in)
	require.ErrorIs(t, err, ledger.ErrExceedsBalance)

	require.Empty(t, f.repo.orders)
	require.Empty(t, f.repo.attempts)
	require.Empty(t, f.keys.claimed)
	require.EqualValues(t, 5, f.inventory.stock[1])
}

func TestCreateOrderOutOfStockVoidsOrder(t *testing.T) {
	f := newCoordinatorFixture()
	f.inventory.stock[1] = 1
	// The snapshot is stale: it still advertises 5 units.
	in := createInput(itemLine(1, 2))

	_, err := f.svc.CreateOrder(context.Background(), testActor, in)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageInventoryApplied, stageErr.Stage)
	var oos *inventory.OutOfStockError
	require.ErrorAs(t, err, &oos)

	// The persisted order was voided, stock untouched, key released for retry.
	order := f.repo.orders[stageErr.OrderID]
	require.Equal(t, ledger.StatusCancelled, order.PaymentStatus)
	require.EqualValues(t, 1, f.inventory.stock[1])
	require.Empty(t, f.keys.claimed)
	require.Equal(t, AttemptVoided, f.repo.singleAttempt(t).State)
}

func TestCreateOrderPaymentFailureLeavesOrderRetryable(t *testing.T) {
	f := newCoordinatorFixture()
	f.ledger.err = errors.New("ledger unavailable")
	in := createInput(itemLine(1, 2))
	in.InitialPayment = &InitialPayment{Amount: 20, Method: "cash"}

	_, err := f.svc.CreateOrder(context.Background(), testActor, in)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StagePaymentRecorded, stageErr.Stage)
	require.NotZero(t, stageErr.OrderID)

	// The order stands, unpaid and fully consistent; the attempt is closed
	// so the sweep never touches it.
	order := f.repo.orders[stageErr.OrderID]
	require.Equal(t, ledger.StatusUnpaid, order.PaymentStatus)
	require.InDelta(t, order.Total, order.Outstanding, 1e-9)
	require.EqualValues(t, 3, f.inventory.stock[1])
	require.Equal(t, AttemptCompleted, f.repo.singleAttempt(t).State)
}

func TestCreateOrderNumbersSequencePerOrg(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()

	first, err := f.svc.CreateOrder(ctx, testActor, createInput(itemLine(1, 1)))
	require.NoError(t, err)

	// Another org's first order of the month gets the same number; the
	// sequences are independent and the number is only unique per org.
	otherIn := createInput(itemLine(1, 1))
	otherIn.ClientID = 20
	other, err := f.svc.CreateOrder(ctx, shared.Actor{UserID: 7, OrgID: 2}, otherIn)
	require.NoError(t, err)
	require.Equal(t, first.Number, other.Number)

	second, err := f.svc.CreateOrder(ctx, testActor, createInput(itemLine(1, 1)))
	require.NoError(t, err)
	require.NotEqual(t, first.Number, second.Number)
	require.Equal(t, "ORD-2609-0002", second.Number)
}

func TestCreateOrderDuplicateKeyRejected(t *testing.T) {
	f := newCoordinatorFixture()
	in := createInput(itemLine(1, 1))

	_, err := f.svc.CreateOrder(context.Background(), testActor, in)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(context.Background(), testActor, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, f.repo.orders, 1)
	require.EqualValues(t, 4, f.inventory.stock[1])
}

func TestCreateOrderCrossOrgClientRejected(t *testing.T) {
	f := newCoordinatorFixture()

	_, err := f.svc.CreateOrder(context.Background(), shared.Actor{UserID: 42, OrgID: 2}, createInput(itemLine(1, 1)))
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, f.repo.orders)
}

func TestCancelReleasesStock(t *testing.T) {
	f := newCoordinatorFixture()
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, testActor, createInput(itemLine(1, 2)))
	require.NoError(t, err)
	require.EqualValues(t, 3, f.inventory.stock[1])

	cancelled, err := f.svc.Cancel(ctx, testActor, order.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCancelled, cancelled.PaymentStatus)
	require.EqualValues(t, 5, f.inventory.stock[1])

	_, err = f.svc.Cancel(ctx, testActor, order.ID)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
	require.EqualValues(t, 5, f.inventory.stock[1])
}
