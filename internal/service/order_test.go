package service

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souqhub/souq-api/internal/dto"
	"github.com/souqhub/souq-api/internal/model"
)

type mockOrderRepo struct {
	orders  map[uuid.UUID]*model.Order
	markets *mockMarketRepo
}

func newMockOrderRepo(markets *mockMarketRepo) *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*model.Order), markets: markets}
}

func (m *mockOrderRepo) Create(ctx context.Context, order *model.Order, chargeAmount int64) error {
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	if order.MarketID != nil {
		note := "Order " + order.ID.String()[:8]
		if _, err := m.markets.ApplyLedgerEntry(ctx, nil, *order.MarketID, chargeAmount, model.LedgerCharge, note); err != nil {
			// Nothing committed: the rollback discards the order rows too.
			return fmt.Errorf("charge market: %w", err)
		}
	}
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	return m.orders[id], nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]model.Order, error) {
	var orders []model.Order
	for _, o := range m.orders {
		orders = append(orders, *o)
	}
	return orders, nil
}

func (m *mockOrderRepo) ListByMarket(_ context.Context, marketID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	for _, o := range m.orders {
		if o.MarketID != nil && *o.MarketID == marketID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.OrderStatus) error {
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return pgx.ErrNoRows
	}
	o.Status = to
	return nil
}

type orderFixture struct {
	users   *mockUserRepo
	markets *mockMarketRepo
	orders  *mockOrderRepo
	svc     *OrderService
}

func newOrderFixture() *orderFixture {
	users := newMockUserRepo()
	markets := newMockMarketRepo()
	orders := newMockOrderRepo(markets)
	return &orderFixture{
		users:   users,
		markets: markets,
		orders:  orders,
		svc:     NewOrderService(orders, users, nil),
	}
}

func line(price string, qty int) dto.OrderLineRequest {
	return dto.OrderLineRequest{
		ItemID:    uuid.New(),
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func TestOrderService_Checkout_EmptyBasket(t *testing.T) {
	f := newOrderFixture()
	auth := model.AuthContext{UserID: uuid.New(), Role: model.RoleAdmin}

	_, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{})
	assert.ErrorIs(t, err, ErrEmptyBasket)
}

func TestOrderService_Checkout_InvalidLines(t *testing.T) {
	f := newOrderFixture()
	auth := model.AuthContext{UserID: uuid.New(), Role: model.RoleAdmin}

	_, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("5.00", 0)},
	})
	assert.ErrorIs(t, err, ErrInvalidLine)

	_, err = f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("-1.00", 2)},
	})
	assert.ErrorIs(t, err, ErrInvalidLine)
}

func TestOrderService_Checkout_EmployeeNeedsMarket(t *testing.T) {
	f := newOrderFixture()
	auth := model.AuthContext{UserID: uuid.New(), Role: model.RoleEmployee}

	_, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("5.00", 1)},
	})
	assert.ErrorIs(t, err, ErrMarketRequired)
}

func TestOrderService_Checkout_AdminWithoutMarket(t *testing.T) {
	f := newOrderFixture()
	admin := f.users.addUser(t, "Admin", model.RoleAdmin, "1234")
	auth := model.AuthContext{UserID: admin.ID, Role: model.RoleAdmin}

	order, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("3.50", 2)},
	})
	require.NoError(t, err)
	assert.Nil(t, order.MarketID)
	assert.Equal(t, admin.ID, order.UserID)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	// No market, no ledger activity anywhere.
	for id := range f.markets.ledger {
		assert.Empty(t, f.markets.ledger[id])
	}
}

func TestOrderService_Checkout_MarketOwnerAttribution(t *testing.T) {
	f := newOrderFixture()
	admin := f.users.addUser(t, "First Admin", model.RoleAdmin, "1234")
	market := &model.Market{Name: "M1", PhoneNumber: "5551234567"}
	require.NoError(t, f.markets.Create(context.Background(), market))

	marketID := market.ID
	auth := model.AuthContext{UserID: market.ID, Role: model.RoleMarketOwner, MarketID: &marketID}

	order, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("10.00", 3)},
	})
	require.NoError(t, err)
	require.NotNil(t, order.MarketID)
	assert.Equal(t, market.ID, *order.MarketID)
	// Orders are owned by the system principal, not the market identity.
	assert.Equal(t, admin.ID, order.UserID)
}

func TestOrderService_Checkout_MarketOwnerNoSystemUser(t *testing.T) {
	f := newOrderFixture()
	market := &model.Market{Name: "M1", PhoneNumber: "5551234567"}
	require.NoError(t, f.markets.Create(context.Background(), market))

	marketID := market.ID
	auth := model.AuthContext{UserID: market.ID, Role: model.RoleMarketOwner, MarketID: &marketID}

	_, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("10.00", 1)},
	})
	assert.ErrorIs(t, err, ErrNoSystemUser)
}

func TestOrderService_Checkout_ChargesMarketLedger(t *testing.T) {
	f := newOrderFixture()
	employee := f.users.addUser(t, "Clerk", model.RoleEmployee, "2345")
	market := &model.Market{Name: "M1", PhoneNumber: "5551234567"}
	require.NoError(t, f.markets.Create(context.Background(), market))

	marketID := market.ID
	auth := model.AuthContext{UserID: employee.ID, Role: model.RoleEmployee}

	order, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		MarketID: &marketID,
		Items: []dto.OrderLineRequest{
			line("12.25", 2), // 24.50
			line("3.00", 1),  // 3.00
		},
	})
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(decimal.RequireFromString("27.50")))

	// 27.50 rounds half-up to 28 whole units on the ledger.
	assert.Equal(t, int64(28), market.BalanceDue)

	entries, err := f.markets.ListLedger(context.Background(), market.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerCharge, entries[0].Type)
	assert.Equal(t, int64(28), entries[0].Amount)
	assert.Equal(t, "Order "+order.ID.String()[:8], entries[0].Note)
}

func TestOrderService_Checkout_UnknownMarketRollsBack(t *testing.T) {
	f := newOrderFixture()
	employee := f.users.addUser(t, "Clerk", model.RoleEmployee, "2345")
	missing := uuid.New()
	auth := model.AuthContext{UserID: employee.ID, Role: model.RoleEmployee}

	_, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		MarketID: &missing,
		Items:    []dto.OrderLineRequest{line("5.00", 1)},
	})
	assert.ErrorIs(t, err, ErrMarketNotFound)
	assert.Empty(t, f.orders.orders)
}

func TestOrderService_Checkout_TotalsAreExact(t *testing.T) {
	f := newOrderFixture()
	admin := f.users.addUser(t, "Admin", model.RoleAdmin, "1234")
	auth := model.AuthContext{UserID: admin.ID, Role: model.RoleAdmin}

	rng := rand.New(rand.NewSource(7))
	req := dto.CreateOrderRequest{}
	want := decimal.Zero
	for i := 0; i < 60; i++ {
		price := decimal.NewFromInt(int64(rng.Intn(9999) + 1)).Div(decimal.NewFromInt(100))
		qty := rng.Intn(9) + 1
		req.Items = append(req.Items, dto.OrderLineRequest{
			ItemID: uuid.New(), Quantity: qty, UnitPrice: price,
		})
		want = want.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	}

	order, err := f.svc.Checkout(context.Background(), auth, req)
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(want), "want %s, got %s", want, order.TotalPrice)

	sum := decimal.Zero
	for _, item := range order.Items {
		assert.True(t, item.LineTotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))))
		sum = sum.Add(item.LineTotal)
	}
	assert.True(t, sum.Equal(order.TotalPrice))
}

func TestRoundToUnits(t *testing.T) {
	cases := []struct {
		total string
		want  int64
	}{
		{"10.49", 10},
		{"10.50", 11},
		{"10.51", 11},
		{"0.00", 0},
		{"27.50", 28},
		{"100.00", 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, roundToUnits(decimal.RequireFromString(tc.total)), "total %s", tc.total)
	}
}

func TestOrderService_GetByID_OwnerScoping(t *testing.T) {
	f := newOrderFixture()
	f.users.addUser(t, "Admin", model.RoleAdmin, "1234")
	m1 := &model.Market{Name: "M1", PhoneNumber: "5551234567"}
	m2 := &model.Market{Name: "M2", PhoneNumber: "5557654321"}
	require.NoError(t, f.markets.Create(context.Background(), m1))
	require.NoError(t, f.markets.Create(context.Background(), m2))

	m1ID := m1.ID
	order, err := f.svc.Checkout(context.Background(),
		model.AuthContext{UserID: m1.ID, Role: model.RoleMarketOwner, MarketID: &m1ID},
		dto.CreateOrderRequest{Items: []dto.OrderLineRequest{line("5.00", 1)}},
	)
	require.NoError(t, err)

	got, err := f.svc.GetByID(context.Background(),
		model.AuthContext{UserID: m1.ID, Role: model.RoleMarketOwner, MarketID: &m1ID}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	m2ID := m2.ID
	_, err = f.svc.GetByID(context.Background(),
		model.AuthContext{UserID: m2.ID, Role: model.RoleMarketOwner, MarketID: &m2ID}, order.ID)
	assert.ErrorIs(t, err, ErrOrderAccessDenied)

	_, err = f.svc.GetByID(context.Background(),
		model.AuthContext{UserID: uuid.New(), Role: model.RoleAdmin}, uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_List_OwnerSeesOnlyOwnMarket(t *testing.T) {
	f := newOrderFixture()
	f.users.addUser(t, "Admin", model.RoleAdmin, "1234")
	m1 := &model.Market{Name: "M1", PhoneNumber: "5551234567"}
	m2 := &model.Market{Name: "M2", PhoneNumber: "5557654321"}
	require.NoError(t, f.markets.Create(context.Background(), m1))
	require.NoError(t, f.markets.Create(context.Background(), m2))

	for _, m := range []*model.Market{m1, m2} {
		id := m.ID
		_, err := f.svc.Checkout(context.Background(),
			model.AuthContext{UserID: m.ID, Role: model.RoleMarketOwner, MarketID: &id},
			dto.CreateOrderRequest{Items: []dto.OrderLineRequest{line("5.00", 1)}},
		)
		require.NoError(t, err)
	}

	m1ID := m1.ID
	owned, err := f.svc.List(context.Background(),
		model.AuthContext{UserID: m1.ID, Role: model.RoleMarketOwner, MarketID: &m1ID})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, m1.ID, *owned[0].MarketID)

	all, err := f.svc.List(context.Background(),
		model.AuthContext{UserID: uuid.New(), Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOrderService_UpdateStatus(t *testing.T) {
	f := newOrderFixture()
	admin := f.users.addUser(t, "Admin", model.RoleAdmin, "1234")
	auth := model.AuthContext{UserID: admin.ID, Role: model.RoleAdmin}

	order, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("5.00", 1)},
	})
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(context.Background(), order.ID, "CONFIRMED")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, got.Status)

	got, err = f.svc.UpdateStatus(context.Background(), order.ID, "DELIVERED")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDelivered, got.Status)

	// Delivered is terminal.
	_, err = f.svc.UpdateStatus(context.Background(), order.ID, "CANCELLED")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrderService_UpdateStatus_CancelledStaysCancelled(t *testing.T) {
	f := newOrderFixture()
	admin := f.users.addUser(t, "Admin", model.RoleAdmin, "1234")
	auth := model.AuthContext{UserID: admin.ID, Role: model.RoleAdmin}

	order, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("5.00", 1)},
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), order.ID, "CANCELLED")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), order.ID, "DELIVERED")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// flippingOrderRepo cancels the order underneath the service after it has
// been read, standing in for a concurrent admin update.
type flippingOrderRepo struct {
	*mockOrderRepo
	flipped bool
}

func (r *flippingOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := r.mockOrderRepo.GetByID(ctx, id)
	if err != nil || order == nil {
		return order, err
	}
	snapshot := *order
	if !r.flipped {
		r.flipped = true
		order.Status = model.OrderStatusCancelled
	}
	return &snapshot, nil
}

func TestOrderService_UpdateStatus_ConcurrentChangeRejected(t *testing.T) {
	f := newOrderFixture()
	admin := f.users.addUser(t, "Admin", model.RoleAdmin, "1234")
	auth := model.AuthContext{UserID: admin.ID, Role: model.RoleAdmin}

	order, err := f.svc.Checkout(context.Background(), auth, dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{line("5.00", 1)},
	})
	require.NoError(t, err)

	racing := &flippingOrderRepo{mockOrderRepo: f.orders}
	svc := NewOrderService(racing, f.users, nil)

	// The service validates against PENDING but the row is CANCELLED by the
	// time the write lands; the conditional update must refuse it.
	_, err = svc.UpdateStatus(context.Background(), order.ID, "CONFIRMED")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.OrderStatusCancelled, f.orders.orders[order.ID].Status)
}

func TestOrderService_UpdateStatus_BadInput(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), "SHIPPED")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(context.Background(), uuid.New(), "CONFIRMED")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
