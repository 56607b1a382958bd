package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souqhub/souq-api/internal/model"
)

func cleanupAll(t *testing.T) {
	t.Helper()
	cleanupTable(t, "order_items", "orders", "market_ledger", "items", "categories", "markets", "users")
}

func seedUser(t *testing.T, name string, role model.Role) *model.User {
	t.Helper()
	repo := NewUserRepository(testPool)
	user := &model.User{Name: name, PINHash: "$2a$04$" + uuid.New().String()[:22] + "x", Role: role}
	require.NoError(t, repo.Create(context.Background(), user, func(string) bool { return false }))
	return user
}

func seedMarket(t *testing.T, name, phone string) *model.Market {
	t.Helper()
	repo := NewMarketRepository(testPool)
	market := &model.Market{Name: name, PhoneNumber: phone}
	require.NoError(t, repo.Create(context.Background(), market))
	return market
}

func seedItem(t *testing.T, categoryName, itemName, price string) *model.Item {
	t.Helper()
	repo := NewCatalogRepository(testPool)
	ctx := context.Background()
	category := &model.Category{Name: categoryName}
	require.NoError(t, repo.CreateCategory(ctx, category))
	item := &model.Item{CategoryID: category.ID, Name: itemName, Price: decimal.RequireFromString(price)}
	require.NoError(t, repo.CreateItem(ctx, item))
	return item
}

func TestUserRepo_CreateAndPINGuard(t *testing.T) {
	cleanupAll(t)

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	user := &model.User{Name: "Admin", PINHash: "hash-1", Role: model.RoleAdmin}
	require.NoError(t, repo.Create(ctx, user, func(string) bool { return false }))
	assert.NotEqual(t, uuid.Nil, user.ID)

	// pinMatches fires against the stored hash: the insert must be refused.
	clone := &model.User{Name: "Clone", PINHash: "hash-2", Role: model.RoleEmployee}
	err := repo.Create(ctx, clone, func(hash string) bool { return hash == "hash-1" })
	assert.ErrorIs(t, err, ErrPINTaken)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUserRepo_FirstAdmin(t *testing.T) {
	cleanupAll(t)

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	none, err := repo.FirstAdmin(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	seedUser(t, "Clerk", model.RoleEmployee)
	first := seedUser(t, "First Admin", model.RoleAdmin)
	seedUser(t, "Second Admin", model.RoleAdmin)

	admin, err := repo.FirstAdmin(ctx)
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, first.ID, admin.ID)
}

func TestUserRepo_DeleteBlockedByOrders(t *testing.T) {
	cleanupAll(t)

	userRepo := NewUserRepository(testPool)
	marketRepo := NewMarketRepository(testPool)
	orderRepo := NewOrderRepository(testPool, marketRepo)
	ctx := context.Background()

	idle := seedUser(t, "Idle", model.RoleEmployee)
	require.NoError(t, userRepo.Delete(ctx, idle.ID))

	author := seedUser(t, "Author", model.RoleEmployee)
	order := &model.Order{UserID: author.ID, TotalPrice: decimal.Zero, Status: model.OrderStatusPending}
	require.NoError(t, orderRepo.Create(ctx, order, 0))

	err := userRepo.Delete(ctx, author.ID)
	assert.ErrorIs(t, err, ErrUserHasOrders)

	err = userRepo.Delete(ctx, uuid.New())
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMarketRepo_AdjustBalanceMatchesLedger(t *testing.T) {
	cleanupAll(t)

	repo := NewMarketRepository(testPool)
	ctx := context.Background()
	market := seedMarket(t, "M1", "5551234567")

	steps := []struct {
		entryType model.LedgerEntryType
		amount    int64
		want      int64
	}{
		{model.LedgerManual, 120, 120},
		{model.LedgerPayment, 50, 70},
		{model.LedgerManual, 5, 75},
		{model.LedgerPayment, 100, -25},
	}
	for _, step := range steps {
		snap, err := repo.AdjustBalance(ctx, market.ID, step.amount, step.entryType, "test")
		require.NoError(t, err)
		assert.Equal(t, step.want, snap.BalanceDue)
	}

	// The balance is always reconstructible from the ledger alone.
	sum, err := repo.SumLedger(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-25), sum)

	entries, err := repo.ListLedger(ctx, market.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	for _, e := range entries {
		assert.GreaterOrEqual(t, e.Amount, int64(0))
	}
}

func TestMarketRepo_DeleteBlockedByHistory(t *testing.T) {
	cleanupAll(t)

	repo := NewMarketRepository(testPool)
	ctx := context.Background()

	clean := seedMarket(t, "Clean", "5550000001")
	require.NoError(t, repo.Delete(ctx, clean.ID))

	busy := seedMarket(t, "Busy", "5550000002")
	_, err := repo.AdjustBalance(ctx, busy.ID, 10, model.LedgerManual, "seed")
	require.NoError(t, err)

	err = repo.Delete(ctx, busy.ID)
	assert.ErrorIs(t, err, ErrMarketHasHistory)

	still, err := repo.GetByID(ctx, busy.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestOrderRepo_CheckoutChargesMarket(t *testing.T) {
	cleanupAll(t)

	marketRepo := NewMarketRepository(testPool)
	orderRepo := NewOrderRepository(testPool, marketRepo)
	ctx := context.Background()

	user := seedUser(t, "Clerk", model.RoleEmployee)
	market := seedMarket(t, "M1", "5551234567")
	item := seedItem(t, "Drinks", "Cola", "9.25")

	marketID := market.ID
	order := &model.Order{
		UserID:     user.ID,
		MarketID:   &marketID,
		TotalPrice: decimal.RequireFromString("27.75"),
		Status:     model.OrderStatusPending,
		Items: []model.OrderItem{{
			ItemID:    item.ID,
			Quantity:  3,
			UnitPrice: decimal.RequireFromString("9.25"),
			LineTotal: decimal.RequireFromString("27.75"),
		}},
	}
	require.NoError(t, orderRepo.Create(ctx, order, 28))

	found, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.True(t, found.TotalPrice.Equal(order.TotalPrice))

	// Exactly one CHARGE row, and balance_due moved by the rounded amount.
	entries, err := marketRepo.ListLedger(ctx, market.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerCharge, entries[0].Type)
	assert.Equal(t, int64(28), entries[0].Amount)
	assert.Equal(t, "Order "+order.ID.String()[:8], entries[0].Note)

	charged, err := marketRepo.GetByID(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(28), charged.BalanceDue)

	sum, err := marketRepo.SumLedger(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, charged.BalanceDue, sum)
}

func TestOrderRepo_CheckoutRollsBackOnUnknownMarket(t *testing.T) {
	cleanupAll(t)

	marketRepo := NewMarketRepository(testPool)
	orderRepo := NewOrderRepository(testPool, marketRepo)
	ctx := context.Background()

	user := seedUser(t, "Clerk", model.RoleEmployee)
	item := seedItem(t, "Drinks", "Cola", "5.00")

	missing := uuid.New()
	order := &model.Order{
		UserID:     user.ID,
		MarketID:   &missing,
		TotalPrice: decimal.RequireFromString("5.00"),
		Status:     model.OrderStatusPending,
		Items: []model.OrderItem{{
			ItemID:    item.ID,
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("5.00"),
			LineTotal: decimal.RequireFromString("5.00"),
		}},
	}
	err := orderRepo.Create(ctx, order, 5)
	require.ErrorIs(t, err, pgx.ErrNoRows)

	// The failed charge must undo the order and item inserts too.
	var orders, orderItems int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&orderItems))
	assert.Zero(t, orders)
	assert.Zero(t, orderItems)
}

func TestOrderRepo_WithoutMarketSkipsLedger(t *testing.T) {
	cleanupAll(t)

	marketRepo := NewMarketRepository(testPool)
	orderRepo := NewOrderRepository(testPool, marketRepo)
	ctx := context.Background()

	user := seedUser(t, "Admin", model.RoleAdmin)
	item := seedItem(t, "Drinks", "Cola", "5.00")

	order := &model.Order{
		UserID:     user.ID,
		TotalPrice: decimal.RequireFromString("5.00"),
		Status:     model.OrderStatusPending,
		Items: []model.OrderItem{{
			ItemID:    item.ID,
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("5.00"),
			LineTotal: decimal.RequireFromString("5.00"),
		}},
	}
	require.NoError(t, orderRepo.Create(ctx, order, 5))

	var ledgerRows int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM market_ledger`).Scan(&ledgerRows))
	assert.Zero(t, ledgerRows)
}

func TestOrderRepo_UpdateStatus(t *testing.T) {
	cleanupAll(t)

	marketRepo := NewMarketRepository(testPool)
	orderRepo := NewOrderRepository(testPool, marketRepo)
	ctx := context.Background()

	user := seedUser(t, "Admin", model.RoleAdmin)
	order := &model.Order{
		UserID:     user.ID,
		TotalPrice: decimal.Zero,
		Status:     model.OrderStatusPending,
	}
	require.NoError(t, orderRepo.Create(ctx, order, 0))

	require.NoError(t, orderRepo.UpdateStatus(ctx, order.ID, model.OrderStatusPending, model.OrderStatusConfirmed))

	found, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, found.Status)

	// A write conditioned on a stale status must not land.
	err = orderRepo.UpdateStatus(ctx, order.ID, model.OrderStatusPending, model.OrderStatusDelivered)
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	found, err = orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, found.Status)
}

func TestReportRepo_SalesSummaryCountsOrderTotalsOnce(t *testing.T) {
	cleanupAll(t)

	marketRepo := NewMarketRepository(testPool)
	orderRepo := NewOrderRepository(testPool, marketRepo)
	reportRepo := NewReportRepository(testPool)
	ctx := context.Background()

	user := seedUser(t, "Clerk", model.RoleEmployee)
	cola := seedItem(t, "Drinks", "Cola", "2.50")
	chips := seedItem(t, "Snacks", "Chips", "1.50")

	// A multi-line order must contribute its total exactly once.
	multi := &model.Order{
		UserID: user.ID, TotalPrice: decimal.RequireFromString("10.00"), Status: model.OrderStatusPending,
		Items: []model.OrderItem{
			{ItemID: cola.ID, Quantity: 2,
				UnitPrice: decimal.RequireFromString("2.50"), LineTotal: decimal.RequireFromString("5.00")},
			{ItemID: chips.ID, Quantity: 2,
				UnitPrice: decimal.RequireFromString("1.50"), LineTotal: decimal.RequireFromString("3.00")},
			{ItemID: chips.ID, Quantity: 1,
				UnitPrice: decimal.RequireFromString("2.00"), LineTotal: decimal.RequireFromString("2.00")},
		},
	}
	require.NoError(t, orderRepo.Create(ctx, multi, 0))

	single := &model.Order{
		UserID: user.ID, TotalPrice: decimal.RequireFromString("2.50"), Status: model.OrderStatusPending,
		Items: []model.OrderItem{{ItemID: cola.ID, Quantity: 1,
			UnitPrice: decimal.RequireFromString("2.50"), LineTotal: decimal.RequireFromString("2.50")}},
	}
	require.NoError(t, orderRepo.Create(ctx, single, 0))

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	summary, err := reportRepo.SalesSummary(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, summary.TotalRevenue.Equal(decimal.RequireFromString("12.50")),
		"want 12.50, got %s", summary.TotalRevenue)
	assert.Equal(t, 2, summary.TotalOrders)
	assert.Equal(t, 6, summary.ItemsSold)
}

func TestCatalogRepo_ForceDeleteCascades(t *testing.T) {
	cleanupAll(t)

	catalogRepo := NewCatalogRepository(testPool)
	marketRepo := NewMarketRepository(testPool)
	orderRepo := NewOrderRepository(testPool, marketRepo)
	ctx := context.Background()

	user := seedUser(t, "Clerk", model.RoleEmployee)

	category := &model.Category{Name: "Drinks"}
	require.NoError(t, catalogRepo.CreateCategory(ctx, category))
	item := &model.Item{CategoryID: category.ID, Name: "Cola", Price: decimal.RequireFromString("2.50")}
	require.NoError(t, catalogRepo.CreateItem(ctx, item))

	keepCategory := &model.Category{Name: "Snacks"}
	require.NoError(t, catalogRepo.CreateCategory(ctx, keepCategory))
	keepItem := &model.Item{CategoryID: keepCategory.ID, Name: "Chips", Price: decimal.RequireFromString("1.50")}
	require.NoError(t, catalogRepo.CreateItem(ctx, keepItem))

	// One order touching only the doomed category, one touching both.
	doomed := &model.Order{
		UserID: user.ID, TotalPrice: decimal.RequireFromString("2.50"), Status: model.OrderStatusPending,
		Items: []model.OrderItem{{ItemID: item.ID, Quantity: 1,
			UnitPrice: decimal.RequireFromString("2.50"), LineTotal: decimal.RequireFromString("2.50")}},
	}
	require.NoError(t, orderRepo.Create(ctx, doomed, 0))

	mixed := &model.Order{
		UserID: user.ID, TotalPrice: decimal.RequireFromString("4.00"), Status: model.OrderStatusPending,
		Items: []model.OrderItem{
			{ItemID: item.ID, Quantity: 1,
				UnitPrice: decimal.RequireFromString("2.50"), LineTotal: decimal.RequireFromString("2.50")},
			{ItemID: keepItem.ID, Quantity: 1,
				UnitPrice: decimal.RequireFromString("1.50"), LineTotal: decimal.RequireFromString("1.50")},
		},
	}
	require.NoError(t, orderRepo.Create(ctx, mixed, 0))

	count, err := catalogRepo.CountOrderItemsByCategory(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, catalogRepo.ForceDeleteCategory(ctx, category.ID))

	gone, err := catalogRepo.GetCategory(ctx, category.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	goneItem, err := catalogRepo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, goneItem)

	// The order that only referenced the doomed category is gone; the mixed
	// order survives with its remaining line.
	emptied, err := orderRepo.GetByID(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Nil(t, emptied)

	survivor, err := orderRepo.GetByID(ctx, mixed.ID)
	require.NoError(t, err)
	require.NotNil(t, survivor)
	require.Len(t, survivor.Items, 1)
	assert.Equal(t, keepItem.ID, survivor.Items[0].ItemID)
}

func TestCatalogRepo_ItemCRUDAndArchiveFilter(t *testing.T) {
	cleanupAll(t)

	repo := NewCatalogRepository(testPool)
	ctx := context.Background()

	category := &model.Category{Name: "Drinks"}
	require.NoError(t, repo.CreateCategory(ctx, category))

	item := &model.Item{CategoryID: category.ID, Name: "Cola", Price: decimal.RequireFromString("2.50")}
	require.NoError(t, repo.CreateItem(ctx, item))

	require.NoError(t, repo.ArchiveItem(ctx, item.ID))

	active, err := repo.ListItems(ctx, &category.ID, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.ListItems(ctx, &category.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Archived)
}
