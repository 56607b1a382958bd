package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqhub/souq-api/internal/model"
)

type OrderRepository interface {
	// Create persists the order, its items, and (for market-attributed
	// orders) the ledger charge in a single transaction. chargeAmount is the
	// order total rounded to whole currency units; it is ignored when the
	// order has no market. A failure at any step leaves no rows behind.
	Create(ctx context.Context, order *model.Order, chargeAmount int64) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context) ([]model.Order, error)
	ListByMarket(ctx context.Context, marketID uuid.UUID) ([]model.Order, error)
	// UpdateStatus is compare-and-swap: the write lands only if the row still
	// holds the status the caller validated against. pgx.ErrNoRows means the
	// order is gone or its status moved concurrently.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error
}

type pgOrderRepo struct {
	pool   *pgxpool.Pool
	ledger MarketRepository
}

func NewOrderRepository(pool *pgxpool.Pool, ledger MarketRepository) OrderRepository {
	return &pgOrderRepo{pool: pool, ledger: ledger}
}

func (r *pgOrderRepo) Create(ctx context.Context, order *model.Order, chargeAmount int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	order.ID = uuid.New()

	// Charge first: a missing market surfaces as pgx.ErrNoRows here, before
	// any order rows exist.
	if order.MarketID != nil {
		note := "Order " + order.ID.String()[:8]
		if _, err = r.ledger.ApplyLedgerEntry(ctx, tx, *order.MarketID, chargeAmount, model.LedgerCharge, note); err != nil {
			return fmt.Errorf("charge market: %w", err)
		}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, market_id, total_price, note, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING created_at`,
		order.ID, order.UserID, order.MarketID, order.TotalPrice, order.Note, order.Status,
	).Scan(&order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, item_id, quantity, unit_price, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			order.Items[i].ID, order.ID, order.Items[i].ItemID,
			order.Items[i].Quantity, order.Items[i].UnitPrice, order.Items[i].LineTotal,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order := &model.Order{}
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, market_id, total_price, note, status, created_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&order.ID, &order.UserID, &order.MarketID, &order.TotalPrice, &order.Note, &status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status, err = model.ParseOrderStatus(status); err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, item_id, quantity, unit_price, line_total FROM order_items WHERE order_id = $1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ItemID, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

func (r *pgOrderRepo) List(ctx context.Context) ([]model.Order, error) {
	return r.list(ctx,
		`SELECT id, user_id, market_id, total_price, note, status, created_at
		 FROM orders ORDER BY created_at DESC`)
}

func (r *pgOrderRepo) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]model.Order, error) {
	return r.list(ctx,
		`SELECT id, user_id, market_id, total_price, note, status, created_at
		 FROM orders WHERE market_id = $1 ORDER BY created_at DESC`, marketID)
}

func (r *pgOrderRepo) list(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.MarketID, &o.TotalPrice, &o.Note, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.Status, err = model.ParseOrderStatus(status); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`, id, to, from,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
