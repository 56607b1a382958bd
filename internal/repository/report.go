package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/souqhub/souq-api/internal/model"
)

// ReportRepository is read-only: it aggregates committed order data and
// performs no writes.
type ReportRepository interface {
	SalesSummary(ctx context.Context, from, to time.Time) (*model.SalesSummary, error)
	TopSelling(ctx context.Context, from, to time.Time, limit int) ([]model.ItemSales, error)
}

type pgReportRepo struct{ pool *pgxpool.Pool }

func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &pgReportRepo{pool: pool}
}

func (r *pgReportRepo) SalesSummary(ctx context.Context, from, to time.Time) (*model.SalesSummary, error) {
	// Revenue and order count aggregate over orders alone; joining order_items
	// here would count an order's total once per line.
	s := &model.SalesSummary{}
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_price), 0), COUNT(*)
		 FROM orders
		 WHERE created_at >= $1 AND created_at < $2`,
		from, to,
	).Scan(&s.TotalRevenue, &s.TotalOrders)
	if err != nil {
		return nil, fmt.Errorf("sales summary: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(oi.quantity), 0)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.created_at >= $1 AND o.created_at < $2`,
		from, to,
	).Scan(&s.ItemsSold)
	if err != nil {
		return nil, fmt.Errorf("sales summary: %w", err)
	}
	return s, nil
}

func (r *pgReportRepo) TopSelling(ctx context.Context, from, to time.Time, limit int) ([]model.ItemSales, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT oi.item_id, i.name, SUM(oi.quantity) AS sold
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 JOIN items i ON i.id = oi.item_id
		 WHERE o.created_at >= $1 AND o.created_at < $2
		 GROUP BY oi.item_id, i.name
		 ORDER BY sold DESC
		 LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top selling: %w", err)
	}
	defer rows.Close()

	var items []model.ItemSales
	for rows.Next() {
		var is model.ItemSales
		if err := rows.Scan(&is.ItemID, &is.Name, &is.Quantity); err != nil {
			return nil, fmt.Errorf("scan item sales: %w", err)
		}
		items = append(items, is)
	}
	return items, rows.Err()
}
