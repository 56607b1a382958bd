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

type CatalogRepository interface {
	CreateCategory(ctx context.Context, category *model.Category) error
	GetCategory(ctx context.Context, id uuid.UUID) (*model.Category, error)
	ListCategories(ctx context.Context, includeArchived bool) ([]model.Category, error)
	UpdateCategory(ctx context.Context, category *model.Category) error
	ArchiveCategory(ctx context.Context, id uuid.UUID) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	// ForceDeleteCategory cascades in dependency order: the category's
	// order items, then orders left with no items, then the items, then the
	// category itself, all in one transaction.
	ForceDeleteCategory(ctx context.Context, id uuid.UUID) error
	// CountOrderItemsByCategory counts order history referencing any item
	// of the category; nonzero means the category must be archived rather
	// than deleted (unless forced).
	CountOrderItemsByCategory(ctx context.Context, id uuid.UUID) (int, error)

	CreateItem(ctx context.Context, item *model.Item) error
	GetItem(ctx context.Context, id uuid.UUID) (*model.Item, error)
	ListItems(ctx context.Context, categoryID *uuid.UUID, includeArchived bool) ([]model.Item, error)
	UpdateItem(ctx context.Context, item *model.Item) error
	ArchiveItem(ctx context.Context, id uuid.UUID) error
	DeleteItem(ctx context.Context, id uuid.UUID) error
	CountOrderItemsByItem(ctx context.Context, id uuid.UUID) (int, error)
}

type pgCatalogRepo struct{ pool *pgxpool.Pool }

func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &pgCatalogRepo{pool: pool}
}

// --- Categories ---

func (r *pgCatalogRepo) CreateCategory(ctx context.Context, category *model.Category) error {
	category.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (id, name, description, image_url, archived, created_at)
		 VALUES ($1, $2, $3, $4, false, NOW()) RETURNING created_at`,
		category.ID, category.Name, category.Description, category.ImageURL,
	).Scan(&category.CreatedAt)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *pgCatalogRepo) GetCategory(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	c := &model.Category{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, image_url, archived, created_at FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.Archived, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *pgCatalogRepo) ListCategories(ctx context.Context, includeArchived bool) ([]model.Category, error) {
	query := `SELECT id, name, description, image_url, archived, created_at FROM categories`
	if !includeArchived {
		query += ` WHERE archived = false`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.Archived, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *pgCatalogRepo) UpdateCategory(ctx context.Context, category *model.Category) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE categories SET name = $2, description = $3, image_url = $4, archived = $5 WHERE id = $1`,
		category.ID, category.Name, category.Description, category.ImageURL, category.Archived,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCatalogRepo) ArchiveCategory(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `UPDATE categories SET archived = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCatalogRepo) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// No order history, so the items can go with their category.
	if _, err := tx.Exec(ctx, `DELETE FROM items WHERE category_id = $1`, id); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	ct, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *pgCatalogRepo) ForceDeleteCategory(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM order_items WHERE item_id IN (SELECT id FROM items WHERE category_id = $1)`, id,
	)
	if err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM orders WHERE NOT EXISTS
		 (SELECT 1 FROM order_items WHERE order_items.order_id = orders.id)`,
	)
	if err != nil {
		return fmt.Errorf("delete orphaned orders: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM items WHERE category_id = $1`, id); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}

	ct, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *pgCatalogRepo) CountOrderItemsByCategory(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM order_items oi
		 JOIN items i ON i.id = oi.item_id WHERE i.category_id = $1`, id,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count category order items: %w", err)
	}
	return count, nil
}

// --- Items ---

func (r *pgCatalogRepo) CreateItem(ctx context.Context, item *model.Item) error {
	item.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO items (id, category_id, name, description, price, image_url, archived, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, NOW()) RETURNING created_at`,
		item.ID, item.CategoryID, item.Name, item.Description, item.Price, item.ImageURL,
	).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

func (r *pgCatalogRepo) GetItem(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	i := &model.Item{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, category_id, name, description, price, image_url, archived, created_at
		 FROM items WHERE id = $1`, id,
	).Scan(&i.ID, &i.CategoryID, &i.Name, &i.Description, &i.Price, &i.ImageURL, &i.Archived, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return i, nil
}

func (r *pgCatalogRepo) ListItems(ctx context.Context, categoryID *uuid.UUID, includeArchived bool) ([]model.Item, error) {
	query := `SELECT id, category_id, name, description, price, image_url, archived, created_at
	          FROM items WHERE ($1::uuid IS NULL OR category_id = $1)`
	if !includeArchived {
		query += ` AND archived = false`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var i model.Item
		if err := rows.Scan(&i.ID, &i.CategoryID, &i.Name, &i.Description, &i.Price, &i.ImageURL, &i.Archived, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *pgCatalogRepo) UpdateItem(ctx context.Context, item *model.Item) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE items SET category_id = $2, name = $3, description = $4, price = $5, image_url = $6, archived = $7
		 WHERE id = $1`,
		item.ID, item.CategoryID, item.Name, item.Description, item.Price, item.ImageURL, item.Archived,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCatalogRepo) ArchiveItem(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `UPDATE items SET archived = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCatalogRepo) DeleteItem(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCatalogRepo) CountOrderItemsByItem(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM order_items WHERE item_id = $1`, id,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count item order items: %w", err)
	}
	return count, nil
}
