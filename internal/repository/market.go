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

// ErrMarketHasHistory blocks hard deletion of a market that owns ledger
// entries or orders.
var ErrMarketHasHistory = errors.New("market has ledger or order history")

type MarketRepository interface {
	Create(ctx context.Context, market *model.Market) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Market, error)
	GetByPhone(ctx context.Context, phone string) (*model.Market, error)
	List(ctx context.Context) ([]model.Market, error)
	Update(ctx context.Context, market *model.Market) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ApplyLedgerEntry mutates balance_due and appends the matching ledger
	// row inside the caller's transaction. It never opens its own; that is
	// what lets a checkout compose the charge atomically with its order
	// rows. amount must be non-negative, the sign comes from entryType.
	ApplyLedgerEntry(ctx context.Context, tx pgx.Tx, marketID uuid.UUID, amount int64, entryType model.LedgerEntryType, note string) (*model.Market, error)

	// AdjustBalance wraps ApplyLedgerEntry in its own transaction for the
	// standalone payment/manual-adjustment path.
	AdjustBalance(ctx context.Context, marketID uuid.UUID, amount int64, entryType model.LedgerEntryType, note string) (*model.Market, error)

	ListLedger(ctx context.Context, marketID uuid.UUID) ([]model.LedgerEntry, error)
	// SumLedger returns the signed sum of all entries for a market; it must
	// equal balance_due at all times.
	SumLedger(ctx context.Context, marketID uuid.UUID) (int64, error)
}

type pgMarketRepo struct{ pool *pgxpool.Pool }

func NewMarketRepository(pool *pgxpool.Pool) MarketRepository {
	return &pgMarketRepo{pool: pool}
}

func (r *pgMarketRepo) Create(ctx context.Context, market *model.Market) error {
	market.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO markets (id, name, phone_number, description, balance_due, created_at)
		 VALUES ($1, $2, $3, $4, 0, NOW()) RETURNING created_at`,
		market.ID, market.Name, market.PhoneNumber, market.Description,
	).Scan(&market.CreatedAt)
	if err != nil {
		return fmt.Errorf("create market: %w", err)
	}
	market.BalanceDue = 0
	return nil
}

func (r *pgMarketRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Market, error) {
	return r.getBy(ctx, `WHERE id = $1`, id)
}

func (r *pgMarketRepo) GetByPhone(ctx context.Context, phone string) (*model.Market, error) {
	return r.getBy(ctx, `WHERE phone_number = $1`, phone)
}

func (r *pgMarketRepo) getBy(ctx context.Context, where string, arg any) (*model.Market, error) {
	m := &model.Market{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, phone_number, description, balance_due, created_at FROM markets `+where, arg,
	).Scan(&m.ID, &m.Name, &m.PhoneNumber, &m.Description, &m.BalanceDue, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get market: %w", err)
	}
	return m, nil
}

func (r *pgMarketRepo) List(ctx context.Context) ([]model.Market, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, phone_number, description, balance_due, created_at FROM markets ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		if err := rows.Scan(&m.ID, &m.Name, &m.PhoneNumber, &m.Description, &m.BalanceDue, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (r *pgMarketRepo) Update(ctx context.Context, market *model.Market) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE markets SET name = $2, phone_number = $3, description = $4 WHERE id = $1`,
		market.ID, market.Name, market.PhoneNumber, market.Description,
	)
	if err != nil {
		return fmt.Errorf("update market: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgMarketRepo) Delete(ctx context.Context, id uuid.UUID) error {
	var history int
	err := r.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM market_ledger WHERE market_id = $1)
		      + (SELECT COUNT(*) FROM orders WHERE market_id = $1)`, id,
	).Scan(&history)
	if err != nil {
		return fmt.Errorf("count market history: %w", err)
	}
	if history > 0 {
		return ErrMarketHasHistory
	}

	ct, err := r.pool.Exec(ctx, `DELETE FROM markets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete market: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgMarketRepo) ApplyLedgerEntry(ctx context.Context, tx pgx.Tx, marketID uuid.UUID, amount int64, entryType model.LedgerEntryType, note string) (*model.Market, error) {
	if amount < 0 {
		return nil, fmt.Errorf("ledger amount must be non-negative, got %d", amount)
	}

	// Atomic increment at the SQL level; the row lock serializes concurrent
	// entries for the same market.
	m := &model.Market{}
	err := tx.QueryRow(ctx,
		`UPDATE markets SET balance_due = balance_due + $2 WHERE id = $1
		 RETURNING id, name, balance_due`,
		marketID, entryType.SignedAmount(amount),
	).Scan(&m.ID, &m.Name, &m.BalanceDue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("update balance: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO market_ledger (id, market_id, amount, type, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		uuid.New(), marketID, amount, entryType, note,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return m, nil
}

func (r *pgMarketRepo) AdjustBalance(ctx context.Context, marketID uuid.UUID, amount int64, entryType model.LedgerEntryType, note string) (*model.Market, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := r.ApplyLedgerEntry(ctx, tx, marketID, amount, entryType, note)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return m, nil
}

func (r *pgMarketRepo) ListLedger(ctx context.Context, marketID uuid.UUID) ([]model.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, market_id, amount, type, note, created_at FROM market_ledger
		 WHERE market_id = $1 ORDER BY created_at DESC`, marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.MarketID, &e.Amount, &e.Type, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *pgMarketRepo) SumLedger(ctx context.Context, marketID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = 'PAYMENT' THEN -amount ELSE amount END), 0)
		 FROM market_ledger WHERE market_id = $1`, marketID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return sum, nil
}
