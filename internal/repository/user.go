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

// ErrPINTaken is returned when a proposed PIN verifies against an existing
// identity's hash.
var ErrPINTaken = errors.New("pin already in use")

// ErrUserHasOrders blocks hard deletion of a user that owns orders; the
// order trail keeps its author.
var ErrUserHasOrders = errors.New("user has order history")

// identityLockKey is the advisory lock serializing identity creation. PINs
// are stored only as salted hashes, so uniqueness cannot be a database
// constraint; the lock closes the check-then-insert race across processes.
const identityLockKey = int64(0x5051_1D17)

type UserRepository interface {
	// Create inserts a new identity after checking the proposed PIN against
	// every stored hash via pinMatches. The scan and insert run in one
	// transaction under an advisory lock.
	Create(ctx context.Context, user *model.User, pinMatches func(hash string) bool) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	// Delete removes an identity with no order history; pgx.ErrNoRows when
	// the user does not exist, ErrUserHasOrders when orders reference it.
	Delete(ctx context.Context, id uuid.UUID) error
	// FirstAdmin returns the oldest administrator, used as the system
	// principal for market-attributed orders.
	FirstAdmin(ctx context.Context) (*model.User, error)
}

type pgUserRepo struct{ pool *pgxpool.Pool }

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepo{pool: pool}
}

func (r *pgUserRepo) Create(ctx context.Context, user *model.User, pinMatches func(hash string) bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, identityLockKey); err != nil {
		return fmt.Errorf("acquire identity lock: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT pin_hash FROM users`)
	if err != nil {
		return fmt.Errorf("list pin hashes: %w", err)
	}
	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan pin hashes: %w", err)
	}
	for _, hash := range hashes {
		if pinMatches(hash) {
			return ErrPINTaken
		}
	}

	user.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO users (id, name, pin_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`,
		user.ID, user.Name, user.PINHash, user.Role,
	).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user := &model.User{}
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, pin_hash, role, created_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Name, &user.PINHash, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	if user.Role, err = model.ParseRole(role); err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *pgUserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, pin_hash, role, created_at FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.PINHash, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if u.Role, err = model.ParseRole(role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *pgUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	var orders int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1`, id,
	).Scan(&orders)
	if err != nil {
		return fmt.Errorf("count user orders: %w", err)
	}
	if orders > 0 {
		return ErrUserHasOrders
	}

	ct, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgUserRepo) FirstAdmin(ctx context.Context) (*model.User, error) {
	user := &model.User{Role: model.RoleAdmin}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, pin_hash, created_at FROM users
		 WHERE role IN ('ADMIN', 'admin') ORDER BY created_at ASC LIMIT 1`,
	).Scan(&user.ID, &user.Name, &user.PINHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find system user: %w", err)
	}
	return user, nil
}
