package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
)

const (
	adminColumns = `id, email, name, password, created_at`

	findAdminByEmailSQL = `SELECT ` + adminColumns + ` FROM admins WHERE email = $1`
	getAdminSQL         = `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`

	createAdminSQL = `INSERT INTO admins (email, password, name) VALUES ($1, $2, $3)
		RETURNING id, created_at`

	updateAdminPasswordSQL = `UPDATE admins SET password = $2 WHERE id = $1`
)

var _ auth.Repository = (*AdminRepository)(nil)

// AdminRepository provides admin account storage backed by PostgreSQL.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository returns an AdminRepository that uses the given pool.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// FindByEmail looks up an admin by email. Returns auth.ErrAdminNotFound when
// no admin matches.
func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*auth.Admin, error) {
	return r.one(ctx, findAdminByEmailSQL, email)
}

// Get looks up an admin by id.
func (r *AdminRepository) Get(ctx context.Context, id int64) (*auth.Admin, error) {
	return r.one(ctx, getAdminSQL, id)
}

func (r *AdminRepository) one(ctx context.Context, query string, arg any) (*auth.Admin, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("finding admin: %w", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrAdminNotFound
		}
		return nil, fmt.Errorf("finding admin: %w", err)
	}
	return &a, nil
}

// Create inserts a new admin.
func (r *AdminRepository) Create(ctx context.Context, a *auth.Admin) error {
	err := r.pool.QueryRow(ctx, createAdminSQL, a.Email, a.PasswordHash, a.Name).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return auth.ErrAdminExists
		}
		return fmt.Errorf("creating admin %q: %w", a.Email, err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *AdminRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, updateAdminPasswordSQL, id, hash)
	if err != nil {
		return fmt.Errorf("updating admin %d password: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrAdminNotFound
	}
	return nil
}

func scanAdmin(row pgx.CollectableRow) (auth.Admin, error) {
	var a auth.Admin
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt)
	return a, err
}
