package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"smartattend/internal/apperr"
)

const uniqueViolation = "23505"

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a user. A duplicate email is a conflict.
func (r *Repository) Create(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.E(apperr.KindConflict, "an account with this email already exists")
		}
		return apperr.Wrap(apperr.KindInternal, "insert user", err)
	}
	return nil
}

// FindByEmail returns the user for an email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM users WHERE email = $1
	`, email)
	return scanUser(row)
}

// FindByID returns a user by id.
func (r *Repository) FindByID(ctx context.Context, id string) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apperr.E(apperr.KindNotFound, "user not found")
		}
		return User{}, apperr.Wrap(apperr.KindInternal, "load user", err)
	}
	return u, nil
}
