package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dependable-calls/dce/internal/platform/db"
	"github.com/dependable-calls/dce/internal/shared"
)

// ErrEmailTaken indicates a signup with an already registered email.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, email, passwordHash, fullName, role string) (int64, error)
	ResolveRole(ctx context.Context, userID int64) (string, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(ctx, `SELECT id, email, password_hash, full_name, is_active, created_at, updated_at FROM users WHERE email = $1`, email)
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(ctx, `SELECT id, email, password_hash, full_name, is_active, created_at, updated_at FROM users WHERE id = $1`, id)
}

func (r *PGRepository) scanUser(ctx context.Context, query string, arg any) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts the account and its role profile row in one transaction.
func (r *PGRepository) CreateUser(ctx context.Context, email, passwordHash, fullName, role string) (int64, error) {
	var userID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO users (email, password_hash, full_name, is_active, created_at, updated_at) VALUES ($1, $2, $3, TRUE, NOW(), NOW()) RETURNING id`,
			email, passwordHash, fullName,
		).Scan(&userID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrEmailTaken
			}
			return err
		}
		switch role {
		case RoleSupplier:
			_, err = tx.Exec(ctx, `INSERT INTO suppliers (user_id, status, created_at) VALUES ($1, 'pending', NOW())`, userID)
		case RoleBuyer:
			_, err = tx.Exec(ctx, `INSERT INTO buyers (user_id, status, created_at) VALUES ($1, 'pending', NOW())`, userID)
		default:
			err = errors.New("auth: unsupported signup role")
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// ResolveRole infers the platform role by checking the profile tables in
// precedence order: admin grants, then supplier, buyer and network profiles.
func (r *PGRepository) ResolveRole(ctx context.Context, userID int64) (string, error) {
	checks := []struct {
		role  string
		query string
	}{
		{RoleAdmin, `SELECT 1 FROM admins WHERE user_id = $1`},
		{RoleSupplier, `SELECT 1 FROM suppliers WHERE user_id = $1`},
		{RoleBuyer, `SELECT 1 FROM buyers WHERE user_id = $1`},
		{RoleNetwork, `SELECT 1 FROM networks WHERE user_id = $1`},
	}
	for _, check := range checks {
		var one int
		err := r.pool.QueryRow(ctx, check.query, userID).Scan(&one)
		if err == nil {
			return check.role, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}
	return "", nil
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		id, userID, now, expiresAt.UTC(), ip, ua,
	)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
