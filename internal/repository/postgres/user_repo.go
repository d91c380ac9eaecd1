package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUserByUsername возвращает nil, nil, если пользователя нет.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
		FROM users WHERE username = $1`

	u := &domain.User{}
	var scopes []byte
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &scopes, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get user: %w", err)
	}
	if len(scopes) > 0 {
		if err := json.Unmarshal(scopes, &u.Scopes); err != nil {
			return nil, fmt.Errorf("postgres: bad scopes for user %s: %w", u.ID, err)
		}
	}
	return u, nil
}

// CreateUser: нарушение уникальности username/email -> domain.ErrUserExists.
func (r *UserRepo) CreateUser(ctx context.Context, u *domain.User) error {
	scopes, err := json.Marshal(u.Scopes)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode scopes: %w", err)
	}
	query := `
		INSERT INTO users (id, email, username, password_hash, role, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query, u.ID, u.Email, u.Username, u.PasswordHash, u.Role, scopes, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: user %s: %w", u.Username, domain.ErrUserExists)
		}
		return fmt.Errorf("postgres: failed to create user: %w", err)
	}
	return nil
}
