package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/prizehunt/prizebot/internal/store"
)

// UserRepo implements store.UserRepository with sqlx.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo returns a new UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *store.User) error {
	query := `INSERT INTO users (id, username, created_at) VALUES ($1, $2, $3)
	           ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`
	u.CreatedAt = time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, query, u.ID, u.Username, u.CreatedAt); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]store.User, error) {
	var users []store.User
	err := r.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}
