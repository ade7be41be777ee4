package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/prizehunt/prizebot/internal/store"
)

// PrizeRepo implements store.PrizeRepository with sqlx.
type PrizeRepo struct {
	db *sqlx.DB
}

// NewPrizeRepo returns a new PrizeRepo.
func NewPrizeRepo(db *sqlx.DB) *PrizeRepo {
	return &PrizeRepo{db: db}
}

func (r *PrizeRepo) Add(ctx context.Context, prizes []store.Prize) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO prizes (image_ref, hidden_ref) VALUES ($1, $2)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range prizes {
		if _, err := stmt.ExecContext(ctx, p.ImageRef, p.HiddenRef); err != nil {
			return fmt.Errorf("inserting prize %q: %w", p.ImageRef, err)
		}
	}

	return tx.Commit()
}

func (r *PrizeRepo) Get(ctx context.Context, id int64) (*store.Prize, error) {
	var p store.Prize
	err := r.db.GetContext(ctx, &p, `SELECT * FROM prizes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting prize: %w", err)
	}
	return &p, nil
}

func (r *PrizeRepo) PickRandomUnused(ctx context.Context) (*store.Prize, error) {
	var p store.Prize
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM prizes WHERE used = FALSE ORDER BY RANDOM() LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("picking random prize: %w", err)
	}
	return &p, nil
}

func (r *PrizeRepo) MarkUsed(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE prizes SET used = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking prize used: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("prize %d: %w", id, store.ErrNotFound)
	}
	return nil
}
