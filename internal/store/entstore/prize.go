package entstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prizehunt/prizebot/internal/store"
)

// PrizeRepo implements store.PrizeRepository using database/sql.
type PrizeRepo struct {
	db *sql.DB
}

// NewPrizeRepo returns a new PrizeRepo.
func NewPrizeRepo(db *sql.DB) *PrizeRepo {
	return &PrizeRepo{db: db}
}

func (r *PrizeRepo) Add(ctx context.Context, prizes []store.Prize) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
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
	p := &store.Prize{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, image_ref, hidden_ref, used FROM prizes WHERE id = $1`, id,
	).Scan(&p.ID, &p.ImageRef, &p.HiddenRef, &p.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting prize: %w", err)
	}
	return p, nil
}

func (r *PrizeRepo) PickRandomUnused(ctx context.Context) (*store.Prize, error) {
	p := &store.Prize{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, image_ref, hidden_ref, used FROM prizes
		 WHERE used = FALSE ORDER BY RANDOM() LIMIT 1`,
	).Scan(&p.ID, &p.ImageRef, &p.HiddenRef, &p.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("picking random prize: %w", err)
	}
	return p, nil
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
