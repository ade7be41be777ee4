package entstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prizehunt/prizebot/internal/store"
)

// WinnerRepo implements store.WinnerRepository using database/sql.
type WinnerRepo struct {
	db *sql.DB
}

// NewWinnerRepo returns a new WinnerRepo.
func NewWinnerRepo(db *sql.DB) *WinnerRepo {
	return &WinnerRepo{db: db}
}

func (r *WinnerRepo) RecordIfAbsent(ctx context.Context, userID string, prizeID int64, winTime time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO winners (user_id, prize_id, win_time) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, prize_id) DO NOTHING`,
		userID, prizeID, winTime.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("recording winner: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (r *WinnerRepo) CountFor(ctx context.Context, prizeID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM winners WHERE prize_id = $1`, prizeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting winners: %w", err)
	}
	return count, nil
}

func (r *WinnerRepo) TopWinners(ctx context.Context, limit int) ([]store.RatingEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.username, COUNT(w.prize_id) AS prizes
		FROM winners w
		INNER JOIN users u ON u.id = w.user_id
		GROUP BY w.user_id, u.username
		ORDER BY prizes DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing top winners: %w", err)
	}
	defer rows.Close()

	var entries []store.RatingEntry
	for rows.Next() {
		var e store.RatingEntry
		if err := rows.Scan(&e.Username, &e.Prizes); err != nil {
			return nil, fmt.Errorf("scanning rating row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *WinnerRepo) ListByUser(ctx context.Context, userID string) ([]store.Prize, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.image_ref, p.hidden_ref, p.used
		FROM winners w
		INNER JOIN prizes p ON p.id = w.prize_id
		WHERE w.user_id = $1
		ORDER BY w.win_time ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user prizes: %w", err)
	}
	defer rows.Close()

	var prizes []store.Prize
	for rows.Next() {
		var p store.Prize
		if err := rows.Scan(&p.ID, &p.ImageRef, &p.HiddenRef, &p.Used); err != nil {
			return nil, fmt.Errorf("scanning prize row: %w", err)
		}
		prizes = append(prizes, p)
	}
	return prizes, rows.Err()
}
