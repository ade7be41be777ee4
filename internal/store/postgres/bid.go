package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/prizehunt/prizebot/internal/store"
)

// BidRepo implements store.BidRepository with sqlx.
type BidRepo struct {
	db *sqlx.DB
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(db *sqlx.DB) *BidRepo {
	return &BidRepo{db: db}
}

func (r *BidRepo) Append(ctx context.Context, b *store.Bid) error {
	query := `INSERT INTO bids (user_id, prize_id, amount, created_at)
	           VALUES ($1, $2, $3, $4) RETURNING id`
	b.CreatedAt = time.Now().UTC()
	if err := r.db.QueryRowContext(ctx, query, b.UserID, b.PrizeID, b.Amount, b.CreatedAt).Scan(&b.ID); err != nil {
		return fmt.Errorf("appending bid: %w", err)
	}
	return nil
}

func (r *BidRepo) HighestFor(ctx context.Context, prizeID int64) (decimal.Decimal, error) {
	var amount decimal.NullDecimal
	err := r.db.GetContext(ctx, &amount,
		`SELECT MAX(amount) FROM bids WHERE prize_id = $1`, prizeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("getting highest bid: %w", err)
	}
	if !amount.Valid {
		return decimal.Zero, nil
	}
	return amount.Decimal, nil
}

func (r *BidRepo) HighestBidderFor(ctx context.Context, prizeID int64) (*store.TopBid, error) {
	var top store.TopBid
	err := r.db.GetContext(ctx, &top, `
		SELECT b.user_id, COALESCE(u.username, b.user_id) AS username, b.amount
		FROM bids b
		LEFT JOIN users u ON b.user_id = u.id
		WHERE b.prize_id = $1
		ORDER BY b.amount DESC, b.created_at ASC
		LIMIT 1`, prizeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting highest bidder: %w", err)
	}
	return &top, nil
}
