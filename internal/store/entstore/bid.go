package entstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prizehunt/prizebot/internal/store"
)

// BidRepo implements store.BidRepository using database/sql.
type BidRepo struct {
	db *sql.DB
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(db *sql.DB) *BidRepo {
	return &BidRepo{db: db}
}

func (r *BidRepo) Append(ctx context.Context, b *store.Bid) error {
	b.CreatedAt = time.Now().UTC()
	if err := r.db.QueryRowContext(ctx,
		`INSERT INTO bids (user_id, prize_id, amount, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		b.UserID, b.PrizeID, b.Amount, b.CreatedAt,
	).Scan(&b.ID); err != nil {
		return fmt.Errorf("appending bid: %w", err)
	}
	return nil
}

func (r *BidRepo) HighestFor(ctx context.Context, prizeID int64) (decimal.Decimal, error) {
	var amount decimal.NullDecimal
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(amount) FROM bids WHERE prize_id = $1`, prizeID,
	).Scan(&amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("getting highest bid: %w", err)
	}
	if !amount.Valid {
		return decimal.Zero, nil
	}
	return amount.Decimal, nil
}

func (r *BidRepo) HighestBidderFor(ctx context.Context, prizeID int64) (*store.TopBid, error) {
	top := &store.TopBid{}
	err := r.db.QueryRowContext(ctx, `
		SELECT b.user_id, COALESCE(u.username, b.user_id), b.amount
		FROM bids b
		LEFT JOIN users u ON b.user_id = u.id
		WHERE b.prize_id = $1
		ORDER BY b.amount DESC, b.created_at ASC
		LIMIT 1`, prizeID,
	).Scan(&top.UserID, &top.Username, &top.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting highest bidder: %w", err)
	}
	return top, nil
}
