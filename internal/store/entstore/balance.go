package entstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prizehunt/prizebot/internal/store"
)

// BalanceRepo implements store.BalanceRepository using database/sql.
type BalanceRepo struct {
	db       *sql.DB
	starting decimal.Decimal
}

// NewBalanceRepo returns a new BalanceRepo.
func NewBalanceRepo(db *sql.DB, starting decimal.Decimal) *BalanceRepo {
	return &BalanceRepo{db: db, starting: starting}
}

func (r *BalanceRepo) Get(ctx context.Context, userID string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET amount = balances.amount
		RETURNING amount`, userID, r.starting,
	).Scan(&amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("getting balance: %w", err)
	}
	return amount, nil
}

func (r *BalanceRepo) Adjust(ctx context.Context, userID string, delta decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE balances SET amount = amount + $1 WHERE user_id = $2`,
		delta, userID,
	)
	if err != nil {
		return fmt.Errorf("adjusting balance: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("balance for user %s: %w", userID, store.ErrNotFound)
	}
	return nil
}
