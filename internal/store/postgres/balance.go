package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/prizehunt/prizebot/internal/store"
)

// BalanceRepo implements store.BalanceRepository with sqlx. Balances are
// created lazily with the configured starting amount.
type BalanceRepo struct {
	db       *sqlx.DB
	starting decimal.Decimal
}

// NewBalanceRepo returns a new BalanceRepo.
func NewBalanceRepo(db *sqlx.DB, starting decimal.Decimal) *BalanceRepo {
	return &BalanceRepo{db: db, starting: starting}
}

func (r *BalanceRepo) Get(ctx context.Context, userID string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := r.db.GetContext(ctx, &amount, `
		INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET amount = balances.amount
		RETURNING amount`, userID, r.starting)
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
