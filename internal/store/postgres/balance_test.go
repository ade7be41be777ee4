package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/prizehunt/prizebot/internal/store"
	"github.com/prizehunt/prizebot/internal/store/postgres"
)

func TestBalanceRepo_Get_LazyDefault(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewBalanceRepo(db, decimal.NewFromInt(1000))
	ctx := context.Background()

	bal, err := repo.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("first Get = %s, want starting 1000", bal)
	}

	// A second Get must not reset the balance.
	if err := repo.Adjust(ctx, "user-1", decimal.NewFromInt(-100)); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	bal, err = repo.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Get after debit = %s, want 900", bal)
	}
}

func TestBalanceRepo_Adjust_Fractional(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewBalanceRepo(db, decimal.NewFromInt(1000))
	ctx := context.Background()

	if _, err := repo.Get(ctx, "user-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := repo.Adjust(ctx, "user-1", decimal.RequireFromString("-0.25")); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	bal, _ := repo.Get(ctx, "user-1")
	if !bal.Equal(decimal.RequireFromString("999.75")) {
		t.Errorf("balance = %s, want 999.75", bal)
	}
}

func TestBalanceRepo_Adjust_Unknown(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewBalanceRepo(db, decimal.NewFromInt(1000))

	err := repo.Adjust(context.Background(), "nobody", decimal.NewFromInt(-10))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Adjust for unknown user error = %v, want ErrNotFound", err)
	}
}
