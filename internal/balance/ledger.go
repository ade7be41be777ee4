package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prizehunt/prizebot/internal/event"
	"github.com/prizehunt/prizebot/internal/store"
)

// Ledger handles user registration and spendable balances. Balances are
// created lazily with the configured starting amount on first access; only
// auction settlement debits them.
type Ledger struct {
	users    store.UserRepository
	balances store.BalanceRepository
	events   event.Store
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewLedger returns a new Ledger.
func NewLedger(users store.UserRepository, balances store.BalanceRepository, events event.Store, logger *slog.Logger, tp trace.TracerProvider) *Ledger {
	return &Ledger{
		users:    users,
		balances: balances,
		events:   events,
		logger:   logger,
		tracer:   tp.Tracer("github.com/prizehunt/prizebot/internal/balance"),
	}
}

// RegisterUser records a chat user. Re-registering refreshes the username
// and reports created = false.
func (l *Ledger) RegisterUser(ctx context.Context, userID, username string) (created bool, err error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.RegisterUser",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("username", username),
		),
	)
	defer span.End()

	_, err = l.users.Get(ctx, userID)
	if err == nil {
		// Known user: refresh the username, nothing else.
		if updateErr := l.users.Create(ctx, &store.User{ID: userID, Username: username}); updateErr != nil {
			return false, fmt.Errorf("updating user: %w", updateErr)
		}
		return false, nil
	}

	u := &store.User{ID: userID, Username: username}
	if err := l.users.Create(ctx, u); err != nil {
		return false, fmt.Errorf("creating user: %w", err)
	}

	data, _ := json.Marshal(event.UserRegisteredData{
		UserID:   userID,
		Username: username,
	})
	evt := event.Event{
		AggregateID: userID,
		Type:        event.UserRegistered,
		Data:        data,
		Version:     1,
	}
	if err := l.events.Append(ctx, evt); err != nil {
		l.logger.ErrorContext(ctx, "failed to append user registered event", slog.Any("error", err))
	}

	l.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", userID),
		slog.String("username", username),
	)
	return true, nil
}

// GetUser returns a user by id.
func (l *Ledger) GetUser(ctx context.Context, userID string) (*store.User, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.GetUser")
	defer span.End()

	return l.users.Get(ctx, userID)
}

// ListUsers returns all registered users.
func (l *Ledger) ListUsers(ctx context.Context) ([]store.User, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.ListUsers")
	defer span.End()

	return l.users.List(ctx)
}

// GetBalance returns the user's spendable balance, creating it with the
// starting amount on first access.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.GetBalance",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	amount, err := l.balances.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("getting balance: %w", err)
	}
	return amount, nil
}

// Adjust applies delta to the user's balance and records an audit event.
func (l *Ledger) Adjust(ctx context.Context, userID string, delta decimal.Decimal, reason string) error {
	ctx, span := l.tracer.Start(ctx, "Ledger.Adjust",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("delta", delta.String()),
		),
	)
	defer span.End()

	if err := l.balances.Adjust(ctx, userID, delta); err != nil {
		return fmt.Errorf("adjusting balance: %w", err)
	}

	data, _ := json.Marshal(event.BalanceAdjustedData{
		UserID: userID,
		Delta:  delta.String(),
		Reason: reason,
	})
	evt := event.Event{
		AggregateID: userID,
		Type:        event.BalanceAdjusted,
		Data:        data,
		Version:     0,
	}
	if err := l.events.Append(ctx, evt); err != nil {
		l.logger.ErrorContext(ctx, "failed to append balance adjusted event", slog.Any("error", err))
	}

	l.logger.InfoContext(ctx, "balance adjusted",
		slog.String("user_id", userID),
		slog.String("delta", delta.String()),
		slog.String("reason", reason),
	)
	return nil
}
