package giveaway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prizehunt/prizebot/internal/clock"
	"github.com/prizehunt/prizebot/internal/event"
	"github.com/prizehunt/prizebot/internal/notify"
	"github.com/prizehunt/prizebot/internal/store"
)

// Claim rejections.
var (
	// ErrTooLate rejects a claim after the claim limit was reached.
	ErrTooLate = errors.New("all copies of this prize are claimed")
	// ErrAlreadyClaimed rejects a second claim by the same user.
	ErrAlreadyClaimed = errors.New("you already claimed this prize")
)

// Manager runs the periodic giveaway: every interval it draws a random
// unused prize, marks it used, and broadcasts the obfuscated image to all
// registered users; the first claimLimit distinct claimers win it.
type Manager struct {
	prizes     store.PrizeRepository
	users      store.UserRepository
	winners    store.WinnerRepository
	events     event.Store
	notifier   notify.Notifier
	logger     *slog.Logger
	tracer     trace.Tracer
	clock      clock.Clock
	interval   time.Duration
	claimLimit int

	wg sync.WaitGroup
}

// NewManager returns a new giveaway Manager.
func NewManager(prizes store.PrizeRepository, users store.UserRepository, winners store.WinnerRepository, events event.Store, notifier notify.Notifier, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock, interval time.Duration, claimLimit int) *Manager {
	return &Manager{
		prizes:     prizes,
		users:      users,
		winners:    winners,
		events:     events,
		notifier:   notifier,
		logger:     logger,
		tracer:     tp.Tracer("github.com/prizehunt/prizebot/internal/giveaway"),
		clock:      clk,
		interval:   interval,
		claimLimit: claimLimit,
	}
}

// Run broadcasts a giveaway every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := m.SendRound(ctx); err != nil && !errors.Is(err, store.ErrNotFound) {
					m.logger.ErrorContext(ctx, "giveaway round failed", slog.Any("error", err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the broadcast loop has stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// SendRound runs one giveaway round: draw a prize, mark it used, offer it
// to everyone. Returns store.ErrNotFound when the pool is empty.
func (m *Manager) SendRound(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.SendRound")
	defer span.End()

	prize, err := m.prizes.PickRandomUnused(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.InfoContext(ctx, "giveaway skipped, prize pool empty")
			return err
		}
		return fmt.Errorf("picking giveaway prize: %w", err)
	}

	// The giveaway consumes the prize up front, unlike auctions: the offer
	// goes out to everyone, so the prize cannot return to the pool.
	if err := m.prizes.MarkUsed(ctx, prize.ID); err != nil {
		return fmt.Errorf("marking giveaway prize used: %w", err)
	}

	users, err := m.users.List(ctx)
	if err != nil {
		return fmt.Errorf("listing giveaway recipients: %w", err)
	}

	sent := 0
	for _, u := range users {
		if err := m.notifier.SendClaimOffer(ctx, u.ID, prize.ID, prize.HiddenRef); err != nil {
			m.logger.WarnContext(ctx, "claim offer delivery failed",
				slog.String("user_id", u.ID), slog.Any("error", err))
			continue
		}
		sent++
	}

	data, _ := json.Marshal(event.GiveawaySentData{
		PrizeID:    prize.ID,
		Recipients: sent,
	})
	evt := event.Event{
		AggregateID: fmt.Sprintf("giveaway-%d", prize.ID),
		Type:        event.GiveawaySent,
		Data:        data,
		Version:     1,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append giveaway sent event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "giveaway round sent",
		slog.Int64("prize_id", prize.ID),
		slog.Int("recipients", sent),
	)
	return nil
}

// Claim records a user's claim on a giveaway prize. The first claimLimit
// distinct users win; everyone else gets ErrTooLate, and a repeat claim by
// a winner gets ErrAlreadyClaimed. On success the revealed prize is
// returned for delivery.
func (m *Manager) Claim(ctx context.Context, userID string, prizeID int64) (*store.Prize, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Claim",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int64("prize_id", prizeID),
		),
	)
	defer span.End()

	count, err := m.winners.CountFor(ctx, prizeID)
	if err != nil {
		return nil, fmt.Errorf("counting claims: %w", err)
	}
	if count >= m.claimLimit {
		return nil, ErrTooLate
	}

	created, err := m.winners.RecordIfAbsent(ctx, userID, prizeID, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("recording claim: %w", err)
	}
	if !created {
		return nil, ErrAlreadyClaimed
	}

	data, _ := json.Marshal(event.GiveawayClaimedData{
		PrizeID: prizeID,
		UserID:  userID,
	})
	evt := event.Event{
		AggregateID: fmt.Sprintf("giveaway-%d", prizeID),
		Type:        event.GiveawayClaimed,
		Data:        data,
		Version:     0,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append giveaway claimed event", slog.Any("error", err))
	}

	prize, err := m.prizes.Get(ctx, prizeID)
	if err != nil {
		return nil, fmt.Errorf("loading claimed prize: %w", err)
	}

	m.logger.InfoContext(ctx, "giveaway prize claimed",
		slog.String("user_id", userID),
		slog.Int64("prize_id", prizeID),
	)
	return prize, nil
}
