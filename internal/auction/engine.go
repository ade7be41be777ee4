package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prizehunt/prizebot/internal/clock"
	"github.com/prizehunt/prizebot/internal/event"
	"github.com/prizehunt/prizebot/internal/notify"
	"github.com/prizehunt/prizebot/internal/store"
)

// Deps are the collaborators the Engine orchestrates.
type Deps struct {
	Prizes   store.PrizeRepository
	Bids     store.BidRepository
	Winners  store.WinnerRepository
	Balances store.BalanceRepository
	Events   event.Store
	Notifier notify.Notifier
	Logger   *slog.Logger
	Tracer   trace.TracerProvider
	Clock    clock.Clock
}

// Engine runs the auction lifecycle: one auction per chat channel through
// start → bids → expiry → settlement. It owns all live auction state.
type Engine struct {
	mu       sync.RWMutex
	auctions map[string]*Auction // keyed by chat id

	prizes   store.PrizeRepository
	bids     store.BidRepository
	winners  store.WinnerRepository
	balances store.BalanceRepository
	events   event.Store
	notifier notify.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
	duration time.Duration
}

// NewEngine creates an Engine. duration is the countdown from start to
// resolution for every auction.
func NewEngine(d Deps, duration time.Duration) *Engine {
	return &Engine{
		auctions: make(map[string]*Auction),
		prizes:   d.Prizes,
		bids:     d.Bids,
		winners:  d.Winners,
		balances: d.Balances,
		events:   d.Events,
		notifier: d.Notifier,
		logger:   d.Logger,
		tracer:   d.Tracer.Tracer("github.com/prizehunt/prizebot/internal/auction"),
		clock:    d.Clock,
		duration: duration,
	}
}

// Start opens an auction for the channel: reserves a random unused prize,
// persists the started event and schedules resolution. The prize is not
// marked used until a winner settles.
func (e *Engine) Start(ctx context.Context, chatID string) (*Auction, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Start",
		trace.WithAttributes(attribute.String("chat_id", chatID)),
	)
	defer span.End()

	e.mu.RLock()
	_, exists := e.auctions[chatID]
	e.mu.RUnlock()
	if exists {
		return nil, ErrAuctionOpen
	}

	prize, err := e.prizes.PickRandomUnused(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPrize
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "prize selection failed", slog.Any("error", err))
		return nil, storeErr(err)
	}

	now := e.clock.Now()
	a := &Auction{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		PrizeID:   prize.ID,
		ImageRef:  prize.ImageRef,
		HiddenRef: prize.HiddenRef,
		ClosesAt:  now.Add(e.duration),
		status:    StatusOpen,
	}

	e.mu.Lock()
	if _, exists := e.auctions[chatID]; exists {
		e.mu.Unlock()
		return nil, ErrAuctionOpen
	}
	e.auctions[chatID] = a
	e.mu.Unlock()

	data, _ := json.Marshal(event.AuctionStartedData{
		ChatID:    chatID,
		PrizeID:   prize.ID,
		ImageRef:  prize.ImageRef,
		HiddenRef: prize.HiddenRef,
		ClosesAt:  a.ClosesAt,
	})
	if err := e.events.Append(ctx, event.Event{
		AggregateID: a.ID,
		Type:        event.AuctionStarted,
		Data:        data,
		Version:     1,
	}); err != nil {
		e.mu.Lock()
		delete(e.auctions, chatID)
		e.mu.Unlock()
		e.logger.ErrorContext(ctx, "persisting auction started event failed", slog.Any("error", err))
		return nil, storeErr(err)
	}

	a.timer = e.clock.AfterFunc(e.duration, func() { e.expire(chatID) })

	e.logger.InfoContext(ctx, "auction started",
		slog.String("auction_id", a.ID),
		slog.String("chat_id", chatID),
		slog.Int64("prize_id", prize.ID),
		slog.Time("closes_at", a.ClosesAt),
	)
	return a, nil
}

// PlaceBid validates and records a bid on the channel's open auction.
// Checks run in order, first failure wins: active auction, sufficient
// balance, strictly above the current highest. The balance is only a
// ceiling here; nothing is debited or reserved until the auction settles.
func (e *Engine) PlaceBid(ctx context.Context, chatID, userID string, amount decimal.Decimal) error {
	ctx, span := e.tracer.Start(ctx, "Engine.PlaceBid",
		trace.WithAttributes(
			attribute.String("chat_id", chatID),
			attribute.String("user_id", userID),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	e.mu.RLock()
	a, ok := e.auctions[chatID]
	e.mu.RUnlock()
	if !ok || !a.Active() {
		return ErrNotActive
	}

	balance, err := e.balances.Get(ctx, userID)
	if err != nil {
		e.logger.ErrorContext(ctx, "balance lookup failed",
			slog.String("user_id", userID), slog.Any("error", err))
		return storeErr(err)
	}

	if err := a.PlaceBid(amount, balance, func() error {
		if appendErr := e.bids.Append(ctx, &store.Bid{
			UserID:  userID,
			PrizeID: a.PrizeID,
			Amount:  amount,
		}); appendErr != nil {
			e.logger.ErrorContext(ctx, "appending bid failed", slog.Any("error", appendErr))
			return storeErr(appendErr)
		}
		return nil
	}); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "bid placed",
		slog.String("auction_id", a.ID),
		slog.String("chat_id", chatID),
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Info returns a read-only snapshot of the channel's auction, nil if none.
func (e *Engine) Info(chatID string) *Info {
	e.mu.RLock()
	a, ok := e.auctions[chatID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	info := a.snapshot(e.clock.Now())
	return &info
}

// expire is the scheduled resolution callback.
func (e *Engine) expire(chatID string) {
	if err := e.Resolve(context.Background(), chatID); err != nil {
		e.logger.Error("auction resolution failed",
			slog.String("chat_id", chatID), slog.Any("error", err))
	}
}

// Resolve settles the channel's auction. Idempotent: an unknown channel or
// an already-resolved auction is a no-op, so the expiry timer and a manual
// call may race freely. The status flips to resolved before any settlement
// I/O, which guarantees the side effects happen at most once.
func (e *Engine) Resolve(ctx context.Context, chatID string) error {
	ctx, span := e.tracer.Start(ctx, "Engine.Resolve",
		trace.WithAttributes(attribute.String("chat_id", chatID)),
	)
	defer span.End()

	e.mu.RLock()
	a, ok := e.auctions[chatID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	if !a.markResolved() {
		return nil
	}
	if a.timer != nil {
		a.timer.Stop()
	}

	err := e.settle(ctx, a)

	e.mu.Lock()
	delete(e.auctions, chatID)
	e.mu.Unlock()

	return err
}

// settle applies the auction's side effects and announces the outcome.
// Notifications run last, after all bookkeeping, and never fail the
// settlement.
func (e *Engine) settle(ctx context.Context, a *Auction) error {
	top, err := e.bids.HighestBidderFor(ctx, a.PrizeID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.ErrorContext(ctx, "highest bidder lookup failed",
			slog.String("auction_id", a.ID), slog.Any("error", err))
		return storeErr(err)
	}

	if top == nil {
		// No bids: the prize stays unused and returns to the pool.
		e.appendResolved(ctx, a, nil)
		e.logger.InfoContext(ctx, "auction resolved without bids",
			slog.String("auction_id", a.ID),
			slog.Int64("prize_id", a.PrizeID),
		)
		e.notifyText(ctx, a.ChatID, "The auction ended with no bids. The prize returns to the pool.")
		return nil
	}

	now := e.clock.Now()
	created, err := e.winners.RecordIfAbsent(ctx, top.UserID, a.PrizeID, now)
	if err != nil {
		e.logger.ErrorContext(ctx, "recording winner failed",
			slog.String("auction_id", a.ID), slog.Any("error", err))
		return storeErr(err)
	}
	if !created {
		e.logger.WarnContext(ctx, "winner already recorded for prize",
			slog.String("user_id", top.UserID),
			slog.Int64("prize_id", a.PrizeID),
		)
	}

	if err := e.prizes.MarkUsed(ctx, a.PrizeID); err != nil {
		e.logger.ErrorContext(ctx, "marking prize used failed",
			slog.Int64("prize_id", a.PrizeID), slog.Any("error", err))
		return storeErr(err)
	}

	if err := e.balances.Adjust(ctx, top.UserID, top.Amount.Neg()); err != nil {
		e.logger.ErrorContext(ctx, "debiting winner failed",
			slog.String("user_id", top.UserID), slog.Any("error", err))
		return storeErr(err)
	}

	e.appendResolved(ctx, a, top)

	e.logger.InfoContext(ctx, "auction resolved",
		slog.String("auction_id", a.ID),
		slog.Int64("prize_id", a.PrizeID),
		slog.String("winner_id", top.UserID),
		slog.String("amount", top.Amount.String()),
	)

	caption := fmt.Sprintf("The auction has ended! Winner: @%s with a bid of %s. Prize #%d is yours!",
		top.Username, top.Amount, a.PrizeID)
	if err := e.notifier.SendImage(ctx, a.ChatID, a.ImageRef, caption); err != nil {
		e.logger.WarnContext(ctx, "winner announcement failed",
			slog.String("chat_id", a.ChatID), slog.Any("error", err))
	}
	return nil
}

// appendResolved writes the resolution event; failures are logged, the
// settlement already happened.
func (e *Engine) appendResolved(ctx context.Context, a *Auction, top *store.TopBid) {
	payload := event.AuctionResolvedData{ChatID: a.ChatID, PrizeID: a.PrizeID}
	if top != nil {
		payload.WinnerID = top.UserID
		payload.Amount = top.Amount.String()
	}
	data, _ := json.Marshal(payload)
	if err := e.events.Append(ctx, event.Event{
		AggregateID: a.ID,
		Type:        event.AuctionResolved,
		Data:        data,
		Version:     2,
	}); err != nil {
		e.logger.ErrorContext(ctx, "persisting auction resolved event failed",
			slog.String("auction_id", a.ID), slog.Any("error", err))
	}
}

func (e *Engine) notifyText(ctx context.Context, chatID, text string) {
	if err := e.notifier.SendText(ctx, chatID, text); err != nil {
		e.logger.WarnContext(ctx, "notification failed",
			slog.String("chat_id", chatID), slog.Any("error", err))
	}
}

// Recover reloads still-open auctions from the event store after a restart
// or leader failover. Expired ones resolve immediately; the rest get timers
// for their remaining duration and their bid floor re-seeded from the bid
// log.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Recover")
	defer span.End()

	started, err := e.events.LoadByType(ctx, event.AuctionStarted)
	if err != nil {
		return 0, fmt.Errorf("loading auction started events: %w", err)
	}
	resolved, err := e.events.LoadByType(ctx, event.AuctionResolved)
	if err != nil {
		return 0, fmt.Errorf("loading auction resolved events: %w", err)
	}

	done := make(map[string]struct{}, len(resolved))
	for _, ev := range resolved {
		done[ev.AggregateID] = struct{}{}
	}

	recovered := 0
	for _, ev := range started {
		if _, ok := done[ev.AggregateID]; ok {
			continue
		}

		var d event.AuctionStartedData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			e.logger.WarnContext(ctx, "skipping malformed started event",
				slog.String("auction_id", ev.AggregateID), slog.Any("error", err))
			continue
		}

		highest, err := e.bids.HighestFor(ctx, d.PrizeID)
		if err != nil {
			e.logger.WarnContext(ctx, "bid floor lookup failed during recovery",
				slog.String("auction_id", ev.AggregateID), slog.Any("error", err))
			continue
		}

		a := &Auction{
			ID:        ev.AggregateID,
			ChatID:    d.ChatID,
			PrizeID:   d.PrizeID,
			ImageRef:  d.ImageRef,
			HiddenRef: d.HiddenRef,
			ClosesAt:  d.ClosesAt,
			status:    StatusOpen,
			highest:   highest,
		}

		e.mu.Lock()
		if _, busy := e.auctions[d.ChatID]; busy {
			e.mu.Unlock()
			e.logger.WarnContext(ctx, "channel already has a recovered auction, skipping",
				slog.String("chat_id", d.ChatID),
				slog.String("auction_id", ev.AggregateID),
			)
			continue
		}
		e.auctions[d.ChatID] = a
		e.mu.Unlock()
		recovered++

		remaining := d.ClosesAt.Sub(e.clock.Now())
		if remaining <= 0 {
			if err := e.Resolve(ctx, d.ChatID); err != nil {
				e.logger.ErrorContext(ctx, "resolving expired auction during recovery failed",
					slog.String("auction_id", ev.AggregateID), slog.Any("error", err))
			}
			continue
		}

		chatID := d.ChatID
		a.timer = e.clock.AfterFunc(remaining, func() { e.expire(chatID) })

		e.logger.InfoContext(ctx, "recovered open auction",
			slog.String("auction_id", a.ID),
			slog.String("chat_id", a.ChatID),
			slog.Int64("prize_id", a.PrizeID),
			slog.Duration("remaining", remaining),
		)
	}

	e.logger.InfoContext(ctx, "auction recovery complete",
		slog.Int("total_started", len(started)),
		slog.Int("recovered_open", recovered),
	)
	return recovered, nil
}

// storeErr hides store failure details behind an opaque sentinel.
func storeErr(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
