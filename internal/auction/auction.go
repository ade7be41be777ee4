package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prizehunt/prizebot/internal/clock"
)

// Auction status values.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Errors returned by auction operations.
var (
	ErrNoPrize           = errors.New("no prize available")
	ErrNotActive         = errors.New("auction is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAuctionOpen       = errors.New("an auction is already open for this channel")
	// ErrStoreUnavailable hides persistent-store failure details from
	// callers; the specifics are logged at the engine.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// BidTooLowError rejects a bid that does not strictly exceed the current
// highest bid. Equal amounts are rejected, so the earliest bidder at any
// given amount keeps the lead.
type BidTooLowError struct {
	Floor decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be higher than the current bid (%s)", e.Floor)
}

// Auction is a single channel's live auction. One prize is reserved for it;
// the prize is only marked used at resolution, so a no-bid auction returns
// it to the pool. Safe for concurrent use.
type Auction struct {
	mu sync.Mutex

	ID        string
	ChatID    string
	PrizeID   int64
	ImageRef  string
	HiddenRef string
	ClosesAt  time.Time

	status  string
	highest decimal.Decimal
	timer   clock.Timer
}

// PlaceBid validates a bid and, if it passes, runs commit (the durable
// append) before updating the in-memory floor. The whole sequence holds the
// auction lock so two equal concurrent bids can never both pass.
func (a *Auction) PlaceBid(amount, balance decimal.Decimal, commit func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusOpen {
		return ErrNotActive
	}
	if amount.GreaterThan(balance) {
		return ErrInsufficientFunds
	}
	if !amount.GreaterThan(a.highest) {
		return &BidTooLowError{Floor: a.highest}
	}

	if err := commit(); err != nil {
		return err
	}

	a.highest = amount
	return nil
}

// markResolved transitions open → resolved. It reports whether this call won
// the transition; the loser of a resolution race gets false and must not
// settle. Runs before any settlement I/O, which is what makes settlement
// at-most-once.
func (a *Auction) markResolved() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusOpen {
		return false
	}
	a.status = StatusResolved
	return true
}

// Active reports whether the auction is still accepting bids.
func (a *Auction) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status == StatusOpen
}

// HighestBid returns the current in-memory floor, zero when no bids.
func (a *Auction) HighestBid() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.highest
}

// Info is a read-only auction snapshot.
type Info struct {
	PrizeID     int64
	CurrentBid  decimal.Decimal
	SecondsLeft int
	Active      bool
}

// snapshot builds an Info relative to now. SecondsLeft is clamped to zero.
func (a *Auction) snapshot(now time.Time) Info {
	a.mu.Lock()
	defer a.mu.Unlock()

	left := int(a.ClosesAt.Sub(now).Seconds())
	if left < 0 {
		left = 0
	}
	return Info{
		PrizeID:     a.PrizeID,
		CurrentBid:  a.highest,
		SecondsLeft: left,
		Active:      a.status == StatusOpen,
	}
}
