package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// User represents a registered chat user.
type User struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
}

// Prize represents one entry in the prize pool. ImageRef and HiddenRef are
// opaque identifiers; obfuscation happens out of band.
type Prize struct {
	ID        int64  `db:"id"`
	ImageRef  string `db:"image_ref"`
	HiddenRef string `db:"hidden_ref"`
	Used      bool   `db:"used"`
}

// Bid is one append-only bid record.
type Bid struct {
	ID        int64           `db:"id"`
	UserID    string          `db:"user_id"`
	PrizeID   int64           `db:"prize_id"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// TopBid is the highest bid on a prize joined with the bidder's username.
type TopBid struct {
	UserID   string          `db:"user_id"`
	Username string          `db:"username"`
	Amount   decimal.Decimal `db:"amount"`
}

// WinnerRecord marks a prize as won by a user. At most one record exists
// per (user, prize) pair.
type WinnerRecord struct {
	UserID  string    `db:"user_id"`
	PrizeID int64     `db:"prize_id"`
	WinTime time.Time `db:"win_time"`
}

// RatingEntry is one row of the top-winners leaderboard.
type RatingEntry struct {
	Username string `db:"username" json:"username"`
	Prizes   int    `db:"prizes" json:"prizes"`
}

// UserRepository defines user persistence operations.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]User, error)
}

// PrizeRepository defines prize pool operations.
type PrizeRepository interface {
	Add(ctx context.Context, prizes []Prize) error
	Get(ctx context.Context, id int64) (*Prize, error)
	// PickRandomUnused returns a uniformly random prize with used = false,
	// or ErrNotFound when the pool is exhausted.
	PickRandomUnused(ctx context.Context) (*Prize, error)
	MarkUsed(ctx context.Context, id int64) error
}

// BidRepository defines the append-only bid log.
type BidRepository interface {
	Append(ctx context.Context, b *Bid) error
	// HighestFor returns the highest bid amount for a prize, zero if none.
	HighestFor(ctx context.Context, prizeID int64) (decimal.Decimal, error)
	// HighestBidderFor returns the highest bid joined with the bidder.
	// Equal amounts never coexist, so the ordering is unambiguous; returns
	// ErrNotFound when the prize has no bids.
	HighestBidderFor(ctx context.Context, prizeID int64) (*TopBid, error)
}

// WinnerRepository defines the shared claimed-prize registry used by both
// the auction and giveaway paths.
type WinnerRepository interface {
	// RecordIfAbsent inserts a winner record unless one already exists for
	// the (user, prize) pair. Reports whether a record was created.
	RecordIfAbsent(ctx context.Context, userID string, prizeID int64, winTime time.Time) (bool, error)
	CountFor(ctx context.Context, prizeID int64) (int, error)
	TopWinners(ctx context.Context, limit int) ([]RatingEntry, error)
	ListByUser(ctx context.Context, userID string) ([]Prize, error)
}

// BalanceRepository defines the per-user spendable balance ledger.
type BalanceRepository interface {
	// Get returns the user's balance, creating it with the configured
	// starting amount on first access.
	Get(ctx context.Context, userID string) (decimal.Decimal, error)
	// Adjust atomically applies delta to the user's balance.
	Adjust(ctx context.Context, userID string, delta decimal.Decimal) error
}
