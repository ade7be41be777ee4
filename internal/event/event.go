package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	AuctionStarted  Type = "auction.started"
	AuctionResolved Type = "auction.resolved"

	GiveawaySent    Type = "giveaway.sent"
	GiveawayClaimed Type = "giveaway.claimed"

	BalanceAdjusted Type = "balance.adjusted"

	UserRegistered Type = "user.registered"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionStartedData is the payload for AuctionStarted events.
type AuctionStartedData struct {
	ChatID    string    `json:"chat_id"`
	PrizeID   int64     `json:"prize_id"`
	ImageRef  string    `json:"image_ref"`
	HiddenRef string    `json:"hidden_ref"`
	ClosesAt  time.Time `json:"closes_at"`
}

// AuctionResolvedData is the payload for AuctionResolved events.
// WinnerID is empty when the auction closed without bids.
type AuctionResolvedData struct {
	ChatID   string `json:"chat_id"`
	PrizeID  int64  `json:"prize_id"`
	WinnerID string `json:"winner_id,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

// GiveawaySentData is the payload for GiveawaySent events.
type GiveawaySentData struct {
	PrizeID    int64 `json:"prize_id"`
	Recipients int   `json:"recipients"`
}

// GiveawayClaimedData is the payload for GiveawayClaimed events.
type GiveawayClaimedData struct {
	PrizeID int64  `json:"prize_id"`
	UserID  string `json:"user_id"`
}

// BalanceAdjustedData is the payload for BalanceAdjusted events.
type BalanceAdjustedData struct {
	UserID string `json:"user_id"`
	Delta  string `json:"delta"`
	Reason string `json:"reason"`
}

// UserRegisteredData is the payload for UserRegistered events.
type UserRegisteredData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
