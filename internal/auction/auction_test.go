package auction

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func openAuction(closesAt time.Time) *Auction {
	return &Auction{
		ID:       "a-1",
		ChatID:   "chat-1",
		PrizeID:  1,
		ClosesAt: closesAt,
		status:   StatusOpen,
	}
}

func TestAuction_PlaceBid_ChecksInOrder(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	balance := decimal.NewFromInt(100)

	tests := []struct {
		name    string
		status  string
		floor   int64
		amount  int64
		wantErr error
	}{
		{name: "resolved auction", status: StatusResolved, amount: 50, wantErr: ErrNotActive},
		{name: "over balance", status: StatusOpen, amount: 101, wantErr: ErrInsufficientFunds},
		{name: "below floor", status: StatusOpen, floor: 60, amount: 50, wantErr: &BidTooLowError{}},
		{name: "equal to floor", status: StatusOpen, floor: 50, amount: 50, wantErr: &BidTooLowError{}},
		{name: "valid", status: StatusOpen, floor: 40, amount: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openAuction(now.Add(time.Minute))
			a.status = tt.status
			a.highest = decimal.NewFromInt(tt.floor)

			committed := false
			err := a.PlaceBid(decimal.NewFromInt(tt.amount), balance, func() error {
				committed = true
				return nil
			})

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("PlaceBid() error = %v", err)
				}
				if !committed {
					t.Error("commit not called for a valid bid")
				}
				if !a.HighestBid().Equal(decimal.NewFromInt(tt.amount)) {
					t.Errorf("HighestBid() = %s, want %d", a.HighestBid(), tt.amount)
				}
				return
			}

			var tooLow *BidTooLowError
			if errors.As(tt.wantErr, &tooLow) {
				if !errors.As(err, &tooLow) {
					t.Fatalf("PlaceBid() error = %v, want BidTooLowError", err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PlaceBid() error = %v, want %v", err, tt.wantErr)
			}
			if committed {
				t.Error("commit called for a rejected bid")
			}
		})
	}
}

func TestAuction_PlaceBid_CommitFailureKeepsFloor(t *testing.T) {
	a := openAuction(time.Now().Add(time.Minute))
	a.highest = decimal.NewFromInt(10)

	err := a.PlaceBid(decimal.NewFromInt(20), decimal.NewFromInt(100), func() error {
		return fmt.Errorf("append failed")
	})
	if err == nil {
		t.Fatal("expected commit error to propagate")
	}
	if !a.HighestBid().Equal(decimal.NewFromInt(10)) {
		t.Errorf("HighestBid() = %s, want unchanged 10", a.HighestBid())
	}
}

func TestAuction_MarkResolved_Once(t *testing.T) {
	a := openAuction(time.Now())

	if !a.markResolved() {
		t.Fatal("first markResolved() = false, want true")
	}
	if a.markResolved() {
		t.Error("second markResolved() = true, want false")
	}
	if a.Active() {
		t.Error("Active() = true after resolution")
	}
}

func TestAuction_Snapshot_ClampsSecondsLeft(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	a := openAuction(now.Add(45 * time.Second))

	if got := a.snapshot(now).SecondsLeft; got != 45 {
		t.Errorf("SecondsLeft = %d, want 45", got)
	}
	if got := a.snapshot(now.Add(2 * time.Minute)).SecondsLeft; got != 0 {
		t.Errorf("SecondsLeft past close = %d, want 0", got)
	}
}

func TestBidTooLowError_Message(t *testing.T) {
	err := &BidTooLowError{Floor: decimal.NewFromInt(75)}
	want := "bid must be higher than the current bid (75)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
