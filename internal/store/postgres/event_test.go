package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prizehunt/prizebot/internal/event"
	"github.com/prizehunt/prizebot/internal/store/postgres"
)

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	started, _ := json.Marshal(event.AuctionStartedData{ChatID: "chat-1", PrizeID: 1})
	resolved, _ := json.Marshal(event.AuctionResolvedData{ChatID: "chat-1", PrizeID: 1, WinnerID: "user-1", Amount: "50"})

	err := es.Append(ctx,
		event.Event{AggregateID: "agg-1", Type: event.AuctionStarted, Data: started, Version: 1},
		event.Event{AggregateID: "agg-1", Type: event.AuctionResolved, Data: resolved, Version: 2},
	)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := es.Load(ctx, "agg-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(events))
	}
	if events[0].Type != event.AuctionStarted || events[1].Type != event.AuctionResolved {
		t.Errorf("event order = [%s, %s], want [started, resolved]", events[0].Type, events[1].Type)
	}
	if events[0].ID == "" {
		t.Error("expected generated event ID")
	}

	var d event.AuctionResolvedData
	if err := json.Unmarshal(events[1].Data, &d); err != nil {
		t.Fatalf("unmarshaling data: %v", err)
	}
	if d.WinnerID != "user-1" || d.Amount != "50" {
		t.Errorf("resolved data = %+v", d)
	}
}

func TestEventStore_LoadByType(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	started, _ := json.Marshal(event.AuctionStartedData{ChatID: "chat-1", PrizeID: 1})
	err := es.Append(ctx,
		event.Event{AggregateID: "agg-1", Type: event.AuctionStarted, Data: started, Version: 1},
		event.Event{AggregateID: "agg-2", Type: event.AuctionStarted, Data: started, Version: 1},
		event.Event{AggregateID: "agg-1", Type: event.AuctionResolved, Data: json.RawMessage(`{}`), Version: 2},
	)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := es.LoadByType(ctx, event.AuctionStarted)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("LoadByType returned %d events, want 2", len(events))
	}
}

func TestEventStore_Load_Empty(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)

	events, err := es.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Load returned %d events, want 0", len(events))
	}
}
