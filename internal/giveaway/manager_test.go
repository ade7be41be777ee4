package giveaway_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/prizehunt/prizebot/internal/clock"
	"github.com/prizehunt/prizebot/internal/event"
	"github.com/prizehunt/prizebot/internal/giveaway"
	"github.com/prizehunt/prizebot/internal/store"
)

type mockPrizeRepo struct {
	prizes []*store.Prize
}

func (m *mockPrizeRepo) Add(_ context.Context, prizes []store.Prize) error { return nil }

func (m *mockPrizeRepo) Get(_ context.Context, id int64) (*store.Prize, error) {
	for _, p := range m.prizes {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockPrizeRepo) PickRandomUnused(_ context.Context) (*store.Prize, error) {
	for _, p := range m.prizes {
		if !p.Used {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockPrizeRepo) MarkUsed(_ context.Context, id int64) error {
	for _, p := range m.prizes {
		if p.ID == id {
			p.Used = true
			return nil
		}
	}
	return store.ErrNotFound
}

type mockUserRepo struct {
	users []store.User
}

func (m *mockUserRepo) Create(_ context.Context, u *store.User) error { return nil }

func (m *mockUserRepo) Get(_ context.Context, id string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (m *mockUserRepo) List(_ context.Context) ([]store.User, error) {
	return m.users, nil
}

type mockWinnerRepo struct {
	mu      sync.Mutex
	records map[string]int64 // user id -> prize id
}

func newMockWinnerRepo() *mockWinnerRepo {
	return &mockWinnerRepo{records: make(map[string]int64)}
}

func (m *mockWinnerRepo) RecordIfAbsent(_ context.Context, userID string, prizeID int64, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%d", userID, prizeID)
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = prizeID
	return true, nil
}

func (m *mockWinnerRepo) CountFor(_ context.Context, prizeID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.records {
		if id == prizeID {
			n++
		}
	}
	return n, nil
}

func (m *mockWinnerRepo) TopWinners(_ context.Context, limit int) ([]store.RatingEntry, error) {
	return nil, nil
}

func (m *mockWinnerRepo) ListByUser(_ context.Context, userID string) ([]store.Prize, error) {
	return nil, nil
}

type mockEventStore struct {
	mu     sync.Mutex
	events []event.Event
}

func (m *mockEventStore) Append(_ context.Context, events ...event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *mockEventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	return nil, nil
}

func (m *mockEventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []event.Event
	for _, e := range m.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result, nil
}

type claimOffer struct {
	UserID   string
	PrizeID  int64
	ImageRef string
}

type mockNotifier struct {
	mu     sync.Mutex
	offers []claimOffer
	err    error
}

func (m *mockNotifier) SendText(_ context.Context, chatID, text string) error { return nil }

func (m *mockNotifier) SendImage(_ context.Context, chatID, imageRef, caption string) error {
	return nil
}

func (m *mockNotifier) SendClaimOffer(_ context.Context, userID string, prizeID int64, imageRef string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers = append(m.offers, claimOffer{UserID: userID, PrizeID: prizeID, ImageRef: imageRef})
	return nil
}

func newManager(prizes *mockPrizeRepo, users *mockUserRepo, winners *mockWinnerRepo, es *mockEventStore, n *mockNotifier, claimLimit int) *giveaway.Manager {
	clk := clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	return giveaway.NewManager(prizes, users, winners, es, n,
		slog.Default(), noop.NewTracerProvider(), clk, time.Hour, claimLimit)
}

func TestManager_SendRound(t *testing.T) {
	prizes := &mockPrizeRepo{prizes: []*store.Prize{
		{ID: 1, ImageRef: "img-1", HiddenRef: "hidden-1"},
	}}
	users := &mockUserRepo{users: []store.User{
		{ID: "user-1"}, {ID: "user-2"}, {ID: "user-3"},
	}}
	es := &mockEventStore{}
	notifier := &mockNotifier{}
	mgr := newManager(prizes, users, newMockWinnerRepo(), es, notifier, 3)

	if err := mgr.SendRound(context.Background()); err != nil {
		t.Fatalf("SendRound() error = %v", err)
	}

	if !prizes.prizes[0].Used {
		t.Error("giveaway prize not marked used")
	}
	if len(notifier.offers) != 3 {
		t.Fatalf("claim offers = %d, want 3", len(notifier.offers))
	}
	// The offer carries the obfuscated reference only.
	if notifier.offers[0].ImageRef != "hidden-1" {
		t.Errorf("offer image = %q, want hidden-1", notifier.offers[0].ImageRef)
	}
	sent, _ := es.LoadByType(context.Background(), event.GiveawaySent)
	if len(sent) != 1 {
		t.Errorf("GiveawaySent events = %d, want 1", len(sent))
	}
}

func TestManager_SendRound_EmptyPool(t *testing.T) {
	mgr := newManager(&mockPrizeRepo{}, &mockUserRepo{}, newMockWinnerRepo(), &mockEventStore{}, &mockNotifier{}, 3)

	err := mgr.SendRound(context.Background())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SendRound() error = %v, want ErrNotFound", err)
	}
}

func TestManager_SendRound_DeliveryFailureContinues(t *testing.T) {
	prizes := &mockPrizeRepo{prizes: []*store.Prize{{ID: 1, HiddenRef: "hidden-1"}}}
	users := &mockUserRepo{users: []store.User{{ID: "user-1"}, {ID: "user-2"}}}
	notifier := &mockNotifier{err: fmt.Errorf("gateway down")}
	mgr := newManager(prizes, users, newMockWinnerRepo(), &mockEventStore{}, notifier, 3)

	if err := mgr.SendRound(context.Background()); err != nil {
		t.Fatalf("SendRound() error = %v, delivery failures must not fail the round", err)
	}
}

func TestManager_Claim_FirstThree(t *testing.T) {
	prizes := &mockPrizeRepo{prizes: []*store.Prize{{ID: 1, ImageRef: "img-1", Used: true}}}
	es := &mockEventStore{}
	mgr := newManager(prizes, &mockUserRepo{}, newMockWinnerRepo(), es, &mockNotifier{}, 3)

	for _, userID := range []string{"user-1", "user-2", "user-3"} {
		p, err := mgr.Claim(context.Background(), userID, 1)
		if err != nil {
			t.Fatalf("Claim(%s) error = %v", userID, err)
		}
		if p.ImageRef != "img-1" {
			t.Errorf("Claim(%s) prize image = %q, want revealed img-1", userID, p.ImageRef)
		}
	}

	if _, err := mgr.Claim(context.Background(), "user-4", 1); !errors.Is(err, giveaway.ErrTooLate) {
		t.Errorf("fourth Claim() error = %v, want ErrTooLate", err)
	}

	claimed, _ := es.LoadByType(context.Background(), event.GiveawayClaimed)
	if len(claimed) != 3 {
		t.Errorf("GiveawayClaimed events = %d, want 3", len(claimed))
	}
}

func TestManager_Claim_Duplicate(t *testing.T) {
	prizes := &mockPrizeRepo{prizes: []*store.Prize{{ID: 1, Used: true}}}
	mgr := newManager(prizes, &mockUserRepo{}, newMockWinnerRepo(), &mockEventStore{}, &mockNotifier{}, 3)

	if _, err := mgr.Claim(context.Background(), "user-1", 1); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if _, err := mgr.Claim(context.Background(), "user-1", 1); !errors.Is(err, giveaway.ErrAlreadyClaimed) {
		t.Errorf("repeat Claim() error = %v, want ErrAlreadyClaimed", err)
	}
}
