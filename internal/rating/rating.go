package rating

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/prizehunt/prizebot/internal/store"
)

const leaderboardKey = "prizebot:rating:top"

// Service serves the prize leaderboard and per-user collections. The
// leaderboard is cached in redis for ttl because it is the most requested
// read and only changes when a prize is won.
type Service struct {
	winners store.WinnerRepository
	cache   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewService returns a rating Service. cache may be nil, in which case
// every read goes to the database.
func NewService(winners store.WinnerRepository, cache *redis.Client, ttl time.Duration, logger *slog.Logger, tp trace.TracerProvider) *Service {
	return &Service{
		winners: winners,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		tracer:  tp.Tracer("github.com/prizehunt/prizebot/internal/rating"),
	}
}

// Top returns the top prize winners, most prizes first.
func (s *Service) Top(ctx context.Context, limit int) ([]store.RatingEntry, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Top")
	defer span.End()

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, leaderboardKey).Bytes()
		if err == nil {
			var entries []store.RatingEntry
			if err := json.Unmarshal(raw, &entries); err == nil {
				if len(entries) > limit {
					entries = entries[:limit]
				}
				return entries, nil
			}
			s.logger.WarnContext(ctx, "discarding corrupt leaderboard cache", slog.Any("error", err))
		} else if err != redis.Nil {
			s.logger.WarnContext(ctx, "leaderboard cache read failed", slog.Any("error", err))
		}
	}

	entries, err := s.winners.TopWinners(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard: %w", err)
	}

	if s.cache != nil {
		raw, err := json.Marshal(entries)
		if err == nil {
			if err := s.cache.Set(ctx, leaderboardKey, raw, s.ttl).Err(); err != nil {
				s.logger.WarnContext(ctx, "leaderboard cache write failed", slog.Any("error", err))
			}
		}
	}
	return entries, nil
}

// Invalidate drops the cached leaderboard. Called after a prize is won so
// the next /rating read reflects it.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, leaderboardKey).Err(); err != nil {
		s.logger.WarnContext(ctx, "leaderboard cache invalidation failed", slog.Any("error", err))
	}
}

// Collection returns every prize a user has won, oldest first.
func (s *Service) Collection(ctx context.Context, userID string) ([]store.Prize, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Collection")
	defer span.End()

	prizes, err := s.winners.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading collection: %w", err)
	}
	return prizes, nil
}
