package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/prizehunt/prizebot/internal/auction"
	"github.com/prizehunt/prizebot/internal/balance"
	"github.com/prizehunt/prizebot/internal/bot"
	"github.com/prizehunt/prizebot/internal/clock"
	"github.com/prizehunt/prizebot/internal/config"
	"github.com/prizehunt/prizebot/internal/giveaway"
	"github.com/prizehunt/prizebot/internal/health"
	"github.com/prizehunt/prizebot/internal/leader"
	"github.com/prizehunt/prizebot/internal/rating"
	"github.com/prizehunt/prizebot/internal/store"
	"github.com/prizehunt/prizebot/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/prizehunt/prizebot/internal/store/entstore"
	_ "github.com/prizehunt/prizebot/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (sqlx or ent).
	repos, err := store.Open(ctx, cfg.Database, store.Options{
		StartingBalance: decimal.NewFromFloat(cfg.Auction.StartingBalance),
	})
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Redis backs the leaderboard cache. The bot degrades to DB-only reads
	// when it is unreachable.
	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer cache.Close()

	// The Discord session is shared between the command handlers and the
	// notifier the engine announces through.
	session, err := bot.NewSession(cfg.Discord)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}
	notifier := bot.NewNotifier(session, logger)

	// Initialize managers.
	ledger := balance.NewLedger(repos.Users, repos.Balances, repos.Events, logger, tp.TracerProvider)
	engine := auction.NewEngine(auction.Deps{
		Prizes:   repos.Prizes,
		Bids:     repos.Bids,
		Winners:  repos.Winners,
		Balances: repos.Balances,
		Events:   repos.Events,
		Notifier: notifier,
		Logger:   logger,
		Tracer:   tp.TracerProvider,
		Clock:    clk,
	}, cfg.Auction.Duration)
	giveaways := giveaway.NewManager(repos.Prizes, repos.Users, repos.Winners, repos.Events, notifier,
		logger, tp.TracerProvider, clk, cfg.Giveaway.Interval, cfg.Giveaway.ClaimLimit)
	ratings := rating.NewService(repos.Winners, cache, cfg.Redis.CacheTTL, logger, tp.TracerProvider)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
		health.Checker{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return cache.Ping(ctx).Err()
			},
		},
	)

	// Start HTTP server for health checks (runs on all replicas).
	mux := http.NewServeMux()
	healthHandler.Register(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// startBot is the core work that only the leader should run.
	startBot := func(ctx context.Context) {
		// Recover in-flight auctions from the event store so that they
		// survive restarts and leader failover.
		if n, recoverErr := engine.Recover(ctx); recoverErr != nil {
			logger.ErrorContext(ctx, "auction recovery failed", slog.Any("error", recoverErr))
		} else if n > 0 {
			logger.InfoContext(ctx, "recovered open auctions", slog.Int("count", n))
		}

		discordBot := bot.New(session, cfg.Discord, ledger, engine, giveaways, ratings, logger, tp.TracerProvider)

		if botErr := discordBot.Start(ctx); botErr != nil {
			logger.ErrorContext(ctx, "starting bot failed", slog.Any("error", botErr))
			return
		}

		if cfg.Giveaway.Enabled {
			giveaways.Run(ctx)
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "prizebot is running", slog.String("version", version))

		// Block until leadership is lost or process is shutting down.
		<-ctx.Done()

		healthHandler.SetReady(false)
		giveaways.Wait()
		if stopErr := discordBot.Stop(); stopErr != nil {
			logger.Error("bot shutdown error", slog.Any("error", stopErr))
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, startBot, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		// No leader election, run directly.
		startBot(ctx)
		logger.Info("shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
