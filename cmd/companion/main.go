// Package main is the entry point for the narrative companion bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"narrative-companion/internal/bot"
	"narrative-companion/internal/config"
	"narrative-companion/internal/engine"
	"narrative-companion/internal/engine/idempotency"
	"narrative-companion/internal/engine/leveling"
	"narrative-companion/internal/engine/survival"
	"narrative-companion/internal/notify"
	"narrative-companion/internal/pkg/db"
	"narrative-companion/internal/pkg/lock"
	"narrative-companion/internal/pkg/metrics"
	redispkg "narrative-companion/internal/pkg/redis"
	"narrative-companion/internal/repository"
	"narrative-companion/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Str("ledger", cfg.Ledger.Backend).Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	m := metrics.New()
	metricsServer := startMetricsServer(cfg.Metrics.Addr, dbPool.HealthCheck)

	ledger, closeLedger, err := newLedger(ctx, cfg, dbPool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize transaction ledger")
	}
	defer closeLedger()

	// Notifications and combat hand-off
	var publisher notify.Publisher = notify.NewLogPublisher()
	var combat engine.CombatInitiator
	if cfg.NATS.URL != "" {
		natsPublisher, err := notify.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		publisher = natsPublisher
		combat = natsPublisher
	}

	sc := cfg.Engine.Survival
	eng := engine.New(engine.Components{
		Ledger: ledger,
		Survival: survival.New(survival.Config{
			Rates: survival.Rates{
				Hunger:  sc.HungerPerMinute,
				Thirst:  sc.ThirstPerMinute,
				Fatigue: sc.FatiguePerMinute,
			},
			Thresholds: survival.Thresholds{
				Warn:     sc.WarnThreshold,
				Severe:   sc.SevereThreshold,
				Critical: sc.CriticalThreshold,
			},
			CollapseSum:        sc.CollapseSum,
			RestCooldown:       sc.RestCooldown,
			ForcedRestCooldown: sc.ForcedRestCooldown,
		}),
		Rest:     survival.NewRestGuard(nil),
		Leveling: leveling.NewTracker(cfg.Engine.Leveling.BaseXP, cfg.Engine.Leveling.StatIncrease),
		Combat:   combat,
		Metrics:  m,
	})

	// Initialize repositories
	store := repository.NewStore(dbPool.Pool)
	characterRepo := repository.NewCharacterRepository(dbPool.Pool)
	levelUpRepo := repository.NewLevelUpRepository(dbPool.Pool)
	journalRepo := repository.NewJournalRepository(dbPool.Pool)

	writer := service.NewWriter(store, service.WriterConfig{
		Debounce:       cfg.Writer.Debounce,
		MaxAttempts:    cfg.Writer.MaxAttempts,
		InitialBackoff: cfg.Writer.InitialBackoff,
		MaxBackoff:     cfg.Writer.MaxBackoff,
		AttemptTimeout: cfg.Writer.AttemptTimeout,
		Concurrency:    cfg.Writer.Concurrency,
	}, m)

	// Initialize services
	gameService := service.NewGameService(
		eng,
		store,
		levelUpRepo,
		writer,
		publisher,
		lock.NewCharacterLock(),
		cfg.Bot.LockTimeout,
	)
	accountService := service.NewAccountService(characterRepo, cfg.Bot.StartingGold)
	shopService := service.NewShopService(gameService)

	janitor := service.NewJanitor(ledger, cfg.Ledger.TTL, writer, m)
	if err := janitor.Start(cfg.Ledger.PruneSchedule, cfg.Writer.ReplaySchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start janitor")
	}

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:         cfg,
		AccountService: accountService,
		GameService:    gameService,
		ShopService:    shopService,
		Journal:        journalRepo,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	janitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := writer.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Int("offline", writer.Offline()).Msg("Pending changes were not persisted")
	}
	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close notification publisher")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to stop metrics server")
	}
	log.Info().Msg("Bot stopped gracefully")
}

// newLedger builds the configured transaction ledger. The returned func
// releases its resources.
func newLedger(ctx context.Context, cfg *config.Config, pool *db.Pool) (idempotency.Ledger, func(), error) {
	switch cfg.Ledger.Backend {
	case config.LedgerPostgres:
		return repository.NewTransactionLedger(pool.Pool), func() {}, nil
	case config.LedgerRedis:
		client, err := redispkg.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisLedger(client, cfg.Ledger.TTL), func() { _ = client.Close() }, nil
	case config.LedgerMemory, "":
		return idempotency.NewMemoryLedger(cfg.Ledger.TTL, cfg.Ledger.MaxEntries), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}

// startMetricsServer serves /metrics and a /healthz probe backed by health.
func startMetricsServer(addr string, health func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := health(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}
