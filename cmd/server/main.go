// Package main is the entry point of the LMS progress and assessment service.
//
// Layout follows Clean Architecture and DDD:
//   - Domain: progress ledger, enrollment aggregates, quiz scoring, analytics
//   - Application: commands, queries and the XP award event handler
//   - Infrastructure: postgres or in-memory repositories, Redis XP ledger, event bus
//   - Interface: REST endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/learnhub/lms-core/config"

	// Application layer
	"github.com/learnhub/lms-core/internal/application/command"
	"github.com/learnhub/lms-core/internal/application/eventhandler"
	"github.com/learnhub/lms-core/internal/application/query"

	// Domain ports
	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/quiz"

	// Infrastructure layer
	"github.com/learnhub/lms-core/internal/infrastructure/messaging"
	"github.com/learnhub/lms-core/internal/infrastructure/persistence/memory"
	"github.com/learnhub/lms-core/internal/infrastructure/persistence/postgres"
	"github.com/learnhub/lms-core/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/learnhub/lms-core/internal/interface/http"
	"github.com/learnhub/lms-core/internal/interface/http/handlers"

	// Packages
	"github.com/learnhub/lms-core/pkg/logger"
	"github.com/learnhub/lms-core/pkg/retry"
	"github.com/learnhub/lms-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting lms-core",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.Database.Driver),
		logger.String("timezone", cfg.App.Timezone),
	)

	clock := timeutil.SystemClock
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE (postgres or memory)
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer store.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. XP LEDGER (Redis, or a logging fallback)
	// ─────────────────────────────────────────────────────────────────────────
	var ledger catalog.XPLedger = &logLedger{log: log.With(logger.Component("xp_ledger"))}
	var board httpserver.XPBoard

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...", logger.String("address", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))

		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
		redisCfg.KeyPrefix = cfg.Redis.KeyPrefix

		cache, err := redis.NewCache(ctx, redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, XP will only be logged", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()

			xp := redis.NewXPLedger(cache, clock)
			ledger = xp
			board = xp
			health.AddCheck("redis", handlers.NewPingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS + HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.AsyncMode = cfg.Features.Enabled(config.FeatureAsyncDispatch)
	busCfg.WorkerPoolSize = cfg.Engine.EventWorkers
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	xpAward := eventhandler.NewXPAwardHandler(ledger, eventhandler.XPAwardConfig{
		LessonXP:   cfg.Engine.LessonXP,
		QuizPassXP: cfg.Engine.QuizPassXP,
		TransitionOnly: func(learnerID string) bool {
			return cfg.Features.EnabledFor(config.FeatureXPOnTransitionOnly, learnerID)
		},
	}, log)
	if err := xpAward.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe xp handler: %w", err)
	}
	health.AddDetailedCheck("xp_ledger", xpAward.LedgerHealth)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	aggregator := command.NewAggregator(store.lessons, store.enrollments, bus, clock, log)

	httpDeps := httpserver.Dependencies{
		RecordInteractionHandler:  command.NewRecordInteractionHandler(store.lessons, store.progress, clock, log),
		MarkCompleteHandler:       command.NewMarkCompleteHandler(store.lessons, store.progress, aggregator, bus, clock, log),
		SubmitQuizHandler:         command.NewSubmitQuizHandler(store.quizzes, store.submissions, bus, clock, log),
		GetCourseProgressHandler:  query.NewGetCourseProgressHandler(store.enrollments, store.progress),
		GetQuizResultsHandler:     query.NewGetQuizResultsHandler(store.submissions),
		GetStudentOverviewHandler: query.NewGetStudentOverviewHandler(store.enrollments, store.progress, clock, cfg.App.Location, cfg.Engine.ActivityWindow),
		XPBoard:                   board,
		Logger:                    log,
		HealthChecker:             health,
		Version:                   cfg.App.Version,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.RequireAPIKey = cfg.Features.Enabled(config.FeatureAPIKeyAuth)
	httpCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes

	server, err := httpserver.NewServer(httpCfg, httpDeps)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := server.StartAsync()

	log.Info("lms-core is running", logger.String("http_address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("http server error", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	// Let in-flight XP awards finish before the ledger connection closes.
	bus.Wait()

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// storage is the set of repositories and catalogs the handlers run on.
type storage struct {
	lessons     catalog.LessonCatalog
	quizzes     catalog.QuizCatalog
	progress    progress.Repository
	enrollments enrollment.Repository
	submissions quiz.SubmissionRepository
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger, health *handlers.CompositeHealthChecker) (*storage, error) {
	if cfg.Database.Driver == config.StorageMemory {
		log.Warn("using in-memory storage, data is lost on restart")

		store := memory.NewStore()
		if cfg.Database.SeedFile != "" {
			if err := store.LoadSeedFile(ctx, cfg.Database.SeedFile, time.Now()); err != nil {
				return nil, fmt.Errorf("failed to load seed: %w", err)
			}
			log.Info("memory store seeded", logger.String("file", cfg.Database.SeedFile))
		}

		return &storage{
			lessons:     store,
			quizzes:     store,
			progress:    store.Progress(),
			enrollments: store.Enrollments(),
			submissions: store.Submissions(),
			close:       func() {},
		}, nil
	}

	log.Info("connecting to database...")
	pgCfg := postgres.DefaultConfig()
	pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(cfg.Database.MinIdleConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL, pgCfg)
	}, retry.WithMaxAttempts(3), retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("database not reachable, retrying",
			logger.Int("attempt", attempt),
			logger.Err(err),
			logger.Duration("delay", delay),
		)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		log.Info("running database migrations...")
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	health.AddDetailedCheck("database", func(ctx context.Context) (map[string]any, error) {
		h, err := conn.Health(ctx)
		if errors.Is(err, postgres.ErrConnectionClosed) {
			return nil, err
		}
		return h.Details(), err
	})

	cat := postgres.NewCatalogRepository(conn)
	return &storage{
		lessons:     cat,
		quizzes:     cat,
		progress:    postgres.NewProgressRepository(conn),
		enrollments: postgres.NewEnrollmentRepository(conn),
		submissions: postgres.NewSubmissionRepository(conn),
		close: func() {
			log.Info("closing database connection...")
			conn.Close()
		},
	}, nil
}

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat

	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	if cfg.IsDevelopment() && cfg.Observability.LogFormat == "" {
		opts.Format = "console"
	}

	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}

// logLedger stands in for the XP ledger when Redis is unavailable.
type logLedger struct {
	log *logger.Logger
}

var errEmptyLearner = errors.New("xp ledger: learner id is required")

func (l *logLedger) IncrementXP(_ context.Context, learnerID string, amount int) error {
	if learnerID == "" {
		return errEmptyLearner
	}
	l.log.Info("xp credited (not persisted)",
		logger.LearnerID(learnerID),
		logger.XPAmount(amount),
	)
	return nil
}
