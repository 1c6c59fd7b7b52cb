// Package main is the entry point of the KT hub server.
//
// The server exposes the REST API for knowledge-transfer sessions and
// learning paths. Layers follow the usual split:
// - Domain: sessions, digests, learning paths; no external dependencies
// - Application: commands, queries, the onboarding saga, event handlers
// - Infrastructure: Postgres/memory stores, Redis cache, NATS, LLM, GitHub
// - Interface: HTTP handlers
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/learnpro/kt-hub/config"

	// Domain ports
	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"

	// Application layer
	"github.com/learnpro/kt-hub/internal/application/command"
	"github.com/learnpro/kt-hub/internal/application/eventhandler"
	"github.com/learnpro/kt-hub/internal/application/query"
	"github.com/learnpro/kt-hub/internal/application/saga"

	// Infrastructure layer
	"github.com/learnpro/kt-hub/internal/infrastructure/auth"
	"github.com/learnpro/kt-hub/internal/infrastructure/external/calendar"
	"github.com/learnpro/kt-hub/internal/infrastructure/external/github"
	"github.com/learnpro/kt-hub/internal/infrastructure/external/livekit"
	"github.com/learnpro/kt-hub/internal/infrastructure/external/llm"
	"github.com/learnpro/kt-hub/internal/infrastructure/messaging"
	"github.com/learnpro/kt-hub/internal/infrastructure/metrics"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/memory"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/postgres"
	"github.com/learnpro/kt-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/learnpro/kt-hub/internal/interface/http"
	"github.com/learnpro/kt-hub/internal/interface/http/handlers"

	// Packages
	"github.com/learnpro/kt-hub/pkg/circuitbreaker"
	"github.com/learnpro/kt-hub/pkg/logger"
	"github.com/learnpro/kt-hub/pkg/timeutil"
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
	// 2. LOGGING & METRICS
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	slogLog := log.Slog()
	log.Info("starting KT hub",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("store", string(cfg.App.Store)),
		logger.String("version", cfg.App.Version),
	)

	m := metrics.New()
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer store.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional latest-path cache)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Enabled {
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

		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, path cache disabled", logger.Err(err))
		} else {
			defer cache.Close()
			store.learning = redis.NewPathCache(store.learning, cache, cfg.Redis.PathTTL, slogLog)
			health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
			log.Info("Redis connection established", logger.String("addr", redisCfg.Addr()))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = slogLog
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	if err := bus.SubscribeAll(m.HandleEvent); err != nil {
		return fmt.Errorf("subscribe metrics: %w", err)
	}

	if cfg.NATS.Enabled {
		forwarder, err := messaging.NewNATSForwarder(messaging.NATSConfig{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Timeout:       cfg.NATS.ConnectTimeout,
			Logger:        slogLog,
		})
		if err != nil {
			log.Warn("failed to connect to NATS, event forwarding disabled", logger.Err(err))
		} else {
			defer forwarder.Close()
			if err := bus.SubscribeAll(forwarder.Handle); err != nil {
				return fmt.Errorf("subscribe NATS forwarder: %w", err)
			}
			log.Info("forwarding events to NATS", logger.String("stream", cfg.NATS.Stream))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	llmConfig := llm.DefaultClientConfig(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	llmConfig.Model = cfg.LLM.Model
	llmConfig.Timeout = cfg.LLM.Timeout
	llmConfig.Breaker = circuitbreaker.LLMBreaker(m.BreakerStateChanged)
	llmConfig.Observer = m
	llmConfig.Logger = slogLog
	llmClient := llm.NewClient(llmConfig)

	githubConfig := github.DefaultClientConfig()
	githubConfig.BaseURL = cfg.GitHub.BaseURL
	githubConfig.Token = cfg.GitHub.Token
	githubConfig.CommitDepth = cfg.GitHub.CommitDepth
	githubConfig.Timeout = cfg.GitHub.Timeout
	githubConfig.OnBreakerStateChange = m.BreakerStateChanged
	githubConfig.Observer = m
	githubConfig.Logger = slogLog
	githubClient := github.NewClient(githubConfig)

	tokens, err := newTokenManager(cfg, log)
	if err != nil {
		return err
	}
	hasher := auth.BcryptHasher{}

	// Calendar reminders are fire-and-forget.
	if cfg.Calendar.WebhookURL != "" {
		cal := calendar.NewClient(cfg.Calendar.WebhookURL, cfg.Calendar.Timeout, slogLog)
		reminders := eventhandler.NewOnGiveSessionCreatedHandler(
			eventhandler.ReminderSchedulerFunc(func(ctx context.Context, r eventhandler.Reminder) error {
				return cal.ScheduleReminder(ctx, calendar.Reminder(r))
			}),
			eventhandler.ReminderConfig{
				Lead:      cfg.Calendar.Lead,
				Length:    cfg.Calendar.Duration,
				StartHour: cfg.Calendar.StartHour,
				Location:  cfg.App.Location,
				Timeout:   cfg.Calendar.Timeout,
			},
			nil,
			slogLog,
		)
		if err := bus.Subscribe(shared.EventGiveSessionCreated, reminders.Handle); err != nil {
			return fmt.Errorf("subscribe reminders: %w", err)
		}
	} else {
		log.Info("CALENDAR_WEBHOOK_URL not set, reminders disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER (Commands, Queries, Sagas)
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock

	completeConfig := command.DefaultCompleteGiveSessionConfig()
	completeConfig.DigestAttempts = cfg.LLM.MaxAttempts

	pathConfig := command.DefaultGeneratePathConfig()
	pathConfig.Attempts = cfg.LLM.PathAttempts
	generatePath := command.NewGeneratePathHandler(store.learning, llm.NewPathGenerator(llmClient), bus, nil, clock, log, pathConfig)

	deps := httpserver.Dependencies{
		Login:                command.NewLoginHandler(store.employees, hasher, tokens),
		RegisterEmployee:     command.NewRegisterEmployeeHandler(store.employees, hasher, nil, clock),
		CreateProject:        command.NewCreateProjectHandler(store.projects, store.employees, llm.NewQuizGenerator(llmClient), nil, clock, log),
		CreateGiveSession:    command.NewCreateGiveSessionHandler(store.knowledge, store.employees, store.projects, githubClient, bus, nil, clock),
		CompleteGiveSession:  command.NewCompleteGiveSessionHandler(store.knowledge, llm.NewDigestGenerator(llmClient), githubClient, bus, nil, clock, log, completeConfig),
		CreateReceiveSession: command.NewCreateReceiveSessionHandler(store.knowledge, store.employees, store.projects, githubClient, bus, nil, clock),
		MarkConsumed:         command.NewMarkConsumedHandler(store.knowledge, bus, clock),
		DeleteSession:        command.NewDeleteSessionHandler(store.knowledge, store.employees, bus, clock),
		SubmitAssessment:     command.NewSubmitAssessmentHandler(store.learning, store.employees, bus, clock),
		UpdateLearningPath:   command.NewUpdateLearningPathHandler(store.learning, store.employees, bus, clock),
		RegeneratePath:       command.NewRegeneratePathHandler(store.learning, store.employees, store.projects, generatePath),
		SubmitSkillQuiz:      command.NewSubmitSkillQuizHandler(store.employees, store.projects, generatePath),

		AssignProject: saga.NewAssignProjectSaga(store.employees, store.projects, generatePath, bus, clock, slogLog),

		ListSessions:      query.NewListSessionsHandler(store.knowledge, store.employees),
		GetSession:        query.NewGetSessionHandler(store.knowledge, store.employees),
		GetLearningPath:   query.NewGetLearningPathHandler(store.learning),
		ListLearningPaths: query.NewListLearningPathsHandler(store.learning),
		NextTopic:         query.NewNextIncompleteTopicHandler(store.learning),
		Directory:         query.NewDirectoryHandler(store.employees, store.projects),
		SkillQuiz:         query.NewGetSkillAssessmentQuizHandler(store.employees, store.projects),

		Tokens:        tokens,
		Logger:        log,
		Metrics:       m,
		HealthChecker: health,
	}

	if cfg.LiveKit.APIKey != "" {
		issuer, err := livekit.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.ServerURL, cfg.LiveKit.TokenTTL)
		if err != nil {
			return fmt.Errorf("voice token issuer: %w", err)
		}
		deps.IssueVoiceToken = command.NewIssueVoiceTokenHandler(store.learning, store.employees, issuer)
	} else {
		log.Info("LIVEKIT_API_KEY not set, voice tokens disabled")
	}

	if cfg.Auth.AgentWebhookSecret != "" {
		deps.AgentWebhook = handlers.NewAgentWebhook(cfg.Auth.AgentWebhookSecret)
	} else {
		log.Info("AGENT_WEBHOOK_SECRET not set, agent webhook disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.RequestTimeout = cfg.HTTP.RequestTimeout
	httpConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled
	httpConfig.Version = cfg.App.Version
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	}

	server := httpserver.NewServer(httpConfig, deps)
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("KT hub is running", logger.String("http_address", server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
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

	// In-flight event handlers finish before the stores close.
	bus.Wait()
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

type storage struct {
	knowledge knowledge.Store
	learning  learning.Store
	employees employee.Repository
	projects  project.Repository
	close     func()
}

// openStorage connects the configured backend. Postgres migrations run
// here only when DB_AUTO_MIGRATE is set; otherwise use ktctl migrate.
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger, health *handlers.CompositeHealthChecker) (*storage, error) {
	if cfg.App.Store == config.StoreMemory {
		log.Warn("using in-memory store, data is lost on restart")
		db := memory.NewDB()
		return &storage{
			knowledge: db.Knowledge(),
			learning:  db.Learning(),
			employees: db.Employees(),
			projects:  db.Projects(),
			close:     func() {},
		}, nil
	}

	log.Info("connecting to database...")
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:          int32(cfg.Database.MaxConns),
		MinConns:          int32(cfg.Database.MinConns),
		MaxConnLifetime:   cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime:   cfg.Database.ConnMaxIdleTime,
		HealthCheckPeriod: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed", logger.Int("applied", applied))
	}

	health.AddCheck("postgres", handlers.NewPingCheck(conn))
	log.Info("database connection established")

	return &storage{
		knowledge: postgres.NewKnowledgeStore(conn),
		learning:  postgres.NewLearningPathStore(conn),
		employees: postgres.NewEmployeeRepository(conn),
		projects:  postgres.NewProjectRepository(conn),
		close: func() {
			log.Info("closing database connection...")
			conn.Close()
		},
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures the process logger. Adapters that take a
// *slog.Logger get the same handler through Slog().
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}

	log := logger.New(opts).With(logger.String("service", cfg.App.Name))
	slog.SetDefault(log.Slog())
	return log
}

// newTokenManager builds the access token manager. Outside production a
// missing secret is replaced by a random one; tokens then do not survive
// a restart.
func newTokenManager(cfg *config.Config, log *logger.Logger) (*auth.Manager, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" && !cfg.IsProduction() {
		log.Warn("AUTH_JWT_SECRET not set, using an ephemeral secret")
		secret = uuid.NewString() + uuid.NewString()
	}
	tokens, err := auth.NewManager(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		if errors.Is(err, auth.ErrEmptySecret) {
			return nil, fmt.Errorf("AUTH_JWT_SECRET is required: %w", err)
		}
		return nil, err
	}
	return tokens, nil
}
