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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/cache"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/classifier"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/database"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/events"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/handlers"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/routes"
	"github.com/zatekoja/triage-dispatch/backend/internal/application/services"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/classifierapi"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/mongo"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/triage-dispatch/backend/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-api",
		Short: "Clinical intake and dispatch API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// store bundles the record repositories with the clients that back them
type store struct {
	patients repositories.PatientRepository
	visits   repositories.VisitRepository
	// ping is nil for the in-memory store
	ping    func(context.Context) error
	closers []func(context.Context) error
}

func (s *store) Close(ctx context.Context) {
	for _, closeFn := range s.closers {
		if err := closeFn(ctx); err != nil {
			observability.GetLogger().Error().Err(err).Msg("Error closing store client")
		}
	}
}

// openStore connects the backend selected by STORE_DRIVER
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	logger := observability.GetLogger()

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn().Msg("Using in-memory store; records are lost on restart")
		return &store{
			patients: database.NewMemoryPatientAdapter(),
			visits:   database.NewMemoryVisitAdapter(),
		}, nil

	case config.StoreDriverMongo:
		client, err := mongo.NewClient(ctx, &cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureIndexes(ctx, client.Database()); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("failed to ensure MongoDB indexes: %w", err)
		}
		return &store{
			patients: database.NewMongoPatientAdapter(client.Database()),
			visits:   database.NewMongoVisitAdapter(client.Database()),
			ping:     client.Ping,
			closers:  []func(context.Context) error{client.Close},
		}, nil

	case config.StoreDriverPostgres:
		client, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx, client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ensure PostgreSQL schema: %w", err)
		}
		return &store{
			patients: database.NewPostgresPatientAdapter(client),
			visits:   database.NewPostgresVisitAdapter(client),
			ping:     client.Ping,
			closers:  []func(context.Context) error{func(context.Context) error { return client.Close() }},
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	observability.InitLogger(cfg.App.Name, cfg.App.Env)
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	health := handlers.NewHealthHandler()
	if st.ping != nil {
		health.Register("store", handlers.CheckFunc(st.ping))
	}

	// Redis carries both the severity fan-out and the prediction cache.
	// Without it the process runs single-instance.
	var eventBus providers.EventBus
	var cacheProvider providers.CacheProvider
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Redis client; falling back to in-process event bus")
		} else {
			defer redisClient.Close()
			health.Register("redis", handlers.CheckFunc(redisClient.Ping))
			eventBus = events.NewRedisEventBus(redisClient)
			cacheProvider = cache.NewRedisAdapter(redisClient, "triage:prediction:")
		}
	}
	if eventBus == nil {
		eventBus = events.NewLocalEventBus()
		cacheProvider = cache.NewMemoryAdapter()
	}
	defer eventBus.Close()

	var severityClassifier providers.SeverityClassifier
	if cfg.Classifier.URL != "" {
		apiClient := classifierapi.NewClient(cfg.Classifier.URL, cfg.Classifier.Timeout)
		base := classifier.NewHTTPClassifier(apiClient, classifier.DefaultBreakerSettings())
		health.Register("classifier", base)
		severityClassifier = classifier.NewCachedClassifier(base, cacheProvider, cfg.Classifier.CacheTTL, metrics)
		logger.Info().Str("url", cfg.Classifier.URL).Msg("Acuity classifier configured")
	} else {
		logger.Warn().Msg("CLASSIFIER_URL not set; registrations without a category are recorded as Low")
	}

	ledger := services.NewBookingLedger(cfg.Dispatch.CapacityPerDay, cfg.Dispatch.EnforceCapacity)
	if err := ledger.Rebuild(ctx, st.patients); err != nil {
		return fmt.Errorf("failed to rebuild booking ledger: %w", err)
	}

	queue := services.NewDispatchQueue(st.patients, st.visits, ledger, eventBus, metrics, services.DispatchConfig{
		Schedule:   cfg.Dispatch.TimeBuckets,
		SessionTTL: cfg.Dispatch.SessionTTL,
	})
	if _, err := queue.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore dispatch sessions: %w", err)
	}

	registrations := services.NewRegistrationService(st.patients, st.visits, ledger, severityClassifier, metrics)
	analytics := services.NewAnalyticsService(st.patients, st.visits, cfg.Dispatch.TimeBuckets)

	wsHub := handlers.NewWebSocketHub(eventBus, cfg.Server.AllowedOrigins)
	router := routes.NewRouter(
		handlers.NewPatientHandler(registrations, queue),
		handlers.NewDispatchHandler(queue),
		handlers.NewBookingHandler(registrations),
		handlers.NewAnalyticsHandler(analytics),
		handlers.NewSSEHandler(eventBus),
		wsHub,
		health,
		metrics,
		cfg.Server.AllowedOrigins,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("store", cfg.Store.Driver).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return queue.StartExpirySweeper(gctx, cfg.Dispatch.SweepInterval)
	})

	g.Go(func() error {
		return wsHub.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("Server stopped")
	return nil
}
