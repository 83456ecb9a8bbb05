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

	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/events"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/handlers"
	"github.com/zatekoja/triage-dispatch/backend/internal/api/middleware"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/triage-dispatch/backend/pkg/config"
)

// The stream relay fans severity updates published by API instances out to
// dashboards. It needs Redis; it holds no patient data.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.App.Name+"-stream", cfg.App.Env)
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Redis client")
	}
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	sseHandler := handlers.NewSSEHandler(eventBus)
	wsHub := handlers.NewWebSocketHub(eventBus, cfg.Server.AllowedOrigins)

	health := handlers.NewHealthHandler()
	health.Register("redis", handlers.CheckFunc(redisClient.Ping))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Health)
	mux.HandleFunc("GET /api/stream/severity", sseHandler.StreamSeverityUpdates)
	mux.HandleFunc("GET /ws/severity", wsHub.ServeWS)
	mux.HandleFunc("GET /api/stream/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"sseClients": %d, "wsClients": %d}`, sseHandler.GetClientCount(), wsHub.ClientCount())
	})

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(cfg.Server.AllowedOrigins)(handler)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// streams are long-lived
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("Stream relay starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return wsHub.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Stream relay stopped with error")
		return
	}
	logger.Info().Msg("Stream relay stopped")
}
