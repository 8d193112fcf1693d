package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	rghttp "github.com/routegrid/routegrid/internal/adapter/http"
	rgnats "github.com/routegrid/routegrid/internal/adapter/nats"
	"github.com/routegrid/routegrid/internal/adapter/otel"
	"github.com/routegrid/routegrid/internal/adapter/postgres"
	"github.com/routegrid/routegrid/internal/adapter/ristretto"
	"github.com/routegrid/routegrid/internal/adapter/ws"
	"github.com/routegrid/routegrid/internal/config"
	"github.com/routegrid/routegrid/internal/eval"
	"github.com/routegrid/routegrid/internal/logger"
	"github.com/routegrid/routegrid/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	shutdownOtel, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownOtel(context.Background()) }()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := rgnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	cache, err := ristretto.New(cfg.Cache.MaxPredicates)
	if err != nil {
		return fmt.Errorf("predicate cache: %w", err)
	}
	defer cache.Close()

	// --- Services ---

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	evaluator := eval.New(cache)
	events := service.NewEvents(queue, hub)
	timers := service.NewRouteTimers()
	defer timers.Stop()

	dispatcher := service.NewDispatcher(store, events, timers, metrics)
	routerSvc := service.NewRouterService(store)
	queueSvc := service.NewQueueService(store, evaluator)
	agentSvc := service.NewAgentService(store, evaluator, dispatcher, events)
	planSvc := service.NewPlanService(store, evaluator)
	taskSvc := service.NewTaskService(store, planSvc, dispatcher, events, timers, metrics)

	notifier := service.NewCallbackNotifier(queue)
	if err := notifier.Start(ctx); err != nil {
		return fmt.Errorf("callback notifier: %w", err)
	}
	defer notifier.Stop()

	// --- HTTP ---

	handlers := &rghttp.Handlers{
		Routers: routerSvc,
		Queues:  queueSvc,
		Agents:  agentSvc,
		Plans:   planSvc,
		Tasks:   taskSvc,
		Queue:   queue,
	}

	r := chi.NewRouter()

	r.Use(rghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rghttp.RequestID)
	r.Use(rghttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	rghttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return queue.Drain()
	})
	return g.Wait()
}
