package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/couchcryptid/graphql-cost-guard/internal/config"
	"github.com/couchcryptid/graphql-cost-guard/internal/cost"
	"github.com/couchcryptid/graphql-cost-guard/internal/database"
	"github.com/couchcryptid/graphql-cost-guard/internal/gateway"
	"github.com/couchcryptid/graphql-cost-guard/internal/graph"
	"github.com/couchcryptid/graphql-cost-guard/internal/guard"
	"github.com/couchcryptid/graphql-cost-guard/internal/kafka"
	"github.com/couchcryptid/graphql-cost-guard/internal/observability"
	"github.com/couchcryptid/graphql-cost-guard/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Upstream schema
	sdl, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		logger.Error("read schema", "error", err, "path", cfg.SchemaPath)
		os.Exit(1) //nolint:gocritic // startup exits before meaningful defers
	}
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: cfg.SchemaPath, Input: string(sdl)})
	if err != nil {
		logger.Error("parse schema", "error", err, "path", cfg.SchemaPath)
		os.Exit(1)
	}

	// Database
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.New(pool, metrics)
	readiness := database.NewPoolReadiness(pool)
	go database.ReportPoolStats(ctx, pool, metrics)

	// Kafka producer
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Error("kafka producer close", "error", err)
		}
	}()

	// Audit recorder fans decisions out to postgres and kafka
	recorder := gateway.NewRecorder(cfg.AuditBuffer, []gateway.Sink{st, producer}, metrics, logger)
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		if err := recorder.Run(ctx); err != nil {
			logger.Error("audit recorder", "error", err)
		}
	}()

	// Admission guard
	estimator := cost.NewEstimator(cfg.DirectiveCosts)
	observer := observability.NewCostObserver(metrics)
	g := guard.New(estimator, schema, cfg.CostThreshold, cfg.CacheSize, cfg.SampleRate, observer, logger)

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		logger.Error("parse upstream url", "error", err)
		os.Exit(1)
	}
	proxy := gateway.New(g, upstream, recorder, metrics, logger, cfg.MaxBodyBytes)
	admin := gateway.NewAdmin(st, logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)
	r.Use(observability.MetricsMiddleware(metrics))
	r.With(graph.ConcurrencyLimit(cfg.Concurrency)).Handle("/graphql", proxy)
	r.Get("/healthz", observability.LivenessHandler())
	r.Get("/readyz", observability.ReadinessHandler(readiness))
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/admin", admin.Register)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("gateway started",
		"port", cfg.Port, "upstream", cfg.UpstreamURL, "threshold", cfg.CostThreshold)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	// Let the recorder finish draining queued records before the sinks close.
	<-recorderDone
	logger.Info("shutdown complete")
}
