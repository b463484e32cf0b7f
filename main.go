package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shorturl-analytics/cache"
	"shorturl-analytics/config"
	"shorturl-analytics/handlers"
	"shorturl-analytics/logging"
	middleware "shorturl-analytics/middlewares"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 30 * time.Second

// Manual flushes: bursts of 5, one token every 5 seconds.
const (
	flushBurst  = 5
	flushRefill = 0.2
)

func newRouter(status *handlers.Status, limiter *cache.RedisStore) *mux.Router {
	sentryHandler := sentryhttp.New(sentryhttp.Options{})

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.Use(sentryHandler.Handle)
	r.Use(middleware.SentryAlertMiddleware)
	r.Use(middleware.ResponseTimeMiddleware)

	r.HandleFunc("/health", handlers.HealthHandler(status)).Methods("GET")
	r.HandleFunc("/stats", handlers.StatsHandler(status)).Methods("GET")
	flush := middleware.TokenBucketMiddleware(limiter, flushBurst, flushRefill)(handlers.FlushHandler(status))
	r.Handle("/flush", flush).Methods("POST")
	return r
}

func main() {
	configPath := flag.String("config", os.Getenv("GUA_CONFIG"), "JSON or YAML configuration file")
	flag.Parse()

	status := &handlers.Status{}
	cfg, err := config.Load(*configPath)
	if err != nil {
		status.Disabled = err
		cfg = config.Defaults()
		cfg.ApplyEnv()
	}

	logs, err := logging.Init(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logs.Close()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			TracesSampleRate: 1.0,
		}); err != nil {
			logging.ErrorLogger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var a *app
	if status.Disabled == nil {
		a, err = buildApp(ctx, cfg)
		var cfgErr *config.ConfigError
		switch {
		case errors.As(err, &cfgErr):
			status.Disabled = err
		case err != nil:
			logging.ErrorLogger.Printf("Failed to start pipeline: %v", err)
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
			os.Exit(1)
		}
	}
	if status.Disabled != nil {
		logging.ErrorLogger.Printf("Pipeline disabled: %v", status.Disabled)
	}

	var limiter *cache.RedisStore
	if a != nil {
		status.Pipeline = a.pipeline
		status.Checks = a.checks
		limiter = a.redis
		if err := a.pipeline.Start(ctx); err != nil {
			logging.ErrorLogger.Fatalf("Failed to start pipeline: %v", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(status, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.AuditLogger.Printf("Server is running on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorLogger.Printf("HTTP server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logging.AuditLogger.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a != nil {
		if err := a.pipeline.Stop(shutdownCtx); err != nil {
			logging.ErrorLogger.Printf("Stopping pipeline: %v", err)
		}
		a.close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Printf("Stopping HTTP server: %v", err)
	}
}
