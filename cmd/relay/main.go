package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"glamtrack/internal/app"
	"glamtrack/internal/config"
	"glamtrack/internal/handler"
	internalRedis "glamtrack/internal/redis"
	"glamtrack/internal/relay"
	"glamtrack/internal/repository/postgres"
)

func main() {
	// Load .env if present, then configuration from the environment.
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(cfg.Server, cfg.Database, cfg.Redis, cfg.AMQP, cfg.Auth); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// Wire dependencies.
	server, consumer, hub := wireRelay(db, redisClient, nrApp, cfg)
	defer consumer.Close()

	go hub.Run(runCtx)

	// Start the order event consumer.
	go func() {
		if err := consumer.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Printf("order event consumer stopped: %v", err)
		}
	}()

	// Start server in goroutine.
	go func() {
		log.Printf("Starting relay on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down relay...")
	runCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Relay exited")
}

// wireRelay wires all dependencies and returns the HTTP server, the
// order event consumer and the websocket hub.
func wireRelay(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, *relay.Consumer, *relay.Hub) {
	// Initialize stores.
	positionStore := internalRedis.NewPositionStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	responseCache := internalRedis.NewResponseCache(redisClient)
	orderRepo := postgres.NewOrderRepository(db)

	// Initialize the hub and tracking service.
	hub := relay.NewHub()
	tracker := relay.NewTracker(hub, positionStore, lockStore, orderRepo)

	consumer, err := relay.NewConsumer(cfg.AMQP, tracker)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}

	// Initialize handlers.
	trackingHandler := handler.NewTrackingHandler(tracker)
	statusHandler := handler.NewStatusHandler(tracker)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TrackingHandler: trackingHandler,
		StatusHandler:   statusHandler,
		Hub:             hub,
		Tracker:         tracker,
		ResponseCache:   responseCache,
		NewRelicApp:     nrApp,
		JWTSecret:       cfg.Auth.JWTSecret,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, consumer, hub
}
