/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the insights engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load config
  2. Build the logger
  3. Initialize SQLite store
  4. Wire notifications (gateway or log-only) and the ingestor
  5. Configure HTTP router and start the reminder scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: ./config.yaml if present)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

ENVIRONMENT:
  Every config key can be set as INSIGHTS_<SECTION>_<KEY>, for example
  INSIGHTS_AUTH_JWT_SECRET or INSIGHTS_NOTIFY_GATEWAY_TOKEN.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Wait for in-flight notifications (bounded by the same deadline)
  5. Close database connection

SEE ALSO:
  - config/config.go: Config keys and defaults
  - api/server.go: Router configuration
  - notify/dispatcher.go: Notification delivery
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/insights-engine/api"
	"github.com/warp/insights-engine/config"
	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/logger"
	"github.com/warp/insights-engine/notify"
	"github.com/warp/insights-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret is required (INSIGHTS_AUTH_JWT_SECRET)")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("invalid timezone", "error", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to initialize database", "path", cfg.Database.Path, "error", err)
	}
	defer store.Close()

	// Notifications
	var transport notify.Transport = notify.NewLogTransport(log)
	if cfg.Notify.GatewayURL != "" && cfg.Notify.GatewayToken != "" {
		transport = notify.NewHTTPTransport(cfg.Notify.GatewayURL, cfg.Notify.GatewayToken)
	} else {
		log.Warn("message gateway not configured, messages will only be logged")
	}
	dispatcher := notify.NewDispatcher(transport, notify.Config{
		AdminAddress:  cfg.Notify.AdminAddress,
		WebhookURL:    cfg.Notify.WebhookURL,
		WebhookSecret: cfg.Notify.WebhookSecret,
		Timeout:       cfg.Notify.Timeout,
		Currency:      cfg.Notify.Currency,
	}, log)

	ingestor := insights.NewIngestor(store,
		insights.WithNotifier(dispatcher),
		insights.WithLocation(loc),
		insights.WithLogger(log),
	)

	// Create router
	handler := api.NewHandler(ingestor, store, log)
	router := api.NewRouter(handler, api.NewAuthenticator(cfg.Auth.JWTSecret), cfg.CORS.AllowedOrigins)

	// Reminders
	scheduler := api.NewReminderScheduler(store, ingestor, dispatcher, log)
	scheduler.Enabled = cfg.Reminders.Enabled
	scheduler.CheckInterval = cfg.Reminders.Interval
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "timezone", loc.String(), "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("abandoning in-flight notifications")
	}

	log.Info("server stopped")
}
