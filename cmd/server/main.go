/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the canteen ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (when present) and parse command-line flags
  2. Configure logging
  3. Initialize SQLite store
  4. Wire the demand service, API handler and router
  5. Start the expiry sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (env fallback in parentheses):
  -port        HTTP server port (PORT, default 8080)
  -db          SQLite database path (DB_PATH, default canteen.db)
               Use ":memory:" for an in-memory database
  -log-level   trace|debug|info|warn|error (LOG_LEVEL, default info)
  -log-format  console|json (LOG_FORMAT, default console)
  -open-hour   ordering window opens (ORDER_OPEN_HOUR, default 20)
  -close-hour  ordering window closes (ORDER_CLOSE_HOUR, default 12)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the expiry sweeper
  4. Close the database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/canteen.db"

  # Run with in-memory database on another port
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/messbook/canteen-engine/api"
	"github.com/messbook/canteen-engine/demand"
	"github.com/messbook/canteen-engine/logging"
	"github.com/messbook/canteen-engine/store/sqlite"
)

func main() {
	// .env is optional; flags still win over it.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "canteen.db"), "SQLite database path")
	logLevel := flag.String("log-level", envStr("LOG_LEVEL", "info"), "log level")
	logFormat := flag.String("log-format", envStr("LOG_FORMAT", "console"), "log format (console|json)")
	openHour := flag.Int("open-hour", envInt("ORDER_OPEN_HOUR", demand.DefaultWindow.OpenHour), "ordering window opens (local hour)")
	closeHour := flag.Int("close-hour", envInt("ORDER_CLOSE_HOUR", demand.DefaultWindow.CloseHour), "ordering window closes (local hour)")
	flag.Parse()

	if err := logging.Setup(logging.Config{Level: *logLevel, Format: *logFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.WithComponent("server")

	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db", *dbPath).Msg("failed to initialize database")
	}
	defer store.Close()

	demands := demand.NewService(store, logging.WithComponent("demand"))
	demands.Window = demand.Window{OpenHour: *openHour, CloseHour: *closeHour}

	handler := api.NewHandler(store, demands, logging.WithComponent("api"))
	router := api.NewRouter(handler)

	sweeper := api.NewExpirySweeper(demands, logging.WithComponent("sweeper"))
	sweeper.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Int("port", *port).
			Str("db", *dbPath).
			Int("open_hour", *openHour).
			Int("close_hour", *closeHour).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	sweeper.Stop()
	logger.Info().Msg("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
