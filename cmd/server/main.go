/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the back-office server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, then BACKOFFICE_* environment)
  2. Initialize logging
  3. Open the SQLite store wired to the change bus
  4. Apply the seed fixture, if configured
  5. Build services, the inventory view, metrics and the change stream
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional config file (YAML or .env)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close change stream clients and the database
  4. Exit

EXAMPLES:
  # Defaults: ./backoffice.db on :8080, Europe/Rome
  ./server

  # In-memory database on a different port
  BACKOFFICE_DB_PATH=":memory:" BACKOFFICE_HTTP_PORT=3000 ./server

SEE ALSO:
  - config/config.go: keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/backoffice/api"
	"github.com/warp/backoffice/availability"
	"github.com/warp/backoffice/config"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/logging"
	"github.com/warp/backoffice/requisition"
	"github.com/warp/backoffice/seed"
	"github.com/warp/backoffice/shift"
	"github.com/warp/backoffice/stock"
	"github.com/warp/backoffice/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Optional config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logging is not configured yet.
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(logging.Config{Env: cfg.App.Env, Level: cfg.Log.Level, Name: cfg.App.Name})
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	bus := generic.NewBus()
	store, err := sqlite.New(cfg.DB.Path, bus)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info().Str("path", cfg.DB.Path).Msg("database ready")

	loc := cfg.Venue.Location()

	// Services
	ledger := stock.NewLedger(store, store)
	ledger.Log = logging.Component(logger, "stock")
	ledger.Loc = loc

	workflow := requisition.NewWorkflow(store, ledger)
	workflow.Log = logging.Component(logger, "requisition")
	workflow.Dispatcher = requisition.NewLinkDispatcher(cfg.Dispatch.BaseURL, workflow.Log)
	if cfg.Store.AtomicApproval {
		workflow.WithTxRunner(store)
	}

	register := availability.NewRegister(store)
	register.Log = logging.Component(logger, "availability")

	board := shift.NewBoard(store, loc)
	board.Log = logging.Component(logger, "shift")

	// Seed
	var fixture *seed.Fixture
	if cfg.Seed.File != "" {
		fx, err := seed.ParseFile(cfg.Seed.File)
		if err != nil {
			return err
		}
		res, err := seed.Apply(ctx, fx, ledger, store)
		if err != nil {
			return err
		}
		fixture = &fx
		logger.Info().Str("file", cfg.Seed.File).Int("articles", res.Articles).Bool("schedule", res.Schedule).Msg("fixture applied")
	}

	inventory := stock.NewInventoryView(ctx, ledger, bus)
	defer inventory.Close()

	// Initialize handler
	handler := api.NewHandler(api.Services{
		Ledger:       ledger,
		Workflow:     workflow,
		Availability: register,
		Shifts:       board,
		Schedule:     store,
		Inventory:    inventory,
	})
	handler.Log = logging.Component(logger, "api")
	handler.Metrics = api.NewMetrics(cfg.App.Name)
	handler.Ping = store.Ping
	handler.Admin = &api.Admin{Fixture: fixture, Reset: store.Reset, AllowReset: cfg.IsDevelopment()}

	handler.Hub = api.NewHub(logging.Component(logger, "stream"), handler.Metrics)
	defer handler.Hub.Attach(bus)()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go handler.Hub.Run(hubCtx)

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.CORS.AllowedOrigins}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("env", cfg.App.Env).
			Str("timezone", loc.String()).
			Bool("atomic_approval", workflow.Atomic()).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopHub()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
