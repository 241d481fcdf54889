package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"supportdesk/auth"
	"supportdesk/infrastructure/ws"
	"supportdesk/internal"
	"supportdesk/moderation"
	"supportdesk/observability"
	"supportdesk/repositories"
	"supportdesk/runtime"
	"supportdesk/runtime/workers"
	"supportdesk/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern ensures all 'defer' statements (database cleanup, index flush) execute before
// the process exits, and keeps the wiring testable outside of main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.GetLoggerFromString(config.LogLevel, config.LogDir)
	auth.SetSigningKey([]byte(config.AuthSigningKey))

	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Telemetry
	meter, shutdownTelemetry, err := observability.InitTelemetry(ctx, config.LogDir, config.MetricInterval)
	if err != nil {
		return exitRuntime, fmt.Errorf("telemetry init failed: %w", err)
	}
	defer shutdownTelemetry()

	metricsSink, err := observability.NewMetricsSink(meter)
	if err != nil {
		return exitRuntime, fmt.Errorf("metrics sink init failed: %w", err)
	}

	// 4. Moderation
	terms, err := moderation.LoadBlacklist()
	if err != nil {
		return exitConfig, fmt.Errorf("blacklist loading failed: %w", err)
	}
	censor, err := moderation.NewCensor(terms, charReplacement)
	if err != nil {
		return exitConfig, fmt.Errorf("censor init failed: %w", err)
	}

	// 5. Coordination core
	registry := runtime.NewRegistry()
	sessionRepository := repositories.NewSessionRepository(db, logger)
	messageRepository := repositories.NewMessageRepository(db, logger)
	sessionIndex := repositories.NewSessionIndex(blugeWriter, logger)
	bus := runtime.NewBus(
		logger, registry, sessionRepository, messageRepository, censor,
		config.PresenceGrace, config.SinkTimeout, config.BufferSize,
	)
	defer bus.Presence().Stop()

	chatService := services.NewChatService(logger, bus, sessionRepository, messageRepository, sessionIndex)

	// 6. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Background workers (event fanout to metrics, process health)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewFanoutWorker(logger, bus.Feed(), metricsSink),
		workers.NewHealthWorker(logger, config.HealthInterval),
	)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 8. HTTP + websocket gateway
	gateway := ws.NewServer(logger, bus, chatService, config.ConnectionBufferSize)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           gateway.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 10. Final Cleanup (Graceful Shutdown)
	// Active connections finish their writes, then workers drain.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
