package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/api"
)

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port int
}

// RunServe runs the API server until SIGINT or SIGTERM.
func RunServe(app *App, flags ServeFlags) error {
	logger := app.Logger.With("system", "api")

	apiCfg := api.DefaultConfig()
	apiCfg.Port = app.Config.API.Port
	if flags.Port > 0 {
		apiCfg.Port = flags.Port
	}
	if len(app.Config.API.AllowedOrigins) > 0 {
		apiCfg.AllowedOrigins = app.Config.API.AllowedOrigins
	}

	server := api.NewServer(apiCfg, app.Service, app.Metrics, logger)

	// Handle graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		<-quit
		logger.Info("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
