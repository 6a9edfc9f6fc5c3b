package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/erpsync/salesline-reconciler/internal/api/handlers"
	"github.com/erpsync/salesline-reconciler/internal/application/service"
	"github.com/erpsync/salesline-reconciler/internal/domain/correction"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/config"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/logging"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/metrics"
)

// Service is the application surface the commands drive.
type Service interface {
	handlers.ReconciliationService
	ExecuteStatement(ctx context.Context, st correction.Statement, executedBy string) (*service.ExecuteResult, error)
}

var _ Service = (*service.Service)(nil)

// App is a wired runtime for one command invocation.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Service Service
	Metrics *metrics.Recorder

	closers []func() error
}

// Close releases the warehouse connection and the audit store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewApp loads configuration and wires every collaborator.
func NewApp(configPath string, verbose bool) (*App, error) {
	cfg := config.LoadOrEnvWithPath(configPath)

	loggingCfg := cfg.Observability.Logging
	if verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLogger(loggingCfg)

	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	exec, err := NewWarehouse(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, exec.Close)

	source, err := NewSourceClient(cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	repo, err := NewAuditRepository(cfg, exec, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.closers = append(app.closers, repo.Close)

	svc, err := service.New(cfg, service.Dependencies{
		Source:    source,
		Updater:   source,
		Warehouse: exec,
		Audit:     repo,
		Metrics:   app.Metrics,
		Logger:    logger.With("system", "service"),
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Service = svc
	return app, nil
}
