package cli

import (
	"fmt"
	"log/slog"

	"github.com/erpsync/salesline-reconciler/internal/adapters/odata"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/audit"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/config"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/warehouse"
)

// NewWarehouse opens the Snowflake executor
func NewWarehouse(cfg *config.Config, logger *slog.Logger) (*warehouse.SQLExecutor, error) {
	exec, err := warehouse.Open(cfg.Snowflake, logger.With("system", "warehouse"))
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	return exec, nil
}

// NewSourceClient creates the ERP OData client
func NewSourceClient(cfg *config.Config, logger *slog.Logger) (*odata.Client, error) {
	client, err := odata.NewClient(cfg.OData, odata.Options{
		DataAreaID: cfg.Reconciliation.DefaultDataAreaID,
		Logger:     logger.With("system", "odata"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OData client: %w", err)
	}
	return client, nil
}

// NewAuditRepository opens the configured audit log backend
func NewAuditRepository(cfg *config.Config, exec warehouse.Executor, logger *slog.Logger) (audit.Repository, error) {
	repo, err := audit.New(cfg.Audit, cfg.Tables.AuditLog, exec, logger.With("system", "audit"))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return repo, nil
}
