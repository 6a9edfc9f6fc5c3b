package dto

import "github.com/erpsync/salesline-reconciler/internal/domain/normalize"

// ServiceName identifies this process in health responses.
const ServiceName = "salesline-reconciler"

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Timestamp     string `json:"timestamp"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// WarehouseStatusResponse is returned by the warehouse connectivity check.
type WarehouseStatusResponse struct {
	Success  bool   `json:"success"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// RollbackResponse is returned after a rollback from the audit log.
type RollbackResponse struct {
	Success     bool  `json:"success"`
	SourceLogID int64 `json:"sourceLogId"`
	Rows        int   `json:"rows"`
	LogID       int64 `json:"logId,omitempty"`
}

// ExecuteResponse is returned after an ad-hoc statement runs.
type ExecuteResponse struct {
	Success bool  `json:"success"`
	Count   int   `json:"count"`
	Rows    any   `json:"data"`
	LogID   int64 `json:"logId,omitempty"`
}

// SourceLinesResponse carries the raw ERP lines of one order.
type SourceLinesResponse struct {
	Success bool               `json:"success"`
	SalesID string             `json:"salesId"`
	Count   int                `json:"count"`
	Lines   []normalize.Record `json:"data"`
}

// SourceUpdateResponse is returned after an ERP record is patched.
type SourceUpdateResponse struct {
	Success bool   `json:"success"`
	SalesID string `json:"salesId"`
	Fields  int    `json:"fields"`
}
