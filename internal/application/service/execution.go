package service

import (
	"context"
	"errors"
	"strings"

	"github.com/erpsync/salesline-reconciler/internal/domain/correction"
	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/audit"
)

// ExecuteRequest is an operator-approved statement. Empty audit fields are
// filled from Metadata (kind, salesId, lineNumber, entryId).
type ExecuteRequest struct {
	SQL         string         `json:"query"`
	RollbackSQL string         `json:"rollbackSql,omitempty"`
	ActionType  string         `json:"actionType,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	SalesID     string         `json:"salesId,omitempty"`
	LineNumber  *int64         `json:"lineNumber,omitempty"`
	EntryID     string         `json:"entryId,omitempty"`
	ExecutedBy  string         `json:"executedBy,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ExecuteResult is what the warehouse returned plus the audit entry id,
// when the log write succeeded and the backend reports ids.
type ExecuteResult struct {
	Count int                `json:"count"`
	Rows  []normalize.Record `json:"data"`
	LogID int64              `json:"logId,omitempty"`
}

// Execute runs one statement and then records it in the audit log. A failed
// log write is reported at WARN and does not fail the request.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	sql := strings.TrimSpace(req.SQL)
	if sql == "" {
		return nil, ErrSQLRequired
	}

	actionType := req.ActionType
	if actionType == "" {
		actionType = audit.ActionSQL
	}

	rows, err := s.exec.Execute(ctx, sql)
	s.metrics.ObserveStatement(actionType, err)
	if err != nil {
		s.logger.Error("statement execution failed", "action", actionType, "sales_id", req.SalesID, "error", err)
		return nil, err
	}
	if rows == nil {
		rows = []normalize.Record{}
	}

	entry := entryFromRequest(req, sql, actionType)
	result := &ExecuteResult{Count: len(rows), Rows: rows}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("could not record executed statement", "action", actionType, "error", err)
	} else {
		result.LogID = entry.ID
	}

	s.logger.Info("executed statement",
		"action", actionType,
		"kind", entry.Kind,
		"sales_id", entry.SalesID,
		"rows", len(rows))
	return result, nil
}

// ExecuteStatement runs a generated correction. Non-actionable statements
// are refused.
func (s *Service) ExecuteStatement(ctx context.Context, st correction.Statement, executedBy string) (*ExecuteResult, error) {
	if !st.Actionable {
		return nil, ErrNotActionable
	}
	line := st.LineNumber
	return s.Execute(ctx, ExecuteRequest{
		SQL:         st.SQL,
		RollbackSQL: st.RollbackSQL,
		Kind:        string(st.Kind),
		SalesID:     st.SalesID,
		LineNumber:  &line,
		EntryID:     st.EntryID,
		ExecutedBy:  executedBy,
		Metadata: map[string]any{
			"reason":          st.Reason,
			"affectedColumns": st.AffectedColumns,
			"preview":         st.Preview,
		},
	})
}

// RollbackResult reports a rollback executed from the audit log.
type RollbackResult struct {
	SourceLogID int64 `json:"sourceLogId"`
	Rows        int   `json:"rows"`
	LogID       int64 `json:"logId,omitempty"`
}

// RollbackFromLog executes the rollback stored with a log entry and logs
// that execution as a rollback-from-log entry.
func (s *Service) RollbackFromLog(ctx context.Context, logID int64, executedBy string) (*RollbackResult, error) {
	if logID <= 0 {
		return nil, ErrInvalidLogID
	}

	source, err := s.audit.Get(ctx, logID)
	if errors.Is(err, audit.ErrNotFound) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, err
	}

	rollback := strings.TrimSpace(source.RollbackSQL)
	if rollback == "" || rollback == correction.NoRollback {
		return nil, ErrNoRollback
	}

	s.logger.Info("executing rollback from log", "source_log_id", logID, "sales_id", source.SalesID)
	res, err := s.Execute(ctx, ExecuteRequest{
		SQL:        rollback,
		ActionType: audit.ActionRollbackFromLog,
		SalesID:    source.SalesID,
		EntryID:    source.EntryID,
		ExecutedBy: executedBy,
		Metadata: map[string]any{
			"sourceLogId":        source.ID,
			"salesId":            source.SalesID,
			"entryId":            source.EntryID,
			"originalActionType": source.ActionType,
		},
	})
	if err != nil {
		return nil, err
	}
	return &RollbackResult{SourceLogID: source.ID, Rows: res.Count, LogID: res.LogID}, nil
}

func entryFromRequest(req ExecuteRequest, sql, actionType string) *audit.Entry {
	md := normalize.Record(req.Metadata)

	entry := &audit.Entry{
		ActionType:  actionType,
		Kind:        firstText(req.Kind, md["kind"]),
		SalesID:     firstText(req.SalesID, md["salesId"], md["SalesId"]),
		LineNumber:  req.LineNumber,
		EntryID:     firstText(req.EntryID, md["entryId"], md["entryID"], previewKey(md["preview"])),
		ExecutedSQL: sql,
		RollbackSQL: firstText(req.RollbackSQL, md["rollbackSql"]),
		ExecutedBy:  firstText(req.ExecutedBy, md["executedBy"]),
		Metadata:    req.Metadata,
	}
	if entry.LineNumber == nil {
		if n, ok := normalize.LineNumber(md["lineNumber"]); ok {
			entry.LineNumber = &n
		}
	}
	return entry
}

func firstText(candidates ...any) string {
	for _, c := range candidates {
		if t := strings.TrimSpace(normalize.Text(c)); t != "" {
			return t
		}
	}
	return ""
}

// previewKey reads preview.salesLinePk or preview.compositeKey from
// client-supplied metadata.
func previewKey(v any) any {
	switch p := v.(type) {
	case map[string]any:
		return normalize.Lookup(normalize.Record(p), "salesLinePk", "compositeKey")
	case correction.Preview:
		return p.CompositeKey
	}
	return nil
}
