package dto

// ExecuteRequest is the body of POST /api/query/execute.
type ExecuteRequest struct {
	Query       string         `json:"query"`
	RollbackSQL string         `json:"rollbackSql"`
	ActionType  string         `json:"actionType"`
	Kind        string         `json:"kind"`
	SalesID     string         `json:"salesId"`
	LineNumber  *int64         `json:"lineNumber"`
	EntryID     string         `json:"entryId"`
	ExecutedBy  string         `json:"executedBy"`
	Metadata    map[string]any `json:"metadata"`
}

// RollbackRequest is the optional body of POST /api/query-logs/{logId}/rollback.
type RollbackRequest struct {
	ExecutedBy string `json:"executedBy"`
}

// Query parameters reserved by GET /api/lines. Every other parameter is
// passed through as a filter.
var LineDownloadReserved = map[string]bool{
	"source":            true,
	"limit":             true,
	"includeAllColumns": true,
	"format":            true,
}

// SourceUpdateRequest is the body of PATCH /api/odata/{salesId}.
type SourceUpdateRequest struct {
	Changes map[string]any `json:"changes"`
}
