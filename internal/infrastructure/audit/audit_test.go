package audit

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/erpsync/salesline-reconciler/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Normalized(t *testing.T) {
	tests := []struct {
		name       string
		in         Filter
		wantLimit  int
		wantOffset int
	}{
		{"defaults", Filter{}, DefaultPageSize, 0},
		{"negative limit clamps to one", Filter{Limit: -5}, 1, 0},
		{"limit above max", Filter{Limit: 1000}, MaxPageSize, 0},
		{"negative offset", Filter{Limit: 10, Offset: -3}, 10, 0},
		{"kept as is", Filter{Limit: 25, Offset: 50}, 25, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalized()
			assert.Equal(t, tt.wantLimit, got.Limit)
			assert.Equal(t, tt.wantOffset, got.Offset)
		})
	}

	assert.Equal(t, "SO-1", Filter{SalesID: "  SO-1 "}.Normalized().SalesID)
}

func TestEncodeMetadata(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Equal(t, "{}", EncodeMetadata(nil, logger))
	assert.JSONEq(t, `{"kind":"insert","lineNumber":3}`, EncodeMetadata(map[string]any{"kind": "insert", "lineNumber": 3}, logger))
	assert.Empty(t, buf.String())

	got := EncodeMetadata(map[string]any{"amount": math.NaN()}, logger)

	assert.Equal(t, "{}", got)
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestPrepare_Defaults(t *testing.T) {
	entry := &Entry{ExecutedSQL: "UPDATE T SET A = 1;"}

	require.NoError(t, prepare(entry, Options{DefaultExecutor: "batch"}.withDefaults()))

	assert.Equal(t, ActionSQL, entry.ActionType)
	assert.Equal(t, "batch", entry.ExecutedBy)
	assert.ErrorIs(t, prepare(&Entry{ExecutedSQL: "  "}, Options{}), ErrEmptySQL)
}

func TestNew_SelectsBackend(t *testing.T) {
	repo, err := New(config.AuditConfig{Backend: config.AuditBackendSQLite, DatabasePath: createTempDB(t)}, "", nil, nil)
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &SQLiteRepository{}, repo)

	_, err = New(config.AuditConfig{Backend: config.AuditBackendWarehouse}, "ZLOGS_QUERYS", nil, nil)
	assert.Error(t, err)

	repo, err = New(config.AuditConfig{Backend: config.AuditBackendWarehouse}, "ZLOGS_QUERYS", &scriptedExecutor{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &WarehouseRepository{}, repo)

	_, err = New(config.AuditConfig{Backend: "mongo"}, "", nil, nil)
	assert.Error(t, err)
}
