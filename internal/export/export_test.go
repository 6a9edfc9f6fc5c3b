package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRows() []normalize.Record {
	return []normalize.Record{
		{"SALESID": "SO-1", "LINEAMOUNT": json.Number("10.50"), "CANAL": "WEB; STORE"},
		{"SALESID": "SO-2", "LINEAMOUNT": 7.25, "INVOICEDATE": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"CSV", FormatCSV, false},
		{"xlsx", FormatXLSX, false},
		{"excel", FormatXLSX, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumns(t *testing.T) {
	assert.Equal(t, []string{"B", "A"}, Columns([]string{"B", "A"}, sampleRows()))
	assert.Equal(t, []string{"CANAL", "INVOICEDATE", "LINEAMOUNT", "SALESID"}, Columns(nil, sampleRows()))
	assert.Empty(t, Columns(nil, nil))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer

	err := WriteCSV(&buf, []string{"SALESID", "LINEAMOUNT", "CANAL"}, sampleRows())

	require.NoError(t, err)
	want := "\ufeffSALESID;LINEAMOUNT;CANAL\n" +
		"SO-1;10.5;\"WEB; STORE\"\n" +
		"SO-2;7.25;\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	columns := []string{"SALESID", "LINEAMOUNT", "INVOICEDATE"}

	require.NoError(t, WriteXLSX(&buf, "", columns, sampleRows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Lineas")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, columns, rows[0])
	assert.Equal(t, "SO-1", rows[1][0])
	assert.Equal(t, "10.5", rows[1][1])
	assert.Equal(t, "SO-2", rows[2][0])
}

func TestFilename(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	assert.Equal(t, "lineas_vista_20240501-083000.csv", Filename("vista", FormatCSV, now))
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
}
