package sqltext

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, "'abc'", Quote("abc"))
	assert.Equal(t, "'O''Brien'", Quote("O'Brien"))
	assert.Equal(t, "''", Quote(""))
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		name string
		v    any
		t    normalize.ColumnType
		want string
	}{
		{"nil", nil, normalize.TypeString, "NULL"},
		{"integer", json.Number("100"), normalize.TypeNumber, "100"},
		{"trailing zeros", "12.50", normalize.TypeNumber, "12.5"},
		{"float", 0.25, normalize.TypeNumber, "0.25"},
		{"non-finite", math.Inf(1), normalize.TypeNumber, "NULL"},
		{"unparseable number", "abc", normalize.TypeNumber, "NULL"},
		{"date string", "2024-01-31T00:00:00Z", normalize.TypeDate, "'2024-01-31'::DATE"},
		{"date value", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), normalize.TypeDate, "'2024-02-01'::DATE"},
		{"blank date", "", normalize.TypeDate, "NULL"},
		{"string", "it's", normalize.TypeString, "'it''s'"},
		{"number in string column", 7.0, normalize.TypeString, "'7'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Literal(tt.v, tt.t))
		})
	}
}

func TestInsert(t *testing.T) {
	sql := Insert(New().Comment("insert %s", "K"), "DB.S.T", []string{"A", "B"}, []string{"1", "'x'"})

	assert.Equal(t, "-- insert K\nINSERT INTO DB.S.T\n  (A, B)\nVALUES\n  (1, 'x');", sql)
}

func TestUpdate(t *testing.T) {
	sql := Update(New(), "T", []Assignment{{"A", "1"}, {"B", "NULL"}}, "SALESLINEPK", "'K'")

	assert.Equal(t, "UPDATE T\nSET\n  A = 1,\n  B = NULL\nWHERE SALESLINEPK = 'K';", sql)
}

func TestDelete(t *testing.T) {
	assert.Equal(t, "DELETE FROM T WHERE SALESLINEPK = 'K';", Delete(New(), "T", "SALESLINEPK", "'K'"))
}
