// Package sqltext renders values and statements as Snowflake SQL text.
package sqltext

import (
	"fmt"
	"strings"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
)

// Null is the SQL NULL literal.
const Null = "NULL"

// Quote wraps s in single quotes, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Literal renders v as a SQL literal for a column of type t.
func Literal(v any, t normalize.ColumnType) string {
	if v == nil {
		return Null
	}
	switch t {
	case normalize.TypeNumber:
		d, ok := normalize.Decimal(v)
		if !ok {
			return Null
		}
		return d.String()
	case normalize.TypeDate:
		day, ok := normalize.DateOnly(v)
		if !ok {
			return Null
		}
		return Quote(day) + "::DATE"
	default:
		return Quote(normalize.Text(v))
	}
}

// Assignment is one "column = value" pair of an UPDATE.
type Assignment struct {
	Column string
	Value  string
}

// Builder accumulates statement lines in order.
type Builder struct {
	lines []string
}

// New creates an empty builder.
func New() *Builder {
	return &Builder{}
}

// Comment appends a "-- " line.
func (b *Builder) Comment(format string, args ...any) *Builder {
	b.lines = append(b.lines, "-- "+fmt.Sprintf(format, args...))
	return b
}

// Line appends a raw line.
func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, s)
	return b
}

func (b *Builder) String() string {
	return strings.Join(b.lines, "\n")
}

// Insert renders a single-row INSERT.
func Insert(b *Builder, table string, columns, values []string) string {
	return b.
		Line("INSERT INTO " + table).
		Line("  (" + strings.Join(columns, ", ") + ")").
		Line("VALUES").
		Line("  (" + strings.Join(values, ", ") + ");").
		String()
}

// Update renders an UPDATE keyed on a single column.
func Update(b *Builder, table string, set []Assignment, keyColumn, keyLiteral string) string {
	b.Line("UPDATE " + table).Line("SET")
	for i, a := range set {
		line := "  " + a.Column + " = " + a.Value
		if i < len(set)-1 {
			line += ","
		}
		b.Line(line)
	}
	return b.Line("WHERE " + keyColumn + " = " + keyLiteral + ";").String()
}

// Delete renders a DELETE keyed on a single column.
func Delete(b *Builder, table, keyColumn, keyLiteral string) string {
	return b.Line("DELETE FROM " + table + " WHERE " + keyColumn + " = " + keyLiteral + ";").String()
}
