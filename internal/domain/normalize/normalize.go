// Package normalize holds the comparison rules shared by the reconciler and the
// correction generator.
//
// Source records arrive with inconsistently cased and punctuated field names
// ("LineCreationSequenceNumber", "LINECREATIONSEQUENCENUMBER", "line_creation_sequence_number"),
// so every lookup goes through NormalizeKey. Amounts are compared in decimal
// arithmetic against a fixed half-cent tolerance:
//
//	normalize.ValuesEqual(100.000, 100.005, normalize.TypeNumber) // true
//	normalize.ValuesEqual(100.000, 100.006, normalize.TypeNumber) // false
package normalize

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tolerance is the maximum absolute difference between two amounts that are
// still considered equal (half a cent).
const Tolerance = 0.005

var toleranceDecimal = decimal.RequireFromString("0.005")

// ColumnType controls how two column values are compared and rendered as SQL.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeNumber ColumnType = "number"
	TypeDate   ColumnType = "date"
)

// Record is one row keyed by column or field name.
type Record map[string]any

// NormalizeKey strips every non-alphanumeric character and uppercases the rest.
func NormalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Index is a Record re-keyed by normalized field name.
type Index map[string]any

// IndexRecord builds an Index over r. When several keys collapse to the same
// normalized name, the first non-nil value in sorted key order wins so the
// result does not depend on map iteration order.
func IndexRecord(r Record) Index {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	idx := make(Index, len(r))
	for _, k := range keys {
		nk := NormalizeKey(k)
		if existing, ok := idx[nk]; ok && existing != nil {
			continue
		}
		idx[nk] = r[k]
	}
	return idx
}

// Get returns the value stored under the normalized form of name.
func (idx Index) Get(name string) any {
	return idx[NormalizeKey(name)]
}

// First returns the first non-nil value among names.
func (idx Index) First(names ...string) any {
	for _, name := range names {
		if v := idx.Get(name); v != nil {
			return v
		}
	}
	return nil
}

// Lookup returns the first non-nil value of r among names, matching keys by
// normalized form.
func Lookup(r Record, names ...string) any {
	for _, name := range names {
		if v, ok := r[name]; ok && v != nil {
			return v
		}
	}
	return IndexRecord(r).First(names...)
}

// Decimal converts v to a decimal. Strings are trimmed; empty strings, NaN and
// infinities are rejected.
func Decimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return val, true
	case *decimal.Decimal:
		if val == nil {
			return decimal.Decimal{}, false
		}
		return *val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(val), true
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int8:
		return decimal.NewFromInt(int64(val)), true
	case int16:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt32(val), true
	case int64:
		return decimal.NewFromInt(val), true
	case uint:
		return decimal.NewFromUint64(uint64(val)), true
	case uint8:
		return decimal.NewFromInt(int64(val)), true
	case uint16:
		return decimal.NewFromInt(int64(val)), true
	case uint32:
		return decimal.NewFromInt(int64(val)), true
	case uint64:
		return decimal.NewFromUint64(val), true
	case json.Number:
		return parseDecimal(string(val))
	case []byte:
		return parseDecimal(string(val))
	case string:
		return parseDecimal(val)
	default:
		return decimal.Decimal{}, false
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// AmountDecimal returns the first candidate convertible to a finite number.
func AmountDecimal(candidates ...any) (decimal.Decimal, bool) {
	for _, c := range candidates {
		if d, ok := Decimal(c); ok {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

// Amount is AmountDecimal rendered as a float64.
func Amount(candidates ...any) (float64, bool) {
	d, ok := AmountDecimal(candidates...)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// String returns the first candidate with non-blank text, trimmed and
// uppercased. Zero is a valid candidate; nil, "" and false are skipped.
func String(candidates ...any) (string, bool) {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if b, ok := c.(bool); ok && !b {
			continue
		}
		if s := strings.TrimSpace(Text(c)); s != "" {
			return strings.ToUpper(s), true
		}
	}
	return "", false
}

// LineNumber converts v to an integral line number.
func LineNumber(v any) (int64, bool) {
	d, ok := Decimal(v)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	return d.IntPart(), true
}

// Text renders v the way it appears inside a composite key or a string
// literal. Times render as an ISO-8601 instant in UTC.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format("2006-01-02T15:04:05.000Z")
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.UTC().Format("2006-01-02T15:04:05.000Z")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int8, int16, uint, uint8, uint16, uint32:
		d, _ := Decimal(val)
		return d.String()
	case uint64:
		return strconv.FormatUint(val, 10)
	case json.Number:
		// Canonical form so "2.0" and 2 yield the same key segment.
		if d, ok := parseDecimal(string(val)); ok {
			return d.String()
		}
		return val.String()
	case decimal.Decimal:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case json.Marshaler:
		data, err := val.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(data)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return strings.Trim(string(data), `"`)
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// DateOnly reduces v to its calendar day (YYYY-MM-DD, UTC). Values without a
// zone are read as UTC. Unparseable text falls back to its first ten characters.
func DateOnly(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if val.IsZero() {
			return "", false
		}
		return val.UTC().Format("2006-01-02"), true
	case *time.Time:
		if val == nil || val.IsZero() {
			return "", false
		}
		return val.UTC().Format("2006-01-02"), true
	case float64, int, int64, json.Number:
		ms, ok := LineNumber(val)
		if !ok {
			return "", false
		}
		return time.UnixMilli(ms).UTC().Format("2006-01-02"), true
	}

	s := strings.TrimSpace(Text(v))
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02"), true
		}
	}
	if len(s) > 10 {
		s = s[:10]
	}
	return s, true
}

// ValuesEqual reports whether before and after hold the same value for a
// column of type t.
func ValuesEqual(before, after any, t ColumnType) bool {
	switch t {
	case TypeNumber:
		a, aok := Decimal(before)
		b, bok := Decimal(after)
		if !aok && !bok {
			return true
		}
		if !aok || !bok {
			return false
		}
		return WithinTolerance(a, b)
	case TypeDate:
		a, aok := DateOnly(before)
		b, bok := DateOnly(after)
		return aok == bok && a == b
	default:
		return canonicalText(before) == canonicalText(after)
	}
}

// WithinTolerance reports whether |a-b| <= Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(toleranceDecimal)
}

func canonicalText(v any) string {
	return strings.ToUpper(strings.TrimSpace(Text(v)))
}

// IsFalsy reports whether v is absent for backfill purposes: nil, empty text,
// zero or false.
func IsFalsy(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []byte:
		return len(val) == 0
	case bool:
		return !val
	case float64:
		return val == 0 || math.IsNaN(val)
	case float32:
		return val == 0 || math.IsNaN(float64(val))
	case json.Number:
		d, ok := Decimal(val)
		return !ok || d.IsZero()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, decimal.Decimal:
		d, _ := Decimal(val)
		return d.IsZero()
	}
	return false
}
