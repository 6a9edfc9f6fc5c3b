package queries

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Source names a downloadable line table.
type Source string

const (
	SourceVista     Source = "vista"
	SourceProcesada Source = "procesada"
)

type filterKind int

const (
	filterDateFrom filterKind = iota
	filterDateTo
	filterContains
	filterIn
	filterNonEmpty
)

type filterDef struct {
	name   string
	column string
	kind   filterKind
}

type sourceDef struct {
	table       string
	dateColumn  string
	safeColumns []string
	filters     []filterDef
	limits      Limits
}

func lineSources(cfg Config) map[Source]sourceDef {
	return map[Source]sourceDef{
		SourceVista: {
			table:      cfg.ViewTable,
			dateColumn: "ACCOUNTINGDATE",
			safeColumns: []string{
				"SALESID", "INVOICEID", "ACCOUNTINGDATE", "GAPCANALDIMENSION", "LEDGERACCOUNT",
				"ACCOUNTINGCURRENCYAMOUNT", "SOURCE_FLAG", "ITEMID", "DATAAREAID",
			},
			filters: []filterDef{
				{"accountingDateFrom", "ACCOUNTINGDATE", filterDateFrom},
				{"accountingDateTo", "ACCOUNTINGDATE", filterDateTo},
				{"sourceFlag", "SOURCE_FLAG", filterIn},
				{"salesId", "SALESID", filterContains},
				{"canal", "GAPCANALDIMENSION", filterIn},
				{"invoiceId", "INVOICEID", filterContains},
				{"salesIdNonEmpty", "SALESID", filterNonEmpty},
			},
			limits: cfg.VistaLimits,
		},
		SourceProcesada: {
			table:      cfg.ProcessedTable,
			dateColumn: "INVOICEDATE",
			safeColumns: []string{
				"SALESLINEPK", "SALESID", "INVOICEID", "INVOICEDATE", "LINECREATIONSEQUENCENUMBER",
				"LINENUM", "ITEMID", "QTY", "LINEAMOUNT", "LINEAMOUNTMST", "CANAL", "DATAAREAID",
			},
			filters: []filterDef{
				{"invoiceDateFrom", "INVOICEDATE", filterDateFrom},
				{"invoiceDateTo", "INVOICEDATE", filterDateTo},
				{"salesId", "SALESID", filterContains},
				{"invoiceId", "INVOICEID", filterContains},
				{"salesIdNonEmpty", "SALESID", filterNonEmpty},
			},
			limits: cfg.ProcessedLimits,
		},
	}
}

// LineDownloadRequest selects rows from one line source. Filters is keyed by
// the source's filter names; names the source does not define are ignored.
type LineDownloadRequest struct {
	Source            string
	Limit             int
	IncludeAllColumns bool
	Filters           map[string]string
}

// LineDownloadMetadata describes the query that was built.
type LineDownloadMetadata struct {
	Source            Source         `json:"source"`
	Table             string         `json:"table"`
	Limit             int            `json:"limit"`
	Filters           map[string]any `json:"filters"`
	IncludeAllColumns bool           `json:"includeAllColumns"`
	// Columns is the projection order; empty for a full projection.
	Columns []string `json:"columns,omitempty"`
}

// FilterNames lists the filters a source accepts.
func (b *Builder) FilterNames(source Source) []string {
	src, ok := b.sources[source]
	if !ok {
		return nil
	}
	names := make([]string, len(src.filters))
	for i, f := range src.filters {
		names[i] = f.name
	}
	return names
}

// LineDownload builds a bounded, filtered select over one line source. A
// zero limit uses the source default; a limit above the source maximum fails.
func (b *Builder) LineDownload(req LineDownloadRequest) (Query, LineDownloadMetadata, error) {
	source := Source(strings.ToLower(strings.TrimSpace(req.Source)))
	if source == "" {
		source = SourceVista
	}
	src, ok := b.sources[source]
	if !ok {
		return Query{}, LineDownloadMetadata{}, fmt.Errorf("%w: %q", ErrUnknownSource, req.Source)
	}

	limit, err := resolveLimit(req.Limit, src.limits)
	if err != nil {
		return Query{}, LineDownloadMetadata{}, err
	}

	var (
		where    []string
		binds    []any
		applied  = make(map[string]any)
		from, to *time.Time
	)
	for _, f := range src.filters {
		raw := strings.TrimSpace(req.Filters[f.name])
		if raw == "" {
			continue
		}
		switch f.kind {
		case filterDateFrom, filterDateTo:
			t, err := time.Parse(DateLayout, raw)
			if err != nil {
				return Query{}, LineDownloadMetadata{}, fmt.Errorf("%w: %s=%q", ErrInvalidDate, f.name, raw)
			}
			if f.kind == filterDateFrom {
				from = &t
				where = append(where, f.column+" >= TO_DATE(?)")
			} else {
				to = &t
				where = append(where, f.column+" <= TO_DATE(?)")
			}
			binds = append(binds, raw)
			applied[f.name] = raw
		case filterContains:
			where = append(where, f.column+` ILIKE ? ESCAPE '\\'`)
			binds = append(binds, "%"+escapeLike(raw)+"%")
			applied[f.name] = raw
		case filterIn:
			values := splitList(raw)
			if len(values) == 0 {
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			where = append(where, "TRIM(UPPER("+f.column+")) IN ("+placeholders+")")
			for _, v := range values {
				binds = append(binds, v)
			}
			applied[f.name] = values
		case filterNonEmpty:
			on, err := strconv.ParseBool(raw)
			if err != nil || !on {
				continue
			}
			where = append(where, "NULLIF(TRIM(COALESCE("+f.column+"::STRING, '')), '') IS NOT NULL")
			applied[f.name] = true
		}
	}
	if from != nil && to != nil && from.After(*to) {
		return Query{}, LineDownloadMetadata{}, ErrInvalidDateRange
	}

	projection := "*"
	var columns []string
	if !req.IncludeAllColumns {
		columns = append(columns, src.safeColumns...)
		projection = strings.Join(columns, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + projection + "\nFROM " + src.table)
	if len(where) > 0 {
		sb.WriteString("\nWHERE " + strings.Join(where, "\n  AND "))
	}
	sb.WriteString("\nORDER BY " + src.dateColumn + " DESC, SALESID")
	sb.WriteString("\nLIMIT " + strconv.Itoa(limit))

	meta := LineDownloadMetadata{
		Source:            source,
		Table:             src.table,
		Limit:             limit,
		Filters:           applied,
		IncludeAllColumns: req.IncludeAllColumns,
		Columns:           columns,
	}
	return Query{Name: "line-download", SQL: sb.String(), Binds: binds}, meta, nil
}

func resolveLimit(requested int, limits Limits) (int, error) {
	switch {
	case requested < 0:
		return 0, ErrInvalidLimit
	case requested == 0:
		if limits.Default > 0 {
			return limits.Default, nil
		}
		return limits.Max, nil
	case limits.Max > 0 && requested > limits.Max:
		return 0, fmt.Errorf("%w: %d > %d", ErrLimitExceeded, requested, limits.Max)
	default:
		return requested, nil
	}
}

// splitList parses a comma list into trimmed, uppercased, de-duplicated values.
func splitList(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		v := strings.ToUpper(strings.TrimSpace(part))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
