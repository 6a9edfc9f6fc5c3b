package correction

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/payload"
	"github.com/erpsync/salesline-reconciler/internal/domain/reconciler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "DB.CORE.ERP_PROCESSED_SALESLINE"

func newGenerator() *Generator {
	return NewGenerator(Config{Table: table, DefaultDataAreaID: "gp01"})
}

func sourceRaw() normalize.Record {
	return normalize.Record{
		"SalesId":                    "SO-1",
		"LineCreationSequenceNumber": json.Number("1"),
		"LineNum":                    json.Number("1"),
		"ItemId":                     "A-1",
		"Qty":                        json.Number("2"),
		"LineAmount":                 json.Number("100.5"),
		"InvoiceId":                  "INV-1",
		"InvoiceDate":                "2024-01-31T00:00:00Z",
		"Canal":                      "WEB",
		"ItemName":                   "Men's jacket",
	}
}

// persistedRow mirrors what the warehouse would hold for sourceRaw.
func persistedRow(t *testing.T) normalize.Record {
	t.Helper()
	row := payload.NewMapper(payload.Config{DefaultDataAreaID: "gp01"}).FromSource("SO-1", 1, sourceRaw())
	row[payload.ColSnowflakeCreatedAt] = "2024-02-01T00:00:00Z"
	return row
}

func alignedLine(src, wh normalize.Record) reconciler.LineComparison {
	return reconciler.LineComparison{
		LineNumber: 1,
		Status:     reconciler.StatusMatch,
		OData:      &reconciler.SourceSide{Raw: src},
		Snowflake:  &reconciler.WarehouseSide{Raw: wh},
	}
}

func TestBuildInsertStatements(t *testing.T) {
	g := newGenerator()
	lines := []reconciler.LineComparison{
		{LineNumber: 1, Status: reconciler.StatusMissingInSnowflake, OData: &reconciler.SourceSide{Raw: sourceRaw()}},
		{LineNumber: 2, Status: reconciler.StatusMatch, OData: &reconciler.SourceSide{Raw: sourceRaw()}},
		{LineNumber: 3, Status: reconciler.StatusMissingInSnowflake},
	}

	stmts := g.BuildInsertStatements("SO-1", lines)

	require.Len(t, stmts, 1)
	s := stmts[0]
	assert.Equal(t, KindInsert, s.Kind)
	assert.True(t, s.Actionable)
	assert.Equal(t, ReasonMissingInSnowflake, s.Reason)
	assert.True(t, strings.HasPrefix(s.SQL, "-- Suggested insert for SALESLINEPK "))
	assert.Contains(t, s.SQL, "INSERT INTO "+table+"\n  (SALESLINEPK, ")
	assert.Contains(t, s.SQL, "'2024-01-31'::DATE")
	assert.Contains(t, s.SQL, "'Men''s jacket'")
	assert.Contains(t, s.SQL, ", 100.5,")
	assert.NotContains(t, s.SQL, "SNOWFLAKE_CREATED_AT")
	assert.NotContains(t, s.SQL, "SYNCSTARTDATETIME")
	assert.Equal(t, "DELETE FROM "+table+" WHERE SALESLINEPK = '"+s.Preview.CompositeKey+"';", s.RollbackSQL)
	assert.Equal(t, s.Preview.CompositeKey, s.EntryID)
	assert.Equal(t, "gp01", s.Preview.DataAreaID)
	assert.Equal(t, "WEB", s.Preview.Canal)
}

func TestBuildInsertStatements_PlaceholderForBlankKey(t *testing.T) {
	g := newGenerator()
	lines := []reconciler.LineComparison{{
		LineNumber: 1,
		Status:     reconciler.StatusMissingInSnowflake,
		OData:      &reconciler.SourceSide{Raw: normalize.Record{"LineAmount": 100.0, "Canal": "WEB"}},
	}}

	stmts := g.BuildInsertStatements("SO-1", lines)

	require.Len(t, stmts, 1)
	s := stmts[0]
	assert.False(t, s.Actionable)
	assert.Equal(t, ReasonMissingInSnowflake, s.Reason)
	assert.True(t, strings.HasPrefix(s.SQL, NotGeneratedMarker))
	assert.Equal(t, NoRollback, s.RollbackSQL)
	assert.NotContains(t, s.SQL, "INSERT")
}

func TestBuildInsertStatements_Deterministic(t *testing.T) {
	g := newGenerator()
	lines := []reconciler.LineComparison{
		{LineNumber: 1, Status: reconciler.StatusMissingInSnowflake, OData: &reconciler.SourceSide{Raw: sourceRaw()}},
	}

	first := g.BuildInsertStatements("SO-1", lines)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, g.BuildInsertStatements("SO-1", lines))
	}
}

func TestBuildUpdateStatements_NoOpSuppression(t *testing.T) {
	g := newGenerator()

	t.Run("identical row", func(t *testing.T) {
		stmts := g.BuildUpdateStatements([]reconciler.LineComparison{alignedLine(sourceRaw(), persistedRow(t))})

		assert.Empty(t, stmts)
	})

	t.Run("within tolerance and differently cased text", func(t *testing.T) {
		wh := persistedRow(t)
		wh["LINEAMOUNT"] = 100.504
		wh["CANAL"] = " web "
		wh["INVOICEDATE"] = "2024-01-31"

		stmts := g.BuildUpdateStatements([]reconciler.LineComparison{alignedLine(sourceRaw(), wh)})

		assert.Empty(t, stmts)
	})

	t.Run("json number with trailing zeros keys like a float", func(t *testing.T) {
		src := sourceRaw()
		src["Qty"] = json.Number("2.0")
		wh := persistedRow(t)
		wh["QTY"] = 2.0

		stmts := g.BuildUpdateStatements([]reconciler.LineComparison{alignedLine(src, wh)})

		assert.Empty(t, stmts)
	})
}

func TestBuildUpdateStatements_Drift(t *testing.T) {
	g := newGenerator()
	wh := persistedRow(t)
	wh["LINEAMOUNT"] = 90.0
	wh["ITEMNAME"] = nil
	line := alignedLine(sourceRaw(), wh)
	line.Status = reconciler.StatusAmountMismatch

	stmts := g.BuildUpdateStatements([]reconciler.LineComparison{line})

	require.Len(t, stmts, 1)
	s := stmts[0]
	key := normalize.Text(wh[payload.ColSalesLinePK])
	assert.True(t, s.Actionable)
	assert.Equal(t, string(reconciler.StatusAmountMismatch), s.Reason)
	assert.Equal(t, key, s.EntryID)
	assert.Equal(t, []string{"LINEAMOUNT", "ITEMNAME"}, s.AffectedColumns)
	assert.Equal(t,
		"-- Suggested update for SALESLINEPK "+key+"\n"+
			"UPDATE "+table+"\nSET\n  LINEAMOUNT = 100.5,\n  ITEMNAME = 'Men''s jacket'\n"+
			"WHERE SALESLINEPK = '"+key+"';",
		s.SQL)
	assert.Equal(t,
		"-- Rollback for SALESLINEPK "+key+"\n"+
			"UPDATE "+table+"\nSET\n  LINEAMOUNT = 90,\n  ITEMNAME = NULL\n"+
			"WHERE SALESLINEPK = '"+key+"';",
		s.RollbackSQL)
	require.NotNil(t, s.Preview.Before)
	require.NotNil(t, s.Preview.After)
	assert.Equal(t, 90.0, s.Preview.Before.Amount)
	assert.Equal(t, json.Number("100.5"), s.Preview.After.Amount)
}

func TestBuildUpdateStatements_PKMismatchGuard(t *testing.T) {
	g := newGenerator()
	wh := persistedRow(t)
	wh[payload.ColSalesLinePK] = "2-OLD-KEY"
	wh["LINEAMOUNT"] = 1.0

	stmts := g.BuildUpdateStatements([]reconciler.LineComparison{alignedLine(sourceRaw(), wh)})

	require.Len(t, stmts, 1)
	s := stmts[0]
	assert.False(t, s.Actionable)
	assert.Equal(t, ReasonPKMismatch, s.Reason)
	assert.True(t, strings.HasPrefix(s.SQL, NotGeneratedMarker))
	assert.NotContains(t, s.SQL, "UPDATE ")
	assert.Equal(t, NoRollback, s.RollbackSQL)
	assert.Equal(t, "2-OLD-KEY", s.Preview.CompositeKey)
	assert.NotEmpty(t, s.Preview.NewCompositeKey)
}

func TestBuildUpdateStatements_SkipsLinesWithoutBothSides(t *testing.T) {
	g := newGenerator()
	noKey := persistedRow(t)
	delete(noKey, payload.ColSalesLinePK)

	lines := []reconciler.LineComparison{
		{LineNumber: 1, OData: &reconciler.SourceSide{Raw: sourceRaw()}},
		{LineNumber: 2, Snowflake: &reconciler.WarehouseSide{Raw: persistedRow(t)}},
		alignedLine(sourceRaw(), noKey),
	}

	assert.Empty(t, g.BuildUpdateStatements(lines))
}
