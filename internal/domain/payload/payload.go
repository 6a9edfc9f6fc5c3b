// Package payload maps a source (OData) sales line onto the warehouse's
// processed-line column set.
package payload

import (
	"sort"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/erpsync/salesline-reconciler/internal/domain/saleslinepk"
)

// Column names referenced directly by the mapper and its callers.
const (
	ColSalesLinePK                = "SALESLINEPK"
	ColSalesID                    = "SALESID"
	ColDevSalesID                 = "DEV_SALESID"
	ColLineCreationSequenceNumber = "LINECREATIONSEQUENCENUMBER"
	ColLineNum                    = "LINENUM"
	ColInvoiceDate                = "INVOICEDATE"
	ColInvoiceID                  = "INVOICEID"
	ColLineAmount                 = "LINEAMOUNT"
	ColCanal                      = "CANAL"
	ColDataAreaID                 = "DATAAREAID"
	ColSyncStartDateTime          = "SYNCSTARTDATETIME"
	ColSnowflakeCreatedAt         = "SNOWFLAKE_CREATED_AT"
	ColSnowflakeUpdatedAt         = "SNOWFLAKE_UPDATED_AT"
)

// Columns is the ordered processed-line column set.
var Columns = []string{
	"SALESLINEPK", "DEFINITIONGROUP", "EXECUTIONID", "ISSELECTED", "TRANSFERSTATUS",
	"INVOICEDATE", "INVOICEID", "SALESID", "EXCHRATE", "SALESPRICE",
	"QTY", "ORIGINALPRICE", "ITEMID", "LINENUM", "CURRENCYCODE",
	"INVENTTRANSID", "INVENTDIMID", "INVENTLOCATIONID", "INVENTLOCATIONNAME", "REFCUSTINVOICETRANSRECID",
	"SALESPOOLID", "PURCHORDERFORMNUM", "DEV_SALESID", "DEV_INVOICEID", "LINEDISC",
	"LINEPERCENT", "MULTILNDISC", "MULTILNPERCENT", "SUMLINEDISC", "COSTAMOUNTADJUSTMENT",
	"COSTAMOUNTPOSTED", "COSTAMOUNTPHYSICAL", "DISCPERCENT", "LINEAMOUNT", "LINEAMOUNTTAX",
	"CONTRIBUTIONMARGIN", "CONTRIBUTIONRATIO", "BARCODE", "LINEAMOUNTMST", "LINEAMOUNTTAXMST",
	"SUMLINEDISCMST", "TAXAMOUNTMST", "DISCOUNTCODE", "STAFFID", "STAFFNAME",
	"TENDERTYPEID", "LINEAMOUNTWITHTAXES", "CONFIGID", "INVENTBATCHID", "INVENTCOLORID",
	"INVENTSERIALID", "INVENTSITEID", "INVENTSIZEID", "INVENTSTATUSID", "INVENTSTYLEID",
	"INVENTVERSIONID", "WMSLOCATIONID", "ITEMNAME", "SALESUNIT", "TAXITEMGROUP",
	"TAXGROUP", "TENDERTYPENAME", "CANAL", "CECO", "CANALCODE",
	"CECOCODE", "EXTERNALITEMID", "PRICEGROUPLIST", "CREATEDTRANSACTIONDATE2", "DEFAULTDIMENSIONDISPLAYVALUE",
	"PARTITION", "CUSTACCOUNT", "ORGANIZATIONNAME", "INVENTORYLOTID", "TRANSACTIONID",
	"RETURNTRANSACTIONID", "SKU", "LINECREATIONSEQUENCENUMBER", "SHIPPINGWAREHOUSEID", "PRIMARYCONTACTEMAIL",
	"INVOICECODE", "ITEMIDSCANNED", "KEYBOARDITEMENTRY", "PRICECHANGE", "DATAAREAID",
	"SYNCSTARTDATETIME", "SNOWFLAKE_CREATED_AT", "SNOWFLAKE_UPDATED_AT",
}

var numberColumns = map[string]struct{}{
	"QTY": {}, "SALESPRICE": {}, "ORIGINALPRICE": {}, "LINENUM": {}, "LINECREATIONSEQUENCENUMBER": {},
	"LINEAMOUNT": {}, "LINEAMOUNTMST": {}, "LINEAMOUNTWITHTAXES": {}, "LINEAMOUNTTAX": {}, "LINEAMOUNTTAXMST": {},
	"LINEDISC": {}, "LINEPERCENT": {}, "SUMLINEDISC": {}, "SUMLINEDISCMST": {}, "MULTILNDISC": {},
	"MULTILNPERCENT": {}, "COSTAMOUNTADJUSTMENT": {}, "COSTAMOUNTPOSTED": {}, "COSTAMOUNTPHYSICAL": {}, "DISCPERCENT": {},
	"CONTRIBUTIONMARGIN": {}, "CONTRIBUTIONRATIO": {}, "TENDERTYPEID": {}, "EXCHRATE": {}, "TAXAMOUNTMST": {},
	"ITEMIDSCANNED": {}, "KEYBOARDITEMENTRY": {}, "PRICECHANGE": {},
}

// ColumnType returns how column is compared and rendered.
func ColumnType(column string) normalize.ColumnType {
	if column == ColInvoiceDate {
		return normalize.TypeDate
	}
	if _, ok := numberColumns[column]; ok {
		return normalize.TypeNumber
	}
	return normalize.TypeString
}

// Overrides are applied after field mapping. A present key with a nil value
// sets the column to NULL.
type Overrides map[string]any

// Config holds mapper defaults.
type Config struct {
	// DefaultDataAreaID is used when a source line carries no legal entity.
	DefaultDataAreaID string
}

// Mapper builds processed-line rows from source lines.
type Mapper struct {
	config   Config
	byNormal map[string]string
}

// NewMapper creates a mapper.
func NewMapper(cfg Config) *Mapper {
	byNormal := make(map[string]string, len(Columns))
	for _, col := range Columns {
		byNormal[normalize.NormalizeKey(col)] = col
	}
	return &Mapper{config: cfg, byNormal: byNormal}
}

// MapColumns copies every source field whose normalized name matches a
// processed column. Source keys are visited in sorted order.
func (m *Mapper) MapColumns(source normalize.Record) normalize.Record {
	keys := make([]string, 0, len(source))
	for k := range source {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := make(normalize.Record, len(Columns))
	for _, k := range keys {
		if col, ok := m.byNormal[normalize.NormalizeKey(k)]; ok {
			row[col] = source[k]
		}
	}
	return row
}

// Build maps source onto the processed columns, stamps the sales order id,
// applies overrides, backfills line numbering and finally derives SALESLINEPK.
func (m *Mapper) Build(salesID string, source normalize.Record, overrides Overrides) normalize.Record {
	row := m.MapColumns(source)

	if salesID != "" {
		row[ColSalesID] = salesID
		if normalize.IsFalsy(row[ColDevSalesID]) {
			row[ColDevSalesID] = salesID
		}
	}

	for col, v := range overrides {
		row[col] = v
	}

	idx := normalize.IndexRecord(source)
	backfill := []struct {
		column  string
		aliases []string
	}{
		{ColLineCreationSequenceNumber, []string{"LineCreationSequenceNumber", "LineNumber"}},
		{ColLineNum, []string{"LineNum", "LineNumber"}},
		{ColInvoiceDate, []string{"InvoiceDate"}},
	}
	for _, b := range backfill {
		if !normalize.IsFalsy(row[b.column]) {
			continue
		}
		for _, alias := range b.aliases {
			if v := idx.Get(alias); !normalize.IsFalsy(v) {
				row[b.column] = v
				break
			}
		}
	}

	row[ColSalesLinePK] = saleslinepk.Derive(row)
	return row
}

// FromSource builds the row for an aligned source line. The line number from
// alignment wins over whatever numbering the source carries.
func (m *Mapper) FromSource(salesID string, lineNumber int64, source normalize.Record) normalize.Record {
	idx := normalize.IndexRecord(source)

	overrides := Overrides{
		ColLineCreationSequenceNumber: lineNumber,
		ColLineNum:                    firstPresent(idx, "LineNum", "LineNumber"),
	}

	var dataArea any = firstPresent(idx, "dataAreaId")
	if dataArea == nil && m.config.DefaultDataAreaID != "" {
		dataArea = m.config.DefaultDataAreaID
	}
	overrides[ColDataAreaID] = dataArea

	return m.Build(salesID, source, overrides)
}

// firstPresent returns the first value that is not falsy, counting zero as present.
func firstPresent(idx normalize.Index, names ...string) any {
	for _, name := range names {
		v := idx.Get(name)
		if v == nil {
			continue
		}
		if !normalize.IsFalsy(v) {
			return v
		}
		if _, ok := normalize.Decimal(v); ok {
			return v
		}
	}
	return nil
}
