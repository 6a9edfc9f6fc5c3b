package saleslinepk

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
	"github.com/stretchr/testify/assert"
)

func TestDerive_FullRecord(t *testing.T) {
	fields := normalize.Record{
		"QTY":                        2.0,
		"INVENTTRANSID":              "IT-9",
		"INVENTDIMID":                "DIM-1",
		"REFCUSTINVOICETRANSRECID":   json.Number("5637144576"),
		"INVOICECODE":                "B",
		"INVOICEID":                  "INV-1",
		"SALESID":                    "SO-1",
		"DEV_INVOICEID":              "",
		"DEV_SALESID":                "SO-1",
		"ITEMID":                     "A-1",
		"CONFIGID":                   nil,
		"INVENTCOLORID":              "RED",
		"INVENTSIZEID":               "M",
		"INVENTSTYLEID":              "",
		"INVENTSTATUSID":             "AV",
		"INVENTLOCATIONID":           "WH1",
		"LINECREATIONSEQUENCENUMBER": int64(1),
	}

	got := Derive(fields)

	assert.Equal(t, "2-IT-9-DIM-1-5637144576-B-INV-1-SO-1--SO-1-A-1--RED-M--AV-WH1-1", got)
}

func TestDerive_CaseInsensitiveFieldNames(t *testing.T) {
	upper := normalize.Record{"QTY": 1.0, "SALESID": "SO-1", "ITEMID": "A-1", "LINECREATIONSEQUENCENUMBER": 3}
	mixed := normalize.Record{"Qty": 1.0, "SalesId": "SO-1", "itemId": "A-1", "LineCreationSequenceNumber": 3}

	assert.Equal(t, Derive(upper), Derive(mixed))
}

func TestDerive_EmptyRecord(t *testing.T) {
	got := Derive(normalize.Record{})

	assert.Equal(t, len(Sequence)-1, strings.Count(got, Separator))
	assert.True(t, IsBlank(got))
}

func TestDerive_Deterministic(t *testing.T) {
	fields := normalize.Record{"SALESID": "SO-1", "salesId": "SO-2", "QTY": 1.5}

	first := Derive(fields)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Derive(fields))
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank("----"))
	assert.True(t, IsBlank(" - - "))
	assert.False(t, IsBlank("--SO-1--"))
}

func TestDerive_NumberEncodingsAgree(t *testing.T) {
	fromERP := normalize.Record{"Qty": json.Number("2.0"), "SalesId": "SO-1", "LineCreationSequenceNumber": json.Number("1.00")}
	fromWarehouse := normalize.Record{"QTY": 2.0, "SALESID": "SO-1", "LINECREATIONSEQUENCENUMBER": int16(1)}

	assert.Equal(t, Derive(fromWarehouse), Derive(fromERP))
	assert.True(t, strings.HasPrefix(Derive(fromERP), "2-"))
}
