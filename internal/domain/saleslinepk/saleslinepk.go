// Package saleslinepk derives the composite SALESLINEPK key that identifies a
// processed sales line in the warehouse.
package saleslinepk

import (
	"strings"

	"github.com/erpsync/salesline-reconciler/internal/domain/normalize"
)

// Separator joins key components.
const Separator = "-"

// Sequence is the ordered list of fields that make up the key.
var Sequence = []string{
	"QTY",
	"INVENTTRANSID",
	"INVENTDIMID",
	"REFCUSTINVOICETRANSRECID",
	"INVOICECODE",
	"INVOICEID",
	"SALESID",
	"DEV_INVOICEID",
	"DEV_SALESID",
	"ITEMID",
	"CONFIGID",
	"INVENTCOLORID",
	"INVENTSIZEID",
	"INVENTSTYLEID",
	"INVENTSTATUSID",
	"INVENTLOCATIONID",
	"LINECREATIONSEQUENCENUMBER",
}

// Derive builds the key from fields. Field names are matched by normalized
// form and missing components render as empty strings, so the result always
// has len(Sequence)-1 separators.
func Derive(fields normalize.Record) string {
	idx := normalize.IndexRecord(fields)
	parts := make([]string, len(Sequence))
	for i, name := range Sequence {
		parts[i] = normalize.Text(idx.Get(name))
	}
	return strings.Join(parts, Separator)
}

// IsBlank reports whether key carries no component data.
func IsBlank(key string) bool {
	return strings.TrimSpace(strings.ReplaceAll(key, Separator, "")) == ""
}
