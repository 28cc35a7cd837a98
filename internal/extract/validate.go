// validate.go - Post-extraction checks reported alongside the record

package extract

import (
	"fmt"
	"math"

	"github.com/bosocmputer/invoice_scanner/internal/accounts"
)

// Validate returns human-readable warnings about a record. The record itself
// is never changed; warnings are advisory for whoever reviews the draft.
func Validate(rec Record, table *accounts.Table) []string {
	var warnings []string
	d := rec.Details
	inv := d.InvoiceDetails

	code := inv.Account.AccountCode
	switch {
	case code == "":
		warnings = append(warnings, "account code missing")
	case table != nil:
		if c, ok := table.Lookup(code); !ok {
			warnings = append(warnings, fmt.Sprintf("account code %s is not in the chart of accounts", code))
		} else if !table.Allowed(d.DocumentType, code) {
			warnings = append(warnings, fmt.Sprintf("account code %s (%s) is not allowed for a %s document", code, c.Category, d.DocumentType))
		}
	}

	t := inv.Totals
	if !t.TotalAmount.Parsed {
		warnings = append(warnings, "total amount could not be read")
	}
	if t.TotalAmount.Parsed && t.NetAmount.Parsed && t.TaxAmount.Parsed {
		if math.Abs(t.NetAmount.Value+t.TaxAmount.Value-t.TotalAmount.Value) > 0.01 {
			warnings = append(warnings, fmt.Sprintf("net %s + tax %s does not equal total %s", t.NetAmount, t.TaxAmount, t.TotalAmount))
		}
	}

	if d.DocumentType == accounts.ClassUnknown {
		warnings = append(warnings, "document transaction class is UNKNOWN")
	}
	return warnings
}

// Result is a record together with its validation warnings.
type Result struct {
	Record       Record   `json:"record"`
	Warnings     []string `json:"warnings"`
	AccountValid bool     `json:"accountValid"`
}

// Run extracts raw with x and validates the outcome against table.
func Run(x Extractor, raw string, table *accounts.Table) Result {
	rec := x.Extract(raw)
	res := Result{Record: rec, Warnings: Validate(rec, table)}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	if table != nil {
		res.AccountValid = table.Allowed(rec.Details.DocumentType, rec.Details.InvoiceDetails.Account.AccountCode)
	}
	return res
}
