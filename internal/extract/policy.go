// policy.go - Field to tag mapping and the default used when a tag is missing

package extract

// Field identifies one extracted value.
type Field string

const (
	FieldLanguage        Field = "language"
	FieldDocumentType    Field = "documentType"
	FieldDate            Field = "invoiceDetails.date"
	FieldDueDate         Field = "invoiceDetails.dueDate"
	FieldNumber          Field = "invoiceDetails.number"
	FieldReference       Field = "invoiceDetails.reference"
	FieldCurrency        Field = "invoiceDetails.currency"
	FieldTotalAmount     Field = "invoiceDetails.totals.totalAmount"
	FieldNetAmount       Field = "invoiceDetails.totals.netAmount"
	FieldTaxAmount       Field = "invoiceDetails.totals.taxAmount"
	FieldAccountThinking Field = "invoiceDetails.account.thinking"
	FieldAccountCode     Field = "invoiceDetails.account.accountCode"
	FieldInvoicePaid     Field = "invoicePaid"
	FieldInvoiceCompany  Field = "invoiceCompany"
	FieldConfidenceScore Field = "confidenceScore"
)

// Kind says how the raw tag text is coerced.
type Kind int

const (
	KindText Kind = iota
	KindClass
	KindAmount
	KindBool
	KindScore
)

// accountScope is the enclosing tag searched before account fields.
const accountScope = "account"

// Rule binds a field to the tag it is read from, how its text is coerced and
// the text used when the tag is missing. For KindAmount the default also
// replaces an unreadable value; amountFallback keeps the amount unparsed.
type Rule struct {
	Field Field
	Tag   string
	// Scope, when set, restricts the search to the first <Scope>...</Scope> block.
	Scope   string
	Kind    Kind
	Default string
}

// DefaultPolicy is the tag layout the scan prompt asks the model to produce.
var DefaultPolicy = []Rule{
	{Field: FieldLanguage, Tag: "language", Kind: KindText},
	{Field: FieldDocumentType, Tag: "document-transaction-category", Kind: KindClass, Default: "UNKNOWN"},
	{Field: FieldDate, Tag: "date", Kind: KindText},
	{Field: FieldDueDate, Tag: "due-date", Kind: KindText},
	{Field: FieldNumber, Tag: "number", Kind: KindText},
	{Field: FieldReference, Tag: "reference", Kind: KindText},
	{Field: FieldCurrency, Tag: "currency", Kind: KindText},
	{Field: FieldTotalAmount, Tag: "total-amount", Kind: KindAmount, Default: amountFallback},
	{Field: FieldNetAmount, Tag: "net-amount", Kind: KindAmount, Default: amountFallback},
	{Field: FieldTaxAmount, Tag: "tax-amount", Kind: KindAmount, Default: amountFallback},
	{Field: FieldAccountThinking, Tag: "thinking", Scope: accountScope, Kind: KindText},
	{Field: FieldAccountCode, Tag: "account-code", Scope: accountScope, Kind: KindText},
	{Field: FieldInvoicePaid, Tag: "invoice-paid", Kind: KindBool},
	{Field: FieldInvoiceCompany, Tag: "invoice-company", Kind: KindText},
	{Field: FieldConfidenceScore, Tag: "confidence-score", Kind: KindScore, Default: "0.0"},
}
