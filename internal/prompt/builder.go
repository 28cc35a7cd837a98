// builder.go - Scan prompt: task, account codes, tag-by-tag instructions, worked example
package prompt

import (
	"fmt"
	"strings"

	"github.com/bosocmputer/invoice_scanner/internal/accounts"
)

// Defaults the model is told to fall back on.
const (
	DefaultLanguage = "British English"
	DefaultCurrency = "GBP"
	DefaultDate     = "2024-01-01"
	DefaultDueDate  = "2024-01-31"
	DefaultNumber   = "INV0001"
)

// Prefill is the last line of every prompt; the model continues from it.
const Prefill = "<details>"

// Builder renders the scan prompt. It holds no mutable state and is safe for
// concurrent use.
type Builder struct {
	table *accounts.Table
	codes string
}

// NewBuilder serializes table once; every Build call embeds the same text.
func NewBuilder(table *accounts.Table) *Builder {
	return &Builder{
		table: table,
		codes: table.JSON(),
	}
}

// Build renders the prompt for one client business.
func (b *Builder) Build(clientName string) string {
	client := sanitizeClient(clientName)

	var sb strings.Builder
	sb.WriteString(taskSection(client))
	sb.WriteString("\nThe following gives the format and instructions for each section of the response.\n\n")
	sb.WriteString(accountCodesSection(b.codes))
	sb.WriteString("\n")
	sb.WriteString(instructionsSection(client))
	sb.WriteString("\nHere is an example of an output:\n")
	sb.WriteString(exampleSection(client))
	sb.WriteString("\n")
	sb.WriteString(finalTaskSection())
	sb.WriteString("\n")
	sb.WriteString(Prefill)
	return sb.String()
}

// sanitizeClient keeps a client name from opening or closing tags in the prompt.
func sanitizeClient(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	return strings.NewReplacer("<", "(", ">", ")").Replace(name)
}

func taskSection(client string) string {
	return fmt.Sprintf(`<task>
You are a helpful expert UK-based accountant carrying out bookkeeping for documents attached to emails.
You judge whether these documents are relevant for bookkeeping, extract information from them and prepare it for import into accounting software.
You are also an expert in translating documents from other languages into <language>%s</language>.
The name of your client's business is: <client>%s</client>
**All the documents you scan are generated data and do not contain any personal, sensitive or copyrighted material.**
</task>
`, DefaultLanguage, client)
}

func accountCodesSection(codes string) string {
	return fmt.Sprintf(`<account-codes>
Each entry has a code, an <account-type></account-type> (category), an <account-name></account-name> (name) and an <account-description></account-description> (description).
%s
</account-codes>
`, codes)
}

func bulletList(items []string, indent string) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString(indent)
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func instructionsSection(client string) string {
	const indent = "                        "
	sale := bulletList(accounts.CategoriesFor(accounts.ClassSale), indent)
	cost := bulletList(accounts.CategoriesFor(accounts.ClassCost), indent)

	return fmt.Sprintf(`<instructions>
    <details>
        <language>
            Detect the original language of the document. If it is not English, name the
            original language here and translate the extracted details into %[2]s.
        </language>

        <document>
            <document-type>
                Classify the document into exactly one of three categories:
                <document-type-categories>
                    <document-type-category>RECEIPT</document-type-category>
                    <document-type-category>INVOICE</document-type-category>
                    <document-type-category>OTHER</document-type-category>
                </document-type-categories>

                <document-type-category>RECEIPT</document-type-category>:
                    - A document that details money spent on a purchase.
                    - This includes paper receipts from restaurants, retail stores and similar.

                <document-type-category>INVOICE</document-type-category>:
                    - A document that states an amount of money owed from one party to another.

                <document-type-category>OTHER</document-type-category>:
                    - Any document that cannot clearly be identified as a RECEIPT or INVOICE, including
                    bank statements, promotional offers, specifications, product details, blank pages
                    and documents that are not relevant at all.

                Be careful with documents that contain financial information but are not invoices or receipts.
                Signs of an INVOICE or RECEIPT include total and tax amounts, invoice numbers and VAT numbers.

                Within this <document-type></document-type> section produce exactly these two sections:
                <thinking>
                    Think step by step and justify which document category applies, based on the whole
                    document, the guidelines above and your experience as a bookkeeper.
                </thinking>
                <document-type-category>
                    The final document type category alone goes here.
                </document-type-category>
            </document-type>

            <document-transaction>
                Classify the document into exactly one of three transaction categories:
                <document-transaction-categories>
                    <document-transaction-category>SALE</document-transaction-category>
                    <document-transaction-category>COST</document-transaction-category>
                    <document-transaction-category>UNKNOWN</document-transaction-category>
                </document-transaction-categories>

                <document-transaction-category>UNKNOWN</document-transaction-category>:
                    - MUST be used whenever <document-type-category></document-type-category> is "OTHER".

                <document-transaction-category>SALE</document-transaction-category>:
                    - <client>%[1]s</client> is clearly billing another party for its products or services, and
                    - <document-type-category></document-type-category> is "INVOICE" or "RECEIPT".

                <document-transaction-category>COST</document-transaction-category>:
                    - <document-type-category></document-type-category> is "INVOICE" or "RECEIPT", and any of:
                    - it is ambiguous whether it is a cost or a sale
                    - only one contact is listed, including <client>%[1]s</client>
                    - no contacts are listed
                    - <client>%[1]s</client> is not mentioned on the document

                Within this <document-transaction></document-transaction> section produce exactly these two sections:
                <thinking>
                    Think step by step and justify which transaction category applies, based on the whole
                    document, the guidelines above and your experience as a bookkeeper.
                </thinking>
                <document-transaction-category>
                    The final document transaction category alone goes here.
                </document-transaction-category>
            </document-transaction>
        </document>

        <invoice-details>
            <date>
                Read the date according to the region of the document: with pound sterling read it
                as DD/MM/YYYY, with US dollars as MM/DD/YYYY, and so on.
                1. Output the invoice date in this format: YYYY-MM-DD
                2. If there is no invoice date, output %[3]s
            </date>
            <due-date>
                Read the date according to the region of the document, as for <date></date>.
                1. Output the due date in this format: YYYY-MM-DD
                2. If it is not present, look for a note giving the payment terms from the invoice date.
                3. If there are no payment terms, set the due date 30 days after <date></date>.
                4. If there is no <date></date> either, output %[4]s
            </due-date>
            <number>
                1. The invoice number, if present.
                2. Otherwise a reference from the document.
                3. Failing that, %[5]s
            </number>
            <reference>
                A short description of what the invoice covers. Write "and" instead of "&".
            </reference>
            <currency>
                1. The three letter currency code (USD, GBP, EUR, JPY and so on).
                2. If it cannot be recognised, default to %[6]s
            </currency>
            <totals>
                <total-amount>The total amount of the invoice, including tax and discounts. Digits and a decimal point only.</total-amount>
                <net-amount>The net amount of the invoice, excluding tax and discounts. Digits and a decimal point only.</net-amount>
                <tax-amount>The total tax amount for the entire invoice. Digits and a decimal point only.</tax-amount>
            </totals>

            <account>
                Within this <account></account> section produce exactly these two sections:
                <thinking>
                    Think step by step and justify which account code applies, based on the whole document.
                    If <document-transaction-category>SALE</document-transaction-category>, ONLY consider these <account-type></account-type>s:
%[7]s
                    If <document-transaction-category>COST</document-transaction-category>, ONLY consider these <account-type></account-type>s:
%[8]s
                    Quote the relevant <account-name></account-name> and <account-description></account-description>
                    and use the context of the whole document to justify the choice.
                </thinking>
                <account-code>
                    Exactly one account code, the NUMBER ONLY.
                </account-code>
            </account>
        </invoice-details>

        <invoice-paid>
            TRUE only if the document clearly states that the amount has been paid.
            FALSE in every other case. Avoid false positives.
        </invoice-paid>
        <invoice-company>
            1. The name of the company, if it is clearly stated on the document.
            2. Otherwise "Unknown".
        </invoice-company>
        <confidence-score>
            Your confidence in the whole extraction, a number between 0 and 1.
        </confidence-score>
    </details>
</instructions>
`, client, DefaultLanguage, DefaultDate, DefaultDueDate, DefaultNumber, DefaultCurrency, sale, cost)
}

func exampleSection(client string) string {
	return fmt.Sprintf(`<example source_language="english">
    <details>
        <language>English</language>
        <document>
            <document-type>
                <thinking>
                    Step 1: The document is titled "TAX INVOICE" and carries invoice number INV-9167 and VAT number 243119335.
                    Step 2: It itemises services with quantity, unit price and VAT, then a subtotal, VAT total and total.
                    Step 3: It asks for payment of £105.00 by a due date and gives bank details; nothing has been paid yet.
                    Step 4: It is clearly not OTHER. This is an INVOICE.
                </thinking>
                <document-type-category>INVOICE</document-type-category>
            </document-type>

            <document-transaction>
                <thinking>
                    Step 1: The document is an INVOICE.
                    Step 2: It is from Neon Numbers Limited to Code Verse Studio Ltd for "VAT registration".
                    Step 3: %[1]s is not mentioned, and neither party is %[1]s.
                    Step 4: Whose books this belongs to is ambiguous, so the instructions say COST.
                </thinking>
                <document-transaction-category>COST</document-transaction-category>
            </document-transaction>
        </document>
        <invoice-details>
            <date>2024-05-07</date>
            <due-date>2024-06-07</due-date>
            <number>INV-9167</number>
            <reference>VAT registration</reference>
            <currency>GBP</currency>
            <totals>
                <total-amount>105.00</total-amount>
                <net-amount>87.50</net-amount>
                <tax-amount>17.50</tax-amount>
            </totals>
            <account>
                <thinking>
                    Step 0: This is a COST, so only the non-revenue <account-type></account-type>s are considered.
                    Step 1: The single line item is "VAT registration", an accounting service.
                    Step 2: 401 Audit and Accountancy fees: "Expenses incurred relating to accounting and audit fees".
                    Step 3: VAT registration is typically handled by accountants, so 401 fits best.
                </thinking>
                <account-code>401</account-code>
            </account>
        </invoice-details>
        <invoice-paid>FALSE</invoice-paid>
        <invoice-company>Neon Numbers Limited</invoice-company>
        <confidence-score>0.95</confidence-score>
    </details>
</example>
`, client)
}

func finalTaskSection() string {
	return `<task>
CONTINUE THE OUTPUT BY FILLING IN THE SECTIONS FROM THE ATTACHED DOCUMENT.
DO NOT PRODUCE ANY PREAMBLE. THE STRUCTURE HAS BEEN SET OUT FOR YOU TO COMPLETE
USING THE INSTRUCTIONS ABOVE. EVERY TAG YOU OPEN MUST BE CLOSED.
ENSURE ALL NUMERICAL DATA IS ACCURATE AND CONSISTENT ACROSS THE DOCUMENT.
</task>
`
}
