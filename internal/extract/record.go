// record.go - Extraction record schema returned for every model response

package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is the canonical bookkeeping record. Every key is always present.
type Record struct {
	Details Details `json:"details" bson:"details"`
}

type Details struct {
	Language        string         `json:"language" bson:"language"`
	DocumentType    string         `json:"documentType" bson:"document_type"`
	InvoiceDetails  InvoiceDetails `json:"invoiceDetails" bson:"invoice_details"`
	InvoicePaid     bool           `json:"invoicePaid" bson:"invoice_paid"`
	InvoiceCompany  string         `json:"invoiceCompany" bson:"invoice_company"`
	ConfidenceScore float64        `json:"confidenceScore" bson:"confidence_score"`
}

type InvoiceDetails struct {
	Date      string  `json:"date" bson:"date"`
	DueDate   string  `json:"dueDate" bson:"due_date"`
	Number    string  `json:"number" bson:"number"`
	Reference string  `json:"reference" bson:"reference"`
	Currency  string  `json:"currency" bson:"currency"`
	Totals    Totals  `json:"totals" bson:"totals"`
	Account   Account `json:"account" bson:"account"`
}

type Totals struct {
	TotalAmount Amount `json:"totalAmount" bson:"total_amount"`
	NetAmount   Amount `json:"netAmount" bson:"net_amount"`
	TaxAmount   Amount `json:"taxAmount" bson:"tax_amount"`
}

type Account struct {
	Thinking    string `json:"thinking" bson:"thinking"`
	AccountCode string `json:"accountCode" bson:"account_code"`
}

// amountFallback is what an unparseable amount serializes to.
const amountFallback = "0.0"

// Amount is a monetary value that may have failed to parse. A parsed amount
// marshals as a JSON number, an unparsed one as the string "0.0".
type Amount struct {
	Value  float64 `bson:"value"`
	Parsed bool    `bson:"parsed"`
}

// NewAmount returns a parsed amount.
func NewAmount(v float64) Amount {
	return Amount{Value: v, Parsed: true}
}

func (a Amount) String() string {
	if !a.Parsed {
		return amountFallback
	}
	return strconv.FormatFloat(a.Value, 'f', -1, 64)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Parsed {
		return json.Marshal(amountFallback)
	}
	return json.Marshal(a.Value)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if v, ok := parseAmount(s); ok && s != amountFallback {
			*a = NewAmount(v)
			return nil
		}
		*a = Amount{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = NewAmount(v)
	return nil
}
