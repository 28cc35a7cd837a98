// accounts.go - Chart of account codes offered to the model and validated after extraction

package accounts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

//go:embed codes.json
var defaultCodes []byte

// Transaction classes produced by the extractor.
const (
	ClassSale    = "SALE"
	ClassCost    = "COST"
	ClassUnknown = "UNKNOWN"
)

// Categories allowed for each transaction class.
var (
	saleCategories = []string{"Revenue"}
	costCategories = []string{
		"Direct Costs",
		"Overhead",
		"Expense",
		"Current Asset",
		"Inventory",
		"Fixed Asset",
		"Current Liability",
		"Non-current Liability",
		"Equity",
	}
)

// Code is one entry of the account code table.
type Code struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Table is a read-only account code table. Safe for concurrent use.
type Table struct {
	codes  []Code
	byCode map[string]Code
}

// Default loads the embedded chart of accounts.
func Default() (*Table, error) {
	return Parse(defaultCodes)
}

// MustDefault is Default for program start-up.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// Parse builds a table from a JSON array of codes.
func Parse(data []byte) (*Table, error) {
	var codes []Code
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, fmt.Errorf("failed to parse account codes: %w", err)
	}
	return New(codes)
}

// New builds a table from codes. Duplicate or empty codes are rejected.
func New(codes []Code) (*Table, error) {
	t := &Table{
		codes:  make([]Code, 0, len(codes)),
		byCode: make(map[string]Code, len(codes)),
	}
	for _, c := range codes {
		c.Code = strings.TrimSpace(c.Code)
		if c.Code == "" {
			return nil, fmt.Errorf("account code with empty code (name %q)", c.Name)
		}
		if _, dup := t.byCode[c.Code]; dup {
			return nil, fmt.Errorf("duplicate account code %s", c.Code)
		}
		t.byCode[c.Code] = c
		t.codes = append(t.codes, c)
	}
	sort.SliceStable(t.codes, func(i, j int) bool { return t.codes[i].Code < t.codes[j].Code })
	return t, nil
}

// All returns a copy of every code in code order.
func (t *Table) All() []Code {
	out := make([]Code, len(t.codes))
	copy(out, t.codes)
	return out
}

// Len returns the number of codes.
func (t *Table) Len() int {
	return len(t.codes)
}

// Lookup returns the entry for code.
func (t *Table) Lookup(code string) (Code, bool) {
	c, ok := t.byCode[strings.TrimSpace(code)]
	return c, ok
}

// CategoriesFor returns the categories an account code may come from for a
// transaction class. UNKNOWN (and anything else) allows every category.
func CategoriesFor(class string) []string {
	switch strings.ToUpper(strings.TrimSpace(class)) {
	case ClassSale:
		return append([]string(nil), saleCategories...)
	case ClassCost:
		return append([]string(nil), costCategories...)
	default:
		all := make([]string, 0, len(saleCategories)+len(costCategories))
		all = append(all, saleCategories...)
		return append(all, costCategories...)
	}
}

// Allowed reports whether code exists and its category is permitted for class.
func (t *Table) Allowed(class, code string) bool {
	c, ok := t.Lookup(code)
	if !ok {
		return false
	}
	for _, cat := range CategoriesFor(class) {
		if cat == c.Category {
			return true
		}
	}
	return false
}

// JSON returns the table serialized as an indented list of
// code/category/name/description records, as embedded in the prompt.
func (t *Table) JSON() string {
	type entry struct {
		Code        string `json:"code"`
		Category    string `json:"category"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	entries := make([]entry, len(t.codes))
	for i, c := range t.codes {
		entries[i] = entry{Code: c.Code, Category: c.Category, Name: c.Name, Description: c.Description}
	}
	b, _ := json.MarshalIndent(entries, "", "  ")
	return string(b)
}
