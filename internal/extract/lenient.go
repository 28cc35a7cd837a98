// lenient.go - Tag-by-tag extraction that tolerates malformed model output

package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Extractor turns raw model text into a Record. Implementations never fail;
// missing or broken fields fall back to their defaults.
type Extractor interface {
	Extract(raw string) Record
}

// Lenient searches each tag independently, so the input does not need to be
// well-formed XML as a whole.
type Lenient struct {
	policy []Rule
}

// NewLenient returns a Lenient extractor. A nil policy means DefaultPolicy.
func NewLenient(policy []Rule) *Lenient {
	if policy == nil {
		policy = DefaultPolicy
	}
	return &Lenient{policy: policy}
}

// Extract implements Extractor.
func (l *Lenient) Extract(raw string) Record {
	var rec Record
	values := l.lookup(raw)
	for _, r := range l.policy {
		assign(&rec, r.Field, r.coerce(values[r.Field]))
	}
	return rec
}

// value is a tag's text after coercion by its rule's Kind.
type value struct {
	text   string
	amount Amount
	flag   bool
	score  float64
}

// coerce converts v according to the rule's Kind. A missing or unreadable
// amount falls back to Default, which is unparsed when it is amountFallback.
func (r Rule) coerce(v fieldValue) value {
	switch r.Kind {
	case KindClass:
		return value{text: normalizeClass(v.text)}
	case KindAmount:
		if v.found {
			if n, ok := parseAmount(v.text); ok {
				return value{amount: NewAmount(n)}
			}
		}
		if r.Default != "" && r.Default != amountFallback {
			if n, ok := parseAmount(r.Default); ok {
				return value{amount: NewAmount(n)}
			}
		}
		return value{}
	case KindBool:
		return value{flag: strings.ToUpper(v.text) == "TRUE"}
	case KindScore:
		return value{score: parseScore(v.text)}
	default:
		return value{text: v.text}
	}
}

func assign(rec *Record, f Field, v value) {
	d := &rec.Details
	inv := &d.InvoiceDetails
	switch f {
	case FieldLanguage:
		d.Language = v.text
	case FieldDocumentType:
		d.DocumentType = v.text
	case FieldDate:
		inv.Date = v.text
	case FieldDueDate:
		inv.DueDate = v.text
	case FieldNumber:
		inv.Number = v.text
	case FieldReference:
		inv.Reference = v.text
	case FieldCurrency:
		inv.Currency = v.text
	case FieldTotalAmount:
		inv.Totals.TotalAmount = v.amount
	case FieldNetAmount:
		inv.Totals.NetAmount = v.amount
	case FieldTaxAmount:
		inv.Totals.TaxAmount = v.amount
	case FieldAccountThinking:
		inv.Account.Thinking = v.text
	case FieldAccountCode:
		inv.Account.AccountCode = v.text
	case FieldInvoicePaid:
		d.InvoicePaid = v.flag
	case FieldInvoiceCompany:
		d.InvoiceCompany = v.text
	case FieldConfidenceScore:
		d.ConfidenceScore = v.score
	}
}

type fieldValue struct {
	text  string
	found bool
}

func (l *Lenient) lookup(raw string) map[Field]fieldValue {
	out := make(map[Field]fieldValue, len(l.policy))
	scopes := map[string]string{}
	for _, r := range l.policy {
		src := raw
		if r.Scope != "" {
			s, ok := scopes[r.Scope]
			if !ok {
				s, _ = FindTag(r.Scope, raw)
				scopes[r.Scope] = s
			}
			src = s
		}
		v, ok := FindTag(r.Tag, src)
		if !ok {
			v = r.Default
		}
		out[r.Field] = fieldValue{text: v, found: ok}
	}
	return out
}

var patterns sync.Map

func tagPattern(tag string) *regexp.Regexp {
	if p, ok := patterns.Load(tag); ok {
		return p.(*regexp.Regexp)
	}
	q := regexp.QuoteMeta(tag)
	p := regexp.MustCompile(`(?is)<` + q + `>(.*?)</` + q + `>`)
	actual, _ := patterns.LoadOrStore(tag, p)
	return actual.(*regexp.Regexp)
}

// FindTag returns the trimmed content of the first <tag>...</tag> in text,
// matched case-insensitively and across lines.
func FindTag(tag, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	m := tagPattern(tag).FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func normalizeClass(v string) string {
	switch c := strings.ToUpper(strings.TrimSpace(v)); c {
	case "SALE", "COST", "UNKNOWN":
		return c
	default:
		return "UNKNOWN"
	}
}

// parseAmount accepts plain decimals plus the decorations models tend to
// add: currency symbols or codes, thousands separators, a decimal comma.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = trimCurrencyCode(s)

	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		// Both present: whichever comes last is the decimal separator.
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 == 2 {
			s = s[:comma] + "." + s[comma+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func trimCurrencyCode(s string) string {
	isCode := func(p string) bool {
		if len(p) != 3 {
			return false
		}
		for _, r := range p {
			if r < 'A' || r > 'Z' {
				return false
			}
		}
		return true
	}
	if len(s) > 3 && isCode(strings.ToUpper(s[:3])) && !unicode.IsLetter(rune(s[3])) {
		s = s[3:]
	}
	if n := len(s); n > 3 && isCode(strings.ToUpper(s[n-3:])) && !unicode.IsLetter(rune(s[n-4])) {
		s = s[:n-3]
	}
	return s
}

// parseScore returns a confidence in [0,1]; anything unparseable is 0.
func parseScore(s string) float64 {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if percent {
		v /= 100
	}
	return math.Max(0, math.Min(1, v))
}
