package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

var (
	reCurrency  = regexp.MustCompile(`^[A-Z]{3}$`)
	reThousands = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
	one         = decimal.NewFromInt(1)
)

// Coerce normalizes a decoded model object into canonical field types. It is
// pure and a fixed point: Coerce(Coerce(x)) equals Coerce(x). Numbers come out
// as json.Number so they serialize without float rounding.
func Coerce(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}

	coerceText(out, "invoice_number")
	coerceText(out, "supplier_name")
	coerceCurrency(out)
	coerceDate(out)
	coerceAmount(out, "subtotal")
	coerceAmount(out, "total")
	coerceConfidence(out, "confidence")

	items := []any{}
	if arr, ok := out["line_items"].([]any); ok {
		for _, it := range arr {
			if m, ok := it.(map[string]any); ok {
				items = append(items, coerceLineItem(m))
			}
		}
	}
	out["line_items"] = items
	return out
}

func coerceLineItem(in map[string]any) map[string]any {
	item := make(map[string]any, len(in))
	for k, v := range in {
		item[k] = v
	}

	item["description"] = textOrEmpty(item["description"])
	qty := decimalOrZero(item["quantity"])
	price := decimalOrZero(item["unit_price"])
	item["quantity"] = number(qty)
	item["unit_price"] = number(price)
	if lt, ok := toDecimal(item["line_total"]); ok {
		item["line_total"] = number(lt)
	} else {
		item["line_total"] = number(qty.Mul(price))
	}
	coerceConfidence(item, "confidence")
	return item
}

// coerceText keeps non-blank strings (numbers are rendered as text) and drops everything else.
func coerceText(m map[string]any, key string) {
	s := textOrEmpty(m[key])
	if s == "" {
		delete(m, key)
		return
	}
	m[key] = s
}

func textOrEmpty(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return ""
	}
}

func coerceCurrency(m map[string]any) {
	s, _ := m["currency"].(string)
	s = strings.ToUpper(strings.TrimSpace(s))
	if !reCurrency.MatchString(s) {
		delete(m, "currency")
		return
	}
	m["currency"] = s
}

// coerceDate keeps valid YYYY-MM-DD dates; RFC 3339 timestamps are reduced to
// their date. Anything else is dropped rather than stored verbatim.
func coerceDate(m map[string]any) {
	s, _ := m["invoice_date"].(string)
	if d, ok := ParseInvoiceDate(s); ok {
		m["invoice_date"] = d.String()
		return
	}
	delete(m, "invoice_date")
}

// ParseInvoiceDate parses the canonical date form accepted from the model.
func ParseInvoiceDate(s string) (entity.Date, bool) {
	s = strings.TrimSpace(s)
	if d, err := entity.ParseDate(s); err == nil {
		return d, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return entity.NewDate(t), true
	}
	return entity.Date{}, false
}

// coerceAmount leaves absent or null amounts absent; present values that are
// not non-negative numbers become 0.
func coerceAmount(m map[string]any, key string) {
	v, present := m[key]
	if !present || v == nil {
		delete(m, key)
		return
	}
	d, ok := toDecimal(v)
	if !ok || d.IsNegative() {
		d = decimal.Zero
	}
	m[key] = number(d)
}

func coerceConfidence(m map[string]any, key string) {
	d, ok := toDecimal(m[key])
	if !ok {
		delete(m, key)
		return
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	if d.GreaterThan(one) {
		d = one
	}
	m[key] = number(d)
}

func decimalOrZero(v any) decimal.Decimal {
	if d, ok := toDecimal(v); ok {
		return d
	}
	return decimal.Zero
}

// Amounts at or above maxMagnitude, exponent notation and overlong digit
// strings are not usable numbers.
var maxMagnitude = decimal.New(1, 14)

const (
	maxNumberLen = 64
	floatScale   = 18
)

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		return parseDecimal(t.String())
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return bounded(decimal.NewFromFloat(t).Round(floatScale))
	case int:
		return bounded(decimal.NewFromInt(int64(t)))
	case int64:
		return bounded(decimal.NewFromInt(t))
	case decimal.Decimal:
		return bounded(t)
	case string:
		s := strings.TrimSpace(t)
		if reThousands.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		}
		return parseDecimal(s)
	default:
		return decimal.Zero, false
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" || len(s) > maxNumberLen || strings.ContainsAny(s, "eE") {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return bounded(d)
}

func bounded(d decimal.Decimal) (decimal.Decimal, bool) {
	if d.Abs().GreaterThanOrEqual(maxMagnitude) {
		return decimal.Zero, false
	}
	return d, true
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// Extraction is the typed view of a coerced object.
type Extraction struct {
	InvoiceNumber *string
	SupplierName  *string
	InvoiceDate   *entity.Date
	Currency      *string
	Subtotal      *decimal.Decimal
	Total         *decimal.Decimal
	Confidence    *float64
	LineItems     []entity.LineItem

	// Fields is the coerced object the typed view was built from.
	Fields map[string]any
}

// ToExtraction converts the output of Coerce into an Extraction.
func ToExtraction(coerced map[string]any) Extraction {
	ex := Extraction{Fields: coerced}
	if s, ok := coerced["invoice_number"].(string); ok {
		ex.InvoiceNumber = &s
	}
	if s, ok := coerced["supplier_name"].(string); ok {
		ex.SupplierName = &s
	}
	if s, ok := coerced["currency"].(string); ok {
		ex.Currency = &s
	}
	if s, ok := coerced["invoice_date"].(string); ok {
		if d, ok := ParseInvoiceDate(s); ok {
			ex.InvoiceDate = &d
		}
	}
	if d, ok := toDecimal(coerced["subtotal"]); ok {
		ex.Subtotal = &d
	}
	if d, ok := toDecimal(coerced["total"]); ok {
		ex.Total = &d
	}
	ex.Confidence = floatPtr(coerced["confidence"])

	items, _ := coerced["line_items"].([]any)
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		ex.LineItems = append(ex.LineItems, entity.LineItem{
			Position:    i,
			Description: textOrEmpty(m["description"]),
			Quantity:    decimalOrZero(m["quantity"]),
			UnitPrice:   decimalOrZero(m["unit_price"]),
			LineTotal:   decimalOrZero(m["line_total"]),
			Confidence:  floatPtr(m["confidence"]),
		})
	}
	return ex
}

func floatPtr(v any) *float64 {
	d, ok := toDecimal(v)
	if !ok {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

// String summarizes an extraction for logs.
func (e Extraction) String() string {
	return fmt.Sprintf("invoice_number=%s total=%s items=%d", deref(e.InvoiceNumber), decString(e.Total), len(e.LineItems))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
