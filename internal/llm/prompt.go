package llm

import (
	"encoding/json"
	"strings"
)

// PromptInput carries the document in one of three forms: normalized text,
// an embedded base64 payload, or a native attachment sent next to the prompt.
type PromptInput struct {
	MIMEType string
	Text     string
	Base64   string
	Attached bool
}

// BuildPrompt renders the single instruction string sent to every backend.
func BuildPrompt(in PromptInput) string {
	parts := []string{
		"You are an invoice data extraction engine.",
		"Return ONLY a single JSON object that matches the JSON Schema below. Do not add prose, explanations or markdown code fences.",
		"Fields: invoice_number, invoice_date, supplier_name, currency, subtotal, total, confidence (0..1, your overall certainty) and line_items, where each line item has description, quantity, unit_price, line_total and confidence.",
		"If a field is absent from the document, set it to null.",
		"Numeric fields (subtotal, total, quantity, unit_price, line_total, confidence) must be JSON numbers, never strings, without currency symbols or thousands separators.",
		"Dates must use the format YYYY-MM-DD.",
		"currency must be a 3-letter ISO 4217 code.",
		"Use an empty array for line_items when no itemized charges are visible.",
	}

	var b strings.Builder
	b.WriteString(strings.Join(parts, "\n"))
	b.WriteString("\n\nJSON Schema:\n")
	b.WriteString(mustJSON(BuildInvoiceJSONSchema()))
	b.WriteString("\n\nDocument MIME type: ")
	b.WriteString(in.MIMEType)
	b.WriteString("\n")

	switch {
	case in.Attached:
		b.WriteString("The document is attached to this message.\n")
	case in.Base64 != "":
		b.WriteString("Document content (base64):\n")
		b.WriteString(in.Base64)
		b.WriteString("\n")
	default:
		b.WriteString("Document text:\n")
		b.WriteString(in.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
