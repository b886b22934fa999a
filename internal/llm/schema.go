package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns the extraction schema (draft 2020-12 subset) as a generic map.
// Every field may be null; the model is told to use null for absent values.
func BuildInvoiceJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": nullable("string"),
			"quantity":    nullable("number"),
			"unit_price":  nullable("number"),
			"line_total":  nullable("number"),
			"confidence":  confidenceProp(),
		},
		"required": []string{"description", "quantity", "unit_price", "line_total"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"invoice_number": nullable("string"),
			"invoice_date": map[string]any{
				"type":    []string{"string", "null"},
				"pattern": `^\d{4}-\d{2}-\d{2}$`,
			},
			"supplier_name": nullable("string"),
			"currency": map[string]any{
				"type":    []string{"string", "null"},
				"pattern": `^[A-Z]{3}$`,
			},
			"subtotal":   nullable("number"),
			"total":      nullable("number"),
			"confidence": confidenceProp(),
			"line_items": map[string]any{
				"type":  "array",
				"items": lineItem,
			},
		},
		"required": []string{
			"invoice_number", "invoice_date", "supplier_name", "currency",
			"subtotal", "total", "confidence", "line_items",
		},
	}
}

func nullable(typ string) map[string]any {
	return map[string]any{"type": []string{typ, "null"}}
}

func confidenceProp() map[string]any {
	return map[string]any{"type": []string{"number", "null"}, "minimum": 0.0, "maximum": 1.0}
}

var compiledInvoiceSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema(BuildInvoiceJSONSchema())
})

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice.schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("invoice.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateInvoiceJSON checks a model-produced object against the extraction schema.
// Callers treat a mismatch as advisory: coercion still runs on the object.
func ValidateInvoiceJSON(data []byte) error {
	schema, err := compiledInvoiceSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
