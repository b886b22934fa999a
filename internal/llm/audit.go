package llm

import (
	"encoding/json"
	"strings"
)

// AuditPayload is what gets stored as an invoice's raw output after a parse:
// the model text itself when it is a JSON object, otherwise a wrapper holding
// the coerced fields and the verbatim text.
func AuditPayload(rawText string, coerced map[string]any) json.RawMessage {
	trimmed := strings.TrimSpace(rawText)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	b, err := json.Marshal(map[string]any{
		"parsed":   coerced,
		"raw_text": rawText,
	})
	if err != nil {
		b, _ = json.Marshal(map[string]any{"raw_text": rawText})
	}
	return b
}

// FailurePayload is stored as raw output when an extraction needs review.
func FailurePayload(code, message, rawText string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"error":    code,
		"message":  message,
		"raw_text": rawText,
	})
	return b
}
