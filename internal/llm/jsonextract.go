package llm

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// LocateJSON returns the greedy outer object candidate: from the first '{' to
// the last '}' in text. ok is false when no such span exists.
func LocateJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ExtractJSON locates and decodes the object in model text. Numbers are kept
// as json.Number so coercion sees the exact digits the model emitted.
// It fails with NoJsonFound or MalformedJson; both carry no raw text, the caller keeps it.
func ExtractJSON(text string) (map[string]any, string, error) {
	candidate, ok := LocateJSON(text)
	if !ok {
		return nil, "", common.NoJSONFoundError()
	}

	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, candidate, common.MalformedJSONError(err)
	}
	// the whole greedy span must be one object, as a strict parser would require
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected content after object")
		}
		return nil, candidate, common.MalformedJSONError(err)
	}
	if obj == nil {
		return nil, candidate, common.MalformedJSONError(errors.New("null object"))
	}
	return obj, candidate, nil
}
