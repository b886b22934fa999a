package llm

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

type resolver struct {
	variant string
	resolve func(*Response) (string, bool)
}

// resolvers run in priority order; the first non-blank payload wins.
var resolvers = []resolver{
	{variant: "output_text", resolve: fromOutputText},
	{variant: "output", resolve: fromOutputItems},
	{variant: "candidates", resolve: fromCandidates},
}

// ResolveText returns the best textual payload of resp, html-unescaped. It
// never panics: any internal failure falls back to the stringified response.
func ResolveText(resp *Response) (text string) {
	text, _ = ResolveTextVariant(resp)
	return text
}

// ResolveTextVariant is ResolveText that also reports which variant matched
// ("raw" when the whole response was stringified).
func ResolveTextVariant(resp *Response) (text, variant string) {
	defer func() {
		if r := recover(); r != nil {
			text, variant = html.UnescapeString(stringify(resp)), "raw"
		}
	}()
	if resp == nil {
		return "", "raw"
	}
	for _, r := range resolvers {
		if s, ok := r.resolve(resp); ok {
			return html.UnescapeString(s), r.variant
		}
	}
	return html.UnescapeString(stringify(resp)), "raw"
}

func fromOutputText(resp *Response) (string, bool) {
	if resp.OutputText == nil || strings.TrimSpace(*resp.OutputText) == "" {
		return "", false
	}
	return *resp.OutputText, true
}

func fromOutputItems(resp *Response) (string, bool) {
	var b strings.Builder
	for _, item := range resp.Output {
		for _, part := range item.Content {
			if part.Text != nil {
				b.WriteString(*part.Text)
			}
		}
	}
	s := b.String()
	return s, strings.TrimSpace(s) != ""
}

func fromCandidates(resp *Response) (string, bool) {
	var b strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.Text != nil {
				b.WriteString(*p.Text)
			}
		}
	}
	s := b.String()
	return s, strings.TrimSpace(s) != ""
}

func stringify(resp *Response) string {
	if resp == nil {
		return ""
	}
	if len(resp.Raw) > 0 {
		return string(resp.Raw)
	}
	if b, err := json.Marshal(resp); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%+v", *resp)
}
