package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveText(t *testing.T) {
	tests := []struct {
		name        string
		resp        *Response
		want        string
		wantVariant string
	}{
		{
			name:        "output_text wins",
			resp:        &Response{OutputText: TextPtr(`{"a":1}`), Output: []OutputItem{{Content: []ContentPart{{Text: TextPtr("ignored")}}}}},
			want:        `{"a":1}`,
			wantVariant: "output_text",
		},
		{
			name: "blank output_text falls through to output items",
			resp: &Response{
				OutputText: TextPtr("   "),
				Output: []OutputItem{
					{Type: "reasoning"},
					{Type: "message", Content: []ContentPart{{Type: "output_text", Text: TextPtr(`{"total":`)}, {Type: "output_text", Text: TextPtr(`10}`)}}},
				},
			},
			want:        `{"total":10}`,
			wantVariant: "output",
		},
		{
			name: "candidates parts are concatenated",
			resp: &Response{Candidates: []Candidate{
				{Content: CandidateContent{Parts: []Part{{Text: TextPtr("Here: ")}, {Text: nil}, {Text: TextPtr(`{"x":"y"}`)}}}},
			}},
			want:        `Here: {"x":"y"}`,
			wantVariant: "candidates",
		},
		{
			name:        "nothing matches, raw body is stringified",
			resp:        &Response{Raw: []byte(`{"status":"incomplete"}`)},
			want:        `{"status":"incomplete"}`,
			wantVariant: "raw",
		},
		{
			name:        "html entities are decoded",
			resp:        &Response{OutputText: TextPtr(`{&quot;supplier_name&quot;:&quot;A &amp; B&quot;}`)},
			want:        `{"supplier_name":"A & B"}`,
			wantVariant: "output_text",
		},
		{
			name:        "nil response",
			resp:        nil,
			want:        "",
			wantVariant: "raw",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, variant := ResolveTextVariant(tt.resp)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantVariant, variant)
		})
	}
}

func TestResolveTextWithoutRawMarshalsStruct(t *testing.T) {
	got := ResolveText(&Response{Output: []OutputItem{{Type: "message"}}})
	assert.Equal(t, `{"output":[{"type":"message"}]}`, got)
}

func TestDecodeResponse(t *testing.T) {
	raw := []byte(`{"id":"resp_1","output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"total\":5}"}]}]}`)
	resp := DecodeResponse("openai", raw)

	assert.Equal(t, "openai", resp.Backend)
	assert.JSONEq(t, string(raw), string(resp.Raw))
	assert.Equal(t, `{"total":5}`, ResolveText(resp))

	gem := DecodeResponse("gemini", []byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{}"}]},"finishReason":"STOP"}]}`))
	assert.Equal(t, "{}", ResolveText(gem))

	odd := DecodeResponse("openai", []byte(`{"output":"not-an-array"}`))
	assert.Nil(t, odd.Output)
	assert.Equal(t, `{"output":"not-an-array"}`, ResolveText(odd))

	notJSON := DecodeResponse("openai", []byte(`upstream says hi`))
	assert.Equal(t, "upstream says hi", ResolveText(notJSON))
}
