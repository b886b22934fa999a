package llm

import "encoding/json"

// Response is the union of the reply shapes our backends produce. At most one
// of OutputText, Output and Candidates is usually populated; Raw always holds
// the full body.
type Response struct {
	Backend    string          `json:"-"`
	Raw        json.RawMessage `json:"-"`
	OutputText *string         `json:"output_text,omitempty"`
	Output     []OutputItem    `json:"output,omitempty"`
	Candidates []Candidate     `json:"candidates,omitempty"`
}

// OutputItem is one entry of a Responses API "output" array.
type OutputItem struct {
	Type    string        `json:"type,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

type ContentPart struct {
	Type string  `json:"type,omitempty"`
	Text *string `json:"text,omitempty"`
}

// Candidate is one generateContent candidate (chat choices decode into this too).
type Candidate struct {
	Content      CandidateContent `json:"content"`
	FinishReason string           `json:"finishReason,omitempty"`
}

type CandidateContent struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

type Part struct {
	Text *string `json:"text,omitempty"`
}

// DecodeResponse maps a backend body onto Response. Bodies that do not match
// any known shape keep only Raw, which the resolver then stringifies.
func DecodeResponse(backend string, raw []byte) *Response {
	resp := &Response{Backend: backend, Raw: append(json.RawMessage(nil), raw...)}
	var shape struct {
		OutputText *string      `json:"output_text"`
		Output     []OutputItem `json:"output"`
		Candidates []Candidate  `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &shape); err == nil {
		resp.OutputText = shape.OutputText
		resp.Output = shape.Output
		resp.Candidates = shape.Candidates
	}
	return resp
}

// TextPtr is a small helper for building responses.
func TextPtr(s string) *string { return &s }
