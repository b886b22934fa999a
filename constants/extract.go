package constants

// Extraction modes select how a document reaches the model.
const (
	ExtractModeText   = "text"   // extracted text only
	ExtractModeInline = "inline" // raw file bytes, base64 encoded
	ExtractModeAuto   = "auto"   // text when usable, inline otherwise
)

// Model backends.
const (
	BackendOpenAI     = "openai"
	BackendOpenAIChat = "openai-chat"
	BackendGemini     = "gemini"
)

// DefaultTextMaxChars is the prompt budget for normalized document text.
const DefaultTextMaxChars = 30000
