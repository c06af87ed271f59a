package llm

import "context"

// Hints carries what the seller already told us about the item.
type Hints struct {
	Brand string
	Model string
	Year  string
	Extra map[string]string // remaining profile fields, e.g. title_hint or condition
}

// Request is the input to one vision analysis.
type Request struct {
	ImageURL    string // publicly reachable URL of the first uploaded photo
	ImageData   []byte // optional, sent inline instead of fetching ImageURL
	MIMEType    string
	Hints       Hints
	ProfileHint string // domain guidance from the product profile
	Thresholds  string // weight bands rendered for the prompt
}

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Response holds the untyped model output. Only Normalize reads Raw.
type Response struct {
	Raw   string
	Usage Usage
}

// Analyzer can analyze a product photo and return a JSON-like description.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Response, error)
}
