package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.30
	geminiOutputPricePerMillion = 2.50
)

const maxPartTypeShortLen = 30

const geminiSystemInstruction = "You are a motorcycle and second-hand goods specialist preparing eBay listings."

const geminiPromptTail = `Task: identify the item and ESTIMATE its weight (item only, no packaging).
Respond ONLY with a JSON object with these fields:
- is_motor (true/false): true only if the item is a complete engine
- title (Italian, concise marketplace title, or "N/A")
- part_type (Italian)
- part_type_short (Italian, max %d chars, no brand/model/year)
- color (Italian)
- material (Italian, or "N/A")
- brand, model, part_number (as visible on the item, or "N/A")
- compatible_years (string like "1997-2000" or "N/A")
- estimated_weight_kg (number, decimals allowed, e.g. 0.6)
- weight_class (one of: %s) using these thresholds:
  %s
- description (Italian, 2-3 sentences about condition and features)
- tags (array of short keywords buyers would search for)
If it's an engine (motor), also include:
- engine_type, displacement, bore_stroke, compression_ratio, max_power, max_torque,
- cooling, fuel_system, starter, gearbox, final_drive, recommended_oil, oil_capacity
If unknown, use "N/A". No markdown, no text outside the JSON object.`

// GeminiAnalyzer uses Google's Gemini API for image analysis.
type GeminiAnalyzer struct {
	client  *genai.Client
	model   string
	classes []string
	fetch   *resty.Client
}

// NewGeminiAnalyzer creates a new Gemini-based analyzer. classes lists the
// allowed weight class tags in band order.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, classes []string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiAnalyzer{
		client:  client,
		model:   model,
		classes: classes,
		fetch:   resty.New().SetTimeout(30 * time.Second),
	}, nil
}

// Analyze implements the Analyzer interface using Gemini.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, req Request) (*Response, error) {
	data, mimeType := req.ImageData, req.MIMEType
	if len(data) == 0 {
		if req.ImageURL == "" {
			return nil, errors.New("no image provided")
		}
		var err error
		data, mimeType, err = g.download(ctx, req.ImageURL)
		if err != nil {
			return nil, err
		}
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	parts := []*genai.Part{
		genai.NewPartFromText(buildPrompt(req, g.classes)),
		{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(geminiSystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
		MaxOutputTokens:   2048,
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	}

	log.Info().
		Str("model", g.model).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("vision llm call")

	return &Response{Raw: result.Text(), Usage: usage}, nil
}

func (g *GeminiAnalyzer) download(ctx context.Context, url string) ([]byte, string, error) {
	res, err := g.fetch.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	if res.IsError() {
		return nil, "", fmt.Errorf("failed to download image: status %d", res.StatusCode())
	}
	mimeType := res.Header().Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(res.Body())
	}
	return res.Body(), mimeType, nil
}

func buildPrompt(req Request, classes []string) string {
	var sb strings.Builder
	if req.ProfileHint != "" {
		sb.WriteString(req.ProfileHint)
		sb.WriteString("\n\n")
	}
	sb.WriteString("You will see a photo of the item.\nUser provided:\n")
	fmt.Fprintf(&sb, "- Brand: %s\n", orUnknown(req.Hints.Brand))
	fmt.Fprintf(&sb, "- Model: %s\n", orUnknown(req.Hints.Model))
	fmt.Fprintf(&sb, "- Year: %s\n", orUnknown(req.Hints.Year))

	keys := make([]string, 0, len(req.Hints.Extra))
	for k := range req.Hints.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(req.Hints.Extra[k]); v != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", k, v)
		}
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, geminiPromptTail, maxPartTypeShortLen, strings.Join(classes, ", "), req.Thresholds)
	return sb.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}
