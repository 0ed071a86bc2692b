package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"addressd/internal/domain"
)

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiNormalizer asks the Gemini text API to restructure a raw address
// into the strict JSON schema of NormalizedAddress.
type GeminiNormalizer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

const geminiDefaultTimeout = 20 * time.Second

var pinRegexp = regexp.MustCompile(`^[1-9][0-9]{5}$`)

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiNormalizer(opts GeminiOptions) (*GeminiNormalizer, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	return &GeminiNormalizer{
		apiKey:  opts.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Normalize sends the raw address to Gemini and parses the structured reply.
// Any transport, schema or empty-candidate problem surfaces as
// domain.ErrProviderFailure so the caller can refund the reservation.
func (g *GeminiNormalizer) Normalize(ctx context.Context, rawAddress string) (*NormalizedAddress, error) {
	rawAddress = strings.TrimSpace(rawAddress)
	if rawAddress == "" {
		return nil, errors.New("raw address is required")
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildNormalizePrompt(rawAddress)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrProviderFailure, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrProviderFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrProviderFailure, resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderFailure, err)
	}
	text := extractText(out)
	if text == "" {
		return nil, fmt.Errorf("%w: empty candidate", domain.ErrProviderFailure)
	}
	parsed, err := parsePayload(text)
	if err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", domain.ErrProviderFailure, err)
	}
	cleaned := tidyAddress(parsed)
	if cleaned.Line1 == "" || cleaned.City == "" || cleaned.State == "" {
		return nil, fmt.Errorf("%w: unusable result", domain.ErrProviderFailure)
	}
	return cleaned, nil
}

func (g *GeminiNormalizer) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
}

func buildNormalizePrompt(rawAddress string) string {
	sb := &strings.Builder{}
	sb.WriteString("You are an Indian postal address normalization engine. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"line1":string,"line2":string,"locality":string,"city":string,"district":string,"state":string,"pin_code":string,"country":string,"confidence":number}`)
	fmt.Fprintf(sb, ". Expand common abbreviations, fix spellings of city/state names, place the 6-digit PIN in pin_code (empty string if absent), set country to India, and set confidence between 0 and 1. Raw address: %q", rawAddress)
	return sb.String()
}

func extractText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				return text
			}
		}
	}
	return ""
}

func parsePayload(raw string) (*NormalizedAddress, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return nil, errors.New("empty payload")
	}
	var decoded NormalizedAddress
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var titleCaser = cases.Title(language.English)

// tidyAddress normalizes whitespace and casing of the name components and
// clears a PIN that is not six digits.
func tidyAddress(a *NormalizedAddress) *NormalizedAddress {
	out := *a
	out.Line1 = strings.Join(strings.Fields(out.Line1), " ")
	out.Line2 = strings.Join(strings.Fields(out.Line2), " ")
	out.Locality = titleCaser.String(strings.Join(strings.Fields(out.Locality), " "))
	out.City = titleCaser.String(strings.Join(strings.Fields(out.City), " "))
	out.District = titleCaser.String(strings.Join(strings.Fields(out.District), " "))
	out.State = titleCaser.String(strings.Join(strings.Fields(out.State), " "))
	out.PINCode = strings.TrimSpace(out.PINCode)
	if !pinRegexp.MatchString(out.PINCode) {
		out.PINCode = ""
	}
	if strings.TrimSpace(out.Country) == "" {
		out.Country = "India"
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return &out
}

var _ Normalizer = (*GeminiNormalizer)(nil)
