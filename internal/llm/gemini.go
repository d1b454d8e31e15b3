package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"shopchat/internal/config"
)

const (
	// GeminiName display name used in the Gemini sentinel
	GeminiName = "Gemini"

	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-2.5-pro"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// gemini generateContent REST API
type gemini struct {
	client *http.Client
	url    string
	apiKey string
}

// NewGemini creates the Gemini provider
func NewGemini(cfg config.ProviderConfig, client *http.Client, opts ...Option) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	base := cfg.BaseURL
	if base == "" {
		base = geminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = geminiModel
	}
	b := &gemini{
		client: client,
		url:    joinURL(base, "/models/"+url.PathEscape(model)+":generateContent"),
		apiKey: cfg.APIKey,
	}
	return newProvider(GeminiName, b, cfg.APIKey, "GEMINI_API_KEY", opts)
}

func (g *gemini) complete(ctx context.Context, prompt string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	var resp geminiResponse
	headers := map[string]string{"x-goog-api-key": g.apiKey}
	if err := postJSON(ctx, g.client, g.url, headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
