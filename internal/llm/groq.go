package llm

import (
	"context"
	"net/http"

	"shopchat/internal/config"
)

const (
	// GroqName display name used in the Groq sentinel
	GroqName = "Groq"

	groqBaseURL = "https://api.groq.com/openai/v1"
	groqModel   = "llama-3.1-8b-instant"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// groq OpenAI-compatible chat completions
type groq struct {
	client *http.Client
	url    string
	apiKey string
	model  string
}

// NewGroq creates the Groq provider
func NewGroq(cfg config.ProviderConfig, client *http.Client, opts ...Option) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	base := cfg.BaseURL
	if base == "" {
		base = groqBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = groqModel
	}
	b := &groq{
		client: client,
		url:    joinURL(base, "/chat/completions"),
		apiKey: cfg.APIKey,
		model:  model,
	}
	return newProvider(GroqName, b, cfg.APIKey, "GROQ_API_KEY", opts)
}

func (g *groq) complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:    g.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}
	if err := postJSON(ctx, g.client, g.url, headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
