package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"shopchat/internal/config"
	"shopchat/pkg/breaker"
	"shopchat/pkg/log"
)

// Chain tries the primary generator and falls back to the secondary once
type Chain struct {
	primary   Generator
	secondary Generator
}

// Result text produced by a chain and the generator that produced it
type Result struct {
	Text     string
	Provider string
	Fallback bool
}

// NewChain creates a fallback chain. secondary may be nil.
func NewChain(primary, secondary Generator) *Chain {
	return &Chain{primary: primary, secondary: secondary}
}

// Generate returns the primary's text, or the secondary's text (or sentinel)
// when the primary is unavailable. Neither generator is retried.
func (c *Chain) Generate(ctx context.Context, prompt string) Result {
	text := c.primary.Generate(ctx, prompt)
	if !IsUnavailableFrom(c.primary.Name(), text) {
		return Result{Text: text, Provider: c.primary.Name()}
	}
	if c.secondary == nil {
		return Result{Text: text, Provider: c.primary.Name()}
	}

	log.WithFields(map[string]interface{}{
		"primary":   c.primary.Name(),
		"secondary": c.secondary.Name(),
	}).Warn("Primary LLM unavailable, falling back")

	return Result{
		Text:     c.secondary.Generate(ctx, prompt),
		Provider: c.secondary.Name(),
		Fallback: true,
	}
}

// New builds the chain described by cfg. breakers may be nil when the breaker is disabled.
func New(cfg config.LLMConfig, client *http.Client, breakers *breaker.Manager, observer Observer) (*Chain, error) {
	primary, err := newNamed(cfg.Primary, cfg, client, breakers, observer)
	if err != nil {
		return nil, fmt.Errorf("primary llm: %w", err)
	}
	if primary == nil {
		return nil, fmt.Errorf("primary llm: provider is required")
	}
	secondary, err := newNamed(cfg.Secondary, cfg, client, breakers, observer)
	if err != nil {
		return nil, fmt.Errorf("secondary llm: %w", err)
	}
	if secondary == nil {
		return NewChain(primary, nil), nil
	}
	return NewChain(primary, secondary), nil
}

func newNamed(p config.ProviderConfig, cfg config.LLMConfig, client *http.Client, breakers *breaker.Manager, observer Observer) (*Provider, error) {
	opts := []Option{WithTimeout(cfg.Timeout)}
	if observer != nil {
		opts = append(opts, WithObserver(observer))
	}

	name := strings.ToLower(p.Name)
	if cfg.Breaker.Enabled && breakers != nil && name != "" && name != "none" {
		opts = append(opts, WithBreaker(breakers.Get(name)))
	}

	switch name {
	case "groq":
		return NewGroq(p, client, opts...), nil
	case "gemini":
		return NewGemini(p, client, opts...), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", p.Name)
	}
}
