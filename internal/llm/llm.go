// Package llm calls language model backends. Provider failures never surface as
// errors: they become an "unavailable" sentinel string so the caller can fall
// back or store the sentinel as the reply.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shopchat/pkg/breaker"
	"shopchat/pkg/log"
)

// ErrEmptyResponse backend answered without any text
var ErrEmptyResponse = errors.New("empty response")

// Generator generate(prompt) -> text capability. The text is either the model
// output or an unavailable sentinel.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) string
}

// backend one wire protocol
type backend interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// Observer receives the outcome of every provider call
type Observer func(provider string, ok bool, elapsed time.Duration)

// Unavailable formats the sentinel returned when provider could not answer
func Unavailable(provider string, reason interface{}) string {
	return fmt.Sprintf("[%s unavailable: %v]", provider, reason)
}

// knownProviders names whose sentinels IsUnavailable recognizes
var knownProviders = []string{GroqName, GeminiName}

// IsUnavailable reports whether text is the sentinel of a known provider
func IsUnavailable(text string) bool {
	for _, name := range knownProviders {
		if IsUnavailableFrom(name, text) {
			return true
		}
	}
	return false
}

// IsUnavailableFrom reports whether text is the sentinel of provider
func IsUnavailableFrom(provider, text string) bool {
	return strings.HasPrefix(text, "["+provider+" unavailable: ") && strings.HasSuffix(text, "]")
}

// Provider a backend wrapped with a per-call timeout and an optional breaker
type Provider struct {
	name     string
	backend  backend
	timeout  time.Duration
	breaker  *breaker.CircuitBreaker
	observer Observer
	missing  string
}

// Option configures a Provider
type Option func(*Provider)

// WithTimeout bounds every call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithBreaker guards calls with cb
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(p *Provider) { p.breaker = cb }
}

// WithObserver reports call outcomes to fn
func WithObserver(fn Observer) Option {
	return func(p *Provider) { p.observer = fn }
}

func newProvider(name string, b backend, apiKey, keyName string, opts []Option) *Provider {
	p := &Provider{name: name, backend: b, timeout: 30 * time.Second}
	if apiKey == "" {
		p.missing = "Missing or invalid " + keyName
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider display name used in its sentinel
func (p *Provider) Name() string {
	return p.name
}

// Generate returns the model output for prompt or the provider's sentinel
func (p *Provider) Generate(ctx context.Context, prompt string) string {
	if p.missing != "" {
		return Unavailable(p.name, p.missing)
	}

	requestID := uuid.NewString()
	entry := log.WithFields(map[string]interface{}{
		"provider":   p.name,
		"request_id": requestID,
	})

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	var text string
	call := func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		text, err = p.backend.complete(ctx, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
		return err
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	elapsed := time.Since(start)

	if p.observer != nil {
		p.observer(p.name, err == nil, elapsed)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", p.timeout)
		}
		entry.WithField("elapsed", elapsed.String()).WithError(err).Warn("LLM call failed")
		return Unavailable(p.name, err)
	}

	entry.WithField("elapsed", elapsed.String()).Debug("LLM call succeeded")
	return text
}
