// Package reasoning is the host's client for the external reasoning engine.
// Callers see a single text-in, text-out operation.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/mcphost/internal/fault"
)

// ProviderAzureOpenAI selects the Azure OpenAI chat completions backend.
const ProviderAzureOpenAI = "azure-openai"

// ErrEmptyCompletion is returned when the engine answers with no text.
var ErrEmptyCompletion = errors.New("reasoning: no completion received")

// Gateway answers a prompt. system may be empty.
type Gateway interface {
	Answer(ctx context.Context, prompt, system string) (string, error)
}

// Func adapts a function to Gateway.
type Func func(ctx context.Context, prompt, system string) (string, error)

// Answer calls f.
func (f Func) Answer(ctx context.Context, prompt, system string) (string, error) {
	return f(ctx, prompt, system)
}

// Settings configures a backend.
type Settings struct {
	Provider    string
	Endpoint    string
	APIKey      string
	Deployment  string
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

// New builds the gateway selected by s.Provider, bounded by s.Timeout.
func New(s Settings, opts ...AzureOption) (Gateway, error) {
	var g Gateway
	switch strings.ToLower(s.Provider) {
	case "", ProviderAzureOpenAI:
		az, err := NewAzureOpenAI(s, opts...)
		if err != nil {
			return nil, err
		}
		g = az
	default:
		return nil, fmt.Errorf("reasoning: unknown provider %q", s.Provider)
	}
	return WithTimeout(g, s.Timeout), nil
}

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds every call on g. A deadline hit is reported as a
// fault.TimedOut error. A non-positive d returns g unchanged.
func WithTimeout(g Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return g
	}
	return &timeoutGateway{next: g, timeout: d}
}

func (t *timeoutGateway) Answer(ctx context.Context, prompt, system string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.Answer(cctx, prompt, system)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fault.New(fault.TimedOut, "reasoning", "", fmt.Errorf("no answer within %s: %w", t.timeout, err))
	}
	return out, err
}

// UsageOf returns the token usage of g when its backend tracks it.
func UsageOf(g Gateway) (Usage, bool) {
	for {
		switch v := g.(type) {
		case *timeoutGateway:
			g = v.next
		case interface{ Usage() Usage }:
			return v.Usage(), true
		default:
			return Usage{}, false
		}
	}
}
