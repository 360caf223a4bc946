package reasoning_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/mcphost/internal/fault"
	"github.com/dusk-indust/mcphost/internal/reasoning"
)

func TestFunc_Answer(t *testing.T) {
	g := reasoning.Func(func(_ context.Context, prompt, system string) (string, error) {
		return system + "|" + prompt, nil
	})
	out, err := g.Answer(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "s|p", out)
}

func TestWithTimeout(t *testing.T) {
	slow := reasoning.Func(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := reasoning.WithTimeout(slow, 20*time.Millisecond).Answer(context.Background(), "p", "")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.TimedOut))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestWithTimeout_CallerCancelIsNotATimeout verifies that a cancelled caller
// gets its own context error back rather than a TimedOut fault.
func TestWithTimeout_CallerCancelIsNotATimeout(t *testing.T) {
	slow := reasoning.Func(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reasoning.WithTimeout(slow, time.Second).Answer(ctx, "p", "")
	require.Error(t, err)
	assert.False(t, fault.Is(err, fault.TimedOut))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeout_NonPositiveIsPassThrough(t *testing.T) {
	g := reasoning.Func(func(context.Context, string, string) (string, error) { return "ok", nil })
	wrapped := reasoning.WithTimeout(g, 0)
	out, err := wrapped.Answer(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		settings reasoning.Settings
		wantErr  string
	}{
		{"unknown provider", reasoning.Settings{Provider: "carrier-pigeon"}, "unknown provider"},
		{"missing endpoint", reasoning.Settings{APIKey: "k", Deployment: "d"}, "endpoint is required"},
		{"missing key", reasoning.Settings{Endpoint: "https://x", Deployment: "d"}, "api key is required"},
		{"missing deployment", reasoning.Settings{Endpoint: "https://x", APIKey: "k"}, "deployment is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reasoning.New(tt.settings)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int32   `json:"max_tokens"`
}

// TestAzureOpenAI_Answer exercises the Azure client against a TLS test server
// and checks the request path, key header, messages and usage accounting.
func TestAzureOpenAI_Answer(t *testing.T) {
	var got chatRequest
	var gotPath, gotKey string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"created": 1700000000,
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "The file says hello."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`)
	}))
	defer srv.Close()

	g, err := reasoning.New(reasoning.Settings{
		Provider:    reasoning.ProviderAzureOpenAI,
		Endpoint:    srv.URL,
		APIKey:      "secret",
		Deployment:  "gpt-4o",
		Temperature: 0.2,
		MaxTokens:   256,
		Timeout:     5 * time.Second,
	}, reasoning.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	out, err := g.Answer(context.Background(), "what is in a.txt", "Answer briefly")
	require.NoError(t, err)
	assert.Equal(t, "The file says hello.", out)

	assert.True(t, strings.HasSuffix(gotPath, "/openai/deployments/gpt-4o/chat/completions"), gotPath)
	assert.Equal(t, "secret", gotKey)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Answer briefly", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "what is in a.txt", got.Messages[1].Content)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, int32(256), *got.MaxTokens)

	usage, ok := reasoning.UsageOf(g)
	require.True(t, ok)
	assert.Equal(t, reasoning.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17, Calls: 1}, usage)
}

func TestAzureOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "x", "created": 0, "choices": []}`)
	}))
	defer srv.Close()

	g, err := reasoning.NewAzureOpenAI(reasoning.Settings{Endpoint: srv.URL, APIKey: "k", Deployment: "d"},
		reasoning.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = g.Answer(context.Background(), "hi", "")
	assert.True(t, errors.Is(err, reasoning.ErrEmptyCompletion))
}

func TestUsageOf_UntrackedGateway(t *testing.T) {
	g := reasoning.Func(func(context.Context, string, string) (string, error) { return "", nil })
	_, ok := reasoning.UsageOf(reasoning.WithTimeout(g, time.Second))
	assert.False(t, ok)
}
