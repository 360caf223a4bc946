package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
)

// Usage is the token count accumulated by a backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Calls            int
}

// AzureOpenAI answers prompts with Azure OpenAI chat completions.
type AzureOpenAI struct {
	client      *azopenai.Client
	deployment  string
	temperature *float32
	maxTokens   *int32

	mu    sync.Mutex
	usage Usage
}

// Compile-time check.
var _ Gateway = (*AzureOpenAI)(nil)

type azureConfig struct {
	httpClient *http.Client
}

// AzureOption configures NewAzureOpenAI.
type AzureOption func(*azureConfig)

// WithHTTPClient sends requests through c.
func WithHTTPClient(c *http.Client) AzureOption {
	return func(cfg *azureConfig) {
		cfg.httpClient = c
	}
}

// NewAzureOpenAI creates a client for one deployment using key credentials.
func NewAzureOpenAI(s Settings, opts ...AzureOption) (*AzureOpenAI, error) {
	if s.Endpoint == "" {
		return nil, errors.New("reasoning: azure-openai: endpoint is required")
	}
	if s.APIKey == "" {
		return nil, errors.New("reasoning: azure-openai: api key is required")
	}
	if s.Deployment == "" {
		return nil, errors.New("reasoning: azure-openai: deployment is required")
	}

	var cfg azureConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var clientOpts *azopenai.ClientOptions
	if cfg.httpClient != nil {
		clientOpts = &azopenai.ClientOptions{}
		clientOpts.Transport = cfg.httpClient
	}

	client, err := azopenai.NewClientWithKeyCredential(s.Endpoint, azcore.NewKeyCredential(s.APIKey), clientOpts)
	if err != nil {
		return nil, fmt.Errorf("reasoning: azure-openai: create client: %w", err)
	}

	a := &AzureOpenAI{client: client, deployment: s.Deployment}
	if s.Temperature > 0 {
		a.temperature = to.Ptr(s.Temperature)
	}
	if s.MaxTokens > 0 {
		a.maxTokens = to.Ptr(s.MaxTokens)
	}
	return a, nil
}

// Answer sends system (when set) and prompt as one chat exchange and
// returns the first choice's text.
func (a *AzureOpenAI) Answer(ctx context.Context, prompt, system string) (string, error) {
	messages := []azopenai.ChatRequestMessageClassification{
		&azopenai.ChatRequestUserMessage{
			Content: azopenai.NewChatRequestUserMessageContent(prompt),
		},
	}
	if system != "" {
		messages = append([]azopenai.ChatRequestMessageClassification{
			&azopenai.ChatRequestSystemMessage{
				Content: azopenai.NewChatRequestSystemMessageContent(system),
			},
		}, messages...)
	}

	resp, err := a.client.GetChatCompletions(ctx, azopenai.ChatCompletionsOptions{
		DeploymentName: to.Ptr(a.deployment),
		Messages:       messages,
		Temperature:    a.temperature,
		MaxTokens:      a.maxTokens,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("reasoning: azure-openai: %w", err)
	}

	if resp.Usage != nil {
		a.record(resp.Usage)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return "", ErrEmptyCompletion
	}
	return *resp.Choices[0].Message.Content, nil
}

func (a *AzureOpenAI) record(u *azopenai.CompletionsUsage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage.Calls++
	if u.PromptTokens != nil {
		a.usage.PromptTokens += int(*u.PromptTokens)
	}
	if u.CompletionTokens != nil {
		a.usage.CompletionTokens += int(*u.CompletionTokens)
	}
	if u.TotalTokens != nil {
		a.usage.TotalTokens += int(*u.TotalTokens)
	}
}

// Usage returns the tokens spent so far.
func (a *AzureOpenAI) Usage() Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}
