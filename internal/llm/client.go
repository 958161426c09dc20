// Package llm provides LLM client interfaces and implementations used to
// draft operator replies.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CompletionRequest is a single-turn completion: an instruction for the
// model and the prompt it answers.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Text       string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	Latency    time.Duration
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ParseProvider maps a configuration value to a provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderAnthropic, ProviderOpenAI:
		return p, nil
	default:
		return "", fmt.Errorf("unknown LLM provider %q", s)
	}
}

const defaultMaxTokens = 512

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a provider client.
type ClientOption func(*clientOptions)

// WithBaseURL points the client at a different API endpoint, such as a
// proxy or a test server.
func WithBaseURL(url string) ClientOption {
	return func(o *clientOptions) { o.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string, opts ...ClientOption) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, opts...)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, opts...)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

func applyOptions(opts []ClientOption) clientOptions {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
