// Package llm provides a unified interface for LLM chat completion across
// providers. It supports Anthropic and OpenAI with both blocking and
// streaming completion.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider represents an LLM provider type
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Role represents a message role
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents a completion request
type CompletionRequest struct {
	Messages      []Message `json:"messages"`
	Model         string    `json:"model"`
	Temperature   *float64  `json:"temperature,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	StopSequences []string  `json:"stop,omitempty"`
	Stream        bool      `json:"stream,omitempty"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	ID       string    `json:"id"`
	Model    string    `json:"model"`
	Provider Provider  `json:"provider"`
	Created  time.Time `json:"created"`
	Message  Message   `json:"message"`

	Usage     UsageMetrics `json:"usage"`
	LatencyMs int64        `json:"latency_ms"`

	// Finish reason: "stop", "length", "content_filter"
	FinishReason string `json:"finish_reason"`
}

// UsageMetrics tracks token usage
type UsageMetrics struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ClientConfig holds configuration for LLM clients
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
	MaxRetries  int
}

// Client is the interface for LLM inference clients
type Client interface {
	// Complete sends a completion request and returns the response
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Stream sends a streaming completion request
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)

	// Provider returns the provider type
	Provider() Provider

	// Close releases any resources
	Close() error
}

// StreamEvent represents a streaming event
type StreamEvent struct {
	Type  StreamEventType `json:"type"`
	Delta string          `json:"delta,omitempty"`
	Done  bool            `json:"done,omitempty"`
	Error error           `json:"error,omitempty"`
	Usage *UsageMetrics   `json:"usage,omitempty"`
}

// StreamEventType represents the type of stream event
type StreamEventType string

const (
	StreamEventContentDelta StreamEventType = "content_delta"
	StreamEventDone         StreamEventType = "done"
	StreamEventError        StreamEventType = "error"
	StreamEventUsage        StreamEventType = "usage"
)

// ClientFactory creates LLM clients
type ClientFactory struct {
	configs map[Provider]ClientConfig
}

// NewClientFactory creates a new client factory
func NewClientFactory() *ClientFactory {
	return &ClientFactory{
		configs: make(map[Provider]ClientConfig),
	}
}

// Configure sets configuration for a provider
func (f *ClientFactory) Configure(provider Provider, config ClientConfig) {
	f.configs[provider] = config
}

// Create creates a client for the specified provider
func (f *ClientFactory) Create(provider Provider) (Client, error) {
	config, ok := f.configs[provider]
	if !ok {
		return nil, ErrProviderNotConfigured{Provider: provider}
	}

	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(config), nil
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: provider}
	}
}

// Error types

// ErrProviderNotConfigured indicates a provider is not configured
type ErrProviderNotConfigured struct {
	Provider Provider
}

func (e ErrProviderNotConfigured) Error() string {
	return "provider not configured: " + string(e.Provider)
}

// ErrUnsupportedProvider indicates an unsupported provider
type ErrUnsupportedProvider struct {
	Provider Provider
}

func (e ErrUnsupportedProvider) Error() string {
	return "unsupported provider: " + string(e.Provider)
}

// ErrRateLimited indicates rate limiting from the provider
type ErrRateLimited struct {
	Provider   Provider
	RetryAfter time.Duration
}

func (e ErrRateLimited) Error() string {
	return "rate limited by " + string(e.Provider) + ", retry after " + e.RetryAfter.String()
}

// ErrContextLengthExceeded indicates the context length was exceeded
type ErrContextLengthExceeded struct {
	Provider    Provider
	MaxTokens   int
	InputTokens int
}

func (e ErrContextLengthExceeded) Error() string {
	return fmt.Sprintf("context length exceeded: max %d, input %d", e.MaxTokens, e.InputTokens)
}
