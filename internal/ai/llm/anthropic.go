package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	AnthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	AnthropicDefaultTimeout = 120 * time.Second
	AnthropicVersion        = "2023-06-01"
)

type AnthropicClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAnthropicClient(config ClientConfig) *AnthropicClient {
	timeout := config.HTTPTimeout
	if timeout == 0 {
		timeout = AnthropicDefaultTimeout
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = AnthropicDefaultBaseURL
	}

	return &AnthropicClient{
		config: ClientConfig{
			APIKey:      config.APIKey,
			BaseURL:     baseURL,
			HTTPTimeout: timeout,
			MaxRetries:  config.MaxRetries,
		},
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: zap.NewNop(),
	}
}

func (c *AnthropicClient) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

func (c *AnthropicClient) Provider() Provider {
	return ProviderAnthropic
}

func (c *AnthropicClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Role         string             `json:"role"`
	Model        string             `json:"model"`
	Content      []anthropicContent `json:"content"`
	StopReason   string             `json:"stop_reason"`
	StopSequence string             `json:"stop_sequence,omitempty"`
	Usage        anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	anthropicReq := c.convertRequest(req)
	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", AnthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	latencyMs := time.Since(startTime).Milliseconds()

	return c.convertResponse(&anthropicResp, latencyMs), nil
}

func (c *AnthropicClient) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	eventChan := make(chan StreamEvent, 100)

	streamReq := *req
	streamReq.Stream = true

	anthropicReq := c.convertRequest(&streamReq)
	body, err := json.Marshal(anthropicReq)
	if err != nil {
		close(eventChan)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		close(eventChan)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", AnthropicVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		close(eventChan)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(resp.Body)
		close(eventChan)
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	go c.processStream(resp.Body, eventChan)

	return eventChan, nil
}

func (c *AnthropicClient) processStream(reader io.ReadCloser, eventChan chan<- StreamEvent) {
	defer close(eventChan)
	defer func() { _ = reader.Close() }()

	scanner := bufio.NewScanner(reader)
	var currentEventType string

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			continue
		}

		// Parse event type line: "event: content_block_delta"
		if strings.HasPrefix(line, "event: ") {
			currentEventType = strings.TrimPrefix(line, "event: ")
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		jsonData := strings.TrimPrefix(line, "data: ")

		var event struct {
			Type    string             `json:"type"`
			Index   int                `json:"index,omitempty"`
			Delta   *anthropicDelta    `json:"delta,omitempty"`
			Message *anthropicResponse `json:"message,omitempty"`
		}

		if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
			eventChan <- StreamEvent{Type: StreamEventError, Error: err}
			continue
		}

		// Use the event type from the SSE line if available, otherwise use the JSON type
		eventType := event.Type
		if currentEventType != "" {
			eventType = currentEventType
		}

		switch eventType {
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Text != "" {
				eventChan <- StreamEvent{
					Type:  StreamEventContentDelta,
					Delta: event.Delta.Text,
				}
			}
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				eventChan <- StreamEvent{Type: StreamEventDone, Done: true}
				return
			}
		case "message_start":
			if event.Message != nil {
				eventChan <- StreamEvent{
					Type: StreamEventUsage,
					Usage: &UsageMetrics{
						InputTokens: event.Message.Usage.InputTokens,
					},
				}
			}
		case "message_stop":
			eventChan <- StreamEvent{Type: StreamEventDone, Done: true}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		eventChan <- StreamEvent{Type: StreamEventError, Error: err}
	}

	// If we exit the loop without seeing message_stop, send done event
	eventChan <- StreamEvent{Type: StreamEventDone, Done: true}
}

type anthropicDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

func (c *AnthropicClient) convertRequest(req *CompletionRequest) *anthropicRequest {
	var systemPrompt string
	var messages []anthropicMessage

	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			systemPrompt = msg.Content
			continue
		}

		messages = append(messages, anthropicMessage{
			Role: string(msg.Role),
			Content: []anthropicContent{{
				Type: "text",
				Text: msg.Content,
			}},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &anthropicRequest{
		Model:         req.Model,
		Messages:      messages,
		System:        systemPrompt,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		StopSequences: req.StopSequences,
		Stream:        req.Stream,
	}
}

func (c *AnthropicClient) convertResponse(resp *anthropicResponse, latencyMs int64) *CompletionResponse {
	var textContent string
	for _, content := range resp.Content {
		if content.Type == "text" {
			textContent += content.Text
		}
	}

	usage := UsageMetrics{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}

	return &CompletionResponse{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: ProviderAnthropic,
		Created:  time.Now(),
		Message: Message{
			Role:    RoleAssistant,
			Content: textContent,
		},
		Usage:        usage,
		LatencyMs:    latencyMs,
		FinishReason: resp.StopReason,
	}
}

func (c *AnthropicClient) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr anthropicError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("anthropic API error (status %d): %s", statusCode, string(body))
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited{Provider: ProviderAnthropic, RetryAfter: 30 * time.Second}
	case http.StatusBadRequest:
		if apiErr.Error.Type == "invalid_request_error" {
			return fmt.Errorf("anthropic API error: %s", apiErr.Error.Message)
		}
	}

	return fmt.Errorf("anthropic API error: %s (type: %s)", apiErr.Error.Message, apiErr.Error.Type)
}
