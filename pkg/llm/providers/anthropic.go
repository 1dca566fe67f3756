// Package providers contains concrete implementations of LLM providers.
//
// Importing the package registers its factories with pkg/llm:
//
//	import _ "github.com/tombee/referral-agent/pkg/llm/providers"
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/httpclient"
	"github.com/tombee/referral-agent/pkg/llm"
)

const (
	// anthropicAPIBaseURL is the base URL for the Anthropic API
	anthropicAPIBaseURL = "https://api.anthropic.com/v1"

	// anthropicAPIVersion is the API version to use
	anthropicAPIVersion = "2023-06-01"

	// DefaultAnthropicModel is used when no model is configured.
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"

	defaultMaxTokens = 4096
)

// AnthropicProvider implements the Provider interface for Anthropic's Claude
// models over the Messages API.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider instance.
func NewAnthropicProvider(cfg llm.Config) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, &errors.ConfigError{
			Key:    "llm.api_key",
			Reason: "ANTHROPIC_API_KEY is required for the anthropic provider",
		}
	}

	hc := httpclient.DefaultConfig()
	hc.Service = "anthropic"
	hc.Timeout = 120 * time.Second
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	hc.UserAgent = "referral-agent-anthropic/1.0"
	// Retries are handled by llm.RetryableProviderWrapper, which also covers
	// 5xx and overloaded responses.
	hc.MaxAttempts = 1

	httpClient, err := httpclient.New(hc)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return newAnthropic(cfg, httpClient), nil
}

func newAnthropic(cfg llm.Config, httpClient *http.Client) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: httpClient,
	}
	if p.baseURL == "" {
		p.baseURL = anthropicAPIBaseURL
	}
	if p.model == "" {
		p.model = DefaultAnthropicModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}
	return p
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends a synchronous completion request to the Anthropic Messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	requestID := uuid.New().String()

	if len(req.Messages) == 0 {
		return nil, &errors.ValidationError{
			Field:      "messages",
			Message:    "completion request must have at least one message",
			Suggestion: "Add at least one message to the completion request",
		}
	}

	apiReq := p.buildAPIRequest(req)

	resp, err := p.doRequest(ctx, apiReq, requestID)
	if err != nil {
		llm.RecordFailure(p.Name())
		return nil, err
	}

	out := p.parseResponse(resp, requestID)
	llm.RecordUsage(p.Name(), out.Usage)
	return out, nil
}

// buildAPIRequest constructs an anthropicRequest from a CompletionRequest.
// Consecutive tool results are merged into a single user turn, since the
// API requires alternating roles.
func (p *AnthropicProvider) buildAPIRequest(req llm.CompletionRequest) *anthropicRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var systemPrompt string
	var apiMessages []anthropicMessage

	appendUser := func(block interface{}, mergeable bool) {
		if mergeable && len(apiMessages) > 0 {
			last := &apiMessages[len(apiMessages)-1]
			if last.Role == "user" && last.toolResults {
				last.Content = append(last.Content, block)
				return
			}
		}
		apiMessages = append(apiMessages, anthropicMessage{
			Role:        "user",
			Content:     []interface{}{block},
			toolResults: mergeable,
		})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.MessageRoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content

		case llm.MessageRoleUser:
			appendUser(anthropicTextContent{Type: "text", Text: msg.Content}, false)

		case llm.MessageRoleAssistant:
			var content []interface{}
			if msg.Content != "" {
				content = append(content, anthropicTextContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil || input == nil {
					input = map[string]interface{}{}
				}
				content = append(content, anthropicToolUse{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			if len(content) > 0 {
				apiMessages = append(apiMessages, anthropicMessage{
					Role:    "assistant",
					Content: content,
				})
			}

		case llm.MessageRoleTool:
			appendUser(anthropicToolResultContent{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
				IsError:   msg.IsError,
			}, true)
		}
	}

	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	var tools []anthropicTool
	for _, t := range req.Tools {
		tools = append(tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	return &anthropicRequest{
		Model:         model,
		Messages:      apiMessages,
		MaxTokens:     maxTokens,
		System:        systemPrompt,
		Temperature:   req.Temperature,
		Tools:         tools,
		StopSequences: req.StopSequences,
	}
}

// doRequest sends the API request and returns the decoded response.
func (p *AnthropicProvider) doRequest(ctx context.Context, apiReq *anthropicRequest, requestID string) (*anthropicResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "anthropic",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				Suggestion: suggestionForStatus(resp.StatusCode),
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 512)),
			Suggestion: suggestionForStatus(resp.StatusCode),
			RequestID:  requestID,
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
		}
	}

	return &apiResp, nil
}

// parseResponse converts an anthropicResponse to a CompletionResponse.
func (p *AnthropicProvider) parseResponse(resp *anthropicResponse, requestID string) *llm.CompletionResponse {
	var textContent strings.Builder
	var toolCalls []llm.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if textContent.Len() > 0 {
				textContent.WriteString("\n")
			}
			textContent.WriteString(block.Text)
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(input),
			})
		}
	}

	return &llm.CompletionResponse{
		Content:      textContent.String(),
		ToolCalls:    toolCalls,
		FinishReason: mapStopReason(resp.StopReason),
		Usage: llm.TokenUsage{
			InputTokens:         resp.Usage.InputTokens,
			OutputTokens:        resp.Usage.OutputTokens,
			TotalTokens:         resp.Usage.InputTokens + resp.Usage.OutputTokens,
			CacheCreationTokens: resp.Usage.CacheCreationTokens,
			CacheReadTokens:     resp.Usage.CacheReadTokens,
		},
		Model:     resp.Model,
		RequestID: requestID,
		Created:   time.Now(),
	}
}

// mapStopReason converts Anthropic's stop_reason to our FinishReason.
func mapStopReason(stopReason string) llm.FinishReason {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	case "refusal":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

// suggestionForStatus returns a helpful suggestion for an error status.
func suggestionForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Check that ANTHROPIC_API_KEY is valid"
	case http.StatusForbidden:
		return "Your API key may not have access to this model"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. The request will be retried with backoff"
	case http.StatusBadRequest:
		return "Review the request format and parameters"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return "Anthropic API is experiencing issues. Retry after a short delay"
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	Tools         []anthropicTool    `json:"tools,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

// anthropicMessage represents a message in the Anthropic API format.
type anthropicMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`

	toolResults bool
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicToolResultContent struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicToolUse struct {
	Type  string                 `json:"type"`
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// anthropicResponse represents the response from the Anthropic Messages API.
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_input_tokens,omitempty"`
}

type anthropicErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
