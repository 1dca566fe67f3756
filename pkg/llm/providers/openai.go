package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	pkgerrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/httpclient"
	"github.com/tombee/referral-agent/pkg/llm"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements the Provider interface for OpenAI and
// OpenAI-compatible chat completion APIs.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIProvider creates a provider backed by go-openai. BaseURL points
// it at any OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg llm.Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &pkgerrors.ConfigError{
			Key:    "llm.api_key",
			Reason: "OPENAI_API_KEY is required for the openai provider",
		}
	}

	hc := httpclient.DefaultConfig()
	hc.Service = "openai"
	hc.Timeout = 120 * time.Second
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	hc.UserAgent = "referral-agent-openai/1.0"
	hc.MaxAttempts = 1

	httpClient, err := httpclient.New(hc)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = httpClient

	return newOpenAI(openai.NewClientWithConfig(oc), cfg), nil
}

func newOpenAI(client *openai.Client, cfg llm.Config) *OpenAIProvider {
	p := &OpenAIProvider{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}
	if p.model == "" {
		p.model = DefaultOpenAIModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}
	return p
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends a chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, &pkgerrors.ValidationError{
			Field:   "messages",
			Message: "completion request must have at least one message",
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, p.toRequest(req))
	if err != nil {
		llm.RecordFailure(p.Name())
		return nil, normalizeOpenAIError(ctx, err)
	}

	out := fromOpenAIResponse(resp)
	llm.RecordUsage(p.Name(), out.Usage)
	return out, nil
}

func (p *OpenAIProvider) toRequest(req llm.CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case llm.MessageRoleAssistant:
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case llm.MessageRoleTool:
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.Name
		}
		msgs = append(msgs, msg)
	}

	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	out := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: maxTokens,
		Stop:      req.StopSequences,
	}
	if req.Temperature != nil {
		// go-openai omits a zero temperature, which the API reads as 1.
		out.Temperature = float32(*req.Temperature)
		if out.Temperature == 0 {
			out.Temperature = math.SmallestNonzeroFloat32
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}

	return out
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) *llm.CompletionResponse {
	out := &llm.CompletionResponse{
		Model:     resp.Model,
		RequestID: resp.ID,
		Created:   time.Now(),
		Usage: llm.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		FinishReason: llm.FinishReasonStop,
	}
	if out.RequestID == "" {
		out.RequestID = uuid.New().String()
	}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" || !json.Valid([]byte(args)) {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	switch choice.FinishReason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		out.FinishReason = llm.FinishReasonToolCalls
	case openai.FinishReasonLength:
		out.FinishReason = llm.FinishReasonLength
	case openai.FinishReasonContentFilter:
		out.FinishReason = llm.FinishReasonContentFilter
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = llm.FinishReasonToolCalls
	}
	return out
}

// normalizeOpenAIError maps go-openai errors to ProviderError so the retry
// wrapper can classify them by status.
func normalizeOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &pkgerrors.ProviderError{
			Provider:   "openai",
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Suggestion: suggestionForStatus(apiErr.HTTPStatusCode),
			Cause:      err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &pkgerrors.ProviderError{
			Provider:   "openai",
			StatusCode: reqErr.HTTPStatusCode,
			Message:    fmt.Sprintf("request failed: %v", reqErr.Err),
			Cause:      err,
		}
	}

	return &pkgerrors.ProviderError{
		Provider: "openai",
		Message:  fmt.Sprintf("request failed: %v", err),
		Cause:    err,
	}
}
