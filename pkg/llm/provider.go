// Package llm provides a provider-agnostic interface to the chat models that
// drive the referral agent, together with a retry wrapper and a factory
// registry for the concrete providers in llm/providers.
package llm

import (
	"context"
	"time"
)

// Provider defines the interface that all LLM providers must implement.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g., "anthropic", "openai").
	Name() string

	// Complete sends a synchronous completion request and returns the full response.
	// This method blocks until the LLM response is complete.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest contains all parameters for an LLM completion request.
type CompletionRequest struct {
	// Messages is the conversation history including the current prompt.
	// System messages are hoisted into the provider's system field.
	Messages []Message

	// Model overrides the provider's configured model when set.
	Model string

	// Temperature controls randomness (0.0 = deterministic).
	// If nil, uses the provider default.
	Temperature *float64

	// MaxTokens limits the response length. If nil, uses provider default.
	MaxTokens *int

	// Tools defines available functions the model can call.
	Tools []Tool

	// StopSequences are strings that halt generation when encountered.
	StopSequences []string

	// Metadata contains request tracking information (correlation IDs, etc).
	Metadata map[string]string
}

// Message represents a single message in a conversation.
type Message struct {
	// Role indicates who sent this message (user, assistant, system, tool).
	Role MessageRole `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content,omitempty"`

	// ToolCalls contains any tool invocations made by the assistant.
	// Only valid when Role is "assistant".
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links this message to a specific tool call.
	// Only valid when Role is "tool".
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name identifies the tool that produced this result.
	// Only valid when Role is "tool".
	Name string `json:"name,omitempty"`

	// IsError marks a tool result that reports a failure.
	IsError bool `json:"is_error,omitempty"`
}

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	// MessageRoleSystem indicates a system message (context, instructions).
	MessageRoleSystem MessageRole = "system"

	// MessageRoleUser indicates a message from the user.
	MessageRoleUser MessageRole = "user"

	// MessageRoleAssistant indicates a message from the LLM.
	MessageRoleAssistant MessageRole = "assistant"

	// MessageRoleTool indicates a tool execution result.
	MessageRoleTool MessageRole = "tool"
)

// ToolCall represents a function invocation by the LLM.
type ToolCall struct {
	// ID uniquely identifies this tool call within a completion.
	ID string `json:"id"`

	// Name is the function name to invoke.
	Name string `json:"name"`

	// Arguments contains the JSON-encoded function parameters.
	Arguments string `json:"arguments"`
}

// Tool defines a function the LLM can invoke.
type Tool struct {
	// Name is the function identifier.
	Name string

	// Description explains what this function does.
	Description string

	// InputSchema is a JSON Schema describing the function parameters.
	InputSchema map[string]interface{}
}

// CompletionResponse contains the full response from a completion.
type CompletionResponse struct {
	// Content is the generated text response.
	Content string

	// ToolCalls contains any tool invocations made by the model.
	ToolCalls []ToolCall

	// FinishReason explains why generation stopped.
	FinishReason FinishReason

	// Usage contains token consumption information.
	Usage TokenUsage

	// Model is the actual model ID that handled this request.
	Model string

	// RequestID is the unique identifier for this request (for tracing).
	RequestID string

	// Created is the timestamp when this response was generated.
	Created time.Time
}

// FinishReason indicates why completion generation stopped.
type FinishReason string

const (
	// FinishReasonStop indicates natural completion.
	FinishReasonStop FinishReason = "stop"

	// FinishReasonLength indicates max_tokens limit reached.
	FinishReasonLength FinishReason = "length"

	// FinishReasonToolCalls indicates the model wants to call functions.
	FinishReasonToolCalls FinishReason = "tool_calls"

	// FinishReasonContentFilter indicates content policy violation.
	FinishReasonContentFilter FinishReason = "content_filter"

	// FinishReasonError indicates an error occurred.
	FinishReasonError FinishReason = "error"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	// InputTokens is the number of tokens in the input (prompt).
	InputTokens int

	// OutputTokens is the number of tokens in the output (completion).
	OutputTokens int

	// TotalTokens is the sum of input and output tokens.
	TotalTokens int

	// CacheCreationTokens tracks tokens written to the prompt cache.
	CacheCreationTokens int

	// CacheReadTokens tracks tokens served from the prompt cache.
	CacheReadTokens int
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional request fields.
func Int(v int) *int { return &v }
