package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/llm"
)

func TestNewAnthropicProvider(t *testing.T) {
	p, err := NewAnthropicProvider(llm.Config{APIKey: "test-api-key"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.Equal(t, DefaultAnthropicModel, p.model)
	assert.Equal(t, anthropicAPIBaseURL, p.baseURL)

	_, err = NewAnthropicProvider(llm.Config{})
	var ce *pkgerrors.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "llm.api_key", ce.Key)
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Let me look up Dr. Smith."},
				{"type": "tool_use", "id": "toolu_1", "name": "get_referring_provider_identity",
				 "input": {"first_name": "John", "last_name": "Smith", "state": "TX"}}
			],
			"usage": {"input_tokens": 812, "output_tokens": 64}
		}`)
	}))
	defer srv.Close()

	p := newAnthropic(llm.Config{APIKey: "test-key", BaseURL: srv.URL}, srv.Client())

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Temperature: llm.Float64(0),
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: "You are a referral coordinator."},
			{Role: llm.MessageRoleUser, Content: "Referral from Dr. John Smith in Texas"},
		},
		Tools: []llm.Tool{{
			Name:        "get_referring_provider_identity",
			Description: "Look up a provider in NPPES",
			InputSchema: map[string]interface{}{"type": "object"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me look up Dr. Smith.", resp.Content)
	assert.Equal(t, llm.FinishReasonToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"first_name":"John","last_name":"Smith","state":"TX"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 812, resp.Usage.InputTokens)
	assert.Equal(t, 876, resp.Usage.TotalTokens)

	assert.Equal(t, "You are a referral coordinator.", got["system"])
	assert.Equal(t, DefaultAnthropicModel, got["model"])
	assert.Equal(t, float64(0), got["temperature"])
	assert.Equal(t, float64(defaultMaxTokens), got["max_tokens"])
	assert.Len(t, got["tools"], 1)
	assert.Len(t, got["messages"], 1)
}

func TestAnthropicProvider_BuildRequestMergesToolResults(t *testing.T) {
	p := newAnthropic(llm.Config{APIKey: "k"}, http.DefaultClient)

	req := p.buildAPIRequest(llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.MessageRoleUser, Content: "Check Aetna PPO and find slots"},
			{Role: llm.MessageRoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "t1", Name: "check_insurance", Arguments: `{"payer":"Aetna"}`},
				{ID: "t2", Name: "find_appointment_slots", Arguments: `not json`},
			}},
			{Role: llm.MessageRoleTool, ToolCallID: "t1", Content: `{"success":true}`},
			{Role: llm.MessageRoleTool, ToolCallID: "t2", Content: `{"success":false}`, IsError: true},
			{Role: llm.MessageRoleUser, Content: "Book the first one"},
		},
	})

	require.Len(t, req.Messages, 4)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Len(t, req.Messages[1].Content, 2)
	assert.Equal(t, map[string]interface{}{}, req.Messages[1].Content[1].(anthropicToolUse).Input)

	results := req.Messages[2]
	assert.Equal(t, "user", results.Role)
	require.Len(t, results.Content, 2)
	assert.Equal(t, "t2", results.Content[1].(anthropicToolResultContent).ToolUseID)
	assert.True(t, results.Content[1].(anthropicToolResultContent).IsError)

	assert.Equal(t, "user", req.Messages[3].Role)
	assert.Len(t, req.Messages[3].Content, 1)
}

func TestAnthropicProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		message   string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"Too many requests"}}`, "Too many requests", true},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "Overloaded", true},
		{"unauthorized", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, "invalid x-api-key", false},
		{"unstructured", http.StatusBadGateway, `upstream connect error`, "API request failed with status 502: upstream connect error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p := newAnthropic(llm.Config{APIKey: "k", BaseURL: srv.URL}, srv.Client())
			_, err := p.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "hi"}},
			})

			var pe *pkgerrors.ProviderError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.message, pe.Message)
			assert.Equal(t, tt.retryable, pe.IsRetryable())
		})
	}
}

func TestAnthropicProvider_EmptyMessages(t *testing.T) {
	p := newAnthropic(llm.Config{APIKey: "k"}, http.DefaultClient)
	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	var ve *pkgerrors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestMapStopReason(t *testing.T) {
	assert.Equal(t, llm.FinishReasonStop, mapStopReason("end_turn"))
	assert.Equal(t, llm.FinishReasonLength, mapStopReason("max_tokens"))
	assert.Equal(t, llm.FinishReasonToolCalls, mapStopReason("tool_use"))
	assert.Equal(t, llm.FinishReasonContentFilter, mapStopReason("refusal"))
	assert.Equal(t, llm.FinishReasonStop, mapStopReason(""))
}
