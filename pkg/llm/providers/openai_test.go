package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/llm"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	oc := openai.DefaultConfig("test-key")
	oc.BaseURL = srv.URL + "/v1"
	oc.HTTPClient = srv.Client()
	return newOpenAI(openai.NewClientWithConfig(oc), llm.Config{Model: "gpt-4o-mini"})
}

func TestNewOpenAIProvider(t *testing.T) {
	p, err := NewOpenAIProvider(llm.Config{APIKey: "k", BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, DefaultOpenAIModel, p.model)

	_, err = NewOpenAIProvider(llm.Config{})
	var ce *pkgerrors.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var got map[string]interface{}
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "check_insurance", "arguments": "{\"payer\":\"Aetna\",\"plan_type\":\"PPO\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 300, "completion_tokens": 20, "total_tokens": 320}
		}`)
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Temperature: llm.Float64(0),
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: "system"},
			{Role: llm.MessageRoleUser, Content: "Patient has Aetna PPO"},
			{Role: llm.MessageRoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_0", Name: "validate_clinical_criteria", Arguments: `{}`}}},
			{Role: llm.MessageRoleTool, ToolCallID: "call_0", Name: "validate_clinical_criteria", Content: `{"success":true}`},
		},
		Tools: []llm.Tool{{Name: "check_insurance", InputSchema: map[string]interface{}{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, llm.FinishReasonToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "check_insurance", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"payer":"Aetna","plan_type":"PPO"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 300, resp.Usage.InputTokens)
	assert.Equal(t, "chatcmpl-1", resp.RequestID)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, "auto", got["tool_choice"])
	assert.NotZero(t, got["temperature"], "zero temperature must still be sent")
	msgs := got["messages"].([]interface{})
	require.Len(t, msgs, 4)
	assert.Equal(t, "call_0", msgs[3].(map[string]interface{})["tool_call_id"])
}

func TestOpenAIProvider_APIError(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "hi"}},
	})
	var pe *pkgerrors.ProviderError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Equal(t, "Rate limit reached", pe.Message)
	assert.True(t, pe.IsRetryable())
}

func TestFromOpenAIResponse_InvalidArguments(t *testing.T) {
	resp := fromOpenAIResponse(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: openai.FinishReasonStop,
			Message: openai.ChatCompletionMessage{
				Content: "Done.",
				ToolCalls: []openai.ToolCall{{
					ID:       "c",
					Function: openai.FunctionCall{Name: "x", Arguments: "{broken"},
				}},
			},
		}},
	})
	assert.Equal(t, "{}", resp.ToolCalls[0].Arguments)
	assert.Equal(t, llm.FinishReasonToolCalls, resp.FinishReason)
	assert.NotEmpty(t, resp.RequestID)
}
