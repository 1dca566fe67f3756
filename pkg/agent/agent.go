// Package agent provides the LLM-powered chat loop that triages referrals.
//
// Each turn runs a loop that:
// 1. Sends the conversation to the LLM with the registered tools
// 2. Executes any tools the response asks for
// 3. Feeds tool results back to the LLM
// 4. Repeats until the LLM answers without calling tools
//
// A final structured-response call then classifies the conversation as
// completed, waiting for input, or failed. This is the ReAct (Reasoning +
// Acting) pattern with per-conversation memory.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/llm"
	"github.com/tombee/referral-agent/pkg/tools"
)

var tracer = otel.Tracer("github.com/tombee/referral-agent/pkg/agent")

// Agent represents an LLM-powered agent that can use tools.
type Agent struct {
	// llm is the language model provider
	llm llm.Provider

	// registry provides access to available tools
	registry *tools.Registry

	cfg Config

	// contextManager tracks token usage and manages context window
	contextManager *ContextManager

	memory *MemoryStore
	logger *slog.Logger

	mu      sync.RWMutex
	prompts Prompts
}

// Result is the outcome of a single turn.
type Result struct {
	Update

	// ContextID identifies the conversation the turn belongs to
	ContextID string `json:"context_id"`

	// TaskID identifies this turn
	TaskID string `json:"task_id"`

	// Status is the structured status, empty when it could not be parsed
	Status Status `json:"status,omitempty"`

	// ToolExecutions is a log of all tool calls made
	ToolExecutions []ToolExecution `json:"tool_executions,omitempty"`

	// Iterations is the number of loop iterations
	Iterations int `json:"iterations"`

	// TokensUsed tracks total token consumption
	TokensUsed llm.TokenUsage `json:"tokens_used"`

	// Duration is the total execution time
	Duration time.Duration `json:"duration"`
}

// ToolExecution records a single tool execution.
type ToolExecution struct {
	// ToolName is the name of the tool
	ToolName string `json:"tool"`

	// Inputs are the tool inputs
	Inputs map[string]interface{} `json:"-"`

	// Outputs are the tool outputs
	Outputs map[string]interface{} `json:"-"`

	// Success is false when the call errored or the tool reported failure
	Success bool `json:"success"`

	// Error contains error information if the tool failed
	Error string `json:"error,omitempty"`

	// Duration is how long the tool took to execute
	Duration time.Duration `json:"duration"`
}

// NewAgent creates a new agent.
func NewAgent(provider llm.Provider, registry *tools.Registry, cfg Config) *Agent {
	cfg = cfg.WithDefaults()
	return &Agent{
		llm:            provider,
		registry:       registry,
		cfg:            cfg,
		contextManager: NewContextManager(cfg.ContextTokens),
		memory:         NewMemoryStore(),
		logger:         slog.Default(),
	}
}

// WithLogger sets the logger.
func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithMemory replaces the conversation store.
func (a *Agent) WithMemory(m *MemoryStore) *Agent {
	if m != nil {
		a.memory = m
	}
	return a
}

// WithPrompts sets the initial prompts.
func (a *Agent) WithPrompts(p Prompts) *Agent {
	a.SetPrompts(p)
	return a
}

// SetPrompts swaps the prompts used by subsequent turns. Turns already in
// progress keep the prompts they started with.
func (a *Agent) SetPrompts(p Prompts) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = p
}

// Prompts returns the current prompts.
func (a *Agent) Prompts() Prompts {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.prompts
}

// Memory returns the conversation store.
func (a *Agent) Memory() *MemoryStore {
	return a.memory
}

// Stream runs one turn of the conversation identified by contextID. Status
// updates are passed to emit while tools run. The final update is returned.
func (a *Agent) Stream(ctx context.Context, query, contextID string, emit func(Update)) (*Update, error) {
	res, err := a.run(ctx, query, contextID, emit)
	if err != nil {
		return nil, err
	}
	return &res.Update, nil
}

// Invoke runs one turn without status updates and returns the full result.
// An empty contextID starts a new conversation.
func (a *Agent) Invoke(ctx context.Context, query, contextID string) (*Result, error) {
	return a.run(ctx, query, contextID, nil)
}

// StreamResult is Stream returning the full result.
func (a *Agent) StreamResult(ctx context.Context, query, contextID string, emit func(Update)) (*Result, error) {
	return a.run(ctx, query, contextID, emit)
}

func (a *Agent) run(ctx context.Context, query, contextID string, emit func(Update)) (*Result, error) {
	startTime := time.Now()
	if strings.TrimSpace(query) == "" {
		return nil, &errors.ValidationError{
			Field:      "message",
			Message:    "message cannot be empty",
			Suggestion: "Describe the referral or answer the agent's last question",
		}
	}
	if contextID == "" {
		contextID = uuid.New().String()
	}
	if emit == nil {
		emit = func(Update) {}
	}

	result := &Result{
		ContextID:      contextID,
		TaskID:         uuid.New().String(),
		ToolExecutions: []ToolExecution{},
	}
	logger := a.logger.With("context_id", contextID, "task_id", result.TaskID)

	ctx, span := tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("context_id", contextID),
		attribute.String("task_id", result.TaskID),
	))
	defer span.End()

	conv, err := a.memory.lock(ctx, contextID)
	if err != nil {
		return nil, err
	}
	defer conv.unlock()

	prompts := a.Prompts()
	toolDefs := a.toolDefinitions()

	history := make([]llm.Message, len(conv.messages), len(conv.messages)+8)
	copy(history, conv.messages)
	history = append(history, llm.Message{Role: llm.MessageRoleUser, Content: query})

	done := false
	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		result.Iterations = iteration

		if a.contextManager.ShouldPrune(history) {
			before := len(history)
			history = a.contextManager.Prune(history)
			logger.Debug("pruned conversation history", "before", before, "after", len(history))
		}

		response, err := a.complete(ctx, prompts.SystemInstruction, history, toolDefs)
		if err != nil {
			turnsTotal.WithLabelValues("failed").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "llm call failed")
			logger.Error("LLM call failed", "iteration", iteration, "error", err)
			return nil, fmt.Errorf("LLM call failed: %w", err)
		}

		result.TokensUsed.InputTokens += response.Usage.InputTokens
		result.TokensUsed.OutputTokens += response.Usage.OutputTokens
		result.TokensUsed.TotalTokens += response.Usage.TotalTokens

		history = append(history, llm.Message{
			Role:      llm.MessageRoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		if len(response.ToolCalls) == 0 {
			done = true
			break
		}

		emit(Update{Content: prompts.statusFor(response.ToolCalls[0].Name)})

		for _, toolCall := range response.ToolCalls {
			execution, msg := a.executeTool(ctx, toolCall)
			result.ToolExecutions = append(result.ToolExecutions, execution)
			history = append(history, msg)
		}

		emit(Update{Content: prompts.toolProcessing()})
	}

	if !done {
		logger.Warn("max iterations reached without a final answer", "max_iterations", a.cfg.MaxIterations)
	}

	rf, err := a.structuredResponse(ctx, prompts.FormatInstruction, history)
	if err != nil {
		logger.Warn("structured response unavailable", "error", err)
	}

	result.Update = finalUpdate(lastAssistantText(history), rf)
	status := "unparsed"
	if rf != nil {
		result.Status = rf.Status
		status = string(rf.Status)
	}
	turnsTotal.WithLabelValues(status).Inc()

	conv.messages = history
	result.Duration = time.Since(startTime)

	span.SetAttributes(
		attribute.Int("iterations", result.Iterations),
		attribute.Int("tool_calls", len(result.ToolExecutions)),
		attribute.String("status", status),
	)
	logger.Info("turn complete",
		"status", status,
		"iterations", result.Iterations,
		"tool_calls", len(result.ToolExecutions),
		"tokens", result.TokensUsed.TotalTokens,
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// complete makes one LLM call with the system prompt prepended.
func (a *Agent) complete(ctx context.Context, system string, history []llm.Message, toolDefs []llm.Tool) (*llm.CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.provider", a.llm.Name()),
		attribute.Int("llm.messages", len(history)),
	))
	defer span.End()

	messages := make([]llm.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, llm.Message{Role: llm.MessageRoleSystem, Content: system})
	}
	messages = append(messages, history...)

	req := llm.CompletionRequest{
		Messages:    messages,
		Model:       a.cfg.Model,
		Temperature: llm.Float64(a.cfg.Temperature),
		Tools:       toolDefs,
	}
	if a.cfg.MaxTokens > 0 {
		req.MaxTokens = llm.Int(a.cfg.MaxTokens)
	}

	resp, err := a.llm.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
	)
	return resp, nil
}

// structuredResponse asks the model to classify the conversation state.
func (a *Agent) structuredResponse(ctx context.Context, instruction string, history []llm.Message) (*ResponseFormat, error) {
	system := responseFormatHint
	if instruction != "" {
		system = instruction + "\n\n" + responseFormatHint
	}

	messages := make([]llm.Message, len(history), len(history)+1)
	copy(messages, history)
	messages = append(messages, llm.Message{Role: llm.MessageRoleUser, Content: responseFormatPrompt})

	resp, err := a.complete(ctx, system, messages, nil)
	if err != nil {
		return nil, err
	}
	return parseResponseFormat(resp.Content)
}

func (a *Agent) toolDefinitions() []llm.Tool {
	if a.registry == nil {
		return nil
	}
	descriptors := a.registry.Descriptors()
	defs := make([]llm.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		defs = append(defs, llm.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.Schema.JSONSchema(),
		})
	}
	return defs
}

// executeTool executes a single tool call and builds the tool_result
// message for it. Failures are reported to the model, never returned.
func (a *Agent) executeTool(ctx context.Context, toolCall llm.ToolCall) (ToolExecution, llm.Message) {
	startTime := time.Now()
	execution := ToolExecution{ToolName: toolCall.Name}
	msg := llm.Message{
		Role:       llm.MessageRoleTool,
		ToolCallID: toolCall.ID,
		Name:       toolCall.Name,
	}

	inputs := map[string]interface{}{}
	if args := strings.TrimSpace(toolCall.Arguments); args != "" {
		if err := json.Unmarshal([]byte(args), &inputs); err != nil {
			execution.Error = fmt.Sprintf("invalid tool arguments: %v", err)
			execution.Duration = time.Since(startTime)
			msg.Content = a.formatToolResult(tools.Failuref("%s", execution.Error))
			msg.IsError = true
			return execution, msg
		}
	}
	execution.Inputs = inputs

	outputs, err := a.registry.Execute(ctx, toolCall.Name, inputs)
	execution.Duration = time.Since(startTime)

	if err != nil {
		execution.Error = errors.UserMessage(err)
		msg.Content = a.formatToolResult(tools.Failure(err))
		msg.IsError = true
		return execution, msg
	}

	execution.Outputs = outputs
	execution.Success = true
	if ok, present := outputs["success"].(bool); present && !ok {
		execution.Success = false
		execution.Error = fmt.Sprint(outputs["error"])
	}
	msg.Content = a.formatToolResult(outputs)
	return execution, msg
}

// formatToolResult renders tool outputs as JSON for the model. Output over
// the tool result budget is replaced by a summary that is still valid JSON:
// the success flag and error are kept and the rest becomes a text preview.
func (a *Agent) formatToolResult(outputs map[string]interface{}) string {
	data, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, "tool output could not be encoded")
	}
	if len(data) <= a.cfg.MaxToolResultTokens*4 {
		return string(data)
	}

	summary := map[string]interface{}{
		"truncated": true,
		"preview":   a.contextManager.TruncateContent(string(data), a.cfg.MaxToolResultTokens/2),
	}
	if ok, present := outputs["success"].(bool); present {
		summary["success"] = ok
	}
	if e, present := outputs["error"]; present {
		summary["error"] = e
	}
	out, err := json.Marshal(summary)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, "tool output could not be encoded")
	}
	a.logger.Debug("tool result truncated", "bytes", len(data), "budget_tokens", a.cfg.MaxToolResultTokens)
	return string(out)
}
