// Package tools provides the registry of tools the referral agent can call.
//
// Tools are discrete functions invoked by the LLM during a conversation. Each
// tool has a name, a JSON schema describing its inputs and an execution
// function. The registry exposes tool descriptors for function calling and
// executes calls by name.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tombee/referral-agent/pkg/errors"
)

// Tool represents an executable tool that can be called by the agent.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// Schema returns the JSON schema defining the tool's inputs and outputs
	Schema() *Schema

	// Execute runs the tool with the given inputs and returns outputs
	Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)
}

// MetadataProvider is implemented by tools that publish extra descriptive
// fields, such as the upstream API they depend on.
type MetadataProvider interface {
	Metadata() map[string]interface{}
}

// Schema defines the input and output schema for a tool using JSON Schema.
type Schema struct {
	// Inputs defines the expected input parameters
	Inputs *ParameterSchema `json:"inputs"`

	// Outputs defines the structure of returned data
	Outputs *ParameterSchema `json:"outputs,omitempty"`
}

// ParameterSchema defines a set of parameters using JSON Schema conventions.
type ParameterSchema struct {
	// Type is the JSON type (e.g., "object", "string", "number")
	Type string `json:"type"`

	// Properties defines nested properties (for type="object")
	Properties map[string]*Property `json:"properties,omitempty"`

	// Required lists the required property names
	Required []string `json:"required,omitempty"`

	// Description provides human-readable context
	Description string `json:"description,omitempty"`
}

// Property defines a single property in a parameter schema.
type Property struct {
	// Type is the JSON type of this property
	Type string `json:"type"`

	// Description explains what this property represents
	Description string `json:"description,omitempty"`

	// Enum lists allowed values (for validation)
	Enum []interface{} `json:"enum,omitempty"`

	// Default provides a default value if not specified
	Default interface{} `json:"default,omitempty"`

	// Format specifies a format hint (e.g., "date", "date-time", "email")
	Format string `json:"format,omitempty"`

	// Items describes array elements (for type="array")
	Items *Property `json:"items,omitempty"`
}

// JSONSchema renders the input schema as a plain JSON Schema object, the
// shape LLM function-calling APIs and MCP expect.
func (s *Schema) JSONSchema() map[string]interface{} {
	out := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	if s == nil || s.Inputs == nil {
		return out
	}
	props := make(map[string]interface{}, len(s.Inputs.Properties))
	for name, p := range s.Inputs.Properties {
		props[name] = p.jsonSchema()
	}
	out["properties"] = props
	if len(s.Inputs.Required) > 0 {
		out["required"] = s.Inputs.Required
	}
	if s.Inputs.Description != "" {
		out["description"] = s.Inputs.Description
	}
	return out
}

func (p *Property) jsonSchema() map[string]interface{} {
	m := map[string]interface{}{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Default != nil {
		m["default"] = p.Default
	}
	if p.Format != "" {
		m["format"] = p.Format
	}
	if p.Items != nil {
		m["items"] = p.Items.jsonSchema()
	}
	return m
}

// Registry maintains a collection of registered tools.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	logger   *slog.Logger
	redactor *Redactor
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		logger:   slog.Default(),
		redactor: NewRedactor(),
	}
}

// SetLogger sets the logger used for tool call logging.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name is already registered.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	if tool.Schema() == nil {
		return fmt.Errorf("tool schema cannot be nil: %s", name)
	}

	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, &errors.NotFoundError{
			Resource: "tool",
			ID:       name,
		}
	}

	return tool, nil
}

// Has checks if a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// List returns all registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

var tracer = otel.Tracer("github.com/tombee/referral-agent/pkg/tools")

// Execute executes a tool by name with the given inputs.
//
// A returned error means the call could not be made or the tool failed
// unexpectedly. Tools report domain failures in their output with
// "success": false instead.
func (r *Registry) Execute(ctx context.Context, name string, inputs map[string]interface{}) (map[string]interface{}, error) {
	tool, err := r.Get(name)
	if err != nil {
		toolCalls.WithLabelValues(name, statusUnknown).Inc()
		return nil, err
	}
	if inputs == nil {
		inputs = map[string]interface{}{}
	}

	if err := r.validateInputs(tool, inputs); err != nil {
		toolCalls.WithLabelValues(name, statusInvalid).Inc()
		return nil, &errors.ValidationError{
			Field:      "inputs",
			Message:    fmt.Sprintf("input validation failed for tool %s: %v", name, err),
			Suggestion: "Check the tool schema for required inputs and correct types",
		}
	}

	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()

	ctx, span := tracer.Start(ctx, "tool."+name)
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	logger.DebugContext(ctx, "executing tool", "tool", name, "inputs", r.redactor.RedactMap(inputs))

	start := time.Now()
	outputs, err := tool.Execute(ctx, inputs)
	elapsed := time.Since(start)
	toolDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		toolCalls.WithLabelValues(name, statusError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "tool execution failed", "tool", name, "error", err, "duration_ms", elapsed.Milliseconds())
		return nil, fmt.Errorf("tool execution failed for %s: %w", name, err)
	}

	status := statusOK
	if ok, present := outputs["success"].(bool); present && !ok {
		status = statusFailed
		span.SetStatus(codes.Error, fmt.Sprint(outputs["error"]))
	}
	toolCalls.WithLabelValues(name, status).Inc()
	logger.InfoContext(ctx, "tool executed", "tool", name, "status", status, "duration_ms", elapsed.Milliseconds())

	return outputs, nil
}

// validateInputs checks required fields and primitive property types.
func (r *Registry) validateInputs(tool Tool, inputs map[string]interface{}) error {
	schema := tool.Schema()
	if schema == nil || schema.Inputs == nil {
		return nil
	}

	for _, required := range schema.Inputs.Required {
		if v, exists := inputs[required]; !exists || v == nil {
			return fmt.Errorf("required input missing: %s", required)
		}
	}

	for name, value := range inputs {
		prop, ok := schema.Inputs.Properties[name]
		if !ok || value == nil {
			continue
		}
		if !matchesType(prop.Type, value) {
			return fmt.Errorf("input %s must be of type %s, got %T", name, prop.Type, value)
		}
	}

	return nil
}

func matchesType(want string, v interface{}) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "integer", "number":
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case "array":
		switch v.(type) {
		case []interface{}, []string:
			return true
		}
		return false
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	}
	return true
}

// ToolDescriptor describes a tool for LLM function calling.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Schema      *Schema                `json:"schema"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// GetToolDescriptors returns descriptors for all registered tools, sorted by
// name so prompts built from them are deterministic.
func (r *Registry) GetToolDescriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]ToolDescriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		d := ToolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		}
		if mp, ok := tool.(MetadataProvider); ok {
			d.Metadata = mp.Metadata()
		}
		descriptors = append(descriptors, d)
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})

	return descriptors
}

// Descriptors is an alias for GetToolDescriptors.
func (r *Registry) Descriptors() []ToolDescriptor {
	return r.GetToolDescriptors()
}
