// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/tools"
)

// DefaultCallsPerMinute limits tool calls when ServerConfig leaves it unset.
const DefaultCallsPerMinute = 100

// Server publishes a tool registry as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	registry  *tools.Registry
	limiter   *rate.Limiter
	name      string
	version   string
	logger    *slog.Logger
}

// ServerConfig configures the MCP server
type ServerConfig struct {
	// Name is the server name (default: "referral-agent")
	Name string

	// Version is the binary version
	Version string

	// Registry holds the tools to publish. Required.
	Registry *tools.Registry

	// CallsPerMinute caps tool calls across all tools.
	CallsPerMinute int

	// Logger must not write to stdout.
	Logger *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(config ServerConfig) (*Server, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if config.Name == "" {
		config.Name = "referral-agent"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.CallsPerMinute <= 0 {
		config.CallsPerMinute = DefaultCallsPerMinute
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	s := &Server{
		mcpServer: server.NewMCPServer(config.Name, config.Version, server.WithToolCapabilities(false)),
		registry:  config.Registry,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.CallsPerMinute)), config.CallsPerMinute),
		name:      config.Name,
		version:   config.Version,
		logger:    logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// registerTools adds one MCP tool per registry entry.
func (s *Server) registerTools() error {
	for _, d := range s.registry.Descriptors() {
		schema, err := json.Marshal(d.Schema.JSONSchema())
		if err != nil {
			return fmt.Errorf("tool %s: %w", d.Name, err)
		}
		tool := mcp.NewToolWithRawSchema(d.Name, d.Description, schema)
		s.mcpServer.AddTool(tool, s.toolHandler(d.Name))
	}
	return nil
}

func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !s.limiter.Allow() {
			return mcp.NewToolResultError("Rate limit exceeded. Try again in a minute."), nil
		}

		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}
		s.logger.Debug("mcp tool call", "tool", name)

		outputs, err := s.registry.Execute(ctx, name, args)
		if err != nil {
			s.logger.Warn("mcp tool call failed", "tool", name, "error", err)
			return mcp.NewToolResultError(apperrors.UserMessage(err)), nil
		}

		data, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// Run serves MCP over stdin and stdout until ctx is cancelled or stdin
// closes.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("starting MCP server", "name", s.name, "version", s.version, "tools", s.registry.Len())

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(stdlog.New(os.Stderr, "mcp: ", 0))
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
