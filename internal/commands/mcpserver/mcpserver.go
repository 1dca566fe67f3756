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

// Package mcpserver implements the mcp command.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/referral-agent/internal/commands/shared"
	"github.com/tombee/referral-agent/internal/mcp"
)

// NewCommand creates the mcp command
func NewCommand() *cobra.Command {
	var callsPerMinute int

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the referral tools over MCP stdio",
		Long: `Start a Model Context Protocol (MCP) server on stdin/stdout.

Every referral tool (provider lookup, insurance and criteria checks and,
when the EHR is configured, patient creation and scheduling) is exposed
with its input schema. No LLM API key is needed: the MCP client does the
reasoning.

Configuration example for an MCP client:
  {
    "mcpServers": {
      "referral": {
        "command": "referral-agent",
        "args": ["mcp"]
      }
    }
  }

Logs are written to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServer(callsPerMinute)
		},
	}

	cmd.Flags().IntVar(&callsPerMinute, "calls-per-minute", mcp.DefaultCallsPerMinute, "Maximum tool calls per minute")

	return cmd
}

func runMCPServer(callsPerMinute int) error {
	rt, err := shared.NewRuntime(shared.RuntimeOptions{LogOutput: os.Stderr})
	if err != nil {
		return err
	}
	defer rt.Close()

	versionStr, _, _ := shared.GetVersion()
	srv, err := mcp.NewServer(mcp.ServerConfig{
		Name:           "referral-agent",
		Version:        versionStr,
		Registry:       rt.Registry,
		CallsPerMinute: callsPerMinute,
		Logger:         rt.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return shared.NewExecutionError("MCP server error", err)
	}
	return nil
}
