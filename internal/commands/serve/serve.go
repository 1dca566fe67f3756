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

// Package serve implements the serve command.
package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/referral-agent/internal/commands/shared"
	"github.com/tombee/referral-agent/internal/config"
	internallog "github.com/tombee/referral-agent/internal/log"
	"github.com/tombee/referral-agent/internal/server"
)

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the referral agent HTTP API",
		Long: `Start the HTTP API.

Endpoints:
  GET  /.well-known/agent.json   agent card
  POST /v1/messages              run one turn, JSON response
  POST /v1/messages/stream       run one turn, server-sent events
  GET  /healthz                  liveness
  GET  /metrics                  Prometheus metrics

The agent profile is reloaded when its file changes. The server shuts down
gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				if port < 1 || port > 65535 {
					return shared.NewConfigError(fmt.Sprintf("invalid port %d", port), nil)
				}
				cfg.Server.Port = port
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Address to listen on (default from config: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config: 10000)")

	return cmd
}

func run(cfg *config.Config) error {
	rt, err := shared.NewRuntimeFromConfig(cfg, shared.RuntimeOptions{WithAgent: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := internallog.WithComponent(rt.Logger, "server")
	handler := NewHandler(rt)

	if cfg.ProfilePath != "" {
		watcher, err := config.NewProfileWatcher(config.WatcherConfig{
			Path:     cfg.ProfilePath,
			Logger:   logger,
			OnChange: reloadProfile(rt, handler),
		})
		if err != nil {
			logger.Warn("profile hot reload disabled", "path", cfg.ProfilePath, "error", err)
		} else {
			defer watcher.Close()
		}
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := server.New(addr, handler.Router(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("referral agent ready",
		"agent", rt.Profile.AgentInfo.Name,
		"url", cfg.PublicURL(),
		"tools", rt.Tools)

	if err := srv.Start(ctx); err != nil {
		return shared.NewExecutionError("server failed", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return shared.NewExecutionError("graceful shutdown failed", err)
	}
	return nil
}

// NewHandler builds the API handler for a runtime with an agent.
func NewHandler(rt *shared.Runtime) *server.Handler {
	hc := server.HandlerConfig{
		Agent:  rt.Agent,
		Card:   server.NewAgentCard(rt.Profile.AgentInfo, rt.Config.PublicURL()),
		Logger: rt.Logger,
	}
	if rt.Config.Observability.MetricsEnabled {
		hc.Metrics = rt.Tracing.Metrics()
		hc.MetricsHandler = rt.Tracing.MetricsHandler()
	} else {
		hc.MetricsHandler = http.NotFoundHandler()
	}
	return server.NewHandler(hc)
}

// reloadProfile swaps the prompts and agent card when the profile changes.
func reloadProfile(rt *shared.Runtime, handler *server.Handler) func(*config.Profile) {
	return func(p *config.Profile) {
		rt.Agent.SetPrompts(p.Prompts())
		handler.SetCard(server.NewAgentCard(p.AgentInfo, rt.Config.PublicURL()))
		rt.Logger.Info("agent profile reloaded", "agent", p.AgentInfo.Name)
	}
}
