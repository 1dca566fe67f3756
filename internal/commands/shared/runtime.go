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

package shared

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tombee/referral-agent/internal/config"
	"github.com/tombee/referral-agent/internal/criteria"
	"github.com/tombee/referral-agent/internal/ehr"
	"github.com/tombee/referral-agent/internal/insurance"
	internallog "github.com/tombee/referral-agent/internal/log"
	"github.com/tombee/referral-agent/internal/nppes"
	"github.com/tombee/referral-agent/internal/referral"
	"github.com/tombee/referral-agent/internal/rules"
	"github.com/tombee/referral-agent/internal/scheduling"
	"github.com/tombee/referral-agent/internal/tracing"
	"github.com/tombee/referral-agent/pkg/agent"
	"github.com/tombee/referral-agent/pkg/llm"
	_ "github.com/tombee/referral-agent/pkg/llm/providers"
	"github.com/tombee/referral-agent/pkg/tools"
)

// RuntimeOptions selects what NewRuntime builds.
type RuntimeOptions struct {
	// WithAgent builds the LLM provider and agent. The API key must then
	// be set.
	WithAgent bool

	// LogOutput receives logs (default: stderr).
	LogOutput io.Writer

	// MetricsRegistry receives the bridged otel metrics. Nil uses the
	// default Prometheus registry.
	MetricsRegistry *prometheus.Registry
}

// Runtime holds everything a command needs: configuration, logger, the
// tool registry and, when requested, the agent.
type Runtime struct {
	Config   *config.Config
	Profile  *config.Profile
	Logger   *slog.Logger
	Tracing  *tracing.Provider
	Registry *tools.Registry
	Tools    []string

	// Agent is nil unless RuntimeOptions.WithAgent was set.
	Agent *agent.Agent
}

// LoadConfig loads the configuration named by --config, the environment or
// the default location.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(GetConfigPath()))
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	if GetVerbose() {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// NewRuntime loads configuration and wires the services, tools and agent.
func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewRuntimeFromConfig(cfg, opts)
}

// NewRuntimeFromConfig wires a runtime for an already loaded configuration.
func NewRuntimeFromConfig(cfg *config.Config, opts RuntimeOptions) (*Runtime, error) {
	if opts.WithAgent {
		if err := cfg.RequireLLM(); err != nil {
			return nil, NewConfigError("LLM provider is not configured", err)
		}
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = opts.LogOutput
	if logCfg.Output == nil {
		logCfg.Output = os.Stderr
	}
	logger := internallog.New(logCfg)
	slog.SetDefault(logger)

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, NewConfigError("failed to load agent profile", err)
	}

	v, _, _ := GetVersion()
	tp, err := tracing.New(tracing.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: v,
		TracingEnabled: cfg.Observability.TracingEnabled,
		Exporter:       cfg.Observability.TraceExporter,
		Writer:         os.Stderr,
		Registry:       opts.MetricsRegistry,
	})
	if err != nil {
		return nil, NewConfigError("failed to initialize tracing", err)
	}

	rt := &Runtime{
		Config:   cfg,
		Profile:  profile,
		Logger:   logger,
		Tracing:  tp,
		Registry: tools.NewRegistry(),
	}
	rt.Registry.SetLogger(logger)

	deps, err := buildDeps(cfg, logger)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}
	rt.Tools, err = referral.RegisterAll(rt.Registry, deps)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, NewExecutionError("failed to register tools", err)
	}

	if opts.WithAgent {
		provider, err := llm.New(cfg.LLMProviderConfig())
		if err != nil {
			_ = tp.Shutdown(context.Background())
			return nil, NewProviderError("failed to create LLM provider", err)
		}
		wrapped := llm.NewRetryableProvider(provider, cfg.LLMRetryConfig())
		rt.Agent = agent.NewAgent(wrapped, rt.Registry, cfg.AgentConfig()).
			WithLogger(internallog.WithComponent(logger, "agent")).
			WithPrompts(profile.Prompts())
	}

	logger.Debug("runtime ready",
		"tools", rt.Tools,
		"llm_provider", cfg.LLM.Provider,
		"ehr_configured", deps.Patients != nil)
	return rt, nil
}

// buildDeps constructs the upstream clients and checkers behind the tools.
// The EHR-backed services stay nil when the EHR is not configured.
func buildDeps(cfg *config.Config, logger *slog.Logger) (referral.Deps, error) {
	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return referral.Deps{}, NewConfigError("invalid scheduling configuration", err)
	}

	nppesClient, err := nppes.NewClient(cfg.NPPESClientConfig(), internallog.WithService(logger, "nppes"))
	if err != nil {
		return referral.Deps{}, NewConfigError("invalid nppes configuration", err)
	}

	engine := rules.New()
	checker, err := insurance.NewChecker(cfg.InsuranceConfig(), engine, logger)
	if err != nil {
		return referral.Deps{}, NewConfigError("invalid insurance rules", err)
	}
	validator, err := criteria.New(cfg.Criteria.Rules, engine, logger)
	if err != nil {
		return referral.Deps{}, NewConfigError("invalid criteria rules", err)
	}

	deps := referral.Deps{
		Providers: nppes.NewVerifier(nppesClient, logger),
		Insurance: checker,
		Criteria:  validator,
		Location:  schedCfg.Location,
		Logger:    logger,
	}

	ehrCfg := cfg.EHRClientConfig()
	if !ehrCfg.Configured() {
		return deps, nil
	}
	ehrClient, err := ehr.NewClient(ehrCfg, internallog.WithService(logger, "ehr"))
	if err != nil {
		return referral.Deps{}, NewConfigError("invalid ehr configuration", err)
	}
	scheduler, err := scheduling.New(ehrClient, schedCfg, scheduling.WithLogger(logger))
	if err != nil {
		return referral.Deps{}, NewConfigError("invalid scheduling configuration", err)
	}
	deps.Patients = ehrClient
	deps.Scheduler = scheduler
	return deps, nil
}

// Close flushes telemetry.
func (r *Runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Tracing.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down telemetry: %w", err)
	}
	return nil
}
