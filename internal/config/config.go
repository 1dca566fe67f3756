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

// Package config loads the referral agent's YAML configuration, applies
// environment overrides and converts the result into the settings each
// component takes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tombee/referral-agent/internal/criteria"
	"github.com/tombee/referral-agent/internal/ehr"
	"github.com/tombee/referral-agent/internal/insurance"
	"github.com/tombee/referral-agent/internal/log"
	"github.com/tombee/referral-agent/internal/nppes"
	"github.com/tombee/referral-agent/internal/scheduling"
	apperrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/agent"
	"github.com/tombee/referral-agent/pkg/llm"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

const (
	// ProviderAnthropic selects the Anthropic Messages API.
	ProviderAnthropic = "anthropic"
	// ProviderOpenAI selects an OpenAI-compatible chat completions API.
	ProviderOpenAI = "openai"

	// DefaultModel is the Anthropic model the agent was tuned against.
	DefaultModel = "claude-3-5-sonnet-20241022"
)

// Config represents the complete referral agent configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	LLM           LLMConfig           `yaml:"llm"`
	NPPES         NPPESConfig         `yaml:"nppes"`
	EHR           EHRConfig           `yaml:"ehr"`
	Scheduling    SchedulingConfig    `yaml:"scheduling"`
	Insurance     *insurance.Config   `yaml:"insurance,omitempty"`
	Criteria      CriteriaConfig      `yaml:"criteria"`
	Observability ObservabilityConfig `yaml:"observability"`

	// ProfilePath points at the agent profile (prompts, agent card and
	// status messages). Empty uses the embedded profile.
	// Environment: REFERRAL_PROFILE
	ProfilePath string `yaml:"profile_path,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Host is the address to bind.
	// Environment: REFERRAL_HOST
	// Default: 0.0.0.0
	Host string `yaml:"host" validate:"required"`

	// Port is the TCP port to bind.
	// Environment: REFERRAL_PORT
	// Default: 10000
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// PublicURL is advertised in the agent card. Empty derives
	// http://host:port/.
	// Environment: REFERRAL_PUBLIC_URL
	PublicURL string `yaml:"public_url,omitempty" validate:"omitempty,url"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: REFERRAL_LOG_LEVEL, LOG_LEVEL
	// Default: info
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format" validate:"oneof=json text"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// LLMConfig configures the model behind the agent.
type LLMConfig struct {
	// Provider is anthropic or openai.
	// Environment: LLM_PROVIDER
	// Default: anthropic
	Provider string `yaml:"provider" validate:"oneof=anthropic openai"`

	// Model is the model ID.
	// Environment: LLM_MODEL
	// Default: claude-3-5-sonnet-20241022
	Model string `yaml:"model" validate:"required"`

	// APIKey authenticates with the provider. Prefer the environment.
	// Environment: ANTHROPIC_API_KEY or OPENAI_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint.
	// Environment: LLM_BASE_URL
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"min=1"`

	// MaxIterations limits tool-calling rounds per turn.
	// Default: 10
	MaxIterations int `yaml:"max_iterations" validate:"min=1,max=50"`

	// ContextTokens is the history budget sent with each call.
	// Default: 100000
	ContextTokens int `yaml:"context_tokens" validate:"min=1000"`

	// RequestTimeout bounds one LLM request.
	// Environment: LLM_REQUEST_TIMEOUT
	// Default: 120s
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`

	// MaxRetries is the number of retries after a retryable failure.
	// Environment: LLM_MAX_RETRIES
	// Default: 3
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// RetryBackoffBase is the first retry delay. Later delays double.
	// Default: 500ms
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base" validate:"gt=0"`
}

// NPPESConfig configures the NPI registry client.
type NPPESConfig struct {
	// BaseURL is the registry endpoint.
	// Environment: NPPES_BASE_URL
	BaseURL string `yaml:"base_url" validate:"required,url"`

	Version string        `yaml:"version" validate:"required"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// MaxRetries is the total number of attempts per request.
	// Default: 3
	MaxRetries int `yaml:"max_retries" validate:"min=1,max=10"`

	// Limit is the number of results requested per search.
	Limit int `yaml:"limit" validate:"min=1,max=200"`

	// RequestsPerSecond throttles outgoing requests. Zero is unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// EHRConfig configures the Practice Fusion client. The EHR tools are only
// registered when BaseURL and credentials are present.
type EHRConfig struct {
	// Environment: PRACTICE_FUSION_BASE_URL
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	// OAuth2 client credentials.
	// Environment: PRACTICE_FUSION_TOKEN_URL, PRACTICE_FUSION_CLIENT_ID,
	// PRACTICE_FUSION_CLIENT_SECRET
	TokenURL     string   `yaml:"token_url,omitempty" validate:"omitempty,url"`
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`

	// AccessToken is a static bearer token used instead of client
	// credentials.
	// Environment: PRACTICE_FUSION_ACCESS_TOKEN
	AccessToken string `yaml:"access_token,omitempty"`

	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries        int           `yaml:"max_retries" validate:"min=1,max=10"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`

	// Defaults for scheduling when the model does not name them.
	// Environment: PRACTICE_FUSION_PROVIDER_GUID, PRACTICE_FUSION_FACILITY_GUID,
	// PRACTICE_FUSION_EVENT_TYPE_GUID
	ProviderGUID  string `yaml:"provider_guid,omitempty"`
	FacilityGUID  string `yaml:"facility_guid,omitempty"`
	EventTypeGUID string `yaml:"event_type_guid,omitempty"`
}

// SchedulingConfig configures slot proposals.
type SchedulingConfig struct {
	// Timezone is an IANA zone name for business hours.
	// Environment: SCHEDULING_TIMEZONE
	// Default: UTC
	Timezone string `yaml:"timezone" validate:"required"`

	DayStartHour int `yaml:"day_start_hour" validate:"min=0,max=23"`
	DayEndHour   int `yaml:"day_end_hour" validate:"min=1,max=24"`

	// SlotMinutes is the appointment length and grid step.
	// Default: 60
	SlotMinutes int `yaml:"slot_minutes" validate:"min=5,max=480"`

	// HorizonDays maps urgency to the number of days searched.
	HorizonDays map[string]int `yaml:"horizon_days,omitempty" validate:"dive,keys,oneof=urgent soon routine,endkeys,min=1"`

	// SkipWeekends is nil when unset so an explicit false survives defaults.
	SkipWeekends *bool `yaml:"skip_weekends,omitempty"`

	MaxProposals int           `yaml:"max_proposals" validate:"min=1,max=10"`
	LeadTime     time.Duration `yaml:"lead_time" validate:"gte=0"`
	Lookback     time.Duration `yaml:"lookback" validate:"gte=0"`
}

// CriteriaConfig holds the clinical criteria rules. Empty uses the
// embedded cardiology ruleset.
type CriteriaConfig struct {
	Rules []criteria.Rule `yaml:"rules,omitempty"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name,omitempty"`

	// TracingEnabled installs an SDK tracer provider.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// TraceExporter is stdout or none.
	// Environment: OTEL_TRACES_EXPORTER
	TraceExporter string `yaml:"trace_exporter,omitempty" validate:"omitempty,oneof=stdout none"`

	// MetricsEnabled serves /metrics.
	// Default: true
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	skip := true
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            10000,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		LLM: LLMConfig{
			Provider:         ProviderAnthropic,
			Model:            DefaultModel,
			Temperature:      0,
			MaxTokens:        4096,
			MaxIterations:    10,
			ContextTokens:    100000,
			RequestTimeout:   120 * time.Second,
			MaxRetries:       3,
			RetryBackoffBase: 500 * time.Millisecond,
		},
		NPPES: NPPESConfig{
			BaseURL:    nppes.DefaultBaseURL,
			Version:    nppes.DefaultVersion,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			Limit:      nppes.DefaultLimit,
		},
		EHR: EHRConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Scheduling: SchedulingConfig{
			Timezone:     "UTC",
			DayStartHour: 9,
			DayEndHour:   17,
			SlotMinutes:  60,
			HorizonDays: map[string]int{
				scheduling.UrgencyUrgent:  3,
				scheduling.UrgencySoon:    7,
				scheduling.UrgencyRoutine: 14,
			},
			SkipWeekends: &skip,
			MaxProposals: 3,
			LeadTime:     time.Hour,
			Lookback:     4 * time.Hour,
		},
		Observability: ObservabilityConfig{
			ServiceName:    "referral-agent",
			MetricsEnabled: true,
		},
	}
}

// Load loads configuration from a YAML file (optional) and the environment.
// Environment variables take precedence over the file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &apperrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// A file that sets a section partially leaves zero values behind.
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &apperrors.ConfigError{
			Key:    "validation",
			Reason: err.Error(),
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.Model == "" && c.LLM.Provider == ProviderAnthropic {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.MaxIterations == 0 {
		c.LLM.MaxIterations = d.LLM.MaxIterations
	}
	if c.LLM.ContextTokens == 0 {
		c.LLM.ContextTokens = d.LLM.ContextTokens
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = d.LLM.RequestTimeout
	}
	if c.LLM.RetryBackoffBase == 0 {
		c.LLM.RetryBackoffBase = d.LLM.RetryBackoffBase
	}

	if c.NPPES.BaseURL == "" {
		c.NPPES.BaseURL = d.NPPES.BaseURL
	}
	if c.NPPES.Version == "" {
		c.NPPES.Version = d.NPPES.Version
	}
	if c.NPPES.Timeout == 0 {
		c.NPPES.Timeout = d.NPPES.Timeout
	}
	if c.NPPES.MaxRetries == 0 {
		c.NPPES.MaxRetries = d.NPPES.MaxRetries
	}
	if c.NPPES.Limit == 0 {
		c.NPPES.Limit = d.NPPES.Limit
	}

	if c.EHR.Timeout == 0 {
		c.EHR.Timeout = d.EHR.Timeout
	}
	if c.EHR.MaxRetries == 0 {
		c.EHR.MaxRetries = d.EHR.MaxRetries
	}

	if c.Scheduling.Timezone == "" {
		c.Scheduling.Timezone = d.Scheduling.Timezone
	}
	if c.Scheduling.DayStartHour == 0 && c.Scheduling.DayEndHour == 0 {
		c.Scheduling.DayStartHour = d.Scheduling.DayStartHour
		c.Scheduling.DayEndHour = d.Scheduling.DayEndHour
	}
	if c.Scheduling.SlotMinutes == 0 {
		c.Scheduling.SlotMinutes = d.Scheduling.SlotMinutes
	}
	if c.Scheduling.HorizonDays == nil {
		c.Scheduling.HorizonDays = make(map[string]int)
	}
	for urgency, days := range d.Scheduling.HorizonDays {
		if _, ok := c.Scheduling.HorizonDays[urgency]; !ok {
			c.Scheduling.HorizonDays[urgency] = days
		}
	}
	if c.Scheduling.SkipWeekends == nil {
		c.Scheduling.SkipWeekends = d.Scheduling.SkipWeekends
	}
	if c.Scheduling.MaxProposals == 0 {
		c.Scheduling.MaxProposals = d.Scheduling.MaxProposals
	}

	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = d.Observability.ServiceName
	}
	if c.Observability.TraceExporter == "" {
		c.Observability.TraceExporter = "none"
		if c.Observability.TracingEnabled {
			c.Observability.TraceExporter = "stdout"
		}
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Relative profile paths are resolved against the config file.
	if c.ProfilePath != "" && !filepath.IsAbs(c.ProfilePath) && !strings.HasPrefix(c.ProfilePath, "~/") {
		c.ProfilePath = filepath.Join(filepath.Dir(path), c.ProfilePath)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	// Server configuration
	if val := os.Getenv("REFERRAL_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("REFERRAL_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Server.Port = port
		}
	}
	if val := os.Getenv("REFERRAL_PUBLIC_URL"); val != "" {
		c.Server.PublicURL = val
	}

	// Log configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("REFERRAL_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = isTrue(val)
	}
	if isTrue(os.Getenv("REFERRAL_DEBUG")) {
		c.Log.Level = "debug"
		c.Log.AddSource = true
	}

	// LLM configuration
	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLM.Provider = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLM.Model = val
	}
	if val := os.Getenv("LLM_BASE_URL"); val != "" {
		c.LLM.BaseURL = val
	}
	// The Anthropic default model means nothing to an OpenAI endpoint.
	if c.LLM.Provider == ProviderOpenAI && c.LLM.Model == DefaultModel {
		c.LLM.Model = ""
	}
	if val := os.Getenv(apiKeyEnv(c.LLM.Provider)); val != "" {
		c.LLM.APIKey = val
	}
	if val := os.Getenv("LLM_REQUEST_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.LLM.RequestTimeout = duration
		}
	}
	if val := os.Getenv("LLM_MAX_RETRIES"); val != "" {
		if retries, err := strconv.Atoi(val); err == nil {
			c.LLM.MaxRetries = retries
		}
	}

	// NPPES
	if val := os.Getenv("NPPES_BASE_URL"); val != "" {
		c.NPPES.BaseURL = val
	}

	// Practice Fusion
	envString(&c.EHR.BaseURL, "PRACTICE_FUSION_BASE_URL")
	envString(&c.EHR.TokenURL, "PRACTICE_FUSION_TOKEN_URL")
	envString(&c.EHR.ClientID, "PRACTICE_FUSION_CLIENT_ID")
	envString(&c.EHR.ClientSecret, "PRACTICE_FUSION_CLIENT_SECRET")
	envString(&c.EHR.AccessToken, "PRACTICE_FUSION_ACCESS_TOKEN")
	envString(&c.EHR.ProviderGUID, "PRACTICE_FUSION_PROVIDER_GUID")
	envString(&c.EHR.FacilityGUID, "PRACTICE_FUSION_FACILITY_GUID")
	envString(&c.EHR.EventTypeGUID, "PRACTICE_FUSION_EVENT_TYPE_GUID")

	if val := os.Getenv("SCHEDULING_TIMEZONE"); val != "" {
		c.Scheduling.Timezone = val
	}

	if val := os.Getenv("REFERRAL_PROFILE"); val != "" {
		c.ProfilePath = val
	}

	if val := os.Getenv("OTEL_TRACES_EXPORTER"); val != "" {
		c.Observability.TraceExporter = strings.ToLower(val)
		c.Observability.TracingEnabled = c.Observability.TraceExporter != "none"
	}
}

func envString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func isTrue(val string) bool {
	return val == "1" || strings.EqualFold(val, "true")
}

func apiKeyEnv(provider string) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fieldMessage(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if c.Scheduling.DayStartHour >= c.Scheduling.DayEndHour {
		errs = append(errs, fmt.Sprintf("scheduling.day_start_hour (%d) must be before day_end_hour (%d)",
			c.Scheduling.DayStartHour, c.Scheduling.DayEndHour))
	}
	if _, err := time.LoadLocation(c.Scheduling.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("scheduling.timezone %q is not a known time zone", c.Scheduling.Timezone))
	}
	if c.EHR.BaseURL != "" && !c.EHRClientConfig().Configured() {
		errs = append(errs, "ehr requires access_token or token_url, client_id and client_secret when base_url is set")
	}
	if c.Observability.TracingEnabled && c.Observability.TraceExporter == "none" {
		errs = append(errs, "observability.trace_exporter must be stdout when tracing is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// fieldMessage renders a validator error with the YAML path, e.g.
// "server.port must be at most 65535".
func fieldMessage(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", ns)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", ns, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return fmt.Sprintf("%s must be a URL", ns)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", ns, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", ns, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", ns, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", ns, fe.Tag())
}

// RequireLLM reports a ConfigError when the selected provider has no API
// key. Commands that run the agent call it; tool and MCP commands do not.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	return &apperrors.ConfigError{
		Key:    "llm.api_key",
		Reason: apiKeyEnv(c.LLM.Provider) + " environment variable not set",
	}
}

// PublicURL returns the URL advertised in the agent card.
func (c *Config) PublicURL() string {
	if c.Server.PublicURL != "" {
		return c.Server.PublicURL
	}
	return fmt.Sprintf("http://%s:%d/", c.Server.Host, c.Server.Port)
}

// LoggerConfig converts the log section for internal/log.
func (c *Config) LoggerConfig() *log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = log.Format(c.Log.Format)
	cfg.AddSource = c.Log.AddSource
	return cfg
}

// LLMProviderConfig converts the llm section for llm.New.
func (c *Config) LLMProviderConfig() llm.Config {
	return llm.Config{
		Provider:  c.LLM.Provider,
		APIKey:    c.LLM.APIKey,
		BaseURL:   c.LLM.BaseURL,
		Model:     c.LLM.Model,
		MaxTokens: c.LLM.MaxTokens,
		Timeout:   c.LLM.RequestTimeout,
	}
}

// LLMRetryConfig converts the retry settings for llm.NewRetryableProvider.
func (c *Config) LLMRetryConfig() llm.RetryConfig {
	rc := llm.DefaultRetryConfig()
	rc.MaxRetries = c.LLM.MaxRetries
	rc.InitialDelay = c.LLM.RetryBackoffBase
	return rc
}

// AgentConfig converts the loop limits for agent.NewAgent.
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		MaxIterations: c.LLM.MaxIterations,
		ContextTokens: c.LLM.ContextTokens,
		Model:         c.LLM.Model,
		Temperature:   c.LLM.Temperature,
		MaxTokens:     c.LLM.MaxTokens,
	}.WithDefaults()
}

// NPPESClientConfig converts the nppes section.
func (c *Config) NPPESClientConfig() nppes.Config {
	cfg := nppes.DefaultConfig()
	cfg.BaseURL = c.NPPES.BaseURL
	cfg.Version = c.NPPES.Version
	cfg.Timeout = c.NPPES.Timeout
	cfg.MaxAttempts = c.NPPES.MaxRetries
	cfg.Limit = c.NPPES.Limit
	cfg.RequestsPerSecond = c.NPPES.RequestsPerSecond
	return cfg
}

// EHRClientConfig converts the ehr section.
func (c *Config) EHRClientConfig() ehr.Config {
	return ehr.Config{
		BaseURL:           c.EHR.BaseURL,
		TokenURL:          c.EHR.TokenURL,
		ClientID:          c.EHR.ClientID,
		ClientSecret:      c.EHR.ClientSecret,
		Scopes:            c.EHR.Scopes,
		AccessToken:       c.EHR.AccessToken,
		Timeout:           c.EHR.Timeout,
		MaxAttempts:       c.EHR.MaxRetries,
		RequestsPerSecond: c.EHR.RequestsPerSecond,
		UserAgent:         "referral-agent/1.0",
	}
}

// SchedulerConfig converts the scheduling section, resolving the time zone
// and the EHR default GUIDs.
func (c *Config) SchedulerConfig() (scheduling.Config, error) {
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return scheduling.Config{}, &apperrors.ConfigError{Key: "scheduling.timezone", Reason: err.Error(), Cause: err}
	}
	cfg := scheduling.DefaultConfig()
	cfg.Location = loc
	cfg.DayStartHour = c.Scheduling.DayStartHour
	cfg.DayEndHour = c.Scheduling.DayEndHour
	cfg.SlotLength = time.Duration(c.Scheduling.SlotMinutes) * time.Minute
	cfg.HorizonDays = c.Scheduling.HorizonDays
	if c.Scheduling.SkipWeekends != nil {
		cfg.SkipWeekends = *c.Scheduling.SkipWeekends
	}
	cfg.MaxProposals = c.Scheduling.MaxProposals
	cfg.LeadTime = c.Scheduling.LeadTime
	cfg.Lookback = c.Scheduling.Lookback
	cfg.ProviderGUID = c.EHR.ProviderGUID
	cfg.FacilityGUID = c.EHR.FacilityGUID
	cfg.EventTypeGUID = c.EHR.EventTypeGUID
	if err := cfg.Validate(); err != nil {
		return scheduling.Config{}, &apperrors.ConfigError{Key: "scheduling", Reason: err.Error(), Cause: err}
	}
	return cfg, nil
}

// InsuranceConfig returns the configured payers and rules, or the embedded
// defaults.
func (c *Config) InsuranceConfig() insurance.Config {
	if c.Insurance == nil {
		return insurance.DefaultConfig()
	}
	return *c.Insurance
}
