package serve

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/referral-agent/internal/commands/shared"
	"github.com/tombee/referral-agent/internal/config"
	"github.com/tombee/referral-agent/internal/server"
)

func newRuntime(t *testing.T, configYAML string) *shared.Runtime {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("REFERRAL_PROFILE", "")
	t.Setenv("PRACTICE_FUSION_BASE_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })

	cfg, err := shared.LoadConfig()
	require.NoError(t, err)
	rt, err := shared.NewRuntimeFromConfig(cfg, shared.RuntimeOptions{
		WithAgent:       true,
		LogOutput:       &bytes.Buffer{},
		MetricsRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func getCard(t *testing.T, h http.Handler) server.AgentCard {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var card server.AgentCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	return card
}

func TestNewHandler_AgentCard(t *testing.T) {
	rt := newRuntime(t, "server:\n  host: 127.0.0.1\n  port: 8080\n")
	h := NewHandler(rt).Router()

	card := getCard(t, h)
	assert.Equal(t, "Cardiology Referral Agent", card.Name)
	assert.Equal(t, "http://127.0.0.1:8080/", card.URL)
	assert.True(t, card.Capabilities.Streaming)
	require.NotEmpty(t, card.Skills)
	assert.Equal(t, "cardiology_referral", card.Skills[0].ID)
}

func TestNewHandler_Metrics(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		rt := newRuntime(t, "")
		h := NewHandler(rt).Router()

		// A request first so the request counter has a sample.
		getCard(t, h)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "referral_http_server_requests")
	})

	t.Run("disabled", func(t *testing.T) {
		rt := newRuntime(t, "observability:\n  metrics_enabled: false\n")
		h := NewHandler(rt).Router()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestReloadProfile(t *testing.T) {
	rt := newRuntime(t, "")
	handler := NewHandler(rt)
	h := handler.Router()

	p, err := config.ParseProfile([]byte(`
agent_info:
  name: Pulmonology Referral Agent
system_instruction: You triage pulmonology referrals.
format_instruction: Report the referral status.
`))
	require.NoError(t, err)

	reloadProfile(rt, handler)(p)

	assert.Equal(t, "Pulmonology Referral Agent", getCard(t, h).Name)
	assert.Equal(t, "You triage pulmonology referrals.", rt.Agent.Prompts().SystemInstruction)
}

func TestServeCommand_InvalidPort(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := NewCommand()
	cmd.SetArgs([]string{"--port", "70000"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfigError, shared.ExitCode(err))
}
