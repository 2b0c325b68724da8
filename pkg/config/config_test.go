package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, time.Duration(0), cfg.CallTimeout)
	assert.Equal(t, "control group", cfg.BaselineLabel)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8090", cfg.Addr())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfana-dash.yml")
	content := `
perfana_url: wss://perfana.example.com
port: 9000
call_timeout: 30s
retention_days: 14
links:
  grafana: https://grafana.example.com
  tracing_datasource: tempo
export_formats: [html, json]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "wss://perfana.example.com", cfg.PerfanaURL)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 14, cfg.RetentionDays)
	assert.Equal(t, "https://grafana.example.com", cfg.Links.Grafana)
	assert.Equal(t, "tempo", cfg.Links.TracingDatasource)
	assert.Equal(t, []string{"html", "json"}, cfg.ExportFormats)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PERFANA_URL", "https://perfana.internal")
	t.Setenv("PERFANA_TOKEN", "resume-token")
	t.Setenv("PERFANA_DASH_PORT", "7000")
	t.Setenv("PERFANA_DASH_LOG_LEVEL", "debug")
	t.Setenv("PERFANA_CALL_TIMEOUT", "2m")
	t.Setenv("GRAFANA_URL", "https://grafana.internal")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "https://perfana.internal", cfg.PerfanaURL)
	assert.Equal(t, "resume-token", cfg.Token)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.CallTimeout)
	assert.Equal(t, "https://grafana.internal", cfg.Links.Grafana)
}

func TestLoadFromEnv_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PERFANA_DASH_PORT", "eighty")
	t.Setenv("PERFANA_CALL_TIMEOUT", "soon")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, time.Duration(0), cfg.CallTimeout)
}

func TestValidate(t *testing.T) {
	cfg := NewConfig()
	cfg.PerfanaURL = "ftp://perfana"
	cfg.Port = 0
	cfg.CallTimeout = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
	assert.Contains(t, err.Error(), "port: 0 out of range")
	assert.Contains(t, err.Error(), "call_timeout")
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yml")
	cfg := NewConfig()
	cfg.Port = 9100
	cfg.CallTimeout = 5 * time.Second
	cfg.Links.Grafana = "https://g"
	require.NoError(t, cfg.Save(path))

	reloaded := NewConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, 9100, reloaded.Port)
	assert.Equal(t, 5*time.Second, reloaded.CallTimeout)
	assert.Equal(t, "https://g", reloaded.Links.Grafana)
}

func TestDDPURL(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:4000":          "ws://localhost:4000/websocket",
		"https://perfana.example":      "wss://perfana.example/websocket",
		"http://perfana.example/":      "ws://perfana.example/websocket",
		"wss://perfana.example/ddp/ws": "wss://perfana.example/ddp/ws",
	}
	for in, want := range cases {
		cfg := NewConfig()
		cfg.PerfanaURL = in
		got, err := cfg.DDPURL()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	cfg := NewConfig()
	cfg.PerfanaURL = "ftp://perfana.example"
	_, err := cfg.DDPURL()
	assert.Error(t, err)
}
