package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, cfg.Profile)
	assert.Equal(t, DefaultPollInterval, cfg.HostAgent.PollInterval)
	assert.Equal(t, DefaultPollDeadline, cfg.HostAgent.PollDeadline)
	assert.Equal(t, DefaultStaleness, cfg.HostAgent.Staleness)
	assert.Equal(t, DefaultRolloutDeadline, cfg.HostAgent.RolloutDeadline)
	assert.True(t, cfg.History.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := writeConfig(t, `namespaces: [team-a, team-b]
host_agent:
  namespace: ops
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"team-a", "team-b"}, cfg.Namespaces)
	assert.Equal(t, "ops", cfg.HostAgent.Namespace)
	assert.Equal(t, DefaultDaemonSet, cfg.HostAgent.DaemonSet)
	assert.Equal(t, DefaultMaxRecs, cfg.MaxRecommendations)
}

func TestLoad_Full(t *testing.T) {
	p := writeConfig(t, `cluster_name: prod-eu
profile: security
weights:
  Storage: 3.0
max_recommendations: 8
min_score: 75
timeout: 2m
output:
  dir: /tmp/audit
  metrics_file: /var/lib/node_exporter/audit.prom
history:
  enabled: false
  keep: 10
log:
  level: debug
  development: true
host_agent:
  poll_interval: 1s
  poll_deadline: 30s
  staleness: 12h
  rollout_interval: 500ms
  rollout_deadline: 20s
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "prod-eu", cfg.ClusterName)
	assert.Equal(t, "security", cfg.Profile)
	assert.Equal(t, 3.0, cfg.Weights["Storage"])
	assert.Equal(t, 8, cfg.MaxRecommendations)
	assert.Equal(t, 75.0, cfg.MinScore)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, "/var/lib/node_exporter/audit.prom", cfg.Output.MetricsFile)
	assert.False(t, cfg.History.Enabled)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, 12*time.Hour, cfg.HostAgent.Staleness)
	assert.Equal(t, 500*time.Millisecond, cfg.HostAgent.RolloutInterval)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown profile":  "profile: enterprise\n",
		"zero weight":      "weights:\n  Storage: 0\n",
		"bad min score":    "min_score: 101\n",
		"bad log level":    "log:\n  level: trace\n",
		"deadline < poll":  "host_agent:\n  poll_interval: 10s\n  poll_deadline: 5s\n",
		"no label":         "host_agent:\n  label_selector: \"\"\n",
		"zero staleness":   "host_agent:\n  staleness: 0s\n",
		"negative keep":    "history:\n  keep: -1\n",
		"malformed yaml":   "profile: [\n",
		"zero max recs":    "max_recommendations: 0\n",
		"negative timeout": "timeout: -1s\n",
		"timeout < agent":  "timeout: 5m\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_TimeoutCoversHostAgentWorstCase(t *testing.T) {
	cfg, err := Load(writeConfig(t, "timeout: 60s\nhost_agent:\n  poll_deadline: 20s\n  rollout_deadline: 20s\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Timeout)

	_, err = Load(writeConfig(t, "timeout: 59s\nhost_agent:\n  poll_deadline: 20s\n  rollout_deadline: 20s\n"))
	assert.ErrorContains(t, err, "worst case")

	cfg, err = Load(writeConfig(t, "timeout: 1m\nhost_agent:\n  enabled: false\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Timeout)
}

func TestLoad_DisabledAgentSkipsAgentValidation(t *testing.T) {
	p := writeConfig(t, "host_agent:\n  enabled: false\n  label_selector: \"\"\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.False(t, cfg.HostAgent.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

func TestHistoryPath(t *testing.T) {
	cfg := Defaults()
	cfg.Output.Dir = "/data/out/"
	assert.Equal(t, "/data/out/history.db", cfg.HistoryPath())
	cfg.History.Path = "/var/lib/audit.db"
	assert.Equal(t, "/var/lib/audit.db", cfg.HistoryPath())
}
