package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kube-health-audit/internal/model"
	"kube-health-audit/internal/runner"
	"kube-health-audit/internal/trend"
)

func sampleReport() *runner.Report {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pods := model.NewAuditResult("Pod Status", ts,
		[]model.Check{model.NewCheck("Pod Health", "", 60, "", "fix pods")},
		[]model.Finding{
			model.NewFinding(model.SeverityCritical, "Pod", "payments/api-0", "CrashLoopBackOff", "check logs", "POD-007"),
		})
	pods.NamespaceSummaries = []model.NamespaceSummaryRow{{Name: "payments", PodCount: 3}}
	nodes := model.NewAuditResult("Node Inspection", ts, nil, []model.Finding{
		model.NewFinding(model.SeverityWarning, "Node", "worker-10", "Node worker-10 has 4 zombie processes", "reap", "NODE-003"),
		model.NewFinding(model.SeverityCritical, "Certificate", "worker-1:/etc/kubernetes/pki/apiserver.crt", "expired", "renew", "CERT-003"),
	})
	return &runner.Report{
		ID:           "run-1",
		ClusterName:  "prod-eu",
		Timestamp:    ts,
		OverallScore: 64.96,
		HealthTier:   model.TierPoor,
		Results:      []model.AuditResult{pods, nodes},
		Summary: model.ExecutiveSummary{
			HealthTier:              model.TierPoor,
			KeyFindings:             []string{"CrashLoopBackOff (1 resources)"},
			PriorityRecommendations: []string{"check logs"},
			ScoreBreakdown:          map[string]float64{"Pod Status": 60},
		},
		Breakdown: []model.DomainScore{{Domain: "Pod Status", Score: 60, Weight: 2.5, Tier: model.TierPoor, FindingCount: 1}},
		AggregatedFindings: []model.AggregatedFinding{{
			Key: "POD-007", RuleID: "POD-007", Resources: []string{"payments/api-0"}, Occurrences: 1,
		}},
		Hosts: []model.HostSnapshot{
			{NodeName: "worker-1", Hostname: "worker-1"},
			{NodeName: "worker-10", Hostname: "worker-10"},
		},
		AgentStatus: &model.AgentStatus{State: model.AgentReadyPartial, Ready: 2, Total: 3},
		Skips:       []model.UnitSkip{{Domain: "Security Configuration", Reason: "forbidden", RBAC: true}},
	}
}

func TestAgentNotice(t *testing.T) {
	assert.Contains(t, AgentNotice(&model.AgentStatus{State: model.AgentReadyPartial, Ready: 2, Total: 3}), "2 of 3")
	assert.Contains(t, AgentNotice(&model.AgentStatus{State: model.AgentReadyPartial, Ready: 2, Total: 3}), "PARTIAL DATA")
	assert.Contains(t, AgentNotice(&model.AgentStatus{State: model.AgentNotDeployed}), "not deployed")
	assert.Contains(t, AgentNotice(&model.AgentStatus{State: model.AgentRestartedAndReady}), "stale")
	assert.Contains(t, AgentNotice(&model.AgentStatus{State: model.AgentReady}), "all host agents")
	assert.Contains(t, AgentNotice(nil), "not requested")
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "audit.json")
	require.NoError(t, WriteJSON(path, sampleReport()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "prod-eu", decoded["clusterName"])
	assert.Equal(t, "Poor", decoded["healthTier"])
	agent := decoded["agentStatus"].(map[string]any)
	assert.Equal(t, "ReadyPartial", agent["state"])
}

func TestCISummary(t *testing.T) {
	tr := trend.Compute(70, 64.96)
	s := NewCISummary(sampleReport(), 70, "security", &tr)
	assert.Equal(t, "FAILED", s.Status)
	assert.Equal(t, 65.0, s.Overall)
	assert.Equal(t, "ReadyPartial{2/3}", s.Agent)
	assert.Equal(t, "DECLINING", s.Trend)
	assert.Equal(t, []string{"Security Configuration"}, s.Skipped)

	var buf bytes.Buffer
	require.NoError(t, WriteCISummary(&buf, s))
	assert.Contains(t, buf.String(), `"status":"FAILED"`)

	assert.Equal(t, "PASSED", NewCISummary(sampleReport(), 60, "standard", nil).Status)
}

func TestWriteConsole(t *testing.T) {
	var buf bytes.Buffer
	first := trend.First(64.96)
	WriteConsole(&buf, sampleReport(), 70, &first)
	out := buf.String()
	assert.Contains(t, out, "Pod Status")
	assert.Contains(t, out, "permission denied: forbidden")
	assert.Contains(t, out, "1. check logs")
	assert.Contains(t, out, "PARTIAL DATA")
	assert.Contains(t, out, "Trend: FIRST RUN")
	assert.Contains(t, out, "Audit Status: FAILED (score below 70)")
}

func TestRedact(t *testing.T) {
	rep := sampleReport()
	r, err := Redact(rep)
	require.NoError(t, err)

	assert.Equal(t, "[redacted]", r.ClusterName)
	assert.Equal(t, "namespace-1/api-0", r.Results[0].Summary.Findings[0].Resource)
	assert.Equal(t, "namespace-1", r.Results[0].NamespaceSummaries[0].Name)
	assert.Equal(t, "namespace-1/api-0", r.AggregatedFindings[0].Resources[0])

	node := r.Results[1].Summary.Findings[0]
	assert.Equal(t, "node-2", node.Resource)
	assert.Equal(t, "Node node-2 has 4 zombie processes", node.Description)
	assert.Equal(t, "node-1:/etc/kubernetes/pki/apiserver.crt", r.Results[1].Summary.Findings[1].Resource)
	assert.Equal(t, "node-1", r.Hosts[0].NodeName)
	assert.Equal(t, "node-2", r.Hosts[1].Hostname)

	// original untouched
	assert.Equal(t, "prod-eu", rep.ClusterName)
	assert.Equal(t, "worker-1", rep.Hosts[0].NodeName)
}
