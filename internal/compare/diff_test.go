package compare

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kube-health-audit/internal/model"
	"kube-health-audit/internal/output"
	"kube-health-audit/internal/runner"
)

var ts = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func result(domain string, score float64, findings ...model.Finding) model.AuditResult {
	return model.NewAuditResult(domain, ts,
		[]model.Check{model.NewCheck("c", "", score, "", "")}, findings)
}

func TestDiff(t *testing.T) {
	lost := model.NewFinding(model.SeverityCritical, "PVC", "db/data-0", "lost", "restore", "STO-006")
	root := model.NewFinding(model.SeverityWarning, "Pod", "web/api", "runs as root", "fix", "SEC-004")
	crash := model.NewFinding(model.SeverityCritical, "Pod", "web/api", "crash", "logs", "POD-007")

	prev := &runner.Report{ID: "p", OverallScore: 80, HealthTier: model.TierGood, Results: []model.AuditResult{
		result("Storage", 60, lost),
		result("Security Configuration", 75, root),
	}}
	curr := &runner.Report{ID: "c", OverallScore: 70, Results: []model.AuditResult{
		result("Storage", 100),
		result("Pod Status", 40, crash),
		result("Security Configuration", 75, root),
	}}

	d := Diff(prev, curr)
	assert.Equal(t, "p", d.PreviousID)
	assert.Equal(t, -10.0, d.ScoreDelta)
	assert.Equal(t, []string{"Pod Status"}, d.DomainsAdded)
	assert.Empty(t, d.DomainsRemoved)
	assert.Equal(t, map[string]float64{"Storage": 40}, d.DomainDeltas)
	require.Len(t, d.FindingsNew, 1)
	assert.Equal(t, "POD-007", d.FindingsNew[0].RuleID)
	require.Len(t, d.FindingsResolved, 1)
	assert.Equal(t, "STO-006", d.FindingsResolved[0].RuleID)
}

func TestLoadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit-report.json")
	rep := &runner.Report{ID: "x", ClusterName: "prod", OverallScore: 91, Results: []model.AuditResult{result("Storage", 91)}}
	require.NoError(t, output.WriteJSON(path, rep))

	got, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, "x", got.ID)
	assert.Equal(t, 91.0, got.Results[0].OverallScore)

	_, err = LoadReport(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
