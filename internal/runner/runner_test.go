package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"kube-health-audit/internal/inspect"
	"kube-health-audit/internal/model"
	"kube-health-audit/internal/scoring"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubInspector struct {
	domain string
	score  float64
	err    error
	scope  *inspect.Scope
}

func (s *stubInspector) Domain() string { return s.domain }

func (s *stubInspector) Inspect(_ context.Context, scope inspect.Scope) (model.AuditResult, error) {
	if s.scope != nil {
		*s.scope = scope
	}
	if s.err != nil {
		return model.AuditResult{}, s.err
	}
	check := model.NewCheck("c", "", s.score, "", "fix "+s.domain)
	var findings []model.Finding
	if s.score < 70 {
		findings = append(findings, model.NewFinding(model.SeverityCritical, "X", "r-"+s.domain, "broken", "repair", ""))
	}
	return model.NewAuditResult(s.domain, now, []model.Check{check}, findings), nil
}

type stubAgent struct {
	status   model.AgentStatus
	hosts    []model.HostSnapshot
	err      error
	ensured  int
	collects int
}

func (a *stubAgent) EnsureReady(context.Context) model.AgentStatus {
	a.ensured++
	return a.status
}

func (a *stubAgent) Collect(context.Context) ([]model.HostSnapshot, error) {
	a.collects++
	return a.hosts, a.err
}

func newRunner(agent HostAgent, ins ...inspect.Inspector) *Runner {
	return New(Config{Inspectors: ins, Agent: agent, Clock: clocktesting.NewFakeClock(now)})
}

func TestRunOrdersResultsAndRecordsSkips(t *testing.T) {
	forbidden := &inspect.UnitError{
		Domain: inspect.DomainSecurity,
		Err:    apierrors.NewForbidden(schema.GroupResource{Resource: "clusterroles"}, "", errors.New("rbac")),
	}
	var seen inspect.Scope
	r := newRunner(nil,
		&stubInspector{domain: inspect.DomainStorage, score: 80},
		&stubInspector{domain: inspect.DomainSecurity, err: forbidden},
		&stubInspector{domain: inspect.DomainNodeHealth, score: 100, scope: &seen},
		&stubInspector{domain: inspect.DomainBatch, err: errors.New("timeout")},
	)
	rep := r.Run(context.Background(), Options{ClusterName: "prod", Scope: inspect.NewScope("team-a")})

	require.Len(t, rep.Results, 2)
	assert.Equal(t, inspect.DomainNodeHealth, rep.Results[0].Domain)
	assert.Equal(t, inspect.DomainStorage, rep.Results[1].Domain)
	require.Len(t, rep.Skips, 2)
	assert.Equal(t, inspect.DomainBatch, rep.Skips[0].Domain)
	assert.False(t, rep.Skips[0].RBAC)
	assert.True(t, rep.Skips[1].RBAC)
	assert.Equal(t, []string{"team-a"}, seen.Namespaces)

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, now, rep.Timestamp)
	assert.Equal(t, "prod", rep.ClusterName)
	want := (100*2.0 + 80*1.5) / (2.0 + 1.5)
	assert.InDelta(t, want, rep.OverallScore, 1e-9)
	assert.Equal(t, scoring.HealthTierFor(want), rep.HealthTier)
	assert.Nil(t, rep.AgentStatus)
}

func TestRunDomainSelection(t *testing.T) {
	agent := &stubAgent{status: model.AgentStatus{State: model.AgentReady}}
	r := newRunner(agent,
		&stubInspector{domain: inspect.DomainStorage, score: 80},
		&stubInspector{domain: inspect.DomainNodeHealth, score: 100},
	)
	rep := r.Run(context.Background(), Options{Domains: []string{"storage"}})
	require.Len(t, rep.Results, 1)
	assert.Equal(t, inspect.DomainStorage, rep.Results[0].Domain)
	assert.Zero(t, agent.ensured, "host agents are only consulted for node domains")
}

func TestRunHostAgentFlow(t *testing.T) {
	agent := &stubAgent{
		status: model.AgentStatus{State: model.AgentReadyPartial, Ready: 1, Total: 2},
		hosts:  []model.HostSnapshot{{NodeName: "node-a", ZombieCount: ptr.To(3)}},
	}
	r := newRunner(agent, &stubInspector{domain: inspect.DomainNodeHealth, score: 100})
	rep := r.Run(context.Background(), Options{})

	require.NotNil(t, rep.AgentStatus)
	assert.Equal(t, "ReadyPartial{1/2}", rep.AgentStatus.String())
	assert.Equal(t, 1, agent.collects)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, inspect.DomainNodeInspection, rep.Results[1].Domain)
	assert.Len(t, rep.Hosts, 1)
}

func TestRunHostAgentNotDeployed(t *testing.T) {
	agent := &stubAgent{status: model.AgentStatus{State: model.AgentNotDeployed}}
	rep := newRunner(agent, &stubInspector{domain: inspect.DomainNodeHealth, score: 100}).
		Run(context.Background(), Options{})
	assert.Zero(t, agent.collects)
	assert.Len(t, rep.Results, 1)
	assert.Equal(t, model.AgentNotDeployed, rep.AgentStatus.State)
}

func TestRunHostCollectFailureIsNotFatal(t *testing.T) {
	agent := &stubAgent{status: model.AgentStatus{State: model.AgentReady}, err: errors.New("list failed")}
	rep := newRunner(agent, &stubInspector{domain: inspect.DomainNodeHealth, score: 100}).
		Run(context.Background(), Options{})
	assert.Len(t, rep.Results, 1)
	assert.Empty(t, rep.Hosts)
	require.Len(t, rep.Skips, 1)
	assert.Equal(t, inspect.DomainNodeInspection, rep.Skips[0].Domain)
	assert.Contains(t, rep.Skips[0].Reason, "list failed")
	assert.False(t, rep.Skips[0].RBAC)
}

func TestRunHostCollectForbiddenIsLabelledRBAC(t *testing.T) {
	forbidden := apierrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "", errors.New("denied"))
	agent := &stubAgent{status: model.AgentStatus{State: model.AgentReady}, err: forbidden}
	rep := newRunner(agent).Run(context.Background(), Options{})
	require.Len(t, rep.Skips, 1)
	assert.Equal(t, inspect.DomainNodeInspection, rep.Skips[0].Domain)
	assert.True(t, rep.Skips[0].RBAC)
}

func TestReportFilterRecomputes(t *testing.T) {
	r := newRunner(nil,
		&stubInspector{domain: inspect.DomainStorage, score: 40},
		&stubInspector{domain: inspect.DomainNodeHealth, score: 100},
	)
	rep := r.Run(context.Background(), Options{})
	require.Len(t, rep.AggregatedFindings, 1)

	nodes := rep.Filter(inspect.DomainNodeHealth)
	assert.Equal(t, 100.0, nodes.OverallScore)
	assert.Equal(t, model.TierExcellent, nodes.HealthTier)
	assert.Empty(t, nodes.AggregatedFindings)
	assert.Empty(t, nodes.Summary.KeyFindings)
	assert.Len(t, nodes.Breakdown, 1)

	assert.Len(t, rep.Results, 2, "filter does not modify the receiver")
	assert.Equal(t, rep.ID, nodes.ID)
}

func TestNodeInspection(t *testing.T) {
	hosts := []model.HostSnapshot{
		{
			NodeName:    "node-a",
			ZombieCount: ptr.To(2),
			Disks: []model.HostDiskMount{
				{MountPoint: "/", UsedPct: ptr.To(92.0)},
				{MountPoint: "/var/lib/containerd", UsedPct: ptr.To(81.0)},
			},
			Certificates: []model.HostCertificate{
				{Path: "/etc/kubernetes/pki/apiserver.crt", DaysRemaining: -2},
				{Path: "/var/lib/kubelet/pki/kubelet.crt", DaysRemaining: 12},
			},
		},
		{
			NodeName:     "node-b",
			ZombieCount:  ptr.To(0),
			Resources:    model.HostResources{DiskUsedPct: ptr.To(40.0)},
			Certificates: []model.HostCertificate{{Path: "/etc/kubernetes/pki/ca.crt", DaysRemaining: 3000}},
		},
	}
	res := NodeInspection(hosts, now)
	assert.Equal(t, inspect.DomainNodeInspection, res.Domain)

	rules := map[string]int{}
	for _, f := range res.Summary.Findings {
		rules[f.RuleID]++
	}
	assert.Equal(t, map[string]int{"NODE-003": 1, "NODE-004": 1, "NODE-005": 1, "CERT-002": 1, "CERT-003": 1}, rules)

	scores := map[string]float64{}
	for _, c := range res.Checks {
		scores[c.Name] = c.Score
	}
	assert.Equal(t, 50.0, scores["Zombie Processes"])
	assert.Equal(t, 50.0, scores["Node Disk Usage"])
	assert.InDelta(t, 100.0/3, scores["Node Certificates"], 1e-9)
}
