package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusFromScoreBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  CheckStatus
	}{
		{100, StatusPass},
		{90, StatusPass},
		{89.999, StatusWarning},
		{70, StatusWarning},
		{69.999, StatusCritical},
		{0, StatusCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFromScore(tc.score), "score %v", tc.score)
	}
}

func TestRatioScore(t *testing.T) {
	assert.Equal(t, 90.0, RatioScore(9, 10))
	assert.Equal(t, StatusPass, NewCheck("n", "d", RatioScore(9, 10), "", "").Status)
	assert.Equal(t, 100.0, RatioScore(0, 0))
	assert.InDelta(t, 66.667, RatioScore(2, 3), 0.001)
}

func TestNewCheckRecommendationOnlyWhenNotPassing(t *testing.T) {
	pass := NewCheck("n", "d", 95, "ok", "do something")
	assert.Empty(t, pass.Recommendations)
	warn := NewCheck("n", "d", 75, "meh", "do something")
	assert.Equal(t, []string{"do something"}, warn.Recommendations)
	assert.Equal(t, MaxCheckScore, warn.MaxScore)
}

func TestNewCheckClampsScore(t *testing.T) {
	assert.Equal(t, 0.0, NewCheck("n", "d", -12, "", "").Score)
	assert.Equal(t, 100.0, NewCheck("n", "d", 140, "", "").Score)
}

func TestErrorCheck(t *testing.T) {
	c := ErrorCheck("PVC Binding", "d", errors.New("forbidden"))
	assert.Equal(t, StatusError, c.Status)
	assert.Zero(t, c.Score)
	assert.Contains(t, c.Details, "forbidden")
}

func TestNewAuditResultIsUnweightedMean(t *testing.T) {
	checks := []Check{
		NewCheck("a", "", 100, "", ""),
		NewCheck("b", "", 50, "", "fix"),
		ErrorCheck("c", "", errors.New("boom")),
	}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res := NewAuditResult("Storage", ts, checks, nil)
	assert.Equal(t, 50.0, res.OverallScore)
	assert.Equal(t, 3, res.Summary.TotalChecks)
	assert.Equal(t, 1, res.Summary.PassedChecks)
	assert.Equal(t, 1, res.Summary.CriticalChecks)
	assert.Equal(t, 1, res.Summary.ErrorChecks)
	assert.NotNil(t, res.Summary.Findings)

	assert.Zero(t, NewAuditResult("Empty", ts, nil, nil).OverallScore)
}

func TestRanks(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityWarning.Rank())
	assert.Greater(t, SeverityWarning.Rank(), SeverityInfo.Rank())
	assert.Greater(t, TierExcellent.Rank(), TierGood.Rank())
	assert.Greater(t, TierPoor.Rank(), TierCritical.Rank())
}

func TestShortTitleAndDocPath(t *testing.T) {
	title, ok := ShortTitle("POD-007")
	assert.True(t, ok)
	assert.Equal(t, "CrashLoopBackOff", title)
	_, ok = ShortTitle("NOPE-1")
	assert.False(t, ok)
	assert.Equal(t, "docs/issues/SEC-003.md", DocPath("SEC-003"))
}

func TestAgentStatus(t *testing.T) {
	assert.False(t, AgentStatus{State: AgentNotDeployed}.Collectable())
	assert.True(t, AgentStatus{State: AgentRestartedAndReady}.Collectable())
	assert.Equal(t, "ReadyPartial{2/3}", AgentStatus{State: AgentReadyPartial, Ready: 2, Total: 3}.String())
	assert.Equal(t, "Ready", AgentStatus{State: AgentReady}.String())
}

func TestAgentStatusEncodesZeroReady(t *testing.T) {
	b, err := json.Marshal(AgentStatus{State: AgentReadyPartial, Ready: 0, Total: 3})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"state":"ReadyPartial","ready":0,"total":3}`, string(b))
}
