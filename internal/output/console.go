package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"kube-health-audit/internal/model"
	"kube-health-audit/internal/runner"
	"kube-health-audit/internal/trend"
)

// CISummary is the single-line machine-readable result printed in quiet
// mode.
type CISummary struct {
	ID           string             `json:"id"`
	TimestampUTC string             `json:"timestampUtc"`
	Cluster      string             `json:"cluster"`
	Overall      float64            `json:"overall"`
	Tier         model.HealthTier   `json:"tier"`
	Status       string             `json:"status"`
	MinScore     float64            `json:"minScore"`
	Profile      string             `json:"profile"`
	Domains      map[string]float64 `json:"domains"`
	Agent        string             `json:"agent,omitempty"`
	Trend        string             `json:"trend,omitempty"`
	Delta        float64            `json:"delta"`
	Skipped      []string           `json:"skipped,omitempty"`
}

// Passed reports whether the weighted score meets minScore.
func Passed(rep *runner.Report, minScore float64) bool {
	return rep.OverallScore >= minScore
}

// NewCISummary condenses rep. tr may be nil when history is disabled.
func NewCISummary(rep *runner.Report, minScore float64, profile string, tr *trend.Trend) CISummary {
	s := CISummary{
		ID:           rep.ID,
		TimestampUTC: rep.Timestamp.UTC().Format(time.RFC3339),
		Cluster:      rep.ClusterName,
		Overall:      round1(rep.OverallScore),
		Tier:         rep.HealthTier,
		Status:       "PASSED",
		MinScore:     minScore,
		Profile:      profile,
		Domains:      rep.Summary.ScoreBreakdown,
	}
	if !Passed(rep, minScore) {
		s.Status = "FAILED"
	}
	if rep.AgentStatus != nil {
		s.Agent = rep.AgentStatus.String()
	}
	if tr != nil {
		s.Trend = tr.Label()
		s.Delta = tr.DeltaScore
	}
	for _, sk := range rep.Skips {
		s.Skipped = append(s.Skipped, sk.Domain)
	}
	return s
}

// WriteCISummary prints s as one JSON line.
func WriteCISummary(w io.Writer, s CISummary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ci summary: %w", err)
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

// WriteConsole prints the human-readable run summary.
func WriteConsole(w io.Writer, rep *runner.Report, minScore float64, tr *trend.Trend) {
	fmt.Fprintf(w, "Cluster: %s\n", rep.ClusterName)
	fmt.Fprintln(w, "Domain scores:")
	for _, row := range rep.Breakdown {
		fmt.Fprintf(w, "  %-24s %6.1f  %-9s (weight %.1f, %d findings)\n",
			row.Domain, row.Score, row.Tier, row.Weight, row.FindingCount)
	}
	for _, sk := range rep.Skips {
		reason := sk.Reason
		if sk.RBAC {
			reason = "permission denied: " + reason
		}
		fmt.Fprintf(w, "  %-24s skipped (%s)\n", sk.Domain, reason)
	}

	if len(rep.Summary.KeyFindings) > 0 {
		fmt.Fprintln(w, "Key findings:")
		for _, f := range rep.Summary.KeyFindings {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	if len(rep.Summary.PriorityRecommendations) > 0 {
		fmt.Fprintln(w, "Priority recommendations:")
		for i, r := range rep.Summary.PriorityRecommendations {
			fmt.Fprintf(w, "  %d. %s\n", i+1, r)
		}
	}

	fmt.Fprintln(w, AgentNotice(rep.AgentStatus))

	if tr != nil {
		if tr.Direction == trend.FirstRun {
			fmt.Fprintln(w, "Trend: FIRST RUN (no previous audit found)")
		} else {
			fmt.Fprintf(w, "Trend: %s (%+.1f) Previous: %.1f, Current: %.1f\n",
				tr.Label(), tr.DeltaScore, tr.From, tr.To)
		}
	}

	fmt.Fprintf(w, "Final Score: %.1f\n", rep.OverallScore)
	fmt.Fprintf(w, "Health Tier: %s\n", rep.HealthTier)
	if Passed(rep, minScore) {
		fmt.Fprintln(w, "Audit Status: PASSED")
	} else {
		fmt.Fprintf(w, "Audit Status: FAILED (score below %.0f)\n", minScore)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
