// Package compare diffs two audit reports of the same cluster.
package compare

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"kube-health-audit/internal/model"
	"kube-health-audit/internal/runner"
)

// Comparison is the delta from a previous report to the current one.
type Comparison struct {
	PreviousID        string           `json:"previousId"`
	PreviousTimestamp time.Time        `json:"previousTimestamp"`
	PreviousScore     float64          `json:"previousScore"`
	PreviousTier      model.HealthTier `json:"previousTier"`
	ScoreDelta        float64          `json:"scoreDelta"`

	DomainsAdded   []string           `json:"domainsAdded,omitempty"`
	DomainsRemoved []string           `json:"domainsRemoved,omitempty"`
	DomainDeltas   map[string]float64 `json:"domainDeltas,omitempty"`

	FindingsNew      []model.Finding `json:"findingsNew,omitempty"`
	FindingsResolved []model.Finding `json:"findingsResolved,omitempty"`
}

// Diff compares prev against curr.
func Diff(prev, curr *runner.Report) Comparison {
	r := Comparison{
		PreviousID:        prev.ID,
		PreviousTimestamp: prev.Timestamp,
		PreviousScore:     prev.OverallScore,
		PreviousTier:      prev.HealthTier,
		ScoreDelta:        curr.OverallScore - prev.OverallScore,
	}

	prevScores := domainScores(prev)
	currScores := domainScores(curr)
	d := setDelta(keys(prevScores), keys(currScores))
	r.DomainsAdded, r.DomainsRemoved = d.added, d.removed
	for domain, c := range currScores {
		if p, ok := prevScores[domain]; ok && p != c {
			if r.DomainDeltas == nil {
				r.DomainDeltas = map[string]float64{}
			}
			r.DomainDeltas[domain] = c - p
		}
	}

	prevSet := findingSet(prev)
	currSet := findingSet(curr)
	for k, f := range currSet {
		if _, ok := prevSet[k]; !ok {
			r.FindingsNew = append(r.FindingsNew, f)
		}
	}
	for k, f := range prevSet {
		if _, ok := currSet[k]; !ok {
			r.FindingsResolved = append(r.FindingsResolved, f)
		}
	}
	sortFindings(r.FindingsNew)
	sortFindings(r.FindingsResolved)
	return r
}

// LoadReport reads a report JSON written by output.WriteJSON.
func LoadReport(path string) (*runner.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compare: read %s: %w", path, err)
	}
	var rep runner.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("compare: decode %s: %w", path, err)
	}
	return &rep, nil
}

type delta struct {
	added   []string
	removed []string
}

func keys[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func setDelta(prev, curr map[string]struct{}) delta {
	var d delta
	for k := range curr {
		if _, ok := prev[k]; !ok {
			d.added = append(d.added, k)
		}
	}
	for k := range prev {
		if _, ok := curr[k]; !ok {
			d.removed = append(d.removed, k)
		}
	}
	sort.Strings(d.added)
	sort.Strings(d.removed)
	return d
}

func domainScores(rep *runner.Report) map[string]float64 {
	m := make(map[string]float64, len(rep.Results))
	for _, res := range rep.Results {
		m[res.Domain] = res.OverallScore
	}
	return m
}

// findingSet keys findings by rule and resource; findings without a rule
// fall back to their description.
func findingSet(rep *runner.Report) map[string]model.Finding {
	m := make(map[string]model.Finding)
	for _, res := range rep.Results {
		for _, f := range res.Summary.Findings {
			id := f.RuleID
			if id == "" {
				id = f.Category + ":" + f.Description
			}
			m[id+"|"+f.Resource] = f
		}
	}
	return m
}

func sortFindings(fs []model.Finding) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Severity.Rank() != fs[j].Severity.Rank() {
			return fs[i].Severity.Rank() > fs[j].Severity.Rank()
		}
		if fs[i].RuleID != fs[j].RuleID {
			return fs[i].RuleID < fs[j].RuleID
		}
		return fs[i].Resource < fs[j].Resource
	})
}
