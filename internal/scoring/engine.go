// Package scoring combines audit results into one weighted score, a health
// tier and aggregated findings and recommendations.
//
// Every function here is a pure function of its input: map traversals are
// always followed by an explicit sort.
package scoring

import (
	"sort"

	"kube-health-audit/internal/inspect"
	"kube-health-audit/internal/model"
	"kube-health-audit/internal/profile"
)

// DefaultWeight applies to any domain missing from the table.
const DefaultWeight = 1.0

// DefaultMaxRecommendations caps AggregateRecommendations when max <= 0.
const DefaultMaxRecommendations = 5

// MaxKeyFindings caps ExecutiveSummary.KeyFindings.
const MaxKeyFindings = 5

// DefaultWeights returns a fresh copy of the per-domain weight table.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		inspect.DomainNodeHealth:    2.0,
		inspect.DomainPodStatus:     2.5,
		inspect.DomainSecurity:      2.2,
		inspect.DomainResourceUsage: 1.8,
		inspect.DomainNetwork:       1.8,
		inspect.DomainStorage:       1.5,
		inspect.DomainControlPlane:  2.5,
		inspect.DomainAutoscaling:   1.8,
		inspect.DomainBatch:         1.2,
		inspect.DomainPolicy:        1.6,
		inspect.DomainObservability: 1.4,
		inspect.DomainUpgrade:       1.7,
	}
}

// Engine scores results against one weight table.
type Engine struct {
	weights map[string]float64
	maxRecs int
}

// Options configure an Engine.
type Options struct {
	Profile profile.Name
	// Overrides replace the profile-scaled weight of a domain.
	Overrides          map[string]float64
	MaxRecommendations int
}

// New builds an Engine: default weights, scaled by the profile multipliers,
// then replaced by explicit overrides.
func New(opts Options) *Engine {
	w := DefaultWeights()
	for domain, m := range profile.Multipliers(opts.Profile) {
		w[domain] = weightOf(w, domain) * m
	}
	for domain, v := range opts.Overrides {
		if v > 0 {
			w[domain] = v
		}
	}
	maxRecs := opts.MaxRecommendations
	if maxRecs <= 0 {
		maxRecs = DefaultMaxRecommendations
	}
	return &Engine{weights: w, maxRecs: maxRecs}
}

// Weight returns the weight used for domain.
func (e *Engine) Weight(domain string) float64 { return weightOf(e.weights, domain) }

func weightOf(weights map[string]float64, domain string) float64 {
	if v, ok := weights[domain]; ok {
		return v
	}
	return DefaultWeight
}

// WeightedScore is Σ(score×weight)/Σ(weight) over results, 0 for none.
func (e *Engine) WeightedScore(results []model.AuditResult) float64 {
	var sum, total float64
	for _, r := range results {
		w := e.Weight(r.Domain)
		sum += r.OverallScore * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// HealthTierFor buckets a score. The buckets partition the real line so
// every input maps to exactly one tier.
func HealthTierFor(score float64) model.HealthTier {
	switch {
	case score >= 90:
		return model.TierExcellent
	case score >= 80:
		return model.TierGood
	case score >= 70:
		return model.TierFair
	case score >= 60:
		return model.TierPoor
	default:
		return model.TierCritical
	}
}

// ScoreBreakdown returns one row per result, sorted by domain name.
func (e *Engine) ScoreBreakdown(results []model.AuditResult) []model.DomainScore {
	rows := make([]model.DomainScore, 0, len(results))
	for _, r := range results {
		rows = append(rows, model.DomainScore{
			Domain:         r.Domain,
			Score:          r.OverallScore,
			Weight:         e.Weight(r.Domain),
			Tier:           HealthTierFor(r.OverallScore),
			CheckCount:     r.Summary.TotalChecks,
			CriticalChecks: r.Summary.CriticalChecks,
			WarningChecks:  r.Summary.WarningChecks,
			FindingCount:   len(r.Summary.Findings),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Domain < rows[j].Domain })
	return rows
}

// Summarize derives the executive summary for results.
func (e *Engine) Summarize(results []model.AuditResult) model.ExecutiveSummary {
	score := e.WeightedScore(results)

	keys := []string{}
	for _, row := range AggregateFindings(results) {
		if len(keys) == MaxKeyFindings {
			break
		}
		keys = append(keys, row.Title)
	}

	breakdown := make(map[string]float64, len(results))
	for _, r := range results {
		breakdown[r.Domain] = r.OverallScore
	}

	return model.ExecutiveSummary{
		HealthTier:              HealthTierFor(score),
		KeyFindings:             keys,
		PriorityRecommendations: AggregateRecommendations(results, e.maxRecs),
		ScoreBreakdown:          breakdown,
	}
}
