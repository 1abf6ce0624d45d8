package scoring

import (
	"sort"

	"kube-health-audit/internal/model"
)

// AggregateFindings groups Critical findings by rule code, or by category and
// recommendation when a finding has none. Rows are sorted by affected
// resource count, descending, then by key.
func AggregateFindings(results []model.AuditResult) []model.AggregatedFinding {
	var rows []model.AggregatedFinding
	for _, r := range results {
		for _, f := range r.Summary.Findings {
			if f.Severity != model.SeverityCritical {
				continue
			}
			row := model.AggregatedFinding{
				Key:            groupKey(f.RuleID, f.Category, f.Recommendation),
				RuleID:         f.RuleID,
				Category:       f.Category,
				Title:          f.Description,
				Recommendation: f.Recommendation,
				Occurrences:    1,
			}
			if f.Resource != "" {
				row.Resources = []string{f.Resource}
			}
			rows = append(rows, row)
		}
	}
	return Regroup(rows)
}

// Regroup merges rows that share a key. Applying it to its own output
// returns the same rows.
func Regroup(rows []model.AggregatedFinding) []model.AggregatedFinding {
	byKey := map[string]*model.AggregatedFinding{}
	var order []string
	for _, row := range rows {
		key := row.Key
		if key == "" {
			key = groupKey(row.RuleID, row.Category, row.Recommendation)
		}
		g, ok := byKey[key]
		if !ok {
			g = &model.AggregatedFinding{
				Key:            key,
				RuleID:         row.RuleID,
				Category:       row.Category,
				Title:          row.Title,
				Recommendation: row.Recommendation,
			}
			if t, ok := model.ShortTitle(row.RuleID); ok {
				g.Title = t
			}
			byKey[key] = g
			order = append(order, key)
		}
		g.Resources = append(g.Resources, row.Resources...)
		g.Occurrences += row.Occurrences
	}

	out := make([]model.AggregatedFinding, 0, len(order))
	for _, key := range order {
		g := byKey[key]
		g.Resources = uniqueSorted(g.Resources)
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Resources) != len(out[j].Resources) {
			return len(out[i].Resources) > len(out[j].Resources)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func groupKey(ruleID, category, recommendation string) string {
	if ruleID != "" {
		return ruleID
	}
	return category + "|" + recommendation
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// AggregateRecommendations dedupes recommendation text from Critical
// findings and non-passing checks, orders it by occurrence count (ties by
// text) and keeps at most max entries.
func AggregateRecommendations(results []model.AuditResult, max int) []string {
	if max <= 0 {
		max = DefaultMaxRecommendations
	}
	counts := map[string]int{}
	for _, r := range results {
		for _, f := range r.Summary.Findings {
			if f.Severity == model.SeverityCritical && f.Recommendation != "" {
				counts[f.Recommendation]++
			}
		}
		for _, c := range r.Checks {
			if c.Status == model.StatusPass {
				continue
			}
			for _, rec := range c.Recommendations {
				if rec != "" {
					counts[rec]++
				}
			}
		}
	}

	recs := make([]string, 0, len(counts))
	for rec := range counts {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if counts[recs[i]] != counts[recs[j]] {
			return counts[recs[i]] > counts[recs[j]]
		}
		return recs[i] < recs[j]
	})
	if len(recs) > max {
		recs = recs[:max]
	}
	return recs
}
