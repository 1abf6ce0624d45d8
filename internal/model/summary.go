package model

// HealthTier is the coarse label derived from the weighted cluster score.
type HealthTier string

const (
	TierExcellent HealthTier = "Excellent"
	TierGood      HealthTier = "Good"
	TierFair      HealthTier = "Fair"
	TierPoor      HealthTier = "Poor"
	TierCritical  HealthTier = "Critical"
)

// Rank orders tiers: Excellent is highest.
func (t HealthTier) Rank() int {
	switch t {
	case TierExcellent:
		return 4
	case TierGood:
		return 3
	case TierFair:
		return 2
	case TierPoor:
		return 1
	default:
		return 0
	}
}

// ExecutiveSummary is derived from a set of AuditResults and recomputed
// whenever that set changes.
type ExecutiveSummary struct {
	HealthTier              HealthTier         `json:"healthTier"`
	KeyFindings             []string           `json:"keyFindings"`
	PriorityRecommendations []string           `json:"priorityRecommendations"`
	ScoreBreakdown          map[string]float64 `json:"scoreBreakdown"`
}
