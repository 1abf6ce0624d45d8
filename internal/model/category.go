package model

// DomainScore is one row of the score breakdown table.
type DomainScore struct {
	Domain         string     `json:"domain"`
	Score          float64    `json:"score"`
	Weight         float64    `json:"weight"`
	Tier           HealthTier `json:"tier"`
	CheckCount     int        `json:"checkCount"`
	CriticalChecks int        `json:"criticalChecks"`
	WarningChecks  int        `json:"warningChecks"`
	FindingCount   int        `json:"findingCount"`
}

// AggregatedFinding groups Critical findings that share a rule code (or,
// without one, a category and recommendation) across resources.
type AggregatedFinding struct {
	Key            string   `json:"key"`
	RuleID         string   `json:"ruleId,omitempty"`
	Category       string   `json:"category"`
	Title          string   `json:"title"`
	Recommendation string   `json:"recommendation"`
	Resources      []string `json:"resources"`
	Occurrences    int      `json:"occurrences"`
}
