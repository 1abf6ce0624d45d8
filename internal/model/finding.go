package model

// Severity ranks a Finding. It is independent of the status of any Check.
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// Rank orders severities so that Critical sorts first when descending.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Finding is one concrete result tied to a rule and, optionally, a resource.
// Findings are values: once appended to a result they are never mutated.
type Finding struct {
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	Resource       string   `json:"resource,omitempty"`
	Recommendation string   `json:"recommendation"`
	RuleID         string   `json:"ruleId,omitempty"`
}

// NewFinding builds a Finding; resource and ruleID may be empty.
func NewFinding(sev Severity, category, resource, description, recommendation, ruleID string) Finding {
	return Finding{
		Severity:       sev,
		Category:       category,
		Description:    description,
		Resource:       resource,
		Recommendation: recommendation,
		RuleID:         ruleID,
	}
}
