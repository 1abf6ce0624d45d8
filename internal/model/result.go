package model

import "time"

// AuditSummary counts Checks by status and carries the unit's findings.
type AuditSummary struct {
	TotalChecks    int       `json:"totalChecks"`
	PassedChecks   int       `json:"passedChecks"`
	WarningChecks  int       `json:"warningChecks"`
	CriticalChecks int       `json:"criticalChecks"`
	ErrorChecks    int       `json:"errorChecks"`
	Findings       []Finding `json:"findings"`
}

// AuditResult is the output of one audit unit for one run.
type AuditResult struct {
	Domain       string       `json:"domain"`
	Timestamp    time.Time    `json:"timestamp"`
	OverallScore float64      `json:"overallScore"`
	Checks       []Check      `json:"checks"`
	Summary      AuditSummary `json:"summary"`

	CertificateExpiries []CertificateExpiryRow `json:"certificateExpiries,omitempty"`
	PodContainerStates  []PodContainerStateRow `json:"podContainerStates,omitempty"`
	NamespaceSummaries  []NamespaceSummaryRow  `json:"namespaceSummaries,omitempty"`
}

// NewAuditResult assembles a result. OverallScore is always the unweighted
// mean of the check scores; cross-domain weighting happens in scoring.
func NewAuditResult(domain string, ts time.Time, checks []Check, findings []Finding) AuditResult {
	if findings == nil {
		findings = []Finding{}
	}
	return AuditResult{
		Domain:       domain,
		Timestamp:    ts,
		OverallScore: MeanScore(checks),
		Checks:       checks,
		Summary:      Summarize(checks, findings),
	}
}

// MeanScore is the unweighted mean of check scores, 0 for no checks.
func MeanScore(checks []Check) float64 {
	if len(checks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range checks {
		sum += c.Score
	}
	return sum / float64(len(checks))
}

// Summarize counts checks by status.
func Summarize(checks []Check, findings []Finding) AuditSummary {
	s := AuditSummary{TotalChecks: len(checks), Findings: findings}
	for _, c := range checks {
		switch c.Status {
		case StatusPass:
			s.PassedChecks++
		case StatusWarning:
			s.WarningChecks++
		case StatusCritical:
			s.CriticalChecks++
		case StatusError:
			s.ErrorChecks++
		}
	}
	return s
}

// CertificateExpiryRow is one TLS secret expiry entry.
type CertificateExpiryRow struct {
	SecretNamespace string `json:"secretNamespace"`
	SecretName      string `json:"secretName"`
	Subject         string `json:"subject"`
	ExpiryUTC       string `json:"expiryUtc"`
	DaysUntilExpiry int    `json:"daysUntilExpiry"`
}

// PodContainerStateRow is one container observed in an abnormal state.
type PodContainerStateRow struct {
	PodRef        string `json:"podRef"`
	ContainerName string `json:"containerName"`
	StateKind     string `json:"stateKind"`
	Reason        string `json:"reason"`
	Detail        string `json:"detail,omitempty"`
}

// NamespaceSummaryRow describes the governance posture of one namespace.
type NamespaceSummaryRow struct {
	Name             string `json:"name"`
	PodCount         int    `json:"podCount"`
	DeploymentCount  int    `json:"deploymentCount"`
	HasNetworkPolicy bool   `json:"hasNetworkPolicy"`
	HasResourceQuota bool   `json:"hasResourceQuota"`
	HasLimitRange    bool   `json:"hasLimitRange"`
}
