package model

// CheckStatus is the outcome of one scoreable sub-audit.
type CheckStatus string

const (
	StatusPass     CheckStatus = "Pass"
	StatusWarning  CheckStatus = "Warning"
	StatusCritical CheckStatus = "Critical"
	StatusError    CheckStatus = "Error"
)

// MaxCheckScore is the ceiling of every Check score.
const MaxCheckScore = 100.0

// Status thresholds shared by every audit unit.
const (
	PassThreshold    = 90.0
	WarningThreshold = 70.0
)

// Check is one logical sub-audit within an audit unit.
type Check struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Status          CheckStatus `json:"status"`
	Score           float64     `json:"score"`
	MaxScore        float64     `json:"maxScore"`
	Details         string      `json:"details,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
}

// StatusFromScore applies the uniform threshold policy:
// score >= 90 is Pass, 70 <= score < 90 is Warning, below 70 is Critical.
func StatusFromScore(score float64) CheckStatus {
	switch {
	case score >= PassThreshold:
		return StatusPass
	case score >= WarningThreshold:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// RatioScore returns healthy/total*100, or 100 when total is zero.
func RatioScore(healthy, total int) float64 {
	if total <= 0 {
		return MaxCheckScore
	}
	return float64(healthy) * MaxCheckScore / float64(total)
}

// NewCheck builds a Check whose status is derived from score. The
// recommendation is attached only when the check did not pass.
func NewCheck(name, description string, score float64, details, recommendation string) Check {
	c := Check{
		Name:        name,
		Description: description,
		Status:      StatusFromScore(score),
		Score:       clampScore(score),
		MaxScore:    MaxCheckScore,
		Details:     details,
	}
	if c.Status != StatusPass && recommendation != "" {
		c.Recommendations = []string{recommendation}
	}
	return c
}

// ErrorCheck reports a collection failure the unit chose to surface rather
// than propagate. It scores zero so the failure is visible in the mean.
func ErrorCheck(name, description string, err error) Check {
	return Check{
		Name:            name,
		Description:     description,
		Status:          StatusError,
		Score:           0,
		MaxScore:        MaxCheckScore,
		Details:         "collection failed: " + err.Error(),
		Recommendations: []string{"Verify API access (RBAC) for " + name},
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxCheckScore {
		return MaxCheckScore
	}
	return v
}
