package model

// UnitSkip records an audit unit that produced no result during the run.
type UnitSkip struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
	// true when the error looks like a permissions/forbidden error
	RBAC bool `json:"rbac"`
}
