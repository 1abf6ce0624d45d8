package model

import "fmt"

// AgentState is the terminal outcome of one host-agent readiness pass.
type AgentState string

const (
	AgentNotDeployed       AgentState = "NotDeployed"
	AgentReady             AgentState = "Ready"
	AgentRestartedAndReady AgentState = "RestartedAndReady"
	AgentReadyPartial      AgentState = "ReadyPartial"
)

// AgentStatus is transient, per-invocation state. Ready and Total are only
// meaningful for ReadyPartial but are always encoded, so zero ready agents
// stays distinguishable from a missing count.
type AgentStatus struct {
	State AgentState `json:"state"`
	Ready int        `json:"ready"`
	Total int        `json:"total"`
}

// Collectable reports whether snapshots should be collected after the pass.
func (s AgentStatus) Collectable() bool {
	return s.State != AgentNotDeployed && s.State != ""
}

func (s AgentStatus) String() string {
	if s.State == AgentReadyPartial {
		return fmt.Sprintf("%s{%d/%d}", s.State, s.Ready, s.Total)
	}
	return string(s.State)
}
