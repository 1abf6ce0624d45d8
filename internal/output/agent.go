package output

import (
	"fmt"

	"kube-health-audit/internal/model"
)

// AgentNotice is the operator-facing line for a host-agent readiness
// outcome. Partial data is always labelled with its ready/total counts.
func AgentNotice(st *model.AgentStatus) string {
	if st == nil {
		return "Node inspection: not requested."
	}
	switch st.State {
	case model.AgentNotDeployed:
		return "Node inspection: host agent not deployed or not reachable; node-level checks skipped."
	case model.AgentReady:
		return "Node inspection: all host agents reported."
	case model.AgentRestartedAndReady:
		return "Node inspection: host agent data was stale; agents were restarted and all reported fresh data."
	case model.AgentReadyPartial:
		return fmt.Sprintf("Node inspection: PARTIAL DATA, %d of %d host agents reported before the deadline; "+
			"node-level results cover only the reporting hosts.", st.Ready, st.Total)
	default:
		return "Node inspection: unknown agent state " + string(st.State) + "."
	}
}
