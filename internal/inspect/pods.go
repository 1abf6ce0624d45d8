package inspect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

// Restart thresholds for POD-003 severity.
const (
	restartInfoMax    = 3
	restartWarningMax = 10
)

// PodStatus checks pod phases, container states and restart counts.
type PodStatus struct{ base }

func NewPodStatus(d Deps) *PodStatus { return &PodStatus{newBase(d, DomainPodStatus)} }

func (*PodStatus) Domain() string { return DomainPodStatus }

// stateRuleID maps a container state reason to its rule code.
func stateRuleID(kind, reason string) string {
	if kind == "waiting" {
		switch reason {
		case "ImagePullBackOff":
			return "POD-005"
		case "ErrImagePull":
			return "POD-006"
		case "CrashLoopBackOff":
			return "POD-007"
		case "ContainerCreating":
			return "POD-008"
		case "CreateContainerConfigError":
			return "POD-009"
		default:
			return "POD-004"
		}
	}
	if reason == "OOMKilled" {
		return "POD-010"
	}
	return "POD-011"
}

func (p *PodStatus) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	list, err := p.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return model.AuditResult{}, &UnitError{Domain: DomainPodStatus, Err: fmt.Errorf("list pods: %w", err)}
	}
	pods := scoped(list.Items, scope)

	r := newResults(DomainPodStatus)
	var states []model.PodContainerStateRow
	reasonCounts := map[string]int{}
	running, failed, pending, restarting := 0, 0, 0, 0

	for i := range pods {
		pod := &pods[i]
		pr := ref(pod.Namespace, pod.Name)

		switch pod.Status.Phase {
		case corev1.PodRunning:
			running++
			for _, c := range pod.Status.Conditions {
				if c.Type != corev1.PodReady || c.Status != corev1.ConditionFalse {
					continue
				}
				reason := c.Reason
				if reason == "" {
					reason = "NotReady"
				}
				desc := fmt.Sprintf("Pod %s is Running but not Ready (%s)", pr, reason)
				if c.Message != "" {
					desc += ": " + c.Message
				}
				r.find(model.SeverityCritical, "Pod", pr, desc,
					"Check readiness probes, container logs, and pod events (e.g. kubectl describe pod)", "POD-012")
				break
			}
		case corev1.PodFailed:
			failed++
			r.find(model.SeverityCritical, "Pod", pr,
				fmt.Sprintf("Pod %s is in Failed state", pr),
				"Check pod logs and events", "POD-001")
		case corev1.PodPending:
			pending++
			for _, c := range pod.Status.Conditions {
				if c.Type == corev1.PodScheduled && c.Status == corev1.ConditionFalse {
					r.find(model.SeverityWarning, "Pod", pr,
						fmt.Sprintf("Pod %s cannot be scheduled", pr),
						"Check resource requests and node capacity", "POD-002")
				}
			}
		}

		excessive := false
		for _, cs := range allContainerStatuses(pod) {
			if w := cs.State.Waiting; w != nil {
				reason := w.Reason
				if reason == "" {
					reason = "Waiting"
				}
				reasonCounts[reason]++
				states = append(states, model.PodContainerStateRow{
					PodRef: pr, ContainerName: cs.Name, StateKind: "waiting", Reason: reason, Detail: w.Message,
				})
				desc := fmt.Sprintf("Pod %s has container %s in state %s", pr, cs.Name, reason)
				if w.Message != "" {
					desc += ": " + w.Message
				}
				r.find(model.SeverityCritical, "Container", pr, desc,
					"Check image, pull secrets, and pod events (e.g. kubectl describe pod)", stateRuleID("waiting", reason))
			}
			if t := cs.State.Terminated; t != nil && t.ExitCode != 0 {
				reason := t.Reason
				if reason == "" {
					reason = "Terminated"
				}
				reasonCounts[reason]++
				states = append(states, model.PodContainerStateRow{
					PodRef: pr, ContainerName: cs.Name, StateKind: "terminated", Reason: reason,
					Detail: fmt.Sprintf("exit_code=%d", t.ExitCode),
				})
				r.find(model.SeverityCritical, "Container", pr,
					fmt.Sprintf("Pod %s container %s terminated: reason=%s, exit_code=%d", pr, cs.Name, reason, t.ExitCode),
					"Check container logs and events", stateRuleID("terminated", reason))
			}

			n := int(cs.RestartCount)
			if n > restartInfoMax {
				excessive = true
			}
			if n == 0 {
				continue
			}
			sev := model.SeverityInfo
			switch {
			case n > restartWarningMax:
				sev = model.SeverityCritical
			case n > restartInfoMax:
				sev = model.SeverityWarning
			}
			r.find(sev, "Container", pr,
				fmt.Sprintf("Container %s in pod %s has %d restarts", cs.Name, pr, n),
				"Investigate container crashes and resource limits", "POD-003")
		}
		if excessive {
			restarting++
		}
	}

	total := len(pods)
	details := fmt.Sprintf("Running: %d, Failed: %d, Pending: %d, Total: %d", running, failed, pending, total)
	if len(reasonCounts) > 0 {
		details += ". Container states: " + formatCounts(reasonCounts)
	}
	r.add(model.NewCheck("Pod Health", "Checks if pods are running successfully",
		model.RatioScore(running, total), details, "Investigate failed and pending pods"))
	r.add(model.NewCheck("Pod Stability", "Checks for excessive pod restarts",
		model.RatioScore(total-restarting, total),
		fmt.Sprintf("%d/%d pods with excessive restarts", restarting, total),
		"Review application logs and resource limits"))

	res, err := r.build(p.now())
	if err != nil {
		return res, err
	}
	res.PodContainerStates = states
	return res, nil
}

// formatCounts renders "2 CrashLoopBackOff, 1 OOMKilled" sorted by reason.
func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", m[k], k))
	}
	return strings.Join(parts, ", ")
}
