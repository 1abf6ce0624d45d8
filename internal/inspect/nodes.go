package inspect

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

// NodeHealth checks node readiness and pressure conditions.
type NodeHealth struct{ base }

func NewNodeHealth(d Deps) *NodeHealth { return &NodeHealth{newBase(d, DomainNodeHealth)} }

func (*NodeHealth) Domain() string { return DomainNodeHealth }

func (n *NodeHealth) Inspect(ctx context.Context, _ Scope) (model.AuditResult, error) {
	list, err := n.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return model.AuditResult{}, &UnitError{Domain: DomainNodeHealth, Err: fmt.Errorf("list nodes: %w", err)}
	}

	r := newResults(DomainNodeHealth)
	total := len(list.Items)
	ready, pressured := 0, 0
	for i := range list.Items {
		node := &list.Items[i]
		isReady := false
		underPressure := false
		for _, c := range node.Status.Conditions {
			switch c.Type {
			case corev1.NodeReady:
				if c.Status == corev1.ConditionTrue {
					isReady = true
				}
			case corev1.NodeMemoryPressure, corev1.NodeDiskPressure, corev1.NodePIDPressure:
				if c.Status == corev1.ConditionTrue {
					underPressure = true
					r.find(model.SeverityWarning, "Node", node.Name,
						fmt.Sprintf("Node %s has %s", node.Name, c.Type),
						fmt.Sprintf("Investigate %s on node", c.Type), "NODE-002")
				}
			}
		}
		if isReady {
			ready++
		} else {
			r.find(model.SeverityCritical, "Node", node.Name,
				fmt.Sprintf("Node %s is not ready", node.Name),
				"Check node logs and system resources", "NODE-001")
		}
		if underPressure {
			pressured++
		}
		if reservedDiffers(node) {
			n.log.Debug("node reserves capacity", zap.String("node", node.Name))
		}
	}

	// No nodes at all is degraded, not vacuously healthy.
	readiness := 0.0
	if total > 0 {
		readiness = model.RatioScore(ready, total)
	}
	r.add(model.NewCheck("Node Readiness", "Checks if all nodes are in Ready state", readiness,
		fmt.Sprintf("%d/%d nodes are ready", ready, total),
		"Investigate non-ready nodes"))

	r.add(model.NewCheck("Node Pressure", "Checks for memory, disk, or PID pressure on nodes",
		model.RatioScore(total-pressured, total),
		fmt.Sprintf("%d/%d nodes without pressure", total-pressured, total),
		"Monitor node resource usage and consider scaling"))

	return r.build(n.now())
}

func reservedDiffers(node *corev1.Node) bool {
	for _, res := range []corev1.ResourceName{corev1.ResourceCPU, corev1.ResourceMemory} {
		c, okc := node.Status.Capacity[res]
		a, oka := node.Status.Allocatable[res]
		if okc && oka && c.Cmp(a) != 0 {
			return true
		}
	}
	return false
}
