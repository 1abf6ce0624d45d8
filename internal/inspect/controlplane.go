package inspect

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

var staticControlPlane = []string{"kube-apiserver", "kube-controller-manager", "kube-scheduler", "etcd"}

// ControlPlane checks component statuses and the static control-plane pods.
type ControlPlane struct{ base }

func NewControlPlane(d Deps) *ControlPlane { return &ControlPlane{newBase(d, DomainControlPlane)} }

func (*ControlPlane) Domain() string { return DomainControlPlane }

func (c *ControlPlane) Inspect(ctx context.Context, _ Scope) (model.AuditResult, error) {
	r := newResults(DomainControlPlane)
	c.inspectComponents(ctx, r)
	c.inspectStaticPods(ctx, r)
	return r.build(c.now())
}

func (c *ControlPlane) inspectComponents(ctx context.Context, r *results) {
	const name, desc = "Component Status", "Checks control plane component conditions"
	// ComponentStatus is deprecated and removed on newer servers.
	list, err := c.client.CoreV1().ComponentStatuses().List(ctx, metav1.ListOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) || apierrors.IsGone(err) {
			r.add(model.NewCheck(name, desc, model.MaxCheckScore,
				"Component Status API not available (e.g. Kubernetes 1.24+); check skipped.", ""))
			return
		}
		r.fail(name, desc, fmt.Errorf("list component statuses: %w", err))
		return
	}

	healthy := 0
	for _, cs := range list.Items {
		ok := true
		for _, cond := range cs.Conditions {
			if cond.Status != corev1.ConditionTrue {
				ok = false
				r.find(model.SeverityCritical, "ComponentStatus", cs.Name,
					fmt.Sprintf("Component %s is not healthy: %s", cs.Name, cond.Message),
					"Check component logs and restart if necessary", "CTRL-001")
			}
		}
		if ok {
			healthy++
		}
	}

	// An empty list from a serving API means nothing reported healthy.
	score := 0.0
	if len(list.Items) > 0 {
		score = model.RatioScore(healthy, len(list.Items))
	}
	r.add(model.NewCheck(name, desc, score,
		fmt.Sprintf("%d/%d components healthy", healthy, len(list.Items)),
		"Investigate unhealthy control plane components"))
}

func (c *ControlPlane) inspectStaticPods(ctx context.Context, r *results) {
	const name, desc = "Control Plane Pods", "Checks static control plane pods in kube-system"
	pods, err := c.client.CoreV1().Pods(metav1.NamespaceSystem).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list kube-system pods: %w", err))
		return
	}

	total, running := 0, 0
	for i := range pods.Items {
		p := &pods.Items[i]
		if !nameContainsAny(p.Name, staticControlPlane) {
			continue
		}
		total++
		if podRunning(p) {
			running++
			continue
		}
		r.find(model.SeverityCritical, "Pod", ref(p.Namespace, p.Name),
			fmt.Sprintf("Control plane pod %s is %s", p.Name, p.Status.Phase),
			"Check static pod manifest and kubelet logs on the control plane node", "CTRL-002")
	}

	if total == 0 {
		r.add(model.NewCheck(name, desc, model.MaxCheckScore,
			"No static control-plane pods detected (managed control plane?)", ""))
		return
	}
	r.add(model.NewCheck(name, desc, model.RatioScore(running, total),
		fmt.Sprintf("%d/%d control plane pods running", running, total),
		"Restore failing control plane pods"))
}
