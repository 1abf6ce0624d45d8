package inspect

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

// systemNamespaces are exempt from quota expectations.
var systemNamespaces = map[string]bool{
	"kube-system":     true,
	"kube-public":     true,
	"kube-node-lease": true,
}

// ResourceUsage checks container requests and limits.
type ResourceUsage struct{ base }

func NewResourceUsage(d Deps) *ResourceUsage { return &ResourceUsage{newBase(d, DomainResourceUsage)} }

func (*ResourceUsage) Domain() string { return DomainResourceUsage }

func (ru *ResourceUsage) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	list, err := ru.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return model.AuditResult{}, &UnitError{Domain: DomainResourceUsage, Err: fmt.Errorf("list pods: %w", err)}
	}
	pods := scoped(list.Items, scope)

	r := newResults(DomainResourceUsage)
	total, withRequests, withLimits, withBoth := 0, 0, 0, 0
	for i := range pods {
		pod := &pods[i]
		pr := ref(pod.Namespace, pod.Name)
		for _, c := range pod.Spec.Containers {
			total++
			hasReq := len(c.Resources.Requests) > 0
			hasLim := len(c.Resources.Limits) > 0
			if hasReq {
				withRequests++
			}
			if hasLim {
				withLimits++
			}
			if hasReq && hasLim {
				withBoth++
			}
			validateLimits(r, pr, c)
			if !hasReq {
				r.find(model.SeverityWarning, "Container", pr,
					fmt.Sprintf("Container %s in pod %s has no resource requests", c.Name, pr),
					"Set CPU and memory requests for better scheduling", "RES-001")
			}
			if !hasLim {
				r.find(model.SeverityWarning, "Container", pr,
					fmt.Sprintf("Container %s in pod %s has no resource limits", c.Name, pr),
					"Set CPU and memory limits to prevent resource exhaustion", "RES-002")
			}
		}
	}

	ru.findUnquotaedNamespaces(ctx, r, scope)

	r.add(model.NewCheck("Resource Requests", "Checks if containers have resource requests configured",
		model.RatioScore(withRequests, total),
		fmt.Sprintf("%d/%d containers with resource requests", withRequests, total),
		"Configure resource requests for better pod scheduling"))
	r.add(model.NewCheck("Resource Limits", "Checks if containers have resource limits configured",
		model.RatioScore(withLimits, total),
		fmt.Sprintf("%d/%d containers with resource limits", withLimits, total),
		"Configure resource limits to prevent resource exhaustion"))

	r.add(model.NewCheck("Complete Resource Configuration",
		"Checks if containers have both requests and limits configured",
		model.RatioScore(withBoth, total),
		fmt.Sprintf("%d/%d containers with complete resource configuration", withBoth, total),
		"Configure both requests and limits for optimal resource management"))

	return r.build(ru.now())
}

func validateLimits(r *results, podRef string, c corev1.Container) {
	req, lim := c.Resources.Requests, c.Resources.Limits
	if rq, ok := req[corev1.ResourceCPU]; ok {
		if lq, ok := lim[corev1.ResourceCPU]; ok && lq.Cmp(rq) < 0 {
			r.find(model.SeverityCritical, "Container", podRef,
				fmt.Sprintf("Container %s in pod %s has CPU limit lower than request", c.Name, podRef),
				"Ensure CPU limits are higher than or equal to requests", "RES-004")
		}
	}
	if rq, ok := req[corev1.ResourceMemory]; ok {
		if lq, ok := lim[corev1.ResourceMemory]; ok && lq.Cmp(rq) < 0 {
			r.find(model.SeverityCritical, "Container", podRef,
				fmt.Sprintf("Container %s in pod %s has memory limit lower than request", c.Name, podRef),
				"Ensure memory limits are higher than or equal to requests", "RES-005")
		}
	}
}

// findUnquotaedNamespaces adds RES-003 findings. It is best effort: the
// quota coverage check proper lives in the policy domain.
func (ru *ResourceUsage) findUnquotaedNamespaces(ctx context.Context, r *results, scope Scope) {
	nsList, err := ru.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		ru.log.Warn("list namespaces for quota findings", zap.Error(err))
		return
	}
	quotas, err := ru.client.CoreV1().ResourceQuotas(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		ru.log.Warn("list resource quotas", zap.Error(err))
		return
	}
	hasQuota := map[string]bool{}
	for _, q := range quotas.Items {
		hasQuota[q.Namespace] = true
	}
	for _, ns := range nsList.Items {
		if systemNamespaces[ns.Name] || !scope.Contains(ns.Name) || hasQuota[ns.Name] {
			continue
		}
		r.find(model.SeverityWarning, "Resource Management", ns.Name,
			fmt.Sprintf("Namespace %s has no resource quota", ns.Name),
			"Configure resource quotas to prevent resource exhaustion", "RES-003")
	}
}
