package inspect

import (
	"context"
	"fmt"
	"sort"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

// NamespaceSummary tabulates workload and governance objects per namespace.
type NamespaceSummary struct{ base }

func NewNamespaceSummary(d Deps) *NamespaceSummary {
	return &NamespaceSummary{newBase(d, DomainNamespaces)}
}

func (*NamespaceSummary) Domain() string { return DomainNamespaces }

func (n *NamespaceSummary) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	fail := func(what string, err error) (model.AuditResult, error) {
		return model.AuditResult{}, &UnitError{Domain: DomainNamespaces, Err: fmt.Errorf("list %s: %w", what, err)}
	}
	core := n.client.CoreV1()
	nsList, err := core.Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return fail("namespaces", err)
	}
	pods, err := core.Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fail("pods", err)
	}
	deps, err := n.client.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fail("deployments", err)
	}
	pols, err := n.client.NetworkingV1().NetworkPolicies(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fail("network policies", err)
	}
	quotas, err := core.ResourceQuotas(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fail("resource quotas", err)
	}
	lrs, err := core.LimitRanges(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fail("limit ranges", err)
	}

	rows := map[string]*model.NamespaceSummaryRow{}
	for _, ns := range nsList.Items {
		if scope.Contains(ns.Name) {
			rows[ns.Name] = &model.NamespaceSummaryRow{Name: ns.Name}
		}
	}
	for _, p := range pods.Items {
		if row, ok := rows[p.Namespace]; ok {
			row.PodCount++
		}
	}
	for _, d := range deps.Items {
		if row, ok := rows[d.Namespace]; ok {
			row.DeploymentCount++
		}
	}
	for _, p := range pols.Items {
		if row, ok := rows[p.Namespace]; ok {
			row.HasNetworkPolicy = true
		}
	}
	for _, q := range quotas.Items {
		if row, ok := rows[q.Namespace]; ok {
			row.HasResourceQuota = true
		}
	}
	for _, l := range lrs.Items {
		if row, ok := rows[l.Namespace]; ok {
			row.HasLimitRange = true
		}
	}

	out := make([]model.NamespaceSummaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	check := model.NewCheck("Namespace Inventory", "Summarizes workloads and governance objects per namespace",
		model.MaxCheckScore, fmt.Sprintf("%d namespaces", len(out)), "")
	res := model.NewAuditResult(DomainNamespaces, n.now(), []model.Check{check}, nil)
	res.NamespaceSummaries = out
	return res, nil
}
