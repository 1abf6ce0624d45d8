package inspect

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

// Policy checks governance objects: quotas, limit ranges and disruption budgets.
type Policy struct{ base }

func NewPolicy(d Deps) *Policy { return &Policy{newBase(d, DomainPolicy)} }

func (*Policy) Domain() string { return DomainPolicy }

func (p *Policy) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	r := newResults(DomainPolicy)
	p.inspectQuotas(ctx, r, scope)
	p.inspectLimitRanges(ctx, r, scope)
	p.inspectPDBs(ctx, r, scope)
	return r.build(p.now())
}

func (p *Policy) inspectQuotas(ctx context.Context, r *results, scope Scope) {
	const name, desc = "Resource Quotas", "Checks that namespaces are bounded by ResourceQuotas"
	list, err := p.client.CoreV1().ResourceQuotas(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list resource quotas: %w", err))
		return
	}
	quotas := scoped(list.Items, scope)
	if len(quotas) > 0 {
		r.add(model.NewCheck(name, desc, model.MaxCheckScore, fmt.Sprintf("%d ResourceQuotas", len(quotas)), ""))
		return
	}

	if scope.All() {
		r.find(model.SeverityWarning, "ResourceQuota", "",
			"No ResourceQuota configured in the cluster",
			"Define ResourceQuotas to bound namespace consumption", "POLICY-001")
	}
	for _, ns := range scope.Namespaces {
		r.find(model.SeverityWarning, "Namespace", ns,
			fmt.Sprintf("Namespace %s has no ResourceQuota", ns),
			"Define a ResourceQuota for the namespace", "POLICY-001")
	}
	r.add(model.NewCheck(name, desc, 60, "No ResourceQuotas found",
		"Define ResourceQuotas to bound namespace consumption"))
}

func (p *Policy) inspectLimitRanges(ctx context.Context, r *results, scope Scope) {
	const name, desc = "Limit Ranges", "Checks that namespaces carry default container limits"
	list, err := p.client.CoreV1().LimitRanges(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list limit ranges: %w", err))
		return
	}
	lrs := scoped(list.Items, scope)
	if len(lrs) > 0 {
		r.add(model.NewCheck(name, desc, model.MaxCheckScore, fmt.Sprintf("%d LimitRanges", len(lrs)), ""))
		return
	}
	r.find(model.SeverityWarning, "LimitRange", "",
		"No LimitRange configured in the target scope",
		"Define LimitRanges so containers get default requests and limits", "POLICY-002")
	r.add(model.NewCheck(name, desc, 65, "No LimitRanges found",
		"Define LimitRanges so containers get default requests and limits"))
}

func (p *Policy) inspectPDBs(ctx context.Context, r *results, scope Scope) {
	const name, desc = "Pod Disruption Budgets", "Checks PodDisruptionBudgets protect workloads"
	list, err := p.client.PolicyV1().PodDisruptionBudgets(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list pod disruption budgets: %w", err))
		return
	}
	pdbs := scoped(list.Items, scope)
	if len(pdbs) == 0 {
		r.find(model.SeverityWarning, "PodDisruptionBudget", "",
			"No PodDisruptionBudget configured in the target scope",
			"Create PDBs for critical workloads", "POLICY-003")
		r.add(model.NewCheck(name, desc, scoreAbsent, "No PodDisruptionBudgets found",
			"Create PDBs for critical workloads"))
		return
	}

	blocked := 0
	for _, pdb := range pdbs {
		if pdb.Status.DisruptionsAllowed == 0 && pdb.Status.ExpectedPods > 1 {
			blocked++
			pr := ref(pdb.Namespace, pdb.Name)
			r.find(model.SeverityWarning, "PodDisruptionBudget", pr,
				fmt.Sprintf("PDB %s allows no disruptions with %d expected pods", pr, pdb.Status.ExpectedPods),
				"Raise replica count or relax the PDB so voluntary evictions can proceed", "POLICY-004")
		}
	}
	score := model.MaxCheckScore
	if blocked > 0 {
		score = 80
	}
	r.add(model.NewCheck(name, desc, score,
		fmt.Sprintf("%d PDBs, %d blocking disruptions", len(pdbs), blocked),
		"Review PDBs that block all voluntary disruptions"))
}
