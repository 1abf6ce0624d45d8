package inspect

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

const (
	clusterAdmin = "cluster-admin"
	// riskyBindingFactor scales the RBAC score when cluster-admin is bound
	// to non-system subjects.
	riskyBindingFactor = 0.7
	minPolicyCoverage  = 50.0
)

// Security checks RBAC, pod security contexts, network policy coverage and
// service account usage.
type Security struct{ base }

func NewSecurity(d Deps) *Security { return &Security{newBase(d, DomainSecurity)} }

func (*Security) Domain() string { return DomainSecurity }

func (s *Security) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	r := newResults(DomainSecurity)
	s.inspectRBAC(ctx, r)

	pods, podErr := s.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	var inScope []corev1.Pod
	if podErr == nil {
		inScope = scoped(pods.Items, scope)
	}

	const pscName, pscDesc = "Pod Security Context", "Checks pod security configurations"
	if podErr != nil {
		r.fail(pscName, pscDesc, fmt.Errorf("list pods: %w", podErr))
	} else {
		secure := 0
		for i := range inScope {
			if podSecure(r, &inScope[i]) {
				secure++
			}
		}
		r.add(model.NewCheck(pscName, pscDesc, model.RatioScore(secure, len(inScope)),
			fmt.Sprintf("%d/%d pods with secure configuration", secure, len(inScope)),
			"Configure security contexts to run as non-root with minimal privileges"))
	}

	const npName, npDesc = "Network Policies", "Checks network policy coverage across namespaces"
	if covered, total, err := policyCoverage(ctx, s.client, scope); err != nil {
		r.fail(npName, npDesc, err)
	} else {
		score := model.RatioScore(covered, total)
		if score < minPolicyCoverage {
			r.find(model.SeverityWarning, "NetworkPolicy", "",
				fmt.Sprintf("Only %.1f%% of namespaces have network policies", score),
				"Implement network policies for better network segmentation", "SEC-008")
		}
		r.add(model.NewCheck(npName, npDesc, score,
			fmt.Sprintf("%d/%d namespaces have network policies", covered, total),
			"Implement network policies for network segmentation"))
	}

	const saName, saDesc = "Service Account Usage", "Checks if pods use custom service accounts"
	if podErr != nil {
		r.fail(saName, saDesc, fmt.Errorf("list pods: %w", podErr))
	} else {
		custom := 0
		for _, p := range inScope {
			sa := p.Spec.ServiceAccountName
			if sa == "" || sa == "default" {
				r.find(model.SeverityWarning, "ServiceAccount", ref(p.Namespace, p.Name),
					fmt.Sprintf("Pod %s uses default service account", ref(p.Namespace, p.Name)),
					"Create and use dedicated service accounts with minimal permissions", "SEC-009")
				continue
			}
			custom++
		}
		r.add(model.NewCheck(saName, saDesc, model.RatioScore(custom, len(inScope)),
			fmt.Sprintf("%d/%d pods use custom service accounts", custom, len(inScope)),
			"Create dedicated service accounts for applications"))
	}

	return r.build(s.now())
}

func (s *Security) inspectRBAC(ctx context.Context, r *results) {
	const name, desc = "RBAC Configuration", "Checks for overly permissive RBAC configurations"
	roles, err := s.client.RbacV1().ClusterRoles().List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list cluster roles: %w", err))
		return
	}
	bindings, err := s.client.RbacV1().ClusterRoleBindings().List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list cluster role bindings: %w", err))
		return
	}

	dangerous := 0
	for i := range roles.Items {
		role := &roles.Items[i]
		if !wildcardRole(role) {
			continue
		}
		dangerous++
		if !strings.HasPrefix(role.Name, "system:") && role.Name != clusterAdmin {
			r.find(model.SeverityWarning, "ClusterRole", role.Name,
				fmt.Sprintf("ClusterRole %s has wildcard permissions", role.Name),
				"Review and limit permissions to minimum required", "SEC-001")
		}
	}

	risky := 0
	for _, b := range bindings.Items {
		if b.RoleRef.Name != clusterAdmin {
			continue
		}
		for _, subj := range b.Subjects {
			switch subj.Kind {
			case rbacv1.UserKind:
				if !strings.HasPrefix(subj.Name, "system:") {
					risky++
					r.find(model.SeverityWarning, "ClusterRoleBinding", b.Name,
						fmt.Sprintf("User %s has cluster-admin privileges", subj.Name),
						"Review if cluster-admin access is necessary", "SEC-002")
				}
			case rbacv1.ServiceAccountKind:
				if subj.Namespace != metav1.NamespaceSystem {
					risky++
					r.find(model.SeverityCritical, "ClusterRoleBinding", b.Name,
						fmt.Sprintf("Service account %s has cluster-admin privileges", ref(subj.Namespace, subj.Name)),
						"Use more restrictive permissions for service accounts", "SEC-003")
				}
			}
		}
	}

	total := len(roles.Items)
	score := model.RatioScore(total-dangerous, total)
	if risky > 0 {
		score *= riskyBindingFactor
	}
	r.add(model.NewCheck(name, desc, score,
		fmt.Sprintf("%d roles with wildcard permissions, %d risky cluster-admin bindings", dangerous, risky),
		"Review RBAC permissions and apply principle of least privilege"))
}

func wildcardRole(role *rbacv1.ClusterRole) bool {
	for _, rule := range role.Rules {
		for _, v := range rule.Verbs {
			if v == rbacv1.VerbAll {
				return true
			}
		}
		for _, res := range rule.Resources {
			if res == rbacv1.ResourceAll {
				return true
			}
		}
	}
	return false
}

// podSecure records security context findings and reports whether the pod
// is free of them. A pod without a pod-level security context is insecure.
func podSecure(r *results, p *corev1.Pod) bool {
	pr := ref(p.Namespace, p.Name)
	secure := true

	if sc := p.Spec.SecurityContext; sc == nil {
		secure = false
	} else if sc.RunAsUser != nil && *sc.RunAsUser == 0 {
		secure = false
		r.find(model.SeverityWarning, "Pod", pr,
			fmt.Sprintf("Pod %s runs as root user", pr),
			"Configure pod to run as non-root user", "SEC-004")
	}

	for _, c := range p.Spec.Containers {
		sc := c.SecurityContext
		if sc == nil {
			continue
		}
		if sc.Privileged != nil && *sc.Privileged {
			secure = false
			r.find(model.SeverityWarning, "Container", pr+"/"+c.Name,
				fmt.Sprintf("Container %s in pod %s runs in privileged mode", c.Name, pr),
				"Avoid privileged containers unless absolutely necessary", "SEC-005")
		}
		if sc.RunAsUser != nil && *sc.RunAsUser == 0 {
			secure = false
			r.find(model.SeverityWarning, "Container", pr+"/"+c.Name,
				fmt.Sprintf("Container %s in pod %s runs as root", c.Name, pr),
				"Configure container to run as non-root user", "SEC-006")
		}
		if sc.AllowPrivilegeEscalation != nil && *sc.AllowPrivilegeEscalation {
			secure = false
			r.find(model.SeverityWarning, "Container", pr+"/"+c.Name,
				fmt.Sprintf("Container %s in pod %s allows privilege escalation", c.Name, pr),
				"Set allowPrivilegeEscalation to false", "SEC-007")
		}
	}
	return secure
}
