package inspect

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"kube-health-audit/internal/model"
)

const (
	nodePortMin = 30000
	nodePortMax = 32767
)

var dnsDeploymentNames = []string{"coredns", "kube-dns"}

// Network checks service wiring, network policy coverage and cluster DNS.
type Network struct{ base }

func NewNetwork(d Deps) *Network { return &Network{newBase(d, DomainNetwork)} }

func (*Network) Domain() string { return DomainNetwork }

func (n *Network) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	r := newResults(DomainNetwork)

	const svcName, svcDesc = "Service Configuration", "Checks if services are properly configured with selectors"
	if svcs, err := n.client.CoreV1().Services(metav1.NamespaceAll).List(ctx, metav1.ListOptions{}); err != nil {
		r.fail(svcName, svcDesc, fmt.Errorf("list services: %w", err))
	} else {
		items := scoped(svcs.Items, scope)
		withSelector := 0
		for i := range items {
			if serviceHasSelector(r, &items[i]) {
				withSelector++
			}
		}
		r.add(model.NewCheck(svcName, svcDesc, model.RatioScore(withSelector, len(items)),
			fmt.Sprintf("%d/%d services with proper configuration", withSelector, len(items)),
			"Review service configurations and selectors"))
	}

	const npName, npDesc = "Network Policy Coverage", "Checks if namespaces have network policies for security"
	if covered, total, err := policyCoverage(ctx, n.client, scope); err != nil {
		r.fail(npName, npDesc, err)
	} else {
		// No namespaces visible means nothing is isolated.
		score := 0.0
		if total > 0 {
			score = model.RatioScore(covered, total)
		}
		r.add(model.NewCheck(npName, npDesc, score,
			fmt.Sprintf("%d/%d namespaces with network policies", covered, total),
			"Implement network policies for better security isolation"))
	}

	const dnsName, dnsDesc = "DNS Configuration", "Checks DNS service availability"
	if ok, err := n.checkDNS(ctx, r); err != nil {
		r.fail(dnsName, dnsDesc, err)
	} else {
		score, details := 100.0, "DNS service is available"
		if !ok {
			score, details = 0, "DNS service issues detected"
		}
		r.add(model.NewCheck(dnsName, dnsDesc, score, details, "Check CoreDNS or kube-dns deployment"))
	}

	return r.build(n.now())
}

// serviceHasSelector records type-specific findings and reports whether the
// service selects pods.
func serviceHasSelector(r *results, svc *corev1.Service) bool {
	sr := ref(svc.Namespace, svc.Name)
	switch svc.Spec.Type {
	case corev1.ServiceTypeLoadBalancer:
		if len(svc.Status.LoadBalancer.Ingress) == 0 {
			r.find(model.SeverityWarning, "Service", sr,
				fmt.Sprintf("LoadBalancer service %s has no external IP assigned", sr),
				"Check LoadBalancer configuration and cloud provider settings", "NET-001")
		}
	case corev1.ServiceTypeNodePort:
		for _, p := range svc.Spec.Ports {
			if p.NodePort != 0 && (p.NodePort < nodePortMin || p.NodePort > nodePortMax) {
				r.find(model.SeverityInfo, "Service", sr,
					fmt.Sprintf("Service %s uses NodePort %d outside recommended range", sr, p.NodePort),
					"Use NodePort in range 30000-32767", "NET-002")
			}
		}
	}

	if len(svc.Spec.Selector) > 0 {
		return true
	}
	headless := svc.Spec.ClusterIP == corev1.ClusterIPNone
	apiServer := svc.Namespace == metav1.NamespaceDefault && svc.Name == "kubernetes"
	if !headless && !apiServer {
		r.find(model.SeverityWarning, "Service", sr,
			fmt.Sprintf("Service %s has no selector and may not have endpoints", sr),
			"Ensure service has proper selectors or manual endpoints", "NET-003")
	}
	return false
}

// checkDNS looks for a ready CoreDNS or kube-dns deployment in kube-system.
func (n *Network) checkDNS(ctx context.Context, r *results) (bool, error) {
	deps, err := n.client.AppsV1().Deployments(metav1.NamespaceSystem).List(ctx, metav1.ListOptions{})
	if err != nil {
		return false, fmt.Errorf("list kube-system deployments: %w", err)
	}
	for _, d := range deps.Items {
		if !nameContainsAny(d.Name, dnsDeploymentNames) {
			continue
		}
		if d.Status.ReadyReplicas < d.Status.Replicas {
			r.find(model.SeverityCritical, "Deployment", ref(metav1.NamespaceSystem, d.Name),
				fmt.Sprintf("DNS deployment %s has %d/%d replicas ready", d.Name, d.Status.ReadyReplicas, d.Status.Replicas),
				"Check DNS deployment logs and resource availability", "NET-004")
			return false, nil
		}
		return true, nil
	}
	r.find(model.SeverityCritical, "Namespace", metav1.NamespaceSystem,
		"No DNS service deployment found",
		"Deploy CoreDNS or kube-dns for cluster DNS resolution", "NET-005")
	return false, nil
}

// policyCoverage counts in-scope namespaces holding at least one NetworkPolicy.
func policyCoverage(ctx context.Context, client kubernetes.Interface, scope Scope) (covered, total int, err error) {
	nsList, err := client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("list namespaces: %w", err)
	}
	pols, err := client.NetworkingV1().NetworkPolicies(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("list network policies: %w", err)
	}
	with := map[string]bool{}
	for _, p := range pols.Items {
		with[p.Namespace] = true
	}
	for _, ns := range nsList.Items {
		if !scope.Contains(ns.Name) {
			continue
		}
		total++
		if with[ns.Name] {
			covered++
		}
	}
	return covered, total, nil
}
