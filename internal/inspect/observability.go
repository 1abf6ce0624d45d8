package inspect

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

var (
	loggingAgents    = []string{"fluent", "logstash", "loki", "vector"}
	monitoringAgents = []string{"prometheus", "thanos", "victoriametrics"}
	monitoringHomes  = []string{"monitoring", "prometheus", "observability", metav1.NamespaceSystem}
	ksmHomes         = []string{metav1.NamespaceSystem, "monitoring", "prometheus"}
)

// Observability checks the metrics pipeline, cluster DNS pods, log
// aggregation and monitoring.
type Observability struct{ base }

func NewObservability(d Deps) *Observability {
	return &Observability{newBase(d, DomainObservability)}
}

func (*Observability) Domain() string { return DomainObservability }

func (o *Observability) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	r := newResults(DomainObservability)
	o.inspectMetricsPipeline(ctx, r)
	o.inspectCoreDNS(ctx, r)
	o.inspectLogging(ctx, r, scope)
	o.inspectMonitoring(ctx, r, scope)
	return r.build(o.now())
}

func (o *Observability) inspectMetricsPipeline(ctx context.Context, r *results) {
	const name, desc = "Metrics Pipeline", "Checks metrics-server and kube-state-metrics"
	pods, err := o.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list pods: %w", err))
		return
	}

	score := model.MaxCheckScore
	var notes []string
	if !anyReady(pods.Items, []string{metav1.NamespaceSystem}, "metrics-server") {
		score -= 30
		notes = append(notes, "metrics-server missing")
		r.find(model.SeverityCritical, "Deployment", "metrics-server",
			"metrics-server is not running",
			"Deploy metrics-server; HPA and kubectl top depend on it", "OBS-001")
	}
	if !anyReady(pods.Items, ksmHomes, "kube-state-metrics") {
		score -= 20
		notes = append(notes, "kube-state-metrics missing")
		r.find(model.SeverityWarning, "Deployment", "kube-state-metrics",
			"kube-state-metrics is not running",
			"Deploy kube-state-metrics for object-level metrics", "OBS-002")
	}
	details := "metrics-server and kube-state-metrics running"
	if len(notes) > 0 {
		details = strings.Join(notes, ", ")
	}
	r.add(model.NewCheck(name, desc, score, details, "Deploy the missing metrics components"))
}

func (o *Observability) inspectCoreDNS(ctx context.Context, r *results) {
	const name, desc = "CoreDNS Pods", "Checks CoreDNS pod readiness"
	pods, err := o.client.CoreV1().Pods(metav1.NamespaceSystem).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list kube-system pods: %w", err))
		return
	}
	total, ready := 0, 0
	for i := range pods.Items {
		if !nameContainsAny(pods.Items[i].Name, []string{"coredns"}) {
			continue
		}
		total++
		if podReady(&pods.Items[i]) {
			ready++
		}
	}
	if total == 0 {
		r.find(model.SeverityCritical, "Pod", metav1.NamespaceSystem,
			"No CoreDNS pods found in kube-system",
			"Verify the cluster DNS add-on is installed", "OBS-003")
		r.add(model.NewCheck(name, desc, 0, "No CoreDNS pods found", "Install or repair CoreDNS"))
		return
	}
	r.add(model.NewCheck(name, desc, model.RatioScore(ready, total),
		fmt.Sprintf("%d/%d CoreDNS pods ready", ready, total),
		"Check CoreDNS pod logs and resources"))
}

func (o *Observability) inspectLogging(ctx context.Context, r *results, scope Scope) {
	const name, desc = "Log Aggregation", "Checks for a log collection agent"
	namespaces := scope.Namespaces
	if scope.All() {
		namespaces = []string{metav1.NamespaceSystem}
	}
	found, err := o.workloadPresent(ctx, namespaces, loggingAgents)
	if err != nil {
		r.fail(name, desc, err)
		return
	}
	if found {
		r.add(model.NewCheck(name, desc, model.MaxCheckScore, "Log aggregation agent found", ""))
		return
	}
	r.find(model.SeverityWarning, "DaemonSet", "",
		"No log aggregation agent (fluent, logstash, loki, vector) found",
		"Deploy a log collection agent", "OBS-003")
	r.add(model.NewCheck(name, desc, scoreAbsent, "No log aggregation agent found", "Deploy a log collection agent"))
}

func (o *Observability) inspectMonitoring(ctx context.Context, r *results, scope Scope) {
	const name, desc = "Monitoring Stack", "Checks for a Prometheus-compatible monitoring stack"
	namespaces := append(append([]string{}, scope.Namespaces...), monitoringHomes...)
	found, err := o.workloadPresent(ctx, namespaces, monitoringAgents)
	if err != nil {
		r.fail(name, desc, err)
		return
	}
	if found {
		r.add(model.NewCheck(name, desc, model.MaxCheckScore, "Monitoring stack found", ""))
		return
	}
	r.find(model.SeverityWarning, "Deployment", "",
		"No monitoring stack (prometheus, thanos, victoriametrics) found",
		"Deploy Prometheus or a compatible monitoring stack", "OBS-004")
	r.add(model.NewCheck(name, desc, 65, "No monitoring stack found", "Deploy Prometheus or a compatible monitoring stack"))
}

// workloadPresent looks for a Deployment, DaemonSet or StatefulSet whose name
// contains one of ids in any of the namespaces.
func (o *Observability) workloadPresent(ctx context.Context, namespaces, ids []string) (bool, error) {
	apps := o.client.AppsV1()
	for _, ns := range NewScope(namespaces...).Namespaces {
		var names []string
		deps, err := apps.Deployments(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			return false, fmt.Errorf("list deployments in %s: %w", ns, err)
		}
		for _, d := range deps.Items {
			names = append(names, d.Name)
		}
		dss, err := apps.DaemonSets(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			return false, fmt.Errorf("list daemonsets in %s: %w", ns, err)
		}
		for _, d := range dss.Items {
			names = append(names, d.Name)
		}
		sts, err := apps.StatefulSets(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			return false, fmt.Errorf("list statefulsets in %s: %w", ns, err)
		}
		for _, st := range sts.Items {
			names = append(names, st.Name)
		}
		for _, n := range names {
			if nameContainsAny(n, ids) {
				return true, nil
			}
		}
	}
	return false, nil
}

// anyReady reports whether a ready pod whose name contains id runs in one of
// the namespaces.
func anyReady(pods []corev1.Pod, namespaces []string, id string) bool {
	homes := NewScope(namespaces...)
	for i := range pods {
		p := &pods[i]
		if homes.Contains(p.Namespace) && nameContainsAny(p.Name, []string{id}) && podReady(p) {
			return true
		}
	}
	return false
}
