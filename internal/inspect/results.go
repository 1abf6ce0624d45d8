package inspect

import (
	"errors"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"

	"kube-health-audit/internal/model"
)

// results accumulates the checks and findings of one Inspect call.
type results struct {
	domain   string
	checks   []model.Check
	findings []model.Finding
	failed   []error
}

func newResults(domain string) *results {
	return &results{domain: domain}
}

func (r *results) add(c model.Check) {
	r.checks = append(r.checks, c)
}

func (r *results) find(sev model.Severity, category, resource, description, recommendation, ruleID string) {
	r.findings = append(r.findings, model.NewFinding(sev, category, resource, description, recommendation, ruleID))
}

// fail records a query failure as an Error check; sibling checks continue.
func (r *results) fail(name, description string, err error) {
	r.failed = append(r.failed, err)
	r.checks = append(r.checks, model.ErrorCheck(name, description, err))
}

// build returns the AuditResult, or a *UnitError when every check failed.
func (r *results) build(ts time.Time) (model.AuditResult, error) {
	if len(r.failed) > 0 && len(r.failed) == len(r.checks) {
		return model.AuditResult{}, &UnitError{Domain: r.domain, Err: errors.Join(r.failed...)}
	}
	return model.NewAuditResult(r.domain, ts, r.checks, r.findings), nil
}

// scoped keeps the items whose namespace is within scope.
func scoped[T any, PT interface {
	*T
	GetNamespace() string
}](items []T, scope Scope) []T {
	if scope.All() {
		return items
	}
	out := make([]T, 0, len(items))
	for i := range items {
		if scope.Contains(PT(&items[i]).GetNamespace()) {
			out = append(out, items[i])
		}
	}
	return out
}

func ref(namespace, name string) string {
	return namespace + "/" + name
}

func podRunning(p *corev1.Pod) bool {
	return p.Status.Phase == corev1.PodRunning
}

// podReady is Running with every container ready.
func podReady(p *corev1.Pod) bool {
	if !podRunning(p) {
		return false
	}
	for _, cs := range p.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

func allContainerStatuses(p *corev1.Pod) []corev1.ContainerStatus {
	out := make([]corev1.ContainerStatus, 0, len(p.Status.InitContainerStatuses)+len(p.Status.ContainerStatuses))
	out = append(out, p.Status.InitContainerStatuses...)
	return append(out, p.Status.ContainerStatuses...)
}

func nameContainsAny(name string, ids []string) bool {
	for _, id := range ids {
		if strings.Contains(name, id) {
			return true
		}
	}
	return false
}
