package inspect

import (
	"context"
	"fmt"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

// scoreAbsent is used by rules that treat a missing resource kind as
// degraded rather than healthy.
const scoreAbsent = 70.0

// Autoscaling checks HorizontalPodAutoscaler configuration and health.
type Autoscaling struct{ base }

func NewAutoscaling(d Deps) *Autoscaling { return &Autoscaling{newBase(d, DomainAutoscaling)} }

func (*Autoscaling) Domain() string { return DomainAutoscaling }

func (a *Autoscaling) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	list, err := a.client.AutoscalingV2().HorizontalPodAutoscalers(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return model.AuditResult{}, &UnitError{Domain: DomainAutoscaling, Err: fmt.Errorf("list hpas: %w", err)}
	}
	hpas := scoped(list.Items, scope)
	r := newResults(DomainAutoscaling)

	const cfgName, cfgDesc = "HPA Configuration", "Checks HPA replica bounds and metric targets"
	const healthName, healthDesc = "HPA Health", "Checks HPA conditions"
	if len(hpas) == 0 {
		r.add(model.NewCheck(cfgName, cfgDesc, scoreAbsent,
			"No HPAs detected in the target scope", "Consider HPAs for workloads with variable load"))
		return r.build(a.now())
	}

	configured, healthy := 0, 0
	for i := range hpas {
		if hpaConfigured(r, &hpas[i]) {
			configured++
		}
		if hpaHealthy(r, &hpas[i]) {
			healthy++
		}
	}
	r.add(model.NewCheck(cfgName, cfgDesc, model.RatioScore(configured, len(hpas)),
		fmt.Sprintf("%d/%d HPAs properly configured", configured, len(hpas)),
		"Configure a replica range and metric targets for every HPA"))
	r.add(model.NewCheck(healthName, healthDesc, model.RatioScore(healthy, len(hpas)),
		fmt.Sprintf("%d/%d HPAs healthy", healthy, len(hpas)),
		"Check HPA target workloads and the metrics pipeline"))
	return r.build(a.now())
}

func hpaConfigured(r *results, h *autoscalingv2.HorizontalPodAutoscaler) bool {
	hr := ref(h.Namespace, h.Name)
	ok := true

	minReplicas := int32(1)
	if h.Spec.MinReplicas != nil {
		minReplicas = *h.Spec.MinReplicas
	}
	if minReplicas == h.Spec.MaxReplicas {
		ok = false
		r.find(model.SeverityWarning, "HorizontalPodAutoscaler", hr,
			fmt.Sprintf("HPA %s has minReplicas equal to maxReplicas (%d)", hr, minReplicas),
			"Widen the replica range so the HPA can scale", "AUTO-001")
	}

	if len(h.Spec.Metrics) == 0 {
		ok = false
		r.find(model.SeverityCritical, "HorizontalPodAutoscaler", hr,
			fmt.Sprintf("HPA %s has no metrics configured", hr),
			"Configure CPU, memory or custom metrics for the HPA", "AUTO-002")
	}
	for _, m := range h.Spec.Metrics {
		if t := metricTarget(m); t != nil && !targetSet(t) {
			ok = false
			r.find(model.SeverityWarning, "HorizontalPodAutoscaler", hr,
				fmt.Sprintf("HPA %s has a %s metric without a target value", hr, m.Type),
				"Set averageUtilization, averageValue or value on every metric target", "AUTO-005")
		}
	}

	if b := h.Spec.Behavior; b != nil {
		directions := []struct {
			name  string
			rules *autoscalingv2.HPAScalingRules
		}{{"scaleUp", b.ScaleUp}, {"scaleDown", b.ScaleDown}}
		for _, d := range directions {
			if d.rules != nil && d.rules.SelectPolicy != nil && *d.rules.SelectPolicy == autoscalingv2.DisabledPolicySelect {
				r.find(model.SeverityInfo, "HorizontalPodAutoscaler", hr,
					fmt.Sprintf("HPA %s has %s disabled", hr, d.name),
					"Confirm that disabling scaling is intentional", "AUTO-004")
			}
		}
	}
	return ok
}

func metricTarget(m autoscalingv2.MetricSpec) *autoscalingv2.MetricTarget {
	switch {
	case m.Resource != nil:
		return &m.Resource.Target
	case m.ContainerResource != nil:
		return &m.ContainerResource.Target
	case m.Pods != nil:
		return &m.Pods.Target
	case m.Object != nil:
		return &m.Object.Target
	case m.External != nil:
		return &m.External.Target
	}
	return nil
}

func targetSet(t *autoscalingv2.MetricTarget) bool {
	return t.AverageUtilization != nil || t.AverageValue != nil || t.Value != nil
}

// hpaHealthy requires every reported condition to be True.
func hpaHealthy(r *results, h *autoscalingv2.HorizontalPodAutoscaler) bool {
	for _, c := range h.Status.Conditions {
		if c.Status == corev1.ConditionTrue {
			continue
		}
		hr := ref(h.Namespace, h.Name)
		r.find(model.SeverityCritical, "HorizontalPodAutoscaler", hr,
			fmt.Sprintf("HPA %s condition %s is %s: %s", hr, c.Type, c.Status, c.Reason),
			"Check the scale target and metrics availability", "AUTO-003")
		return false
	}
	return true
}
