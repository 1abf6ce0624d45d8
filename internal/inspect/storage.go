package inspect

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kube-health-audit/internal/model"
)

const defaultClassAnnotation = "storageclass.kubernetes.io/is-default-class"

// Storage checks persistent volumes, claims and storage classes.
type Storage struct{ base }

func NewStorage(d Deps) *Storage { return &Storage{newBase(d, DomainStorage)} }

func (*Storage) Domain() string { return DomainStorage }

func (s *Storage) Inspect(ctx context.Context, scope Scope) (model.AuditResult, error) {
	r := newResults(DomainStorage)
	s.inspectPVs(ctx, r)
	s.inspectPVCs(ctx, r, scope)
	s.inspectClasses(ctx, r)
	return r.build(s.now())
}

func (s *Storage) inspectPVs(ctx context.Context, r *results) {
	const name, desc = "Persistent Volume Health", "Checks if persistent volumes are in healthy state"
	pvs, err := s.client.CoreV1().PersistentVolumes().List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list persistent volumes: %w", err))
		return
	}

	available, bound, failed := 0, 0, 0
	for _, pv := range pvs.Items {
		switch pv.Status.Phase {
		case corev1.VolumeAvailable:
			available++
		case corev1.VolumeBound:
			bound++
		case corev1.VolumeFailed:
			failed++
			r.find(model.SeverityCritical, "PersistentVolume", pv.Name,
				fmt.Sprintf("Persistent Volume %s is in Failed state", pv.Name),
				"Check PV configuration and underlying storage", "STO-001")
		case corev1.VolumeReleased:
			r.find(model.SeverityWarning, "PersistentVolume", pv.Name,
				fmt.Sprintf("Persistent Volume %s is Released but not reclaimed", pv.Name),
				"Check reclaim policy and clean up released PVs", "STO-002")
		}

		switch pv.Spec.PersistentVolumeReclaimPolicy {
		case corev1.PersistentVolumeReclaimDelete:
		case corev1.PersistentVolumeReclaimRetain:
			if pv.Status.Phase == corev1.VolumeReleased {
				r.find(model.SeverityInfo, "PersistentVolume", pv.Name,
					fmt.Sprintf("PV %s with Retain policy is Released", pv.Name),
					"Monitor and clean up retained PVs manually", "STO-003")
			}
		default:
			r.find(model.SeverityWarning, "PersistentVolume", pv.Name,
				fmt.Sprintf("PV %s has unclear reclaim policy", pv.Name),
				"Set explicit reclaim policy (Retain or Delete)", "STO-004")
		}
	}

	total := len(pvs.Items)
	r.add(model.NewCheck(name, desc, model.RatioScore(total-failed, total),
		fmt.Sprintf("Available: %d, Bound: %d, Failed: %d, Total: %d", available, bound, failed, total),
		"Investigate and resolve failed persistent volumes"))
}

func (s *Storage) inspectPVCs(ctx context.Context, r *results, scope Scope) {
	const name, desc = "PVC Binding", "Checks if persistent volume claims are properly bound"
	list, err := s.client.CoreV1().PersistentVolumeClaims(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list persistent volume claims: %w", err))
		return
	}
	pvcs := scoped(list.Items, scope)

	bound := 0
	for _, pvc := range pvcs {
		pr := ref(pvc.Namespace, pvc.Name)
		switch pvc.Status.Phase {
		case corev1.ClaimBound:
			bound++
		case corev1.ClaimPending:
			r.find(model.SeverityWarning, "PersistentVolumeClaim", pr,
				fmt.Sprintf("PVC %s is pending", pr),
				"Check storage class availability and node capacity", "STO-005")
		case corev1.ClaimLost:
			r.find(model.SeverityCritical, "PersistentVolumeClaim", pr,
				fmt.Sprintf("PVC %s is lost", pr),
				"Data may be lost, check backup and recovery procedures", "STO-006")
		}
		if pvc.Spec.StorageClassName == nil {
			r.find(model.SeverityInfo, "PersistentVolumeClaim", pr,
				fmt.Sprintf("PVC %s has no storage class specified", pr),
				"Specify storage class for better provisioning control", "STO-007")
		}
	}

	r.add(model.NewCheck(name, desc, model.RatioScore(bound, len(pvcs)),
		fmt.Sprintf("%d/%d PVCs are bound", bound, len(pvcs)),
		"Resolve pending PVCs and check storage availability"))
}

func (s *Storage) inspectClasses(ctx context.Context, r *results) {
	const name, desc = "Storage Class Configuration", "Checks storage class setup and default configuration"
	classes, err := s.client.StorageV1().StorageClasses().List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list storage classes: %w", err))
		return
	}

	defaults := 0
	for _, sc := range classes.Items {
		if sc.Annotations[defaultClassAnnotation] == "true" {
			defaults++
		}
		if sc.Provisioner == "" {
			r.find(model.SeverityCritical, "StorageClass", sc.Name,
				fmt.Sprintf("Storage class %s has no provisioner", sc.Name),
				"Configure proper provisioner for storage class", "STO-008")
		}
	}
	switch {
	case defaults == 0:
		r.find(model.SeverityWarning, "StorageClass", "",
			"No default storage class configured",
			"Configure a default storage class for automatic PV provisioning", "STO-009")
	case defaults > 1:
		r.find(model.SeverityWarning, "StorageClass", "",
			fmt.Sprintf("%d default storage classes configured", defaults),
			"Only one storage class should be marked as default", "STO-010")
	}

	total := len(classes.Items)
	score := 0.0
	switch {
	case total > 0 && defaults == 1:
		score = 100
	case total > 0:
		score = 70
	}
	r.add(model.NewCheck(name, desc, score,
		fmt.Sprintf("%d storage classes, %d default", total, defaults),
		"Configure appropriate storage classes and set one as default"))
}
