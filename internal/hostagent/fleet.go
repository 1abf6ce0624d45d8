// Package hostagent collects HostSnapshots from an independently deployed,
// one-per-host agent. It never deploys the agent; the only mutation it
// issues is a rollout restart when the agent data is stale.
package hostagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// RestartAnnotation is the pod template annotation bumped to roll the fleet.
const RestartAnnotation = "kubectl.kubernetes.io/restartedAt"

// Agent is one agent process as reported by the platform.
type Agent struct {
	Name     string
	NodeName string
	Running  bool
}

// Fleet is the collector's view of the agent fleet.
type Fleet interface {
	ListAgents(ctx context.Context) ([]Agent, error)
	// ReadOutput returns the agent's self-reported output.
	ReadOutput(ctx context.Context, agent string) (string, error)
	// Restart asks every agent to restart; it is idempotent for a given time.
	Restart(ctx context.Context, at time.Time) error
	RolloutStatus(ctx context.Context) (desired, ready int32, err error)
	// ListPods lists pods cluster-wide for the container state tally.
	ListPods(ctx context.Context) ([]corev1.Pod, error)
}

// FleetConfig locates the agent DaemonSet.
type FleetConfig struct {
	Namespace     string
	DaemonSet     string
	LabelSelector string
	Container     string
}

// KubeFleet implements Fleet over a DaemonSet whose container writes one
// JSON document to its log.
type KubeFleet struct {
	client kubernetes.Interface
	cfg    FleetConfig
}

func NewKubeFleet(client kubernetes.Interface, cfg FleetConfig) *KubeFleet {
	return &KubeFleet{client: client, cfg: cfg}
}

func (f *KubeFleet) ListAgents(ctx context.Context) ([]Agent, error) {
	pods, err := f.client.CoreV1().Pods(f.cfg.Namespace).List(ctx, metav1.ListOptions{LabelSelector: f.cfg.LabelSelector})
	if err != nil {
		return nil, fmt.Errorf("list agent pods in %s: %w", f.cfg.Namespace, err)
	}
	out := make([]Agent, 0, len(pods.Items))
	for _, p := range pods.Items {
		out = append(out, Agent{
			Name:     p.Name,
			NodeName: p.Spec.NodeName,
			Running:  p.Status.Phase == corev1.PodRunning,
		})
	}
	return out, nil
}

func (f *KubeFleet) ReadOutput(ctx context.Context, agent string) (string, error) {
	raw, err := f.client.CoreV1().Pods(f.cfg.Namespace).
		GetLogs(agent, &corev1.PodLogOptions{Container: f.cfg.Container}).
		DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("read logs of %s/%s: %w", f.cfg.Namespace, agent, err)
	}
	return string(raw), nil
}

func (f *KubeFleet) Restart(ctx context.Context, at time.Time) error {
	patch, err := json.Marshal(map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"metadata": map[string]any{
					"annotations": map[string]string{RestartAnnotation: at.UTC().Format(time.RFC3339)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("encode restart patch: %w", err)
	}
	_, err = f.client.AppsV1().DaemonSets(f.cfg.Namespace).
		Patch(ctx, f.cfg.DaemonSet, types.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patch daemonset %s/%s: %w", f.cfg.Namespace, f.cfg.DaemonSet, err)
	}
	return nil
}

func (f *KubeFleet) RolloutStatus(ctx context.Context) (int32, int32, error) {
	ds, err := f.client.AppsV1().DaemonSets(f.cfg.Namespace).Get(ctx, f.cfg.DaemonSet, metav1.GetOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("get daemonset %s/%s: %w", f.cfg.Namespace, f.cfg.DaemonSet, err)
	}
	return ds.Status.DesiredNumberScheduled, ds.Status.NumberReady, nil
}

func (f *KubeFleet) ListPods(ctx context.Context) ([]corev1.Pod, error) {
	pods, err := f.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}
	return pods.Items, nil
}
