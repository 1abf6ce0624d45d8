package inspect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/version"

	"kube-health-audit/internal/model"
)

// maxKubeletMinorSkew is how many minor versions a kubelet may trail the
// API server.
const maxKubeletMinorSkew = 3

// Upgrade checks kubelet version drift and upgrade preparedness.
type Upgrade struct{ base }

func NewUpgrade(d Deps) *Upgrade { return &Upgrade{newBase(d, DomainUpgrade)} }

func (*Upgrade) Domain() string { return DomainUpgrade }

func (u *Upgrade) Inspect(ctx context.Context, _ Scope) (model.AuditResult, error) {
	r := newResults(DomainUpgrade)

	server, serverErr := u.serverVersion()
	u.inspectKubelets(ctx, r, server)

	const name, desc = "Deprecated API usage", "Reports the server version to plan API migrations"
	if serverErr != nil {
		r.fail(name, desc, serverErr)
	} else {
		r.add(model.NewCheck(name, desc, model.MaxCheckScore,
			fmt.Sprintf("Server version %s. Run a deprecated API scanner (e.g. pluto, kubent) before upgrading.", server),
			""))
	}
	return r.build(u.now())
}

func (u *Upgrade) serverVersion() (*version.Version, error) {
	info, err := u.client.Discovery().ServerVersion()
	if err != nil {
		return nil, fmt.Errorf("get server version: %w", err)
	}
	v, err := version.ParseGeneric(info.GitVersion)
	if err != nil {
		return nil, fmt.Errorf("parse server version %q: %w", info.GitVersion, err)
	}
	return v, nil
}

func (u *Upgrade) inspectKubelets(ctx context.Context, r *results, server *version.Version) {
	const name, desc = "Kubelet Versions", "Checks kubelet version consistency and skew against the API server"
	nodes, err := u.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		r.fail(name, desc, fmt.Errorf("list nodes: %w", err))
		return
	}
	if len(nodes.Items) == 0 {
		r.add(model.NewCheck(name, desc, 60, "No nodes found", "Verify node registration"))
		return
	}

	distinct := map[string]bool{}
	skewed := 0
	for _, n := range nodes.Items {
		kv := n.Status.NodeInfo.KubeletVersion
		distinct[kv] = true
		if server == nil {
			continue
		}
		v, err := version.ParseGeneric(kv)
		if err != nil {
			continue
		}
		if v.Major() != server.Major() || v.Minor() > server.Minor() || server.Minor()-v.Minor() > maxKubeletMinorSkew {
			skewed++
			r.find(model.SeverityCritical, "Node", n.Name,
				fmt.Sprintf("Kubelet %s on node %s is outside the supported skew of API server %s", kv, n.Name, server),
				"Upgrade the node so its kubelet is within three minor versions of the API server", "UPG-001")
		}
	}

	versions := make([]string, 0, len(distinct))
	for v := range distinct {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	score := model.MaxCheckScore
	if len(versions) > 1 {
		score -= 10
		r.find(model.SeverityWarning, "Node", "",
			fmt.Sprintf("Nodes run %d different kubelet versions: %s", len(versions), strings.Join(versions, ", ")),
			"Align kubelet versions across nodes", "UPG-001")
	}
	if skewed > 0 {
		score -= 30
	}
	r.add(model.NewCheck(name, desc, score,
		fmt.Sprintf("%d nodes, kubelet versions: %s", len(nodes.Items), strings.Join(versions, ", ")),
		"Align kubelet versions before upgrading the control plane"))
}
