// Package inspect holds the audit units. Each Inspector owns one domain,
// performs read-only queries against the cluster and produces exactly one
// model.AuditResult per run.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"

	"kube-health-audit/internal/model"
)

// Domain names. They key weights, breakdown rows and history.
const (
	DomainNodeHealth    = "Node Health"
	DomainPodStatus     = "Pod Status"
	DomainResourceUsage = "Resource Usage"
	DomainNetwork       = "Network Connectivity"
	DomainStorage       = "Storage"
	DomainSecurity      = "Security Configuration"
	DomainControlPlane  = "Control Plane"
	DomainAutoscaling   = "Autoscaling"
	DomainBatch         = "Batch Workloads"
	DomainPolicy        = "Policy & Governance"
	DomainObservability = "Observability"
	DomainNamespaces    = "Namespace Summary"
	DomainCertificates  = "Certificates"
	DomainUpgrade       = "Upgrade Readiness"

	// DomainNodeInspection is the synthetic result built from host snapshots.
	DomainNodeInspection = "Node Inspection"
)

// Inspector is one audit unit.
type Inspector interface {
	Domain() string
	Inspect(ctx context.Context, scope Scope) (model.AuditResult, error)
}

// Scope restricts namespaced audits. An empty scope covers every namespace.
type Scope struct {
	Namespaces []string
}

// NewScope trims and de-duplicates namespace names.
func NewScope(namespaces ...string) Scope {
	seen := map[string]bool{}
	var out []string
	for _, ns := range namespaces {
		ns = strings.TrimSpace(ns)
		if ns == "" || seen[ns] {
			continue
		}
		seen[ns] = true
		out = append(out, ns)
	}
	return Scope{Namespaces: out}
}

// All reports whether the scope is unrestricted.
func (s Scope) All() bool { return len(s.Namespaces) == 0 }

// Contains returns true when ns is within the scope.
func (s Scope) Contains(ns string) bool {
	if s.All() {
		return true
	}
	for _, n := range s.Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}

// UnitError is returned by an Inspector when its collection failed and no
// partial result is meaningful.
type UnitError struct {
	Domain string
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Domain, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// IsRBAC reports whether the underlying failure is a permissions error.
func (e *UnitError) IsRBAC() bool {
	return apierrors.IsForbidden(e.Err) || apierrors.IsUnauthorized(e.Err)
}

// AsUnitError unwraps err into a *UnitError when possible.
func AsUnitError(err error) (*UnitError, bool) {
	var ue *UnitError
	ok := errors.As(err, &ue)
	return ue, ok
}

// Deps are the collaborators shared by every Inspector.
type Deps struct {
	Client kubernetes.Interface
	Clock  clock.PassiveClock
	Log    *zap.Logger
}

type base struct {
	client kubernetes.Interface
	clock  clock.PassiveClock
	log    *zap.Logger
}

func newBase(d Deps, domain string) base {
	b := base{client: d.Client, clock: d.Clock, log: d.Log}
	if b.clock == nil {
		b.clock = clock.RealClock{}
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	b.log = b.log.With(zap.String("domain", domain))
	return b
}

func (b base) now() time.Time { return b.clock.Now().UTC() }

// All returns every cluster audit unit in report order.
func All(d Deps) []Inspector {
	return []Inspector{
		NewNodeHealth(d),
		NewControlPlane(d),
		NewNetwork(d),
		NewStorage(d),
		NewResourceUsage(d),
		NewPodStatus(d),
		NewAutoscaling(d),
		NewBatch(d),
		NewSecurity(d),
		NewPolicy(d),
		NewObservability(d),
		NewNamespaceSummary(d),
		NewCertificates(d),
		NewUpgrade(d),
	}
}

// Order returns the report position of a domain; unknown domains sort last.
func Order(domain string) int {
	for i, d := range domainOrder {
		if d == domain {
			return i
		}
	}
	return len(domainOrder)
}

var domainOrder = []string{
	DomainNodeHealth,
	DomainControlPlane,
	DomainNetwork,
	DomainStorage,
	DomainResourceUsage,
	DomainPodStatus,
	DomainAutoscaling,
	DomainBatch,
	DomainSecurity,
	DomainPolicy,
	DomainObservability,
	DomainNamespaces,
	DomainCertificates,
	DomainUpgrade,
	DomainNodeInspection,
}
