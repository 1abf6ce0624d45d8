// Package profile holds named weight profiles. A profile scales the default
// per-domain weight table; it never removes a domain.
package profile

import (
	"strings"

	"kube-health-audit/internal/inspect"
)

type Name string

const (
	Standard  Name = "standard"
	Security  Name = "security"
	Stability Name = "stability"
)

func Normalize(s string) Name {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "security":
		return Security
	case "stability":
		return Stability
	default:
		return Standard
	}
}

// Multipliers returns the per-domain factors applied to the default weights.
// Domains not listed keep a factor of 1.
func Multipliers(p Name) map[string]float64 {
	switch p {
	case Security:
		return map[string]float64{
			inspect.DomainSecurity:     1.50,
			inspect.DomainPolicy:       1.30,
			inspect.DomainCertificates: 1.30,
			inspect.DomainNetwork:      1.20,
		}
	case Stability:
		return map[string]float64{
			inspect.DomainNodeHealth:    1.30,
			inspect.DomainPodStatus:     1.30,
			inspect.DomainControlPlane:  1.20,
			inspect.DomainStorage:       1.20,
			inspect.DomainAutoscaling:   1.20,
			inspect.DomainObservability: 1.10,
		}
	default:
		return map[string]float64{}
	}
}
