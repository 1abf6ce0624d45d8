package runner

import (
	"fmt"
	"time"

	"kube-health-audit/internal/inspect"
	"kube-health-audit/internal/model"
)

// Host thresholds.
const (
	diskWarnPct     = 80.0
	diskCriticalPct = 90.0
	certWarnDays    = 30
)

// NodeInspection builds the synthetic audit result from host snapshots.
func NodeInspection(hosts []model.HostSnapshot, ts time.Time) model.AuditResult {
	var findings []model.Finding
	add := func(sev model.Severity, category, resource, desc, rec, rule string) {
		findings = append(findings, model.NewFinding(sev, category, resource, desc, rec, rule))
	}

	noZombies, diskOK, certOK, certTotal := 0, 0, 0, 0
	for _, h := range hosts {
		if h.ZombieCount != nil && *h.ZombieCount > 0 {
			add(model.SeverityWarning, "Node", h.NodeName,
				fmt.Sprintf("Node %s has %d zombie processes", h.NodeName, *h.ZombieCount),
				"Find and restart the parent processes that are not reaping children", "NODE-003")
		} else {
			noZombies++
		}

		worst := 0.0
		for _, d := range diskUsages(h) {
			switch {
			case d.pct >= diskCriticalPct:
				add(model.SeverityCritical, "Node", h.NodeName,
					fmt.Sprintf("Node %s mount %s is %.1f%% full", h.NodeName, d.mount, d.pct),
					"Free disk space or expand the volume before the kubelet starts evicting pods", "NODE-005")
			case d.pct >= diskWarnPct:
				add(model.SeverityWarning, "Node", h.NodeName,
					fmt.Sprintf("Node %s mount %s is %.1f%% full", h.NodeName, d.mount, d.pct),
					"Clean up images and logs or plan disk expansion", "NODE-004")
			}
			if d.pct > worst {
				worst = d.pct
			}
		}
		if worst < diskWarnPct {
			diskOK++
		}

		for _, c := range h.Certificates {
			certTotal++
			switch {
			case c.DaysRemaining < 0:
				add(model.SeverityCritical, "Certificate", h.NodeName+":"+c.Path,
					fmt.Sprintf("Certificate %s on node %s expired %s", c.Path, h.NodeName, c.ExpirationDate),
					"Renew the certificate and restart the component using it", "CERT-003")
			case c.DaysRemaining <= certWarnDays:
				add(model.SeverityWarning, "Certificate", h.NodeName+":"+c.Path,
					fmt.Sprintf("Certificate %s on node %s expires in %d days", c.Path, h.NodeName, c.DaysRemaining),
					"Schedule certificate rotation", "CERT-002")
			default:
				certOK++
			}
		}
	}

	n := len(hosts)
	checks := []model.Check{
		model.NewCheck("Zombie Processes", "Checks nodes for unreaped zombie processes",
			model.RatioScore(noZombies, n), fmt.Sprintf("%d/%d nodes without zombie processes", noZombies, n),
			"Investigate processes leaking zombies on affected nodes"),
		model.NewCheck("Node Disk Usage", "Checks node filesystems stay below 80% usage",
			model.RatioScore(diskOK, n), fmt.Sprintf("%d/%d nodes below %.0f%% disk usage", diskOK, n, diskWarnPct),
			"Free or expand disk space on affected nodes"),
		model.NewCheck("Node Certificates", "Checks certificates found on nodes for expiry",
			model.RatioScore(certOK, certTotal), fmt.Sprintf("%d/%d node certificates valid for more than %d days", certOK, certTotal, certWarnDays),
			"Rotate expiring node certificates"),
	}
	return model.NewAuditResult(inspect.DomainNodeInspection, ts, checks, findings)
}

type diskUsage struct {
	mount string
	pct   float64
}

// diskUsages prefers per-mount rows and falls back to the root disk summary.
func diskUsages(h model.HostSnapshot) []diskUsage {
	var out []diskUsage
	for _, d := range h.Disks {
		if d.UsedPct != nil {
			out = append(out, diskUsage{mount: d.MountPoint, pct: *d.UsedPct})
		}
	}
	if len(out) > 0 {
		return out
	}
	switch {
	case h.Resources.DiskUsedPct != nil:
		return []diskUsage{{mount: "/", pct: *h.Resources.DiskUsedPct}}
	case h.Resources.RootDiskPct != nil:
		return []diskUsage{{mount: "/", pct: *h.Resources.RootDiskPct}}
	}
	return nil
}
