package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"kube-health-audit/internal/runner"
)

// WriteRedactedJSON writes a copy of the report with cluster, namespace and
// node identifiers replaced by opaque tokens.
func WriteRedactedJSON(path string, rep *runner.Report) error {
	r, err := Redact(rep)
	if err != nil {
		return err
	}
	return WriteJSON(path, r)
}

// Redact returns a deep copy of rep with identifiers masked. Object names
// are kept; the namespace part of a "namespace/name" reference and every
// node name (also inside finding text) are replaced. Tokens are numbered in
// sorted order so repeated runs mask identically.
func Redact(rep *runner.Report) (*runner.Report, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("redact: %w", err)
	}
	var r runner.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("redact: %w", err)
	}

	nsSet := map[string]bool{}
	nodeSet := map[string]bool{}
	for _, res := range r.Results {
		for _, f := range res.Summary.Findings {
			if f.Category == "Node" {
				nodeSet[f.Resource] = true
			} else if ns, _, ok := strings.Cut(f.Resource, "/"); ok && !strings.Contains(ns, ":") {
				nsSet[ns] = true
			}
		}
		for _, row := range res.NamespaceSummaries {
			nsSet[row.Name] = true
		}
		for _, row := range res.CertificateExpiries {
			nsSet[row.SecretNamespace] = true
		}
	}
	for _, h := range r.Hosts {
		nodeSet[h.NodeName] = true
	}
	nsMap := tokens(nsSet, "namespace")
	nodeMap := tokens(nodeSet, "node")

	maskRef := func(s string) string {
		if ns, name, ok := strings.Cut(s, "/"); ok {
			if t, ok := nsMap[ns]; ok {
				return t + "/" + name
			}
		}
		if t, ok := nodeMap[s]; ok {
			return t
		}
		if node, path, ok := strings.Cut(s, ":"); ok {
			if t, ok := nodeMap[node]; ok {
				return t + ":" + path
			}
		}
		return s
	}
	// Single pass, longest name first, so "worker-10" is not rewritten
	// through "worker-1" and tokens are never rewritten again.
	nodeNames := make([]string, 0, len(nodeMap))
	for n := range nodeMap {
		nodeNames = append(nodeNames, n)
	}
	sort.Slice(nodeNames, func(i, j int) bool {
		if len(nodeNames[i]) != len(nodeNames[j]) {
			return len(nodeNames[i]) > len(nodeNames[j])
		}
		return nodeNames[i] < nodeNames[j]
	})
	pairs := make([]string, 0, 2*len(nodeNames))
	for _, n := range nodeNames {
		pairs = append(pairs, n, nodeMap[n])
	}
	maskText := strings.NewReplacer(pairs...).Replace

	r.ClusterName = "[redacted]"
	for i := range r.Results {
		res := &r.Results[i]
		for j := range res.Summary.Findings {
			f := &res.Summary.Findings[j]
			f.Resource = maskRef(f.Resource)
			f.Description = maskText(f.Description)
		}
		for j := range res.NamespaceSummaries {
			res.NamespaceSummaries[j].Name = nsMap[res.NamespaceSummaries[j].Name]
		}
		for j := range res.CertificateExpiries {
			row := &res.CertificateExpiries[j]
			row.SecretNamespace = nsMap[row.SecretNamespace]
			row.Subject = "[redacted]"
		}
		for j := range res.PodContainerStates {
			res.PodContainerStates[j].PodRef = maskRef(res.PodContainerStates[j].PodRef)
		}
	}
	for i := range r.AggregatedFindings {
		for j, res := range r.AggregatedFindings[i].Resources {
			r.AggregatedFindings[i].Resources[j] = maskRef(res)
		}
	}
	for i := range r.Hosts {
		h := &r.Hosts[i]
		h.NodeName = nodeMap[h.NodeName]
		h.Hostname = h.NodeName
	}
	return &r, nil
}

func tokens(set map[string]bool, prefix string) map[string]string {
	names := make([]string, 0, len(set))
	for n := range set {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	out := make(map[string]string, len(names))
	for i, n := range names {
		out[n] = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return out
}
