// Package metrics exports a report as Prometheus gauges, written in the
// text exposition format for the node-exporter textfile collector.
package metrics

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"kube-health-audit/internal/model"
	"kube-health-audit/internal/runner"
)

const namespace = "kube_health_audit"

// Exporter holds the gauges of one run in a private registry.
type Exporter struct {
	registry *prometheus.Registry

	score       *prometheus.GaugeVec
	domainScore *prometheus.GaugeVec
	findings    *prometheus.GaugeVec
	agents      *prometheus.GaugeVec
	skipped     *prometheus.GaugeVec
	lastRun     *prometheus.GaugeVec
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "score",
			Help: "Weighted cluster health score (0-100).",
		}, []string{"cluster", "tier"}),
		domainScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "domain_score",
			Help: "Unweighted score of one audit domain (0-100).",
		}, []string{"cluster", "domain"}),
		findings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "findings",
			Help: "Number of findings by domain and severity.",
		}, []string{"cluster", "domain", "severity"}),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_agents",
			Help: "Host agents by readiness as seen by the last run.",
		}, []string{"cluster", "state"}),
		skipped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "unit_skipped",
			Help: "1 for each audit domain that produced no result.",
		}, []string{"cluster", "domain", "rbac"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds",
			Help: "Unix time of the last audit run.",
		}, []string{"cluster"}),
	}
	e.registry.MustRegister(e.score, e.domainScore, e.findings, e.agents, e.skipped, e.lastRun)
	return e
}

// Gatherer exposes the registry, mainly for tests.
func (e *Exporter) Gatherer() prometheus.Gatherer { return e.registry }

// Observe replaces all gauge values with those of rep.
func (e *Exporter) Observe(rep *runner.Report) {
	for _, v := range []*prometheus.GaugeVec{e.score, e.domainScore, e.findings, e.agents, e.skipped, e.lastRun} {
		v.Reset()
	}
	cluster := rep.ClusterName

	e.score.WithLabelValues(cluster, string(rep.HealthTier)).Set(rep.OverallScore)
	e.lastRun.WithLabelValues(cluster).Set(float64(rep.Timestamp.Unix()))

	for _, res := range rep.Results {
		e.domainScore.WithLabelValues(cluster, res.Domain).Set(res.OverallScore)
		counts := map[model.Severity]int{}
		for _, f := range res.Summary.Findings {
			counts[f.Severity]++
		}
		for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityWarning, model.SeverityInfo} {
			e.findings.WithLabelValues(cluster, res.Domain, string(sev)).Set(float64(counts[sev]))
		}
	}

	for _, s := range rep.Skips {
		e.skipped.WithLabelValues(cluster, s.Domain, strconv.FormatBool(s.RBAC)).Set(1)
	}

	if st := rep.AgentStatus; st != nil {
		ready, total := float64(len(rep.Hosts)), float64(len(rep.Hosts))
		switch st.State {
		case model.AgentNotDeployed:
			ready, total = 0, 0
		case model.AgentReadyPartial:
			ready, total = float64(st.Ready), float64(st.Total)
		}
		e.agents.WithLabelValues(cluster, "ready").Set(ready)
		e.agents.WithLabelValues(cluster, "total").Set(total)
	}
}

// Write renders the registry in the text exposition format.
func (e *Exporter) Write(w io.Writer) error {
	mfs, err := e.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile atomically writes the registry to path.
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
