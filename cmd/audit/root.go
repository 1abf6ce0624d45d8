package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"kube-health-audit/internal/compare"
	"kube-health-audit/internal/config"
	"kube-health-audit/internal/history"
	"kube-health-audit/internal/hostagent"
	"kube-health-audit/internal/inspect"
	"kube-health-audit/internal/kube"
	"kube-health-audit/internal/logging"
	"kube-health-audit/internal/metrics"
	"kube-health-audit/internal/output"
	"kube-health-audit/internal/profile"
	"kube-health-audit/internal/runner"
	"kube-health-audit/internal/scoring"
	"kube-health-audit/internal/trend"
)

const exitBelowMinScore = 2

// flags holds command-line values. Only flags the user set override the
// config file.
type flags struct {
	config      string
	kubeconfig  string
	context     string
	cluster     string
	namespaces  []string
	domains     []string
	profile     string
	minScore    float64
	outDir      string
	metricsFile string
	logLevel    string
	quiet       bool
	redact      bool
	noHistory   bool
	noAgent     bool
	compareTo   string
}

func newRootCmd(f *flags) *cobra.Command {
	root := &cobra.Command{
		Use:   "audit",
		Short: "Audit the health of a Kubernetes cluster",
		Long: "audit inspects the live state of a Kubernetes cluster, collects per-node snapshots " +
			"from the host agent DaemonSet, and produces a weighted health score with ranked findings.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *f)
			if err != nil {
				return err
			}
			return runAudit(cmd, cfg, *f)
		},
	}

	fs := root.PersistentFlags()
	fs.StringVar(&f.config, "config", "", "Path to config.yaml")
	fs.StringVar(&f.kubeconfig, "kubeconfig", "", "Path to kubeconfig")
	fs.StringVar(&f.context, "context", "", "Kubeconfig context to use")
	fs.StringVar(&f.cluster, "cluster", "", "Cluster name used in reports and history")
	fs.StringVar(&f.outDir, "out", config.DefaultOutDir, "Output directory")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug|info|warn|error")

	rf := root.Flags()
	rf.StringSliceVarP(&f.namespaces, "namespace", "n", nil, "Namespaces to audit (repeatable or comma-separated; empty = all)")
	rf.StringSliceVar(&f.domains, "domains", nil, "Audit domains to run (empty = all)")
	rf.StringVar(&f.profile, "profile", config.DefaultProfile, "Scoring profile: standard|security|stability")
	rf.Float64Var(&f.minScore, "min-score", 0, "Exit with code 2 when the weighted score is below this value")
	rf.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	rf.BoolVar(&f.quiet, "ci", false, "CI mode: errors only on stderr, one JSON summary line on stdout")
	rf.BoolVar(&f.redact, "redact", false, "Also write a redacted JSON report")
	rf.BoolVar(&f.noHistory, "no-history", false, "Do not record this run in the history database")
	rf.BoolVar(&f.noAgent, "no-host-agent", false, "Skip the host agent readiness protocol")
	rf.StringVar(&f.compareTo, "compare", "", "Path to a previous audit-report.json to diff against")

	root.AddCommand(newHistoryCmd(f))
	return root
}

// loadConfig reads the config file and applies explicitly set flags.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("kubeconfig") {
		cfg.Kubeconfig = f.kubeconfig
	}
	if changed("context") {
		cfg.Context = f.context
	}
	if changed("cluster") {
		cfg.ClusterName = f.cluster
	}
	if changed("namespace") {
		cfg.Namespaces = f.namespaces
	}
	if changed("domains") {
		cfg.Domains = f.domains
	}
	if changed("profile") {
		cfg.Profile = f.profile
	}
	if changed("min-score") {
		cfg.MinScore = f.minScore
	}
	if changed("out") {
		cfg.Output.Dir = f.outDir
	}
	if changed("metrics-file") {
		cfg.Output.MetricsFile = f.metricsFile
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if f.noHistory {
		cfg.History.Enabled = false
	}
	if f.noAgent {
		cfg.HostAgent.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func runAudit(cmd *cobra.Command, cfg *config.Config, f flags) error {
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development, Quiet: f.quiet})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	conn, err := kube.Connect(kube.Options{Kubeconfig: cfg.Kubeconfig, Context: cfg.Context})
	if err != nil {
		return fmt.Errorf("kube error: %w", err)
	}
	clusterName := cfg.ClusterName
	if clusterName == "" {
		clusterName = conn.ClusterName
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	clk := clock.RealClock{}
	prof := profile.Normalize(cfg.Profile)
	engine := scoring.New(scoring.Options{
		Profile:            prof,
		Overrides:          cfg.Weights,
		MaxRecommendations: cfg.MaxRecommendations,
	})

	rc := runner.Config{
		Inspectors: inspect.All(inspect.Deps{Client: conn.Client, Clock: clk, Log: log}),
		Engine:     engine,
		Clock:      clk,
		Log:        log,
	}
	if cfg.HostAgent.Enabled {
		h := cfg.HostAgent
		fleet := hostagent.NewKubeFleet(conn.Client, hostagent.FleetConfig{
			Namespace:     h.Namespace,
			DaemonSet:     h.DaemonSet,
			LabelSelector: h.LabelSelector,
			Container:     h.Container,
		})
		rc.Agent = hostagent.NewCollector(fleet, hostagent.Options{
			PollInterval:    h.PollInterval,
			PollDeadline:    h.PollDeadline,
			Staleness:       h.Staleness,
			RolloutInterval: h.RolloutInterval,
			RolloutDeadline: h.RolloutDeadline,
		}, clk, log)
	}

	log.Info("starting audit",
		zap.String("cluster", clusterName),
		zap.String("profile", string(prof)),
		zap.Strings("namespaces", cfg.Namespaces),
		zap.Strings("domains", cfg.Domains))

	rep := runner.New(rc).Run(ctx, runner.Options{
		ClusterName: clusterName,
		Scope:       inspect.NewScope(cfg.Namespaces...),
		Domains:     cfg.Domains,
	})

	jsonPath := filepath.Join(cfg.Output.Dir, "audit-report.json")
	if err := output.WriteJSON(jsonPath, rep); err != nil {
		return err
	}
	if f.redact {
		if err := output.WriteRedactedJSON(filepath.Join(cfg.Output.Dir, "audit-report-redacted.json"), rep); err != nil {
			return err
		}
	}

	var cmp *compare.Comparison
	if f.compareTo != "" {
		cmp = applyComparison(f.compareTo, cfg.Output.Dir, rep, log)
	}

	if cfg.Output.MetricsFile != "" {
		exp := metrics.NewExporter()
		exp.Observe(rep)
		if err := exp.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			log.Warn("metrics export failed", zap.Error(err))
		}
	}

	var tr *trend.Trend
	if cfg.History.Enabled {
		tr = recordHistory(ctx, cfg, rep, log)
	}

	out := cmd.OutOrStdout()
	if f.quiet {
		if err := output.WriteCISummary(out, output.NewCISummary(rep, cfg.MinScore, string(prof), tr)); err != nil {
			return err
		}
	} else {
		output.WriteConsole(out, rep, cfg.MinScore, tr)
		if cmp != nil {
			fmt.Fprintf(out, "Compared to %s: %+.1f, %d new findings, %d resolved\n",
				cmp.PreviousID, cmp.ScoreDelta, len(cmp.FindingsNew), len(cmp.FindingsResolved))
		}
		fmt.Fprintln(out, "JSON:", jsonPath)
	}

	if !output.Passed(rep, cfg.MinScore) {
		return &policyError{score: rep.OverallScore, min: cfg.MinScore, code: exitBelowMinScore}
	}
	return nil
}

// historyTimeout bounds the history write. It is detached from the run
// deadline so a run that used its whole budget is still recorded.
const historyTimeout = 30 * time.Second

// recordHistory stores the run; history problems never fail the audit.
func recordHistory(ctx context.Context, cfg *config.Config, rep *runner.Report, log *zap.Logger) *trend.Trend {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	store, err := history.Open(cfg.HistoryPath(), cfg.History.Keep)
	if err != nil {
		log.Warn("history skipped", zap.Error(err))
		return nil
	}
	defer func() { _ = store.Close() }()

	tr, err := store.Record(ctx, rep)
	if err != nil {
		log.Warn("history skipped", zap.Error(err))
		return nil
	}
	return &tr
}

// applyComparison diffs rep against a previous report and writes the result
// next to the report. A missing or unreadable previous report is logged and
// skipped.
func applyComparison(prevPath, outDir string, rep *runner.Report, log *zap.Logger) *compare.Comparison {
	prev, err := compare.LoadReport(prevPath)
	if err != nil {
		log.Warn("compare skipped", zap.Error(err))
		return nil
	}
	d := compare.Diff(prev, rep)
	if err := output.WriteValue(filepath.Join(outDir, "audit-comparison.json"), d); err != nil {
		log.Warn("write comparison", zap.Error(err))
	}
	return &d
}
