// Package runner sequences one audit run: the cluster inspectors, the
// host-agent protocol, and scoring, producing an immutable Report.
package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/utils/clock"

	"kube-health-audit/internal/inspect"
	"kube-health-audit/internal/model"
	"kube-health-audit/internal/scoring"
)

// HostAgent is the part of the host-agent collector the runner drives.
type HostAgent interface {
	EnsureReady(ctx context.Context) model.AgentStatus
	Collect(ctx context.Context) ([]model.HostSnapshot, error)
}

// Runner executes inspectors and assembles reports.
type Runner struct {
	inspectors []inspect.Inspector
	agent      HostAgent
	engine     *scoring.Engine
	clock      clock.PassiveClock
	log        *zap.Logger
}

// Config wires a Runner. Agent may be nil to disable host collection.
type Config struct {
	Inspectors []inspect.Inspector
	Agent      HostAgent
	Engine     *scoring.Engine
	Clock      clock.PassiveClock
	Log        *zap.Logger
}

func New(cfg Config) *Runner {
	r := &Runner{
		inspectors: cfg.Inspectors,
		agent:      cfg.Agent,
		engine:     cfg.Engine,
		clock:      cfg.Clock,
		log:        cfg.Log,
	}
	if r.engine == nil {
		r.engine = scoring.New(scoring.Options{})
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Options select what one run covers.
type Options struct {
	ClusterName string
	Scope       inspect.Scope
	// Domains limits the run to the named domains (case-insensitive).
	// Empty runs everything.
	Domains []string
}

// Run executes the selected inspectors concurrently. A failing inspector
// is recorded as a skip; it never aborts the run.
func (r *Runner) Run(ctx context.Context, opts Options) *Report {
	started := r.clock.Now().UTC()
	selected := r.selectInspectors(opts.Domains)

	results := make([]*model.AuditResult, len(selected))
	skips := make([]*model.UnitSkip, len(selected))
	var g errgroup.Group
	for i, in := range selected {
		g.Go(func() error {
			t0 := r.clock.Now()
			res, err := in.Inspect(ctx, opts.Scope)
			if err != nil {
				skips[i] = skipFor(in.Domain(), err)
				r.log.Warn("audit unit skipped", zap.String("domain", in.Domain()), zap.Error(err))
				return nil
			}
			results[i] = &res
			r.log.Debug("audit unit done",
				zap.String("domain", in.Domain()),
				zap.Float64("score", res.OverallScore),
				zap.Duration("took", r.clock.Since(t0)))
			return nil
		})
	}
	_ = g.Wait()

	rep := &Report{
		ID:          uuid.NewString(),
		ClusterName: opts.ClusterName,
		Timestamp:   started,
		engine:      r.engine,
	}
	for i := range selected {
		if results[i] != nil {
			rep.Results = append(rep.Results, *results[i])
		}
		if skips[i] != nil {
			rep.Skips = append(rep.Skips, *skips[i])
		}
	}

	if r.agent != nil && wantsHosts(opts.Domains) {
		status := r.agent.EnsureReady(ctx)
		rep.AgentStatus = &status
		if status.Collectable() {
			hosts, err := r.agent.Collect(ctx)
			if err != nil {
				r.log.Warn("collect host snapshots", zap.Error(err))
				skip := skipFor(inspect.DomainNodeInspection, fmt.Errorf("collect host snapshots: %w", err))
				rep.Skips = append(rep.Skips, *skip)
			}
			rep.Hosts = hosts
			if len(hosts) > 0 {
				rep.Results = append(rep.Results, NodeInspection(hosts, r.clock.Now().UTC()))
			}
		}
	}

	sort.SliceStable(rep.Results, func(i, j int) bool {
		return inspect.Order(rep.Results[i].Domain) < inspect.Order(rep.Results[j].Domain)
	})
	sort.SliceStable(rep.Skips, func(i, j int) bool {
		return inspect.Order(rep.Skips[i].Domain) < inspect.Order(rep.Skips[j].Domain)
	})
	rep.derive()
	return rep
}

func (r *Runner) selectInspectors(domains []string) []inspect.Inspector {
	if len(domains) == 0 {
		return r.inspectors
	}
	var out []inspect.Inspector
	for _, in := range r.inspectors {
		if containsFold(domains, in.Domain()) {
			out = append(out, in)
		}
	}
	return out
}

// wantsHosts reports whether host data belongs to the selection: always
// for a full run, otherwise only when node domains are selected.
func wantsHosts(domains []string) bool {
	return len(domains) == 0 ||
		containsFold(domains, inspect.DomainNodeHealth) ||
		containsFold(domains, inspect.DomainNodeInspection)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

func skipFor(domain string, err error) *model.UnitSkip {
	s := &model.UnitSkip{Domain: domain, Reason: err.Error()}
	if ue, ok := inspect.AsUnitError(err); ok {
		s.RBAC = ue.IsRBAC()
	} else {
		s.RBAC = apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err)
	}
	return s
}

// Report is one run's immutable snapshot, handed to output writers.
type Report struct {
	ID                 string                    `json:"id"`
	ClusterName        string                    `json:"clusterName"`
	Timestamp          time.Time                 `json:"timestamp"`
	OverallScore       float64                   `json:"overallScore"`
	HealthTier         model.HealthTier          `json:"healthTier"`
	Results            []model.AuditResult       `json:"results"`
	Summary            model.ExecutiveSummary    `json:"executiveSummary"`
	Breakdown          []model.DomainScore       `json:"scoreBreakdown"`
	AggregatedFindings []model.AggregatedFinding `json:"aggregatedFindings"`
	Hosts              []model.HostSnapshot      `json:"hosts,omitempty"`
	AgentStatus        *model.AgentStatus        `json:"agentStatus,omitempty"`
	Skips              []model.UnitSkip          `json:"skips,omitempty"`

	engine *scoring.Engine
}

func (rep *Report) derive() {
	rep.OverallScore = rep.engine.WeightedScore(rep.Results)
	rep.HealthTier = scoring.HealthTierFor(rep.OverallScore)
	rep.Summary = rep.engine.Summarize(rep.Results)
	rep.Breakdown = rep.engine.ScoreBreakdown(rep.Results)
	rep.AggregatedFindings = scoring.AggregateFindings(rep.Results)
}

// Filter returns a copy restricted to the named domains with every derived
// field recomputed. The receiver is not modified.
func (rep *Report) Filter(domains ...string) *Report {
	out := *rep
	out.Results = nil
	for _, res := range rep.Results {
		if containsFold(domains, res.Domain) {
			out.Results = append(out.Results, res)
		}
	}
	out.Skips = nil
	for _, s := range rep.Skips {
		if containsFold(domains, s.Domain) {
			out.Skips = append(out.Skips, s)
		}
	}
	if out.engine == nil {
		out.engine = scoring.New(scoring.Options{})
	}
	out.derive()
	return &out
}
