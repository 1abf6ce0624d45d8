package hostagent

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/clock"

	"kube-health-audit/internal/model"
)

// readConcurrency bounds concurrent agent reads within one sweep.
const readConcurrency = 16

// collectTimeout bounds the final collection pass. It runs on its own
// context so an expired run deadline cannot discard reads that already
// succeeded during polling.
const collectTimeout = time.Minute

// Options are the protocol timings.
type Options struct {
	PollInterval    time.Duration
	PollDeadline    time.Duration
	Staleness       time.Duration
	RolloutInterval time.Duration
	RolloutDeadline time.Duration
}

// Collector runs the readiness protocol and collects snapshots.
type Collector struct {
	fleet Fleet
	opts  Options
	clock clock.Clock
	log   *zap.Logger

	// seen holds the last non-empty output per agent from the most recent
	// polling loop. Collect falls back to it when a re-read fails.
	seen map[string]seenRead
}

type seenRead struct {
	nodeName string
	output   string
}

// NewCollector returns a Collector. A nil clock uses the real clock and a
// nil logger discards output.
func NewCollector(fleet Fleet, opts Options, clk clock.Clock, log *zap.Logger) *Collector {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{fleet: fleet, opts: opts, clock: clk, log: log.Named("hostagent")}
}

// pollResult is the outcome of one bounded polling loop.
type pollResult struct {
	ready, total int
	oldest       time.Time
	timedOut     bool
}

// EnsureReady makes sure every running agent has fresh output, restarting
// the fleet at most once. Every outcome is a status; none is an error.
func (c *Collector) EnsureReady(ctx context.Context) model.AgentStatus {
	agents, ok := c.runningAgents(ctx)
	if !ok {
		return model.AgentStatus{State: model.AgentNotDeployed}
	}

	res := c.poll(ctx, agents)
	if res.timedOut {
		c.log.Warn("host agent output incomplete, proceeding with partial data",
			zap.Int("ready", res.ready), zap.Int("total", res.total))
		return model.AgentStatus{State: model.AgentReadyPartial, Ready: res.ready, Total: res.total}
	}

	now := c.clock.Now()
	if res.oldest.IsZero() || now.Sub(res.oldest) < c.opts.Staleness {
		return model.AgentStatus{State: model.AgentReady}
	}

	c.log.Info("host agent data is stale, restarting fleet",
		zap.Duration("age", now.Sub(res.oldest)), zap.Duration("threshold", c.opts.Staleness))
	if err := c.fleet.Restart(ctx, now); err != nil {
		c.log.Warn("restart host agents", zap.Error(err))
		return model.AgentStatus{State: model.AgentNotDeployed}
	}
	c.waitRollout(ctx)

	agents, ok = c.runningAgents(ctx)
	if !ok {
		return model.AgentStatus{State: model.AgentNotDeployed}
	}
	res = c.poll(ctx, agents)
	if res.timedOut {
		c.log.Warn("host agents restarted but output incomplete, proceeding with partial data",
			zap.Int("ready", res.ready), zap.Int("total", res.total))
		return model.AgentStatus{State: model.AgentReadyPartial, Ready: res.ready, Total: res.total}
	}
	return model.AgentStatus{State: model.AgentRestartedAndReady}
}

func (c *Collector) runningAgents(ctx context.Context) ([]Agent, bool) {
	agents, err := c.fleet.ListAgents(ctx)
	if err != nil {
		c.log.Debug("list host agents", zap.Error(err))
		return nil, false
	}
	var running []Agent
	for _, a := range agents {
		if a.Running {
			running = append(running, a)
		}
	}
	if len(running) == 0 {
		c.log.Debug("no running host agents", zap.Int("listed", len(agents)))
		return nil, false
	}
	return running, true
}

// poll sweeps every agent each interval until all have output, the
// deadline fixed at entry passes, or ctx ends. An agent stays ready once
// any sweep read its output; a later failed read never un-counts it.
func (c *Collector) poll(ctx context.Context, agents []Agent) pollResult {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	got := make([]string, len(agents))
	defer func() { c.remember(agents, got) }()

	start := c.clock.Now()
	deadline := start.Add(c.opts.PollDeadline)
	for {
		if ctx.Err() != nil {
			res := evaluate(got)
			res.timedOut = true
			return res
		}
		for i, out := range c.sweep(ctx, names) {
			if out != "" {
				got[i] = out
			}
		}
		res := evaluate(got)
		if res.ready >= res.total {
			return res
		}
		now := c.clock.Now()
		if ctx.Err() != nil || !now.Before(deadline) {
			res.timedOut = true
			return res
		}
		c.log.Info("waiting for host agent output",
			zap.Duration("elapsed", now.Sub(start)), zap.Int("ready", res.ready), zap.Int("total", res.total))
		c.clock.Sleep(minDuration(c.opts.PollInterval, deadline.Sub(now)))
	}
}

func (c *Collector) remember(agents []Agent, outputs []string) {
	c.seen = make(map[string]seenRead, len(agents))
	for i, out := range outputs {
		if out != "" {
			c.seen[agents[i].Name] = seenRead{nodeName: agents[i].NodeName, output: out}
		}
	}
}

// seenAgents lists the agents remembered from polling, sorted by name.
func (c *Collector) seenAgents() []Agent {
	agents := make([]Agent, 0, len(c.seen))
	for name, r := range c.seen {
		agents = append(agents, Agent{Name: name, NodeName: r.nodeName, Running: true})
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents
}

// sweep reads every agent concurrently; a failed read yields "".
func (c *Collector) sweep(ctx context.Context, names []string) []string {
	outputs := make([]string, len(names))
	var g errgroup.Group
	g.SetLimit(readConcurrency)
	for i, name := range names {
		g.Go(func() error {
			out, err := c.fleet.ReadOutput(ctx, name)
			if err != nil {
				c.log.Debug("read host agent output", zap.String("agent", name), zap.Error(err))
				return nil
			}
			outputs[i] = strings.TrimSpace(out)
			return nil
		})
	}
	_ = g.Wait()
	return outputs
}

// evaluate counts non-empty outputs as ready and finds the oldest parsable
// self-reported timestamp.
func evaluate(outputs []string) pollResult {
	res := pollResult{total: len(outputs)}
	for _, out := range outputs {
		if out == "" {
			continue
		}
		res.ready++
		var head struct {
			Timestamp string `json:"timestamp"`
		}
		if json.Unmarshal([]byte(out), &head) != nil || head.Timestamp == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, head.Timestamp)
		if err != nil {
			continue
		}
		if res.oldest.IsZero() || ts.Before(res.oldest) {
			res.oldest = ts
		}
	}
	return res
}

// waitRollout blocks until the fleet reports all desired agents ready or the
// rollout deadline passes. Timing out is not an error.
func (c *Collector) waitRollout(ctx context.Context) {
	deadline := c.clock.Now().Add(c.opts.RolloutDeadline)
	for {
		desired, ready, err := c.fleet.RolloutStatus(ctx)
		if err == nil && desired > 0 && ready >= desired {
			return
		}
		if err != nil {
			c.log.Debug("host agent rollout status", zap.Error(err))
		}
		now := c.clock.Now()
		if ctx.Err() != nil || !now.Before(deadline) {
			c.log.Warn("host agent rollout did not finish before deadline",
				zap.Int32("desired", desired), zap.Int32("ready", ready))
			return
		}
		c.clock.Sleep(minDuration(c.opts.RolloutInterval, deadline.Sub(now)))
	}
}

// Collect reads and parses one snapshot per listed agent. A failed or empty
// re-read falls back to the output seen during polling. Empty and malformed
// outputs are skipped. The result is sorted by node name.
func (c *Collector) Collect(ctx context.Context) ([]model.HostSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), collectTimeout)
	defer cancel()

	agents, err := c.fleet.ListAgents(ctx)
	if err != nil {
		if len(c.seen) == 0 {
			return nil, err
		}
		c.log.Warn("re-list host agents failed, using output read while polling", zap.Error(err))
		agents = c.seenAgents()
	}

	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	outputs := c.sweep(ctx, names)

	snaps := make([]model.HostSnapshot, 0, len(agents))
	for i, out := range outputs {
		if r, ok := c.seen[agents[i].Name]; ok && out == "" {
			out = r.output
		}
		if out == "" {
			c.log.Debug("empty host agent output", zap.String("agent", agents[i].Name))
			continue
		}
		var s model.HostSnapshot
		if err := json.Unmarshal([]byte(out), &s); err != nil {
			c.log.Debug("skip malformed host agent output", zap.String("agent", agents[i].Name), zap.Error(err))
			continue
		}
		if s.NodeName == "" {
			s.NodeName = agents[i].NodeName
		}
		if s.Hostname == "" {
			s.Hostname = s.NodeName
		}
		snaps = append(snaps, s)
	}
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].NodeName < snaps[j].NodeName })

	c.fillContainerStates(ctx, snaps)
	return snaps, nil
}

// fillContainerStates tallies container states per node from a cluster-wide
// pod list. Failure leaves the tallies unset.
func (c *Collector) fillContainerStates(ctx context.Context, snaps []model.HostSnapshot) {
	pods, err := c.fleet.ListPods(ctx)
	if err != nil {
		c.log.Debug("list pods for container state tally", zap.Error(err))
		return
	}

	perNode := map[string]map[string]int{}
	for _, p := range pods {
		if p.Spec.NodeName == "" {
			continue
		}
		counts := perNode[p.Spec.NodeName]
		if counts == nil {
			counts = map[string]int{}
			perNode[p.Spec.NodeName] = counts
		}
		statuses := append(append([]corev1.ContainerStatus{}, p.Status.InitContainerStatuses...), p.Status.ContainerStatuses...)
		for _, cs := range statuses {
			switch {
			case cs.State.Running != nil:
				counts["running"]++
			case cs.State.Terminated != nil:
				counts["exited"]++
			default:
				counts["waiting"]++
			}
		}
	}

	for i := range snaps {
		if counts := perNode[snaps[i].NodeName]; len(counts) > 0 {
			snaps[i].ContainerStateCounts = counts
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
