// Package autoscaler implements C14: evaluating a rolling window of
// per-node load metrics against a scale-up/scale-down policy and
// effecting the decision through injected callbacks. The autoscaler
// never spawns or terminates a process itself.
package autoscaler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/pkg/events"
	"go.uber.org/zap"
)

// Action is the outcome of one scaling evaluation.
type Action string

const (
	ScaleUp   Action = "SCALE_UP"
	ScaleDown Action = "SCALE_DOWN"
	NoAction  Action = "NO_ACTION"
)

const (
	defaultWindowSize        = 10
	defaultCheckInterval     = 30 * time.Second
	defaultScaleUpThreshold  = 80.0
	defaultScaleDownThreshold = 50.0
	defaultScaleUpCooldown   = 300 * time.Second
	defaultScaleDownCooldown = 600 * time.Second
)

// Policy is the scaling policy, per §4.12.
type Policy struct {
	MinNodes           int
	MaxNodes           int
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	ScaleUpCooldown    time.Duration
	ScaleDownCooldown  time.Duration
	WindowSize         int
}

// NodeMetrics is one sample of a node's load.
type NodeMetrics struct {
	NodeID          string
	CPUPercent      float64
	MemoryPercent   float64
	ActiveMissions  int
	PendingMissions int
	Timestamp       time.Time
}

// ScalingEvent is one recorded scale-up or scale-down action.
type ScalingEvent struct {
	Action    Action
	NodeCount int
	NodeIDs   []string
	Timestamp time.Time
}

// ScaleUpFunc adds n nodes and reports whether the operation succeeded.
type ScaleUpFunc func(ctx context.Context, n int) bool

// ScaleDownFunc removes the named nodes and reports whether the
// operation succeeded.
type ScaleDownFunc func(ctx context.Context, nodeIDs []string) bool

// GetMetricsFunc returns the latest metrics sample for every node.
type GetMetricsFunc func(ctx context.Context) []NodeMetrics

// Autoscaler evaluates rolling metric windows against Policy and drives
// scale-up/scale-down through injected callbacks.
type Autoscaler struct {
	policy        Policy
	getMetrics    GetMetricsFunc
	scaleUp       ScaleUpFunc
	scaleDown     ScaleDownFunc
	checkInterval time.Duration
	bus           *events.Bus
	logger        *zap.Logger

	mu              sync.Mutex
	windows         map[string][]NodeMetrics
	lastScaleUpAt   time.Time
	lastScaleDownAt time.Time
	history         []ScalingEvent

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an Autoscaler. Zero-valued policy fields fall back to
// §4.12's defaults.
func New(policy Policy, checkInterval time.Duration, getMetrics GetMetricsFunc, scaleUp ScaleUpFunc, scaleDown ScaleDownFunc, bus *events.Bus, logger *zap.Logger) *Autoscaler {
	if policy.MinNodes <= 0 {
		policy.MinNodes = 1
	}
	if policy.MaxNodes <= 0 {
		policy.MaxNodes = 10
	}
	if policy.ScaleUpThreshold <= 0 {
		policy.ScaleUpThreshold = defaultScaleUpThreshold
	}
	if policy.ScaleDownThreshold <= 0 {
		policy.ScaleDownThreshold = defaultScaleDownThreshold
	}
	if policy.ScaleUpCooldown <= 0 {
		policy.ScaleUpCooldown = defaultScaleUpCooldown
	}
	if policy.ScaleDownCooldown <= 0 {
		policy.ScaleDownCooldown = defaultScaleDownCooldown
	}
	if policy.WindowSize <= 0 {
		policy.WindowSize = defaultWindowSize
	}
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	return &Autoscaler{
		policy:        policy,
		getMetrics:    getMetrics,
		scaleUp:       scaleUp,
		scaleDown:     scaleDown,
		checkInterval: checkInterval,
		bus:           bus,
		logger:        logger,
		windows:       make(map[string][]NodeMetrics),
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic evaluation loop.
func (a *Autoscaler) Start(ctx context.Context, currentNodes func() int) {
	a.wg.Add(1)
	go a.loop(ctx, currentNodes)
}

// Stop halts the evaluation loop.
func (a *Autoscaler) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *Autoscaler) loop(ctx context.Context, currentNodes func() int) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.CheckAndScale(ctx, currentNodes())
		}
	}
}

// recordSample folds one metrics sample into the node's rolling window.
func (a *Autoscaler) recordSample(m NodeMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := append(a.windows[m.NodeID], m)
	if len(w) > a.policy.WindowSize {
		w = w[len(w)-a.policy.WindowSize:]
	}
	a.windows[m.NodeID] = w
}

// latestWindowMeans returns, for each sampled node, the mean of its
// rolling window, plus its most recent mission counters.
func (a *Autoscaler) latestWindowMeans() (meanCPU, meanMemory float64, totalActive, totalPending int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var sumCPU, sumMemory float64
	var n int
	for _, w := range a.windows {
		if len(w) == 0 {
			continue
		}
		var cpu, mem float64
		for _, s := range w {
			cpu += s.CPUPercent
			mem += s.MemoryPercent
		}
		sumCPU += cpu / float64(len(w))
		sumMemory += mem / float64(len(w))
		n++
		latest := w[len(w)-1]
		totalActive += latest.ActiveMissions
		totalPending += latest.PendingMissions
	}
	if n == 0 {
		return 0, 0, 0, 0
	}
	return sumCPU / float64(n), sumMemory / float64(n), totalActive, totalPending
}

// Evaluate decides the scaling action for the current set of metrics,
// per §4.12's threshold rules, without effecting it.
func (a *Autoscaler) Evaluate(currentNodes int) Action {
	meanCPU, meanMemory, totalActive, totalPending := a.latestWindowMeans()

	now := time.Now()
	a.mu.Lock()
	canScaleUp := a.lastScaleUpAt.IsZero() || now.Sub(a.lastScaleUpAt) >= a.policy.ScaleUpCooldown
	canScaleDown := a.lastScaleDownAt.IsZero() || now.Sub(a.lastScaleDownAt) >= a.policy.ScaleDownCooldown
	a.mu.Unlock()
	canScaleUp = canScaleUp && currentNodes < a.policy.MaxNodes
	canScaleDown = canScaleDown && currentNodes > a.policy.MinNodes

	if canScaleUp {
		if meanCPU > a.policy.ScaleUpThreshold || meanMemory > a.policy.ScaleUpThreshold || totalPending > currentNodes*2 {
			return ScaleUp
		}
	}
	if canScaleDown {
		if meanCPU < a.policy.ScaleDownThreshold && meanMemory < a.policy.ScaleDownThreshold && totalPending == 0 && totalActive < currentNodes {
			return ScaleDown
		}
	}
	return NoAction
}

// CheckAndScale pulls a fresh metrics sample, folds it into the rolling
// windows, evaluates the policy, and effects a scale-up/down if due.
func (a *Autoscaler) CheckAndScale(ctx context.Context, currentNodes int) {
	samples := a.getMetrics(ctx)
	for _, s := range samples {
		a.recordSample(s)
	}

	switch a.Evaluate(currentNodes) {
	case ScaleUp:
		a.doScaleUp(ctx, currentNodes)
	case ScaleDown:
		a.doScaleDown(ctx, currentNodes, samples)
	}
}

func (a *Autoscaler) doScaleUp(ctx context.Context, currentNodes int) {
	if currentNodes >= a.policy.MaxNodes {
		return
	}
	nodesToAdd := a.policy.MaxNodes - currentNodes
	if nodesToAdd > 1 {
		nodesToAdd = 1
	}
	if !a.scaleUp(ctx, nodesToAdd) {
		a.logger.Error("scale up failed")
		return
	}
	a.mu.Lock()
	a.lastScaleUpAt = time.Now()
	a.history = append(a.history, ScalingEvent{Action: ScaleUp, NodeCount: nodesToAdd, Timestamp: a.lastScaleUpAt})
	a.mu.Unlock()
	a.logger.Info("scaled up", zap.Int("nodes_added", nodesToAdd))
	if a.bus != nil {
		_ = a.bus.Publish(ctx, events.NewEvent(events.EventAutoscaleScaledUp, "", map[string]interface{}{"nodes_added": nodesToAdd}))
	}
}

func (a *Autoscaler) doScaleDown(ctx context.Context, currentNodes int, samples []NodeMetrics) {
	if currentNodes <= a.policy.MinNodes {
		return
	}
	nodesToRemove := currentNodes - a.policy.MinNodes
	if nodesToRemove > 1 {
		nodesToRemove = 1
	}

	sorted := make([]NodeMetrics, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CPUPercent+sorted[i].MemoryPercent < sorted[j].CPUPercent+sorted[j].MemoryPercent
	})
	if nodesToRemove > len(sorted) {
		nodesToRemove = len(sorted)
	}
	ids := make([]string, 0, nodesToRemove)
	for _, m := range sorted[:nodesToRemove] {
		ids = append(ids, m.NodeID)
	}
	if len(ids) == 0 {
		return
	}

	if !a.scaleDown(ctx, ids) {
		a.logger.Error("scale down failed")
		return
	}
	a.mu.Lock()
	a.lastScaleDownAt = time.Now()
	a.history = append(a.history, ScalingEvent{Action: ScaleDown, NodeCount: len(ids), NodeIDs: ids, Timestamp: a.lastScaleDownAt})
	a.mu.Unlock()
	a.logger.Info("scaled down", zap.Strings("node_ids", ids))
	if a.bus != nil {
		_ = a.bus.Publish(ctx, events.NewEvent(events.EventAutoscaleScaledDown, "", map[string]interface{}{"node_ids": ids}))
	}
}

// History returns up to limit of the most recent scaling events, most
// recent last.
func (a *Autoscaler) History(limit int) []ScalingEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit <= 0 || limit > len(a.history) {
		limit = len(a.history)
	}
	return append([]ScalingEvent(nil), a.history[len(a.history)-limit:]...)
}

// Statistics summarizes the scaling history, for operator API consumption.
type Statistics struct {
	TotalActions int       `json:"total_scaling_actions"`
	ScaleUps     int       `json:"scale_ups"`
	ScaleDowns   int       `json:"scale_downs"`
	LastScaleUp  time.Time `json:"last_scale_up"`
	LastScaleDown time.Time `json:"last_scale_down"`
}

// Statistics returns a summary of every scaling action taken so far.
func (a *Autoscaler) Statistics() Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := Statistics{LastScaleUp: a.lastScaleUpAt, LastScaleDown: a.lastScaleDownAt}
	for _, h := range a.history {
		stats.TotalActions++
		if h.Action == ScaleUp {
			stats.ScaleUps++
		} else if h.Action == ScaleDown {
			stats.ScaleDowns++
		}
	}
	return stats
}
