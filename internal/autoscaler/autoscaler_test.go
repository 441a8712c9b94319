package autoscaler

import (
	"context"
	"testing"
	"time"

	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAutoscaler(policy Policy) *Autoscaler {
	return New(policy, time.Minute, func(ctx context.Context) []NodeMetrics { return nil }, func(ctx context.Context, n int) bool { return true }, func(ctx context.Context, ids []string) bool { return true }, events.NewBus(zap.NewNop()), zap.NewNop())
}

func TestNewAppliesDefaults(t *testing.T) {
	a := newTestAutoscaler(Policy{})
	assert.Equal(t, 1, a.policy.MinNodes)
	assert.Equal(t, 10, a.policy.MaxNodes)
	assert.Equal(t, defaultScaleUpThreshold, a.policy.ScaleUpThreshold)
	assert.Equal(t, defaultScaleDownThreshold, a.policy.ScaleDownThreshold)
	assert.Equal(t, defaultScaleUpCooldown, a.policy.ScaleUpCooldown)
	assert.Equal(t, defaultScaleDownCooldown, a.policy.ScaleDownCooldown)
	assert.Equal(t, defaultWindowSize, a.policy.WindowSize)
}

func TestEvaluateScalesUpWhenCPUExceedsThreshold(t *testing.T) {
	a := newTestAutoscaler(Policy{MinNodes: 1, MaxNodes: 5, ScaleUpThreshold: 80, ScaleDownThreshold: 20})
	a.recordSample(NodeMetrics{NodeID: "n1", CPUPercent: 95, MemoryPercent: 50})

	assert.Equal(t, ScaleUp, a.Evaluate(2))
}

func TestEvaluateScalesUpWhenPendingMissionsExceedNodes(t *testing.T) {
	a := newTestAutoscaler(Policy{MinNodes: 1, MaxNodes: 5})
	a.recordSample(NodeMetrics{NodeID: "n1", CPUPercent: 10, MemoryPercent: 10, PendingMissions: 10})

	assert.Equal(t, ScaleUp, a.Evaluate(2))
}

func TestEvaluateDoesNotScaleUpBeyondMaxNodes(t *testing.T) {
	a := newTestAutoscaler(Policy{MinNodes: 1, MaxNodes: 2})
	a.recordSample(NodeMetrics{NodeID: "n1", CPUPercent: 95, MemoryPercent: 95})

	assert.Equal(t, NoAction, a.Evaluate(2))
}

func TestEvaluateScalesDownWhenUnderThreshold(t *testing.T) {
	a := newTestAutoscaler(Policy{MinNodes: 1, MaxNodes: 5, ScaleUpThreshold: 80, ScaleDownThreshold: 50})
	a.recordSample(NodeMetrics{NodeID: "n1", CPUPercent: 5, MemoryPercent: 5, ActiveMissions: 0, PendingMissions: 0})

	assert.Equal(t, ScaleDown, a.Evaluate(3))
}

func TestEvaluateDoesNotScaleDownBelowMinNodes(t *testing.T) {
	a := newTestAutoscaler(Policy{MinNodes: 2, MaxNodes: 5})
	a.recordSample(NodeMetrics{NodeID: "n1", CPUPercent: 5, MemoryPercent: 5})

	assert.Equal(t, NoAction, a.Evaluate(2))
}

func TestEvaluateRespectsScaleUpCooldown(t *testing.T) {
	a := newTestAutoscaler(Policy{MinNodes: 1, MaxNodes: 5, ScaleUpCooldown: time.Hour})
	a.recordSample(NodeMetrics{NodeID: "n1", CPUPercent: 95, MemoryPercent: 95})
	a.CheckAndScale(context.Background(), 2)

	stats := a.Statistics()
	require.Equal(t, 1, stats.ScaleUps)

	// Immediately re-evaluating should not scale up again within cooldown.
	a.recordSample(NodeMetrics{NodeID: "n1", CPUPercent: 95, MemoryPercent: 95})
	assert.Equal(t, NoAction, a.Evaluate(2))
}

func TestDoScaleUpFailureDoesNotRecordHistory(t *testing.T) {
	a := New(Policy{MinNodes: 1, MaxNodes: 5}, time.Minute,
		func(ctx context.Context) []NodeMetrics { return nil },
		func(ctx context.Context, n int) bool { return false },
		func(ctx context.Context, ids []string) bool { return true },
		events.NewBus(zap.NewNop()), zap.NewNop())

	a.doScaleUp(context.Background(), 2)
	assert.Empty(t, a.History(0))
}

func TestHistoryReturnsMostRecentEventsLast(t *testing.T) {
	a := newTestAutoscaler(Policy{MinNodes: 1, MaxNodes: 5})
	a.recordSample(NodeMetrics{NodeID: "n1", CPUPercent: 95, MemoryPercent: 95})
	a.CheckAndScale(context.Background(), 1)

	history := a.History(10)
	require.Len(t, history, 1)
	assert.Equal(t, ScaleUp, history[0].Action)
}
