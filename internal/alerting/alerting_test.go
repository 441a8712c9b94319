package alerting

import (
	"testing"
	"time"

	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRuleFires(t *testing.T) {
	gt := Rule{Comparator: GreaterThan, Threshold: 10}
	assert.True(t, gt.fires(11))
	assert.False(t, gt.fires(10))
	assert.False(t, gt.fires(9))

	lt := Rule{Comparator: LessThan, Threshold: 10}
	assert.True(t, lt.fires(9))
	assert.False(t, lt.fires(10))
}

func TestStoreLatestReturnsMostRecentSample(t *testing.T) {
	s := NewStore(time.Minute)
	now := time.Now()
	s.Record("battery", 90, now)
	s.Record("battery", 80, now.Add(time.Second))

	v, ok := s.Latest("battery", now.Add(2*time.Second))
	require.True(t, ok)
	assert.Equal(t, 80.0, v)
}

func TestStoreLatestUnknownSeriesReturnsFalse(t *testing.T) {
	s := NewStore(time.Minute)
	_, ok := s.Latest("unknown", time.Now())
	assert.False(t, ok)
}

func TestStoreEvictsSamplesOutsideRetentionWindow(t *testing.T) {
	s := NewStore(10 * time.Second)
	now := time.Now()
	s.Record("battery", 50, now)

	_, ok := s.Latest("battery", now.Add(20*time.Second))
	assert.False(t, ok)
}

func newTestEngine(rules []Rule) *Engine {
	store := NewStore(time.Minute)
	return NewEngine(store, rules, events.NewBus(zap.NewNop()), zap.NewNop(), "node-1", time.Second)
}

func TestEngineEvaluateTransitionsToActiveOnFirstTrigger(t *testing.T) {
	rules := []Rule{{Name: "low-battery", Metric: "battery", Comparator: LessThan, Threshold: 20, Severity: SeverityWarning}}
	e := newTestEngine(rules)

	now := time.Now()
	e.store.Record("battery", 15, now)
	e.evaluate(now)

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "low-battery", active[0].RuleName)
}

func TestEngineEvaluateDoesNotDuplicateAlreadyActiveAlert(t *testing.T) {
	rules := []Rule{{Name: "low-battery", Metric: "battery", Comparator: LessThan, Threshold: 20, Severity: SeverityWarning}}
	e := newTestEngine(rules)

	now := time.Now()
	e.store.Record("battery", 15, now)
	e.evaluate(now)
	e.store.Record("battery", 10, now.Add(time.Second))
	e.evaluate(now.Add(time.Second))

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 10.0, active[0].LastValue)
}

func TestEngineEvaluateResolvesOnFirstNonTriggeringObservation(t *testing.T) {
	rules := []Rule{{Name: "low-battery", Metric: "battery", Comparator: LessThan, Threshold: 20, Severity: SeverityWarning}}
	e := newTestEngine(rules)

	now := time.Now()
	e.store.Record("battery", 15, now)
	e.evaluate(now)
	require.Len(t, e.Active(), 1)

	e.store.Record("battery", 50, now.Add(time.Second))
	e.evaluate(now.Add(time.Second))
	assert.Empty(t, e.Active())
}

func TestEngineEvaluateIgnoresRuleWithNoSamples(t *testing.T) {
	rules := []Rule{{Name: "no-data", Metric: "nonexistent", Comparator: GreaterThan, Threshold: 1}}
	e := newTestEngine(rules)
	e.evaluate(time.Now())
	assert.Empty(t, e.Active())
}
