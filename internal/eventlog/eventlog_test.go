package eventlog

import (
	"context"
	"testing"

	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecorderRetainsEventsInMostRecentFirstOrder(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	r := NewRecorder(bus, 3)

	require.NoError(t, bus.PublishAndWait(context.Background(), events.NewEvent(events.EventMissionCreated, "n1", map[string]interface{}{"mission_id": "m1"})))
	require.NoError(t, bus.PublishAndWait(context.Background(), events.NewEvent(events.EventMissionDispatched, "n1", map[string]interface{}{"mission_id": "m1"})))

	recent := r.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, events.EventMissionDispatched, recent[0].Type)
	assert.Equal(t, events.EventMissionCreated, recent[1].Type)
}

func TestRecorderRingDropsOldestBeyondCapacity(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	r := NewRecorder(bus, 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.PublishAndWait(context.Background(), events.NewEvent(events.EventUAVRegistered, "n1", map[string]interface{}{"i": i})))
	}

	recent := r.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].Payload["i"])
	assert.Equal(t, 1, recent[1].Payload["i"])
}

func TestRecorderRecentHonorsLimit(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	r := NewRecorder(bus, 10)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.PublishAndWait(context.Background(), events.NewEvent(events.EventUAVRegistered, "n1", nil)))
	}

	assert.Len(t, r.Recent(2), 2)
	assert.Len(t, r.Recent(0), 5)
}

type fakeSink struct {
	calls []string
}

func (f *fakeSink) BroadcastMissionEvent(eventType string, payload interface{}) {
	f.calls = append(f.calls, eventType)
}

func TestForwardToViewerReshapesMissionEvents(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	sink := &fakeSink{}
	ForwardToViewer(bus, sink)

	require.NoError(t, bus.PublishAndWait(context.Background(), events.NewEvent(events.EventMissionCreated, "n1", map[string]interface{}{"mission_id": "m1"})))
	require.NoError(t, bus.PublishAndWait(context.Background(), events.NewEvent(events.EventUAVRegistered, "n1", map[string]interface{}{"uav_id": "u1"})))
	require.NoError(t, bus.PublishAndWait(context.Background(), events.NewEvent(events.EventClusterMissionCreated, "n1", map[string]interface{}{"cluster_id": "c1"})))

	assert.ElementsMatch(t, []string{"mission_event", "uav_registered", "cluster_mission_created"}, sink.calls)
}
