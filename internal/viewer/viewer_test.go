package viewer

import (
	"context"
	"testing"
	"time"

	"github.com/falconmind/clustercenter/internal/ingest"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewAppliesDefaultsForZeroValues(t *testing.T) {
	b := New(zap.NewNop(), 0, 0, 0)
	assert.Equal(t, defaultMaxConnections, b.maxConnections)
	assert.Equal(t, defaultMaxQueueSize, b.maxQueueSize)
	assert.Equal(t, defaultHeartbeatPeriod, b.heartbeatInterval)
}

func TestNewHonorsExplicitValues(t *testing.T) {
	b := New(zap.NewNop(), 5, 10, time.Second)
	assert.Equal(t, 5, b.maxConnections)
	assert.Equal(t, 10, b.maxQueueSize)
	assert.Equal(t, time.Second, b.heartbeatInterval)
}

func TestConnectionCountStartsAtZero(t *testing.T) {
	b := New(zap.NewNop(), 5, 10, time.Second)
	assert.Equal(t, 0, b.ConnectionCount())
}

func TestBroadcastEnqueuesWithoutBlocking(t *testing.T) {
	b := New(zap.NewNop(), 5, 10, time.Second)
	b.Broadcast(context.Background(), "uav-1", ingest.Telemetry{UAVID: "uav-1", Lat: 1, Lon: 1, Timestamp: time.Now()})
	assert.Equal(t, uint64(0), b.DroppedCount())
	assert.Len(t, b.queue, 1)
}

func TestEnqueueDropsAndCountsWhenQueueFull(t *testing.T) {
	b := New(zap.NewNop(), 5, 2, time.Second)

	b.BroadcastMissionEvent("mission.created", map[string]string{"id": "1"})
	b.BroadcastMissionEvent("mission.created", map[string]string{"id": "2"})
	assert.Equal(t, uint64(0), b.DroppedCount())

	// The queue (capacity 2) is now full; further enqueues must be dropped
	// rather than block, and the drop counter must reflect every drop.
	b.BroadcastMissionEvent("mission.created", map[string]string{"id": "3"})
	b.BroadcastMissionEvent("mission.created", map[string]string{"id": "4"})
	assert.Equal(t, uint64(2), b.DroppedCount())
	assert.Equal(t, 0, b.ConnectionCount(), "dropping must never disconnect a subscriber")
}

func TestBroadcastMissionEventMarshalFailureDoesNotEnqueue(t *testing.T) {
	b := New(zap.NewNop(), 5, 10, time.Second)
	// A channel value can't be marshaled to JSON.
	b.BroadcastMissionEvent("bad", make(chan int))
	assert.Len(t, b.queue, 0)
	assert.Equal(t, uint64(0), b.DroppedCount())
}
