package crossregion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager() *Manager {
	return New("us-west", 0, 0, 0, 0, 0, events.NewBus(zap.NewNop()), zap.NewNop())
}

func TestNewAppliesDefaults(t *testing.T) {
	m := newTestManager()
	assert.Equal(t, defaultBatchSize, m.batchSize)
	assert.Equal(t, defaultMaxRetries, m.maxRetries)
	assert.Equal(t, defaultRetryBackoff, m.retryBackoff)
	assert.Equal(t, defaultUnhealthyWindow, m.unhealthyWindow)
	assert.Equal(t, defaultUnhealthyFailRate, m.unhealthyFailRate)
}

func TestRegionsOrderedByDescendingPriority(t *testing.T) {
	m := newTestManager()
	m.RegisterRegion(RegionConfig{RegionID: "low", Priority: 1, Enabled: true})
	m.RegisterRegion(RegionConfig{RegionID: "high", Priority: 10, Enabled: true})
	m.RegisterRegion(RegionConfig{RegionID: "disabled", Priority: 100, Enabled: false})

	regions := m.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, "high", regions[0].RegionID)
	assert.Equal(t, "low", regions[1].RegionID)
}

func TestSyncToAllRegionsEnqueuesToEveryEnabledRegion(t *testing.T) {
	m := newTestManager()
	m.RegisterRegion(RegionConfig{RegionID: "east", Endpoint: "http://east", Enabled: true})
	m.RegisterRegion(RegionConfig{RegionID: "west", Endpoint: "http://west", Enabled: true})

	m.SyncToAllRegions("mission", "m-1", json.RawMessage(`{"id":"m-1"}`), time.Now())

	status := m.Status()
	total := 0
	for _, s := range status {
		total += s.QueueDepth
	}
	assert.Equal(t, 2, total)
}

func TestSendToRegionSucceedsAgainstHTTPTestServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestManager()
	cfg := RegionConfig{RegionID: "east", Endpoint: srv.URL, Enabled: true}
	op := &SyncOperation{OperationID: "op-1", TargetRegion: "east", Data: json.RawMessage(`{}`)}

	err := m.sendToRegion(context.Background(), cfg, op)
	assert.NoError(t, err)
}

func TestSendToRegionReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newTestManager()
	cfg := RegionConfig{RegionID: "east", Endpoint: srv.URL, Enabled: true}
	op := &SyncOperation{OperationID: "op-1", TargetRegion: "east", Data: json.RawMessage(`{}`)}

	err := m.sendToRegion(context.Background(), cfg, op)
	assert.Error(t, err)
}

func TestRecordFailureMarksRegionUnhealthyPastWindowAndRate(t *testing.T) {
	m := New("us-west", 0, 0, 0, 4, 0.5, events.NewBus(zap.NewNop()), zap.NewNop())
	m.RegisterRegion(RegionConfig{RegionID: "east", Enabled: true})

	assert.True(t, m.isHealthy("east"))
	for i := 0; i < 4; i++ {
		m.recordFailure(context.Background(), "east")
	}
	assert.False(t, m.isHealthy("east"))
}

func TestRecordFailureDoesNotMarkUnhealthyBelowWindow(t *testing.T) {
	m := New("us-west", 0, 0, 0, 10, 0.5, events.NewBus(zap.NewNop()), zap.NewNop())
	m.RegisterRegion(RegionConfig{RegionID: "east", Enabled: true})

	for i := 0; i < 4; i++ {
		m.recordFailure(context.Background(), "east")
	}
	assert.True(t, m.isHealthy("east"))
}

func TestMarkHealthyResetsStatsAndHealth(t *testing.T) {
	m := New("us-west", 0, 0, 0, 2, 0.5, events.NewBus(zap.NewNop()), zap.NewNop())
	m.RegisterRegion(RegionConfig{RegionID: "east", Enabled: true})
	m.recordFailure(context.Background(), "east")
	m.recordFailure(context.Background(), "east")
	require.False(t, m.isHealthy("east"))

	m.MarkHealthy(context.Background(), "east")
	assert.True(t, m.isHealthy("east"))

	status := m.Status()
	for _, s := range status {
		if s.RegionID == "east" {
			assert.Equal(t, 0, s.TotalSyncs)
		}
	}
}

func TestRecordSuccessUpdatesAverageLatency(t *testing.T) {
	m := newTestManager()
	m.RegisterRegion(RegionConfig{RegionID: "east", Enabled: true})

	m.recordSuccess("east", 100)
	m.recordSuccess("east", 200)

	status := m.Status()
	for _, s := range status {
		if s.RegionID == "east" {
			assert.InDelta(t, 150.0, s.AvgLatencyMs, 1e-9)
			assert.Equal(t, 2, s.SuccessfulSyncs)
		}
	}
}
