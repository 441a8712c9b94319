package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCoordinator() *Coordinator {
	return New(nil, events.NewBus(zap.NewNop()), zap.NewNop(), "node-1")
}

func TestTrackUntrack(t *testing.T) {
	c := newTestCoordinator()
	state := &models.UavMissionState{UAVID: "uav-1", MissionID: "m-1", Status: models.UMSRunning}
	c.Track(state)

	progress := c.AggregateClusterProgress("")
	assert.Equal(t, 1, progress.RunningCount)

	c.Untrack("uav-1")
	progress = c.AggregateClusterProgress("")
	assert.Equal(t, 0, progress.RunningCount)
}

func TestUpdateStateUnknownUAVReturnsNil(t *testing.T) {
	c := newTestCoordinator()
	conflicts := c.UpdateState(context.Background(), "missing", models.GeoPoint{}, 0.5, models.UMSRunning, 80)
	assert.Nil(t, conflicts)
}

func TestUpdateStateDetectsCollisionRisk(t *testing.T) {
	c := newTestCoordinator()
	c.Track(&models.UavMissionState{UAVID: "uav-a", ClusterMissionID: "cluster-1", Status: models.UMSRunning, CurrentPosition: models.GeoPoint{Lat: 10, Lon: 10}, LastUpdate: time.Now()})
	c.Track(&models.UavMissionState{UAVID: "uav-b", ClusterMissionID: "cluster-1", Status: models.UMSRunning, CurrentPosition: models.GeoPoint{Lat: 10, Lon: 10}, LastUpdate: time.Now()})

	conflicts := c.UpdateState(context.Background(), "uav-a", models.GeoPoint{Lat: 10, Lon: 10}, 0.2, models.UMSRunning, 80)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "uav-a", conflicts[0].UAVA)
	assert.Equal(t, "uav-b", conflicts[0].UAVB)
	assert.InDelta(t, 0.0, conflicts[0].DistanceM, 1e-6)
}

func TestUpdateStateNoConflictWhenFarApart(t *testing.T) {
	c := newTestCoordinator()
	c.Track(&models.UavMissionState{UAVID: "uav-a", ClusterMissionID: "cluster-1", Status: models.UMSRunning, CurrentPosition: models.GeoPoint{Lat: 0, Lon: 0}, LastUpdate: time.Now()})
	c.Track(&models.UavMissionState{UAVID: "uav-b", ClusterMissionID: "cluster-1", Status: models.UMSRunning, CurrentPosition: models.GeoPoint{Lat: 10, Lon: 10}, LastUpdate: time.Now()})

	conflicts := c.UpdateState(context.Background(), "uav-a", models.GeoPoint{Lat: 0, Lon: 0}, 0.2, models.UMSRunning, 80)
	assert.Empty(t, conflicts)
}

func TestUpdateStateIgnoresDifferentClusterMissions(t *testing.T) {
	c := newTestCoordinator()
	c.Track(&models.UavMissionState{UAVID: "uav-a", ClusterMissionID: "cluster-1", Status: models.UMSRunning, CurrentPosition: models.GeoPoint{Lat: 10, Lon: 10}, LastUpdate: time.Now()})
	c.Track(&models.UavMissionState{UAVID: "uav-b", ClusterMissionID: "cluster-2", Status: models.UMSRunning, CurrentPosition: models.GeoPoint{Lat: 10, Lon: 10}, LastUpdate: time.Now()})

	conflicts := c.UpdateState(context.Background(), "uav-a", models.GeoPoint{Lat: 10, Lon: 10}, 0.2, models.UMSRunning, 80)
	assert.Empty(t, conflicts)
}

func TestReplanKeepsEarlyWaypointsAndOffsetsLater(t *testing.T) {
	now := time.Now()
	path := []Waypoint{
		{Position: models.GeoPoint{Lat: 1, Lon: 1}, At: now},
		{Position: models.GeoPoint{Lat: 2, Lon: 2}, At: now.Add(time.Minute)},
	}
	conflictTime := now.Add(30 * time.Second)

	out := Replan(path, conflictTime)
	require.Len(t, out, 2)
	assert.Equal(t, path[0], out[0])
	assert.NotEqual(t, path[1].Position, out[1].Position)
	assert.Equal(t, path[1].At, out[1].At)
}

func TestPredictPositionMovesNorthEast(t *testing.T) {
	start := models.GeoPoint{Lat: 0, Lon: 0}
	v := Velocity{VNorthMPS: 10, VEastMPS: 10}
	got := PredictPosition(start, v, 10*time.Second)
	assert.Greater(t, got.Lat, start.Lat)
	assert.Greater(t, got.Lon, start.Lon)
}

func TestAvoidObstacleTriggersWhenClose(t *testing.T) {
	current := models.GeoPoint{Lat: 0, Lon: 0}
	obstacle := models.GeoPoint{Lat: 0.0001, Lon: 0.0001}
	_, triggered := AvoidObstacle(current, Velocity{}, obstacle, Velocity{}, 50)
	assert.True(t, triggered)
}

func TestAvoidObstacleDoesNotTriggerWhenFar(t *testing.T) {
	current := models.GeoPoint{Lat: 0, Lon: 0}
	obstacle := models.GeoPoint{Lat: 10, Lon: 10}
	_, triggered := AvoidObstacle(current, Velocity{}, obstacle, Velocity{}, 50)
	assert.False(t, triggered)
}

func TestReassignExcludesFailedUAVAndMaximizesScore(t *testing.T) {
	candidates := []Candidate{
		{UAVID: "failed", BatteryRatio: 1.0, Workload: 0, DistanceToCenterKM: 0},
		{UAVID: "weak", BatteryRatio: 0.1, Workload: 0.9, DistanceToCenterKM: 50},
		{UAVID: "strong", BatteryRatio: 0.9, Workload: 0.1, DistanceToCenterKM: 1},
	}
	best, ok := Reassign(candidates, "failed")
	require.True(t, ok)
	assert.Equal(t, "strong", best)
}

func TestReassignNoCandidatesLeft(t *testing.T) {
	candidates := []Candidate{{UAVID: "failed"}}
	_, ok := Reassign(candidates, "failed")
	assert.False(t, ok)
}

func TestLoadBalanceSuggestsWhenSpreadExceedsThreshold(t *testing.T) {
	loads := map[string]struct {
		ActiveMissions int
		Workload       float64
		SampleMission  string
	}{
		"busy":  {ActiveMissions: 5, Workload: 0.9, SampleMission: "m-1"},
		"quiet": {ActiveMissions: 0, Workload: 0.0, SampleMission: "m-2"},
	}
	suggestion, ok := LoadBalance(loads)
	require.True(t, ok)
	assert.Equal(t, "busy", suggestion.FromUAV)
	assert.Equal(t, "quiet", suggestion.ToUAV)
	assert.Equal(t, "m-1", suggestion.MissionID)
}

func TestLoadBalanceNoSuggestionWhenBalanced(t *testing.T) {
	loads := map[string]struct {
		ActiveMissions int
		Workload       float64
		SampleMission  string
	}{
		"a": {ActiveMissions: 1, Workload: 0.2, SampleMission: "m-1"},
		"b": {ActiveMissions: 1, Workload: 0.25, SampleMission: "m-2"},
	}
	_, ok := LoadBalance(loads)
	assert.False(t, ok)
}

func TestLoadBalanceRequiresAtLeastTwoUAVs(t *testing.T) {
	loads := map[string]struct {
		ActiveMissions int
		Workload       float64
		SampleMission  string
	}{
		"a": {ActiveMissions: 5, Workload: 0.9, SampleMission: "m-1"},
	}
	_, ok := LoadBalance(loads)
	assert.False(t, ok)
}

func TestAggregateClusterProgressComputesMeanAndCounts(t *testing.T) {
	c := newTestCoordinator()
	c.Track(&models.UavMissionState{UAVID: "a", ClusterMissionID: "cluster-1", Progress: 1.0, Status: models.UMSCompleted})
	c.Track(&models.UavMissionState{UAVID: "b", ClusterMissionID: "cluster-1", Progress: 0.5, Status: models.UMSRunning})
	c.Track(&models.UavMissionState{UAVID: "c", ClusterMissionID: "cluster-1", Progress: 0.0, Status: models.UMSFailed})
	c.Track(&models.UavMissionState{UAVID: "d", ClusterMissionID: "other-cluster", Progress: 0.9, Status: models.UMSRunning})

	progress := c.AggregateClusterProgress("cluster-1")
	assert.InDelta(t, 0.5, progress.TotalProgress, 1e-9)
	assert.Equal(t, 1, progress.CompletedCount)
	assert.Equal(t, 1, progress.RunningCount)
	assert.Equal(t, 1, progress.FailedCount)
}
