// Package coordinator implements C7: tracks per-sub-mission UavMissionState,
// detects mid-flight conflicts between RUNNING UAVs in the same cluster
// mission, replans around them, reassigns work off a failed UAV, and
// aggregates cluster mission progress.
package coordinator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/internal/fleet"
	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/falconmind/clustercenter/pkg/geo"
	"github.com/falconmind/clustercenter/pkg/models"
	"go.uber.org/zap"
)

const (
	minSeparationM   = 50.0
	avoidanceWindow  = 5 * time.Second
	conflictWindow   = 10 * time.Second
)

// Conflict describes a detected collision risk between two UAVs.
type Conflict struct {
	UAVA, UAVB string
	DistanceM  float64
	Severity   float64
	DetectedAt time.Time
}

// Coordinator tracks active sub-mission state and derives conflicts,
// reassignments, and load-balance suggestions from it.
type Coordinator struct {
	fleet  *fleet.Inventory
	bus    *events.Bus
	logger *zap.Logger
	nodeID string

	mu     sync.Mutex
	states map[string]*models.UavMissionState // uavID -> state
}

// New creates a Coordinator.
func New(fl *fleet.Inventory, bus *events.Bus, logger *zap.Logger, nodeID string) *Coordinator {
	return &Coordinator{
		fleet:  fl,
		bus:    bus,
		logger: logger,
		nodeID: nodeID,
		states: make(map[string]*models.UavMissionState),
	}
}

// Track registers (or resets) the tracking record for a dispatched
// sub-mission.
func (c *Coordinator) Track(state *models.UavMissionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[state.UAVID] = state
}

// Untrack removes a sub-mission's tracking record once it's no longer
// active.
func (c *Coordinator) Untrack(uavID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, uavID)
}

// UpdateState applies a progress/position update for uavID and runs
// conflict detection against every other RUNNING UAV in the same
// cluster mission.
func (c *Coordinator) UpdateState(ctx context.Context, uavID string, position models.GeoPoint, progress float64, status models.UavMissionStateStatus, battery float64) []Conflict {
	c.mu.Lock()
	state, ok := c.states[uavID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	state.CurrentPosition = position
	state.Progress = progress
	state.Status = status
	state.BatteryPercent = battery
	state.LastUpdate = time.Now()

	var others []*models.UavMissionState
	if status == models.UMSRunning {
		for id, other := range c.states {
			if id == uavID || other.ClusterMissionID != state.ClusterMissionID || other.Status != models.UMSRunning {
				continue
			}
			others = append(others, other)
		}
	}
	clusterState := *state
	c.mu.Unlock()

	var conflicts []Conflict
	for _, other := range others {
		dist := geo.HaversineMeters(
			geo.Point{Lat: clusterState.CurrentPosition.Lat, Lon: clusterState.CurrentPosition.Lon},
			geo.Point{Lat: other.CurrentPosition.Lat, Lon: other.CurrentPosition.Lon},
		)
		if dist < minSeparationM {
			deltaT := clusterState.LastUpdate.Sub(other.LastUpdate)
			severity := 1 - math.Min(math.Abs(deltaT.Seconds())/conflictWindow.Seconds(), 1)
			conflict := Conflict{UAVA: uavID, UAVB: other.UAVID, DistanceM: dist, Severity: severity, DetectedAt: time.Now()}
			conflicts = append(conflicts, conflict)
			c.publish(ctx, events.EventCoordCollisionRisk, map[string]interface{}{
				"uav_a": conflict.UAVA, "uav_b": conflict.UAVB,
				"distance_m": conflict.DistanceM, "severity": conflict.Severity,
			})
		}
	}
	return conflicts
}

// UpdatePosition applies a telemetry-only position/battery update for a
// tracked uavID, carrying forward its last-known progress and status, and
// runs the same conflict detection as UpdateState. Untracked UAVs (no
// in-flight sub-mission) are a no-op, matching UpdateState.
func (c *Coordinator) UpdatePosition(ctx context.Context, uavID string, position models.GeoPoint, battery float64) []Conflict {
	c.mu.Lock()
	state, ok := c.states[uavID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	progress, status := state.Progress, state.Status
	c.mu.Unlock()

	return c.UpdateState(ctx, uavID, position, progress, status, battery)
}

// Waypoint is a single point in a planned path.
type Waypoint struct {
	Position models.GeoPoint
	At       time.Time
}

// Replan keeps waypoints up to the conflict time, then offsets every
// subsequent waypoint laterally by 1.5x the minimum separation (§4.5).
func Replan(path []Waypoint, conflictTime time.Time) []Waypoint {
	out := make([]Waypoint, len(path))
	offsetM := 1.5 * minSeparationM
	for i, wp := range path {
		if !wp.At.After(conflictTime) {
			out[i] = wp
			continue
		}
		offset := geo.OffsetLateral(geo.Point{Lat: wp.Position.Lat, Lon: wp.Position.Lon, Alt: wp.Position.Alt}, offsetM)
		out[i] = Waypoint{Position: models.GeoPoint{Lat: offset.Lat, Lon: offset.Lon, Alt: offset.Alt}, At: wp.At}
	}
	return out
}

// Velocity is a planar velocity vector in meters/second (lat/lon deltas
// per second, already converted to meters).
type Velocity struct {
	VEastMPS, VNorthMPS float64
}

// PredictPosition projects forward assuming constant velocity over dt.
func PredictPosition(p models.GeoPoint, v Velocity, dt time.Duration) models.GeoPoint {
	seconds := dt.Seconds()
	dLat := (v.VNorthMPS * seconds) / geo.MetersPerDegreeLat
	dLon := (v.VEastMPS * seconds) / (geo.MetersPerDegreeLat * math.Cos(p.Lat*math.Pi/180))
	return models.GeoPoint{Lat: p.Lat + dLat, Lon: p.Lon + dLon, Alt: p.Alt}
}

// AvoidObstacle predicts position at t+5s and, if within 2x
// avoidanceRadius of obstacle's predicted position, returns an avoidance
// waypoint on the line from the obstacle through the current position,
// at distance 2x avoidanceRadius (§4.5).
func AvoidObstacle(current models.GeoPoint, velocity Velocity, obstacle models.GeoPoint, obstacleVelocity Velocity, avoidanceRadiusM float64) (models.GeoPoint, bool) {
	predictedSelf := PredictPosition(current, velocity, avoidanceWindow)
	predictedObstacle := PredictPosition(obstacle, obstacleVelocity, avoidanceWindow)

	dist := geo.HaversineMeters(
		geo.Point{Lat: predictedSelf.Lat, Lon: predictedSelf.Lon},
		geo.Point{Lat: predictedObstacle.Lat, Lon: predictedObstacle.Lon},
	)
	threshold := 2 * avoidanceRadiusM
	if dist >= threshold {
		return models.GeoPoint{}, false
	}

	through := geo.Point{Lat: predictedObstacle.Lat, Lon: predictedObstacle.Lon}
	from := geo.Point{Lat: current.Lat, Lon: current.Lon}
	avoid := geo.PointOnLine(through, from, threshold)
	return models.GeoPoint{Lat: avoid.Lat, Lon: avoid.Lon, Alt: current.Alt}, true
}

// Candidate is a UAV eligible for reassignment, with its current
// workload and distance to the mission center already resolved.
type Candidate struct {
	UAVID           string
	BatteryRatio    float64
	Workload        float64
	DistanceToCenterKM float64
}

// Reassign picks the maximiser of
// 0.4*battery + 0.4*(1-workload) + 0.2*proximity, proximity = 1/(1+km),
// excluding the failed UAV (§4.5).
func Reassign(candidates []Candidate, failedUAVID string) (string, bool) {
	var best string
	bestScore := -1.0
	found := false
	for _, c := range candidates {
		if c.UAVID == failedUAVID {
			continue
		}
		proximity := 1.0 / (1.0 + c.DistanceToCenterKM)
		score := 0.4*c.BatteryRatio + 0.4*(1-c.Workload) + 0.2*proximity
		if score > bestScore {
			bestScore, best, found = score, c.UAVID, true
		}
	}
	return best, found
}

// HandleUAVFailure reassigns every RUNNING sub-mission bound to failedUAV
// among the remaining candidates, emitting `reassigned` for each move.
func (c *Coordinator) HandleUAVFailure(ctx context.Context, failedUAV string, candidates []Candidate) {
	c.mu.Lock()
	failing := make([]*models.UavMissionState, 0)
	for uavID, state := range c.states {
		if uavID == failedUAV && state.Status == models.UMSRunning {
			failing = append(failing, state)
		}
	}
	c.mu.Unlock()

	for _, state := range failing {
		newUAV, ok := Reassign(candidates, failedUAV)
		if !ok {
			c.logger.Warn("no candidate available for reassignment", zap.String("mission_id", state.MissionID))
			continue
		}
		c.mu.Lock()
		state.UAVID = newUAV
		c.states[newUAV] = state
		delete(c.states, failedUAV)
		c.mu.Unlock()

		if err := c.fleet.AssignMission(ctx, newUAV, state.MissionID); err != nil {
			c.logger.Error("failed to bind reassigned uav", zap.Error(err))
		}
		c.publish(ctx, events.EventCoordReassigned, map[string]interface{}{
			"mission_id": state.MissionID, "from_uav": failedUAV, "to_uav": newUAV,
		})
	}
}

// LoadSuggestion is a non-binding recommendation to move one mission.
type LoadSuggestion struct {
	FromUAV, ToUAV string
	MissionID      string
}

// LoadBalance computes per-UAV load (min(active/5,0.5) + 0.5*workload)
// and suggests moving one mission from the max-load UAV to the min-load
// UAV when the spread exceeds 0.2. Never applied automatically (§4.5).
func LoadBalance(loads map[string]struct {
	ActiveMissions int
	Workload       float64
	SampleMission  string
}) (LoadSuggestion, bool) {
	if len(loads) < 2 {
		return LoadSuggestion{}, false
	}
	var maxUAV, minUAV string
	maxLoad, minLoad := -1.0, math.Inf(1)
	for uavID, l := range loads {
		load := math.Min(float64(l.ActiveMissions)/5.0, 0.5) + 0.5*l.Workload
		if load > maxLoad {
			maxLoad, maxUAV = load, uavID
		}
		if load < minLoad {
			minLoad, minUAV = load, uavID
		}
	}
	if maxLoad-minLoad <= 0.2 {
		return LoadSuggestion{}, false
	}
	return LoadSuggestion{FromUAV: maxUAV, ToUAV: minUAV, MissionID: loads[maxUAV].SampleMission}, true
}

// ClusterProgress summarizes a cluster mission's aggregate state.
type ClusterProgress struct {
	TotalProgress    float64
	CompletedCount   int
	RunningCount     int
	FailedCount      int
}

// AggregateClusterProgress computes mean sub-progress and status counts
// across a cluster mission's tracked sub-missions.
func (c *Coordinator) AggregateClusterProgress(clusterMissionID string) ClusterProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	var progress ClusterProgress
	var sum float64
	var n int
	for _, state := range c.states {
		if state.ClusterMissionID != clusterMissionID {
			continue
		}
		sum += state.Progress
		n++
		switch state.Status {
		case models.UMSCompleted:
			progress.CompletedCount++
		case models.UMSRunning:
			progress.RunningCount++
		case models.UMSFailed:
			progress.FailedCount++
		}
	}
	if n > 0 {
		progress.TotalProgress = sum / float64(n)
	}
	return progress
}

func (c *Coordinator) publish(ctx context.Context, eventType events.EventType, payload map[string]interface{}) {
	evt := events.NewEvent(eventType, c.nodeID, payload)
	if err := c.bus.Publish(ctx, evt); err != nil {
		c.logger.Error("failed to publish coordination event", zap.Error(err))
	}
}
