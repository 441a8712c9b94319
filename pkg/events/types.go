package events

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// EventType represents the type of event being published across the fleet
// control plane: fleet/mission lifecycle, coordination, and consensus.
type EventType string

const (
	// Fleet events (C3)
	EventUAVRegistered EventType = "uav_registered"
	EventUAVOffline    EventType = "uav.offline"
	EventUAVOnline     EventType = "uav.online"

	// Mission events (C4) — sub-kinds of the viewer's mission_event.
	EventMissionCreated    EventType = "mission.created"
	EventMissionDispatched EventType = "mission.dispatched"
	EventMissionPaused     EventType = "mission.paused"
	EventMissionResumed    EventType = "mission.resumed"
	EventMissionCancelled  EventType = "mission.cancelled"
	EventMissionDeleted    EventType = "mission.deleted"
	EventMissionSucceeded  EventType = "mission.succeeded"
	EventMissionFailed     EventType = "mission.failed"

	// Cluster mission events (C5/C7)
	EventClusterMissionCreated EventType = "cluster_mission_created"

	// Coordination events (C7), named exactly as in the source.
	EventCoordMissionStarted  EventType = "MISSION_STARTED"
	EventCoordMissionPaused   EventType = "MISSION_PAUSED"
	EventCoordMissionResumed  EventType = "MISSION_RESUMED"
	EventCoordMissionComplete EventType = "MISSION_COMPLETED"
	EventCoordMissionFailed   EventType = "MISSION_FAILED"
	EventCoordAreaCovered     EventType = "AREA_COVERED"
	EventCoordTargetFound     EventType = "TARGET_FOUND"
	EventCoordLowBattery      EventType = "LOW_BATTERY"
	EventCoordCollisionRisk   EventType = "COLLISION_RISK"
	EventCoordPathConflict    EventType = "PATH_CONFLICT"
	EventCoordReassigned      EventType = "reassigned"

	// Alerting events (C15)
	EventAlertTriggered EventType = "alert.triggered"
	EventAlertResolved  EventType = "alert.resolved"

	// Consensus events (C8)
	EventConsensusLeaderElected EventType = "consensus.leader_elected"
	EventConsensusTermChanged   EventType = "consensus.term_changed"

	// Cross-region sync events (C13)
	EventRegionUnhealthy EventType = "region.unhealthy"
	EventRegionRecovered EventType = "region.recovered"

	// Autoscaler events (C14)
	EventAutoscaleScaledUp   EventType = "autoscale.scaled_up"
	EventAutoscaleScaledDown EventType = "autoscale.scaled_down"
)

// Event represents a single event flowing through the bus. TenantID from
// the teacher's original shape is dropped — the fleet domain has no
// tenancy concept; NodeID identifies the originating coordinator node
// instead, which matters once events cross cluster boundaries.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	NodeID    string
	Payload   map[string]interface{}
}

// NewEvent creates a new event with the given type and payload.
func NewEvent(eventType EventType, nodeID string, payload map[string]interface{}) Event {
	return Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		Payload:   payload,
	}
}

func generateEventID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return time.Now().Format("20060102150405") + "-" + hex.EncodeToString(buf[:])
}
