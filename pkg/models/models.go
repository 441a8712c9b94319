// Package models holds the core data model shared by every component:
// UAV, Mission, ClusterMission, Area/SubArea, UavMissionState, LogEntry,
// Snapshot, SyncOperation, and Metric. The repository (C2) owns persisted
// state; in-memory caches elsewhere are derived views rebuildable from it.
package models

import "time"

// UAVStatus is the lifecycle status of a fleet UAV.
type UAVStatus string

const (
	UAVOnline  UAVStatus = "ONLINE"
	UAVOffline UAVStatus = "OFFLINE"
	UAVBusy    UAVStatus = "BUSY"
	UAVIdle    UAVStatus = "IDLE"
	UAVError   UAVStatus = "ERROR"
)

// Capabilities describes what a UAV can physically do.
type Capabilities struct {
	MaxAltitudeM    float64
	MaxSpeedMPS     float64
	BatteryCapacity float64
	CurrentBattery  float64
	MaxPayloadKG    float64
}

// BatteryRatio is CurrentBattery / BatteryCapacity, clamped to [0, 1].
func (c Capabilities) BatteryRatio() float64 {
	if c.BatteryCapacity <= 0 {
		return 0
	}
	r := c.CurrentBattery / c.BatteryCapacity
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// UAV is a single controllable flying platform in the fleet.
// Invariant: CurrentMission == "" iff Status in {ONLINE, IDLE};
// Status == BUSY implies CurrentMission != "".
type UAV struct {
	ID              string
	Status          UAVStatus
	LastHeartbeat   time.Time
	CurrentMission  string
	Capabilities    Capabilities
	Metadata        map[string]string
	Lat, Lon, AltM  float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MissionType classifies how many UAVs a mission spans.
type MissionType string

const (
	MissionSingleUAV MissionType = "SINGLE_UAV"
	MissionMultiUAV  MissionType = "MULTI_UAV"
	MissionCluster   MissionType = "CLUSTER"
)

// MissionState is a node in the mission lifecycle state machine (§4.2).
type MissionState string

const (
	MissionPending   MissionState = "PENDING"
	MissionRunning   MissionState = "RUNNING"
	MissionPaused    MissionState = "PAUSED"
	MissionSucceeded MissionState = "SUCCEEDED"
	MissionFailed    MissionState = "FAILED"
	MissionCancelled MissionState = "CANCELLED"
)

// Terminal reports whether a mission state is absorbing.
func (s MissionState) Terminal() bool {
	switch s {
	case MissionSucceeded, MissionFailed, MissionCancelled:
		return true
	default:
		return false
	}
}

// DispatchPolicy controls admission behaviour when fewer UAVs are available
// than requested for a MULTI_UAV/CLUSTER mission (§4.2 "Admission at
// dispatch").
type DispatchPolicy string

const (
	DispatchFailOnShortfall     DispatchPolicy = "FAIL"
	DispatchDowngradeOnShortfall DispatchPolicy = "DOWNGRADE"
)

// Mission is a unit of work assigned to one or more UAVs.
type Mission struct {
	ID             string
	Name           string
	Description    string
	Type           MissionType
	AssignedUAVs   []string
	Payload        map[string]any
	Priority       int
	State          MissionState
	Progress       float64
	RequestedUAVs  int
	DispatchPolicy DispatchPolicy
	PreferredUAV   string // caller-supplied UAV for SINGLE_UAV
	RetryCount     int    // failed dispatch/completion attempts so far (§4.14)
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Area is a polygon with an altitude band — at least 3 vertices.
type Area struct {
	Vertices []GeoPoint
	MinAltM  float64
	MaxAltM  float64
}

// GeoPoint is a lat/lon/alt triple; kept distinct from pkg/geo.Point so the
// data model has no dependency on the geometry package's internals (only
// component code converts between the two at the boundary).
type GeoPoint struct {
	Lat float64
	Lon float64
	Alt float64
}

// SubArea is a fragment of an Area produced by the splitter for one UAV.
type SubArea struct {
	UAVID  string
	Area   Area
}

// ClusterMission is a mission split into per-UAV sub-missions sharing a
// parent polygon.
type ClusterMission struct {
	ID           string
	Name         string
	MissionType  string // e.g. SEARCH_RESCUE, AGRI_SPRAYING
	Polygon      Area
	SubMissions  []string // ordered sub-mission ids
	Assignments  map[string]SubArea // sub-mission id -> (UAV, sub-area)
	CreatedAt    time.Time
}

// UavMissionStateStatus mirrors the coordinator's per-sub-mission status.
type UavMissionStateStatus string

const (
	UMSPending   UavMissionStateStatus = "PENDING"
	UMSRunning   UavMissionStateStatus = "RUNNING"
	UMSPaused    UavMissionStateStatus = "PAUSED"
	UMSCompleted UavMissionStateStatus = "COMPLETED"
	UMSFailed    UavMissionStateStatus = "FAILED"
)

// UavMissionState is the coordinator's per-sub-mission tracking record.
type UavMissionState struct {
	UAVID              string
	MissionID          string
	ClusterMissionID   string
	AssignedArea       Area
	CurrentPosition    GeoPoint
	CurrentWaypointIdx int
	Progress           float64
	Status             UavMissionStateStatus
	BatteryPercent     float64
	LastUpdate         time.Time
}

// LogEntry is a single replicated Raft log entry.
type LogEntry struct {
	Term      uint64
	Index     uint64
	Command   []byte
	Timestamp time.Time
}

// Snapshot is a state-machine checkpoint replacing a log prefix.
type Snapshot struct {
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	State             []byte
	Timestamp         time.Time
}

// SyncOperationKind enumerates the mutation kinds a SyncOperation carries.
type SyncOperationKind string

const (
	SyncCreate SyncOperationKind = "create"
	SyncUpdate SyncOperationKind = "update"
	SyncDelete SyncOperationKind = "delete"
)

// SyncEntityKind enumerates the entity families replicated by the data
// sync layer.
type SyncEntityKind string

const (
	SyncEntityMission SyncEntityKind = "mission"
	SyncEntityUAV     SyncEntityKind = "uav"
	SyncEntityCluster SyncEntityKind = "cluster"
)

// SyncOperation is a versioned replicated mutation over missions, UAVs, or
// clusters. Version is a per-entity monotonically increasing counter used
// for last-writer-wins conflict resolution.
type SyncOperation struct {
	Kind         SyncOperationKind
	EntityKind   SyncEntityKind
	EntityID     string
	Payload      []byte
	Timestamp    time.Time
	Version      uint64
	OriginNodeID string
}

// MetricKind enumerates the supported metric shapes.
type MetricKind string

const (
	MetricCounter   MetricKind = "counter"
	MetricGauge     MetricKind = "gauge"
	MetricHistogram MetricKind = "histogram"
	MetricSummary   MetricKind = "summary"
)

// Metric is a single observation in the rolling metric store (C15).
type Metric struct {
	Name      string
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
	Kind      MetricKind
}
