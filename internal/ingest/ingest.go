// Package ingest implements C11: validating inbound UAV telemetry,
// refreshing the fleet's heartbeat, and deciding which updates are
// significant enough to broadcast to viewers.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/internal/coordinator"
	"github.com/falconmind/clustercenter/internal/fleet"
	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/falconmind/clustercenter/pkg/models"
	"go.uber.org/zap"
)

const (
	minLat, maxLat       = -90.0, 90.0
	minLon, maxLon       = -180.0, 180.0
	minAlt, maxAlt       = -1000.0, 50000.0
	maxTelemetryAge      = time.Hour
	significantLatLonDeg = 0.001
	significantAltM      = 1.0
	significantBatteryPt = 1.0
)

// Telemetry is one inbound report from a UAV.
type Telemetry struct {
	UAVID          string
	Lat, Lon, AltM float64
	BatteryPercent float64
	GPSFixType     int
	SatelliteCount int
	LinkQuality    int
	FlightMode     string
	Timestamp      time.Time
}

// lastState is the subset of a prior telemetry report needed to decide
// significance.
type lastState struct {
	lat, lon, altM float64
	batteryPercent float64
	flightMode     string
	gpsFixType     int
}

// Broadcaster is the C12 dependency: push a significant update out to
// subscribers. Kept as a narrow interface so ingest never imports the
// websocket transport directly.
type Broadcaster interface {
	Broadcast(ctx context.Context, uavID string, t Telemetry)
}

// Coordinator is the C7 dependency fed on every accepted telemetry report
// so conflict detection (S4) runs off live position updates instead of
// sitting dead behind Track/UpdateState with no caller. Kept narrow so
// ingest doesn't depend on the coordinator's fleet/bus wiring.
type Coordinator interface {
	UpdatePosition(ctx context.Context, uavID string, position models.GeoPoint, battery float64) []coordinator.Conflict
}

// Service validates and applies telemetry.
type Service struct {
	fleet       *fleet.Inventory
	broadcaster Broadcaster
	coordinator Coordinator
	clock       *clock.Clock
	logger      *zap.Logger

	mu   sync.Mutex
	last map[string]lastState
}

// New creates an ingest Service.
func New(inv *fleet.Inventory, broadcaster Broadcaster, coord Coordinator, clk *clock.Clock, logger *zap.Logger) *Service {
	return &Service{fleet: inv, broadcaster: broadcaster, coordinator: coord, clock: clk, logger: logger, last: make(map[string]lastState)}
}

// Validate checks a telemetry message against §4.9's field bounds.
func Validate(t Telemetry, now time.Time) error {
	if t.UAVID == "" {
		return errs.NewValidation("TELEMETRY_UAV_ID", "uav_id must not be empty")
	}
	if t.Lat < minLat || t.Lat > maxLat {
		return errs.NewValidation("TELEMETRY_LAT", "latitude out of range")
	}
	if t.Lon < minLon || t.Lon > maxLon {
		return errs.NewValidation("TELEMETRY_LON", "longitude out of range")
	}
	if t.AltM < minAlt || t.AltM > maxAlt {
		return errs.NewValidation("TELEMETRY_ALT", "altitude out of range")
	}
	if t.BatteryPercent < 0 || t.BatteryPercent > 100 {
		return errs.NewValidation("TELEMETRY_BATTERY", "battery percent out of range")
	}
	if t.GPSFixType < 0 || t.GPSFixType > 6 {
		return errs.NewValidation("TELEMETRY_GPS_FIX", "gps fix type out of range")
	}
	if t.SatelliteCount < 0 || t.SatelliteCount > 255 {
		return errs.NewValidation("TELEMETRY_SATELLITES", "satellite count out of range")
	}
	if t.LinkQuality < 0 || t.LinkQuality > 100 {
		return errs.NewValidation("TELEMETRY_LINK_QUALITY", "link quality out of range")
	}
	if t.Timestamp.After(now) {
		return errs.NewValidation("TELEMETRY_TIMESTAMP_FUTURE", "timestamp is in the future")
	}
	if now.Sub(t.Timestamp) > maxTelemetryAge {
		return errs.NewValidation("TELEMETRY_TIMESTAMP_STALE", "timestamp is older than one hour")
	}
	return nil
}

// Ingest validates t, refreshes the fleet heartbeat, and broadcasts if
// the change is significant relative to the last accepted report.
func (s *Service) Ingest(ctx context.Context, t Telemetry) error {
	now := s.clock.Now()
	if err := Validate(t, now); err != nil {
		return err
	}

	if err := s.fleet.RecordHeartbeat(ctx, t.UAVID, t.Lat, t.Lon, t.AltM, t.BatteryPercent); err != nil {
		return err
	}

	if s.coordinator != nil {
		s.coordinator.UpdatePosition(ctx, t.UAVID, models.GeoPoint{Lat: t.Lat, Lon: t.Lon, Alt: t.AltM}, t.BatteryPercent)
	}

	significant := s.recordAndCheckSignificance(t)
	if significant && s.broadcaster != nil {
		s.broadcaster.Broadcast(ctx, t.UAVID, t)
	}
	return nil
}

func (s *Service) recordAndCheckSignificance(t Telemetry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, known := s.last[t.UAVID]
	s.last[t.UAVID] = lastState{lat: t.Lat, lon: t.Lon, altM: t.AltM, batteryPercent: t.BatteryPercent, flightMode: t.FlightMode, gpsFixType: t.GPSFixType}
	if !known {
		return true
	}

	if absDiff(prev.lat, t.Lat) > significantLatLonDeg || absDiff(prev.lon, t.Lon) > significantLatLonDeg {
		return true
	}
	if absDiff(prev.altM, t.AltM) > significantAltM {
		return true
	}
	if absDiff(prev.batteryPercent, t.BatteryPercent) > significantBatteryPt {
		return true
	}
	if prev.flightMode != t.FlightMode {
		return true
	}
	if prev.gpsFixType != t.GPSFixType {
		return true
	}
	return false
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
