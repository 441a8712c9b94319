// Package fleet implements C3: the UAV fleet inventory. It keeps a
// sync.Map-backed in-memory view of every known UAV, periodically
// refreshed from and written through to the repository (C2), and detects
// stale UAVs whose heartbeat has lapsed.
package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/internal/repository"
	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/falconmind/clustercenter/pkg/models"
	"go.uber.org/zap"
)

const (
	refreshInterval  = 30 * time.Second
	staleThreshold   = 30 * time.Second
	livenessInterval = 15 * time.Second
)

// FailureHandler is notified when a UAV transitions to OFFLINE, so C7's
// coordinator can reassign its in-flight sub-missions (§4.5). A plain func
// type rather than an interface import, since coordinator already depends
// on fleet and a direct import back would cycle.
type FailureHandler func(ctx context.Context, failedUAV string)

// Inventory is the fleet's UAV registry: an in-memory derived view backed
// by the repository.
type Inventory struct {
	repo   *repository.Repository
	bus    *events.Bus
	logger *zap.Logger
	nodeID string

	uavs sync.Map // map[string]*models.UAV

	onFailure FailureHandler

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a fleet Inventory.
func New(repo *repository.Repository, bus *events.Bus, logger *zap.Logger, nodeID string) *Inventory {
	inv := &Inventory{
		repo:   repo,
		bus:    bus,
		logger: logger,
		nodeID: nodeID,
		stopCh: make(chan struct{}),
	}
	return inv
}

// Start loads the current state from the repository and begins the
// background refresh and liveness-scan loops.
func (inv *Inventory) Start(ctx context.Context) error {
	if err := inv.refresh(ctx); err != nil {
		return err
	}
	inv.wg.Add(2)
	go inv.refreshLoop(ctx)
	go inv.livenessLoop(ctx)
	return nil
}

// Stop halts the background loops.
func (inv *Inventory) Stop() {
	close(inv.stopCh)
	inv.wg.Wait()
}

// OnUAVOffline installs the callback invoked whenever a UAV transitions
// into OFFLINE, whether from a stale heartbeat (scanStale) or an explicit
// SetStatus call. Must be set before the liveness loop can usefully fire
// it; set once at startup.
func (inv *Inventory) OnUAVOffline(h FailureHandler) {
	inv.onFailure = h
}

// Register adds or updates a UAV in the fleet.
func (inv *Inventory) Register(ctx context.Context, u *models.UAV) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.LastHeartbeat = now

	if err := inv.repo.PutUAV(ctx, u); err != nil {
		return err
	}
	inv.uavs.Store(u.ID, u)

	inv.logger.Info("registered uav", zap.String("uav_id", u.ID))
	_ = inv.bus.Publish(ctx, events.NewEvent(events.EventUAVRegistered, inv.nodeID, map[string]interface{}{
		"uav_id": u.ID,
	}))
	return nil
}

// Get returns a single UAV by id.
func (inv *Inventory) Get(id string) (*models.UAV, bool) {
	v, ok := inv.uavs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.UAV), true
}

// Available returns every UAV currently eligible for assignment: status
// ONLINE or IDLE, with no current mission.
func (inv *Inventory) Available() []*models.UAV {
	var out []*models.UAV
	inv.uavs.Range(func(_, value interface{}) bool {
		u := value.(*models.UAV)
		if (u.Status == models.UAVOnline || u.Status == models.UAVIdle) && u.CurrentMission == "" {
			out = append(out, u)
		}
		return true
	})
	return out
}

// All returns every UAV known to the fleet.
func (inv *Inventory) All() []*models.UAV {
	var out []*models.UAV
	inv.uavs.Range(func(_, value interface{}) bool {
		out = append(out, value.(*models.UAV))
		return true
	})
	return out
}

// SetStatus transitions a UAV's status, persisting the change.
func (inv *Inventory) SetStatus(ctx context.Context, id string, status models.UAVStatus) error {
	v, ok := inv.uavs.Load(id)
	if !ok {
		return errs.NewNotFound("UAV_NOT_FOUND", "uav not found: "+id)
	}
	u := v.(*models.UAV)
	prev := u.Status
	u.Status = status
	u.UpdatedAt = time.Now()

	if err := inv.repo.PutUAV(ctx, u); err != nil {
		return err
	}
	inv.uavs.Store(id, u)

	if prev != models.UAVOffline && status == models.UAVOffline {
		_ = inv.bus.Publish(ctx, events.NewEvent(events.EventUAVOffline, inv.nodeID, map[string]interface{}{"uav_id": id}))
		if inv.onFailure != nil {
			inv.onFailure(ctx, id)
		}
	} else if prev == models.UAVOffline && status != models.UAVOffline {
		_ = inv.bus.Publish(ctx, events.NewEvent(events.EventUAVOnline, inv.nodeID, map[string]interface{}{"uav_id": id}))
	}
	return nil
}

// RecordHeartbeat updates position, battery, and last-seen time for a UAV.
func (inv *Inventory) RecordHeartbeat(ctx context.Context, id string, lat, lon, alt, battery float64) error {
	v, ok := inv.uavs.Load(id)
	if !ok {
		return errs.NewNotFound("UAV_NOT_FOUND", "uav not found: "+id)
	}
	u := v.(*models.UAV)
	u.Lat, u.Lon, u.AltM = lat, lon, alt
	u.Capabilities.CurrentBattery = battery
	u.LastHeartbeat = time.Now()
	u.UpdatedAt = u.LastHeartbeat

	if err := inv.repo.PutUAV(ctx, u); err != nil {
		return err
	}
	inv.uavs.Store(id, u)
	return nil
}

// AssignMission marks a UAV as BUSY and records the mission it's assigned
// to, or clears it back to IDLE when missionID is empty.
func (inv *Inventory) AssignMission(ctx context.Context, id, missionID string) error {
	v, ok := inv.uavs.Load(id)
	if !ok {
		return errs.NewNotFound("UAV_NOT_FOUND", "uav not found: "+id)
	}
	u := v.(*models.UAV)
	u.CurrentMission = missionID
	if missionID == "" {
		u.Status = models.UAVIdle
	} else {
		u.Status = models.UAVBusy
	}
	u.UpdatedAt = time.Now()

	if err := inv.repo.PutUAV(ctx, u); err != nil {
		return err
	}
	inv.uavs.Store(id, u)
	return nil
}

func (inv *Inventory) refreshLoop(ctx context.Context) {
	defer inv.wg.Done()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-inv.stopCh:
			return
		case <-ticker.C:
			if err := inv.refresh(ctx); err != nil {
				inv.logger.Error("fleet refresh failed", zap.Error(err))
			}
		}
	}
}

func (inv *Inventory) refresh(ctx context.Context) error {
	uavs, err := inv.repo.ListUAVs(ctx)
	if err != nil {
		return err
	}
	for _, u := range uavs {
		inv.uavs.Store(u.ID, u)
	}
	inv.logger.Debug("refreshed fleet inventory", zap.Int("count", len(uavs)))
	return nil
}

func (inv *Inventory) livenessLoop(ctx context.Context) {
	defer inv.wg.Done()
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-inv.stopCh:
			return
		case <-ticker.C:
			inv.scanStale(ctx)
		}
	}
}

// scanStale marks any UAV that hasn't heartbeated within staleThreshold
// as OFFLINE.
func (inv *Inventory) scanStale(ctx context.Context) {
	cutoff := time.Now().Add(-staleThreshold)
	inv.uavs.Range(func(key, value interface{}) bool {
		u := value.(*models.UAV)
		if u.Status != models.UAVOffline && u.LastHeartbeat.Before(cutoff) {
			id := key.(string)
			inv.logger.Warn("uav heartbeat stale, marking offline", zap.String("uav_id", id))
			if err := inv.SetStatus(ctx, id, models.UAVOffline); err != nil {
				inv.logger.Error("failed to mark uav offline", zap.String("uav_id", id), zap.Error(err))
			}
		}
		return true
	})
}
