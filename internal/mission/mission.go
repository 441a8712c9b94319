// Package mission implements C4: the mission scheduler. It owns the
// PENDING/RUNNING/PAUSED/SUCCEEDED/FAILED/CANCELLED state machine (§4.2),
// admission at dispatch, and the periodic priority dispatch loop.
package mission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/internal/assigner"
	"github.com/falconmind/clustercenter/internal/fleet"
	"github.com/falconmind/clustercenter/internal/repository"
	"github.com/falconmind/clustercenter/internal/retry"
	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/falconmind/clustercenter/pkg/geo"
	"github.com/falconmind/clustercenter/pkg/models"
	"go.uber.org/zap"
)

const dispatchLoopInterval = 5 * time.Second

// allowedTransitions encodes §4.2's state machine: only the listed edges
// are legal, anything else fails with INVALID_STATE. RUNNING -> PENDING is
// the retry path (§4.14): a mission that fails in flight with retries
// remaining goes back to PENDING for the dispatch loop to pick up, rather
// than straight to FAILED.
var allowedTransitions = map[models.MissionState]map[models.MissionState]bool{
	models.MissionPending: {
		models.MissionRunning:   true,
		models.MissionCancelled: true,
		models.MissionFailed:    true,
	},
	models.MissionRunning: {
		models.MissionPaused:    true,
		models.MissionSucceeded: true,
		models.MissionFailed:    true,
		models.MissionCancelled: true,
		models.MissionPending:   true,
	},
	models.MissionPaused: {
		models.MissionRunning:   true,
		models.MissionCancelled: true,
	},
}

// Coordinator is the C7 dependency the scheduler tracks dispatched
// sub-missions against, kept narrow so mission doesn't import
// coordinator's fleet/bus wiring.
type Coordinator interface {
	Track(state *models.UavMissionState)
	Untrack(uavID string)
}

// Scheduler is the mission lifecycle manager.
type Scheduler struct {
	repo        *repository.Repository
	fleet       *fleet.Inventory
	strategy    assigner.Strategy
	retry       *retry.Manager
	coordinator Coordinator
	bus         *events.Bus
	clock       *clock.Clock
	logger      *zap.Logger
	nodeID      string

	mu      sync.Mutex
	missions map[string]*models.Mission

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a mission Scheduler.
func New(repo *repository.Repository, fl *fleet.Inventory, strategy assigner.Strategy, retryMgr *retry.Manager, coord Coordinator, bus *events.Bus, c *clock.Clock, logger *zap.Logger, nodeID string) *Scheduler {
	return &Scheduler{
		repo:        repo,
		fleet:       fl,
		strategy:    strategy,
		retry:       retryMgr,
		coordinator: coord,
		bus:         bus,
		clock:       c,
		logger:      logger,
		nodeID:      nodeID,
		missions:    make(map[string]*models.Mission),
		stopCh:      make(chan struct{}),
	}
}

// Start loads persisted missions and begins the priority dispatch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	missions, err := s.repo.ListMissions(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, m := range missions {
		s.missions[m.ID] = m
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatchLoop(ctx)
	return nil
}

// Stop halts the dispatch loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Create registers a new mission in PENDING state.
func (s *Scheduler) Create(ctx context.Context, m *models.Mission) error {
	if m.ID == "" {
		m.ID = s.clock.NewID()
	}
	now := s.clock.Now()
	m.State = models.MissionPending
	m.CreatedAt = now
	m.UpdatedAt = now

	if err := s.repo.PutMission(ctx, m); err != nil {
		return err
	}

	s.mu.Lock()
	s.missions[m.ID] = m
	s.mu.Unlock()

	s.publish(ctx, events.EventMissionCreated, m)
	return nil
}

func (s *Scheduler) get(id string) (*models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, errs.NewNotFound("MISSION_NOT_FOUND", "mission not found: "+id)
	}
	return m, nil
}

// Get returns a single mission by id, for operator API reads.
func (s *Scheduler) Get(id string) (*models.Mission, error) {
	return s.get(id)
}

// List returns every mission currently held in memory.
func (s *Scheduler) List() []*models.Mission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Mission, 0, len(s.missions))
	for _, m := range s.missions {
		out = append(out, m)
	}
	return out
}

// RetryStats exposes the retry manager's per-error-class counters for
// the operator API's /api/v1/admin/retry-stats endpoint.
func (s *Scheduler) RetryStats() []retry.Statistics {
	return s.retry.RetryStatistics()
}

func (s *Scheduler) transition(ctx context.Context, id string, to models.MissionState, mutate func(*models.Mission)) error {
	s.mu.Lock()
	m, ok := s.missions[id]
	if !ok {
		s.mu.Unlock()
		return errs.NewNotFound("MISSION_NOT_FOUND", "mission not found: "+id)
	}
	if !allowedTransitions[m.State][to] {
		s.mu.Unlock()
		return errs.NewInvalidState("MISSION_INVALID_TRANSITION", string(m.State)+" -> "+string(to)+" not permitted")
	}
	m.State = to
	m.UpdatedAt = s.clock.Now()
	if mutate != nil {
		mutate(m)
	}
	s.mu.Unlock()

	return s.repo.PutMission(ctx, m)
}

// Dispatch attempts to move a PENDING mission to RUNNING: admits either
// the caller-supplied UAV (SINGLE_UAV) or auto-picks via the assigner
// strategy (MULTI_UAV/CLUSTER), applying the mission's dispatch policy on
// a capacity shortfall.
func (s *Scheduler) Dispatch(ctx context.Context, id string) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	if m.State != models.MissionPending {
		return errs.NewInvalidState("MISSION_INVALID_TRANSITION", string(m.State)+" -> RUNNING not permitted")
	}

	selected, err := s.admit(ctx, m)
	if err != nil {
		if errs.KindOf(err) == errs.CapacityExhausted && m.DispatchPolicy == models.DispatchFailOnShortfall {
			return err
		}
		if errs.KindOf(err) != errs.CapacityExhausted {
			return s.failOrRetryDispatch(ctx, m, err)
		}
	}
	if len(selected) == 0 {
		return errs.NewCapacityExhausted("MISSION_NO_CAPACITY", "no UAVs available for dispatch")
	}

	now := s.clock.Now()
	txErr := s.transition(ctx, id, models.MissionRunning, func(mission *models.Mission) {
		mission.AssignedUAVs = selected
		mission.StartedAt = &now
	})
	if txErr != nil {
		return txErr
	}

	for _, uavID := range selected {
		if err := s.fleet.AssignMission(ctx, uavID, id); err != nil {
			s.logger.Error("failed to bind uav to mission", zap.String("uav_id", uavID), zap.Error(err))
			continue
		}
		if s.coordinator != nil {
			s.coordinator.Track(&models.UavMissionState{
				UAVID:            uavID,
				MissionID:        id,
				ClusterMissionID: clusterMissionIDOf(m),
				AssignedArea:     assignedAreaOf(m),
				Status:           models.UMSRunning,
				LastUpdate:       now,
			})
		}
	}

	s.publish(ctx, events.EventMissionDispatched, m)
	return nil
}

// failOrRetryDispatch consults the retry manager on a non-capacity
// dispatch failure (§4.14): while retries remain for this mission type and
// error class, the mission stays PENDING and a re-dispatch is scheduled
// after the classified backoff delay; once exhausted it transitions to
// FAILED as before.
func (s *Scheduler) failOrRetryDispatch(ctx context.Context, m *models.Mission, cause error) error {
	s.mu.Lock()
	m.RetryCount++
	attempt := m.RetryCount
	s.mu.Unlock()

	decision := s.retry.Next(cause, string(m.Type), attempt)
	if decision.ShouldRetry {
		s.logger.Warn("dispatch failed, scheduling retry",
			zap.String("mission_id", m.ID), zap.Int("attempt", attempt), zap.Duration("delay", decision.Delay))
		s.scheduleRedispatch(m.ID, decision.Delay)
		return cause
	}

	_ = s.transition(ctx, m.ID, models.MissionFailed, nil)
	s.publish(ctx, events.EventMissionFailed, m)
	return cause
}

// scheduleRedispatch re-attempts Dispatch after delay, unless the
// scheduler is stopped first.
func (s *Scheduler) scheduleRedispatch(id string, delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.stopCh:
			return
		}
		if err := s.Dispatch(context.Background(), id); err != nil && errs.KindOf(err) != errs.CapacityExhausted {
			s.logger.Warn("scheduled retry dispatch failed", zap.String("mission_id", id), zap.Error(err))
		}
	}()
}

// clusterMissionIDOf extracts the cluster-mission grouping a sub-mission
// was created under (set in Payload by internal/api's createCluster), or
// "" for a standalone mission.
func clusterMissionIDOf(m *models.Mission) string {
	if id, ok := m.Payload["cluster_mission_id"].(string); ok {
		return id
	}
	return ""
}

// assignedAreaOf extracts the sub-area a cluster sub-mission was assigned,
// or the zero Area for a standalone mission.
func assignedAreaOf(m *models.Mission) models.Area {
	if area, ok := m.Payload["area"].(models.Area); ok {
		return area
	}
	return models.Area{}
}

// admit resolves which UAVs get bound to m on dispatch, per §4.2's
// admission rules.
func (s *Scheduler) admit(ctx context.Context, m *models.Mission) ([]string, error) {
	if m.Type == models.MissionSingleUAV {
		if m.PreferredUAV != "" {
			u, ok := s.fleet.Get(m.PreferredUAV)
			if !ok || (u.Status != models.UAVOnline && u.Status != models.UAVIdle) || u.CurrentMission != "" {
				return nil, errs.NewCapacityExhausted("MISSION_UAV_UNAVAILABLE", "preferred uav not available")
			}
			return []string{u.ID}, nil
		}
		selected, err := s.pickFromPool(ctx, m, 1)
		if err != nil {
			return nil, err
		}
		return selected, nil
	}

	requested := m.RequestedUAVs
	if requested <= 0 {
		requested = 1
	}
	available := s.fleet.Available()
	capacity := requested
	if len(available) < requested {
		capacity = len(available)
	}
	if capacity < requested && m.DispatchPolicy == models.DispatchFailOnShortfall {
		return nil, errs.NewCapacityExhausted("MISSION_CAPACITY_SHORTFALL", "insufficient uavs for requested count")
	}
	if capacity == 0 {
		return nil, errs.NewCapacityExhausted("MISSION_NO_CAPACITY", "no uavs available")
	}
	return s.pickFromPool(ctx, m, capacity)
}

func (s *Scheduler) pickFromPool(ctx context.Context, m *models.Mission, count int) ([]string, error) {
	available := s.fleet.Available()
	candidates := make([]assigner.Candidate, len(available))
	for i, u := range available {
		candidates[i] = assigner.Candidate{
			UAV:      u,
			Position: geo.Point{Lat: u.Lat, Lon: u.Lon, Alt: u.AltM},
		}
	}

	req := assigner.Requirements{Count: count}
	if len(m.Payload) > 0 {
		if alt, ok := m.Payload["required_altitude_m"].(float64); ok {
			req.MinAltitudeM = alt
		}
	}

	picked, err := s.strategy.Select(ctx, candidates, req)
	ids := make([]string, len(picked))
	for i, u := range picked {
		ids[i] = u.ID
	}
	if err != nil {
		if _, ok := err.(*assigner.ErrNoCandidates); ok {
			return ids, errs.NewCapacityExhausted("MISSION_CAPACITY_SHORTFALL", err.Error())
		}
		return ids, errs.NewFatal("MISSION_ASSIGN_FAILED", "assignment strategy failed", err)
	}
	return ids, nil
}

// Pause moves a RUNNING mission to PAUSED.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, id, models.MissionPaused, nil); err != nil {
		return err
	}
	s.publish(ctx, events.EventMissionPaused, m)
	return nil
}

// Resume moves a PAUSED mission back to RUNNING.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, id, models.MissionRunning, nil); err != nil {
		return err
	}
	s.publish(ctx, events.EventMissionResumed, m)
	return nil
}

// Cancel moves a PENDING/RUNNING/PAUSED mission to CANCELLED, releasing
// any bound UAVs.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, id, models.MissionCancelled, nil); err != nil {
		return err
	}
	s.releaseUAVs(ctx, m)
	s.publish(ctx, events.EventMissionCancelled, m)
	return nil
}

// Complete moves a RUNNING mission to SUCCEEDED (success=true) or, on
// failure, either back to PENDING for a retry (§4.14, while retries
// remain) or to FAILED, releasing any bound UAVs either way.
func (s *Scheduler) Complete(ctx context.Context, id string, success bool) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	if !success {
		return s.failOrRetryCompletion(ctx, m)
	}

	now := s.clock.Now()
	if err := s.transition(ctx, id, models.MissionSucceeded, func(mission *models.Mission) {
		mission.CompletedAt = &now
		mission.Progress = 1.0
	}); err != nil {
		return err
	}
	s.releaseUAVs(ctx, m)
	s.publish(ctx, events.EventMissionSucceeded, m)
	return nil
}

// failOrRetryCompletion handles a RUNNING mission reporting failure
// in-flight: its bound UAVs are released either way, and while §4.14's
// retry policy allows it, the mission returns to PENDING for the dispatch
// loop rather than finalizing as FAILED.
func (s *Scheduler) failOrRetryCompletion(ctx context.Context, m *models.Mission) error {
	s.mu.Lock()
	m.RetryCount++
	attempt := m.RetryCount
	s.mu.Unlock()

	cause := errs.NewFatal("MISSION_EXECUTION_FAILED", "mission reported failure", nil)
	decision := s.retry.Next(cause, string(m.Type), attempt)

	s.releaseUAVs(ctx, m)

	if decision.ShouldRetry {
		if err := s.transition(ctx, m.ID, models.MissionPending, func(mission *models.Mission) {
			mission.AssignedUAVs = nil
			mission.StartedAt = nil
		}); err != nil {
			return err
		}
		s.logger.Warn("mission failed in flight, returned to pending for retry",
			zap.String("mission_id", m.ID), zap.Int("attempt", attempt), zap.Duration("delay", decision.Delay))
		s.scheduleRedispatch(m.ID, decision.Delay)
		return nil
	}

	now := s.clock.Now()
	if err := s.transition(ctx, m.ID, models.MissionFailed, func(mission *models.Mission) {
		mission.CompletedAt = &now
	}); err != nil {
		return err
	}
	s.publish(ctx, events.EventMissionFailed, m)
	return nil
}

// Delete removes a mission, only permitted in a terminal state.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	if !m.State.Terminal() {
		return errs.NewInvalidState("MISSION_NOT_TERMINAL", "mission must be in a terminal state to delete")
	}
	if err := s.repo.DeleteMission(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.missions, id)
	s.mu.Unlock()
	s.publish(ctx, events.EventMissionDeleted, m)
	return nil
}

// UpdateProgress sets a RUNNING/PAUSED mission's progress, which must be
// non-decreasing (§3 invariant 3).
func (s *Scheduler) UpdateProgress(ctx context.Context, id string, progress float64) error {
	s.mu.Lock()
	m, ok := s.missions[id]
	if !ok {
		s.mu.Unlock()
		return errs.NewNotFound("MISSION_NOT_FOUND", "mission not found: "+id)
	}
	if m.State != models.MissionRunning && m.State != models.MissionPaused {
		s.mu.Unlock()
		return errs.NewInvalidState("MISSION_NOT_ACTIVE", "mission is not running or paused")
	}
	if progress < m.Progress {
		s.mu.Unlock()
		return errs.NewValidation("MISSION_PROGRESS_REGRESSION", "progress must be non-decreasing")
	}
	m.Progress = progress
	m.UpdatedAt = s.clock.Now()
	s.mu.Unlock()

	return s.repo.PutMission(ctx, m)
}

func (s *Scheduler) releaseUAVs(ctx context.Context, m *models.Mission) {
	for _, uavID := range m.AssignedUAVs {
		if err := s.fleet.AssignMission(ctx, uavID, ""); err != nil {
			s.logger.Error("failed to release uav from mission", zap.String("uav_id", uavID), zap.Error(err))
		}
		if s.coordinator != nil {
			s.coordinator.Untrack(uavID)
		}
	}
}

func (s *Scheduler) publish(ctx context.Context, eventType events.EventType, m *models.Mission) {
	evt := events.NewEvent(eventType, s.nodeID, map[string]interface{}{
		"mission_id": m.ID,
		"state":      string(m.State),
	})
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Error("failed to publish mission event", zap.Error(err))
	}
}

// dispatchLoop periodically attempts to dispatch PENDING missions in
// descending priority, earliest-created first as tiebreak (§4.2).
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(dispatchLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runDispatchPass(ctx)
		}
	}
}

func (s *Scheduler) runDispatchPass(ctx context.Context) {
	s.mu.Lock()
	pending := make([]*models.Mission, 0)
	for _, m := range s.missions {
		if m.State == models.MissionPending {
			pending = append(pending, m)
		}
	}
	s.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	for _, m := range pending {
		if err := s.Dispatch(ctx, m.ID); err != nil {
			if errs.KindOf(err) == errs.CapacityExhausted {
				continue // leave in PENDING, try again next pass
			}
			s.logger.Warn("dispatch attempt failed", zap.String("mission_id", m.ID), zap.Error(err))
		}
	}
}
