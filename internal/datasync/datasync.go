// Package datasync implements C10: propagating mutations to missions,
// UAVs, and cluster missions through the Raft log (C8) so every node
// converges on the same entity state. The leader proposes each
// SyncOperation; every node, leader included, applies committed
// operations through the same conflict-resolution rule.
package datasync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/internal/crossregion"
	"github.com/falconmind/clustercenter/internal/fleet"
	"github.com/falconmind/clustercenter/internal/repository"
	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/models"
	"go.uber.org/zap"
)

const (
	incrementalSyncInterval = 30 * time.Second
	fullSyncInterval        = 5 * time.Minute
	batchSize               = 10
)

// Proposer is the subset of internal/consensus.Node the synchronizer
// needs: propose a command and know whether this node is the leader.
type Proposer interface {
	Propose(ctx context.Context, command []byte) (uint64, error)
	IsLeader() bool
}

// Synchronizer batches outgoing SyncOperations onto the Raft log and
// applies incoming committed operations with last-writer-wins conflict
// resolution.
type Synchronizer struct {
	raft   Proposer
	repo   *repository.Repository
	fleet  *fleet.Inventory
	clock  *clock.Clock
	logger *zap.Logger
	nodeID string

	mu       sync.Mutex
	queue    []*models.SyncOperation
	versions map[string]uint64 // entityID -> last-applied version
	origins  map[string]string // entityID -> OriginNodeID that produced the applied version

	crossRegion *crossregion.Manager // nil if disabled

	checkpointMu sync.Mutex
	checkpoints  map[models.SyncEntityKind]time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Synchronizer.
func New(raft Proposer, repo *repository.Repository, inv *fleet.Inventory, clk *clock.Clock, logger *zap.Logger, nodeID string) *Synchronizer {
	return &Synchronizer{
		raft:        raft,
		repo:        repo,
		fleet:       inv,
		clock:       clk,
		logger:      logger,
		nodeID:      nodeID,
		versions:    make(map[string]uint64),
		origins:     make(map[string]string),
		checkpoints: make(map[models.SyncEntityKind]time.Time),
		stopCh:      make(chan struct{}),
	}
}

// SetCrossRegion wires C13 replication onto every leader-applied entity
// change (§4.11). Set once at startup, after both components exist.
func (s *Synchronizer) SetCrossRegion(m *crossregion.Manager) {
	s.crossRegion = m
}

// Start begins the queue-drain loop and the incremental/full sync sweeps.
// Both loops run on every node, but only the leader acts: the sweeps run
// and the queue is proposed to the Raft log only while this node is
// leader; a follower's queue is held until it becomes leader.
func (s *Synchronizer) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.drainLoop(ctx)
	go s.sweepLoop(ctx)
}

// Stop halts the background loops.
func (s *Synchronizer) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Enqueue records a local mutation for replication. Its only callers are
// this package's periodic sweeps (sweepAll); internal/mission and
// internal/fleet do not call it.
func (s *Synchronizer) Enqueue(kind models.SyncOperationKind, entityKind models.SyncEntityKind, entityID string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[entityID]++
	op := &models.SyncOperation{
		Kind:         kind,
		EntityKind:   entityKind,
		EntityID:     entityID,
		Payload:      payload,
		Timestamp:    s.clock.Now(),
		Version:      s.versions[entityID],
		OriginNodeID: s.nodeID,
	}
	s.queue = append(s.queue, op)
}

func (s *Synchronizer) drainLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainBatch(ctx)
		}
	}
}

func (s *Synchronizer) drainBatch(ctx context.Context) {
	if !s.raft.IsLeader() {
		return
	}
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	n := batchSize
	if n > len(s.queue) {
		n = len(s.queue)
	}
	batch := s.queue[:n]
	s.queue = s.queue[n:]
	s.mu.Unlock()

	for _, op := range batch {
		data, err := json.Marshal(op)
		if err != nil {
			s.logger.Error("failed to encode sync operation", zap.Error(err))
			continue
		}
		if _, err := s.raft.Propose(ctx, data); err != nil {
			s.logger.Warn("failed to propose sync operation",
				zap.String("entity_id", op.EntityID), zap.Error(err))
		}
	}
}

// Apply is the C8 ApplyFunc: it decodes a committed log command and
// applies it if it is a SyncOperation, per §4.8's four-step rule.
func (s *Synchronizer) Apply(ctx context.Context, command []byte) {
	var op models.SyncOperation
	if err := json.Unmarshal(command, &op); err != nil {
		s.logger.Error("failed to decode committed sync operation", zap.Error(err))
		return
	}
	if !s.resolveConflict(&op) {
		s.logger.Debug("sync operation rejected as stale",
			zap.String("entity_id", op.EntityID), zap.Uint64("version", op.Version))
		return
	}
	s.applyOperation(ctx, &op)
}

// resolveConflict implements §4.8's version rule: reject strictly-stale
// writes, and on an exact version tie between different origins let the
// lexicographically smaller OriginNodeID win (resolved Open Question 2).
// The comparison is against the OriginNodeID that produced the currently-
// applied version, not this node's own id, so the rule holds regardless of
// which node resolves the tie.
func (s *Synchronizer) resolveConflict(op *models.SyncOperation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := s.versions[op.EntityID]
	if local > op.Version {
		return false
	}
	if local == op.Version && op.OriginNodeID != s.origins[op.EntityID] && op.OriginNodeID >= s.origins[op.EntityID] {
		return false
	}
	s.versions[op.EntityID] = op.Version
	s.origins[op.EntityID] = op.OriginNodeID
	return true
}

func (s *Synchronizer) applyOperation(ctx context.Context, op *models.SyncOperation) {
	switch op.EntityKind {
	case models.SyncEntityMission:
		s.applyMission(ctx, op)
	case models.SyncEntityUAV:
		s.applyUAV(ctx, op)
	case models.SyncEntityCluster:
		s.applyCluster(ctx, op)
	}

	if s.crossRegion != nil && s.raft.IsLeader() {
		s.crossRegion.SyncToAllRegions(string(op.EntityKind), op.EntityID, op.Payload, op.Timestamp)
	}
}

func (s *Synchronizer) applyMission(ctx context.Context, op *models.SyncOperation) {
	if op.Kind == models.SyncDelete {
		_ = s.repo.DeleteMission(ctx, op.EntityID)
		return
	}
	var m models.Mission
	if err := json.Unmarshal(op.Payload, &m); err != nil {
		s.logger.Error("failed to decode mission sync payload", zap.Error(err))
		return
	}
	if err := s.repo.PutMission(ctx, &m); err != nil {
		s.logger.Error("failed to apply mission sync", zap.Error(err))
	}
}

func (s *Synchronizer) applyUAV(ctx context.Context, op *models.SyncOperation) {
	if op.Kind == models.SyncDelete {
		_ = s.repo.DeleteUAV(ctx, op.EntityID)
		return
	}
	var u models.UAV
	if err := json.Unmarshal(op.Payload, &u); err != nil {
		s.logger.Error("failed to decode uav sync payload", zap.Error(err))
		return
	}
	if err := s.fleet.Register(ctx, &u); err != nil {
		s.logger.Error("failed to apply uav sync", zap.Error(err))
	}
}

func (s *Synchronizer) applyCluster(ctx context.Context, op *models.SyncOperation) {
	if op.Kind == models.SyncDelete {
		return
	}
	var c models.ClusterMission
	if err := json.Unmarshal(op.Payload, &c); err != nil {
		s.logger.Error("failed to decode cluster sync payload", zap.Error(err))
		return
	}
	if err := s.repo.PutClusterMission(ctx, &c); err != nil {
		s.logger.Error("failed to apply cluster sync", zap.Error(err))
	}
}

func (s *Synchronizer) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	incremental := time.NewTicker(incrementalSyncInterval)
	full := time.NewTicker(fullSyncInterval)
	defer incremental.Stop()
	defer full.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-incremental.C:
			if s.raft.IsLeader() {
				s.sweepAll(ctx, true)
			}
		case <-full.C:
			if s.raft.IsLeader() {
				s.sweepAll(ctx, false)
			}
		}
	}
}

// sweepAll re-enqueues every mission and UAV, as a safety net against
// missed Enqueue calls; incremental sweeps only touch entities changed
// since the per-kind checkpoint.
func (s *Synchronizer) sweepAll(ctx context.Context, incremental bool) {
	checkpoint := s.checkpointFor(models.SyncEntityMission)
	missions, err := s.repo.ListMissions(ctx)
	if err == nil {
		for _, m := range missions {
			if incremental && !checkpoint.IsZero() && m.UpdatedAt.Before(checkpoint) {
				continue
			}
			s.syncMissionNow(m)
		}
	}
	s.setCheckpoint(models.SyncEntityMission, s.clock.Now())

	uavCheckpoint := s.checkpointFor(models.SyncEntityUAV)
	uavs, err := s.repo.ListUAVs(ctx)
	if err == nil {
		for _, u := range uavs {
			if incremental && !uavCheckpoint.IsZero() && u.LastHeartbeat.Before(uavCheckpoint) {
				continue
			}
			s.syncUAVNow(u)
		}
	}
	s.setCheckpoint(models.SyncEntityUAV, s.clock.Now())
}

func (s *Synchronizer) syncMissionNow(m *models.Mission) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	s.Enqueue(models.SyncUpdate, models.SyncEntityMission, m.ID, data)
}

func (s *Synchronizer) syncUAVNow(u *models.UAV) {
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	s.Enqueue(models.SyncUpdate, models.SyncEntityUAV, u.ID, data)
}

func (s *Synchronizer) checkpointFor(kind models.SyncEntityKind) time.Time {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()
	return s.checkpoints[kind]
}

func (s *Synchronizer) setCheckpoint(kind models.SyncEntityKind, t time.Time) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()
	s.checkpoints[kind] = t
}
