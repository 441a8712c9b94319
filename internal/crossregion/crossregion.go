// Package crossregion implements C13: replicating committed entity
// changes out to peer regions over HTTP, independent of the Raft log
// that keeps nodes within a region in sync. Each peer region has its
// own outbound queue drained by a small worker pool; a region that
// fails often enough is marked unhealthy and skipped until MarkHealthy
// resets it.
package crossregion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/pkg/events"
	"go.uber.org/zap"
)

const (
	defaultBatchSize         = 5
	defaultMaxRetries        = 3
	defaultRetryBackoff      = 5 * time.Second
	defaultUnhealthyWindow   = 20
	defaultUnhealthyFailRate = 0.5
	sendTimeout              = 10 * time.Second
	drainInterval            = 500 * time.Millisecond
)

// RegionConfig describes one peer region endpoint.
type RegionConfig struct {
	RegionID   string
	Endpoint   string
	Priority   int
	Enabled    bool
}

// SyncOperation is one entity change destined for a peer region.
type SyncOperation struct {
	OperationID  string          `json:"operation_id"`
	SourceRegion string          `json:"source_region"`
	TargetRegion string          `json:"target_region"`
	EntityType   string          `json:"entity_type"`
	EntityID     string          `json:"entity_id"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`

	retryCount int
}

// regionStats holds the rolling counters exposed per region.
type regionStats struct {
	totalSyncs      int
	successfulSyncs int
	failedSyncs     int
	avgLatencyMs    float64
	lastSyncTime    time.Time
}

// Manager fans out entity changes to every enabled, healthy peer
// region and tracks each region's health from its recent success rate.
type Manager struct {
	localRegion       string
	batchSize         int
	maxRetries        int
	retryBackoff      time.Duration
	unhealthyWindow   int
	unhealthyFailRate float64

	httpClient *http.Client
	bus        *events.Bus
	logger     *zap.Logger

	mu      sync.Mutex
	regions map[string]RegionConfig
	health  map[string]bool
	stats   map[string]*regionStats
	queues  map[string][]*SyncOperation

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Manager for localRegion. batchSize/maxRetries/
// retryBackoff/unhealthyWindow/unhealthyFailRate of zero fall back to
// §4.11's defaults.
func New(localRegion string, batchSize, maxRetries int, retryBackoff time.Duration, unhealthyWindow int, unhealthyFailRate float64, bus *events.Bus, logger *zap.Logger) *Manager {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	if unhealthyWindow <= 0 {
		unhealthyWindow = defaultUnhealthyWindow
	}
	if unhealthyFailRate <= 0 {
		unhealthyFailRate = defaultUnhealthyFailRate
	}
	return &Manager{
		localRegion:       localRegion,
		batchSize:         batchSize,
		maxRetries:        maxRetries,
		retryBackoff:      retryBackoff,
		unhealthyWindow:   unhealthyWindow,
		unhealthyFailRate: unhealthyFailRate,
		httpClient:        &http.Client{Timeout: sendTimeout},
		bus:               bus,
		logger:            logger,
		regions:           make(map[string]RegionConfig),
		health:            make(map[string]bool),
		stats:             make(map[string]*regionStats),
		queues:            make(map[string][]*SyncOperation),
		stopCh:            make(chan struct{}),
	}
}

// RegisterRegion adds or updates a peer region.
func (m *Manager) RegisterRegion(cfg RegionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[cfg.RegionID] = cfg
	if _, ok := m.health[cfg.RegionID]; !ok {
		m.health[cfg.RegionID] = true
	}
	if _, ok := m.stats[cfg.RegionID]; !ok {
		m.stats[cfg.RegionID] = &regionStats{}
	}
	m.logger.Info("registered peer region", zap.String("region_id", cfg.RegionID), zap.String("endpoint", cfg.Endpoint))
}

// Regions returns the enabled peer regions ordered by descending priority.
func (m *Manager) Regions() []RegionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegionConfig, 0, len(m.regions))
	for _, cfg := range m.regions {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority > out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Start spawns one drain worker per registered peer region. Regions
// registered after Start do not get a dedicated worker; call Start
// again after registering regions at startup, before traffic begins.
func (m *Manager) Start(ctx context.Context) {
	for _, cfg := range m.Regions() {
		m.wg.Add(1)
		go m.drainLoop(ctx, cfg.RegionID)
	}
}

// Stop halts every drain worker.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// SyncToAllRegions enqueues entityType/entityID/data for replication to
// every enabled peer region. Call this whenever the Raft log (C8/C10)
// commits a mission, UAV, or cluster mutation.
func (m *Manager) SyncToAllRegions(entityType, entityID string, data json.RawMessage, now time.Time) {
	for _, cfg := range m.Regions() {
		m.enqueue(cfg.RegionID, entityType, entityID, data, now)
	}
}

func (m *Manager) enqueue(targetRegion, entityType, entityID string, data json.RawMessage, now time.Time) {
	op := &SyncOperation{
		OperationID:  fmt.Sprintf("%s_%s_%d", entityType, entityID, now.UnixNano()),
		SourceRegion: m.localRegion,
		TargetRegion: targetRegion,
		EntityType:   entityType,
		EntityID:     entityID,
		Data:         data,
		Timestamp:    now,
	}
	m.mu.Lock()
	m.queues[targetRegion] = append(m.queues[targetRegion], op)
	m.mu.Unlock()
}

func (m *Manager) drainLoop(ctx context.Context, regionID string) {
	defer m.wg.Done()
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.drainBatch(ctx, regionID)
		}
	}
}

func (m *Manager) drainBatch(ctx context.Context, regionID string) {
	if !m.isHealthy(regionID) {
		return
	}
	m.mu.Lock()
	q := m.queues[regionID]
	if len(q) == 0 {
		m.mu.Unlock()
		return
	}
	n := m.batchSize
	if n > len(q) {
		n = len(q)
	}
	batch := q[:n]
	m.queues[regionID] = q[n:]
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, op := range batch {
		wg.Add(1)
		go func(op *SyncOperation) {
			defer wg.Done()
			m.syncOperation(ctx, op)
		}(op)
	}
	wg.Wait()
}

func (m *Manager) syncOperation(ctx context.Context, op *SyncOperation) {
	m.mu.Lock()
	cfg, ok := m.regions[op.TargetRegion]
	m.mu.Unlock()
	if !ok {
		return
	}

	start := time.Now()
	err := m.sendToRegion(ctx, cfg, op)
	latencyMs := float64(time.Since(start).Milliseconds())

	if err == nil {
		m.recordSuccess(op.TargetRegion, latencyMs)
		return
	}

	m.logger.Warn("cross-region sync failed", zap.String("region_id", op.TargetRegion), zap.String("entity_id", op.EntityID), zap.Error(err))
	m.recordFailure(ctx, op.TargetRegion)

	op.retryCount++
	if op.retryCount < m.maxRetries {
		delay := time.Duration(op.retryCount) * m.retryBackoff
		time.AfterFunc(delay, func() {
			m.mu.Lock()
			m.queues[op.TargetRegion] = append(m.queues[op.TargetRegion], op)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) sendToRegion(ctx context.Context, cfg RegionConfig, op *SyncOperation) error {
	body, err := json.Marshal(op)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(sctx, http.MethodPost, cfg.Endpoint+"/api/cross-region/sync", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("region %s returned status %d", cfg.RegionID, resp.StatusCode)
	}
	return nil
}

func (m *Manager) recordSuccess(regionID string, latencyMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats[regionID]
	if s == nil {
		s = &regionStats{}
		m.stats[regionID] = s
	}
	s.totalSyncs++
	s.successfulSyncs++
	s.avgLatencyMs = (s.avgLatencyMs*float64(s.successfulSyncs-1) + latencyMs) / float64(s.successfulSyncs)
	s.lastSyncTime = time.Now()
}

// recordFailure updates the rolling failure counters and marks the
// region unhealthy once its failure rate exceeds unhealthyFailRate over
// at least unhealthyWindow attempts.
func (m *Manager) recordFailure(ctx context.Context, regionID string) {
	m.mu.Lock()
	s := m.stats[regionID]
	if s == nil {
		s = &regionStats{}
		m.stats[regionID] = s
	}
	s.totalSyncs++
	s.failedSyncs++
	wasHealthy := m.health[regionID]
	failureRate := float64(s.failedSyncs) / float64(s.totalSyncs)
	unhealthy := s.totalSyncs >= m.unhealthyWindow && failureRate > m.unhealthyFailRate
	if unhealthy {
		m.health[regionID] = false
	}
	m.mu.Unlock()

	if unhealthy && wasHealthy {
		m.logger.Warn("region marked unhealthy", zap.String("region_id", regionID), zap.Float64("failure_rate", failureRate))
		if m.bus != nil {
			_ = m.bus.Publish(ctx, events.NewEvent(events.EventRegionUnhealthy, m.localRegion, map[string]interface{}{"region_id": regionID, "failure_rate": failureRate}))
		}
	}
}

func (m *Manager) isHealthy(regionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health[regionID]
}

// MarkHealthy resets a region's health and counters, for operator
// recovery after a manually-confirmed fix.
func (m *Manager) MarkHealthy(ctx context.Context, regionID string) {
	m.mu.Lock()
	wasUnhealthy := !m.health[regionID]
	m.health[regionID] = true
	m.stats[regionID] = &regionStats{}
	m.mu.Unlock()

	if wasUnhealthy {
		m.logger.Info("region marked healthy", zap.String("region_id", regionID))
		if m.bus != nil {
			_ = m.bus.Publish(ctx, events.NewEvent(events.EventRegionRecovered, m.localRegion, map[string]interface{}{"region_id": regionID}))
		}
	}
}

// RegionStatus is the externally-visible snapshot of one peer region's
// sync health, for operator API consumption.
type RegionStatus struct {
	RegionID        string    `json:"region_id"`
	Healthy         bool      `json:"healthy"`
	TotalSyncs      int       `json:"total_syncs"`
	SuccessfulSyncs int       `json:"successful_syncs"`
	FailedSyncs     int       `json:"failed_syncs"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	LastSyncTime    time.Time `json:"last_sync_time"`
	QueueDepth      int       `json:"queue_depth"`
}

// Status returns the current health/statistics snapshot for every
// registered region.
func (m *Manager) Status() []RegionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegionStatus, 0, len(m.regions))
	for id := range m.regions {
		s := m.stats[id]
		if s == nil {
			s = &regionStats{}
		}
		out = append(out, RegionStatus{
			RegionID:        id,
			Healthy:         m.health[id],
			TotalSyncs:      s.totalSyncs,
			SuccessfulSyncs: s.successfulSyncs,
			FailedSyncs:     s.failedSyncs,
			AvgLatencyMs:    s.avgLatencyMs,
			LastSyncTime:    s.lastSyncTime,
			QueueDepth:      len(m.queues[id]),
		})
	}
	return out
}
