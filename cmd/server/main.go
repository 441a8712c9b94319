package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/falconmind/clustercenter/internal/alerting"
	"github.com/falconmind/clustercenter/internal/api"
	"github.com/falconmind/clustercenter/internal/assigner"
	"github.com/falconmind/clustercenter/internal/autoscaler"
	"github.com/falconmind/clustercenter/internal/config"
	"github.com/falconmind/clustercenter/internal/consensus"
	"github.com/falconmind/clustercenter/internal/coordinator"
	"github.com/falconmind/clustercenter/internal/crossregion"
	"github.com/falconmind/clustercenter/internal/datasync"
	"github.com/falconmind/clustercenter/internal/discovery"
	"github.com/falconmind/clustercenter/internal/eventlog"
	"github.com/falconmind/clustercenter/internal/fleet"
	"github.com/falconmind/clustercenter/internal/ingest"
	"github.com/falconmind/clustercenter/internal/mission"
	"github.com/falconmind/clustercenter/internal/repository"
	"github.com/falconmind/clustercenter/internal/retry"
	"github.com/falconmind/clustercenter/internal/rpctransport"
	"github.com/falconmind/clustercenter/internal/viewer"
	"github.com/falconmind/clustercenter/pkg/cache"
	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/database"
	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/falconmind/clustercenter/pkg/geo"
	"github.com/falconmind/clustercenter/pkg/models"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting fleet control plane")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database")

	redisCache, err := cache.NewCache(cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()
	logger.Info("connected to Redis")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := repository.New(db)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate database schema", zap.Error(err))
	}
	logger.Info("applied database schema")

	eventBus := events.NewBus(logger)
	clk := clock.New()

	fleetInv := fleet.New(repo, eventBus, logger, cfg.Node.ID)
	if err := fleetInv.Start(ctx); err != nil {
		logger.Fatal("failed to start fleet inventory", zap.Error(err))
	}
	logger.Info("started fleet inventory")

	coord := coordinator.New(fleetInv, eventBus, logger, cfg.Node.ID)
	fleetInv.OnUAVOffline(func(ctx context.Context, failedUAV string) {
		failed, _ := fleetInv.Get(failedUAV)
		candidates := make([]coordinator.Candidate, 0)
		for _, u := range fleetInv.Available() {
			distKM := 0.0
			if failed != nil {
				distKM = geo.HaversineMeters(
					geo.Point{Lat: failed.Lat, Lon: failed.Lon},
					geo.Point{Lat: u.Lat, Lon: u.Lon},
				) / 1000.0
			}
			candidates = append(candidates, coordinator.Candidate{
				UAVID:              u.ID,
				BatteryRatio:       u.Capabilities.BatteryRatio(),
				DistanceToCenterKM: distKM,
			})
		}
		coord.HandleUAVFailure(ctx, failedUAV, candidates)
	})

	strategy := buildAssignerStrategy(cfg.Scheduler, clk)
	retryMgr := retry.NewManager()
	missionSched := mission.New(repo, fleetInv, strategy, retryMgr, coord, eventBus, clk, logger, cfg.Node.ID)
	if err := missionSched.Start(ctx); err != nil {
		logger.Fatal("failed to start mission scheduler", zap.Error(err))
	}
	logger.Info("started mission scheduler", zap.String("strategy", cfg.Scheduler.Strategy))

	viewerBroadcaster := viewer.New(logger, 0, cfg.Telemetry.QueueSize*4, 30*time.Second)
	viewerBroadcaster.Start(ctx)
	logger.Info("started viewer broadcaster")

	ingestSvc := ingest.New(fleetInv, viewerBroadcaster, coord, clk, logger)

	eventRecorder := eventlog.NewRecorder(eventBus, 0)
	eventlog.ForwardToViewer(eventBus, viewerBroadcaster)

	// The consensus node's apply callback forwards every committed log
	// entry to the data-sync layer; the sync layer in turn needs the
	// consensus node (as a datasync.Proposer) to replicate its own
	// operations, so the two are wired through a forward reference.
	var syncer *datasync.Synchronizer
	applyFn := func(ctx context.Context, command []byte) {
		if syncer != nil {
			syncer.Apply(ctx, command)
		}
	}

	rpcTransport := rpctransport.NewGRPCTransport(logger)
	defer rpcTransport.Close()

	raftNode := consensus.New(consensus.Config{
		NodeID:             cfg.Node.ID,
		Peers:              cfg.Raft.Peers,
		ElectionTimeoutMin: cfg.Raft.ElectionTimeoutMin,
		ElectionTimeoutMax: cfg.Raft.ElectionTimeoutMax,
		HeartbeatInterval:  cfg.Raft.HeartbeatInterval,
		SnapshotThreshold:  cfg.Raft.SnapshotThreshold,
	}, rpcTransport, repo, eventBus, clk, logger, applyFn)

	syncer = datasync.New(raftNode, repo, fleetInv, clk, logger, cfg.Node.ID)
	syncer.Start(ctx)
	logger.Info("started data sync layer")

	raftListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Raft.ListenPort))
	if err != nil {
		logger.Fatal("failed to bind raft listener", zap.Error(err))
	}
	raftServer := rpctransport.NewServer(raftNode)
	go func() {
		if err := raftServer.GRPCServer().Serve(raftListener); err != nil {
			logger.Error("raft gRPC server stopped", zap.Error(err))
		}
	}()
	logger.Info("started raft rpc listener", zap.Int("port", cfg.Raft.ListenPort))

	if err := raftNode.Start(ctx); err != nil {
		logger.Fatal("failed to start consensus node", zap.Error(err))
	}
	logger.Info("started consensus node")

	disc := buildDiscovery(cfg.Discovery)
	self := discovery.Peer{ID: cfg.Node.ID, Address: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)}
	if err := disc.Register(ctx, self); err != nil {
		logger.Warn("failed to register with peer discovery", zap.Error(err))
	}

	var crossRegionMgr *crossregion.Manager
	if cfg.CrossRegion.Enabled {
		crossRegionMgr = crossregion.New(cfg.Node.Region, cfg.CrossRegion.BatchSize, cfg.CrossRegion.MaxRetries,
			cfg.CrossRegion.RetryBackoff, cfg.CrossRegion.UnhealthyWindow, cfg.CrossRegion.UnhealthyFailRate, eventBus, logger)
		for _, peer := range cfg.CrossRegion.Peers {
			crossRegionMgr.RegisterRegion(crossregion.RegionConfig{RegionID: peer.RegionID, Endpoint: peer.Endpoint, Enabled: true})
		}
		crossRegionMgr.Start(ctx)
		syncer.SetCrossRegion(crossRegionMgr)
		logger.Info("started cross-region replication", zap.Int("peer_count", len(cfg.CrossRegion.Peers)))
	} else {
		logger.Info("cross-region replication disabled")
	}

	var autoscalerSvc *autoscaler.Autoscaler
	if cfg.Autoscale.Enabled {
		autoscalerSvc = buildAutoscaler(cfg, fleetInv, missionSched, eventBus, logger)
		autoscalerSvc.Start(ctx, func() int {
			peers, err := disc.Discover(ctx)
			if err != nil {
				return 1
			}
			return len(peers) + 1
		})
		logger.Info("started autoscaler")
	} else {
		logger.Info("autoscaler disabled")
	}

	alertStore := alerting.NewStore(10 * time.Minute)
	alertEngine := alerting.NewEngine(alertStore, defaultAlertRules(), eventBus, logger, cfg.Node.ID, cfg.Monitoring.EvalInterval)
	alertEngine.Start(ctx)
	logger.Info("started alert engine")
	go sampleFleetMetrics(ctx, alertStore, fleetInv, viewerBroadcaster, cfg.Monitoring.EvalInterval)

	notifCfg, err := alerting.LoadConfig()
	var notifService *alerting.Service
	if err != nil {
		logger.Warn("disabling notification delivery: invalid configuration", zap.Error(err))
	} else {
		notifService, err = alerting.NewService(notifCfg, db, redisCache, logger, eventBus)
		if err != nil {
			logger.Warn("disabling notification delivery: failed to initialize", zap.Error(err))
			notifService = nil
		}
	}
	if notifService != nil {
		if err := notifService.Start(ctx); err != nil {
			logger.Warn("failed to start notification delivery", zap.Error(err))
			notifService = nil
		} else {
			logger.Info("started notification delivery service")
		}
	}

	apiServer := api.New(api.Config{
		Fleet:       fleetInv,
		Missions:    missionSched,
		Coordinator: coord,
		Ingest:      ingestSvc,
		Repo:        repo,
		Viewer:      viewerBroadcaster,
		Raft:        raftNode,
		Sync:        syncer,
		Discovery:   disc,
		CrossRegion: crossRegionMgr,
		Autoscaler:  autoscalerSvc,
		AlertStore:  alertStore,
		AlertEngine: alertEngine,
		Events:      eventRecorder,
		Clock:       clk,
		Logger:      logger,
		NodeID:      cfg.Node.ID,
	})

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				apiServer.RefreshFleetMetrics()
				apiServer.RefreshMissionMetrics()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if notifService != nil {
		if err := notifService.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop notification delivery gracefully", zap.Error(err))
		}
	}
	if autoscalerSvc != nil {
		autoscalerSvc.Stop()
	}
	if crossRegionMgr != nil {
		crossRegionMgr.Stop()
	}
	alertEngine.Stop()
	_ = disc.Deregister(shutdownCtx, self)
	raftServer.GRPCServer().GracefulStop()
	raftNode.Stop()
	syncer.Stop()
	viewerBroadcaster.Stop()
	missionSched.Stop()
	fleetInv.Stop()
	cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// buildAssignerStrategy selects a C6 assignment strategy by configuration,
// the way the teacher's scheduler picks its scheduling strategy.
func buildAssignerStrategy(cfg config.SchedulerConfig, clk *clock.Clock) assigner.Strategy {
	switch cfg.Strategy {
	case "proximity":
		return assigner.ProximityStrategy{}
	case "genetic":
		return assigner.GeneticStrategy{Clock: clk, Generations: cfg.GeneticGenerations, PopulationSize: cfg.GeneticPopulation}
	case "pso":
		return assigner.PSOStrategy{Clock: clk, Iterations: cfg.PSOIterations, Particles: cfg.PSOParticles}
	case "nsga2":
		return assigner.NSGA2Strategy{Objectives: []assigner.ObjectiveWeight{
			{Objective: assigner.ObjectiveMaximizeBattery, Weight: 0.4},
			{Objective: assigner.ObjectiveMinimizeTime, Weight: 0.3},
			{Objective: assigner.ObjectiveMaximizeCoverage, Weight: 0.3},
		}}
	default:
		return assigner.GreedyStrategy{}
	}
}

// buildDiscovery selects a peer discovery backend by configuration.
func buildDiscovery(cfg config.DiscoveryConfig) discovery.Discovery {
	switch cfg.Type {
	case "consul":
		return discovery.NewConsul(cfg.ConsulAddr)
	case "etcd":
		return discovery.NewEtcd(firstOrDefault(cfg.EtcdEndpoints, "http://localhost:2379"), "/clustercenter/peers/")
	default:
		peers := make([]discovery.Peer, 0, len(cfg.StaticPeers))
		for _, addr := range cfg.StaticPeers {
			peers = append(peers, discovery.Peer{ID: addr, Address: addr})
		}
		return discovery.NewStatic(peers)
	}
}

func firstOrDefault(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

// buildAutoscaler wires C14 to this node's fleet as the source of load
// samples. Scale-up/down are advisory only here: this control plane does
// not itself provision control-plane replicas, so the callbacks log the
// decision for an external operator/orchestrator to act on.
func buildAutoscaler(cfg *config.Config, fleetInv *fleet.Inventory, missionSched *mission.Scheduler, bus *events.Bus, logger *zap.Logger) *autoscaler.Autoscaler {
	policy := autoscaler.Policy{
		MinNodes:           cfg.Autoscale.MinNodes,
		MaxNodes:           cfg.Autoscale.MaxNodes,
		ScaleUpThreshold:   cfg.Autoscale.ScaleUpThreshold,
		ScaleDownThreshold: cfg.Autoscale.ScaleDownThreshold,
		ScaleUpCooldown:    cfg.Autoscale.ScaleUpCooldown,
		ScaleDownCooldown:  cfg.Autoscale.ScaleDownCooldown,
		WindowSize:         cfg.Autoscale.WindowSize,
	}
	getMetrics := func(ctx context.Context) []autoscaler.NodeMetrics {
		missions := missionSched.List()
		active, pending := 0, 0
		for _, m := range missions {
			switch m.State {
			case models.MissionRunning:
				active++
			case models.MissionPending:
				pending++
			}
		}
		available := len(fleetInv.Available())
		total := len(fleetInv.All())
		utilization := 0.0
		if total > 0 {
			utilization = 100.0 * float64(total-available) / float64(total)
		}
		return []autoscaler.NodeMetrics{{
			NodeID:          cfg.Node.ID,
			CPUPercent:      utilization,
			MemoryPercent:   utilization,
			ActiveMissions:  active,
			PendingMissions: pending,
			Timestamp:       time.Now(),
		}}
	}
	scaleUp := func(ctx context.Context, n int) bool {
		logger.Warn("autoscaler recommends scale up", zap.Int("additional_nodes", n))
		return true
	}
	scaleDown := func(ctx context.Context, nodeIDs []string) bool {
		logger.Warn("autoscaler recommends scale down", zap.Strings("node_ids", nodeIDs))
		return true
	}
	return autoscaler.New(policy, cfg.Autoscale.CheckInterval, getMetrics, scaleUp, scaleDown, bus, logger)
}

// defaultAlertRules are the baseline C15 rules evaluated against the
// metrics sampleFleetMetrics feeds into the store.
func defaultAlertRules() []alerting.Rule {
	return []alerting.Rule{
		{Name: "fleet_low_battery", Metric: "fleet.avg_battery_pct", Comparator: alerting.LessThan, Threshold: 20, Severity: alerting.SeverityWarning},
		{Name: "fleet_critical_battery", Metric: "fleet.avg_battery_pct", Comparator: alerting.LessThan, Threshold: 10, Severity: alerting.SeverityCritical},
		{Name: "viewer_backpressure", Metric: "viewer.dropped_total", Comparator: alerting.GreaterThan, Threshold: 500, Severity: alerting.SeverityWarning},
	}
}

// sampleFleetMetrics periodically records the observations defaultAlertRules
// evaluates against.
func sampleFleetMetrics(ctx context.Context, store *alerting.Store, fleetInv *fleet.Inventory, viewerBroadcaster *viewer.Broadcaster, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			all := fleetInv.All()
			if len(all) > 0 {
				sum := 0.0
				for _, u := range all {
					sum += u.Capabilities.BatteryRatio() * 100
				}
				store.Record("fleet.avg_battery_pct", sum/float64(len(all)), now)
			}
			store.Record("viewer.dropped_total", float64(viewerBroadcaster.DroppedCount()), now)
		}
	}
}
