// Package api implements the operator-facing HTTP surface: mission and
// UAV CRUD/lifecycle, cluster mission splitting, telemetry ingress, the
// viewer websocket, and read-only status for consensus/autoscaler/
// cross-region/alerting. It is the replacement for the teacher's
// internal/gateway package, keeping gateway's security middleware and
// chi/cors wiring but mounting fleet-domain routes instead of
// inference/billing ones.
package api

import (
	"net/http"
	"time"

	"github.com/falconmind/clustercenter/internal/alerting"
	"github.com/falconmind/clustercenter/internal/autoscaler"
	"github.com/falconmind/clustercenter/internal/consensus"
	"github.com/falconmind/clustercenter/internal/coordinator"
	"github.com/falconmind/clustercenter/internal/crossregion"
	"github.com/falconmind/clustercenter/internal/datasync"
	"github.com/falconmind/clustercenter/internal/discovery"
	"github.com/falconmind/clustercenter/internal/eventlog"
	"github.com/falconmind/clustercenter/internal/fleet"
	"github.com/falconmind/clustercenter/internal/gateway"
	"github.com/falconmind/clustercenter/internal/ingest"
	"github.com/falconmind/clustercenter/internal/mission"
	"github.com/falconmind/clustercenter/internal/repository"
	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// WebsocketHandler is the subset of internal/viewer.Broadcaster the API
// needs to mount the viewer endpoint and forward ingress messages to
// subscribers, kept narrow so this package never imports nhooyr.io/websocket
// directly.
type WebsocketHandler interface {
	http.Handler
	BroadcastMissionEvent(eventType string, payload interface{})
}

// Server holds every control-plane component the operator API fronts.
type Server struct {
	fleet       *fleet.Inventory
	missions    *mission.Scheduler
	coordinator *coordinator.Coordinator
	ingest      *ingest.Service
	repo        *repository.Repository
	viewer      WebsocketHandler
	raft        *consensus.Node
	sync        *datasync.Synchronizer
	discovery   discovery.Discovery
	crossregion *crossregion.Manager // nil if disabled
	autoscaler  *autoscaler.Autoscaler // nil if disabled
	alertStore  *alerting.Store
	alertEngine *alerting.Engine
	events      *eventlog.Recorder
	clock       *clock.Clock
	logger      *zap.Logger
	nodeID      string
}

// Config bundles Server's dependencies.
type Config struct {
	Fleet       *fleet.Inventory
	Missions    *mission.Scheduler
	Coordinator *coordinator.Coordinator
	Ingest      *ingest.Service
	Repo        *repository.Repository
	Viewer      WebsocketHandler
	Raft        *consensus.Node
	Sync        *datasync.Synchronizer
	Discovery   discovery.Discovery
	CrossRegion *crossregion.Manager
	Autoscaler  *autoscaler.Autoscaler
	AlertStore  *alerting.Store
	AlertEngine *alerting.Engine
	Events      *eventlog.Recorder
	Clock       *clock.Clock
	Logger      *zap.Logger
	NodeID      string
}

// New creates an API Server.
func New(cfg Config) *Server {
	return &Server{
		fleet:       cfg.Fleet,
		missions:    cfg.Missions,
		coordinator: cfg.Coordinator,
		ingest:      cfg.Ingest,
		repo:        cfg.Repo,
		viewer:      cfg.Viewer,
		raft:        cfg.Raft,
		sync:        cfg.Sync,
		discovery:   cfg.Discovery,
		crossregion: cfg.CrossRegion,
		autoscaler:  cfg.Autoscaler,
		alertStore:  cfg.AlertStore,
		alertEngine: cfg.AlertEngine,
		events:      cfg.Events,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		nodeID:      cfg.NodeID,
	}
}

// Router builds the full chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestMetrics)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(gateway.SecurityMiddleware(gateway.DefaultSecurityConfig()))
	r.Use(gateway.APISecurityMiddleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/viewer/ws", s.viewer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/uavs", func(r chi.Router) {
			r.Get("/", s.listUAVs)
			r.Post("/", s.registerUAV)
			r.Get("/{uavID}", s.getUAV)
			r.Post("/{uavID}/register", s.registerUAVByID)
			r.Post("/{uavID}/status", s.setUAVStatus)
		})

		r.Post("/telemetry/{uavID}", s.ingestTelemetry)

		r.Route("/missions", func(r chi.Router) {
			r.Get("/", s.listMissions)
			r.Post("/", s.createMission)
			r.Get("/{missionID}", s.getMission)
			r.Delete("/{missionID}", s.deleteMission)
			r.Post("/{missionID}/dispatch", s.dispatchMission)
			r.Post("/{missionID}/pause", s.pauseMission)
			r.Post("/{missionID}/resume", s.resumeMission)
			r.Post("/{missionID}/cancel", s.cancelMission)
			r.Post("/{missionID}/complete", s.completeMission)
			r.Patch("/{missionID}/progress", s.updateMissionProgress)
		})

		r.Route("/clusters", func(r chi.Router) {
			r.Get("/", s.listClusters)
			r.Post("/", s.createCluster)
			r.Get("/{clusterID}", s.getCluster)
			r.Get("/{clusterID}/progress", s.clusterProgress)
		})

		r.Route("/ingress", func(r chi.Router) {
			r.Post("/search_area", s.ingestSearchArea)
			r.Post("/detection", s.ingestDetection)
			r.Post("/search_progress", s.ingestSearchProgress)
			r.Post("/search_path", s.ingestSearchPath)
		})

		r.Post("/coordinator/load-balance", s.loadBalance)
		r.Get("/alerts/active", s.activeAlerts)
		r.Get("/events", s.listEvents)
		r.Get("/consensus/status", s.consensusStatus)
		r.Get("/autoscaler/stats", s.autoscalerStats)
		r.Get("/crossregion/status", s.crossRegionStatus)
		r.Get("/peers", s.listPeers)
		r.Get("/admin/retry-stats", s.retryStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "node_id": s.nodeID})
}
