package api

import (
	"net/http"
	"strconv"

	"github.com/falconmind/clustercenter/internal/coordinator"
	"github.com/falconmind/clustercenter/pkg/errs"
)

type loadBalanceRequest struct {
	Loads map[string]struct {
		ActiveMissions int     `json:"active_missions"`
		Workload       float64 `json:"workload"`
		SampleMission  string  `json:"sample_mission"`
	} `json:"loads"`
}

// loadBalance surfaces C7's non-binding rebalancing suggestion for the
// given per-UAV load snapshot. The caller applies it, if at all.
func (s *Server) loadBalance(w http.ResponseWriter, r *http.Request) {
	var req loadBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	loads := make(map[string]struct {
		ActiveMissions int
		Workload       float64
		SampleMission  string
	}, len(req.Loads))
	for uavID, l := range req.Loads {
		loads[uavID] = struct {
			ActiveMissions int
			Workload       float64
			SampleMission  string
		}{ActiveMissions: l.ActiveMissions, Workload: l.Workload, SampleMission: l.SampleMission}
	}

	suggestion, ok := coordinator.LoadBalance(loads)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"suggested": false})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Suggested bool                          `json:"suggested"`
		Suggestion coordinator.LoadSuggestion   `json:"suggestion"`
	}{Suggested: true, Suggestion: suggestion})
}

func (s *Server) activeAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alertEngine == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.alertEngine.Active())
}

func (s *Server) consensusStatus(w http.ResponseWriter, r *http.Request) {
	if s.raft == nil {
		writeError(w, errs.NewNotFound("CONSENSUS_DISABLED", "raft consensus is not enabled on this node"))
		return
	}
	writeJSON(w, http.StatusOK, s.raft.Status())
}

func (s *Server) autoscalerStats(w http.ResponseWriter, r *http.Request) {
	if s.autoscaler == nil {
		writeError(w, errs.NewNotFound("AUTOSCALER_DISABLED", "autoscaling is not enabled on this node"))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Stats   interface{} `json:"stats"`
		History interface{} `json:"history"`
	}{Stats: s.autoscaler.Statistics(), History: s.autoscaler.History(50)})
}

func (s *Server) crossRegionStatus(w http.ResponseWriter, r *http.Request) {
	if s.crossregion == nil {
		writeError(w, errs.NewNotFound("CROSS_REGION_DISABLED", "cross-region replication is not enabled on this node"))
		return
	}
	writeJSON(w, http.StatusOK, s.crossregion.Status())
}

// listEvents implements spec.md §6's "list system events", serving the
// most recent entries recorded off the fleet/mission/coordination/
// alerting event bus. ?limit=N caps the count (default: every retained
// event, up to the recorder's ring capacity).
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.events.Recent(limit))
}

// retryStats exposes the mission scheduler's §4.14 per-error-class retry
// counters at /api/v1/admin/retry-stats.
func (s *Server) retryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.missions.RetryStats())
}

func (s *Server) listPeers(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	peers, err := s.discovery.Discover(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}
