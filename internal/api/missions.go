package api

import (
	"net/http"
	"time"

	"github.com/falconmind/clustercenter/pkg/metrics"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/go-chi/chi/v5"
)

type missionResponse struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	Type           models.MissionType  `json:"type"`
	State          models.MissionState `json:"state"`
	AssignedUAVs   []string            `json:"assigned_uavs,omitempty"`
	Progress       float64             `json:"progress"`
	RequestedUAVs  int                 `json:"requested_uavs,omitempty"`
	DispatchPolicy models.DispatchPolicy `json:"dispatch_policy,omitempty"`
	PreferredUAV   string              `json:"preferred_uav,omitempty"`
	Priority       int                 `json:"priority"`
	Payload        map[string]any      `json:"payload,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func toMissionResponse(m *models.Mission) missionResponse {
	return missionResponse{
		ID:             m.ID,
		Name:           m.Name,
		Description:    m.Description,
		Type:           m.Type,
		State:          m.State,
		AssignedUAVs:   m.AssignedUAVs,
		Progress:       m.Progress,
		RequestedUAVs:  m.RequestedUAVs,
		DispatchPolicy: m.DispatchPolicy,
		PreferredUAV:   m.PreferredUAV,
		Priority:       m.Priority,
		Payload:        m.Payload,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (s *Server) listMissions(w http.ResponseWriter, r *http.Request) {
	all := s.missions.List()
	out := make([]missionResponse, 0, len(all))
	for _, m := range all {
		out = append(out, toMissionResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionID")
	m, err := s.missions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionResponse(m))
}

type createMissionRequest struct {
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	Type           models.MissionType    `json:"type"`
	Priority       int                   `json:"priority,omitempty"`
	RequestedUAVs  int                   `json:"requested_uavs,omitempty"`
	DispatchPolicy models.DispatchPolicy `json:"dispatch_policy,omitempty"`
	PreferredUAV   string                `json:"preferred_uav,omitempty"`
	Payload        map[string]any        `json:"payload,omitempty"`
}

func (s *Server) createMission(w http.ResponseWriter, r *http.Request) {
	var req createMissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	policy := req.DispatchPolicy
	if policy == "" {
		policy = models.DispatchFailOnShortfall
	}
	m := &models.Mission{
		Name:           req.Name,
		Description:    req.Description,
		Type:           req.Type,
		Priority:       req.Priority,
		RequestedUAVs:  req.RequestedUAVs,
		DispatchPolicy: policy,
		PreferredUAV:   req.PreferredUAV,
		Payload:        req.Payload,
	}
	if err := s.missions.Create(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMissionResponse(m))
}

func (s *Server) dispatchMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionID")
	start := time.Now()
	err := s.missions.Dispatch(r.Context(), id)
	if err != nil {
		metrics.RecordMissionDispatch("rejected", time.Since(start).Seconds())
		writeError(w, err)
		return
	}
	metrics.RecordMissionDispatch("dispatched", time.Since(start).Seconds())
	m, err := s.missions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionResponse(m))
}

func (s *Server) pauseMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionID")
	if err := s.missions.Pause(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.respondMission(w, id)
}

func (s *Server) resumeMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionID")
	if err := s.missions.Resume(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.respondMission(w, id)
}

func (s *Server) cancelMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionID")
	if err := s.missions.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.respondMission(w, id)
}

func (s *Server) respondMission(w http.ResponseWriter, id string) {
	m, err := s.missions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionResponse(m))
}

type completeMissionRequest struct {
	Success bool `json:"success"`
}

func (s *Server) completeMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionID")
	var req completeMissionRequest
	_, err := decodeOptionalBody(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.missions.Complete(r.Context(), id, req.Success); err != nil {
		writeError(w, err)
		return
	}
	m, err := s.missions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionResponse(m))
}

func (s *Server) deleteMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionID")
	if err := s.missions.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type progressRequest struct {
	Progress float64 `json:"progress"`
}

func (s *Server) updateMissionProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "missionID")
	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.missions.UpdateProgress(r.Context(), id, req.Progress); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"progress": req.Progress})
}

// RefreshMissionMetrics recomputes the fleet_missions_by_state gauge from
// the live scheduler. Called on a ticker from cmd/server.
func (s *Server) RefreshMissionMetrics() {
	metrics.MissionsByState.Reset()
	for _, m := range s.missions.List() {
		metrics.MissionsByState.WithLabelValues(string(m.State)).Inc()
	}
}
