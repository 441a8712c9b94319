package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/falconmind/clustercenter/pkg/metrics"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/go-chi/chi/v5"
)

type uavResponse struct {
	ID             string            `json:"id"`
	Status         models.UAVStatus  `json:"status"`
	CurrentMission string            `json:"current_mission,omitempty"`
	Lat            float64           `json:"lat"`
	Lon            float64           `json:"lon"`
	AltM           float64           `json:"alt_m"`
	Capabilities   models.Capabilities `json:"capabilities"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	LastHeartbeat  time.Time         `json:"last_heartbeat"`
}

func toUAVResponse(u *models.UAV) uavResponse {
	return uavResponse{
		ID:             u.ID,
		Status:         u.Status,
		CurrentMission: u.CurrentMission,
		Lat:            u.Lat,
		Lon:            u.Lon,
		AltM:           u.AltM,
		Capabilities:   u.Capabilities,
		Metadata:       u.Metadata,
		LastHeartbeat:  u.LastHeartbeat,
	}
}

func (s *Server) listUAVs(w http.ResponseWriter, r *http.Request) {
	all := s.fleet.All()
	out := make([]uavResponse, 0, len(all))
	for _, u := range all {
		out = append(out, toUAVResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUAV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uavID")
	u, ok := s.fleet.Get(id)
	if !ok {
		writeError(w, errs.NewNotFound("UAV_NOT_FOUND", "uav not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, toUAVResponse(u))
}

type registerUAVRequest struct {
	ID           string              `json:"id"`
	Capabilities models.Capabilities `json:"capabilities"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}

func (s *Server) registerUAV(w http.ResponseWriter, r *http.Request) {
	var req registerUAVRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, errs.NewValidation("UAV_ID_REQUIRED", "id is required"))
		return
	}
	u := &models.UAV{ID: req.ID, Status: models.UAVOnline, Capabilities: req.Capabilities, Metadata: req.Metadata}
	if err := s.fleet.Register(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUAVResponse(u))
}

// registerUAVByID mirrors the node agent's POST /api/v1/uavs/{id}/register
// call: the id in the path is authoritative, the body is an optional hint.
func (s *Server) registerUAVByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uavID")
	var req registerUAVRequest
	body, err := decodeOptionalBody(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	u := &models.UAV{ID: id, Status: models.UAVOnline}
	if body {
		u.Capabilities = req.Capabilities
		u.Metadata = req.Metadata
	}
	if err := s.fleet.Register(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUAVResponse(u))
}

type statusRequest struct {
	Status models.UAVStatus `json:"status"`
}

func (s *Server) setUAVStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uavID")
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.fleet.SetStatus(r.Context(), id, req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}

// decodeOptionalBody decodes a request body if present, reporting whether
// any body was supplied. An empty body (common for the node agent's
// deregister POST) is not an error.
func decodeOptionalBody(r *http.Request, dst interface{}) (bool, error) {
	if r.ContentLength == 0 {
		return false, nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return false, errs.NewValidation("MALFORMED_BODY", err.Error())
	}
	return true, nil
}

// RefreshFleetMetrics recomputes the fleet_uav_count gauge from the live
// inventory. Called on a ticker from cmd/server rather than per-request,
// since it's a full fleet scan.
func (s *Server) RefreshFleetMetrics() {
	metrics.FleetSize.Reset()
	for _, u := range s.fleet.All() {
		metrics.FleetSize.WithLabelValues(string(u.Status)).Inc()
	}
}
