package api

import (
	"net/http"

	"github.com/falconmind/clustercenter/internal/splitter"
	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/falconmind/clustercenter/pkg/geo"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/go-chi/chi/v5"
)

// splitStrategy selects which of C5's decomposition algorithms divides the
// cluster mission's polygon among its member sub-missions.
type splitStrategy string

const (
	splitEqualArea          splitStrategy = "equal_area"
	splitCapabilityWeighted splitStrategy = "capability_weighted"
	splitVoronoi            splitStrategy = "voronoi"
)

type createClusterRequest struct {
	Name          string        `json:"name"`
	MissionType   string        `json:"mission_type"`
	Area          models.Area   `json:"area"`
	Count         int           `json:"count"`
	SplitStrategy splitStrategy `json:"split_strategy,omitempty"`
}

type clusterResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	MissionType string   `json:"mission_type"`
	SubMissions []string `json:"sub_missions"`
}

// createCluster splits an Area into sub-areas via C5, creates one PENDING
// sub-mission per sub-area, and persists the grouping as a ClusterMission.
func (s *Server) createCluster(w http.ResponseWriter, r *http.Request) {
	var req createClusterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Area.Vertices) < 3 {
		writeError(w, errs.NewValidation("AREA_INVALID", "area must have at least 3 vertices"))
		return
	}
	if req.Count <= 0 {
		writeError(w, errs.NewValidation("COUNT_INVALID", "count must be positive"))
		return
	}

	subAreas, err := s.splitArea(req)
	if err != nil {
		writeError(w, err)
		return
	}

	cluster := &models.ClusterMission{
		ID:          s.clock.NewID(),
		Name:        req.Name,
		MissionType: req.MissionType,
		Polygon:     req.Area,
		Assignments: make(map[string]models.SubArea),
		CreatedAt:   s.clock.Now(),
	}

	for _, sub := range subAreas {
		m := &models.Mission{
			Name:           req.Name + " sub-mission",
			Type:           models.MissionSingleUAV,
			DispatchPolicy: models.DispatchFailOnShortfall,
			PreferredUAV:   sub.UAVID,
			Payload: map[string]any{
				"cluster_mission_id": cluster.ID,
				"mission_type":       req.MissionType,
				"area":               sub.Area,
			},
		}
		if err := s.missions.Create(r.Context(), m); err != nil {
			writeError(w, err)
			return
		}
		cluster.SubMissions = append(cluster.SubMissions, m.ID)
		cluster.Assignments[m.ID] = sub
	}

	if err := s.repo.PutClusterMission(r.Context(), cluster); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, clusterResponse{ID: cluster.ID, Name: cluster.Name, MissionType: cluster.MissionType, SubMissions: cluster.SubMissions})
}

// splitArea dispatches to the requested C5 decomposition algorithm,
// falling back to equal-area when no strategy or an unrecognised one is
// given. CapabilityWeighted and Voronoi draw their weights/positions from
// the currently available fleet, so an empty fleet falls back to
// equal-area too.
func (s *Server) splitArea(req createClusterRequest) ([]models.SubArea, error) {
	strategy := req.SplitStrategy
	available := s.fleet.Available()

	switch strategy {
	case splitCapabilityWeighted:
		if len(available) == 0 {
			break
		}
		weights := make([]float64, 0, req.Count)
		for i := 0; i < req.Count; i++ {
			u := available[i%len(available)]
			weights = append(weights, splitter.Weight(u.Capabilities.BatteryRatio(), 0))
		}
		out := splitter.CapabilityWeighted(req.Area, weights)
		for i := range out {
			out[i].UAVID = available[i%len(available)].ID
		}
		return out, nil

	case splitVoronoi:
		if len(available) == 0 {
			break
		}
		positions := make([]geo.Point, 0, req.Count)
		weights := make([]float64, 0, req.Count)
		for i := 0; i < req.Count; i++ {
			u := available[i%len(available)]
			positions = append(positions, geo.Point{Lat: u.Lat, Lon: u.Lon})
			weights = append(weights, splitter.Weight(u.Capabilities.BatteryRatio(), 0))
		}
		assignments := splitter.Voronoi(req.Area, positions, weights)
		out := make([]models.SubArea, len(assignments))
		for i, a := range assignments {
			uavID := ""
			if a.UAVIndex >= 0 && a.UAVIndex < len(available) {
				uavID = available[a.UAVIndex].ID
			}
			out[i] = models.SubArea{UAVID: uavID, Area: a.Area}
		}
		return out, nil
	}

	areas := splitter.EqualArea(req.Area, req.Count)
	out := make([]models.SubArea, len(areas))
	for i, a := range areas {
		uavID := ""
		if i < len(available) {
			uavID = available[i].ID
		}
		out[i] = models.SubArea{UAVID: uavID, Area: a}
	}
	return out, nil
}

// listClusters returns every cluster mission known to the repository.
func (s *Server) listClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.repo.ListClusterMissions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clusters)
}

func (s *Server) getCluster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clusterID")
	c, err := s.repo.GetClusterMission(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) clusterProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clusterID")
	writeJSON(w, http.StatusOK, s.coordinator.AggregateClusterProgress(id))
}
