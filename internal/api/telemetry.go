package api

import (
	"net/http"
	"time"

	"github.com/falconmind/clustercenter/internal/ingest"
	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/falconmind/clustercenter/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

type telemetryRequest struct {
	UAVID          string  `json:"uav_id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	AltM           float64 `json:"alt_m"`
	Battery        float64 `json:"battery"`
	GPSFixType     int     `json:"gps_fix_type"`
	SatelliteCount int     `json:"satellite_count"`
	LinkQuality    int     `json:"link_quality"`
	FlightMode     string  `json:"flight_mode"`
	Timestamp      int64   `json:"timestamp"`
}

// ingestTelemetry implements POST /api/v1/telemetry/{id}, the endpoint
// internal/nodeagent's Agent posts readings to.
func (s *Server) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uavID")
	var req telemetryRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.RecordTelemetryIngest("rejected")
		writeError(w, err)
		return
	}
	if req.UAVID == "" {
		req.UAVID = id
	}
	if req.UAVID != id {
		metrics.RecordTelemetryIngest("rejected")
		writeError(w, errs.NewValidation("UAV_ID_MISMATCH", "path and body uav_id disagree"))
		return
	}

	ts := time.Now()
	if req.Timestamp > 0 {
		ts = time.Unix(req.Timestamp, 0).UTC()
	}

	t := ingest.Telemetry{
		UAVID:          req.UAVID,
		Lat:            req.Lat,
		Lon:            req.Lon,
		AltM:           req.AltM,
		BatteryPercent: req.Battery,
		GPSFixType:     req.GPSFixType,
		SatelliteCount: req.SatelliteCount,
		LinkQuality:    req.LinkQuality,
		FlightMode:     req.FlightMode,
		Timestamp:      ts,
	}

	if err := s.ingest.Ingest(r.Context(), t); err != nil {
		metrics.RecordTelemetryIngest("rejected")
		writeError(w, err)
		return
	}
	metrics.RecordTelemetryIngest("accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
