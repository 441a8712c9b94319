package api

import "net/http"

// The four viewer-stream ingress endpoints below accept an opaque JSON
// payload from an external collaborator (a vision/detection pipeline, a
// mission-planning UI) and fan it straight out to every connected viewer,
// grounded on FalconMindViewer's routers/telemetry.py ingress endpoints of
// the same names. Unlike telemetry ingress these are not validated against
// the data model — they're pass-through broadcast, matching the source.

func (s *Server) ingestSearchArea(w http.ResponseWriter, r *http.Request) {
	s.broadcastIngress(w, r, "search_area")
}

// ingestDetection implements spec.md §6's "register target for tracking":
// an external detector posts a found-target record, broadcast to viewers
// as a `detection` message.
func (s *Server) ingestDetection(w http.ResponseWriter, r *http.Request) {
	s.broadcastIngress(w, r, "detection")
}

func (s *Server) ingestSearchProgress(w http.ResponseWriter, r *http.Request) {
	s.broadcastIngress(w, r, "search_progress")
}

func (s *Server) ingestSearchPath(w http.ResponseWriter, r *http.Request) {
	s.broadcastIngress(w, r, "search_path")
}

func (s *Server) broadcastIngress(w http.ResponseWriter, r *http.Request, kind string) {
	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	s.viewer.BroadcastMissionEvent(kind, payload)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}
