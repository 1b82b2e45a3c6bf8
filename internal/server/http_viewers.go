package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/garden/internal/presence"
)

// handleViewerRoster handles GET /v1/viewers: the clients currently looking
// at the map.
func (s *Server) handleViewerRoster(w http.ResponseWriter, r *http.Request) {
	// Optional stale_threshold_secs query param (default: 30 min).
	staleThreshold := 30 * time.Minute
	if v := r.URL.Query().Get("stale_threshold_secs"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			staleThreshold = time.Duration(secs) * time.Second
		}
	}

	entries := s.presence.Roster(staleThreshold)
	if entries == nil {
		entries = []presence.Entry{}
	}
	streams := 0
	for _, e := range entries {
		streams += e.Streams
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"viewers": entries,
		"streams": streams,
	})
}
