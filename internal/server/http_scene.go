package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/render"
	"github.com/alfredjeanlab/garden/internal/source"
)

// handlePushSnapshot handles POST /v1/snapshot. The body may be any of the
// JSON shapes the snapshot sources accept.
func (s *Server) handlePushSnapshot(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contacts, err := source.DecodeJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	gen, err := s.LoadSnapshot(r.Context(), contacts, "push")
	if err != nil {
		writeSceneError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": gen,
		"nodes":      len(contacts),
	})
}

// handleSync handles POST /v1/sync.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	gen, err := s.Sync(r.Context())
	if err != nil {
		var ve *model.ValidationError
		var apiErr *source.APIError
		switch {
		case errors.Is(err, ErrNoSource):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &ve):
			writeValidationError(w, ve)
		case errors.As(err, &apiErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusBadGateway, "snapshot fetch failed: "+err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"generation": gen})
}

// handleGetScene handles GET /v1/scene. Stats always describe the whole
// node set; filters narrow nodes and edges.
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.scene.Response(filter))
}

// handleGetSceneSVG handles GET /v1/scene.svg.
func (s *Server) handleGetSceneSVG(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := s.scene.WriteSVG(&buf); err != nil {
		writeSceneError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleGetStats handles GET /v1/stats.
func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scene.Stats())
}

// handleGetOverlay handles GET /v1/overlay: the synchronized hit targets in
// screen space.
func (s *Server) handleGetOverlay(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scene.Overlay())
}

// handleGetLayers handles GET /v1/layers: both render layers for clients
// that draw the map themselves.
func (s *Server) handleGetLayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Structural render.StructuralLayer `json:"structural"`
		Overlay    render.OverlayLayer    `json:"overlay"`
	}{
		Structural: s.scene.Structural(),
		Overlay:    s.scene.OverlayLayer(),
	})
}
