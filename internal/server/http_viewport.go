package server

import (
	"net/http"

	"github.com/alfredjeanlab/garden/internal/presence"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

// viewportResponse reports the transform after a command.
type viewportResponse struct {
	Transform viewport.Transform `json:"transform"`
	Version   uint64             `json:"version"`
	Config    viewport.Config    `json:"config"`
}

func (s *Server) viewportState() viewportResponse {
	v := s.scene.Viewport()
	return viewportResponse{Transform: v.Transform(), Version: v.Version(), Config: v.Config()}
}

// handleGetViewport handles GET /v1/viewport.
func (s *Server) handleGetViewport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.viewportState())
}

// handleViewportCommand handles POST /v1/viewport/{command}. Out-of-range
// inputs are clamped or ignored by the tracker, never rejected.
func (s *Server) handleViewportCommand(w http.ResponseWriter, r *http.Request) {
	command := r.PathValue("command")
	switch command {
	case "zoom-in":
		s.scene.ZoomIn()
	case "zoom-out":
		s.scene.ZoomOut()
	case "reset":
		s.scene.ResetToFit()
	case "pan":
		var req struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.scene.Pan(req.DX, req.DY)
	case "zoom":
		var req struct {
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
			Factor float64 `json:"factor"`
		}
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.scene.ZoomAt(req.X, req.Y, req.Factor)
	case "resize":
		var req struct {
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		}
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.scene.Resize(req.Width, req.Height)
	default:
		writeError(w, http.StatusNotFound, "unknown viewport command "+command)
		return
	}
	s.presence.Record(presence.Activity{Viewer: viewerName(r), Action: "viewport." + command, RemoteAddr: r.RemoteAddr})
	writeJSON(w, http.StatusOK, s.viewportState())
}

// handleActivate handles POST /v1/activate with either {"id"} or a screen
// point {"x","y"}.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string   `json:"id"`
		X  *float64 `json:"x"`
		Y  *float64 `json:"y"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := req.ID
	switch {
	case id != "":
		if err := s.scene.Activate(id); err != nil {
			writeSceneError(w, err)
			return
		}
	case req.X != nil && req.Y != nil:
		var err error
		if id, err = s.scene.ActivateAt(*req.X, *req.Y); err != nil {
			writeSceneError(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "id or x and y are required")
		return
	}
	s.presence.Record(presence.Activity{Viewer: viewerName(r), Action: "activate", RemoteAddr: r.RemoteAddr})
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}
