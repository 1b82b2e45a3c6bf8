package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/scene"
)

// maxRequestBody bounds JSON request bodies, snapshots included.
const maxRequestBody = 16 << 20

// viewerHeader names the viewer making a request, for the presence roster.
const viewerHeader = "X-Garden-Viewer"

// NewHTTPHandler returns an http.Handler with all routes registered.
// When an auth token is configured, requests (except GET /v1/health) must
// include a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/snapshot", s.handlePushSnapshot)
	mux.HandleFunc("POST /v1/sync", s.handleSync)
	mux.HandleFunc("GET /v1/scene", s.handleGetScene)
	mux.HandleFunc("GET /v1/scene.svg", s.handleGetSceneSVG)
	mux.HandleFunc("GET /v1/stats", s.handleGetStats)
	mux.HandleFunc("GET /v1/overlay", s.handleGetOverlay)
	mux.HandleFunc("GET /v1/layers", s.handleGetLayers)
	mux.HandleFunc("POST /v1/viewport/{command}", s.handleViewportCommand)
	mux.HandleFunc("GET /v1/viewport", s.handleGetViewport)
	mux.HandleFunc("POST /v1/activate", s.handleActivate)
	mux.HandleFunc("GET /v1/viewers", s.handleViewerRoster)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return LoggingMiddleware(RecoveryMiddleware(AuthMiddleware(s.authToken, mux)))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": s.scene.Generation(),
		"relaxing":   s.scene.Relaxing(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeValidationError writes a 400 with one entry per failed field.
func writeValidationError(w http.ResponseWriter, ve *model.ValidationError) {
	fields := make([]map[string]string, len(ve.Errors))
	for i, fe := range ve.Errors {
		fields[i] = map[string]string{"field": fe.Field, "message": fe.Message}
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  ve.Error(),
		"fields": fields,
	})
}

// writeSceneError maps scene and validation errors onto HTTP statuses.
func writeSceneError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeValidationError(w, ve)
	case errors.Is(err, scene.ErrUnknownNode):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scene.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("server: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// readBody reads a bounded, non-empty request body.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxRequestBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("request body is required")
	}
	return body, nil
}

// decodeRequest reads a JSON body into dst.
func decodeRequest(r *http.Request, dst any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// parseFilter reads category, health and search query parameters. category
// and health accept comma-separated lists.
func parseFilter(r *http.Request) (model.Filter, error) {
	q := r.URL.Query()
	f := model.Filter{
		Category: splitList(q.Get("category")),
		Search:   q.Get("search"),
	}
	for _, raw := range splitList(q.Get("health")) {
		h, err := model.ParseHealth(raw)
		if err != nil {
			return model.Filter{}, err
		}
		f.Health = append(f.Health, h)
	}
	return f, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func viewerName(r *http.Request) string {
	if v := r.Header.Get(viewerHeader); v != "" {
		return v
	}
	return r.URL.Query().Get("viewer")
}
