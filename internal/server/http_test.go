package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/overlay"
	"github.com/alfredjeanlab/garden/internal/scene"
	"github.com/alfredjeanlab/garden/internal/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	contacts []model.Contact
	err      error
	calls    atomic.Int32
}

func (f *fakeSource) Fetch(context.Context) ([]model.Contact, error) {
	f.calls.Add(1)
	return f.contacts, f.err
}

func (f *fakeSource) Name() string { return "fake" }

func newTestServer(t *testing.T, opts Options) (*Server, http.Handler) {
	t.Helper()
	srv := New(opts)
	cfg := scene.Config{Relax: scene.RelaxManual}
	srv.Bind(&cfg)
	sc, err := scene.New(cfg)
	if err != nil {
		t.Fatalf("scene.New: %v", err)
	}
	t.Cleanup(func() { sc.Close() })
	srv.Attach(sc)
	return srv, srv.NewHTTPHandler()
}

func testContacts() []model.Contact {
	return []model.Contact{
		{ID: "ada", Name: "Ada", Category: "family", Recency: model.Float(0.9), Frequency: model.Float(0.9)},
		{ID: "ben", Name: "Ben", Category: "friends", Recency: model.Float(0.5), Frequency: model.Float(0.4)},
		{ID: "cy", Name: "Cy", Category: "work", Recency: model.Float(0.05), Frequency: model.Float(0.05)},
	}
}

func loadTestScene(t *testing.T, srv *Server) {
	t.Helper()
	if _, err := srv.LoadSnapshot(context.Background(), testContacts(), "test"); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	srv.Scene().Settle()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v; body: %s", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status     string `json:"status"`
		Generation uint64 `json:"generation"`
		Relaxing   bool   `json:"relaxing"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" {
		t.Fatalf("expected status=ok, got %q", resp.Status)
	}
	if resp.Generation != 1 {
		t.Fatalf("expected generation=1, got %d", resp.Generation)
	}
	if resp.Relaxing {
		t.Error("expected a settled scene not to report relaxing")
	}
}

func TestHandleHealth_ReportsRelaxation(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	if _, err := srv.LoadSnapshot(context.Background(), testContacts(), "test"); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	rec := doRequest(t, h, http.MethodGet, "/v1/health", "")
	var resp struct {
		Relaxing bool `json:"relaxing"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Relaxing {
		t.Error("expected relaxing=true before the layout settles")
	}
}

func TestHandlePushSnapshot(t *testing.T) {
	srv, h := newTestServer(t, Options{})

	body := `{"contacts":[{"id":"a","name":"A","category":"family","recency":0.8,"frequency":0.7},
		{"id":"b","name":"B","days_since_contact":3,"messages_per_day":1.5}]}`
	rec := doRequest(t, h, http.MethodPost, "/v1/snapshot", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Generation uint64 `json:"generation"`
		Nodes      int    `json:"nodes"`
	}
	decodeBody(t, rec, &resp)
	if resp.Generation != 1 || resp.Nodes != 2 {
		t.Fatalf("expected generation=1 nodes=2, got %+v", resp)
	}
	if got := len(srv.Scene().Nodes(model.Filter{})); got != 2 {
		t.Fatalf("expected 2 nodes in scene, got %d", got)
	}
}

func TestHandlePushSnapshot_Errors(t *testing.T) {
	_, h := newTestServer(t, Options{})

	for _, tc := range []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"bad json", "{not json"},
		{"service failure", `{"success":false,"error":"upstream down"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/v1/snapshot", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d; body: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlePushSnapshot_ValidationFields(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodPost, "/v1/snapshot", `[{"id":"x","name":"X"},{"id":"x","name":"Y"}]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error  string `json:"error"`
		Fields []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"fields"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "contacts[1].id" {
		t.Fatalf("expected one error on contacts[1].id, got %+v", resp.Fields)
	}
	// The previous snapshot stays loaded.
	if gen := srv.Scene().Generation(); gen != 1 {
		t.Fatalf("expected generation to stay 1, got %d", gen)
	}
}

func TestHandleSync(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		_, h := newTestServer(t, Options{})
		rec := doRequest(t, h, http.MethodPost, "/v1/sync", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("ok", func(t *testing.T) {
		src := &fakeSource{contacts: testContacts()}
		srv, h := newTestServer(t, Options{Source: src})
		rec := doRequest(t, h, http.MethodPost, "/v1/sync", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
		}
		if got := len(srv.Scene().Nodes(model.Filter{})); got != 3 {
			t.Fatalf("expected 3 nodes, got %d", got)
		}
		if src.calls.Load() != 1 {
			t.Fatalf("expected 1 fetch, got %d", src.calls.Load())
		}
	})

	t.Run("upstream error", func(t *testing.T) {
		src := &fakeSource{err: &source.APIError{StatusCode: 503, Message: "unavailable"}}
		srv, h := newTestServer(t, Options{Source: src})
		rec := doRequest(t, h, http.MethodPost, "/v1/sync", "")
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		if gen := srv.Scene().Generation(); gen != 0 {
			t.Fatalf("expected nothing loaded, got generation %d", gen)
		}
	})

	t.Run("fetch error", func(t *testing.T) {
		src := &fakeSource{err: errors.New("connection refused")}
		_, h := newTestServer(t, Options{Source: src})
		rec := doRequest(t, h, http.MethodPost, "/v1/sync", "")
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
	})
}

func TestHandleGetScene(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodGet, "/v1/scene", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp model.SceneResponse
	decodeBody(t, rec, &resp)
	if resp.Generation != 1 {
		t.Fatalf("expected generation=1, got %d", resp.Generation)
	}
	if len(resp.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(resp.Nodes))
	}
	if len(resp.Edges) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(resp.Edges))
	}
	if resp.Stats == nil || resp.Stats.Total != 3 {
		t.Fatalf("expected stats total=3, got %+v", resp.Stats)
	}
}

func TestHandleGetScene_Filter(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodGet, "/v1/scene?category=family,work", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp model.SceneResponse
	decodeBody(t, rec, &resp)
	if len(resp.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(resp.Nodes))
	}
	for _, n := range resp.Nodes {
		if n.Category != "family" && n.Category != "work" {
			t.Fatalf("unexpected category %q", n.Category)
		}
	}
	if len(resp.Edges) != 2 {
		t.Fatalf("expected edges to follow the filter, got %d", len(resp.Edges))
	}
	if resp.Stats.Total != 3 {
		t.Fatalf("expected stats over the whole scene, got total=%d", resp.Stats.Total)
	}

	// Filtering by a node's own health always keeps that node.
	ada := srv.Scene().Nodes(model.Filter{Search: "ada"})
	if len(ada) != 1 {
		t.Fatalf("expected search to find ada, got %d", len(ada))
	}
	rec = doRequest(t, h, http.MethodGet, "/v1/scene?health="+string(ada[0].Health), "")
	decodeBody(t, rec, &resp)
	found := false
	for _, n := range resp.Nodes {
		if n.Health != ada[0].Health {
			t.Fatalf("expected only %s nodes, got %s", ada[0].Health, n.Health)
		}
		found = found || n.ID == "ada"
	}
	if !found {
		t.Fatal("expected ada in health-filtered scene")
	}
}

func TestHandleGetScene_BadHealth(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodGet, "/v1/scene?health=thriving", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetSceneSVG(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodGet, "/v1/scene.svg", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("expected image/svg+xml, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<svg") {
		t.Fatalf("expected an svg document, got %.80s", body)
	}
	if !strings.Contains(body, "Ada") {
		t.Fatal("expected node labels in the svg")
	}
}

func TestHandleGetStats(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodGet, "/v1/stats", "")
	var stats model.Stats
	decodeBody(t, rec, &stats)
	if stats.Total != 3 {
		t.Fatalf("expected total=3, got %d", stats.Total)
	}
	if stats.ByCategory["friends"] != 1 {
		t.Fatalf("expected friends=1, got %v", stats.ByCategory)
	}
	sum := 0
	for _, n := range stats.ByHealth {
		sum += n
	}
	if sum != 3 {
		t.Fatalf("expected health counts to sum to 3, got %d", sum)
	}
}

func TestHandleGetOverlayAndLayers(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodGet, "/v1/overlay", "")
	var frame overlay.Frame
	decodeBody(t, rec, &frame)
	if frame.Generation != 1 {
		t.Fatalf("expected overlay generation=1, got %d", frame.Generation)
	}
	if len(frame.Targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(frame.Targets))
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/layers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var layers map[string]json.RawMessage
	decodeBody(t, rec, &layers)
	if _, ok := layers["structural"]; !ok {
		t.Fatal("expected structural layer")
	}
	if _, ok := layers["overlay"]; !ok {
		t.Fatal("expected overlay layer")
	}
}

func TestHandleViewportCommands(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	var resp viewportResponse
	rec := doRequest(t, h, http.MethodPost, "/v1/viewport/zoom-in", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &resp)
	if resp.Transform.Scale <= 1 {
		t.Fatalf("expected scale > 1 after zoom-in, got %g", resp.Transform.Scale)
	}
	if resp.Version != 1 {
		t.Fatalf("expected version=1, got %d", resp.Version)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/viewport/pan", `{"dx":10,"dy":-5}`)
	before := resp.Transform
	decodeBody(t, rec, &resp)
	if resp.Transform.X != before.X+10 || resp.Transform.Y != before.Y-5 {
		t.Fatalf("expected pan by (10,-5) from %+v, got %+v", before, resp.Transform)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/viewport/reset", "")
	decodeBody(t, rec, &resp)
	if resp.Transform.Scale != 1 {
		t.Fatalf("expected scale=1 after reset, got %g", resp.Transform.Scale)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/viewport/resize", `{"width":400,"height":300}`)
	decodeBody(t, rec, &resp)
	if resp.Config.Width != 400 || resp.Config.Height != 300 {
		t.Fatalf("expected 400x300, got %gx%g", resp.Config.Width, resp.Config.Height)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/viewport", "")
	var got viewportResponse
	decodeBody(t, rec, &got)
	if got.Version != resp.Version {
		t.Fatalf("expected GET to report version %d, got %d", resp.Version, got.Version)
	}
}

func TestHandleViewportCommand_Errors(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	if rec := doRequest(t, h, http.MethodPost, "/v1/viewport/spin", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown command, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/v1/viewport/pan", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing pan body, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/v1/viewport/zoom", "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad zoom body, got %d", rec.Code)
	}
}

func TestHandleViewportCommand_ClampsAtMaxZoom(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	var resp viewportResponse
	for range 20 {
		decodeBody(t, doRequest(t, h, http.MethodPost, "/v1/viewport/zoom-in", ""), &resp)
	}
	if resp.Transform.Scale != resp.Config.MaxZoom {
		t.Fatalf("expected scale clamped to %g, got %g", resp.Config.MaxZoom, resp.Transform.Scale)
	}
	version := resp.Version
	decodeBody(t, doRequest(t, h, http.MethodPost, "/v1/viewport/zoom-in", ""), &resp)
	if resp.Version != version {
		t.Fatalf("expected no version change at the clamp, got %d -> %d", version, resp.Version)
	}
}

func TestHandleActivate(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	rec := doRequest(t, h, http.MethodPost, "/v1/activate", `{"id":"ben"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["id"] != "ben" {
		t.Fatalf("expected id=ben, got %q", resp["id"])
	}

	if rec := doRequest(t, h, http.MethodPost, "/v1/activate", `{"id":"nobody"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/v1/activate", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without id or point, got %d", rec.Code)
	}
}

func TestHandleActivate_ByPoint(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	var target overlay.Target
	for _, tg := range srv.Scene().Overlay().Targets {
		if tg.ID == "cy" {
			target = tg
		}
	}
	if target.ID == "" {
		t.Fatal("expected a hit target for cy")
	}

	body, _ := json.Marshal(map[string]float64{"x": target.X, "y": target.Y})
	rec := doRequest(t, h, http.MethodPost, "/v1/activate", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["id"] != "cy" {
		t.Fatalf("expected id=cy, got %q", resp["id"])
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/activate", `{"x":-100000,"y":-100000}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty space, got %d", rec.Code)
	}
}

func TestHandleViewerRoster(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/v1/viewport/zoom-out", nil)
	req.Header.Set(viewerHeader, "wall-display")
	h.ServeHTTP(httptest.NewRecorder(), req)
	doRequest(t, h, http.MethodPost, "/v1/activate?viewer=phone", `{"id":"ada"}`)

	rec := doRequest(t, h, http.MethodGet, "/v1/viewers", "")
	var resp struct {
		Viewers []struct {
			Viewer     string `json:"viewer"`
			LastAction string `json:"last_action"`
		} `json:"viewers"`
		Streams int `json:"streams"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Viewers) != 2 {
		t.Fatalf("expected 2 viewers, got %d", len(resp.Viewers))
	}
	actions := map[string]string{}
	for _, v := range resp.Viewers {
		actions[v.Viewer] = v.LastAction
	}
	if actions["wall-display"] != "viewport.zoom-out" {
		t.Fatalf("expected wall-display last action viewport.zoom-out, got %q", actions["wall-display"])
	}
	if actions["phone"] != "activate" {
		t.Fatalf("expected phone last action activate, got %q", actions["phone"])
	}
	if resp.Streams != 0 {
		t.Fatalf("expected 0 streams, got %d", resp.Streams)
	}
}

func TestHandler_AuthToken(t *testing.T) {
	srv, h := newTestServer(t, Options{AuthToken: "secret"})
	loadTestScene(t, srv)

	if rec := doRequest(t, h, http.MethodGet, "/v1/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected health to be exempt, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/v1/scene", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/scene", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with the token, got %d", rec.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	srv, h := newTestServer(t, Options{})
	loadTestScene(t, srv)
	doRequest(t, h, http.MethodPost, "/v1/activate", `{"id":"ada"}`)
	doRequest(t, h, http.MethodPost, "/v1/viewport/zoom-in", "")

	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`garden_snapshots_loaded_total{source="test"} 1`,
		"garden_snapshot_nodes 3",
		"garden_activations_total 1",
		"garden_viewport_changes_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestReadBody_TooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("x"), maxRequestBody+1)
	req := httptest.NewRequest(http.MethodPost, "/v1/snapshot", bytes.NewReader(big))
	if _, err := readBody(req); err == nil {
		t.Fatal("expected an error for an oversized body")
	}
}
