package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/overlay"
)

// HTTPClient implements GardenClient using the garden HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	viewer     string
	httpClient *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *HTTPClient) { c.token = token }
}

// WithViewer names the client in the server's viewer roster.
func WithViewer(name string) Option {
	return func(c *HTTPClient) { c.viewer = name }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Snapshots ---

func (c *HTTPClient) PushSnapshot(ctx context.Context, contacts []model.Contact) (*LoadResponse, error) {
	body := map[string]any{"contacts": contacts}
	var resp LoadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/snapshot", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Sync(ctx context.Context) (uint64, error) {
	var resp struct {
		Generation uint64 `json:"generation"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sync", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Generation, nil
}

// --- Scene ---

func (c *HTTPClient) Scene(ctx context.Context, filter model.Filter) (*model.SceneResponse, error) {
	q := url.Values{}
	if len(filter.Category) > 0 {
		q.Set("category", strings.Join(filter.Category, ","))
	}
	if len(filter.Health) > 0 {
		hs := make([]string, len(filter.Health))
		for i, h := range filter.Health {
			hs[i] = string(h)
		}
		q.Set("health", strings.Join(hs, ","))
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}

	path := "/v1/scene"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp model.SceneResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) SceneSVG(ctx context.Context) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/scene.svg", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := c.doJSON(ctx, http.MethodGet, "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *HTTPClient) Overlay(ctx context.Context) (*overlay.Frame, error) {
	var frame overlay.Frame
	if err := c.doJSON(ctx, http.MethodGet, "/v1/overlay", nil, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// --- Viewport ---

func (c *HTTPClient) Viewport(ctx context.Context) (*ViewportState, error) {
	var state ViewportState
	if err := c.doJSON(ctx, http.MethodGet, "/v1/viewport", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ViewportCommand sends zoom-in, zoom-out, reset, pan, zoom or resize. args
// is nil for the first three.
func (c *HTTPClient) ViewportCommand(ctx context.Context, command string, args any) (*ViewportState, error) {
	var state ViewportState
	if err := c.doJSON(ctx, http.MethodPost, "/v1/viewport/"+url.PathEscape(command), args, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// --- Activation ---

func (c *HTTPClient) Activate(ctx context.Context, id string) (string, error) {
	return c.activate(ctx, map[string]string{"id": id})
}

func (c *HTTPClient) ActivateAt(ctx context.Context, x, y float64) (string, error) {
	return c.activate(ctx, map[string]float64{"x": x, "y": y})
}

func (c *HTTPClient) activate(ctx context.Context, body any) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/activate", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// --- Viewers ---

func (c *HTTPClient) Viewers(ctx context.Context) (*ViewersResponse, error) {
	var resp ViewersResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/viewers", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	// Fields lists per-field validation failures, when the server sent them.
	Fields []FieldError
}

// FieldError is one rejected snapshot field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func apiError(status int, body []byte) error {
	var errResp struct {
		Error  string       `json:"error"`
		Fields []FieldError `json:"fields"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Message: errResp.Error, Fields: errResp.Fields}
	}
	return &APIError{StatusCode: status, Message: string(body)}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.viewer != "" {
		req.Header.Set("X-Garden-Viewer", c.viewer)
	}
	return req, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
