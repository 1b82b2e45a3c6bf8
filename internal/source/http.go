package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Retry defaults for HTTPSource.
const (
	DefaultMaxRetries      = 4
	DefaultInitialInterval = 250 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
	DefaultRequestTimeout  = 15 * time.Second
)

// maxBodySize bounds a snapshot response.
const maxBodySize = 32 << 20

// APIError represents an error response from the listing service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request is worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPSource pulls a snapshot from the contact-listing service.
type HTTPSource struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithToken sets a bearer token sent on every request.
func WithToken(token string) HTTPOption {
	return func(s *HTTPSource) { s.token = token }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.httpClient = c }
}

// WithRetry sets the retry budget and the first backoff interval.
func WithRetry(maxRetries uint64, initial time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.maxRetries = maxRetries
		if initial > 0 {
			s.initialInterval = initial
		}
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(s *HTTPSource) { s.logger = l }
}

// NewHTTPSource creates a source that GETs url.
func NewHTTPSource(url string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		url:             url,
		httpClient:      &http.Client{Timeout: DefaultRequestTimeout},
		logger:          slog.Default(),
		maxRetries:      DefaultMaxRetries,
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements Source.
func (s *HTTPSource) Name() string { return "http" }

// Fetch retries transient failures with exponential backoff. Client errors
// other than 429 and undecodable bodies fail immediately.
func (s *HTTPSource) Fetch(ctx context.Context) ([]model.Contact, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialInterval
	b.MaxInterval = s.maxInterval
	b.MaxElapsedTime = 0

	var contacts []model.Contact
	attempt := 0
	op := func() error {
		attempt++
		body, err := s.get(ctx)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		contacts, err = DecodeJSON(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("source: fetch failed, retrying",
			"url", s.url, "attempt", attempt, "wait", wait, "err", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.maxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", s.url, err)
	}
	return contacts, nil
}

func (s *HTTPSource) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			msg := errResp.Error
			if errResp.Message != "" {
				msg += ": " + errResp.Message
			}
			return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}
