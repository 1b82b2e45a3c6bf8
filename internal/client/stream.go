package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxEventSize bounds one SSE data line. Overlay frames for large maps are
// the biggest events the server sends.
const maxEventSize = 4 << 20

// Event is one server-sent event from /v1/events/stream.
type Event struct {
	ID    uint64
	Topic string
	Data  json.RawMessage
}

// Events opens the server's event stream and calls fn for each event until
// ctx is cancelled, the server closes the stream, or fn returns an error.
// topics are NATS-style patterns; empty means everything. A non-zero
// lastID replays retained events after it.
func (c *HTTPClient) Events(ctx context.Context, topics []string, lastID uint64, fn func(Event) error) error {
	path := "/v1/events/stream"
	if len(topics) > 0 {
		path += "?topics=" + url.QueryEscape(strings.Join(topics, ","))
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(lastID, 10))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, data)
	}
	err = ReadEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ReadEvents parses an SSE stream. Comment lines (keepalives) are ignored
// and multi-line data fields are joined with newlines.
func ReadEvents(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		evt     Event
		data    []string
		pending bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if pending {
				evt.Data = json.RawMessage(strings.Join(data, "\n"))
				if err := fn(evt); err != nil {
					return err
				}
			}
			evt, data, pending = Event{}, data[:0], false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			if id, err := strconv.ParseUint(value, 10, 64); err == nil {
				evt.ID = id
			}
		case "event":
			evt.Topic = value
		case "data":
			data = append(data, value)
		default:
			continue
		}
		pending = true
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}
