// Package events defines the garden event topics and the publishers and
// subscribers that carry them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/garden/internal/idgen"
	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

// Event topic constants
const (
	TopicNodeActivated   = "garden.node.activated"
	TopicSnapshotLoaded  = "garden.snapshot.loaded"
	TopicViewportChanged = "garden.viewport.changed"
	TopicLayoutSettled   = "garden.layout.settled"

	// Overlay frames are high-rate and only go to local stream clients,
	// never to NATS.
	TopicOverlayFrame = "garden.overlay.frame"
)

// Event types

type NodeActivated struct {
	ID     string       `json:"id"`
	Name   string       `json:"name,omitempty"`
	Health model.Health `json:"health,omitempty"`
}

type SnapshotLoaded struct {
	Generation uint64 `json:"generation"`
	Nodes      int    `json:"nodes"`
	Source     string `json:"source,omitempty"`
}

type ViewportChanged struct {
	Transform viewport.Transform `json:"transform"`
}

type LayoutSettled struct {
	Generation uint64 `json:"generation"`
	Steps      int    `json:"steps"`
}

// Envelope wraps every published event with an id, its topic and a
// timestamp.
type Envelope struct {
	ID    string          `json:"id"`
	Topic string          `json:"topic"`
	At    time.Time       `json:"at"`
	Data  json.RawMessage `json:"data"`
}

// Wrap builds an envelope for event.
func Wrap(topic string, event any) (*Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}
	id, err := idgen.Event()
	if err != nil {
		return nil, err
	}
	return &Envelope{ID: id, Topic: topic, At: time.Now().UTC(), Data: data}, nil
}

// Decode parses an envelope from a raw payload.
func Decode(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Topic == "" {
		return nil, fmt.Errorf("decoding envelope: missing topic")
	}
	return &env, nil
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
