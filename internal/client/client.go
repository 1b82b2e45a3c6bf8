// Package client provides a transport-agnostic interface for a garden server
// and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/overlay"
	"github.com/alfredjeanlab/garden/internal/presence"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

// GardenClient is the interface the gd CLI uses to drive a running server.
type GardenClient interface {
	// Snapshots
	PushSnapshot(ctx context.Context, contacts []model.Contact) (*LoadResponse, error)
	Sync(ctx context.Context) (uint64, error)

	// Scene
	Scene(ctx context.Context, filter model.Filter) (*model.SceneResponse, error)
	SceneSVG(ctx context.Context) ([]byte, error)
	Stats(ctx context.Context) (*model.Stats, error)
	Overlay(ctx context.Context) (*overlay.Frame, error)

	// Viewport
	Viewport(ctx context.Context) (*ViewportState, error)
	ViewportCommand(ctx context.Context, command string, args any) (*ViewportState, error)

	// Activation
	Activate(ctx context.Context, id string) (string, error)
	ActivateAt(ctx context.Context, x, y float64) (string, error)

	// Viewers
	Viewers(ctx context.Context) (*ViewersResponse, error)

	// Events
	Events(ctx context.Context, topics []string, lastID uint64, fn func(Event) error) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// LoadResponse is the response from PushSnapshot.
type LoadResponse struct {
	Generation uint64 `json:"generation"`
	Nodes      int    `json:"nodes"`
}

// ViewportState reports the viewport after a command.
type ViewportState struct {
	Transform viewport.Transform `json:"transform"`
	Version   uint64             `json:"version"`
	Config    viewport.Config    `json:"config"`
}

// ViewersResponse is the response from Viewers.
type ViewersResponse struct {
	Viewers []presence.Entry `json:"viewers"`
	Streams int              `json:"streams"`
}

// PanArgs are the arguments of the "pan" viewport command.
type PanArgs struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// ZoomArgs are the arguments of the "zoom" viewport command.
type ZoomArgs struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Factor float64 `json:"factor"`
}

// ResizeArgs are the arguments of the "resize" viewport command.
type ResizeArgs struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
