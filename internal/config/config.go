// Package config loads garden settings from the environment and optional
// TOML theme files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr string // GARDEN_HTTP_ADDR (default ":8080")
	NATSURL  string // GARDEN_NATS_URL (optional, empty = no events)

	// AuthToken, when set, is required as a Bearer token on every HTTP
	// request except GET /v1/health.
	AuthToken string // GARDEN_AUTH_TOKEN

	// Stream settings
	OverlayStreamRate float64       // GARDEN_OVERLAY_STREAM_RATE (overlay frames/s per server, default 30)
	ViewerIdleTimeout time.Duration // GARDEN_VIEWER_IDLE_TIMEOUT (default 5m)

	// Snapshot sources
	SnapshotFile  string // GARDEN_SNAPSHOT_FILE (.json, .jsonl, .yaml)
	WatchSnapshot bool   // GARDEN_WATCH_SNAPSHOT (reload the file on change)
	SourceURL     string // GARDEN_SOURCE_URL (contact-listing service)
	SourceToken   string // GARDEN_SOURCE_TOKEN (bearer token for SourceURL)

	// Normalization
	RecencyHorizonDays float64 // GARDEN_RECENCY_HORIZON_DAYS (default 90)
	FrequencyCeiling   float64 // GARDEN_FREQUENCY_CEILING (default 5 msgs/day)

	// Cadences
	FrameInterval time.Duration // GARDEN_FRAME_INTERVAL (default 16ms)
	SyncInterval  time.Duration // GARDEN_SYNC_INTERVAL (default 16ms)

	// Presentation
	Palette       string // GARDEN_PALETTE (default "garden")
	ReducedMotion bool   // GARDEN_REDUCED_MOTION
	ThemeFile     string // GARDEN_THEME_FILE (optional TOML)

	// Activation hook
	OnActivate  string        // GARDEN_ON_ACTIVATE (shell command run on node activation)
	HookTimeout time.Duration // GARDEN_HOOK_TIMEOUT (default 30s)

	// Export settings
	ExportInterval   time.Duration // GARDEN_EXPORT_INTERVAL (default 0 = disabled)
	ExportS3Bucket   string        // GARDEN_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Key      string        // GARDEN_EXPORT_S3_KEY (default "garden/map.svg")
	ExportS3Region   string        // GARDEN_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Endpoint string        // GARDEN_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportFile       string        // GARDEN_EXPORT_FILE (enables file export when set)
}

func Load() (*Config, error) {
	c := &Config{
		HTTPAddr:         envOrDefault("GARDEN_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("GARDEN_NATS_URL"),
		AuthToken:        os.Getenv("GARDEN_AUTH_TOKEN"),
		SnapshotFile:     os.Getenv("GARDEN_SNAPSHOT_FILE"),
		SourceURL:        os.Getenv("GARDEN_SOURCE_URL"),
		SourceToken:      os.Getenv("GARDEN_SOURCE_TOKEN"),
		Palette:          envOrDefault("GARDEN_PALETTE", "garden"),
		ThemeFile:        os.Getenv("GARDEN_THEME_FILE"),
		ExportS3Bucket:   os.Getenv("GARDEN_EXPORT_S3_BUCKET"),
		ExportS3Key:      envOrDefault("GARDEN_EXPORT_S3_KEY", "garden/map.svg"),
		ExportS3Region:   envOrDefault("GARDEN_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint: os.Getenv("GARDEN_EXPORT_S3_ENDPOINT"),
		ExportFile:       os.Getenv("GARDEN_EXPORT_FILE"),
		OnActivate:       os.Getenv("GARDEN_ON_ACTIVATE"),
	}

	var err error
	if c.WatchSnapshot, err = envBool("GARDEN_WATCH_SNAPSHOT"); err != nil {
		return nil, err
	}
	if c.ReducedMotion, err = envBool("GARDEN_REDUCED_MOTION"); err != nil {
		return nil, err
	}
	if c.RecencyHorizonDays, err = envPositiveFloat("GARDEN_RECENCY_HORIZON_DAYS", "90"); err != nil {
		return nil, err
	}
	if c.FrequencyCeiling, err = envPositiveFloat("GARDEN_FREQUENCY_CEILING", "5"); err != nil {
		return nil, err
	}
	if c.FrameInterval, err = envDuration("GARDEN_FRAME_INTERVAL", "16ms"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = envDuration("GARDEN_SYNC_INTERVAL", "16ms"); err != nil {
		return nil, err
	}
	if c.ExportInterval, err = envDuration("GARDEN_EXPORT_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if c.OverlayStreamRate, err = envPositiveFloat("GARDEN_OVERLAY_STREAM_RATE", "30"); err != nil {
		return nil, err
	}
	if c.ViewerIdleTimeout, err = envDuration("GARDEN_VIEWER_IDLE_TIMEOUT", "5m"); err != nil {
		return nil, err
	}
	if c.HookTimeout, err = envDuration("GARDEN_HOOK_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if c.SnapshotFile != "" && c.SourceURL != "" {
		return nil, fmt.Errorf("GARDEN_SNAPSHOT_FILE and GARDEN_SOURCE_URL are mutually exclusive")
	}
	if c.WatchSnapshot && c.SnapshotFile == "" {
		return nil, fmt.Errorf("GARDEN_WATCH_SNAPSHOT requires GARDEN_SNAPSHOT_FILE")
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func envPositiveFloat(key, fallback string) (float64, error) {
	f, err := strconv.ParseFloat(envOrDefault(key, fallback), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if !(f > 0) {
		return 0, fmt.Errorf("%s: must be positive, got %g", key, f)
	}
	return f, nil
}
