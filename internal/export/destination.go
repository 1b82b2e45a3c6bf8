package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Destination is a target for a rendered map.
type Destination interface {
	// Write stores the encoded map, replacing any previous export.
	Write(ctx context.Context, data []byte) error
	// String names the destination in logs and metrics.
	String() string
}

// Target is where a one-off export goes, parsed from a command-line argument.
type Target struct {
	Stdout bool
	Bucket string
	Key    string
	Path   string
}

// ParseTarget accepts "-" for stdout, "s3://bucket/key", or a file path.
func ParseTarget(s string) (Target, error) {
	switch {
	case s == "" || s == "-":
		return Target{Stdout: true}, nil
	case strings.HasPrefix(s, "s3://"):
		rest := strings.TrimPrefix(s, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Target{}, fmt.Errorf("invalid s3 target %q (want s3://bucket/key)", s)
		}
		return Target{Bucket: bucket, Key: key}, nil
	default:
		return Target{Path: s}, nil
	}
}

// Name is the object key or file path, used to pick a format.
func (t Target) Name() string {
	if t.Key != "" {
		return t.Key
	}
	return t.Path
}

// FileDestination writes the map to a local file. The file is replaced
// atomically so readers never see a partial export.
type FileDestination struct {
	path string
}

// NewFileDestination creates a file destination for path.
func NewFileDestination(path string) *FileDestination {
	return &FileDestination{path: path}
}

func (d *FileDestination) String() string { return "file:" + d.path }

// Write implements Destination.
func (d *FileDestination) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(d.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
