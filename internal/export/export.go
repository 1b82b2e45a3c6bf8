// Package export writes the rendered map to local files or object storage,
// either once or on a fixed schedule.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Format is an export encoding.
type Format string

const (
	FormatSVG  Format = "svg"
	FormatJSON Format = "json"
)

// Scene is the part of a scene an export reads.
type Scene interface {
	WriteSVG(w io.Writer) error
	Response(filter model.Filter) *model.SceneResponse
}

// ParseFormat accepts "svg" or "json".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSVG, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want svg or json)", s)
	}
}

// FormatFor guesses the format from a file name, defaulting to SVG.
func FormatFor(name string) Format {
	if strings.EqualFold(path.Ext(name), ".json") {
		return FormatJSON
	}
	return FormatSVG
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "image/svg+xml"
}

// Write encodes sc to w.
func Write(w io.Writer, sc Scene, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sc.Response(model.Filter{})); err != nil {
			return fmt.Errorf("encoding scene: %w", err)
		}
		return nil
	case FormatSVG:
		if err := sc.WriteSVG(w); err != nil {
			return fmt.Errorf("rendering svg: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}
