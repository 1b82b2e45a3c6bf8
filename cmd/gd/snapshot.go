package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/config"
	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/scene"
	"github.com/alfredjeanlab/garden/internal/source"
)

// sceneFlags select the presentation of a locally built scene.
type sceneFlags struct {
	theme         string
	palette       string
	reducedMotion bool
}

func addSceneFlags(cmd *cobra.Command, f *sceneFlags) {
	cmd.Flags().StringVar(&f.theme, "theme", "", "theme TOML file (default $GARDEN_THEME_FILE)")
	cmd.Flags().StringVar(&f.palette, "palette", "", "palette name: garden, colorblind or monochrome")
	cmd.Flags().BoolVar(&f.reducedMotion, "reduced-motion", false, "render without sway animations")
}

// localScene builds and settles a scene from a snapshot file without a
// server.
func localScene(ctx context.Context, path string, f sceneFlags) (*scene.Scene, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.theme != "" {
		cfg.ThemeFile = f.theme
	}
	if f.palette != "" {
		cfg.Palette = f.palette
	}
	if f.reducedMotion {
		cfg.ReducedMotion = true
	}

	var theme *config.Theme
	if cfg.ThemeFile != "" {
		if theme, err = config.LoadTheme(cfg.ThemeFile); err != nil {
			return nil, err
		}
	}
	sceneCfg, err := cfg.SceneConfig(theme)
	if err != nil {
		return nil, err
	}
	sceneCfg.Relax = scene.RelaxManual

	src, err := source.NewFileSource(path)
	if err != nil {
		return nil, err
	}
	contacts, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	sc, err := scene.New(sceneCfg)
	if err != nil {
		return nil, err
	}
	if _, err := sc.Load(ctx, contacts); err != nil {
		sc.Close()
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	sc.Settle()
	return sc, nil
}

// remoteScene is a server's scene fetched once, for export.Write.
type remoteScene struct {
	svg  []byte
	resp *model.SceneResponse
}

func (r *remoteScene) WriteSVG(w io.Writer) error {
	_, err := io.Copy(w, bytes.NewReader(r.svg))
	return err
}

func (r *remoteScene) Response(model.Filter) *model.SceneResponse { return r.resp }

// filterFlags narrow node listings.
type filterFlags struct {
	category []string
	health   []string
	search   string
}

func addFilterFlags(cmd *cobra.Command, f *filterFlags) {
	cmd.Flags().StringSliceVar(&f.category, "category", nil, "only these categories")
	cmd.Flags().StringSliceVar(&f.health, "health", nil, "only these health states")
	cmd.Flags().StringVar(&f.search, "search", "", "case-insensitive name substring")
}

func (f filterFlags) filter() (model.Filter, error) {
	out := model.Filter{Category: f.category, Search: f.search}
	for _, raw := range f.health {
		h, err := model.ParseHealth(raw)
		if err != nil {
			return model.Filter{}, err
		}
		out.Health = append(out.Health, h)
	}
	return out, nil
}
