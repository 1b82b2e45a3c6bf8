package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/export"
	"github.com/alfredjeanlab/garden/internal/model"
)

var (
	renderOut      string
	renderFormat   string
	renderRegion   string
	renderEndpoint string
	renderScene    sceneFlags
)

var renderCmd = &cobra.Command{
	Use:   "render [snapshot]",
	Short: "Render the map as SVG or JSON",
	Long: `Render the map once. With a snapshot file (.json, .jsonl, .yaml) the
layout is computed locally; without one the running server's scene is used.

The output goes to stdout, a file, or s3://bucket/key.`,
	GroupID: "map",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		target, err := export.ParseTarget(renderOut)
		if err != nil {
			return err
		}
		format := export.FormatFor(target.Name())
		if renderFormat != "" {
			if format, err = export.ParseFormat(renderFormat); err != nil {
				return err
			}
		}

		var sc export.Scene
		if len(args) == 1 {
			local, err := localScene(ctx, args[0], renderScene)
			if err != nil {
				return err
			}
			defer local.Close()
			sc = local
		} else {
			if sc, err = fetchRemoteScene(ctx, format); err != nil {
				return err
			}
		}

		var buf bytes.Buffer
		if err := export.Write(&buf, sc, format); err != nil {
			return err
		}
		return writeTarget(ctx, target, buf.Bytes())
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "-", "output: -, a file path, or s3://bucket/key")
	renderCmd.Flags().StringVar(&renderFormat, "format", "", "svg or json (default from the output name)")
	renderCmd.Flags().StringVar(&renderRegion, "s3-region", envOr("GARDEN_EXPORT_S3_REGION", "us-east-1"), "S3 region")
	renderCmd.Flags().StringVar(&renderEndpoint, "s3-endpoint", os.Getenv("GARDEN_EXPORT_S3_ENDPOINT"), "custom S3 endpoint (MinIO)")
	addSceneFlags(renderCmd, &renderScene)
}

func fetchRemoteScene(ctx context.Context, format export.Format) (*remoteScene, error) {
	rs := &remoteScene{}
	var err error
	if format == export.FormatSVG {
		rs.svg, err = gardenClient.SceneSVG(ctx)
	} else {
		rs.resp, err = gardenClient.Scene(ctx, model.Filter{})
	}
	if err != nil {
		return nil, fmt.Errorf("fetching scene: %w", err)
	}
	return rs, nil
}

func writeTarget(ctx context.Context, t export.Target, data []byte) error {
	var dest export.Destination
	switch {
	case t.Stdout:
		_, err := os.Stdout.Write(data)
		return err
	case t.Bucket != "":
		s3, err := export.NewS3Destination(ctx, t.Bucket, t.Key, renderRegion, renderEndpoint)
		if err != nil {
			return err
		}
		dest = s3
	default:
		dest = export.NewFileDestination(t.Path)
	}
	if err := dest.Write(ctx, data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", len(data), dest)
	return nil
}
