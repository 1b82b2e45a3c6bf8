package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/client"
	"github.com/alfredjeanlab/garden/internal/render"
	"github.com/alfredjeanlab/garden/internal/ui"
)

var (
	serverURL  string
	authToken  string
	viewerName string
	jsonOutput bool
	noColor    bool

	gardenClient client.GardenClient
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultViewer() string {
	if v := os.Getenv("GARDEN_VIEWER"); v != "" {
		return v
	}
	if h, err := os.Hostname(); err == nil {
		return "gd@" + h
	}
	return "gd"
}

var rootCmd = &cobra.Command{
	Use:           "gd <command>",
	Short:         "Relationship map: serve, render and explore a contact garden",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		if name := os.Getenv("GARDEN_PALETTE"); name != "" {
			p, err := render.LookupPalette(name)
			if err != nil {
				return err
			}
			ui.SetPalette(p)
		}
		gardenClient = client.NewHTTPClient(serverURL,
			client.WithToken(authToken),
			client.WithViewer(viewerName),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if gardenClient != nil {
			gardenClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("GARDEN_SERVER_URL", "http://localhost:8080"), "garden server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("GARDEN_AUTH_TOKEN"), "bearer token for the server")
	rootCmd.PersistentFlags().StringVar(&viewerName, "viewer", defaultViewer(), "name shown in the server's viewer roster")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "map", Title: "Map:"},
		&cobra.Group{ID: "control", Title: "Control:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Map
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(watchCmd)

	// Control
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(viewportCmd)
	rootCmd.AddCommand(activateCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(viewersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
