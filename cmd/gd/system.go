package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the garden server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := gardenClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Printf("Health: %s\n", status)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

var viewersCmd = &cobra.Command{
	Use:     "viewers",
	Short:   "List clients currently looking at the map",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := gardenClient.Viewers(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		if len(resp.Viewers) == 0 {
			fmt.Println(ui.RenderMuted("No viewers"))
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VIEWER\tSTREAMS\tLAST ACTION\tSEEN\tACTIONS")
		for _, v := range resp.Viewers {
			name := v.Viewer
			if v.Idle {
				name = ui.RenderMuted(name + " (idle)")
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s ago\t%d\n",
				name, v.Streams, v.LastAction, time.Since(v.LastSeen).Round(time.Second), v.ActionCount)
		}
		tw.Flush()
		fmt.Printf("\n%d viewers, %d open streams\n", len(resp.Viewers), resp.Streams)
		return nil
	},
}
