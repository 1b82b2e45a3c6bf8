package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/model"
)

var (
	statsNodes  bool
	statsFilter filterFlags
	statsScene  sceneFlags
)

var statsCmd = &cobra.Command{
	Use:     "stats [snapshot]",
	Short:   "Show health and category counts",
	GroupID: "map",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		filter, err := statsFilter.filter()
		if err != nil {
			return err
		}

		var resp *model.SceneResponse
		if len(args) == 1 {
			sc, err := localScene(ctx, args[0], statsScene)
			if err != nil {
				return err
			}
			defer sc.Close()
			resp = sc.Response(filter)
		} else if resp, err = gardenClient.Scene(ctx, filter); err != nil {
			return err
		}

		if jsonOutput {
			if statsNodes {
				return printJSON(resp)
			}
			return printJSON(resp.Stats)
		}
		printStats(os.Stdout, resp.Stats)
		if statsNodes {
			os.Stdout.WriteString("\n")
			printNodes(os.Stdout, resp.Nodes)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsNodes, "nodes", false, "also list nodes")
	addFilterFlags(statsCmd, &statsFilter)
	addSceneFlags(statsCmd, &statsScene)
}
