package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/client"
	"github.com/alfredjeanlab/garden/internal/source"
	"github.com/alfredjeanlab/garden/internal/ui"
)

var pushCmd = &cobra.Command{
	Use:     "push <snapshot>",
	Short:   "Load a snapshot file into the running server",
	GroupID: "control",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := source.NewFileSource(args[0])
		if err != nil {
			return err
		}
		contacts, err := src.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		resp, err := gardenClient.PushSnapshot(cmd.Context(), contacts)
		if err != nil {
			printFieldErrors(err)
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("Loaded %d contacts (generation %d)\n", resp.Nodes, resp.Generation)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Ask the server to refetch its configured source",
	GroupID: "control",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := gardenClient.Sync(cmd.Context())
		if err != nil {
			printFieldErrors(err)
			return err
		}
		if jsonOutput {
			return printJSON(map[string]uint64{"generation": gen})
		}
		fmt.Printf("Synced (generation %d)\n", gen)
		return nil
	},
}

func printFieldErrors(err error) {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return
	}
	for _, fe := range apiErr.Fields {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", ui.RenderAccent(fe.Field), fe.Message)
	}
}

var viewportCmd = &cobra.Command{
	Use:   "viewport [zoom-in|zoom-out|reset|pan DX DY|zoom X Y FACTOR|resize W H]",
	Short: "Show or change the server's viewport",
	Example: `  gd viewport
  gd viewport zoom-in
  gd viewport pan -- -40 25
  gd viewport zoom 400 300 1.5`,
	GroupID: "control",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var state *client.ViewportState
		var err error
		if len(args) == 0 {
			state, err = gardenClient.Viewport(ctx)
		} else {
			var body any
			if body, err = viewportArgs(args[0], args[1:]); err != nil {
				return err
			}
			state, err = gardenClient.ViewportCommand(ctx, args[0], body)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(state)
		}
		t := state.Transform
		fmt.Printf("scale %.3f  offset (%.1f, %.1f)  %gx%g  version %d\n",
			t.Scale, t.X, t.Y, state.Config.Width, state.Config.Height, state.Version)
		return nil
	},
}

// viewportArgs builds the request body for a viewport command.
func viewportArgs(command string, args []string) (any, error) {
	want := map[string]int{"zoom-in": 0, "zoom-out": 0, "reset": 0, "pan": 2, "zoom": 3, "resize": 2}
	n, ok := want[command]
	if !ok {
		return nil, fmt.Errorf("unknown viewport command %q", command)
	}
	if len(args) != n {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", command, n, len(args))
	}
	vals := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid number %q", command, a)
		}
		vals[i] = v
	}
	switch command {
	case "pan":
		return client.PanArgs{DX: vals[0], DY: vals[1]}, nil
	case "zoom":
		return client.ZoomArgs{X: vals[0], Y: vals[1], Factor: vals[2]}, nil
	case "resize":
		return client.ResizeArgs{Width: vals[0], Height: vals[1]}, nil
	}
	return nil, nil
}

var activateAt []float64

var activateCmd = &cobra.Command{
	Use:     "activate <id> | --at X,Y",
	Short:   "Select a node by id or screen point",
	GroupID: "control",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		var err error
		switch {
		case len(args) == 1:
			id, err = gardenClient.Activate(cmd.Context(), args[0])
		case len(activateAt) == 2:
			id, err = gardenClient.ActivateAt(cmd.Context(), activateAt[0], activateAt[1])
		default:
			return errors.New("an id or --at X,Y is required")
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]string{"id": id})
		}
		fmt.Printf("Activated %s\n", id)
		return nil
	},
}

func init() {
	activateCmd.Flags().Float64SliceVar(&activateAt, "at", nil, "screen point X,Y")
}
