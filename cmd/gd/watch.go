package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/client"
	"github.com/alfredjeanlab/garden/internal/events"
	"github.com/alfredjeanlab/garden/internal/ui"
)

var (
	watchNATS    string
	watchTopics  []string
	watchOverlay bool
	watchSince   uint64
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream map events (activations, snapshots, viewport changes)",
	Long: `Stream map events as they happen.

Events come from the server's SSE stream by default. With --nats (or
GARDEN_NATS_URL) they are read straight from the event bus instead, which
also works when several servers publish to the same bus. Overlay frames
are only available from the SSE stream and are hidden unless --overlay is
given.`,
	GroupID: "map",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := cmd.OutOrStdout()
		emit := func(at time.Time, topic string, data []byte) error {
			if topic == events.TopicOverlayFrame && !watchOverlay {
				return nil
			}
			if jsonOutput {
				return json.NewEncoder(w).Encode(struct {
					Topic string          `json:"topic"`
					At    time.Time       `json:"at"`
					Data  json.RawMessage `json:"data"`
				}{topic, at, data})
			}
			fmt.Fprintln(w, formatEvent(at, topic, data))
			return nil
		}

		if watchNATS != "" {
			return watchBus(ctx, watchNATS, watchTopics, emit)
		}
		err := gardenClient.Events(ctx, watchTopics, watchSince, func(e client.Event) error {
			return emit(time.Now(), e.Topic, e.Data)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchNATS, "nats", os.Getenv("GARDEN_NATS_URL"), "read events from this NATS server instead of the SSE stream")
	watchCmd.Flags().StringSliceVar(&watchTopics, "topics", nil, "topic patterns to show, e.g. garden.node.* (default all)")
	watchCmd.Flags().BoolVar(&watchOverlay, "overlay", false, "include overlay frames")
	watchCmd.Flags().Uint64Var(&watchSince, "since", 0, "replay retained events after this event id (SSE only)")
}

// watchBus reads enveloped events from NATS until ctx is done.
func watchBus(ctx context.Context, url string, topics []string, emit func(time.Time, string, []byte) error) error {
	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		return err
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("garden.>")
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := events.Decode(payload)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderMuted("skipping event:"), err)
				continue
			}
			if !matchAny(topics, env.Topic) {
				continue
			}
			if err := emit(env.At, env.Topic, env.Data); err != nil {
				return err
			}
		}
	}
}

func matchAny(patterns []string, topic string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if events.MatchTopic(p, topic) {
			return true
		}
	}
	return false
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(at time.Time, topic string, data []byte) string {
	ts := ui.RenderMuted(at.Local().Format("15:04:05"))
	var msg string
	switch topic {
	case events.TopicSnapshotLoaded:
		var e events.SnapshotLoaded
		if json.Unmarshal(data, &e) == nil {
			msg = fmt.Sprintf("snapshot  generation %d, %d nodes", e.Generation, e.Nodes)
			if e.Source != "" {
				msg += " from " + e.Source
			}
		}
	case events.TopicNodeActivated:
		var e events.NodeActivated
		if json.Unmarshal(data, &e) == nil {
			name := e.Name
			if name == "" {
				name = e.ID
			}
			msg = fmt.Sprintf("activated %s %s (%s)", ui.RenderHealth(e.Health, ui.HealthGlyph(e.Health)), ui.RenderAccent(name), e.ID)
		}
	case events.TopicViewportChanged:
		var e events.ViewportChanged
		if json.Unmarshal(data, &e) == nil {
			msg = fmt.Sprintf("viewport  scale %.2f at (%.0f, %.0f)", e.Transform.Scale, e.Transform.X, e.Transform.Y)
		}
	case events.TopicLayoutSettled:
		var e events.LayoutSettled
		if json.Unmarshal(data, &e) == nil {
			msg = fmt.Sprintf("settled   generation %d after %d steps", e.Generation, e.Steps)
		}
	case events.TopicOverlayFrame:
		var f struct {
			Seq     uint64            `json:"seq"`
			Targets []json.RawMessage `json:"targets"`
		}
		if json.Unmarshal(data, &f) == nil {
			msg = fmt.Sprintf("overlay   frame %d, %d targets", f.Seq, len(f.Targets))
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("%s %s", topic, compact(data))
	}
	return ts + " " + msg
}

func compact(data []byte) string {
	const limit = 120
	s := string(data)
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
