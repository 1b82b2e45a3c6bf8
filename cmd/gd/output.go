package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/ui"
)

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}

// printStats writes the health breakdown, worst-first bars scaled to total,
// then the category counts.
func printStats(w io.Writer, s *model.Stats) {
	fmt.Fprintf(w, "%s %d contacts\n\n", ui.RenderTitle("Garden:"), s.Total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, h := range model.HealthStates {
		n := s.ByHealth[h]
		fmt.Fprintf(tw, "%s %s\t%d\t%s\n",
			ui.RenderHealth(h, ui.HealthGlyph(h)), h, n, ui.RenderHealth(h, bar(n, s.Total, 30)))
	}
	tw.Flush()

	if len(s.ByCategory) == 0 {
		return
	}
	cats := make([]string, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if s.ByCategory[cats[i]] != s.ByCategory[cats[j]] {
			return s.ByCategory[cats[i]] > s.ByCategory[cats[j]]
		}
		return cats[i] < cats[j]
	})

	fmt.Fprintf(w, "\n%s\n", ui.RenderAccent("Categories:"))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range cats {
		label := c
		if label == "" {
			label = ui.RenderMuted("(none)")
		}
		fmt.Fprintf(tw, "  %s\t%d\n", label, s.ByCategory[c])
	}
	tw.Flush()
}

func bar(n, total, width int) string {
	if total <= 0 || n <= 0 {
		return ""
	}
	cells := n * width / total
	if cells == 0 {
		cells = 1
	}
	return strings.Repeat("█", cells)
}

// printNodes lists nodes worst health first, then by name.
func printNodes(w io.Writer, nodes []*model.Node) {
	sorted := append([]*model.Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Health, sorted[j].Health
		if a != b {
			return a.Worse(b)
		}
		return sorted[i].Name < sorted[j].Name
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tHEALTH\tRECENCY\tFREQUENCY")
	for _, n := range sorted {
		name := n.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%.2f\n",
			n.ID, name, n.Category, ui.RenderHealth(n.Health, string(n.Health)), n.Recency, n.Frequency)
	}
	tw.Flush()
}
