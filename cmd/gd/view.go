package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/client"
	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/overlay"
	"github.com/alfredjeanlab/garden/internal/render"
	"github.com/alfredjeanlab/garden/internal/scene"
	"github.com/alfredjeanlab/garden/internal/ui"
	"github.com/alfredjeanlab/garden/internal/viewport"
)

const (
	viewHeaderRows = 1
	viewFooterRows = 2
	viewLabelMax   = 12

	// panFraction is the share of the viewport width moved per arrow key.
	panFraction = 0.1
)

var (
	viewInterval time.Duration
	viewScene    sceneFlags
)

var viewCmd = &cobra.Command{
	Use:   "view [snapshot]",
	Short: "Explore the map interactively in the terminal",
	Long: `Explore the map interactively in the terminal.

Without an argument the view follows a running server: viewport keys drive
the server's viewport and clicks activate nodes there. With a snapshot file
the map is laid out locally instead.

Keys: +/- zoom, arrows pan, 0 reset, r refresh, q quit. Click a node to
activate it.`,
	GroupID: "map",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ui.IsTerminal() {
			return errors.New("gd view needs an interactive terminal; use gd render or gd stats instead")
		}
		if viewScene.palette != "" {
			p, err := render.LookupPalette(viewScene.palette)
			if err != nil {
				return err
			}
			ui.SetPalette(p)
		}
		var backend viewBackend = remoteBackend{c: gardenClient}
		if len(args) == 1 {
			sc, err := localScene(cmd.Context(), args[0], viewScene)
			if err != nil {
				return err
			}
			defer sc.Close()
			backend = localBackend{sc: sc}
		}
		m := newViewModel(backend, viewInterval)
		w, h := ui.TerminalSize()
		m.width, m.height = w, h

		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(cmd.Context()))
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	},
}

func init() {
	viewCmd.Flags().DurationVar(&viewInterval, "interval", 500*time.Millisecond, "refresh interval")
	addSceneFlags(viewCmd, &viewScene)
}

// mapView is everything the terminal view draws in one refresh.
type mapView struct {
	Scene    *model.SceneResponse
	Frame    *overlay.Frame
	Viewport viewport.Config
}

// viewBackend is where the view reads the map and sends commands.
type viewBackend interface {
	Fetch(ctx context.Context) (*mapView, error)
	Command(ctx context.Context, command string, args any) error
	ActivateAt(ctx context.Context, x, y float64) (string, error)
}

type remoteBackend struct {
	c client.GardenClient
}

func (b remoteBackend) Fetch(ctx context.Context) (*mapView, error) {
	resp, err := b.c.Scene(ctx, model.Filter{})
	if err != nil {
		return nil, err
	}
	frame, err := b.c.Overlay(ctx)
	if err != nil {
		return nil, err
	}
	vp, err := b.c.Viewport(ctx)
	if err != nil {
		return nil, err
	}
	return &mapView{Scene: resp, Frame: frame, Viewport: vp.Config}, nil
}

func (b remoteBackend) Command(ctx context.Context, command string, args any) error {
	_, err := b.c.ViewportCommand(ctx, command, args)
	return err
}

func (b remoteBackend) ActivateAt(ctx context.Context, x, y float64) (string, error) {
	return b.c.ActivateAt(ctx, x, y)
}

type localBackend struct {
	sc *scene.Scene
}

func (b localBackend) Fetch(context.Context) (*mapView, error) {
	return &mapView{
		Scene:    b.sc.Response(model.Filter{}),
		Frame:    b.sc.Overlay(),
		Viewport: b.sc.Viewport().Config(),
	}, nil
}

func (b localBackend) Command(_ context.Context, command string, args any) error {
	switch command {
	case "zoom-in":
		b.sc.ZoomIn()
	case "zoom-out":
		b.sc.ZoomOut()
	case "reset":
		b.sc.ResetToFit()
	case "pan":
		a, ok := args.(client.PanArgs)
		if !ok {
			return fmt.Errorf("pan: unexpected arguments %T", args)
		}
		b.sc.Pan(a.DX, a.DY)
	default:
		return fmt.Errorf("unknown viewport command %q", command)
	}
	return nil
}

func (b localBackend) ActivateAt(_ context.Context, x, y float64) (string, error) {
	return b.sc.ActivateAt(x, y)
}

// Messages

type fetchedMsg struct {
	view *mapView
	err  error
}

type tickMsg time.Time

type commandDoneMsg struct {
	status string
	err    error
}

// viewModel is the bubbletea model for gd view.
type viewModel struct {
	backend  viewBackend
	interval time.Duration

	width, height int
	view          *mapView
	nodes         map[string]*model.Node
	status        string
	err           error
}

func newViewModel(backend viewBackend, interval time.Duration) viewModel {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return viewModel{backend: backend, interval: interval, nodes: map[string]*model.Node{}}
}

// Init implements tea.Model.
func (m viewModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

// Update implements tea.Model.
func (m viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c", "esc":
			return m, tea.Quit
		case "+", "=":
			return m, m.command("zoom-in", nil)
		case "-", "_":
			return m, m.command("zoom-out", nil)
		case "0":
			return m, m.command("reset", nil)
		case "left", "h":
			return m, m.command("pan", client.PanArgs{DX: m.panStep()})
		case "right", "l":
			return m, m.command("pan", client.PanArgs{DX: -m.panStep()})
		case "up", "k":
			return m, m.command("pan", client.PanArgs{DY: m.panStep()})
		case "down", "j":
			return m, m.command("pan", client.PanArgs{DY: -m.panStep()})
		case "r":
			return m, m.fetch()
		}

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		x, y, ok := m.pointAt(msg.X, msg.Y-viewHeaderRows)
		if !ok {
			return m, nil
		}
		return m, m.activate(x, y)

	case fetchedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.view = msg.view
			m.nodes = make(map[string]*model.Node, len(msg.view.Scene.Nodes))
			for _, n := range msg.view.Scene.Nodes {
				m.nodes[n.ID] = n
			}
		}

	case commandDoneMsg:
		m.err = msg.err
		if msg.status != "" {
			m.status = msg.status
		}
		return m, m.fetch()

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())
	}
	return m, nil
}

func (m viewModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		v, err := m.backend.Fetch(ctx)
		return fetchedMsg{view: v, err: err}
	}
}

func (m viewModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m viewModel) command(command string, args any) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return commandDoneMsg{err: m.backend.Command(ctx, command, args)}
	}
}

func (m viewModel) activate(x, y float64) tea.Cmd {
	nodes := m.nodes
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		id, err := m.backend.ActivateAt(ctx, x, y)
		if err != nil {
			var apiErr *client.APIError
			if errors.Is(err, scene.ErrUnknownNode) || (errors.As(err, &apiErr) && apiErr.StatusCode == 404) {
				return commandDoneMsg{status: "nothing there"}
			}
			return commandDoneMsg{err: err}
		}
		name := id
		if n, ok := nodes[id]; ok && n.Name != "" {
			name = n.Name
		}
		return commandDoneMsg{status: "activated " + name}
	}
}

func (m viewModel) panStep() float64 {
	if m.view == nil || m.view.Viewport.Width <= 0 {
		return viewport.DefaultWidth * panFraction
	}
	return m.view.Viewport.Width * panFraction
}

func (m viewModel) mapRows() int {
	return max(m.height-viewHeaderRows-viewFooterRows, 1)
}

func (m viewModel) mapCols() int {
	return max(m.width, 1)
}

// pointAt maps a terminal cell in the map area to viewport coordinates.
func (m viewModel) pointAt(col, row int) (x, y float64, ok bool) {
	if m.view == nil {
		return 0, 0, false
	}
	return cellPoint(col, row, m.mapCols(), m.mapRows(), m.view.Viewport)
}

// cellFor maps viewport coordinates to a terminal cell. Points outside the
// viewport are not shown.
func cellFor(x, y float64, cols, rows int, cfg viewport.Config) (col, row int, ok bool) {
	if cfg.Width <= 0 || cfg.Height <= 0 || x < 0 || y < 0 {
		return 0, 0, false
	}
	col = int(x / cfg.Width * float64(cols))
	row = int(y / cfg.Height * float64(rows))
	if col >= cols || row >= rows {
		return 0, 0, false
	}
	return col, row, true
}

// cellPoint is the inverse of cellFor: the viewport point at the center of
// a cell.
func cellPoint(col, row, cols, rows int, cfg viewport.Config) (x, y float64, ok bool) {
	if col < 0 || row < 0 || col >= cols || row >= rows {
		return 0, 0, false
	}
	x = (float64(col) + 0.5) / float64(cols) * cfg.Width
	y = (float64(row) + 0.5) / float64(rows) * cfg.Height
	return x, y, true
}

type cell struct {
	text  string
	style func(string) string
}

// View implements tea.Model.
func (m viewModel) View() string {
	var b strings.Builder

	header := ui.RenderTitle("garden")
	if m.view != nil && m.view.Frame != nil {
		header += ui.RenderMuted(fmt.Sprintf("  generation %d  %d nodes  scale %.2f",
			m.view.Scene.Generation, len(m.view.Scene.Nodes), m.view.Frame.Transform.Scale))
	}
	b.WriteString(header)
	b.WriteString("\n")

	rows, cols := m.mapRows(), m.mapCols()
	grid := m.grid(cols, rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cl := grid[r][c]
			if cl.text == "" {
				b.WriteByte(' ')
				continue
			}
			if cl.style != nil {
				b.WriteString(cl.style(cl.text))
			} else {
				b.WriteString(cl.text)
			}
		}
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(ui.RenderHealth(model.HealthWilted, "error: "+m.err.Error()))
	case m.status != "":
		b.WriteString(ui.RenderAccent(m.status))
	}
	b.WriteString("\n")
	b.WriteString(ui.RenderMuted("+/- zoom  arrows pan  0 reset  click activate  r refresh  q quit"))
	return b.String()
}

// grid lays the current overlay frame out on a cols x rows character grid.
// Later targets overwrite earlier ones, matching hit-test order.
func (m viewModel) grid(cols, rows int) [][]cell {
	grid := make([][]cell, rows)
	for r := range grid {
		grid[r] = make([]cell, cols)
	}
	if m.view == nil || m.view.Frame == nil {
		return grid
	}
	cfg := m.view.Viewport

	if c, r, ok := cellFor(m.view.Frame.Anchor.X, m.view.Frame.Anchor.Y, cols, rows, cfg); ok {
		grid[r][c] = cell{text: "✿", style: ui.RenderAccent}
	}

	for _, t := range m.view.Frame.Targets {
		c, r, ok := cellFor(t.X, t.Y, cols, rows, cfg)
		if !ok {
			continue
		}
		n := m.nodes[t.ID]
		h := model.Health("")
		name := t.ID
		if n != nil {
			h = n.Health
			if n.Name != "" {
				name = n.Name
			}
		}
		health := h
		grid[r][c] = cell{text: ui.HealthGlyph(h), style: func(s string) string { return ui.RenderHealth(health, s) }}

		label := []rune(name)
		if len(label) > viewLabelMax {
			label = label[:viewLabelMax]
		}
		for i, ch := range label {
			lc := c + 2 + i
			if lc >= cols || grid[r][lc].text != "" {
				break
			}
			grid[r][lc] = cell{text: string(ch), style: ui.RenderMuted}
		}
	}
	return grid
}
