// Package presence keeps a roster of the clients viewing a garden server.
//
// The server records an Activity whenever a viewer opens the event stream,
// moves the viewport or activates a node. A background reaper marks viewers
// idle after a threshold and eventually forgets them.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is one viewer's presence state.
type Entry struct {
	Viewer              string    `json:"viewer"`
	LastSeen            time.Time `json:"last_seen"`
	FirstSeen           time.Time `json:"first_seen"`
	LastAction          string    `json:"last_action"` // e.g. "stream.open", "viewport.zoom-in", "activate"
	RemoteAddr          string    `json:"remote_addr,omitempty"`
	Streams             int       `json:"streams"` // open event streams
	IdleSecs            float64   `json:"idle_secs"`
	ActionCount         int64     `json:"action_count"`
	SessionDurationSecs float64   `json:"session_duration_secs"`
	Idle                bool      `json:"idle,omitempty"`
	IdleSince           time.Time `json:"idle_since,omitempty"`
}

// Activity is one observed interaction.
type Activity struct {
	Viewer     string
	Action     string
	RemoteAddr string
}

// ReaperConfig configures the background idle-viewer reaper.
type ReaperConfig struct {
	// IdleThreshold is how long a viewer without an open stream may go
	// without activity before being marked idle. Default: 5 minutes.
	IdleThreshold time.Duration

	// EvictAfter is how long after going idle a viewer is removed from the
	// roster. Default: 30 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 30 seconds.
	SweepInterval time.Duration

	// OnIdle is called for each viewer newly marked idle, outside the lock.
	OnIdle func(viewer string)
}

// Tracker maintains an in-memory roster of viewers.
type Tracker struct {
	mu      sync.RWMutex
	viewers map[string]*viewerState
	started time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type viewerState struct {
	firstSeen   time.Time
	lastSeen    time.Time
	lastAction  string
	remoteAddr  string
	streams     int
	actionCount int64
	idle        bool
	idleSince   time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		viewers: make(map[string]*viewerState),
		started: time.Now(),
	}
}

// Record updates the viewer's state. Activities without a viewer are ignored.
func (t *Tracker) Record(a Activity) {
	if a.Viewer == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touchLocked(a, time.Now())
}

func (t *Tracker) touchLocked(a Activity, now time.Time) *viewerState {
	state, ok := t.viewers[a.Viewer]
	if !ok {
		state = &viewerState{firstSeen: now}
		t.viewers[a.Viewer] = state
	}
	if state.idle {
		slog.Info("presence: viewer returned", "viewer", a.Viewer)
		state.idle = false
		state.idleSince = time.Time{}
	}
	state.lastSeen = now
	state.lastAction = a.Action
	state.actionCount++
	if a.RemoteAddr != "" {
		state.remoteAddr = a.RemoteAddr
	}
	return state
}

// StreamOpened records a viewer connecting to the event stream. The returned
// function records the disconnect and must be called exactly once.
func (t *Tracker) StreamOpened(viewer, remoteAddr string) func() {
	if viewer == "" {
		return func() {}
	}
	t.mu.Lock()
	t.touchLocked(Activity{Viewer: viewer, Action: "stream.open", RemoteAddr: remoteAddr}, time.Now())
	t.viewers[viewer].streams++
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		state, ok := t.viewers[viewer]
		if !ok {
			return
		}
		if state.streams > 0 {
			state.streams--
		}
		state.lastSeen = time.Now()
		state.lastAction = "stream.close"
	}
}

// Roster returns all tracked viewers, most recently active first.
// staleThreshold excludes viewers idle for longer; 0 includes everyone.
func (t *Tracker) Roster(staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	entries := make([]Entry, 0, len(t.viewers))
	for viewer, state := range t.viewers {
		idle := now.Sub(state.lastSeen)
		if staleThreshold > 0 && state.streams == 0 && idle > staleThreshold {
			continue
		}
		firstSeen := state.firstSeen
		if firstSeen.IsZero() {
			firstSeen = t.started
		}
		entries = append(entries, Entry{
			Viewer:              viewer,
			LastSeen:            state.lastSeen,
			FirstSeen:           firstSeen,
			LastAction:          state.lastAction,
			RemoteAddr:          state.remoteAddr,
			Streams:             state.streams,
			IdleSecs:            idle.Seconds(),
			ActionCount:         state.actionCount,
			SessionDurationSecs: now.Sub(firstSeen).Seconds(),
			Idle:                state.idle,
			IdleSince:           state.idleSince,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].LastSeen.After(entries[j].LastSeen)
		}
		return entries[i].Viewer < entries[j].Viewer
	})
	return entries
}

// StartReaper launches the background reaper. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 5 * time.Minute
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := time.Now()
	var newlyIdle []string

	t.mu.Lock()
	for viewer, state := range t.viewers {
		if state.streams > 0 {
			continue
		}
		if state.idle {
			if !state.idleSince.IsZero() && now.Sub(state.idleSince) > cfg.EvictAfter {
				delete(t.viewers, viewer)
			}
			continue
		}
		if now.Sub(state.lastSeen) > cfg.IdleThreshold {
			state.idle = true
			state.idleSince = now
			newlyIdle = append(newlyIdle, viewer)
		}
	}
	t.mu.Unlock()

	for _, viewer := range newlyIdle {
		slog.Info("presence: viewer idle", "viewer", viewer, "threshold", cfg.IdleThreshold)
		if cfg.OnIdle != nil {
			cfg.OnIdle(viewer)
		}
	}
}
