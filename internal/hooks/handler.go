package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/garden/internal/events"
)

// Handler runs the activation command for garden.node.activated events. It
// implements events.Publisher so it can sit beside the bus publisher.
//
// Hooks run one at a time on a worker goroutine. An activation that arrives
// while one is queued is dropped; the user clicking again retries it.
type Handler struct {
	command string
	timeout time.Duration
	logger  *slog.Logger

	// OnResult, if set, is called after each run. Used by tests.
	OnResult func(events.NodeActivated, Result)

	queue     chan events.NodeActivated
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewHandler starts a handler for command. A zero timeout uses
// DefaultTimeout.
func NewHandler(command string, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		command: command,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan events.NodeActivated, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// Publish queues the hook for activation events and ignores other topics.
func (h *Handler) Publish(_ context.Context, topic string, event any) error {
	if topic != events.TopicNodeActivated || h.ctx.Err() != nil {
		return nil
	}
	var ev events.NodeActivated
	switch e := event.(type) {
	case events.NodeActivated:
		ev = e
	case *events.NodeActivated:
		ev = *e
	default:
		return nil
	}
	select {
	case h.queue <- ev:
	default:
		h.logger.Warn("hooks: activation hook busy, dropping", "id", ev.ID)
	}
	return nil
}

// Close stops the worker. A running hook is killed and a queued one is
// skipped.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() {
		h.cancel()
		h.wg.Wait()
	})
	return nil
}

func (h *Handler) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			select {
			case ev := <-h.queue:
				h.logger.Info("hooks: skipping queued activation on shutdown", "id", ev.ID)
			default:
			}
			return
		case ev := <-h.queue:
			h.handle(ev)
		}
	}
}

func (h *Handler) handle(ev events.NodeActivated) {
	res := Execute(h.ctx, h.command, h.timeout, ev)
	switch {
	case res.TimedOut:
		h.logger.Warn("hooks: activation hook timed out", "id", ev.ID, "duration", res.Duration)
	case res.Err != nil:
		h.logger.Warn("hooks: activation hook failed",
			"id", ev.ID, "exit_code", res.ExitCode, "err", res.Err, "output", res.Output)
	default:
		h.logger.Info("hooks: activation hook ran", "id", ev.ID, "duration", res.Duration)
	}
	if h.OnResult != nil {
		h.OnResult(ev, res)
	}
}
