package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/garden/internal/telemetry"
)

// Scheduler exports the scene to one or more destinations at a fixed
// interval. Unchanged renders are not rewritten.
type Scheduler struct {
	scene        Scene
	format       Format
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	metrics      *telemetry.Metrics

	mu   sync.Mutex
	last []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. metrics may be nil.
func NewScheduler(sc Scene, f Format, destinations []Destination, interval time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scene:        sc,
		format:       f,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		metrics:      metrics,
	}
}

// Start begins periodic export. It runs an initial export immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	_ = s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce renders the scene and writes it to every destination. Failures are
// logged per destination and joined into the returned error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var buf bytes.Buffer
	if err := Write(&buf, s.scene, s.format); err != nil {
		s.logger.Error("export: render failed", "err", err)
		return err
	}
	data := buf.Bytes()

	s.mu.Lock()
	unchanged := s.last != nil && bytes.Equal(s.last, data)
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug("export: map unchanged, skipping")
		return nil
	}

	var errs []error
	for _, dest := range s.destinations {
		result := "ok"
		if err := dest.Write(ctx, data); err != nil {
			result = "error"
			s.logger.Error("export: destination write failed", "destination", dest.String(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest, err))
		}
		if s.metrics != nil {
			s.metrics.Exports.WithLabelValues(dest.String(), result).Inc()
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.mu.Lock()
	s.last = data
	s.mu.Unlock()
	s.logger.Info("export: completed", "destinations", len(s.destinations), "bytes", len(data), "format", s.format)
	return nil
}
