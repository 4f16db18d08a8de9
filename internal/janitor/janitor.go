// Package janitor runs the periodic purge of expired secrets on a cron
// schedule. It operates independently from the request path so cleanup
// cadence and failures never affect share or retrieve calls.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haukened/vanish/internal/metrics"
)

// DefaultSchedule runs a purge every five minutes.
const DefaultSchedule = "@every 5m"

// Purger is the single operation the janitor drives. app.Service satisfies it.
type Purger interface {
	// Purge deletes every expired secret and returns the number removed.
	Purge(ctx context.Context) (int, error)
}

// Observer receives the per-cycle deletion count. *metrics.Manager satisfies it.
type Observer interface {
	Observe(name string, value int64)
}

// Config holds tunables for the Janitor.
type Config struct {
	Schedule string        // standard 5-field cron spec or descriptor such as "@every 5m"
	Timeout  time.Duration // bound on a single cycle; 0 means none
	Observer Observer      // optional
	Logger   *slog.Logger  // optional logger (defaults to slog.Default())
}

// Metrics accumulates counters (in-memory) for operational insight.
type Metrics struct {
	mu                  sync.Mutex
	Cycles              uint64
	Failures            uint64
	Deleted             uint64
	CycleLastDurationMS int64
	LastRun             time.Time
}

// MetricsView is a read-only snapshot safe to copy.
type MetricsView struct {
	Cycles              uint64
	Failures            uint64
	Deleted             uint64
	CycleLastDurationMS int64
	LastRun             time.Time
}

func (m *Metrics) recordCycle(start time.Time, d time.Duration, deleted int, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cycles++
	if failed {
		m.Failures++
	}
	if deleted > 0 {
		m.Deleted += uint64(deleted)
	}
	m.CycleLastDurationMS = d.Milliseconds()
	m.LastRun = start
}

// Janitor encapsulates the background purge loop.
type Janitor struct {
	purger  Purger
	cfg     Config
	sched   cron.Schedule
	metrics *Metrics

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// New constructs but does not start a Janitor. An empty schedule uses
// DefaultSchedule; an unparsable one is an error.
func New(p Purger, cfg Config) (*Janitor, error) {
	if p == nil {
		return nil, errors.New("janitor: nil purger")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("janitor: schedule %q: %w", cfg.Schedule, err)
	}
	return &Janitor{
		purger:  p,
		cfg:     cfg,
		sched:   sched,
		metrics: &Metrics{},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start launches the janitor loop in a new goroutine. Subsequent calls are
// no-ops.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for completion. A cycle in
// progress finishes first.
func (j *Janitor) Stop() {
	j.mu.Lock()
	started := j.started
	j.mu.Unlock()
	j.once.Do(func() { close(j.stopCh) })
	if started {
		<-j.doneCh
	}
}

// MetricsSnapshot returns a copy of current metrics.
func (j *Janitor) MetricsSnapshot() MetricsView {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()
	return MetricsView{
		Cycles:              j.metrics.Cycles,
		Failures:            j.metrics.Failures,
		Deleted:             j.metrics.Deleted,
		CycleLastDurationMS: j.metrics.CycleLastDurationMS,
		LastRun:             j.metrics.LastRun,
	}
}

// Next reports when the schedule fires after t.
func (j *Janitor) Next(t time.Time) time.Time { return j.sched.Next(t) }

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	defer close(j.doneCh)
	log.Info("janitor start", "schedule", j.cfg.Schedule, "next", j.sched.Next(time.Now()))
	timer := time.NewTimer(time.Until(j.sched.Next(time.Now())))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-timer.C:
			j.runCycle(ctx)
			timer.Reset(time.Until(j.sched.Next(time.Now())))
		}
	}
}

// runCycle performs one purge and records its outcome.
func (j *Janitor) runCycle(ctx context.Context) {
	start := time.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "cycle")
	if j.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.Timeout)
		defer cancel()
	}
	count, err := j.purger.Purge(ctx)
	failed := err != nil
	if failed && !errors.Is(err, context.Canceled) {
		log.Error("purge", "error", err, "deleted", count)
	}
	if j.cfg.Observer != nil {
		j.cfg.Observer.Observe(metrics.SummaryPurgeDeletedPerCycle, int64(count))
	}
	elapsed := time.Since(start)
	j.metrics.recordCycle(start, elapsed, count, failed)
	log.Info("cycle complete", "deleted", count, "ms", elapsed.Milliseconds())
}
