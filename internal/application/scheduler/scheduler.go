// Package scheduler runs the decision cycle on a cron schedule.
//
// Two guards keep cycles from overlapping: cron's SkipIfStillRunning wrapper
// for scheduled ticks, and a TryLock so a manual RunOnce racing a scheduled
// tick is skipped too. Skipped ticks are counted in metrics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/alejandrodnm/sentibot/internal/application/engine"
	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/observability"
)

const DefaultSpec = "@every 5m"

// ErrBusy is returned by RunOnce when a cycle is already running.
var ErrBusy = errors.New("scheduler: cycle already running")

// Cycler runs one decision cycle from the given state.
type Cycler interface {
	RunOnce(ctx context.Context, state domain.State) (engine.Report, domain.State, error)
}

// Runner owns the cross-cycle State and feeds it from one cycle to the next.
type Runner struct {
	cycle    Cycler
	metrics  *observability.Metrics
	onReport func(engine.Report)

	running sync.Mutex

	mu    sync.Mutex
	state domain.State

	cron *cron.Cron
}

// Option configures the Runner.
type Option func(*Runner)

// WithMetrics counts skipped ticks.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// OnReport registers a callback invoked after every completed cycle.
func OnReport(f func(engine.Report)) Option {
	return func(r *Runner) { r.onReport = f }
}

// New creates a Runner starting from initial (normally restored from the ledger).
func New(cycle Cycler, initial domain.State, opts ...Option) *Runner {
	r := &Runner{cycle: cycle, state: initial}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the state the next cycle will start from.
func (r *Runner) State() domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RunOnce runs a single cycle now. Returns ErrBusy if one is in flight.
func (r *Runner) RunOnce(ctx context.Context) (engine.Report, error) {
	if !r.running.TryLock() {
		r.metrics.IncSkippedTick()
		slog.Warn("scheduler: tick skipped, previous cycle still running")
		return engine.Report{}, ErrBusy
	}
	defer r.running.Unlock()

	report, next, err := r.cycle.RunOnce(ctx, r.State())

	r.mu.Lock()
	r.state = next
	r.mu.Unlock()

	if err != nil {
		return report, err
	}
	if r.onReport != nil {
		r.onReport(report)
	}
	return report, nil
}

// Start schedules cycles with spec (standard 5-field cron or @every). Cycles
// run with ctx until Stop is called or ctx is cancelled.
func (r *Runner) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}
	logger := slogCronLogger{metrics: r.metrics}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrBusy) {
			slog.Error("scheduler: cycle failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler.Start: invalid spec %q: %w", spec, err)
	}

	r.cron = c
	c.Start()
	slog.Info("scheduler: started", "spec", spec)
	return nil
}

// Stop stops scheduling and waits for a running cycle to finish.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	slog.Info("scheduler: stopped")
}

// slogCronLogger bridges cron.Logger onto slog. SkipIfStillRunning reports
// skipped ticks as an Info "skip" message.
type slogCronLogger struct {
	metrics *observability.Metrics
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.metrics.IncSkippedTick()
		slog.Warn("scheduler: tick skipped, previous cycle still running")
		return
	}
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
