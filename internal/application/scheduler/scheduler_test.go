package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sentibot/internal/application/engine"
	"github.com/alejandrodnm/sentibot/internal/application/scheduler"
	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/observability"
)

// flipCycler alternates the investment flag every cycle and records the
// state it was handed.
type flipCycler struct {
	mu     sync.Mutex
	seen   []domain.State
	block  chan struct{}
	err    error
	runs   atomic.Int32
	inside chan struct{}
}

func (f *flipCycler) RunOnce(_ context.Context, st domain.State) (engine.Report, domain.State, error) {
	f.runs.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, st)
	f.mu.Unlock()

	if f.inside != nil {
		f.inside <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return engine.Report{}, st, f.err
	}
	return engine.Report{Decision: domain.Decision{Action: domain.ActionBuy}}, domain.State{CurrentlyInvested: !st.CurrentlyInvested}, nil
}

func TestRunner_ThreadsStateBetweenCycles(t *testing.T) {
	c := &flipCycler{}
	var reports int
	r := scheduler.New(c, domain.State{CurrentlyInvested: true}, scheduler.OnReport(func(engine.Report) { reports++ }))

	for i := 0; i < 3; i++ {
		_, err := r.RunOnce(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []domain.State{
		{CurrentlyInvested: true},
		{CurrentlyInvested: false},
		{CurrentlyInvested: true},
	}, c.seen)
	assert.False(t, r.State().CurrentlyInvested)
	assert.Equal(t, 3, reports)
}

func TestRunner_CycleErrorKeepsState(t *testing.T) {
	c := &flipCycler{err: errors.New("feed down")}
	r := scheduler.New(c, domain.State{CurrentlyInvested: true})

	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
	assert.True(t, r.State().CurrentlyInvested)
}

func TestRunner_OverlappingTickIsSkipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	c := &flipCycler{block: make(chan struct{}), inside: make(chan struct{}, 1)}
	r := scheduler.New(c, domain.State{}, scheduler.WithMetrics(metrics))

	done := make(chan error, 1)
	go func() {
		_, err := r.RunOnce(context.Background())
		done <- err
	}()
	<-c.inside

	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrBusy)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SkippedTicks))

	close(c.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), c.runs.Load())
	assert.True(t, r.State().CurrentlyInvested)
}

func TestRunner_StartRejectsBadSpec(t *testing.T) {
	r := scheduler.New(&flipCycler{}, domain.State{})
	assert.Error(t, r.Start(context.Background(), "not a cron spec"))
	r.Stop()
}

func TestRunner_StartRunsOnSchedule(t *testing.T) {
	c := &flipCycler{}
	r := scheduler.New(c, domain.State{})

	require.NoError(t, r.Start(context.Background(), "@every 1s"))
	defer r.Stop()

	assert.Eventually(t, func() bool { return c.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
