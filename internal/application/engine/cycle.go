package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/observability"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

// CycleConfig holds the decision parameters. CurrentlyInvested inside Decision
// is ignored: the flag always comes from the State passed to RunOnce.
type CycleConfig struct {
	Decision           domain.DecisionConfig
	MaxFreshAgeMinutes float64
}

// Report contains everything produced by one decision cycle.
type Report struct {
	StartedAt   time.Time
	Duration    time.Duration
	Observation domain.SentimentObservation
	Raw         domain.Decision // before the freshness adjustment
	Decision    domain.Decision
	Execution   Result
	FeedbackErr error
}

// Cycle runs aggregator → decide → freshness → execute → feedback.
// It is not re-entrant; the scheduler guarantees one cycle at a time.
type Cycle struct {
	source   ports.SentimentSource
	pipeline *Pipeline
	feedback ports.FeedbackPoster
	cfg      CycleConfig
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

// NewCycle creates the orchestrator. feedback may be nil.
func NewCycle(
	source ports.SentimentSource,
	pipeline *Pipeline,
	feedback ports.FeedbackPoster,
	cfg CycleConfig,
	clock clockwork.Clock,
	metrics *observability.Metrics,
) *Cycle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cycle{
		source:   source,
		pipeline: pipeline,
		feedback: feedback,
		cfg:      cfg,
		clock:    clock,
		metrics:  metrics,
	}
}

// RunOnce executes one cycle and returns the next state. An error means the
// sentiment source failed and no decision was taken; state is unchanged.
func (c *Cycle) RunOnce(ctx context.Context, state domain.State) (Report, domain.State, error) {
	report := Report{StartedAt: c.clock.Now()}

	// 1. Aggregate
	items, err := c.source.FetchScored(ctx)
	if err != nil {
		report.Duration = c.clock.Since(report.StartedAt)
		c.metrics.ObserveCycle("source_error", report.Duration.Seconds())
		return report, state, fmt.Errorf("engine.RunOnce: fetch scored items: %w",
			domain.Classify(domain.KindUnavailable, "source.fetch", err))
	}
	obs := domain.Aggregate(items, c.clock.Now())
	report.Observation = obs

	// 2. Decide with the flag from the explicit state
	dcfg := c.cfg.Decision
	dcfg.CurrentlyInvested = state.CurrentlyInvested
	report.Raw = domain.Decide(obs.Score, obs.SampleCount, dcfg)

	// 3. Freshness
	report.Decision = domain.AdjustForAge(report.Raw, obs.ObservedAtAgeMinutes, c.cfg.MaxFreshAgeMinutes)
	c.metrics.ObserveDecision(string(report.Decision.Action), obs.Score)

	slog.Info("cycle: decision",
		"sentiment", fmt.Sprintf("%.3f", obs.Score),
		"samples", obs.SampleCount,
		"age_min", fmt.Sprintf("%.1f", obs.ObservedAtAgeMinutes),
		"action", string(report.Decision.Action),
		"confidence", fmt.Sprintf("%.2f", report.Decision.Confidence),
		"amount", report.Decision.SuggestedAmount,
		"rationale", report.Decision.Rationale,
	)

	// 4. Execute
	res, next := c.pipeline.Execute(ctx, state, report.Decision, obs.SampleCount)
	report.Execution = res

	// 5. Feedback, fire-and-forget
	if c.feedback != nil && report.Decision.Action != domain.ActionHold {
		if err := c.feedback.PostFeedback(ctx, FeedbackMessage(report)); err != nil {
			report.FeedbackErr = err
			c.metrics.IncFeedbackFailure()
			slog.Warn("cycle: feedback post failed", "err", err)
		}
	}

	outcome := "ok"
	if !res.Success {
		outcome = "execution_failed"
	}
	report.Duration = c.clock.Since(report.StartedAt)
	c.metrics.ObserveCycle(outcome, report.Duration.Seconds())
	return report, next, nil
}

// FeedbackMessage formats the short post sent after an actionable cycle.
func FeedbackMessage(r Report) string {
	d := r.Decision
	status := "executed"
	switch {
	case r.Execution.Placeholder:
		status = "simulated (no yield protocol)"
	case !r.Execution.Success:
		status = "not executed: " + r.Execution.Kind.String()
	}
	msg := fmt.Sprintf("%s %.0f at %.0f%% confidence (sentiment %+.2f over %d posts): %s",
		d.Action, d.SuggestedAmount, d.Confidence*100, r.Observation.Score, r.Observation.SampleCount, status)
	if r.Execution.TxRef != "" {
		msg += " tx " + r.Execution.TxRef
	}
	return msg
}
