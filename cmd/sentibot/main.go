package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alejandrodnm/sentibot/config"
	"github.com/alejandrodnm/sentibot/internal/adapters/notify"
	"github.com/alejandrodnm/sentibot/internal/application/engine"
	"github.com/alejandrodnm/sentibot/internal/application/scheduler"
	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/observability"
)

const (
	stopFile         = "STOP"
	stopPollInterval = 5 * time.Second
	liveAbortWindow  = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one decision cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print ledger history (trades + sentiment) and exit")
	limit := flag.Int("limit", 50, "rows of sentiment history shown by -report")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *once, *report, *limit); err != nil {
		slog.Error("sentibot exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("sentibot stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, once, report bool, limit int) error {
	slog.Info("sentibot starting",
		"mode", cfg.Execution.Mode,
		"pair", cfg.Execution.BaseAsset+"/"+cfg.Execution.QuoteAsset,
		"schedule", cfg.Scheduler.Spec,
		"once", once,
	)

	console := notify.NewConsole(cfg.Execution.Mode)
	if report {
		return printReport(ctx, cfg, console, limit)
	}

	if cfg.IsLive() && !once {
		fmt.Printf("\n⚠️  LIVE MODE — REAL FUNDS WILL BE SWAPPED\n")
		fmt.Printf("   Pair: %s/%s | Max position: %.0f | Slippage: %d bps\n",
			cfg.Execution.BaseAsset, cfg.Execution.QuoteAsset, cfg.Decision.MaxPositionSize, cfg.Execution.SlippageBps)
		fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

		abortTimer := time.NewTimer(liveAbortWindow)
		select {
		case <-abortTimer.C:
		case <-ctx.Done():
			slog.Info("live mode aborted by user")
			return nil
		}
	}

	reg := observability.NewRegistry()
	metrics := observability.NewMetrics(reg)

	a, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pruneSentiment(ctx, a, cfg)

	// estado restaurado del ledger: un reinicio no pierde la posición
	state, err := a.ledger.LoadState(ctx)
	if err != nil {
		slog.Warn("could not restore state from ledger, starting NotInvested", "err", err)
		state = domain.State{}
	}
	slog.Info("state restored", "invested", state.CurrentlyInvested)

	pipeline := engine.NewPipeline(a.ledger, a.holdings, a.prices, a.swaps,
		engine.PipelineConfig{
			Mode:        cfg.Execution.Mode,
			BaseAsset:   cfg.Execution.BaseAsset,
			QuoteAsset:  cfg.Execution.QuoteAsset,
			SlippageBps: cfg.Execution.SlippageBps,
			CallTimeout: cfg.CallTimeout(),
		},
		engine.WithMetrics(metrics),
	)

	cycle := engine.NewCycle(a.source, pipeline, feedbackPoster(cfg, console),
		engine.CycleConfig{
			Decision: domain.DecisionConfig{
				BullishThreshold: cfg.Decision.BullishThreshold,
				BearishThreshold: cfg.Decision.BearishThreshold,
				MinSampleVolume:  cfg.Decision.MinSampleVolume,
				MaxPositionSize:  cfg.Decision.MaxPositionSize,
			},
			MaxFreshAgeMinutes: cfg.Decision.MaxFreshAgeMinutes,
		},
		clockwork.NewRealClock(), metrics,
	)

	runner := scheduler.New(cycle, state,
		scheduler.WithMetrics(metrics),
		scheduler.OnReport(func(r engine.Report) {
			console.PrintCycle(cycleLine(r))
			if r.Execution.LedgerErr != nil {
				slog.Error("trade executed but ledger append failed", "err", r.Execution.LedgerErr)
			}
		}),
	)

	if once {
		_, err := runner.RunOnce(ctx)
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, reg)
		defer shutdownMetricsServer(srv)
	}

	if err := runner.Start(ctx, cfg.Scheduler.Spec); err != nil {
		return err
	}
	defer runner.Stop()

	// primer ciclo inmediato, no esperar al primer tick
	if _, err := runner.RunOnce(ctx); err != nil && !errors.Is(err, scheduler.ErrBusy) {
		slog.Error("cycle failed", "err", err)
	}

	slog.Info("sentibot running — press Ctrl+C or create STOP file to exit")

	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("sentibot stopping (signal)", "invested", runner.State().CurrentlyInvested)
			return nil
		case <-ticker.C:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info("STOP file detected — shutting down", "invested", runner.State().CurrentlyInvested)
				os.Remove(stopFile)
				return nil
			}
		}
	}
}

func pruneSentiment(ctx context.Context, a *app, cfg *config.Config) {
	retention := cfg.SentimentRetention()
	if retention <= 0 {
		return
	}
	n, err := a.local.PruneSentiment(ctx, retention)
	if err != nil {
		slog.Warn("sentiment prune failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("sentiment history pruned", "rows", n, "retention_days", cfg.Storage.SentimentRetentionDays)
	}
}

func cycleLine(r engine.Report) notify.CycleLine {
	return notify.CycleLine{
		Sentiment:   r.Observation.Score,
		SampleCount: r.Observation.SampleCount,
		AgeMinutes:  r.Observation.ObservedAtAgeMinutes,
		Action:      r.Decision.Action,
		Amount:      r.Decision.SuggestedAmount,
		Confidence:  r.Decision.Confidence,
		Success:     r.Execution.Success,
		Kind:        r.Execution.Kind,
		TxRef:       r.Execution.TxRef,
		Ledger:      r.Execution.Sentiment,
		Placeholder: r.Execution.Placeholder,
	}
}

func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err, "addr", addr)
		}
	}()
	slog.Info("metrics server listening", "addr", addr)
	return srv
}

func shutdownMetricsServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown", "err", fmt.Errorf("shutdown: %w", err))
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
