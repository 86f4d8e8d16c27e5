package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sentibot/config"
	"github.com/alejandrodnm/sentibot/internal/adapters/notify"
	"github.com/alejandrodnm/sentibot/internal/adapters/storage"
	"github.com/alejandrodnm/sentibot/internal/application/engine"
	"github.com/alejandrodnm/sentibot/internal/domain"
)

func TestAllTrades_PagesThroughHistory(t *testing.T) {
	ctx := context.Background()
	ledger, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	defer ledger.Close()

	actions := []domain.Action{domain.ActionBuy, domain.ActionSell, domain.ActionBuy}
	for _, a := range actions {
		_, err := ledger.RecordTrade(ctx, domain.TradeRecord{Action: a, Amount: 10, Confidence: 0.5, TxRef: "paper:x"})
		require.NoError(t, err)
	}

	trades, err := allTrades(ctx, ledger)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, domain.ActionBuy, trades[2].Action)
	assert.Less(t, trades[0].ID, trades[2].ID)
}

func TestPrintReport(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "report.db")

	ledger, err := storage.NewSQLiteLedger(dsn)
	require.NoError(t, err)
	ledger.RecordSentiment(ctx, 0.4, 0.7, 12)
	_, err = ledger.RecordTrade(ctx, domain.TradeRecord{Action: domain.ActionBuy, Amount: 70, Confidence: 0.7, TxRef: "paper:1"})
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	var buf bytes.Buffer
	cfg := &config.Config{Storage: config.StorageConfig{DSN: dsn}}
	require.NoError(t, printReport(ctx, cfg, notify.NewConsoleWriter(&buf, config.ModeMock), 10))

	out := buf.String()
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "Entries: 1")
	assert.Contains(t, out, "Avg score")
}

func TestFeedbackPoster_FallsBackToConsole(t *testing.T) {
	console := notify.NewConsoleWriter(&bytes.Buffer{}, config.ModeMock)

	got := feedbackPoster(&config.Config{}, console)
	assert.Same(t, console, got)

	cfg := &config.Config{Feedback: config.FeedbackConfig{WebhookURL: "http://127.0.0.1:1/hook"}}
	fan, ok := feedbackPoster(cfg, console).(notify.Fanout)
	require.True(t, ok)
	assert.Len(t, fan, 1)
}

func TestCycleLine(t *testing.T) {
	r := engine.Report{
		Observation: domain.SentimentObservation{Score: -0.6, SampleCount: 20, ObservedAtAgeMinutes: 3},
		Decision:    domain.Decision{Action: domain.ActionSell, Confidence: 0.43, SuggestedAmount: 43},
		Execution: engine.Result{
			Success:   false,
			Kind:      domain.KindInsufficientFunds,
			Err:       errors.New("short"),
			Sentiment: domain.Recorded("sqlite:1"),
		},
	}

	l := cycleLine(r)
	assert.Equal(t, domain.ActionSell, l.Action)
	assert.Equal(t, 43.0, l.Amount)
	assert.Equal(t, 20, l.SampleCount)
	assert.Equal(t, domain.KindInsufficientFunds, l.Kind)
	assert.Equal(t, domain.LedgerRecorded, l.Ledger.Status)
}
