package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/sentibot/config"
	"github.com/alejandrodnm/sentibot/internal/adapters/storage"
	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

const reportPage = 200

// printReport lee el histórico local (ledger en mock, espejo en live) sin
// conectarse a la cadena.
func printReport(ctx context.Context, cfg *config.Config, out ports.HistoryReporter, limit int) error {
	local, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("report: open storage: %w", err)
	}
	defer local.Close()

	trades, err := allTrades(ctx, local)
	if err != nil {
		return err
	}
	if err := out.ReportTrades(ctx, trades); err != nil {
		return err
	}
	events, err := local.Events(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		slog.Info("report: ledger events", "first_page", len(events),
			"last_kind", last.Kind, "last_at", last.CreatedAt.Format(time.RFC3339))
	}

	recent, err := local.RecentSentiment(ctx, limit)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	// RecentSentiment viene del más nuevo al más viejo
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return out.ReportSentiment(ctx, recent)
}

// allTrades recorre el histórico de trades por páginas de id.
func allTrades(ctx context.Context, h ports.LedgerHistory) ([]domain.TradeRecord, error) {
	var all []domain.TradeRecord
	var after int64
	for {
		page, err := h.TradeHistory(ctx, after, reportPage)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		all = append(all, page...)
		if len(page) < reportPage {
			return all, nil
		}
		after = page[len(page)-1].ID
	}
}
