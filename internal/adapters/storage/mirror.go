package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

var (
	_ ports.Ledger        = (*Mirror)(nil)
	_ ports.LedgerHistory = (*Mirror)(nil)
)

// Mirror writes to the on-chain ledger first and copies every accepted write
// into SQLite for reporting. The chain is the system of record: mirror errors
// are logged, never returned. Without a configured ledger address the local
// ledger becomes authoritative.
type Mirror struct {
	primary ports.Ledger
	local   *SQLiteLedger
}

// NewMirror creates the live-mode ledger.
func NewMirror(primary ports.Ledger, local *SQLiteLedger) *Mirror {
	return &Mirror{primary: primary, local: local}
}

func (m *Mirror) RecordSentiment(ctx context.Context, score, confidence float64, sampleCount int) domain.LedgerReceipt {
	receipt := m.primary.RecordSentiment(ctx, score, confidence, sampleCount)
	if err := m.local.MirrorSentiment(ctx, score, confidence, sampleCount, receipt.TxRef); err != nil {
		slog.Warn("mirror: sentiment copy failed", "status", receipt.String(), "err", err)
	}
	return receipt
}

func (m *Mirror) RecordTrade(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	out, err := m.primary.RecordTrade(ctx, rec)
	if errors.Is(err, domain.ErrLedgerUnconfigured) {
		return m.local.RecordTrade(ctx, rec)
	}
	if err != nil {
		return out, fmt.Errorf("storage.Mirror.RecordTrade: %w", err)
	}

	if _, lerr := m.local.RecordTrade(ctx, out); lerr != nil {
		// El espejo divergió de la cadena: se realinea el flag.
		slog.Warn("mirror: trade copy failed, resyncing state", "tx", out.TxRef, "err", lerr)
		m.resync(ctx)
	}
	return out, nil
}

// LoadState reads the chain and aligns the mirror. If the chain cannot be read
// the mirror's flag is used.
func (m *Mirror) LoadState(ctx context.Context) (domain.State, error) {
	st, err := m.primary.LoadState(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrLedgerUnconfigured) {
			slog.Warn("mirror: on-chain state unavailable, using local mirror", "err", err)
		}
		return m.local.LoadState(ctx)
	}
	if err := m.local.SetState(ctx, st); err != nil {
		slog.Warn("mirror: state copy failed", "err", err)
	}
	return st, nil
}

func (m *Mirror) resync(ctx context.Context) {
	st, err := m.primary.LoadState(ctx)
	if err != nil {
		slog.Warn("mirror: resync failed", "err", err)
		return
	}
	if err := m.local.SetState(ctx, st); err != nil {
		slog.Warn("mirror: resync failed", "err", err)
	}
}

func (m *Mirror) TradeHistory(ctx context.Context, afterID int64, limit int) ([]domain.TradeRecord, error) {
	return m.local.TradeHistory(ctx, afterID, limit)
}

func (m *Mirror) SentimentHistory(ctx context.Context, afterID int64, limit int) ([]domain.SentimentRecord, error) {
	return m.local.SentimentHistory(ctx, afterID, limit)
}

func (m *Mirror) Events(ctx context.Context, afterID int64, limit int) ([]domain.LedgerEvent, error) {
	return m.local.Events(ctx, afterID, limit)
}
