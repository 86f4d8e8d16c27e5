package ports

import (
	"context"

	"github.com/alejandrodnm/sentibot/internal/domain"
)

// Ledger is the append-only record of sentiment observations and trades plus
// the investment flag. The on-chain contract is the system of record; SQLite
// serves as local ledger in mock mode and as mirror in live mode.
type Ledger interface {
	// RecordSentiment never fails past its boundary: the receipt carries
	// recorded, skipped or error.
	RecordSentiment(ctx context.Context, score, confidence float64, sampleCount int) domain.LedgerReceipt

	// RecordTrade applies the state-machine transition for rec.Action and
	// appends the record. Returns domain.ErrInvalidTransition on double entry/exit.
	RecordTrade(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error)

	// LoadState returns the persisted investment flag.
	LoadState(ctx context.Context) (domain.State, error)
}

// LedgerHistory pages through the append-only tables by record id.
type LedgerHistory interface {
	TradeHistory(ctx context.Context, afterID int64, limit int) ([]domain.TradeRecord, error)
	SentimentHistory(ctx context.Context, afterID int64, limit int) ([]domain.SentimentRecord, error)
	Events(ctx context.Context, afterID int64, limit int) ([]domain.LedgerEvent, error)
}
