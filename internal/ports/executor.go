package ports

import (
	"context"

	"github.com/alejandrodnm/sentibot/internal/domain"
)

// SentimentSource devuelve los items ya puntuados del ciclo actual.
type SentimentSource interface {
	FetchScored(ctx context.Context) ([]domain.ScoredItem, error)
}

// HoldingsProvider reads wallet balances. Never cached across cycles.
type HoldingsProvider interface {
	GetHoldings(ctx context.Context) (domain.HoldingsSnapshot, error)
}

// PriceOracle returns the reference price of the base asset in quote units.
type PriceOracle interface {
	GetReferencePrice(ctx context.Context) (float64, error)
}

// SwapExecutor submits a swap and returns its transaction reference.
// Errors are classified with domain.Classify at the adapter boundary.
type SwapExecutor interface {
	SubmitSwap(ctx context.Context, req domain.SwapRequest) (domain.SwapReceipt, error)
}

// YieldProtocol moves already-invested capital in and out of a yield venue.
// The pipeline treats a nil YieldProtocol as the placeholder path.
type YieldProtocol interface {
	Deposit(ctx context.Context, amount float64) (domain.SwapReceipt, error)
	Withdraw(ctx context.Context, amount float64) (domain.SwapReceipt, error)
}
