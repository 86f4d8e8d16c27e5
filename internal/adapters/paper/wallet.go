// Package paper simula wallet, precio y swaps para el modo mock.
// Los balances viven en memoria durante todo el proceso: cada swap simulado
// afecta al siguiente ciclo igual que lo haría uno real.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

var (
	_ ports.HoldingsProvider = (*Wallet)(nil)
	_ ports.SwapExecutor     = (*Wallet)(nil)
	_ ports.PriceOracle      = FixedPrice(0)
)

// Wallet es una cartera virtual de dos activos.
type Wallet struct {
	baseAsset  string
	quoteAsset string

	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewWallet crea la cartera con los balances iniciales de config.
func NewWallet(baseAsset, quoteAsset string, baseBalance, quoteBalance float64) *Wallet {
	return &Wallet{
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		balances: map[string]decimal.Decimal{
			baseAsset:  decimal.NewFromFloat(baseBalance),
			quoteAsset: decimal.NewFromFloat(quoteBalance),
		},
	}
}

// GetHoldings devuelve los balances simulados actuales.
func (w *Wallet) GetHoldings(_ context.Context) (domain.HoldingsSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.HoldingsSnapshot{
		BaseBalance:  w.balances[w.baseAsset].InexactFloat64(),
		QuoteBalance: w.balances[w.quoteAsset].InexactFloat64(),
	}, nil
}

// SubmitSwap llena al precio esperado: debita Amount de FromAsset y acredita
// ExpectedOut de ToAsset. Devuelve un tx ref sintético "mock-<uuid>".
func (w *Wallet) SubmitSwap(ctx context.Context, req domain.SwapRequest) (domain.SwapReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.SwapReceipt{}, domain.Classify(domain.KindUnavailable, "paper.SubmitSwap", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	from, okFrom := w.balances[req.FromAsset]
	to, okTo := w.balances[req.ToAsset]
	if !okFrom || !okTo || req.FromAsset == req.ToAsset {
		return domain.SwapReceipt{}, domain.Classify(domain.KindNotFound, "paper.SubmitSwap",
			fmt.Errorf("unknown pair %s→%s", req.FromAsset, req.ToAsset))
	}

	amount := decimal.NewFromFloat(req.Amount)
	if from.LessThan(amount) {
		return domain.SwapReceipt{}, domain.Classify(domain.KindInsufficientFunds, "paper.SubmitSwap",
			fmt.Errorf("%w: %s %s < %s", domain.ErrInsufficientFunds, req.FromAsset, from, amount))
	}

	w.balances[req.FromAsset] = from.Sub(amount)
	w.balances[req.ToAsset] = to.Add(decimal.NewFromFloat(req.ExpectedOut))

	ref := "mock-" + uuid.NewString()
	slog.Info("paper: swap simulated",
		"from", req.FromAsset, "to", req.ToAsset,
		"amount_in", req.Amount, "amount_out", req.ExpectedOut,
		"min_out", req.MinAmountOut().String(), "tx", ref)
	return domain.SwapReceipt{TxRef: ref}, nil
}

// FixedPrice es un oráculo de precio constante.
type FixedPrice float64

// NewFixedPrice crea el oráculo con el precio de config.
func NewFixedPrice(p float64) FixedPrice { return FixedPrice(p) }

func (p FixedPrice) GetReferencePrice(_ context.Context) (float64, error) {
	if p <= 0 {
		return 0, domain.Classify(domain.KindUnavailable, "paper.GetReferencePrice",
			fmt.Errorf("paper price not configured"))
	}
	return float64(p), nil
}
