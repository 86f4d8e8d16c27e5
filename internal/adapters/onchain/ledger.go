package onchain

// ledger.go — the on-chain trade ledger contract.
//
// Contract surface:
//   recordSentiment(int256 score, uint256 confidence, uint256 sampleCount)
//   recordTrade(string action, uint256 amount, uint256 confidence, string txRef)
//   isInvested() view returns (bool)
//   tradeCount() view returns (uint256)
//
// Scores, confidences and amounts are sent as round(x × domain.ScaleUnit).
// The contract enforces the same NotInvested <-> Invested machine; the client
// checks it first so a bad transition never costs gas.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

const (
	sentimentGasLimit = uint64(120_000)
	tradeGasLimit     = uint64(200_000)
)

var _ ports.Ledger = (*LedgerClient)(nil)

// LedgerClient implements ports.Ledger against the ledger contract.
// Without an address every write is skipped and reads return
// domain.ErrLedgerUnconfigured.
type LedgerClient struct {
	chain   *Chain
	address common.Address
	enabled bool
}

// NewLedgerClient returns an unconfigured client when address is empty.
func NewLedgerClient(chain *Chain, address string) (*LedgerClient, error) {
	if address == "" {
		return &LedgerClient{}, nil
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("onchain.NewLedgerClient: invalid address %q", address)
	}
	if chain == nil {
		return nil, fmt.Errorf("onchain.NewLedgerClient: chain connection required")
	}
	return &LedgerClient{chain: chain, address: common.HexToAddress(address), enabled: true}, nil
}

// Configured reports whether a contract address was provided.
func (l *LedgerClient) Configured() bool { return l.enabled }

func (l *LedgerClient) RecordSentiment(ctx context.Context, score, confidence float64, sampleCount int) domain.LedgerReceipt {
	if !l.enabled {
		slog.Debug("onchain: ledger unconfigured, sentiment not recorded")
		return domain.Skipped()
	}

	txHash, err := l.chain.transact(ctx, "onchain.RecordSentiment", l.address, ledgerABI, sentimentGasLimit,
		"recordSentiment",
		big.NewInt(domain.ToScaled(score)),
		scaledUint(confidence),
		big.NewInt(int64(sampleCount)),
	)
	if err != nil {
		slog.Warn("onchain: recordSentiment failed", "err", err, "tx", txHash)
		return domain.Failed(err)
	}
	return domain.Recorded(txHash)
}

func (l *LedgerClient) RecordTrade(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	const op = "onchain.RecordTrade"
	if !l.enabled {
		return rec, domain.ErrLedgerUnconfigured
	}

	st, err := l.LoadState(ctx)
	if err != nil {
		return rec, err
	}
	if _, err := st.Investment().Transition(rec.Action); err != nil {
		return rec, domain.Classify(domain.KindInvalidTransition, op, err)
	}

	txHash, err := l.chain.transact(ctx, op, l.address, ledgerABI, tradeGasLimit,
		"recordTrade",
		string(rec.Action),
		scaledUint(rec.Amount),
		scaledUint(rec.Confidence),
		rec.TxRef,
	)
	if err != nil {
		return rec, err
	}

	vals, err := l.chain.call(ctx, op, l.address, ledgerABI, "tradeCount")
	if err != nil {
		// the trade is on chain; only the id lookup failed
		slog.Warn("onchain: tradeCount failed after recordTrade", "tx", txHash, "err", err)
		return rec, nil
	}
	if n, ok := firstBigInt(vals); ok && n.IsInt64() {
		rec.ID = n.Int64()
	}

	slog.Info("onchain: trade recorded", "action", rec.Action, "id", rec.ID, "ledger_tx", txHash)
	return rec, nil
}

func (l *LedgerClient) LoadState(ctx context.Context) (domain.State, error) {
	const op = "onchain.LoadState"
	if !l.enabled {
		return domain.State{}, domain.ErrLedgerUnconfigured
	}
	vals, err := l.chain.call(ctx, op, l.address, ledgerABI, "isInvested")
	if err != nil {
		return domain.State{}, err
	}
	invested, ok := firstBool(vals)
	if !ok {
		return domain.State{}, domain.Classify(domain.KindSerialization, op,
			fmt.Errorf("isInvested: unexpected output %v", vals))
	}
	return domain.State{CurrentlyInvested: invested}, nil
}

// scaledUint scales a non-negative value; negatives are clamped to zero.
func scaledUint(x float64) *big.Int {
	v := domain.ToScaled(x)
	if v < 0 {
		v = 0
	}
	return big.NewInt(v)
}
