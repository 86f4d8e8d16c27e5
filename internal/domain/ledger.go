package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// State is the only cross-cycle mutable state. It is passed into each cycle and
// returned from it; the ledger persists it so restarts keep it.
type State struct {
	CurrentlyInvested bool
}

// Investment returns the ledger state-machine view of the flag.
func (s State) Investment() InvestmentState {
	if s.CurrentlyInvested {
		return Invested
	}
	return NotInvested
}

// InvestmentState is the ledger state machine: NotInvested <-> Invested.
type InvestmentState int

const (
	NotInvested InvestmentState = iota
	Invested
)

func (s InvestmentState) String() string {
	if s == Invested {
		return "Invested"
	}
	return "NotInvested"
}

// Transition applies a committed action. BUY/DEPOSIT is only accepted from
// NotInvested and SELL/WITHDRAW only from Invested. HOLD is never a transition.
func (s InvestmentState) Transition(a Action) (InvestmentState, error) {
	switch {
	case a.IsEntry() && s == NotInvested:
		return Invested, nil
	case a.IsExit() && s == Invested:
		return NotInvested, nil
	}
	return s, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, a, s)
}

// HoldingsSnapshot is read fresh before every committed trade.
type HoldingsSnapshot struct {
	BaseBalance  float64
	QuoteBalance float64
}

// SwapRequest is what the pipeline hands to the swap collaborator.
// Amount is denominated in FromAsset; ExpectedOut in ToAsset at the reference price.
type SwapRequest struct {
	FromAsset   string
	ToAsset     string
	Amount      float64
	ExpectedOut float64
	SlippageBps int
}

// MinAmountOut applies the slippage tolerance to ExpectedOut.
func (r SwapRequest) MinAmountOut() decimal.Decimal {
	tol := decimal.NewFromInt(int64(r.SlippageBps)).Div(decimal.NewFromInt(10_000))
	return decimal.NewFromFloat(r.ExpectedOut).Mul(decimal.NewFromInt(1).Sub(tol))
}

// SwapReceipt identifies a submitted swap.
type SwapReceipt struct {
	TxRef string
}

// TradeRecord is appended once per accepted ledger transition.
type TradeRecord struct {
	ID         int64
	Timestamp  time.Time
	Action     Action
	Amount     float64
	Confidence float64
	TxRef      string
}

// SentimentRecord is appended every cycle regardless of trade outcome.
// Score and Confidence are integer-scaled by ScaleUnit.
type SentimentRecord struct {
	ID          int64
	Timestamp   time.Time
	Score       int64
	Confidence  int64
	SampleCount int
}

// LedgerEvent is the notification emitted for each accepted transition.
type LedgerEvent struct {
	ID        int64
	EventID   string // UUID
	Kind      string
	RecordID  int64
	Payload   string
	CreatedAt time.Time
}

const EventTradeRecorded = "TradeRecorded"

// LedgerStatus distinguishes the outcomes of a best-effort ledger write.
type LedgerStatus string

const (
	LedgerRecorded LedgerStatus = "recorded"
	LedgerSkipped  LedgerStatus = "skipped"
	LedgerFailed   LedgerStatus = "error"
)

// LedgerReceipt is returned by RecordSentiment; it never carries a panic or a
// bare error past the ledger boundary.
type LedgerReceipt struct {
	Status LedgerStatus
	TxRef  string
	Err    error
}

// ReasonUnconfigured and ReasonSubmission are the fixed status reasons.
const (
	ReasonUnconfigured = "ledger address unconfigured"
	ReasonSubmission   = "submission failed"
)

func (r LedgerReceipt) String() string {
	switch r.Status {
	case LedgerRecorded:
		return r.TxRef
	case LedgerSkipped:
		return "skipped: " + ReasonUnconfigured
	}
	if r.Err != nil {
		return fmt.Sprintf("error: %s: %v", ReasonSubmission, r.Err)
	}
	return "error: " + ReasonSubmission
}

// Recorded builds a success receipt.
func Recorded(txRef string) LedgerReceipt { return LedgerReceipt{Status: LedgerRecorded, TxRef: txRef} }

// Skipped builds the "ledger address unconfigured" receipt.
func Skipped() LedgerReceipt { return LedgerReceipt{Status: LedgerSkipped} }

// Failed builds a submission-failure receipt.
func Failed(err error) LedgerReceipt { return LedgerReceipt{Status: LedgerFailed, Err: err} }

// ScaleUnit is the fixed-point factor used for on-chain and stored scores.
const ScaleUnit = 10_000

// ToScaled returns round(x × ScaleUnit).
func ToScaled(x float64) int64 {
	return decimal.NewFromFloat(x).Mul(decimal.NewFromInt(ScaleUnit)).Round(0).IntPart()
}

// FromScaled is the inverse of ToScaled.
func FromScaled(v int64) float64 {
	return decimal.New(v, 0).Div(decimal.NewFromInt(ScaleUnit)).InexactFloat64()
}

// SignedSentiment maps a confidence in [0,1] to the signed proxy stored on the ledger.
func SignedSentiment(confidence float64) float64 {
	return confidence*2 - 1
}
