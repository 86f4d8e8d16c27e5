package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/observability"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

const defaultCallTimeout = 30 * time.Second

// Step names one externally visible stage of an execution. Mock and live
// adapters must produce the same sequence for the same inputs.
type Step string

const (
	StepSentiment        Step = "ledger.sentiment"
	StepHoldings         Step = "holdings"
	StepPrice            Step = "price"
	StepFunds            Step = "funds"
	StepYieldPlaceholder Step = "yield.placeholder"
	StepGuard            Step = "ledger.guard"
	StepSwap             Step = "swap"
	StepYield            Step = "yield"
	StepTrade            Step = "ledger.trade"
)

// PipelineConfig holds the execution parameters.
type PipelineConfig struct {
	Mode        string // "mock" | "live", only for logs
	BaseAsset   string
	QuoteAsset  string
	SlippageBps int
	CallTimeout time.Duration
}

// Result is the explicit outcome of one execution. Success=false always comes
// with a Kind and Err; callers branch on Kind.
type Result struct {
	Action      domain.Action
	Amount      float64
	Success     bool
	Kind        domain.ErrorKind
	Err         error
	TxRef       string
	Placeholder bool
	Sentiment   domain.LedgerReceipt
	Trade       *domain.TradeRecord
	LedgerErr   error // trade committed but the ledger append failed
	Steps       []Step
}

func (r *Result) step(s Step) { r.Steps = append(r.Steps, s) }

func (r Result) fail(kind domain.ErrorKind, op string, err error) Result {
	r.Success = false
	r.Kind = kind
	r.Err = domain.Classify(kind, op, err)
	return r
}

// Pipeline validates a decision against holdings and dispatches it.
// There is exactly one code path; mock and live differ only in the adapters.
type Pipeline struct {
	ledger   ports.Ledger
	holdings ports.HoldingsProvider
	prices   ports.PriceOracle
	swaps    ports.SwapExecutor
	yield    ports.YieldProtocol
	cfg      PipelineConfig
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithYieldProtocol wires a yield venue for DEPOSIT/WITHDRAW.
func WithYieldProtocol(y ports.YieldProtocol) Option {
	return func(p *Pipeline) { p.yield = y }
}

func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates the execution pipeline.
func NewPipeline(
	ledger ports.Ledger,
	holdings ports.HoldingsProvider,
	prices ports.PriceOracle,
	swaps ports.SwapExecutor,
	cfg PipelineConfig,
	opts ...Option,
) *Pipeline {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	p := &Pipeline{
		ledger:   ledger,
		holdings: holdings,
		prices:   prices,
		swaps:    swaps,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Execute runs one decision through the pipeline and returns the next state.
// It never returns an error: every failure is classified into the Result.
func (p *Pipeline) Execute(ctx context.Context, state domain.State, d domain.Decision, sampleCount int) (Result, domain.State) {
	res, next := p.execute(ctx, state, d, sampleCount)
	p.metrics.ObserveExecution(string(d.Action), res.Kind.String(), next.CurrentlyInvested)
	return res, next
}

func (p *Pipeline) execute(ctx context.Context, state domain.State, d domain.Decision, sampleCount int) (Result, domain.State) {
	res := Result{Action: d.Action, Amount: d.SuggestedAmount}
	log := slog.With("mode", p.cfg.Mode, "action", string(d.Action))

	// 1. Sentiment: best effort, a failure never blocks the trade
	res.Sentiment = p.recordSentiment(ctx, d.Confidence, sampleCount)
	res.step(StepSentiment)

	// 2. HOLD: nothing to validate or submit
	if d.Action == domain.ActionHold {
		res.Success = true
		log.Info("pipeline: hold", "confidence", fmt.Sprintf("%.2f", d.Confidence))
		return res, state
	}

	// 3. Holdings and price, fetched fresh
	hctx, cancel := p.callCtx(ctx)
	holdings, err := p.holdings.GetHoldings(hctx)
	cancel()
	res.step(StepHoldings)
	if err != nil {
		log.Warn("pipeline: holdings unavailable", "err", err)
		return res.fail(domain.KindUnavailable, "pipeline.holdings", err), state
	}

	pctx, cancel := p.callCtx(ctx)
	price, err := p.prices.GetReferencePrice(pctx)
	cancel()
	res.step(StepPrice)
	if err == nil && price <= 0 {
		err = fmt.Errorf("non-positive reference price %v", price)
	}
	if err != nil {
		log.Warn("pipeline: price unavailable", "err", err)
		return res.fail(domain.KindUnavailable, "pipeline.price", err), state
	}

	// 4-5. Pre-flight funds check, before any submission
	res.step(StepFunds)
	if err := checkFunds(d.Action, d.SuggestedAmount, price, holdings); err != nil {
		log.Warn("pipeline: insufficient funds", "err", err,
			"base", holdings.BaseBalance, "quote", fmt.Sprintf("$%.2f", holdings.QuoteBalance))
		return res.fail(domain.KindInsufficientFunds, "pipeline.funds", err), state
	}

	// 6. DEPOSIT/WITHDRAW without a yield venue: checked and logged, no effect
	if d.Action.IsYield() && p.yield == nil {
		res.step(StepYieldPlaceholder)
		res.Success = true
		res.Placeholder = true
		log.Info("pipeline: yield protocol placeholder, no external effect",
			"reason", domain.ErrNotImplemented,
			"amount", d.SuggestedAmount, "price", fmt.Sprintf("$%.2f", price))
		return res, state
	}

	// 7. Ledger guard: reject double entry/exit before committing funds
	res.step(StepGuard)
	if _, err := state.Investment().Transition(d.Action); err != nil {
		log.Warn("pipeline: rejected by ledger guard", "err", err)
		return res.fail(domain.KindInvalidTransition, "pipeline.guard", err), state
	}

	// 8. Commit
	receipt, err := p.commit(ctx, &res, d, price)
	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindNone {
			kind = domain.KindUnknown
		}
		log.Error("pipeline: submission failed", "kind", kind.String(), "err", err)
		return res.fail(kind, "pipeline.commit", err), state
	}
	res.TxRef = receipt.TxRef
	res.Success = true

	// 9. Append the trade and flip, only after the swap reported success
	next := domain.State{CurrentlyInvested: d.Action.IsEntry()}
	tctx, cancel := p.callCtx(ctx)
	rec, err := p.ledger.RecordTrade(tctx, domain.TradeRecord{
		Timestamp:  p.clock.Now().UTC(),
		Action:     d.Action,
		Amount:     d.SuggestedAmount,
		Confidence: d.Confidence,
		TxRef:      receipt.TxRef,
	})
	cancel()
	res.step(StepTrade)
	if err != nil {
		res.LedgerErr = err
		log.Error("pipeline: trade committed but ledger append failed", "tx", receipt.TxRef, "err", err)
	} else {
		res.Trade = &rec
	}

	log.Info("pipeline: executed",
		"amount", d.SuggestedAmount,
		"price", fmt.Sprintf("$%.2f", price),
		"tx", receipt.TxRef,
		"invested", next.CurrentlyInvested)
	return res, next
}

func (p *Pipeline) recordSentiment(ctx context.Context, confidence float64, sampleCount int) domain.LedgerReceipt {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()

	receipt := p.ledger.RecordSentiment(cctx, domain.SignedSentiment(confidence), confidence, sampleCount)
	p.metrics.ObserveLedgerWrite(string(receipt.Status))
	switch receipt.Status {
	case domain.LedgerRecorded:
		slog.Debug("pipeline: sentiment recorded", "tx", receipt.TxRef)
	case domain.LedgerSkipped:
		slog.Info("pipeline: sentiment not recorded", "status", receipt.String())
	default:
		slog.Warn("pipeline: sentiment record failed", "status", receipt.String())
	}
	return receipt
}

// commit dispatches to the yield venue for DEPOSIT/WITHDRAW and to the swap
// executor otherwise.
func (p *Pipeline) commit(ctx context.Context, res *Result, d domain.Decision, price float64) (domain.SwapReceipt, error) {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()

	switch d.Action {
	case domain.ActionDeposit:
		res.step(StepYield)
		return p.yield.Deposit(cctx, d.SuggestedAmount)
	case domain.ActionWithdraw:
		res.step(StepYield)
		return p.yield.Withdraw(cctx, d.SuggestedAmount)
	}

	res.step(StepSwap)
	return p.swaps.SubmitSwap(cctx, p.swapRequest(d, price))
}

func (p *Pipeline) swapRequest(d domain.Decision, price float64) domain.SwapRequest {
	amount := decimal.NewFromFloat(d.SuggestedAmount)
	notional := amount.Mul(decimal.NewFromFloat(price)).InexactFloat64()

	if d.Action == domain.ActionBuy {
		return domain.SwapRequest{
			FromAsset:   p.cfg.QuoteAsset,
			ToAsset:     p.cfg.BaseAsset,
			Amount:      notional,
			ExpectedOut: d.SuggestedAmount,
			SlippageBps: p.cfg.SlippageBps,
		}
	}
	return domain.SwapRequest{
		FromAsset:   p.cfg.BaseAsset,
		ToAsset:     p.cfg.QuoteAsset,
		Amount:      d.SuggestedAmount,
		ExpectedOut: notional,
		SlippageBps: p.cfg.SlippageBps,
	}
}

// checkFunds: entries need amount × price of quote, exits need amount of base.
func checkFunds(a domain.Action, amount, price float64, h domain.HoldingsSnapshot) error {
	amt := decimal.NewFromFloat(amount)
	if a.IsEntry() {
		required := amt.Mul(decimal.NewFromFloat(price))
		if decimal.NewFromFloat(h.QuoteBalance).LessThan(required) {
			return fmt.Errorf("%w: quote %s < required %s", domain.ErrInsufficientFunds,
				decimal.NewFromFloat(h.QuoteBalance).String(), required.String())
		}
		return nil
	}
	if decimal.NewFromFloat(h.BaseBalance).LessThan(amt) {
		return fmt.Errorf("%w: base %s < amount %s", domain.ErrInsufficientFunds,
			decimal.NewFromFloat(h.BaseBalance).String(), amt.String())
	}
	return nil
}

func (p *Pipeline) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.CallTimeout)
}
