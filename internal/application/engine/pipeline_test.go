package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sentibot/internal/adapters/paper"
	"github.com/alejandrodnm/sentibot/internal/adapters/storage"
	"github.com/alejandrodnm/sentibot/internal/application/engine"
	"github.com/alejandrodnm/sentibot/internal/domain"
)

var pipeCfg = engine.PipelineConfig{
	Mode:        "test",
	BaseAsset:   "WETH",
	QuoteAsset:  "USDC",
	SlippageBps: 50,
	CallTimeout: time.Second,
}

type rig struct {
	calls    *calls
	ledger   *fakeLedger
	holdings *fakeHoldings
	price    *fakePrice
	swap     *fakeSwap
}

func newRig(snap domain.HoldingsSnapshot, price float64) *rig {
	c := &calls{}
	return &rig{
		calls:    c,
		ledger:   newFakeLedger(c),
		holdings: &fakeHoldings{calls: c, snap: snap},
		price:    &fakePrice{calls: c, price: price},
		swap:     &fakeSwap{calls: c},
	}
}

func (r *rig) pipeline(opts ...engine.Option) *engine.Pipeline {
	return engine.NewPipeline(r.ledger, r.holdings, r.price, r.swap, pipeCfg, opts...)
}

func buy(amount, conf float64) domain.Decision {
	return domain.Decision{Action: domain.ActionBuy, Confidence: conf, SuggestedAmount: amount}
}

func TestExecute_HoldSkipsChecks(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{}, 0)
	d := domain.Decision{Action: domain.ActionHold, Confidence: 0.5}

	res, next := r.pipeline().Execute(context.Background(), domain.State{}, d, 12)

	assert.True(t, res.Success)
	assert.Equal(t, domain.KindNone, res.Kind)
	assert.Equal(t, []string{"ledger.sentiment"}, r.calls.seq)
	assert.False(t, next.CurrentlyInvested)
	assert.InDelta(t, 0.0, r.ledger.scores[0], 1e-9)
}

func TestExecute_BuyInsufficientQuote(t *testing.T) {
	// quote 10, price 20, amount 1 → required 20 > 10
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 10}, 20)

	res, next := r.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.6), 20)

	assert.False(t, res.Success)
	assert.Equal(t, domain.KindInsufficientFunds, res.Kind)
	assert.ErrorIs(t, res.Err, domain.ErrInsufficientFunds)
	assert.Empty(t, r.swap.reqs)
	assert.False(t, next.CurrentlyInvested)
	assert.Equal(t, []string{"ledger.sentiment", "holdings", "price"}, r.calls.seq)
}

func TestExecute_BuySuccessFlipsAndRecords(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 20)

	res, next := r.pipeline().Execute(context.Background(), domain.State{}, buy(2, 0.8), 20)

	require.True(t, res.Success, res.Err)
	assert.True(t, next.CurrentlyInvested)
	assert.Equal(t, "0xswap1", res.TxRef)
	require.NotNil(t, res.Trade)
	assert.Equal(t, int64(1), res.Trade.ID)
	assert.Equal(t, domain.ActionBuy, res.Trade.Action)
	assert.Equal(t, 0.8, res.Trade.Confidence)

	require.Len(t, r.swap.reqs, 1)
	req := r.swap.reqs[0]
	assert.Equal(t, "USDC", req.FromAsset)
	assert.Equal(t, "WETH", req.ToAsset)
	assert.InDelta(t, 40.0, req.Amount, 1e-9)
	assert.InDelta(t, 2.0, req.ExpectedOut, 1e-9)
	assert.Equal(t, 50, req.SlippageBps)

	assert.Equal(t, []string{"ledger.sentiment", "holdings", "price", "swap", "ledger.trade"}, r.calls.seq)
	assert.Equal(t, []engine.Step{
		engine.StepSentiment, engine.StepHoldings, engine.StepPrice, engine.StepFunds,
		engine.StepGuard, engine.StepSwap, engine.StepTrade,
	}, res.Steps)
}

func TestExecute_SellSuccessFlipsBack(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{BaseBalance: 5}, 20)
	r.ledger.state = domain.Invested
	d := domain.Decision{Action: domain.ActionSell, Confidence: 0.5, SuggestedAmount: 5}

	res, next := r.pipeline().Execute(context.Background(), domain.State{CurrentlyInvested: true}, d, 20)

	require.True(t, res.Success, res.Err)
	assert.False(t, next.CurrentlyInvested)
	req := r.swap.reqs[0]
	assert.Equal(t, "WETH", req.FromAsset)
	assert.InDelta(t, 5.0, req.Amount, 1e-9)
	assert.InDelta(t, 100.0, req.ExpectedOut, 1e-9)
}

func TestExecute_SellInsufficientBase(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{BaseBalance: 1, QuoteBalance: 1000}, 20)
	d := domain.Decision{Action: domain.ActionSell, Confidence: 0.5, SuggestedAmount: 3}

	res, _ := r.pipeline().Execute(context.Background(), domain.State{}, d, 20)

	assert.Equal(t, domain.KindInsufficientFunds, res.Kind)
	assert.Empty(t, r.swap.reqs)
}

func TestExecute_BuyWhileInvestedRejectedByGuard(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 1000}, 20)
	r.ledger.state = domain.Invested

	res, next := r.pipeline().Execute(context.Background(), domain.State{CurrentlyInvested: true}, buy(1, 0.5), 20)

	assert.False(t, res.Success)
	assert.Equal(t, domain.KindInvalidTransition, res.Kind)
	assert.ErrorIs(t, res.Err, domain.ErrInvalidTransition)
	assert.Empty(t, r.swap.reqs)
	assert.True(t, next.CurrentlyInvested)
}

func TestExecute_SentimentFailureDoesNotBlockTrade(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 20)
	r.ledger.receipt = domain.Failed(errBoom)

	res, next := r.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.9), 20)

	assert.Equal(t, domain.LedgerFailed, res.Sentiment.Status)
	assert.True(t, res.Success)
	assert.True(t, next.CurrentlyInvested)
	assert.Len(t, r.swap.reqs, 1)
}

func TestExecute_SentimentSkippedWhenUnconfigured(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 20)
	r.ledger.receipt = domain.Skipped()

	res, _ := r.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.9), 20)

	assert.Equal(t, "skipped: ledger address unconfigured", res.Sentiment.String())
	assert.True(t, res.Success)
}

func TestExecute_SignedSentimentProxy(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 20)
	r.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.75), 20)
	assert.InDelta(t, 0.5, r.ledger.scores[0], 1e-9)
}

func TestExecute_HoldingsUnavailable(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{}, 20)
	r.holdings.err = errBoom

	res, next := r.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.5), 20)

	assert.Equal(t, domain.KindUnavailable, res.Kind)
	assert.ErrorIs(t, res.Err, errBoom)
	assert.False(t, next.CurrentlyInvested)
	assert.NotContains(t, r.calls.seq, "price")
}

func TestExecute_PriceUnavailable(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 0)
	r.price.err = errBoom

	res, _ := r.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.5), 20)
	assert.Equal(t, domain.KindUnavailable, res.Kind)

	r2 := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 0)
	res, _ = r2.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.5), 20)
	assert.Equal(t, domain.KindUnavailable, res.Kind)
	assert.Empty(t, r2.swap.reqs)
}

func TestExecute_CallTimeout(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{}, 20)
	r.holdings.block = true
	cfg := pipeCfg
	cfg.CallTimeout = 20 * time.Millisecond
	p := engine.NewPipeline(r.ledger, r.holdings, r.price, r.swap, cfg)

	res, _ := p.Execute(context.Background(), domain.State{}, buy(1, 0.5), 20)

	assert.Equal(t, domain.KindUnavailable, res.Kind)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestExecute_SwapErrorsClassified(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"serialization", domain.Classify(domain.KindSerialization, "router.pack", errBoom), domain.KindSerialization},
		{"not found", domain.Classify(domain.KindNotFound, "router.code", errBoom), domain.KindNotFound},
		{"unavailable", domain.Classify(domain.KindUnavailable, "router.send", errBoom), domain.KindUnavailable},
		{"unclassified", errors.New("weird"), domain.KindUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 20)
			r.swap.err = c.err

			res, next := r.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.5), 20)

			assert.False(t, res.Success)
			assert.Equal(t, c.want, res.Kind)
			assert.False(t, next.CurrentlyInvested)
			assert.Empty(t, r.ledger.trades)
		})
	}
}

func TestExecute_LedgerAppendFailureKeepsCommittedFlip(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 20)
	r.ledger.tradeErr = errBoom

	res, next := r.pipeline().Execute(context.Background(), domain.State{}, buy(1, 0.5), 20)

	assert.True(t, res.Success)
	assert.ErrorIs(t, res.LedgerErr, errBoom)
	assert.Nil(t, res.Trade)
	assert.True(t, next.CurrentlyInvested)
}

func TestExecute_DepositWithoutYieldIsPlaceholder(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 20)
	d := domain.Decision{Action: domain.ActionDeposit, Confidence: 0.5, SuggestedAmount: 2}

	res, next := r.pipeline().Execute(context.Background(), domain.State{CurrentlyInvested: true}, d, 20)

	assert.True(t, res.Success)
	assert.True(t, res.Placeholder)
	assert.True(t, next.CurrentlyInvested)
	assert.Empty(t, r.swap.reqs)
	assert.Equal(t, []string{"ledger.sentiment", "holdings", "price"}, r.calls.seq)
	assert.Contains(t, res.Steps, engine.StepYieldPlaceholder)
}

func TestExecute_WithdrawPlaceholderStillChecksFunds(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{BaseBalance: 1}, 20)
	d := domain.Decision{Action: domain.ActionWithdraw, Confidence: 0.5, SuggestedAmount: 2}

	res, _ := r.pipeline().Execute(context.Background(), domain.State{CurrentlyInvested: true}, d, 20)

	assert.False(t, res.Success)
	assert.Equal(t, domain.KindInsufficientFunds, res.Kind)
	assert.False(t, res.Placeholder)
}

func TestExecute_WithdrawThroughYieldProtocol(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{BaseBalance: 5}, 20)
	r.ledger.state = domain.Invested
	y := &fakeYield{calls: r.calls}
	d := domain.Decision{Action: domain.ActionWithdraw, Confidence: 0.5, SuggestedAmount: 2}

	res, next := r.pipeline(engine.WithYieldProtocol(y)).Execute(context.Background(), domain.State{CurrentlyInvested: true}, d, 20)

	require.True(t, res.Success, res.Err)
	assert.Equal(t, "0xwithdraw", res.TxRef)
	assert.False(t, next.CurrentlyInvested)
	assert.Contains(t, r.calls.seq, "yield.withdraw")
	assert.Empty(t, r.swap.reqs)
}

func TestExecute_DepositThroughYieldRejectedWhileInvested(t *testing.T) {
	r := newRig(domain.HoldingsSnapshot{QuoteBalance: 100}, 20)
	y := &fakeYield{calls: r.calls}
	d := domain.Decision{Action: domain.ActionDeposit, Confidence: 0.5, SuggestedAmount: 2}

	res, _ := r.pipeline(engine.WithYieldProtocol(y)).Execute(context.Background(), domain.State{CurrentlyInvested: true}, d, 20)

	assert.Equal(t, domain.KindInvalidTransition, res.Kind)
	assert.NotContains(t, r.calls.seq, "yield.deposit")
}

// Same inputs through the paper adapters and through live-shaped fakes must
// walk the same steps and end in the same state.
func TestExecute_MockAndLiveParity(t *testing.T) {
	decisions := []struct {
		d     domain.Decision
		state domain.State
	}{
		{domain.Decision{Action: domain.ActionHold, Confidence: 0.5}, domain.State{}},
		{buy(1, 0.6), domain.State{}},
		{buy(100, 0.9), domain.State{}},
		{buy(1, 0.6), domain.State{CurrentlyInvested: true}},
		{domain.Decision{Action: domain.ActionSell, Confidence: 0.4, SuggestedAmount: 2}, domain.State{CurrentlyInvested: true}},
		{domain.Decision{Action: domain.ActionSell, Confidence: 0.4, SuggestedAmount: 2}, domain.State{}},
		{domain.Decision{Action: domain.ActionDeposit, Confidence: 0.4, SuggestedAmount: 1}, domain.State{CurrentlyInvested: true}},
		{domain.Decision{Action: domain.ActionWithdraw, Confidence: 0.4, SuggestedAmount: 1}, domain.State{CurrentlyInvested: true}},
	}

	for _, c := range decisions {
		live := newRig(domain.HoldingsSnapshot{BaseBalance: 3, QuoteBalance: 100}, 20)
		if c.state.CurrentlyInvested {
			live.ledger.state = domain.Invested
		}
		liveRes, liveNext := live.pipeline().Execute(context.Background(), c.state, c.d, 20)

		ledger, err := storage.NewSQLiteLedger(":memory:")
		require.NoError(t, err)
		if c.state.CurrentlyInvested {
			require.NoError(t, ledger.SetState(context.Background(), c.state))
		}
		wallet := paper.NewWallet("WETH", "USDC", 3, 100)
		mock := engine.NewPipeline(ledger, wallet, paper.NewFixedPrice(20), wallet, pipeCfg)
		mockRes, mockNext := mock.Execute(context.Background(), c.state, c.d, 20)
		ledger.Close()

		assert.Equal(t, liveRes.Steps, mockRes.Steps, "%s invested=%t", c.d.Action, c.state.CurrentlyInvested)
		assert.Equal(t, liveRes.Success, mockRes.Success, "%s", c.d.Action)
		assert.Equal(t, liveRes.Kind, mockRes.Kind, "%s", c.d.Action)
		assert.Equal(t, liveNext, mockNext, "%s", c.d.Action)
	}
}
