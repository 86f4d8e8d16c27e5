package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alejandrodnm/sentibot/internal/domain"
)

// calls records the order in which collaborators were reached.
type calls struct {
	mu  sync.Mutex
	seq []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = append(c.seq, s)
}

type fakeLedger struct {
	calls    *calls
	receipt  domain.LedgerReceipt
	state    domain.InvestmentState
	trades   []domain.TradeRecord
	tradeErr error
	scores   []float64
}

func newFakeLedger(c *calls) *fakeLedger {
	return &fakeLedger{calls: c, receipt: domain.Recorded("0xsentiment")}
}

func (l *fakeLedger) RecordSentiment(_ context.Context, score, _ float64, _ int) domain.LedgerReceipt {
	l.calls.add("ledger.sentiment")
	l.scores = append(l.scores, score)
	return l.receipt
}

func (l *fakeLedger) RecordTrade(_ context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	l.calls.add("ledger.trade")
	if l.tradeErr != nil {
		return domain.TradeRecord{}, l.tradeErr
	}
	next, err := l.state.Transition(rec.Action)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	l.state = next
	rec.ID = int64(len(l.trades) + 1)
	l.trades = append(l.trades, rec)
	return rec, nil
}

func (l *fakeLedger) LoadState(context.Context) (domain.State, error) {
	return domain.State{CurrentlyInvested: l.state == domain.Invested}, nil
}

type fakeHoldings struct {
	calls *calls
	snap  domain.HoldingsSnapshot
	err   error
	block bool
}

func (h *fakeHoldings) GetHoldings(ctx context.Context) (domain.HoldingsSnapshot, error) {
	h.calls.add("holdings")
	if h.block {
		<-ctx.Done()
		return domain.HoldingsSnapshot{}, fmt.Errorf("fake.GetHoldings: %w", ctx.Err())
	}
	return h.snap, h.err
}

type fakePrice struct {
	calls *calls
	price float64
	err   error
}

func (p *fakePrice) GetReferencePrice(context.Context) (float64, error) {
	p.calls.add("price")
	return p.price, p.err
}

type fakeSwap struct {
	calls *calls
	reqs  []domain.SwapRequest
	err   error
}

func (s *fakeSwap) SubmitSwap(_ context.Context, req domain.SwapRequest) (domain.SwapReceipt, error) {
	s.calls.add("swap")
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return domain.SwapReceipt{}, s.err
	}
	return domain.SwapReceipt{TxRef: fmt.Sprintf("0xswap%d", len(s.reqs))}, nil
}

type fakeYield struct {
	calls *calls
	err   error
}

func (y *fakeYield) Deposit(context.Context, float64) (domain.SwapReceipt, error) {
	y.calls.add("yield.deposit")
	return domain.SwapReceipt{TxRef: "0xdeposit"}, y.err
}

func (y *fakeYield) Withdraw(context.Context, float64) (domain.SwapReceipt, error) {
	y.calls.add("yield.withdraw")
	return domain.SwapReceipt{TxRef: "0xwithdraw"}, y.err
}

type fakeSource struct {
	items []domain.ScoredItem
	err   error
}

func (s *fakeSource) FetchScored(context.Context) ([]domain.ScoredItem, error) {
	return s.items, s.err
}

type fakeFeedback struct {
	messages []string
	err      error
}

func (f *fakeFeedback) PostFeedback(_ context.Context, msg string) error {
	f.messages = append(f.messages, msg)
	return f.err
}

var errBoom = errors.New("boom")
