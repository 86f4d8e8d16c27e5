package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Accepted(t *testing.T) {
	next, err := NotInvested.Transition(ActionBuy)
	require.NoError(t, err)
	assert.Equal(t, Invested, next)

	next, err = NotInvested.Transition(ActionDeposit)
	require.NoError(t, err)
	assert.Equal(t, Invested, next)

	next, err = Invested.Transition(ActionSell)
	require.NoError(t, err)
	assert.Equal(t, NotInvested, next)

	next, err = Invested.Transition(ActionWithdraw)
	require.NoError(t, err)
	assert.Equal(t, NotInvested, next)
}

func TestTransition_Rejected(t *testing.T) {
	cases := []struct {
		from InvestmentState
		a    Action
	}{
		{Invested, ActionBuy},
		{Invested, ActionDeposit},
		{NotInvested, ActionSell},
		{NotInvested, ActionWithdraw},
		{NotInvested, ActionHold},
		{Invested, ActionHold},
	}
	for _, c := range cases {
		next, err := c.from.Transition(c.a)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s from %s", c.a, c.from)
		assert.Equal(t, c.from, next)
	}
}

func TestState_Investment(t *testing.T) {
	assert.Equal(t, Invested, State{CurrentlyInvested: true}.Investment())
	assert.Equal(t, NotInvested, State{}.Investment())
}

func TestScaling(t *testing.T) {
	assert.Equal(t, int64(10_000), ToScaled(1))
	assert.Equal(t, int64(-10_000), ToScaled(-1))
	assert.Equal(t, int64(3_333), ToScaled(0.33333))
	assert.Equal(t, int64(-2_500), ToScaled(-0.25))
	assert.Equal(t, 0.25, FromScaled(2_500))
	assert.InDelta(t, 0.4, SignedSentiment(0.7), 1e-9)
	assert.Equal(t, -1.0, SignedSentiment(0))
}

func TestSwapRequest_MinAmountOut(t *testing.T) {
	r := SwapRequest{ExpectedOut: 200, SlippageBps: 50}
	assert.True(t, decimal.NewFromInt(199).Equal(r.MinAmountOut()), r.MinAmountOut().String())
}

func TestLedgerReceipt_String(t *testing.T) {
	assert.Equal(t, "0xabc", Recorded("0xabc").String())
	assert.Equal(t, "skipped: ledger address unconfigured", Skipped().String())
	assert.Equal(t, "error: submission failed: boom", Failed(errors.New("boom")).String())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, KindInsufficientFunds, KindOf(fmt.Errorf("wrap: %w", ErrInsufficientFunds)))
	assert.Equal(t, KindInvalidTransition, KindOf(fmt.Errorf("wrap: %w", ErrInvalidTransition)))
	assert.Equal(t, KindUnavailable, KindOf(context.DeadlineExceeded))

	err := fmt.Errorf("outer: %w", Classify(KindSerialization, "ledger.pack", errors.New("bad abi")))
	assert.Equal(t, KindSerialization, KindOf(err))
	assert.Contains(t, err.Error(), "ledger.pack: serialization: bad abi")

	assert.Nil(t, Classify(KindNotFound, "op", nil))
}
