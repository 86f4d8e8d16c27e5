package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

// Token is an ERC20 the bot holds.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int32
}

// Pair is the traded pair: Base is what gets bought and sold, Quote is the cash side.
type Pair struct {
	Base  Token
	Quote Token
}

// bySymbol resolves an asset symbol used in SwapRequest to its token.
func (p Pair) bySymbol(symbol string) (Token, bool) {
	switch symbol {
	case p.Base.Symbol:
		return p.Base, true
	case p.Quote.Symbol:
		return p.Quote, true
	}
	return Token{}, false
}

var _ ports.HoldingsProvider = (*Wallet)(nil)

// Wallet reads ERC20 balances of the bot address. Balances are read on every
// call; nothing is cached across cycles.
type Wallet struct {
	chain *Chain
	pair  Pair
}

func NewWallet(chain *Chain, pair Pair) *Wallet {
	return &Wallet{chain: chain, pair: pair}
}

func (w *Wallet) GetHoldings(ctx context.Context) (domain.HoldingsSnapshot, error) {
	base, err := w.balanceOf(ctx, w.pair.Base)
	if err != nil {
		return domain.HoldingsSnapshot{}, err
	}
	quote, err := w.balanceOf(ctx, w.pair.Quote)
	if err != nil {
		return domain.HoldingsSnapshot{}, err
	}
	return domain.HoldingsSnapshot{
		BaseBalance:  base.InexactFloat64(),
		QuoteBalance: quote.InexactFloat64(),
	}, nil
}

func (w *Wallet) balanceOf(ctx context.Context, t Token) (decimal.Decimal, error) {
	vals, err := w.chain.call(ctx, "onchain.GetHoldings", t.Address, erc20ABI, "balanceOf", w.chain.address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance %s: %w", t.Symbol, err)
	}
	units, ok := firstBigInt(vals)
	if !ok {
		return decimal.Zero, domain.Classify(domain.KindSerialization, "onchain.GetHoldings",
			fmt.Errorf("balanceOf %s: unexpected output %v", t.Symbol, vals))
	}
	return FromBaseUnits(units, t.Decimals), nil
}

func firstBigInt(vals []interface{}) (*big.Int, bool) {
	if len(vals) == 0 {
		return nil, false
	}
	v, ok := vals[0].(*big.Int)
	return v, ok
}

func firstBool(vals []interface{}) (bool, bool) {
	if len(vals) == 0 {
		return false, false
	}
	v, ok := vals[0].(bool)
	return v, ok
}
