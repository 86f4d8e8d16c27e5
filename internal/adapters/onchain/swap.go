package onchain

// swap.go — swaps through a UniswapV2-compatible router.
//
// One swap is:
//   - allowance check of FromAsset for the router (approve max if short)
//   - swapExactTokensForTokens(amountIn, minOut, [from, to], bot, deadline)
//
// minOut comes from SwapRequest.MinAmountOut (expected output minus slippage).

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

const (
	swapGasLimit     = uint64(250_000)
	approvalGasLimit = uint64(80_000)
	swapDeadline     = 10 * time.Minute
)

var _ ports.SwapExecutor = (*Router)(nil)

// Router implements ports.SwapExecutor against an AMM router contract.
type Router struct {
	chain  *Chain
	router common.Address
	pair   Pair
	now    func() time.Time
}

func NewRouter(chain *Chain, router common.Address, pair Pair) *Router {
	return &Router{chain: chain, router: router, pair: pair, now: time.Now}
}

func (r *Router) SubmitSwap(ctx context.Context, req domain.SwapRequest) (domain.SwapReceipt, error) {
	const op = "onchain.SubmitSwap"

	call, err := r.buildSwap(req)
	if err != nil {
		return domain.SwapReceipt{}, err
	}

	if err := r.chain.requireCode(ctx, op, r.router); err != nil {
		return domain.SwapReceipt{}, err
	}
	if err := r.ensureAllowance(ctx, call.from, call.amountIn); err != nil {
		return domain.SwapReceipt{}, err
	}

	txHash, err := r.chain.transact(ctx, op, r.router, routerABI, swapGasLimit,
		"swapExactTokensForTokens",
		call.amountIn, call.minOut, call.path, r.chain.address, call.deadline)
	if err != nil {
		return domain.SwapReceipt{TxRef: txHash}, err
	}

	slog.Info("onchain: swap confirmed",
		"from", req.FromAsset, "to", req.ToAsset,
		"amount_in", req.Amount, "min_out", req.MinAmountOut().String(),
		"tx", txHash)
	return domain.SwapReceipt{TxRef: txHash}, nil
}

type swapCall struct {
	from     Token
	amountIn *big.Int
	minOut   *big.Int
	path     []common.Address
	deadline *big.Int
}

// buildSwap resolves tokens and converts amounts to integer token units.
func (r *Router) buildSwap(req domain.SwapRequest) (swapCall, error) {
	const op = "onchain.SubmitSwap"

	from, okFrom := r.pair.bySymbol(req.FromAsset)
	to, okTo := r.pair.bySymbol(req.ToAsset)
	if !okFrom || !okTo || from.Address == to.Address {
		return swapCall{}, domain.Classify(domain.KindNotFound, op,
			fmt.Errorf("unknown pair %s→%s", req.FromAsset, req.ToAsset))
	}

	amountIn, err := ToBaseUnits(decimal.NewFromFloat(req.Amount), from.Decimals)
	if err != nil || amountIn.Sign() == 0 {
		return swapCall{}, domain.Classify(domain.KindSerialization, op,
			fmt.Errorf("amount in %v %s: %v", req.Amount, from.Symbol, err))
	}
	minOut, err := ToBaseUnits(req.MinAmountOut(), to.Decimals)
	if err != nil {
		return swapCall{}, domain.Classify(domain.KindSerialization, op, fmt.Errorf("min out: %w", err))
	}

	return swapCall{
		from:     from,
		amountIn: amountIn,
		minOut:   minOut,
		path:     []common.Address{from.Address, to.Address},
		deadline: big.NewInt(r.now().Add(swapDeadline).Unix()),
	}, nil
}

// ensureAllowance approves the router for the max amount when the current
// allowance does not cover amount.
func (r *Router) ensureAllowance(ctx context.Context, t Token, amount *big.Int) error {
	const op = "onchain.ensureAllowance"

	vals, err := r.chain.call(ctx, op, t.Address, erc20ABI, "allowance", r.chain.address, r.router)
	if err != nil {
		return err
	}
	allowance, ok := firstBigInt(vals)
	if !ok {
		return domain.Classify(domain.KindSerialization, op, fmt.Errorf("allowance: unexpected output %v", vals))
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	slog.Info("onchain: setting router approval", "token", t.Symbol, "router", r.router.Hex())
	if _, err := r.chain.transact(ctx, op, t.Address, erc20ABI, approvalGasLimit, "approve", r.router, maxUint256); err != nil {
		return fmt.Errorf("approve %s: %w", t.Symbol, err)
	}
	return nil
}
