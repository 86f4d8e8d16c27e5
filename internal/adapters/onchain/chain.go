package onchain

// chain.go — shared transaction plumbing for the on-chain adapters.
//
// Every adapter in this package (wallet holdings, swap router, ledger contract)
// goes through Chain for:
//   - read-only contract calls (pack → eth_call → unpack)
//   - signed transactions (nonce, cached gas price, gas estimate, EIP-155 signing)
//   - receipt polling
//   - error classification at the adapter boundary

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alejandrodnm/sentibot/internal/domain"
)

const (
	gasPriceUpdateInterval = 5 * time.Minute
	fallbackGasPriceWei    = 30_000_000_000 // 30 gwei

	defaultReceiptTimeout = 90 * time.Second
	defaultReceiptPoll    = 3 * time.Second

	// JSON-RPC "method not found"
	rpcMethodNotFound = -32601
)

// Backend is the subset of *ethclient.Client the adapters need.
type Backend interface {
	ethereum.ChainIDReader
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Chain holds the RPC connection and the signing key of the bot wallet.
type Chain struct {
	client  Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int

	receiptTimeout time.Duration
	receiptPoll    time.Duration

	// serializes nonce allocation across adapters
	sendMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// Dial connects to rpcURL and loads the hex private key (with or without 0x).
// A zero chainID is resolved from the node.
func Dial(ctx context.Context, rpcURL, privateKeyHex string, chainID int64) (*Chain, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: dial rpc %s: %w", rpcURL, err)
	}
	return NewChain(ctx, client, privateKeyHex, chainID)
}

// NewChain wraps an existing backend.
func NewChain(ctx context.Context, client Backend, privateKeyHex string, chainID int64) (*Chain, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewChain: %w", err)
	}

	id := big.NewInt(chainID)
	if chainID == 0 {
		id, err = client.ChainID(ctx)
		if err != nil {
			return nil, classify("onchain.NewChain", fmt.Errorf("chain id: %w", err))
		}
	}

	return &Chain{
		client:         client,
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:        id,
		receiptTimeout: defaultReceiptTimeout,
		receiptPoll:    defaultReceiptPoll,
	}, nil
}

// ParsePrivateKey decodes a secp256k1 key from hex.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// Address returns the bot wallet address.
func (c *Chain) Address() common.Address { return c.address }

// SetReceiptPolling overrides how long and how often receipts are polled.
func (c *Chain) SetReceiptPolling(timeout, every time.Duration) {
	c.receiptTimeout = timeout
	c.receiptPoll = every
}

// call packs method+args, runs eth_call against to and unpacks the outputs.
func (c *Chain) call(ctx context.Context, op string, to common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, domain.Classify(domain.KindSerialization, op, fmt.Errorf("pack %s: %w", method, err))
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{From: c.address, To: &to, Data: data}, nil)
	if err != nil {
		return nil, classify(op, fmt.Errorf("call %s: %w", method, err))
	}
	if len(out) == 0 {
		// eth_call to an address without code returns empty data
		if err := c.requireCode(ctx, op, to); err != nil {
			return nil, err
		}
	}

	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, domain.Classify(domain.KindSerialization, op, fmt.Errorf("unpack %s: %w", method, err))
	}
	return vals, nil
}

// requireCode fails with KindNotFound when no contract is deployed at addr.
func (c *Chain) requireCode(ctx context.Context, op string, addr common.Address) error {
	code, err := c.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return classify(op, fmt.Errorf("code at %s: %w", addr.Hex(), err))
	}
	if len(code) == 0 {
		return domain.Classify(domain.KindNotFound, op, fmt.Errorf("no contract at %s", addr.Hex()))
	}
	return nil
}

// transact signs and sends a call to `to`, then waits for the receipt.
// fallbackGas is used when estimation fails. Returns the tx hash.
func (c *Chain) transact(ctx context.Context, op string, to common.Address, contract abi.ABI, fallbackGas uint64, method string, args ...interface{}) (string, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return "", domain.Classify(domain.KindSerialization, op, fmt.Errorf("pack %s: %w", method, err))
	}

	c.sendMu.Lock()
	signed, err := c.signAndSend(ctx, op, to, fallbackGas, data)
	c.sendMu.Unlock()
	if err != nil {
		return "", err
	}

	txHash := signed.Hash().Hex()
	slog.Debug("onchain: transaction sent", "method", method, "to", to.Hex(), "tx", txHash)

	receipt, err := c.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return txHash, classify(op, fmt.Errorf("wait receipt %s: %w", txHash, err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, domain.Classify(domain.KindUnknown, op, fmt.Errorf("%s tx reverted: %s", method, txHash))
	}
	return txHash, nil
}

func (c *Chain) signAndSend(ctx context.Context, op string, to common.Address, fallbackGas uint64, data []byte) (*types.Transaction, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, classify(op, fmt.Errorf("nonce: %w", err))
	}

	gasPrice := c.gasPrice(ctx)

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		if isRevert(err) {
			return nil, domain.Classify(domain.KindUnknown, op, fmt.Errorf("estimate gas: %w", err))
		}
		gasLimit = fallbackGas
		slog.Warn("onchain: gas estimate failed, using default", "err", err, "limit", fallbackGas)
	}
	gasLimit = withGasBuffer(gasLimit)

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("%s: sign tx: %w", op, err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, classify(op, fmt.Errorf("send tx: %w", err))
	}
	return signed, nil
}

// gasPrice returns the suggested gas price +10%, cached for a few minutes.
func (c *Chain) gasPrice(ctx context.Context) *big.Int {
	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached
	}

	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached
		}
		slog.Warn("onchain: gas price unavailable, using fallback", "err", err)
		return big.NewInt(fallbackGasPriceWei)
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.mu.Lock()
	c.cachedGasWei = buffered
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()

	return buffered
}

// waitForReceipt polls until the tx is mined or the receipt timeout elapses.
func (c *Chain) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			slog.Debug("onchain: receipt poll failed", "tx", txHash.Hex(), "err", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// withGasBuffer adds 20% on top of the estimate.
func withGasBuffer(gas uint64) uint64 {
	return gas * 12 / 10
}

// isRevert reports whether the node rejected the call as an execution revert.
func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// classify maps transport and JSON-RPC failures onto domain error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *domain.ClassifiedError
	if errors.As(err, &classified) {
		return err
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcMethodNotFound {
		return domain.Classify(domain.KindNotFound, op, err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == 429 {
			return domain.Classify(domain.KindUnavailable, op, err)
		}
		return domain.Classify(domain.KindUnknown, op, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.As(err, &netErr) {
		return domain.Classify(domain.KindUnavailable, op, err)
	}

	if errors.Is(err, ethereum.NotFound) {
		return domain.Classify(domain.KindNotFound, op, err)
	}
	return domain.Classify(domain.KindUnknown, op, err)
}
