package onchain

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"
)

// Hardhat's first dev account; never funded outside local chains.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bbb478cbba5e60e7f5c1a8c9f2ff80"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callArgs struct {
	To    common.Address `json:"to"`
	Input hexutil.Bytes  `json:"input"`
	Data  hexutil.Bytes  `json:"data"`
}

func (a callArgs) payload() []byte {
	if len(a.Input) > 0 {
		return a.Input
	}
	return a.Data
}

// fakeNode is a minimal JSON-RPC node. eth_call answers are keyed by the
// 4-byte selector of the called method.
type fakeNode struct {
	t *testing.T

	mu        sync.Mutex
	calls     map[string][]byte // selector hex → ABI-encoded output
	code      []byte
	methods   []string
	sentTxs   int
	reverted  bool
	failWith  *rpcError
	failHTTP  int
	lastCalls []callArgs
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{t: t, calls: map[string][]byte{}, code: []byte{0x60, 0x80}}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) onCall(contract abi.ABI, method string, outputs ...interface{}) {
	n.t.Helper()
	out, err := contract.Methods[method].Outputs.Pack(outputs...)
	require.NoError(n.t, err)
	n.mu.Lock()
	n.calls[hexutil.Encode(contract.Methods[method].ID)] = out
	n.mu.Unlock()
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failHTTP != 0 {
		w.WriteHeader(n.failHTTP)
		return
	}

	var req rpcRequest
	require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))
	n.methods = append(n.methods, req.Method)

	var result interface{}
	var rpcErr *rpcError

	switch req.Method {
	case "eth_chainId":
		result = "0x7a69"
	case "eth_getCode":
		result = hexutil.Bytes(n.code)
	case "eth_call":
		var args callArgs
		require.NoError(n.t, json.Unmarshal(req.Params[0], &args))
		n.lastCalls = append(n.lastCalls, args)
		if n.failWith != nil {
			rpcErr = n.failWith
			break
		}
		data := args.payload()
		out := n.calls[hexutil.Encode(data[:4])]
		result = hexutil.Bytes(out)
	case "eth_getTransactionCount":
		result = "0x3"
	case "eth_gasPrice":
		result = "0x3b9aca00"
	case "eth_estimateGas":
		result = "0x186a0"
	case "eth_sendRawTransaction":
		n.sentTxs++
		result = "0x" + strings.Repeat("ab", 32)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		require.NoError(n.t, json.Unmarshal(req.Params[0], &hash))
		status := "0x1"
		if n.reverted {
			status = "0x0"
		}
		result = map[string]interface{}{
			"type":              "0x0",
			"status":            status,
			"cumulativeGasUsed": "0x186a0",
			"gasUsed":           "0x186a0",
			"logsBloom":         "0x" + strings.Repeat("00", 256),
			"logs":              []interface{}{},
			"transactionHash":   hash,
			"transactionIndex":  "0x0",
			"blockHash":         common.Hash{1},
			"blockNumber":       "0x1",
			"effectiveGasPrice": "0x3b9aca00",
		}
	default:
		rpcErr = &rpcError{Code: -32601, Message: "the method " + req.Method + " does not exist"}
	}

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	var buf bytes.Buffer
	require.NoError(n.t, json.NewEncoder(&buf).Encode(resp))
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

// set mutates the node under its lock.
func (n *fakeNode) set(f func(n *fakeNode)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f(n)
}

func (n *fakeNode) callTargets() []common.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]common.Address, 0, len(n.lastCalls))
	for _, c := range n.lastCalls {
		out = append(out, c.To)
	}
	return out
}

func (n *fakeNode) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sentTxs
}

func dialTestChain(t *testing.T, url string) *Chain {
	t.Helper()
	client, err := ethclient.DialContext(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	c, err := NewChain(context.Background(), client, testKey, 31337)
	require.NoError(t, err)
	c.SetReceiptPolling(2*time.Second, 10*time.Millisecond)
	return c
}

func units(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}
