package onchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs (only the methods the bot calls)
var (
	erc20ABI  abi.ABI
	routerABI abi.ABI
	ledgerABI abi.ABI
)

func init() {
	erc20ABI = mustParseABI("erc20", `[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`)

	// UniswapV2-compatible router
	routerABI = mustParseABI("router", `[
		{
			"name": "swapExactTokensForTokens",
			"type": "function",
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "amountOutMin", "type": "uint256"},
				{"name": "path", "type": "address[]"},
				{"name": "to", "type": "address"},
				{"name": "deadline", "type": "uint256"}
			],
			"outputs": [{"name": "amounts", "type": "uint256[]"}]
		}
	]`)

	ledgerABI = mustParseABI("ledger", `[
		{
			"name": "recordSentiment",
			"type": "function",
			"inputs": [
				{"name": "score", "type": "int256"},
				{"name": "confidence", "type": "uint256"},
				{"name": "sampleCount", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"name": "recordTrade",
			"type": "function",
			"inputs": [
				{"name": "action", "type": "string"},
				{"name": "amount", "type": "uint256"},
				{"name": "confidence", "type": "uint256"},
				{"name": "txRef", "type": "string"}
			],
			"outputs": []
		},
		{
			"name": "isInvested",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "tradeCount",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`)
}

func mustParseABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}
