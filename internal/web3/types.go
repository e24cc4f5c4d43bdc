package web3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// NativeCurrency describes the gas token of a chain as wallets expect it.
type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// ChainParams is the wallet_addEthereumChain payload (EIP-3085).
type ChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// FlowEVMTestnet is the network the marketplace contract is deployed on.
var FlowEVMTestnet = ChainParams{
	ChainID:   "0x221",
	ChainName: "EVM on Flow Testnet",
	NativeCurrency: NativeCurrency{
		Name:     "FLOW",
		Symbol:   "FLOW",
		Decimals: 18,
	},
	RPCURLs:           []string{"https://testnet.evm.nodes.onflow.org"},
	BlockExplorerURLs: []string{"https://evm-testnet.flowscan.io"},
}

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Backend is the node access a signing wallet needs for one chain.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// NormalizeChainID accepts hex ("0x221") or decimal ("545") chain ids and
// returns the canonical lower-case hex form without leading zeros.
func NormalizeChainID(raw string) (string, error) {
	id, err := ParseChainID(raw)
	if err != nil {
		return "", err
	}
	return hexutil.EncodeBig(id), nil
}

// ParseChainID converts a hex or decimal chain id into a big integer.
func ParseChainID(raw string) (*big.Int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, fmt.Errorf("empty chain id")
	}
	id := new(big.Int)
	var ok bool
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		digits := value[2:]
		if digits == "" {
			return nil, fmt.Errorf("invalid chain id %q", raw)
		}
		_, ok = id.SetString(digits, 16)
	} else {
		_, ok = id.SetString(value, 10)
	}
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid chain id %q", raw)
	}
	return id, nil
}

// SameChain reports whether two chain id strings denote the same chain.
// Unparseable ids never match.
func SameChain(a, b string) bool {
	left, err := ParseChainID(a)
	if err != nil {
		return false
	}
	right, err := ParseChainID(b)
	if err != nil {
		return false
	}
	return left.Cmp(right) == 0
}
