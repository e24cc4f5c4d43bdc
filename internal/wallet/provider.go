package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
)

// Provider methods used by the session layer.
const (
	MethodAccounts           = "eth_accounts"
	MethodRequestAccounts    = "eth_requestAccounts"
	MethodChainID            = "eth_chainId"
	MethodSwitchChain        = "wallet_switchEthereumChain"
	MethodAddChain           = "wallet_addEthereumChain"
	MethodCall               = "eth_call"
	MethodSendTransaction    = "eth_sendTransaction"
	MethodTransactionReceipt = "eth_getTransactionReceipt"
)

// Provider is an EIP-1193 style wallet provider.
type Provider interface {
	// Request performs a provider request and returns the raw JSON result.
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	// SubscribeEvents delivers provider events to ch until the returned
	// subscription is unsubscribed.
	SubscribeEvents(ch chan<- Event) event.Subscription
}

// EventKind names a provider event.
type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
)

// Event is a provider notification. Accounts is set for accountsChanged and
// ChainID for chainChanged.
type Event struct {
	Kind     EventKind
	Accounts []string
	ChainID  string
}

// SwitchChainParams is the wallet_switchEthereumChain argument.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// TransactionArgs is the eth_call / eth_sendTransaction argument object.
type TransactionArgs struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// Accounts returns the accounts already granted to the caller.
func Accounts(ctx context.Context, p Provider) ([]string, error) {
	return requestAccounts(ctx, p, MethodAccounts)
}

// RequestAccounts asks the wallet to grant account access.
func RequestAccounts(ctx context.Context, p Provider) ([]string, error) {
	return requestAccounts(ctx, p, MethodRequestAccounts)
}

func requestAccounts(ctx context.Context, p Provider, method string) ([]string, error) {
	raw, err := p.Request(ctx, method)
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := decodeResult(raw, &accounts); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return accounts, nil
}

// ChainID returns the chain id currently selected in the wallet.
func ChainID(ctx context.Context, p Provider) (string, error) {
	raw, err := p.Request(ctx, MethodChainID)
	if err != nil {
		return "", err
	}
	var id string
	if err := decodeResult(raw, &id); err != nil {
		return "", fmt.Errorf("%s: %w", MethodChainID, err)
	}
	return id, nil
}

func decodeResult(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty result")
	}
	return json.Unmarshal(raw, out)
}

// decodeParam re-encodes params[idx] into out. Params built in-process are Go
// values, params received over the wire are already JSON; both round-trip.
func decodeParam(params []any, idx int, out any) error {
	if idx >= len(params) {
		return fmt.Errorf("missing parameter %d", idx)
	}
	var raw []byte
	switch v := params[idx].(type) {
	case json.RawMessage:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = encoded
	}
	return json.Unmarshal(raw, out)
}
