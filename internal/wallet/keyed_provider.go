package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"AgentHub-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

// ChainSet resolves node backends for the chains a keyed wallet may use.
// *provider.Registry satisfies it.
type ChainSet interface {
	Backend(chainID string) (web3.Backend, bool)
	Add(ctx context.Context, params web3.ChainParams) error
}

// ApprovalRequest describes a request that would prompt a wallet user.
type ApprovalRequest struct {
	Method string
	Params []any
}

// Approver decides prompts on behalf of the user. Returning false rejects the
// request with code 4001.
type Approver func(ctx context.Context, req ApprovalRequest) bool

// AutoApprove accepts every prompt.
func AutoApprove(context.Context, ApprovalRequest) bool { return true }

// KeyedConfig configures a KeyedProvider.
type KeyedConfig struct {
	Key *ecdsa.PrivateKey
	// ChainID is the chain selected when the wallet starts.
	ChainID  string
	Chains   ChainSet
	Approver Approver
}

// KeyedProvider is a headless wallet that signs with a local private key.
type KeyedProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chains  ChainSet
	approve Approver
	feed    event.Feed

	mu       sync.Mutex
	chainID  string
	approved bool
}

// NewKeyedProvider validates cfg and returns a wallet with no granted accounts.
func NewKeyedProvider(cfg KeyedConfig) (*KeyedProvider, error) {
	if cfg.Key == nil {
		return nil, errors.New("未配置钱包私钥")
	}
	if cfg.Chains == nil {
		return nil, errors.New("未配置链客户端")
	}
	chainID, err := web3.NormalizeChainID(cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("无效的初始链 ID: %w", err)
	}
	approve := cfg.Approver
	if approve == nil {
		approve = AutoApprove
	}
	return &KeyedProvider{
		key:     cfg.Key,
		address: crypto.PubkeyToAddress(cfg.Key.PublicKey),
		chains:  cfg.Chains,
		approve: approve,
		chainID: chainID,
	}, nil
}

// HexToKey parses a hex encoded secp256k1 private key.
func HexToKey(raw string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
}

// Address returns the signing account.
func (p *KeyedProvider) Address() common.Address { return p.address }

// SubscribeEvents implements Provider.
func (p *KeyedProvider) SubscribeEvents(ch chan<- Event) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Revoke withdraws account access, like a user disconnecting the site.
func (p *KeyedProvider) Revoke() {
	p.mu.Lock()
	changed := p.approved
	p.approved = false
	p.mu.Unlock()
	if changed {
		p.feed.Send(Event{Kind: EventAccountsChanged, Accounts: []string{}})
	}
}

// Request implements Provider.
func (p *KeyedProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case MethodAccounts:
		return json.Marshal(p.grantedAccounts())
	case MethodRequestAccounts:
		return p.requestAccounts(ctx, params)
	case MethodChainID:
		return json.Marshal(p.currentChain())
	case MethodSwitchChain:
		return p.switchChain(ctx, params)
	case MethodAddChain:
		return p.addChain(ctx, params)
	case MethodCall:
		return p.call(ctx, params)
	case MethodSendTransaction:
		return p.sendTransaction(ctx, params)
	case MethodTransactionReceipt:
		return p.receipt(ctx, params)
	default:
		return nil, NewError(CodeUnsupportedMethod, fmt.Sprintf("method %s is not supported", method))
	}
}

func (p *KeyedProvider) grantedAccounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.approved {
		return []string{}
	}
	return []string{p.address.Hex()}
}

func (p *KeyedProvider) currentChain() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

func (p *KeyedProvider) prompt(ctx context.Context, method string, params []any) error {
	if !p.approve(ctx, ApprovalRequest{Method: method, Params: params}) {
		return NewError(CodeUserRejected, "User rejected the request.")
	}
	return nil
}

func (p *KeyedProvider) requestAccounts(ctx context.Context, params []any) (json.RawMessage, error) {
	p.mu.Lock()
	already := p.approved
	p.mu.Unlock()
	if !already {
		if err := p.prompt(ctx, MethodRequestAccounts, params); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.approved = true
		p.mu.Unlock()
		p.feed.Send(Event{Kind: EventAccountsChanged, Accounts: []string{p.address.Hex()}})
	}
	return json.Marshal([]string{p.address.Hex()})
}

func (p *KeyedProvider) switchChain(ctx context.Context, params []any) (json.RawMessage, error) {
	var req SwitchChainParams
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, NewError(-32602, fmt.Sprintf("invalid params: %v", err))
	}
	id, err := web3.NormalizeChainID(req.ChainID)
	if err != nil {
		return nil, NewError(-32602, err.Error())
	}
	if _, ok := p.chains.Backend(id); !ok {
		return nil, NewError(CodeUnrecognizedChain, fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", req.ChainID))
	}
	if web3.SameChain(p.currentChain(), id) {
		return json.RawMessage("null"), nil
	}
	if err := p.prompt(ctx, MethodSwitchChain, params); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.chainID = id
	p.mu.Unlock()
	p.feed.Send(Event{Kind: EventChainChanged, ChainID: id})
	return json.RawMessage("null"), nil
}

func (p *KeyedProvider) addChain(ctx context.Context, params []any) (json.RawMessage, error) {
	var req web3.ChainParams
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, NewError(-32602, fmt.Sprintf("invalid params: %v", err))
	}
	if _, err := web3.NormalizeChainID(req.ChainID); err != nil {
		return nil, NewError(-32602, err.Error())
	}
	if _, ok := p.chains.Backend(req.ChainID); ok {
		return json.RawMessage("null"), nil
	}
	if err := p.prompt(ctx, MethodAddChain, params); err != nil {
		return nil, err
	}
	if err := p.chains.Add(ctx, req); err != nil {
		return nil, NewError(-32603, err.Error())
	}
	return json.RawMessage("null"), nil
}

func (p *KeyedProvider) backend() (web3.Backend, *big.Int, error) {
	chainID := p.currentChain()
	backend, ok := p.chains.Backend(chainID)
	if !ok {
		return nil, nil, NewError(CodeChainDisconnected, fmt.Sprintf("chain %s is not connected", chainID))
	}
	id, err := web3.ParseChainID(chainID)
	if err != nil {
		return nil, nil, err
	}
	return backend, id, nil
}

func (p *KeyedProvider) call(ctx context.Context, params []any) (json.RawMessage, error) {
	var args TransactionArgs
	if err := decodeParam(params, 0, &args); err != nil {
		return nil, NewError(-32602, fmt.Sprintf("invalid params: %v", err))
	}
	backend, _, err := p.backend()
	if err != nil {
		return nil, err
	}
	out, err := backend.CallContract(ctx, args.callMsg(common.Address{}), nil)
	if err != nil {
		return nil, normalizeError(err)
	}
	return json.Marshal(hexutil.Bytes(out))
}

func (p *KeyedProvider) sendTransaction(ctx context.Context, params []any) (json.RawMessage, error) {
	var args TransactionArgs
	if err := decodeParam(params, 0, &args); err != nil {
		return nil, NewError(-32602, fmt.Sprintf("invalid params: %v", err))
	}
	p.mu.Lock()
	approved := p.approved
	p.mu.Unlock()
	if !approved || (args.From != nil && *args.From != p.address) {
		return nil, NewError(CodeUnauthorized, "The requested account has not been authorized by the user.")
	}
	backend, chainID, err := p.backend()
	if err != nil {
		return nil, err
	}
	if err := p.prompt(ctx, MethodSendTransaction, params); err != nil {
		return nil, err
	}

	tx, err := p.buildTransaction(ctx, backend, chainID, args)
	if err != nil {
		return nil, normalizeError(err)
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, normalizeError(err)
	}
	return json.Marshal(signed.Hash())
}

func (p *KeyedProvider) buildTransaction(ctx context.Context, backend web3.Backend, chainID *big.Int, args TransactionArgs) (*types.Transaction, error) {
	nonce, err := backend.PendingNonceAt(ctx, p.address)
	if err != nil {
		return nil, fmt.Errorf("获取 nonce 失败: %w", err)
	}
	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	var gas uint64
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		gas, err = backend.EstimateGas(ctx, args.callMsg(p.address))
		if err != nil {
			return nil, err
		}
	}

	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("获取最新区块失败: %w", err)
	}
	if head.BaseFee == nil {
		gasPrice, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取 gas 价格失败: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       args.To,
			Value:    value,
			Data:     args.Data,
		}), nil
	}
	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 gas 小费失败: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        args.To,
		Value:     value,
		Data:      args.Data,
	}), nil
}

func (p *KeyedProvider) receipt(ctx context.Context, params []any) (json.RawMessage, error) {
	var hash common.Hash
	if err := decodeParam(params, 0, &hash); err != nil {
		return nil, NewError(-32602, fmt.Sprintf("invalid params: %v", err))
	}
	backend, _, err := p.backend()
	if err != nil {
		return nil, err
	}
	receipt, err := backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, gethcore.NotFound) {
		return json.RawMessage("null"), nil
	}
	if err != nil {
		return nil, normalizeError(err)
	}
	return json.Marshal(receipt)
}

func (a TransactionArgs) callMsg(from common.Address) gethcore.CallMsg {
	msg := gethcore.CallMsg{From: from, To: a.To, Data: a.Data}
	if a.From != nil {
		msg.From = *a.From
	}
	if a.Value != nil {
		msg.Value = a.Value.ToInt()
	}
	if a.Gas != nil {
		msg.Gas = uint64(*a.Gas)
	}
	return msg
}

var _ Provider = (*KeyedProvider)(nil)
