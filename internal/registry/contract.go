// Package registry is the client of the agent registry and subscription
// contract. Calls and transactions go through a wallet.Provider so that the
// wallet, not this process, owns the signing key.
package registry

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"AgentHub-Chain/internal/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

//go:embed abi.json
var abiJSON []byte

// ABI is the parsed contract interface.
var ABI = mustParseABI(abiJSON)

func mustParseABI(raw []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("registry: parse abi: %v", err))
	}
	return parsed
}

const defaultReceiptPoll = time.Second

var (
	// ErrNoCode is returned when a call returns no data, usually because the
	// address holds no contract on the selected chain.
	ErrNoCode = errors.New("no contract code at address")
	// ErrReverted is returned when a mined transaction has status 0.
	ErrReverted = errors.New("transaction reverted")
)

// RevertError carries the reason string decoded from revert data.
type RevertError struct {
	Method string
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("%s reverted: %v", e.Method, e.Err)
}

func (e *RevertError) Unwrap() error { return e.Err }

// Reader is the read-only subset used by bulk scans.
type Reader interface {
	GetAgent(ctx context.Context, id uint64) (Agent, error)
	HasActiveSubscription(ctx context.Context, account common.Address, id uint64) (bool, error)
	GetSubscriptionDetails(ctx context.Context, account common.Address, id uint64) (SubscriptionDetails, error)
}

// Option customises a Contract.
type Option func(*Contract)

// WithReceiptPoll sets how often Wait polls for a receipt.
func WithReceiptPoll(interval time.Duration) Option {
	return func(c *Contract) {
		if interval > 0 {
			c.receiptPoll = interval
		}
	}
}

// Contract is an immutable handle bound to a provider, contract address and
// sending account.
type Contract struct {
	provider    wallet.Provider
	address     common.Address
	from        common.Address
	receiptPoll time.Duration
}

// New binds the contract at address to the from account.
func New(provider wallet.Provider, address, from common.Address, opts ...Option) (*Contract, error) {
	if provider == nil {
		return nil, wallet.ErrNoProvider
	}
	if address == (common.Address{}) {
		return nil, errors.New("合约地址为空")
	}
	c := &Contract{
		provider:    provider,
		address:     address,
		from:        from,
		receiptPoll: defaultReceiptPoll,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// From returns the account the handle is bound to.
func (c *Contract) From() common.Address { return c.from }

// Call performs an eth_call of method and unpacks its outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	from := c.from
	to := c.address
	raw, err := c.provider.Request(ctx, wallet.MethodCall, wallet.TransactionArgs{
		From: &from,
		To:   &to,
		Data: data,
	}, "latest")
	if err != nil {
		return nil, revertError(method, err)
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", method, ErrNoCode)
	}
	values, err := ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// Transact submits method as a transaction signed by the wallet. value may be
// nil for non-payable methods.
func (c *Contract) Transact(ctx context.Context, method string, value *big.Int, args ...any) (*PendingTx, error) {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	from := c.from
	to := c.address
	txArgs := wallet.TransactionArgs{From: &from, To: &to, Data: data}
	if value != nil && value.Sign() > 0 {
		txArgs.Value = (*hexutil.Big)(new(big.Int).Set(value))
	}
	raw, err := c.provider.Request(ctx, wallet.MethodSendTransaction, txArgs)
	if err != nil {
		return nil, revertError(method, err)
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return nil, fmt.Errorf("decode %s transaction hash: %w", method, err)
	}
	return &PendingTx{Hash: hash, Method: method, contract: c}, nil
}

// revertError decodes Solidity revert data attached to a provider error.
// Errors that are not reverts, including user rejections, pass through.
func revertError(method string, err error) error {
	perr, ok := wallet.AsError(err)
	if !ok {
		return err
	}
	data, ok := perr.Data.(string)
	if !ok || !strings.HasPrefix(data, "0x") {
		return err
	}
	payload, decodeErr := hexutil.Decode(data)
	if decodeErr != nil {
		return err
	}
	reason, unpackErr := abi.UnpackRevert(payload)
	if unpackErr != nil {
		return &RevertError{Method: method, Err: err}
	}
	return &RevertError{Method: method, Reason: reason, Err: err}
}

// Receipt is the subset of a transaction receipt the marketplace needs.
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	Status      hexutil.Uint64 `json:"status"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
}

// PendingTx is a submitted, not yet confirmed transaction.
type PendingTx struct {
	Hash     common.Hash
	Method   string
	contract *Contract
}

// Wait polls eth_getTransactionReceipt until the transaction is mined or ctx
// ends. A receipt with status 0 is returned together with ErrReverted.
func (tx *PendingTx) Wait(ctx context.Context) (*Receipt, error) {
	ticker := time.NewTicker(tx.contract.receiptPoll)
	defer ticker.Stop()
	for {
		raw, err := tx.contract.provider.Request(ctx, wallet.MethodTransactionReceipt, tx.Hash)
		if err != nil {
			return nil, err
		}
		if len(raw) > 0 && string(raw) != "null" {
			var receipt Receipt
			if err := json.Unmarshal(raw, &receipt); err != nil {
				return nil, fmt.Errorf("decode receipt: %w", err)
			}
			if receipt.BlockNumber != nil {
				if receipt.Status == 0 {
					return &receipt, fmt.Errorf("%s %s: %w", tx.Method, tx.Hash.Hex(), ErrReverted)
				}
				return &receipt, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
