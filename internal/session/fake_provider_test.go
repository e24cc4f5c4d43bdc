package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"AgentHub-Chain/internal/registry"
	"AgentHub-Chain/internal/wallet"
	"AgentHub-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
)

var (
	testAccount  = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

// fakeProvider is an in-memory wallet that serves the session's requests.
type fakeProvider struct {
	mu sync.Mutex

	granted    []string
	grant      []string
	requestErr error
	// onRequestAccounts runs while eth_requestAccounts is pending.
	onRequestAccounts func()
	chainID    string
	known      map[string]bool
	addErr     error
	switchErr  error

	agents        map[uint64]registry.Agent
	subscriptions map[uint64]bool
	sendErr       error
	receiptStatus uint64

	calls []string
	sent  []wallet.TransactionArgs

	feed event.Feed
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		grant:         []string{testAccount},
		chainID:       "0x221",
		known:         map[string]bool{"0x221": true, "0x1": true},
		agents:        map[uint64]registry.Agent{},
		subscriptions: map[uint64]bool{},
		receiptStatus: 1,
	}
}

func (f *fakeProvider) SubscribeEvents(ch chan<- wallet.Event) event.Subscription {
	return f.feed.Subscribe(ch)
}

func (f *fakeProvider) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeProvider) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)

	switch method {
	case wallet.MethodAccounts:
		return marshal(nonNil(f.granted))
	case wallet.MethodRequestAccounts:
		if f.onRequestAccounts != nil {
			f.onRequestAccounts()
		}
		if f.requestErr != nil {
			return nil, f.requestErr
		}
		f.granted = f.grant
		return marshal(nonNil(f.grant))
	case wallet.MethodChainID:
		return marshal(f.chainID)
	case wallet.MethodSwitchChain:
		if f.switchErr != nil {
			return nil, f.switchErr
		}
		p := params[0].(wallet.SwitchChainParams)
		if !f.known[p.ChainID] {
			return nil, wallet.NewError(wallet.CodeUnrecognizedChain, "Unrecognized chain ID "+p.ChainID)
		}
		f.chainID = p.ChainID
		return marshal(nil)
	case wallet.MethodAddChain:
		if f.addErr != nil {
			return nil, f.addErr
		}
		p := params[0].(web3.ChainParams)
		f.known[p.ChainID] = true
		return marshal(nil)
	case wallet.MethodCall:
		return f.call(params[0].(wallet.TransactionArgs))
	case wallet.MethodSendTransaction:
		if f.sendErr != nil {
			return nil, f.sendErr
		}
		args := params[0].(wallet.TransactionArgs)
		f.sent = append(f.sent, args)
		return marshal(common.BigToHash(big.NewInt(int64(len(f.sent)))))
	case wallet.MethodTransactionReceipt:
		hash := params[0].(common.Hash)
		return marshal(registry.Receipt{
			TxHash:      hash,
			BlockNumber: (*hexutil.Big)(big.NewInt(42)),
			Status:      hexutil.Uint64(f.receiptStatus),
			GasUsed:     21000,
		})
	}
	return nil, wallet.NewError(wallet.CodeUnsupportedMethod, "unsupported "+method)
}

func (f *fakeProvider) call(args wallet.TransactionArgs) (json.RawMessage, error) {
	method, err := registry.ABI.MethodById(args.Data)
	if err != nil {
		return nil, err
	}
	in, err := method.Inputs.Unpack(args.Data[4:])
	if err != nil {
		return nil, err
	}
	var out []byte
	switch method.Name {
	case "getAgent":
		id := in[0].(*big.Int).Uint64()
		agent, ok := f.agents[id]
		if !ok {
			return nil, &wallet.Error{Code: 3, Message: "execution reverted: agent not found"}
		}
		out, err = method.Outputs.Pack(agent.Name, agent.Description, agent.PricePerMonth, agent.Integrations, agent.Features, agent.IsActive)
	case "hasActiveSubscription":
		out, err = method.Outputs.Pack(f.subscriptions[in[1].(*big.Int).Uint64()])
	default:
		return nil, fmt.Errorf("unexpected call %s", method.Name)
	}
	if err != nil {
		return nil, err
	}
	return marshal(hexutil.Bytes(out))
}

func marshal(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
