package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"AgentHub-Chain/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testAccount  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

// fakeChain answers eth_call by selector and records transactions.
type fakeChain struct {
	mu        sync.Mutex
	outputs   map[string][]any
	callErr   error
	sendErr   error
	sent      []wallet.TransactionArgs
	receipts  []string
	receiptAt int
}

func (f *fakeChain) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch method {
	case wallet.MethodCall:
		if f.callErr != nil {
			return nil, f.callErr
		}
		args := params[0].(wallet.TransactionArgs)
		m, err := ABI.MethodById(args.Data[:4])
		if err != nil {
			return nil, err
		}
		values, ok := f.outputs[m.Name]
		if !ok {
			return json.Marshal(hexutil.Bytes{})
		}
		packed, err := m.Outputs.Pack(values...)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hexutil.Bytes(packed))
	case wallet.MethodSendTransaction:
		if f.sendErr != nil {
			return nil, f.sendErr
		}
		args := params[0].(wallet.TransactionArgs)
		f.sent = append(f.sent, args)
		return json.Marshal(common.HexToHash(fmt.Sprintf("0x%x", len(f.sent))))
	case wallet.MethodTransactionReceipt:
		if f.receiptAt >= len(f.receipts) {
			return json.RawMessage("null"), nil
		}
		r := f.receipts[f.receiptAt]
		f.receiptAt++
		return json.RawMessage(r), nil
	}
	return nil, wallet.NewError(wallet.CodeUnsupportedMethod, method)
}

func (f *fakeChain) SubscribeEvents(ch chan<- wallet.Event) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

func newTestContract(t *testing.T, f *fakeChain) *Contract {
	t.Helper()
	c, err := New(f, testContract, testAccount, WithReceiptPoll(time.Millisecond))
	if err != nil {
		t.Fatalf("new contract: %v", err)
	}
	return c
}

func TestGetAgentDecodesOutputs(t *testing.T) {
	f := &fakeChain{outputs: map[string][]any{
		"getAgent": {"Scout", "News analyzer", big.NewInt(10), []string{"Slack"}, []string{"Summaries"}, true},
	}}
	c := newTestContract(t, f)

	agent, err := c.GetAgent(context.Background(), 2)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if agent.ID != 2 || agent.Name != "Scout" || agent.PricePerMonth.Int64() != 10 || !agent.IsActive {
		t.Fatalf("unexpected agent %+v", agent)
	}
	if len(agent.Integrations) != 1 || agent.Integrations[0] != "Slack" {
		t.Fatalf("unexpected integrations %v", agent.Integrations)
	}
}

func TestSubscriptionAndFeatureReads(t *testing.T) {
	requester := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	f := &fakeChain{outputs: map[string][]any{
		"hasActiveSubscription":  {true},
		"getSubscriptionDetails": {big.NewInt(1700000000), big.NewInt(1702592000), true},
		"getFeatureRequest":      {"Translator", "Translate docs", big.NewInt(5), requester, big.NewInt(3), uint8(1)},
		"userUpvotes":            {false},
	}}
	c := newTestContract(t, f)
	ctx := context.Background()

	active, err := c.HasActiveSubscription(ctx, testAccount, 1)
	if err != nil || !active {
		t.Fatalf("has active subscription: %v %v", active, err)
	}
	details, err := c.GetSubscriptionDetails(ctx, testAccount, 1)
	if err != nil {
		t.Fatalf("subscription details: %v", err)
	}
	if details.Start.Unix() != 1700000000 || details.End.Unix() != 1702592000 || !details.Active {
		t.Fatalf("unexpected details %+v", details)
	}
	req, err := c.GetFeatureRequest(ctx, 4)
	if err != nil {
		t.Fatalf("feature request: %v", err)
	}
	if req.Index != 4 || req.Requester != requester || req.Upvotes != 3 || req.Status != FeatureRequestAccepted {
		t.Fatalf("unexpected feature request %+v", req)
	}
	upvoted, err := c.UserUpvotes(ctx, testAccount, 4)
	if err != nil || upvoted {
		t.Fatalf("user upvotes: %v %v", upvoted, err)
	}
}

func TestCallWithoutCode(t *testing.T) {
	c := newTestContract(t, &fakeChain{outputs: map[string][]any{}})
	if _, err := c.GetAgent(context.Background(), 1); !errors.Is(err, ErrNoCode) {
		t.Fatalf("expected ErrNoCode, got %v", err)
	}
}

func TestCallDecodesRevertReason(t *testing.T) {
	// Error(string) selector followed by the abi encoded reason
	reason, _ := ABI.Methods["getAgent"].Outputs[0:1].Pack("Agent not found")
	data := append(crypto.Keccak256([]byte("Error(string)"))[:4], reason...)
	f := &fakeChain{callErr: &wallet.Error{Code: 3, Message: "execution reverted", Data: hexutil.Encode(data)}}
	c := newTestContract(t, f)

	_, err := c.GetAgent(context.Background(), 99)
	var revert *RevertError
	if !errors.As(err, &revert) || revert.Reason != "Agent not found" {
		t.Fatalf("expected decoded revert, got %v", err)
	}
}

func TestTransactAndWait(t *testing.T) {
	f := &fakeChain{receipts: []string{
		`{"transactionHash":"0x0000000000000000000000000000000000000000000000000000000000000001","blockNumber":null,"status":"0x0","gasUsed":"0x0"}`,
		`{"transactionHash":"0x0000000000000000000000000000000000000000000000000000000000000001","blockNumber":"0x10","status":"0x1","gasUsed":"0x5208"}`,
	}}
	c := newTestContract(t, f)

	pending, err := c.PurchaseSubscription(context.Background(), 2, big.NewInt(1000))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if len(f.sent) != 1 || f.sent[0].Value.ToInt().Int64() != 1000 || *f.sent[0].From != testAccount {
		t.Fatalf("unexpected transaction args %+v", f.sent)
	}
	receipt, err := pending.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if uint64(receipt.GasUsed) != 21000 || receipt.BlockNumber.ToInt().Int64() != 16 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestWaitReportsRevert(t *testing.T) {
	f := &fakeChain{receipts: []string{
		`{"transactionHash":"0x0000000000000000000000000000000000000000000000000000000000000001","blockNumber":"0x10","status":"0x0","gasUsed":"0x5208"}`,
	}}
	c := newTestContract(t, f)
	pending, err := c.UpvoteFeatureRequest(context.Background(), 1)
	if err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if f.sent[0].Value != nil {
		t.Fatalf("upvote must not carry value")
	}
	if _, err := pending.Wait(context.Background()); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	c := newTestContract(t, &fakeChain{})
	pending, err := c.SubmitFeatureRequest(context.Background(), "t", "d", big.NewInt(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pending.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTransactPassesRejection(t *testing.T) {
	c := newTestContract(t, &fakeChain{sendErr: wallet.NewError(wallet.CodeUserRejected, "User rejected the request.")})
	_, err := c.PurchaseSubscription(context.Background(), 1, big.NewInt(1))
	if !wallet.IsUserRejected(err) {
		t.Fatalf("expected user rejection to pass through, got %v", err)
	}
}

func TestSubmitFeatureRequestPacksPriceArgument(t *testing.T) {
	method, ok := ABI.Methods["submitFeatureRequest"]
	if !ok {
		t.Fatalf("submitFeatureRequest missing from ABI")
	}
	if method.Sig != "submitFeatureRequest(string,string,uint256)" || method.IsPayable() {
		t.Fatalf("unexpected method %s payable=%v", method.Sig, method.IsPayable())
	}

	f := &fakeChain{}
	c := newTestContract(t, f)
	if _, err := c.SubmitFeatureRequest(context.Background(), "Tax agent", "files taxes", big.NewInt(5e17)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(f.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(f.sent))
	}
	tx := f.sent[0]
	if tx.Value != nil {
		t.Fatalf("feature request must not carry value, got %s", tx.Value.ToInt())
	}
	selector := crypto.Keccak256([]byte("submitFeatureRequest(string,string,uint256)"))[:4]
	if !bytes.Equal(tx.Data[:4], selector) {
		t.Fatalf("unexpected selector %x", tx.Data[:4])
	}
	args, err := method.Inputs.Unpack(tx.Data[4:])
	if err != nil {
		t.Fatalf("unpack calldata: %v", err)
	}
	if args[0].(string) != "Tax agent" || args[1].(string) != "files taxes" || args[2].(*big.Int).Cmp(big.NewInt(5e17)) != 0 {
		t.Fatalf("unexpected arguments %v", args)
	}
}
