package wallet

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

type fakeWallet struct {
	mu       sync.Mutex
	accounts []string
	chainID  string
	reject   bool
}

func (w *fakeWallet) set(accounts []string, chainID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = accounts
	w.chainID = chainID
}

type fakeEthService struct{ w *fakeWallet }

func (s *fakeEthService) Accounts() []string {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return append([]string{}, s.w.accounts...)
}

func (s *fakeEthService) RequestAccounts() ([]string, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.reject {
		return nil, NewError(CodeUserRejected, "User rejected the request.")
	}
	return append([]string{}, s.w.accounts...), nil
}

func (s *fakeEthService) ChainId() string {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.chainID
}

type fakeWalletService struct{ w *fakeWallet }

func (s *fakeWalletService) SwitchEthereumChain(params SwitchChainParams) error {
	if params.ChainID != "0x221" {
		return NewError(CodeUnrecognizedChain, "Unrecognized chain ID")
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.chainID = params.ChainID
	return nil
}

func newRPCFixture(t *testing.T, w *fakeWallet) *RPCProvider {
	t.Helper()
	server := gethrpc.NewServer()
	if err := server.RegisterName("eth", &fakeEthService{w: w}); err != nil {
		t.Fatalf("register eth: %v", err)
	}
	if err := server.RegisterName("wallet", &fakeWalletService{w: w}); err != nil {
		t.Fatalf("register wallet: %v", err)
	}
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		ts.Close()
		server.Stop()
	})

	p, err := DialRPC(context.Background(), RPCConfig{Endpoint: ts.URL, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestRPCProviderRequests(t *testing.T) {
	w := &fakeWallet{accounts: []string{"0x00000000000000000000000000000000000000aa"}, chainID: "0x1"}
	p := newRPCFixture(t, w)
	ctx := context.Background()

	accounts, err := RequestAccounts(ctx, p)
	if err != nil || len(accounts) != 1 {
		t.Fatalf("request accounts: %v %v", accounts, err)
	}
	chain, err := ChainID(ctx, p)
	if err != nil || chain != "0x1" {
		t.Fatalf("chain id: %q %v", chain, err)
	}

	_, err = p.Request(ctx, MethodSwitchChain, SwitchChainParams{ChainID: "0x5"})
	if !IsUnrecognizedChain(err) {
		t.Fatalf("expected 4902, got %v", err)
	}
	if _, err := p.Request(ctx, MethodSwitchChain, SwitchChainParams{ChainID: "0x221"}); err != nil {
		t.Fatalf("switch: %v", err)
	}

	w.mu.Lock()
	w.reject = true
	w.mu.Unlock()
	if _, err := RequestAccounts(ctx, p); !IsUserRejected(err) {
		t.Fatalf("expected user rejection, got %v", err)
	}
}

func TestRPCProviderEmitsEvents(t *testing.T) {
	w := &fakeWallet{accounts: []string{}, chainID: "0x1"}
	p := newRPCFixture(t, w)

	events := make(chan Event, 4)
	sub := p.SubscribeEvents(events)
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	// let the first poll prime state before mutating the wallet
	time.Sleep(50 * time.Millisecond)
	w.set([]string{"0x00000000000000000000000000000000000000bb"}, "0x221")

	seen := map[EventKind]Event{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-events:
			seen[ev.Kind] = ev
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %+v", seen)
		}
	}
	if got := seen[EventAccountsChanged].Accounts; len(got) != 1 || got[0] != "0x00000000000000000000000000000000000000bb" {
		t.Fatalf("unexpected accounts event: %+v", got)
	}
	if got := seen[EventChainChanged].ChainID; got != "0x221" {
		t.Fatalf("unexpected chain event: %s", got)
	}
}

func TestDialRPCWithoutEndpoint(t *testing.T) {
	if _, err := DialRPC(context.Background(), RPCConfig{}); err != ErrNoProvider {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}
