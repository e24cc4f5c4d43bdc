package provider

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"AgentHub-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type stubBackend struct {
	web3.Backend
	name   string
	closed bool
}

func (s *stubBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (s *stubBackend) CallContract(context.Context, gethcore.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (s *stubBackend) SendTransaction(context.Context, *types.Transaction) error { return nil }

func (s *stubBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, gethcore.NotFound
}

func (s *stubBackend) Close() { s.closed = true }

func TestRegistryDialsAndResolves(t *testing.T) {
	dialed := map[string]*stubBackend{}
	dial := func(_ context.Context, name string, def web3.ChainDefinition) (web3.Backend, error) {
		b := &stubBackend{name: name}
		dialed[def.ChainID] = b
		return b, nil
	}

	defs := web3.DefaultChainDefinitions()
	defs.Chains["offline"] = web3.ChainDefinition{ChainID: "0x1"}
	reg, err := NewRegistry(context.Background(), defs, dial)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if _, ok := reg.Backend("545"); !ok {
		t.Fatalf("expected decimal lookup of 0x221 to succeed")
	}
	if _, ok := reg.Backend("0x1"); ok {
		t.Fatalf("chains without rpc url must not be dialed")
	}
	if params, ok := reg.Params("0x221"); !ok || params.ChainName != web3.FlowEVMTestnet.ChainName {
		t.Fatalf("unexpected params: %+v %v", params, ok)
	}

	err = reg.Add(context.Background(), web3.ChainParams{ChainID: "0x539", ChainName: "dev", RPCURLs: []string{"http://127.0.0.1:8545"}})
	if err != nil {
		t.Fatalf("add chain: %v", err)
	}
	if chains := reg.Chains(); len(chains) != 2 || chains[0] != "0x221" || chains[1] != "0x539" {
		t.Fatalf("unexpected chains: %v", chains)
	}
	if err := reg.Add(context.Background(), web3.ChainParams{ChainID: "0x539"}); err == nil {
		t.Fatalf("expected error when rpc urls are missing")
	}

	reg.Close()
	for id, b := range dialed {
		if !b.closed {
			t.Fatalf("backend %s not closed", id)
		}
	}
}

func TestRegistryDialFailure(t *testing.T) {
	dial := func(context.Context, string, web3.ChainDefinition) (web3.Backend, error) {
		return nil, errors.New("connection refused")
	}
	if _, err := NewRegistry(context.Background(), web3.DefaultChainDefinitions(), dial); err == nil {
		t.Fatalf("expected dial failure to propagate")
	}
	if _, err := NewRegistry(context.Background(), web3.ChainDefinitions{}, dial); err == nil {
		t.Fatalf("expected error for empty definitions")
	}
}
