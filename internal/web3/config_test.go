package web3

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleChains = `
required: flow-testnet
chains:
  flow-testnet:
    type: evm
    chain_id: "545"
    name: EVM on Flow Testnet
    native_currency: {name: FLOW, symbol: FLOW, decimals: 18}
    rpc_url: https://testnet.evm.nodes.onflow.org
    block_explorer_urls: [https://evm-testnet.flowscan.io]
  local:
    chain_id: "0x539"
    name: Local Dev
    native_currency: {name: Ether, symbol: ETH, decimals: 18}
    rpc_url: http://127.0.0.1:8545
`

func TestLoadChainDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	if err := os.WriteFile(path, []byte(sampleChains), 0o644); err != nil {
		t.Fatalf("write chain file: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := defs.Chains["flow-testnet"].ChainID; got != "0x221" {
		t.Fatalf("expected decimal chain id to be normalised, got %s", got)
	}
	params, err := defs.RequiredParams()
	if err != nil {
		t.Fatalf("required params: %v", err)
	}
	if params.ChainID != FlowEVMTestnet.ChainID || params.NativeCurrency.Symbol != "FLOW" || len(params.RPCURLs) != 1 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if names := defs.Names(); len(names) != 2 || names[0] != "flow-testnet" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestParseChainDefinitionsErrors(t *testing.T) {
	cases := map[string]string{
		"bad type":         "chains:\n  x:\n    type: solana\n    chain_id: \"1\"\n",
		"bad id":           "chains:\n  x:\n    chain_id: \"0xzz\"\n",
		"missing required": "required: y\nchains:\n  x:\n    chain_id: \"1\"\n",
		"malformed":        "chains: [",
	}
	for name, content := range cases {
		if _, err := ParseChainDefinitions([]byte(content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDefaultChainDefinitions(t *testing.T) {
	defs, err := LoadChainDefinitions("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	params, err := defs.RequiredParams()
	if err != nil {
		t.Fatalf("required params: %v", err)
	}
	if params.ChainName != FlowEVMTestnet.ChainName || params.RPCURLs[0] != FlowEVMTestnet.RPCURLs[0] {
		t.Fatalf("unexpected default params: %+v", params)
	}
}

func TestChainIDHelpers(t *testing.T) {
	cases := []struct {
		a, b string
		same bool
	}{
		{"0x221", "0x221", true},
		{"0x0221", "545", true},
		{"0X221", "0x221", true},
		{"0x1", "0x221", false},
		{"", "0x1", false},
		{"0x", "0x0", false},
	}
	for _, tc := range cases {
		if got := SameChain(tc.a, tc.b); got != tc.same {
			t.Fatalf("SameChain(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.same)
		}
	}
	if id, err := NormalizeChainID("1337"); err != nil || id != "0x539" {
		t.Fatalf("NormalizeChainID: %s %v", id, err)
	}
}
