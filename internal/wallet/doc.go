// Package wallet abstracts the EIP-1193 wallet provider the marketplace
// talks to. A Provider answers JSON-RPC style requests (eth_requestAccounts,
// wallet_switchEthereumChain, eth_sendTransaction, ...) and publishes
// accountsChanged/chainChanged events through a go-ethereum event feed.
//
// Two implementations are provided: RPCProvider forwards to a wallet that
// exposes its provider over JSON-RPC (for example a desktop wallet's local
// endpoint), and KeyedProvider is a headless wallet that signs with a local
// key against node backends from web3/provider.
package wallet
