// Package web3 houses chain metadata shared by the wallet and contract
// layers: the parameter set a wallet needs to add or switch to a network,
// chain-id normalisation, and the YAML chain definitions loaded at startup.
// Concrete RPC backends live in the ethereum and provider subpackages.
package web3
