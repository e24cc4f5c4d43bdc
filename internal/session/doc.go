// Package session owns the wallet connection of the marketplace: the active
// account and chain, the contract handle bound to that account, and the
// short-lived notification shown to the user after each action.
//
// A Manager is created once and shared by its consumers. State changes are
// published through go-ethereum event feeds; provider events are consumed
// between Start and Close.
package session
