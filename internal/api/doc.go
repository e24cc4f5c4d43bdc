// Package api exposes the wallet session, the agent catalog, pricing and the
// transaction journal over REST, and streams session changes over WebSocket.
package api
