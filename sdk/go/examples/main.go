package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgentHub-Chain/sdk/go/agenthub"

	"github.com/shopspring/decimal"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/session/connect", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agenthub.SessionState{
			Session: agenthub.Session{
				Account: "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
				ChainID: "0x221",
				Status:  "connected",
			},
			Notification: &agenthub.Notification{Message: "Wallet connected successfully!", Kind: "success"},
		})
	})
	mux.HandleFunc("/api/v1/agents", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]agenthub.Agent{{ID: 1, Name: "Trading Bot", IsActive: true}})
	})
	mux.HandleFunc("/api/v1/agents/1/subscribe", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(agenthub.TxResult{Method: "purchaseSubscription", TxHash: "0xdemo", BlockNumber: 42})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := agenthub.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := client.Connect(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("connected %s on chain %s\n", state.Session.Account, state.Session.ChainID)

	agents, err := client.ListAgents(ctx, agenthub.AgentFilter{ActiveOnly: true})
	if err != nil {
		panic(err)
	}
	fmt.Printf("found %d agents\n", len(agents))

	price := decimal.NewFromInt(10)
	result, err := client.Subscribe(ctx, agents[0].ID, &price)
	if err != nil {
		panic(err)
	}
	fmt.Printf("subscribed in tx %s (block %d)\n", result.TxHash, result.BlockNumber)
}
