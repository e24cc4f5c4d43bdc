package catalog

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	xerrors "AgentHub-Chain/internal/errors"
	"AgentHub-Chain/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type fakeReader struct {
	agents   map[uint64]registry.Agent
	subs     map[uint64]registry.SubscriptionDetails
	failures map[uint64]error

	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeReader) enter() func() {
	n := f.inflight.Add(1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { f.inflight.Add(-1) }
}

func (f *fakeReader) GetAgent(_ context.Context, id uint64) (registry.Agent, error) {
	defer f.enter()()
	if err := f.failures[id]; err != nil {
		return registry.Agent{}, err
	}
	agent, ok := f.agents[id]
	if !ok {
		return registry.Agent{}, errors.New("execution reverted")
	}
	agent.ID = id
	return agent, nil
}

func (f *fakeReader) HasActiveSubscription(_ context.Context, _ common.Address, id uint64) (bool, error) {
	defer f.enter()()
	details, ok := f.subs[id]
	return ok && details.Active, nil
}

func (f *fakeReader) GetSubscriptionDetails(_ context.Context, _ common.Address, id uint64) (registry.SubscriptionDetails, error) {
	defer f.enter()()
	return f.subs[id], nil
}

func flow(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		agents: map[uint64]registry.Agent{
			1: {Name: "Trading Bot", Description: "Trades crypto", PricePerMonth: flow(10), Integrations: []string{"Discord"}, IsActive: true},
			2: {Name: "News Digest", Description: "Summarises headlines", PricePerMonth: flow(5), Integrations: []string{"Telegram"}, IsActive: true},
			3: {Name: "Retired", Description: "No longer offered", PricePerMonth: flow(1), IsActive: false},
			5: {Name: "Research", Description: "Paper search", PricePerMonth: flow(20), Integrations: []string{"Slack", "discord"}, IsActive: true},
		},
		subs: map[uint64]registry.SubscriptionDetails{
			1: {Active: true},
			3: {Active: true},
			5: {Active: true},
		},
		failures: map[uint64]error{
			5: errors.New("rpc timeout"),
		},
	}
}

func TestScanAgentsSkipsFailures(t *testing.T) {
	reader := newFakeReader()
	s := NewScanner(WithConcurrency(2))
	agents, err := s.ScanAgents(context.Background(), reader, IDs(10))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(agents) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(agents))
	}
	for i, want := range []uint64{1, 2, 3} {
		if agents[i].ID != want {
			t.Fatalf("agents out of order: %+v", agents)
		}
	}
	if peak := reader.peak.Load(); peak > 2 {
		t.Fatalf("concurrency limit exceeded: %d", peak)
	}
}

func TestScanSubscribedKeepsActiveOnly(t *testing.T) {
	reader := newFakeReader()
	s := NewScanner()
	subscribed, err := s.ScanSubscribed(context.Background(), reader, common.HexToAddress("0x01"), IDs(0))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// 3 is inactive and 5 fails to load.
	if len(subscribed) != 1 || subscribed[0].ID != 1 || !subscribed[0].Subscription.Active {
		t.Fatalf("unexpected subscribed agents %+v", subscribed)
	}
}

func TestScanAbortsWhenNotConnected(t *testing.T) {
	reader := newFakeReader()
	reader.failures[1] = xerrors.New(xerrors.CodeNotConnected, "wallet not connected")
	_, err := NewScanner().ScanAgents(context.Background(), reader, IDs(3))
	if xerrors.CodeOf(err) != xerrors.CodeNotConnected {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func TestScanHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewScanner().ScanAgents(ctx, newFakeReader(), IDs(3)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	agents := []registry.Agent{
		{ID: 1, Name: "Trading Bot", Description: "Trades crypto", PricePerMonth: flow(10), Integrations: []string{"Discord"}, IsActive: true},
		{ID: 2, Name: "News Digest", Description: "Summarises headlines", PricePerMonth: flow(5), Integrations: []string{"Telegram"}, IsActive: true},
		{ID: 3, Name: "Retired", Description: "Trading history", PricePerMonth: flow(1), IsActive: false},
	}
	min := decimal.NewFromInt(4)
	max := decimal.NewFromInt(9)

	tests := []struct {
		name     string
		criteria Criteria
		want     []uint64
	}{
		{"all", Criteria{}, []uint64{1, 2, 3}},
		{"query matches name or description", Criteria{Query: "TRADING"}, []uint64{1, 3}},
		{"integration", Criteria{Integration: "discord"}, []uint64{1}},
		{"price range", Criteria{MinPrice: &min, MaxPrice: &max}, []uint64{2}},
		{"active only", Criteria{Query: "trading", ActiveOnly: true}, []uint64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(agents, tt.criteria)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %d agents", tt.want, len(got))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Fatalf("expected %v, got id %d at %d", tt.want, got[i].ID, i)
				}
			}
		})
	}
}
