package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"AgentHub-Chain/internal/web3"
	"AgentHub-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/event"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const defaultPollInterval = 2 * time.Second

// RPCConfig configures an RPCProvider.
type RPCConfig struct {
	Endpoint     string
	PollInterval time.Duration
}

// RPCProvider forwards provider requests to a wallet reachable over JSON-RPC.
// The wallet cannot push events over plain HTTP, so accountsChanged and
// chainChanged are derived by polling eth_accounts and eth_chainId.
type RPCProvider struct {
	client   *gethrpc.Client
	interval time.Duration
	feed     event.Feed
	log      *slog.Logger

	mu       sync.Mutex
	primed   bool
	accounts []string
	chainID  string

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// DialRPC connects to the wallet endpoint.
func DialRPC(ctx context.Context, cfg RPCConfig) (*RPCProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrNoProvider
	}
	client, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}
	return NewRPCProvider(client, cfg.PollInterval), nil
}

// NewRPCProvider wraps an existing RPC client.
func NewRPCProvider(client *gethrpc.Client, interval time.Duration) *RPCProvider {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &RPCProvider{
		client:   client,
		interval: interval,
		log:      logger.Named("wallet.rpc"),
		done:     make(chan struct{}),
	}
}

// Request implements Provider.
func (p *RPCProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if p == nil || p.client == nil {
		return nil, ErrNoProvider
	}
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, normalizeError(err)
	}
	return result, nil
}

// SubscribeEvents implements Provider.
func (p *RPCProvider) SubscribeEvents(ch chan<- Event) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Start launches the event watcher. It is safe to call more than once.
func (p *RPCProvider) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		watchCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		go p.watch(watchCtx)
	})
}

// Close stops the watcher and closes the RPC connection.
func (p *RPCProvider) Close() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
			<-p.done
		}
		if p.client != nil {
			p.client.Close()
		}
	})
}

func (p *RPCProvider) watch(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll compares the wallet state against the previous observation and emits
// an event for every difference. The first observation only primes state.
func (p *RPCProvider) poll(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	accounts, err := Accounts(callCtx, p)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Debug("轮询钱包账户失败", slog.Any("error", err))
		}
		return
	}
	chainID, err := ChainID(callCtx, p)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Debug("轮询钱包链 ID 失败", slog.Any("error", err))
		}
		return
	}

	var pending []Event
	p.mu.Lock()
	if p.primed {
		if !slices.EqualFunc(p.accounts, accounts, strings.EqualFold) {
			pending = append(pending, Event{Kind: EventAccountsChanged, Accounts: slices.Clone(accounts)})
		}
		if !web3.SameChain(p.chainID, chainID) {
			pending = append(pending, Event{Kind: EventChainChanged, ChainID: chainID})
		}
	}
	p.primed = true
	p.accounts = accounts
	p.chainID = chainID
	p.mu.Unlock()

	for _, ev := range pending {
		p.feed.Send(ev)
	}
}

var _ Provider = (*RPCProvider)(nil)
