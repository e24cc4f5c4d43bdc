package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	xerrors "AgentHub-Chain/internal/errors"
	"AgentHub-Chain/internal/events"
	"AgentHub-Chain/internal/journal"
	"AgentHub-Chain/internal/observability/alerting"
	"AgentHub-Chain/internal/observability/metrics"
	"AgentHub-Chain/internal/registry"
	"AgentHub-Chain/internal/wallet"
	"AgentHub-Chain/internal/web3"
	"AgentHub-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Status is the connection state of the session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Account         string `json:"account"`
	ChainID         string `json:"chainId,omitempty"`
	IsWrongNetwork  bool   `json:"isWrongNetwork"`
	Status          Status `json:"status"`
	HasContract     bool   `json:"hasContract"`
	ContractAddress string `json:"contractAddress,omitempty"`
}

// Config holds the fixed parameters of a session.
type Config struct {
	ContractAddress common.Address
	RequiredChain   web3.ChainParams
	NotificationTTL time.Duration
	ReceiptPoll     time.Duration
	// EventTimeout bounds provider requests made while handling provider
	// events.
	EventTimeout time.Duration
}

// Option customises a Manager.
type Option func(*Manager)

// WithJournal records every write operation in store.
func WithJournal(store journal.Store) Option {
	return func(m *Manager) { m.journal = store }
}

// WithPublisher forwards session, notification and transaction events.
func WithPublisher(publisher events.Publisher) Option {
	return func(m *Manager) { m.publisher = publisher }
}

// WithAlerting sends errors that require attention to dispatcher.
func WithAlerting(dispatcher alerting.Dispatcher) Option {
	return func(m *Manager) { m.alerts = dispatcher }
}

// WithLogger overrides the component logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock replaces time.Now for notification timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the wallet and contract session. It is safe for concurrent use;
// provider requests are never issued while the state lock is held.
type Manager struct {
	provider wallet.Provider
	cfg      Config

	journal   journal.Store
	publisher events.Publisher
	alerts    alerting.Dispatcher
	log       *slog.Logger
	now       func() time.Time

	mu           sync.RWMutex
	account      common.Address
	connected    bool
	status       Status
	chainID      string
	wrongNetwork bool
	contract     *registry.Contract

	feed  event.Feed
	notes *notifier

	ctx       context.Context
	cancel    context.CancelFunc
	sub       event.Subscription
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a session over provider. A nil provider models a host without
// any wallet installed. The contract address is mandatory: without it no
// account could ever be bound.
func New(provider wallet.Provider, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.ContractAddress == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "contract address is required")
	}
	if cfg.RequiredChain.ChainID == "" {
		cfg.RequiredChain = web3.FlowEVMTestnet
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		provider: provider,
		cfg:      cfg,
		log:      logger.Named("session"),
		status:   StatusDisconnected,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.notes = newNotifier(cfg.NotificationTTL, m.now)
	return m, nil
}

// Start subscribes to provider events and restores an account the wallet
// has already granted. It does not emit a notification.
func (m *Manager) Start(ctx context.Context) error {
	if m.provider == nil {
		m.log.Warn("未检测到钱包 provider，会话保持断开")
		return nil
	}
	started := false
	m.startOnce.Do(func() {
		started = true
		ch := make(chan wallet.Event, 16)
		m.sub = m.provider.SubscribeEvents(ch)
		m.wg.Add(1)
		go m.loop(ch)
	})
	if !started {
		return nil
	}

	accounts, err := wallet.Accounts(ctx, m.provider)
	if err != nil {
		m.log.Warn("读取已授权账户失败", slog.Any("error", err))
		return nil
	}
	if len(accounts) == 0 {
		return nil
	}
	if err := m.bindAccount(accounts[0]); err != nil {
		m.log.Warn("恢复已授权账户失败", slog.String("account", accounts[0]), slog.Any("error", err))
		return nil
	}
	if _, err := m.CheckNetwork(ctx); err != nil {
		m.log.Warn("检查网络失败", slog.Any("error", err))
	}
	m.log.Info("已恢复钱包会话", slog.String("account", accounts[0]))
	return nil
}

// Close unsubscribes from provider events and stops the notification timer.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()
		if m.sub != nil {
			m.sub.Unsubscribe()
		}
		m.wg.Wait()
		m.notes.stop()
	})
	return nil
}

func (m *Manager) loop(ch <-chan wallet.Event) {
	defer m.wg.Done()
	for {
		select {
		case ev := <-ch:
			m.handleEvent(ev)
		case err, ok := <-m.sub.Err():
			if ok && err != nil {
				m.log.Warn("provider 事件订阅中断", slog.Any("error", err))
			}
			return
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) handleEvent(ev wallet.Event) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.EventTimeout)
	defer cancel()

	switch ev.Kind {
	case wallet.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			m.log.Info("钱包已撤销账户授权")
			m.clear()
			return
		}
		if err := m.bindAccount(ev.Accounts[0]); err != nil {
			m.log.Warn("切换账户失败", slog.String("account", ev.Accounts[0]), slog.Any("error", err))
			return
		}
		if _, err := m.CheckNetwork(ctx); err != nil {
			m.log.Warn("检查网络失败", slog.Any("error", err))
		}
	case wallet.EventChainChanged:
		if !m.Snapshot().HasContract {
			m.setChain(ev.ChainID, false)
			return
		}
		if _, err := m.CheckNetwork(ctx); err != nil {
			m.log.Warn("检查网络失败", slog.Any("error", err))
		}
	default:
		m.log.Debug("忽略未知 provider 事件", slog.String("kind", string(ev.Kind)))
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		ChainID:        m.chainID,
		IsWrongNetwork: m.wrongNetwork,
		Status:         m.status,
		HasContract:    m.contract != nil,
	}
	if m.connected {
		snap.Account = m.account.Hex()
	}
	if m.contract != nil {
		snap.ContractAddress = m.contract.Address().Hex()
	}
	return snap
}

// Subscribe delivers a Snapshot after every state change. Send blocks until
// every subscriber has received the value, so subscribers must drain ch.
func (m *Manager) Subscribe(ch chan<- Snapshot) event.Subscription {
	return m.feed.Subscribe(ch)
}

// Notification returns the active notification, if any.
func (m *Manager) Notification() (Notification, bool) {
	return m.notes.active()
}

// SubscribeNotifications delivers every new notification.
func (m *Manager) SubscribeNotifications(ch chan<- Notification) event.Subscription {
	return m.notes.subscribe(ch)
}

// Contract returns the handle bound to the connected account, or nil.
func (m *Manager) Contract() *registry.Contract {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contract
}

// RequiredChain returns the chain the contract lives on.
func (m *Manager) RequiredChain() web3.ChainParams {
	return m.cfg.RequiredChain
}

// bindAccount sets account and replaces the contract handle in one step.
func (m *Manager) bindAccount(raw string) error {
	if !common.IsHexAddress(raw) {
		return wallet.NewError(wallet.CodeUnauthorized, "invalid account address "+raw)
	}
	account := common.HexToAddress(raw)
	var opts []registry.Option
	if m.cfg.ReceiptPoll > 0 {
		opts = append(opts, registry.WithReceiptPoll(m.cfg.ReceiptPoll))
	}
	contract, err := registry.New(m.provider, m.cfg.ContractAddress, account, opts...)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.account = account
	m.connected = true
	m.contract = contract
	m.status = StatusConnected
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emitSnapshot(snap)
	return nil
}

// clear resets account, contract and network flag together.
func (m *Manager) clear() {
	m.mu.Lock()
	m.account = common.Address{}
	m.connected = false
	m.contract = nil
	m.wrongNetwork = false
	m.status = StatusDisconnected
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emitSnapshot(snap)
}

func (m *Manager) setStatus(status Status) {
	m.mu.Lock()
	m.status = status
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emitSnapshot(snap)
}

// settleStatus leaves the connecting state according to the connection as it
// is now, which events may have changed while a request was pending.
func (m *Manager) settleStatus() {
	m.mu.Lock()
	if m.connected {
		m.status = StatusConnected
	} else {
		m.status = StatusDisconnected
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emitSnapshot(snap)
}

func (m *Manager) setChain(chainID string, wrong bool) {
	if normalized, err := web3.NormalizeChainID(chainID); err == nil {
		chainID = normalized
	}
	m.mu.Lock()
	m.chainID = chainID
	m.wrongNetwork = wrong
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.emitSnapshot(snap)
}

func (m *Manager) emitSnapshot(snap Snapshot) {
	metrics.SetSessionState(snap.Account != "", snap.IsWrongNetwork)
	m.feed.Send(snap)
	m.publish(events.KindSession, snap.Account, snap)
}

func (m *Manager) notify(kind NotificationKind, message string) {
	note := m.notes.show(kind, message)
	metrics.ObserveNotification(string(kind))
	m.publish(events.KindNotification, m.Snapshot().Account, note)
}

func (m *Manager) publish(kind events.Kind, account string, payload any) {
	if m.publisher == nil {
		return
	}
	ev, err := events.New(kind, account, payload)
	if err != nil {
		m.log.Warn("构造会话事件失败", slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.EventTimeout)
	defer cancel()
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.log.Warn("发布会话事件失败", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}
