package session

import (
	"context"
	"log/slog"

	xerrors "AgentHub-Chain/internal/errors"
	"AgentHub-Chain/internal/wallet"
	"AgentHub-Chain/internal/web3"
	"AgentHub-Chain/pkg/logger"
)

// User-facing messages.
const (
	MsgInstallWallet     = "Please install MetaMask"
	MsgConnected         = "Wallet connected successfully!"
	MsgConnectFailed     = "Failed to connect wallet"
	MsgDisconnected      = "Wallet disconnected"
	MsgAddNetworkFailed  = "Failed to add network"
	MsgSwitchFailed      = "Failed to switch network"
	MsgConnectFirst      = "Please connect wallet first"
	MsgProcessing        = "Transaction submitted, waiting for confirmation..."
	MsgRejected          = "Transaction rejected by user"
	msgTransactionFailed = "Transaction failed: "
)

func errProviderAbsent() *xerrors.Error {
	return xerrors.New(xerrors.CodeProviderAbsent, "no wallet provider available")
}

// Connect asks the wallet for account access, binds the contract to the first
// granted account and checks the network. On failure the session keeps its
// previous state.
func (m *Manager) Connect(ctx context.Context) error {
	if m.provider == nil {
		m.notify(NotificationError, MsgInstallWallet)
		return errProviderAbsent()
	}

	m.setStatus(StatusConnecting)

	accounts, err := wallet.RequestAccounts(ctx, m.provider)
	if err == nil && len(accounts) == 0 {
		err = wallet.NewError(wallet.CodeUnauthorized, "wallet returned no accounts")
	}
	if err == nil {
		err = m.bindAccount(accounts[0])
	}
	if err != nil {
		m.settleStatus()
		m.log.Warn("连接钱包失败", slog.Any("error", err))
		m.notify(NotificationError, MsgConnectFailed)
		code := xerrors.CodeUpstreamFailure
		if wallet.IsUserRejected(err) {
			code = xerrors.CodeUserRejected
		}
		return xerrors.Wrap(code, err, "connect wallet")
	}

	if _, err := m.CheckNetwork(ctx); err != nil {
		m.log.Warn("检查网络失败", slog.Any("error", err))
	}
	logger.Audit().Info("wallet_connected", slog.String("account", accounts[0]))
	m.notify(NotificationSuccess, MsgConnected)
	return nil
}

// Disconnect resets the local session. The wallet keeps its own grant.
func (m *Manager) Disconnect() {
	account := m.Snapshot().Account
	m.clear()
	if account != "" {
		logger.Audit().Info("wallet_disconnected", slog.String("account", account))
	}
	m.notify(NotificationSuccess, MsgDisconnected)
}

// CheckNetwork reads the wallet chain and reports whether it differs from the
// required chain.
func (m *Manager) CheckNetwork(ctx context.Context) (bool, error) {
	if m.provider == nil {
		return false, errProviderAbsent()
	}
	chainID, err := wallet.ChainID(ctx, m.provider)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "read wallet chain id")
	}
	wrong := !web3.SameChain(chainID, m.cfg.RequiredChain.ChainID)
	m.setChain(chainID, wrong)
	if wrong {
		m.log.Info("钱包处于错误网络", slog.String("chain_id", chainID), slog.String("required", m.cfg.RequiredChain.ChainID))
	}
	return wrong, nil
}

// SwitchNetwork moves the wallet to the required chain. A wallet that does
// not know the chain gets exactly one add-chain request followed by one more
// switch attempt.
func (m *Manager) SwitchNetwork(ctx context.Context) error {
	if m.provider == nil {
		m.notify(NotificationError, MsgInstallWallet)
		return errProviderAbsent()
	}
	required := m.cfg.RequiredChain
	params := wallet.SwitchChainParams{ChainID: required.ChainID}

	_, err := m.provider.Request(ctx, wallet.MethodSwitchChain, params)
	if err != nil && wallet.IsUnrecognizedChain(err) {
		m.log.Info("钱包未知目标网络，尝试添加", slog.String("chain_id", required.ChainID))
		if _, addErr := m.provider.Request(ctx, wallet.MethodAddChain, required); addErr != nil {
			m.log.Warn("添加网络失败", slog.Any("error", addErr))
			m.notify(NotificationError, MsgAddNetworkFailed)
			code := xerrors.CodeUnknownChain
			if wallet.IsUserRejected(addErr) {
				code = xerrors.CodeUserRejected
			}
			return xerrors.Wrap(code, addErr, "add chain "+required.ChainID)
		}
		_, err = m.provider.Request(ctx, wallet.MethodSwitchChain, params)
	}
	if err != nil {
		m.log.Warn("切换网络失败", slog.Any("error", err))
		m.notify(NotificationError, MsgSwitchFailed)
		code := xerrors.CodeWrongNetwork
		if wallet.IsUserRejected(err) {
			code = xerrors.CodeUserRejected
		}
		return xerrors.Wrap(code, err, "switch chain "+required.ChainID)
	}

	m.setChain(required.ChainID, false)
	logger.Audit().Info("network_switched",
		slog.String("account", m.Snapshot().Account),
		slog.String("chain_id", required.ChainID))
	return nil
}
