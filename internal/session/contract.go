package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"strconv"

	xerrors "AgentHub-Chain/internal/errors"
	"AgentHub-Chain/internal/events"
	"AgentHub-Chain/internal/journal"
	"AgentHub-Chain/internal/observability/alerting"
	"AgentHub-Chain/internal/observability/metrics"
	"AgentHub-Chain/internal/registry"
	"AgentHub-Chain/internal/wallet"
	"AgentHub-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func errNotConnected() *xerrors.Error {
	return xerrors.New(xerrors.CodeNotConnected, "wallet not connected")
}

// GetAgent reads agent id through the bound contract.
func (m *Manager) GetAgent(ctx context.Context, id uint64) (registry.Agent, error) {
	contract := m.Contract()
	if contract == nil {
		return registry.Agent{}, errNotConnected()
	}
	agent, err := contract.GetAgent(ctx, id)
	if err != nil {
		return registry.Agent{}, callError("getAgent", err, "agent_id", id)
	}
	return agent, nil
}

// HasActiveSubscription reports whether account has a live subscription to
// agent id. The answer is never cached.
func (m *Manager) HasActiveSubscription(ctx context.Context, account common.Address, id uint64) (bool, error) {
	contract := m.Contract()
	if contract == nil {
		return false, errNotConnected()
	}
	active, err := contract.HasActiveSubscription(ctx, account, id)
	if err != nil {
		return false, callError("hasActiveSubscription", err, "agent_id", id)
	}
	return active, nil
}

// GetSubscriptionDetails reads the subscription window of account for id.
func (m *Manager) GetSubscriptionDetails(ctx context.Context, account common.Address, id uint64) (registry.SubscriptionDetails, error) {
	contract := m.Contract()
	if contract == nil {
		return registry.SubscriptionDetails{}, errNotConnected()
	}
	details, err := contract.GetSubscriptionDetails(ctx, account, id)
	if err != nil {
		return registry.SubscriptionDetails{}, callError("getSubscriptionDetails", err, "agent_id", id)
	}
	return details, nil
}

// GetFeatureRequest reads the feature request at index.
func (m *Manager) GetFeatureRequest(ctx context.Context, index uint64) (registry.FeatureRequest, error) {
	contract := m.Contract()
	if contract == nil {
		return registry.FeatureRequest{}, errNotConnected()
	}
	req, err := contract.GetFeatureRequest(ctx, index)
	if err != nil {
		return registry.FeatureRequest{}, callError("getFeatureRequest", err, "index", index)
	}
	return req, nil
}

// UserUpvotes reports whether account upvoted the request at index.
func (m *Manager) UserUpvotes(ctx context.Context, account common.Address, index uint64) (bool, error) {
	contract := m.Contract()
	if contract == nil {
		return false, errNotConnected()
	}
	voted, err := contract.UserUpvotes(ctx, account, index)
	if err != nil {
		return false, callError("userUpvotes", err, "index", index)
	}
	return voted, nil
}

func callError(method string, err error, key string, value uint64) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, method+" timed out")
	}
	return xerrors.Wrap(xerrors.CodeCallReverted, err, method+" failed",
		xerrors.WithMetadata("method", method),
		xerrors.WithMetadata(key, strconv.FormatUint(value, 10)),
		xerrors.WithAlert(false))
}

// TxResult describes a confirmed write.
type TxResult struct {
	RecordID    string `json:"recordId,omitempty"`
	Method      string `json:"method"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

type writeCall struct {
	method  string
	args    map[string]any
	value   *big.Int
	success string
	submit  func(context.Context, *registry.Contract) (*registry.PendingTx, error)
}

// PurchaseSubscription pays price (in FLOW) for a subscription to agent id.
func (m *Manager) PurchaseSubscription(ctx context.Context, id uint64, price decimal.Decimal) (*TxResult, error) {
	if err := m.requireContract(); err != nil {
		return nil, err
	}
	value, err := registry.ToWei(price)
	if err != nil {
		return nil, m.rejectInput(err)
	}
	return m.write(ctx, writeCall{
		method:  "purchaseSubscription",
		args:    map[string]any{"agent_id": id, "price": price.String()},
		value:   value,
		success: "Subscription purchased successfully!",
		submit: func(ctx context.Context, c *registry.Contract) (*registry.PendingTx, error) {
			return c.PurchaseSubscription(ctx, id, value)
		},
	})
}

// SubmitFeatureRequest files a feature request offering price (in FLOW).
func (m *Manager) SubmitFeatureRequest(ctx context.Context, title, description string, price decimal.Decimal) (*TxResult, error) {
	if err := m.requireContract(); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, m.rejectInput(errors.New("title is required"))
	}
	offered, err := registry.ToWei(price)
	if err != nil {
		return nil, m.rejectInput(err)
	}
	return m.write(ctx, writeCall{
		method: "submitFeatureRequest",
		args: map[string]any{
			"title":             title,
			"description":       description,
			"price":             price.String(),
			"price_offered_wei": offered.String(),
		},
		success: "Feature request submitted successfully!",
		submit: func(ctx context.Context, c *registry.Contract) (*registry.PendingTx, error) {
			return c.SubmitFeatureRequest(ctx, title, description, offered)
		},
	})
}

// UpvoteFeatureRequest upvotes the request at index.
func (m *Manager) UpvoteFeatureRequest(ctx context.Context, index uint64) (*TxResult, error) {
	return m.write(ctx, writeCall{
		method:  "upvoteFeatureRequest",
		args:    map[string]any{"index": index},
		success: "Upvote recorded successfully!",
		submit: func(ctx context.Context, c *registry.Contract) (*registry.PendingTx, error) {
			return c.UpvoteFeatureRequest(ctx, index)
		},
	})
}

// requireContract reports the missing connection before any input is looked at.
func (m *Manager) requireContract() error {
	if m.Contract() == nil {
		m.notify(NotificationError, MsgConnectFirst)
		return errNotConnected()
	}
	return nil
}

func (m *Manager) rejectInput(err error) error {
	m.notify(NotificationError, msgTransactionFailed+err.Error())
	return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid transaction input")
}

// write runs one contract transaction: processing notification, submission,
// confirmation wait, then the final notification.
func (m *Manager) write(ctx context.Context, call writeCall) (*TxResult, error) {
	contract := m.Contract()
	if contract == nil {
		m.notify(NotificationError, MsgConnectFirst)
		return nil, errNotConnected()
	}
	account := contract.From().Hex()
	log := m.log.With(slog.String("method", call.method), slog.String("account", account))

	m.notify(NotificationInfo, MsgProcessing)
	record := m.journalCreate(ctx, account, call)

	pending, err := call.submit(ctx, contract)
	if err != nil {
		return nil, m.writeFailed(ctx, log, call.method, account, record, err)
	}
	log.Info("交易已提交", slog.String("tx_hash", pending.Hash.Hex()))
	if record != nil {
		if err := m.journal.MarkSubmitted(ctx, record.ID, pending.Hash.Hex()); err != nil {
			log.Warn("更新交易日志失败", slog.Any("error", err))
		}
	}

	receipt, err := pending.Wait(ctx)
	if err != nil {
		return nil, m.writeFailed(ctx, log, call.method, account, record, err)
	}

	result := &TxResult{
		Method:  call.method,
		TxHash:  pending.Hash.Hex(),
		GasUsed: uint64(receipt.GasUsed),
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.ToInt().Uint64()
	}
	if record != nil {
		result.RecordID = record.ID
		if err := m.journal.MarkConfirmed(ctx, record.ID, result.BlockNumber); err != nil {
			log.Warn("更新交易日志失败", slog.Any("error", err))
		}
	}

	metrics.ObserveTransaction(call.method, string(journal.StatusConfirmed))
	logger.Audit().Info("transaction_confirmed",
		slog.String("method", call.method),
		slog.String("account", account),
		slog.String("tx_hash", result.TxHash),
		slog.Uint64("block", result.BlockNumber))
	m.publish(events.KindTransaction, account, result)
	m.notify(NotificationSuccess, call.success)
	return result, nil
}

func (m *Manager) journalCreate(ctx context.Context, account string, call writeCall) *journal.TxRecord {
	if m.journal == nil {
		return nil
	}
	args, _ := json.Marshal(call.args)
	record := &journal.TxRecord{
		Account: account,
		Method:  call.method,
		Args:    string(args),
		Status:  journal.StatusPending,
	}
	if call.value != nil {
		record.ValueWei = call.value.String()
	}
	if err := m.journal.Create(ctx, record); err != nil {
		m.log.Warn("写入交易日志失败", slog.String("method", call.method), slog.Any("error", err))
		return nil
	}
	return record
}

// writeFailed classifies err, updates the journal and emits the error
// notification. Rejections by the user get their own message.
func (m *Manager) writeFailed(ctx context.Context, log *slog.Logger, method, account string, record *journal.TxRecord, err error) error {
	status := journal.StatusFailed
	code := xerrors.CodeCallReverted
	message := msgTransactionFailed + failureReason(err)
	switch {
	case wallet.IsUserRejected(err):
		status = journal.StatusRejected
		code = xerrors.CodeUserRejected
		message = MsgRejected
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = xerrors.CodeTimeout
	}
	wrapped := xerrors.Wrap(code, err, method+" failed", xerrors.WithMetadata("method", method))

	if record != nil {
		// The request context may already be done; the journal update must
		// still land.
		if jerr := m.journal.MarkFailed(context.WithoutCancel(ctx), record.ID, status, string(code), err.Error()); jerr != nil {
			log.Warn("更新交易日志失败", slog.Any("error", jerr))
		}
	}
	log.Warn("交易失败", slog.String("status", string(status)), slog.Any("error", err))
	metrics.ObserveTransaction(method, string(status))
	logger.Audit().Info("transaction_failed",
		slog.String("method", method),
		slog.String("account", account),
		slog.String("status", string(status)),
		slog.String("error", err.Error()))
	m.publish(events.KindTransaction, account, map[string]string{
		"method": method,
		"status": string(status),
		"error":  err.Error(),
	})
	if m.alerts != nil && xerrors.ShouldAlert(wrapped) {
		if aerr := m.alerts.Notify(context.WithoutCancel(ctx), alerting.FromError(method, account, wrapped)); aerr != nil {
			log.Warn("发送告警失败", slog.Any("error", aerr))
		}
	}
	m.notify(NotificationError, message)
	return wrapped
}

// failureReason extracts the most readable cause of a failed write.
func failureReason(err error) string {
	var revert *registry.RevertError
	if errors.As(err, &revert) && revert.Reason != "" {
		return revert.Reason
	}
	if perr, ok := wallet.AsError(err); ok && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}
