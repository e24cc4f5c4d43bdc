// Package journal 记录会话发起的每一笔合约写交易，便于审计与查询。
package journal

import (
	"context"
	"strings"

	xerrors "AgentHub-Chain/internal/errors"
)

// Status 表示交易在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Terminal 判断状态是否为终态。
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusRejected
}

// TxRecord 描述一次合约写操作。
type TxRecord struct {
	ID          string `json:"id"`
	Account     string `json:"account"`
	Method      string `json:"method"`
	Args        string `json:"args,omitempty"`
	ValueWei    string `json:"value_wei,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Status      Status `json:"status"`
	ErrorCode   string `json:"error_code,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Store 抽象了交易日志的持久化接口。
type Store interface {
	Create(ctx context.Context, record *TxRecord) error
	Get(ctx context.Context, id string) (*TxRecord, error)
	MarkSubmitted(ctx context.Context, id, txHash string) error
	MarkConfirmed(ctx context.Context, id string, blockNumber uint64) error
	MarkFailed(ctx context.Context, id string, status Status, code, lastError string) error
	List(ctx context.Context, opts ...ListOption) ([]*TxRecord, error)
	Close() error
}

// ErrRecordNotFound 表示指定的交易记录不存在。
var ErrRecordNotFound = xerrors.New(xerrors.CodeNotFound, "transaction record not found")

// ListOptions 控制查询交易记录时的过滤条件。
type ListOptions struct {
	Limit    int
	Offset   int
	Account  string
	Method   string
	Statuses []Status
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.Account = strings.ToLower(strings.TrimSpace(opts.Account))
	opts.Method = strings.TrimSpace(opts.Method)
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

// WithLimit 限制返回条数。
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset 跳过前 n 条匹配记录。
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithAccount 按发起账户过滤。
func WithAccount(account string) ListOption {
	return func(opts *ListOptions) { opts.Account = account }
}

// WithMethod 按合约方法过滤。
func WithMethod(method string) ListOption {
	return func(opts *ListOptions) { opts.Method = method }
}

// WithStatuses 按状态过滤。
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) { opts.Statuses = append(opts.Statuses[:0], statuses...) }
}

func buildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func validateFailure(status Status) error {
	if status != StatusFailed && status != StatusRejected {
		return xerrors.New(xerrors.CodeInvalidArgument, "失败状态只能是 failed 或 rejected")
	}
	return nil
}
