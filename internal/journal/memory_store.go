package journal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "AgentHub-Chain/internal/errors"

	"github.com/google/uuid"
)

// MemoryStore 以内存方式保存交易记录。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*TxRecord
	seq     map[string]int
	next    int
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*TxRecord), seq: make(map[string]int)}
}

// Create 实现 Store 接口，未指定 ID 时自动生成。
func (m *MemoryStore) Create(_ context.Context, record *TxRecord) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, ok := m.records[record.ID]; ok {
		return xerrors.New(xerrors.CodeInvalidArgument, "交易记录 ID 重复")
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = StatusPending
	}
	clone := *record
	m.records[record.ID] = &clone
	m.seq[record.ID] = m.next
	m.next++
	return nil
}

// Get 返回交易记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*TxRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

// MarkSubmitted 记录交易哈希。
func (m *MemoryStore) MarkSubmitted(_ context.Context, id, txHash string) error {
	return m.update(id, func(r *TxRecord) {
		r.TxHash = txHash
	})
}

// MarkConfirmed 将交易标记为已确认。
func (m *MemoryStore) MarkConfirmed(_ context.Context, id string, blockNumber uint64) error {
	return m.update(id, func(r *TxRecord) {
		r.Status = StatusConfirmed
		r.BlockNumber = blockNumber
		r.ErrorCode = ""
		r.LastError = ""
	})
}

// MarkFailed 将交易标记为失败或被拒绝。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, status Status, code, lastError string) error {
	if err := validateFailure(status); err != nil {
		return err
	}
	return m.update(id, func(r *TxRecord) {
		r.Status = status
		r.ErrorCode = code
		r.LastError = lastError
	})
}

func (m *MemoryStore) update(id string, mutate func(*TxRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	mutate(record)
	record.UpdatedAt = time.Now().Unix()
	return nil
}

// List 按创建时间倒序返回记录。
func (m *MemoryStore) List(_ context.Context, opts ...ListOption) ([]*TxRecord, error) {
	options := buildListOptions(opts)

	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*TxRecord, 0, len(m.records))
	for _, record := range m.records {
		if !matches(record, options) {
			continue
		}
		matched = append(matched, record)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt == matched[j].CreatedAt {
			return m.seq[matched[i].ID] > m.seq[matched[j].ID]
		}
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	if options.Offset >= len(matched) {
		return []*TxRecord{}, nil
	}
	matched = matched[options.Offset:]
	if len(matched) > options.Limit {
		matched = matched[:options.Limit]
	}
	result := make([]*TxRecord, len(matched))
	for i, record := range matched {
		clone := *record
		result[i] = &clone
	}
	return result, nil
}

func matches(record *TxRecord, options ListOptions) bool {
	if options.Account != "" && !strings.EqualFold(record.Account, options.Account) {
		return false
	}
	if options.Method != "" && record.Method != options.Method {
		return false
	}
	if len(options.Statuses) > 0 {
		found := false
		for _, status := range options.Statuses {
			if record.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
