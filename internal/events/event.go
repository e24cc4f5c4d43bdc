// Package events 负责把会话状态变化、通知与交易结果发布给外部系统。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind 标识事件类别。
type Kind string

const (
	KindSession      Kind = "session"
	KindNotification Kind = "notification"
	KindTransaction  Kind = "transaction"
)

// Event 是发布到总线上的统一信封。
type Event struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Account    string          `json:"account,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New 将负载序列化并生成带唯一 ID 的事件。
func New(kind Kind, account string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("序列化事件负载失败: %w", err)
	}
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Account:    account,
		Payload:    body,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// Decode 将事件负载反序列化到 out。
func (e Event) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// Handler 处理从总线收到的事件。
type Handler func(ctx context.Context, ev Event) error

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Consumer 负责从总线消费事件。
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Bus 同时具备发布与消费能力。
type Bus interface {
	Publisher
	Consumer
}
