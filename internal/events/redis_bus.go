package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 发布订阅的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// RedisBus 使用 Redis Pub/Sub 广播事件。
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus 创建 Redis 总线实例。
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisBus(client, cfg.Channel), nil
}

func newRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = "agenthub:session"
	}
	return &RedisBus{client: client, channel: channel}
}

// Publish 将事件发布到 Redis 频道。
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Consume 订阅 Redis 频道并处理事件。
func (b *RedisBus) Consume(ctx context.Context, handler Handler) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("订阅 Redis 频道失败: %w", err)
	}
	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return redis.ErrClosed
			}
			b.handleMessage(ctx, msg, handler)
		}
	}
}

// handleMessage 解码一条频道消息并交给处理函数，无法解码的消息直接丢弃。
func (b *RedisBus) handleMessage(ctx context.Context, msg *redis.Message, handler Handler) bool {
	if msg == nil || msg.Channel != b.channel {
		return false
	}
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		return false
	}
	_ = handler(ctx, ev)
	return true
}

// Close 关闭 Redis 连接。
func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
