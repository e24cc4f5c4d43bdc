package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述 RabbitMQ 交换机的连接参数。
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// RabbitMQBus 通过 topic 交换机发布事件。
type RabbitMQBus struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewRabbitMQBus 创建 RabbitMQ 总线实例。
func NewRabbitMQBus(cfg RabbitMQConfig) (*RabbitMQBus, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "agenthub.session"
	}
	routingKey := cfg.RoutingKey
	if routingKey == "" {
		routingKey = "session.event"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 交换机失败: %w", err)
	}
	return &RabbitMQBus{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

// routingKeyFor 以事件类别作为路由键后缀，例如 session.event.transaction。
func (b *RabbitMQBus) routingKeyFor(ev Event) string {
	return b.routingKey + "." + string(ev.Kind)
}

// Publish 将事件投递到交换机。
func (b *RabbitMQBus) Publish(ctx context.Context, ev Event) error {
	if b == nil || b.ch == nil {
		return errors.New("RabbitMQ 总线未初始化")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return b.ch.PublishWithContext(ctx, b.exchange, b.routingKeyFor(ev), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   ev.ID,
		Timestamp:   ev.OccurredAt,
		Type:        string(ev.Kind),
		Body:        body,
	})
}

// Consume 声明一个独占队列并绑定到交换机，使用手动确认模式消费。
func (b *RabbitMQBus) Consume(ctx context.Context, handler Handler) error {
	if b == nil || b.ch == nil {
		return errors.New("RabbitMQ 总线未初始化")
	}
	queue, err := b.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	if err := b.ch.QueueBind(queue.Name, b.routingKey+".#", b.exchange, false, nil); err != nil {
		return fmt.Errorf("绑定 RabbitMQ 队列失败: %w", err)
	}
	msgs, err := b.ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return amqp.ErrClosed
			}
			handleDelivery(ctx, msg, handler)
		}
	}
}

// handleDelivery 处理单条投递：无法解码的消息拒绝且不重新入队，其余在处理后确认。
func handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) error {
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		_ = msg.Nack(false, false)
		return fmt.Errorf("解析 RabbitMQ 消息失败: %w", err)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = msg.Timestamp.UTC()
		if msg.Timestamp.IsZero() {
			ev.OccurredAt = time.Now().UTC()
		}
	}
	_ = handler(ctx, ev)
	return msg.Ack(false)
}

// Close 关闭 RabbitMQ 连接。
func (b *RabbitMQBus) Close() error {
	if b == nil {
		return nil
	}
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
