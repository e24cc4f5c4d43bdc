package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

func TestNewEventAssignsIDs(t *testing.T) {
	first, err := New(KindNotification, "0xabc", map[string]string{"message": "Wallet connected successfully!"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	second, _ := New(KindNotification, "0xabc", nil)
	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected unique ids, got %q and %q", first.ID, second.ID)
	}
	var payload map[string]string
	if err := first.Decode(&payload); err != nil || payload["message"] != "Wallet connected successfully!" {
		t.Fatalf("unexpected payload %v %v", payload, err)
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus(4)
	a, cancelA := bus.Subscribe()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	ev, _ := New(KindSession, "", map[string]bool{"connected": true})
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, ch := range []<-chan Event{a, b} {
		select {
		case got := <-ch:
			if got.ID != ev.ID {
				t.Fatalf("unexpected event %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}

	cancelA()
	if _, ok := <-a; ok {
		t.Fatalf("cancelled subscription should be closed")
	}
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}

func TestMemoryBusConsumeStopsOnClose(t *testing.T) {
	bus := NewMemoryBus(1)
	received := make(chan Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- bus.Consume(context.Background(), func(_ context.Context, ev Event) error {
			received <- ev
			return nil
		})
	}()

	ev, _ := New(KindTransaction, "0xabc", map[string]string{"status": "confirmed"})
	deadline := time.After(time.Second)
	for delivered := false; !delivered; {
		_ = bus.Publish(context.Background(), ev)
		select {
		case <-received:
			delivered = true
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("consumer never received event")
		}
	}

	_ = bus.Close()
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := bus.Publish(context.Background(), ev); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close should fail, got %v", err)
	}
}

func TestBusConstructorsValidate(t *testing.T) {
	if _, err := NewRedisBus(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected redis address error")
	}
	if _, err := NewRabbitMQBus(RabbitMQConfig{}); err == nil {
		t.Fatalf("expected rabbitmq url error")
	}
	bus := newRedisBus(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	defer bus.Close()
	if bus.channel != "agenthub:session" {
		t.Fatalf("unexpected default channel %s", bus.channel)
	}
}

func TestRedisHandleMessage(t *testing.T) {
	bus := newRedisBus(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "agenthub:test")
	defer bus.Close()

	ev, _ := New(KindTransaction, "0xabc", map[string]string{"tx_hash": "0x01"})
	body, _ := json.Marshal(ev)

	var got []Event
	handler := func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	}
	ctx := context.Background()
	if !bus.handleMessage(ctx, &redis.Message{Channel: "agenthub:test", Payload: string(body)}, handler) {
		t.Fatalf("expected message to be handled")
	}
	if bus.handleMessage(ctx, &redis.Message{Channel: "other", Payload: string(body)}, handler) {
		t.Fatalf("message from another channel must be ignored")
	}
	if bus.handleMessage(ctx, &redis.Message{Channel: "agenthub:test", Payload: "not json"}, handler) {
		t.Fatalf("undecodable message must be dropped")
	}
	if len(got) != 1 || got[0].ID != ev.ID || got[0].Account != "0xabc" {
		t.Fatalf("unexpected handled events %+v", got)
	}
}

type recordingAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *recordingAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		return errors.New("undecodable deliveries must not be requeued")
	}
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestHandleDeliveryAcksAndNacks(t *testing.T) {
	ack := &recordingAcknowledger{}
	ev, _ := New(KindNotification, "0xabc", map[string]string{"message": "Transaction confirmed!"})
	ev.OccurredAt = time.Time{}
	body, _ := json.Marshal(ev)
	sentAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	var handled Event
	handler := func(_ context.Context, e Event) error {
		handled = e
		return errors.New("handler errors do not block the ack")
	}
	good := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body, Timestamp: sentAt}
	if err := handleDelivery(context.Background(), good, handler); err != nil {
		t.Fatalf("handle delivery: %v", err)
	}
	bad := amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{")}
	if err := handleDelivery(context.Background(), bad, handler); err == nil {
		t.Fatalf("expected decode error")
	}

	if handled.ID != ev.ID || !handled.OccurredAt.Equal(sentAt) {
		t.Fatalf("unexpected handled event %+v", handled)
	}
	if len(ack.acked) != 1 || ack.acked[0] != 1 {
		t.Fatalf("unexpected acks %v", ack.acked)
	}
	if len(ack.nacked) != 1 || ack.nacked[0] != 2 {
		t.Fatalf("unexpected nacks %v", ack.nacked)
	}
}

// 以下两个测试需要真实的中间件，未设置环境变量时跳过。

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("AGENTHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AGENTHUB_TEST_REDIS_ADDR 未设置，跳过 Redis 集成测试")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus, err := NewRedisBus(ctx, RedisConfig{Address: addr, Channel: "agenthub:test:" + time.Now().Format("150405.000")})
	if err != nil {
		t.Skipf("Redis 不可用: %v", err)
	}
	defer bus.Close()
	assertRoundTrip(ctx, t, bus)
}

func TestRabbitMQBusRoundTrip(t *testing.T) {
	url := os.Getenv("AGENTHUB_TEST_AMQP_URL")
	if url == "" {
		t.Skip("AGENTHUB_TEST_AMQP_URL 未设置，跳过 RabbitMQ 集成测试")
	}
	bus, err := NewRabbitMQBus(RabbitMQConfig{URL: url, Exchange: "agenthub.test"})
	if err != nil {
		t.Skipf("RabbitMQ 不可用: %v", err)
	}
	defer bus.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assertRoundTrip(ctx, t, bus)
}

// assertRoundTrip 持续发布直到消费者完成订阅并收到事件。
func assertRoundTrip(ctx context.Context, t *testing.T, bus Bus) {
	t.Helper()
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()
	received := make(chan Event, 8)
	go func() {
		_ = bus.Consume(consumeCtx, func(_ context.Context, ev Event) error {
			received <- ev
			return nil
		})
	}()

	ev, _ := New(KindTransaction, "0xabc", map[string]string{"status": "confirmed"})
	for {
		if err := bus.Publish(ctx, ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case got := <-received:
			if got.ID != ev.ID || got.Kind != KindTransaction {
				t.Fatalf("unexpected event %+v", got)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			t.Fatalf("event was not delivered: %v", ctx.Err())
		}
	}
}
