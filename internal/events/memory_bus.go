package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed 表示总线已关闭。
var ErrClosed = errors.New("事件总线已关闭")

// MemoryBus 在进程内把事件广播给所有消费者，主要用于单机部署和测试。
type MemoryBus struct {
	size int

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewMemoryBus 创建内存总线，size 为每个消费者的缓冲大小。
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 64
	}
	return &MemoryBus{size: size, subs: make(map[int]chan Event)}
}

// Publish 广播事件。缓冲区已满的消费者会被跳过，不阻塞发布方。
func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe 注册一个消费者，返回事件通道和取消函数。
func (b *MemoryBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.size)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Consume 持续把事件交给 handler，直到 ctx 结束或总线关闭。
func (b *MemoryBus) Consume(ctx context.Context, handler Handler) error {
	ch, cancel := b.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			_ = handler(ctx, ev)
		}
	}
}

// Close 关闭总线并结束所有消费者。
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	return nil
}
