package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 保存最近一次汇率快照。
type Cache interface {
	Get(ctx context.Context) (Rates, bool, error)
	Set(ctx context.Context, rates Rates) error
}

// MemoryCache 在进程内保存快照，超过 TTL 视为失效。
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	rates  Rates
	stored time.Time
}

// NewMemoryCache 创建内存缓存，ttl 为 0 表示永不过期。
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now}
}

// Get 返回未过期的快照。
func (c *MemoryCache) Get(_ context.Context) (Rates, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stored.IsZero() {
		return Rates{}, false, nil
	}
	if c.ttl > 0 && c.now().Sub(c.stored) > c.ttl {
		return Rates{}, false, nil
	}
	return c.rates, true, nil
}

// Set 覆盖快照。
func (c *MemoryCache) Set(_ context.Context, rates Rates) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = rates
	c.stored = c.now()
	return nil
}

// RedisConfig 描述 Redis 缓存连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// RedisCache 将快照保存在 Redis 中，供多个实例共享。
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache 创建 Redis 缓存并检查连通性。
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
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
	key := cfg.Key
	if key == "" {
		key = "agenthub:rates"
	}
	return &RedisCache{client: client, key: key, ttl: cfg.TTL}, nil
}

// Get 读取快照，键不存在时返回 false。
func (c *RedisCache) Get(ctx context.Context) (Rates, bool, error) {
	body, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Rates{}, false, nil
	}
	if err != nil {
		return Rates{}, false, fmt.Errorf("读取汇率缓存失败: %w", err)
	}
	var rates Rates
	if err := json.Unmarshal(body, &rates); err != nil {
		return Rates{}, false, fmt.Errorf("解析汇率缓存失败: %w", err)
	}
	return rates, true, nil
}

// Set 写入快照并设置过期时间。
func (c *RedisCache) Set(ctx context.Context, rates Rates) error {
	body, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("序列化汇率失败: %w", err)
	}
	if err := c.client.Set(ctx, c.key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("写入汇率缓存失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (c *RedisCache) Close() error {
	return c.client.Close()
}
