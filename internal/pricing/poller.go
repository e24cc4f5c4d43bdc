package pricing

import (
	"context"
	"log/slog"
	"time"

	xerrors "AgentHub-Chain/internal/errors"
	"AgentHub-Chain/internal/observability/metrics"
	"AgentHub-Chain/pkg/logger"
)

const defaultInterval = 60 * time.Second

// Fetcher 获取最新汇率。
type Fetcher interface {
	Fetch(ctx context.Context) (Rates, error)
}

// Poller 定期刷新汇率并写入缓存。
type Poller struct {
	fetcher  Fetcher
	cache    Cache
	interval time.Duration
	log      *slog.Logger
}

// NewPoller 创建轮询器，cache 为空时使用不过期的内存缓存。
func NewPoller(fetcher Fetcher, cache Cache, interval time.Duration) *Poller {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{fetcher: fetcher, cache: cache, interval: interval, log: logger.Named("pricing")}
}

// Run 立即刷新一次，此后按周期刷新，直到 ctx 结束。刷新失败保留旧快照。
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("刷新汇率失败", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh 获取一次汇率并写入缓存。
func (p *Poller) Refresh(ctx context.Context) (Rates, error) {
	rates, err := p.fetcher.Fetch(ctx)
	metrics.ObservePriceFetch(err)
	if err != nil {
		return Rates{}, err
	}
	if err := p.cache.Set(ctx, rates); err != nil {
		p.log.Warn("写入汇率缓存失败", slog.Any("error", err))
	}
	return rates, nil
}

// Latest 返回缓存中的快照，缓存为空时同步刷新。
func (p *Poller) Latest(ctx context.Context) (Rates, error) {
	rates, ok, err := p.cache.Get(ctx)
	if err != nil {
		p.log.Warn("读取汇率缓存失败", slog.Any("error", err))
	}
	if ok {
		return rates, nil
	}
	rates, err = p.Refresh(ctx)
	if err != nil {
		return Rates{}, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "汇率不可用")
	}
	return rates, nil
}
