// Package catalog assembles agent listings from the registry contract.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	xerrors "AgentHub-Chain/internal/errors"
	"AgentHub-Chain/internal/observability/metrics"
	"AgentHub-Chain/internal/registry"
	"AgentHub-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultScanSize is the number of agent ids probed by a scan.
	DefaultScanSize = 10
	// DefaultConcurrency bounds the reads a scan keeps in flight.
	DefaultConcurrency = 4
)

// SubscribedAgent is an agent together with the caller's subscription.
type SubscribedAgent struct {
	registry.Agent
	Subscription registry.SubscriptionDetails `json:"subscription"`
}

// Scanner probes a range of agent ids concurrently.
type Scanner struct {
	concurrency int
	log         *slog.Logger
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithConcurrency bounds the number of ids read at the same time.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewScanner creates a Scanner.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{concurrency: DefaultConcurrency, log: logger.Named("catalog")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IDs returns 1..n, or 1..DefaultScanSize when n is not positive.
func IDs(n int) []uint64 {
	if n <= 0 {
		n = DefaultScanSize
	}
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = uint64(i + 1)
	}
	return ids
}

// ScanSubscribed returns the active agents account holds an active
// subscription to, ordered by id. An id whose reads fail is skipped.
func (s *Scanner) ScanSubscribed(ctx context.Context, reader registry.Reader, account common.Address, ids []uint64) ([]SubscribedAgent, error) {
	var (
		mu  sync.Mutex
		out []SubscribedAgent
	)
	err := s.scan(ctx, "subscribed", ids, func(ctx context.Context, id uint64) error {
		active, err := reader.HasActiveSubscription(ctx, account, id)
		if err != nil || !active {
			return err
		}
		agent, err := reader.GetAgent(ctx, id)
		if err != nil {
			return err
		}
		details, err := reader.GetSubscriptionDetails(ctx, account, id)
		if err != nil {
			return err
		}
		if !agent.IsActive || !details.Active {
			return nil
		}
		mu.Lock()
		out = append(out, SubscribedAgent{Agent: agent, Subscription: details})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ScanAgents returns every agent that could be read, ordered by id.
func (s *Scanner) ScanAgents(ctx context.Context, reader registry.Reader, ids []uint64) ([]registry.Agent, error) {
	var (
		mu  sync.Mutex
		out []registry.Agent
	)
	err := s.scan(ctx, "agents", ids, func(ctx context.Context, id uint64) error {
		agent, err := reader.GetAgent(ctx, id)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, agent)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// scan runs probe for every id. Per-id failures are logged and skipped; only
// a cancelled context or a disconnected wallet abort the scan.
func (s *Scanner) scan(ctx context.Context, name string, ids []uint64, probe func(context.Context, uint64) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := probe(gctx, id)
			if err == nil {
				return nil
			}
			if xerrors.CodeOf(err) == xerrors.CodeNotConnected {
				return err
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			metrics.ObserveScanSkip(name)
			s.log.Debug("跳过无法读取的 agent", slog.String("scan", name), slog.String("id", strconv.FormatUint(id, 10)), slog.Any("error", err))
			return nil
		})
	}
	return g.Wait()
}
