package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"AgentHub-Chain/internal/catalog"
	"AgentHub-Chain/internal/journal"
	"AgentHub-Chain/internal/observability/metrics"
	"AgentHub-Chain/internal/onramp"
	"AgentHub-Chain/internal/pricing"
	"AgentHub-Chain/internal/registry"
	"AgentHub-Chain/internal/session"
	"AgentHub-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// Session 是 API 依赖的会话能力，由 *session.Manager 实现。
type Session interface {
	registry.Reader
	Snapshot() session.Snapshot
	Notification() (session.Notification, bool)
	Subscribe(ch chan<- session.Snapshot) event.Subscription
	SubscribeNotifications(ch chan<- session.Notification) event.Subscription
	Connect(ctx context.Context) error
	Disconnect()
	CheckNetwork(ctx context.Context) (bool, error)
	SwitchNetwork(ctx context.Context) error
	GetFeatureRequest(ctx context.Context, index uint64) (registry.FeatureRequest, error)
	UserUpvotes(ctx context.Context, account common.Address, index uint64) (bool, error)
	PurchaseSubscription(ctx context.Context, id uint64, price decimal.Decimal) (*session.TxResult, error)
	SubmitFeatureRequest(ctx context.Context, title, description string, price decimal.Decimal) (*session.TxResult, error)
	UpvoteFeatureRequest(ctx context.Context, index uint64) (*session.TxResult, error)
}

// PriceSource 提供最新汇率。
type PriceSource interface {
	Latest(ctx context.Context) (pricing.Rates, error)
}

// Deps 汇总 API 所需的依赖，可选依赖为空时对应接口返回 503。
type Deps struct {
	Session     Session
	Scanner     *catalog.Scanner
	ScanSize    int
	Prices      PriceSource
	Onramp      *onramp.Generator
	Journal     journal.Store
	MetricsPath string
}

// Server 负责暴露 REST 与 WebSocket 接口。
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	deps            Deps
	hub             *Hub
	log             *slog.Logger
}

// Option 自定义 Server。
type Option func(*Server)

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Deps, opts ...Option) *Server {
	if deps.Scanner == nil {
		deps.Scanner = catalog.NewScanner()
	}
	s := &Server{
		addr:            addr,
		shutdownTimeout: 5 * time.Second,
		deps:            deps,
		log:             logger.Named("api"),
	}
	if deps.Session != nil {
		s.hub = NewHub(deps.Session)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes 返回完整的路由。
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", s.handleGetSession)
		r.Post("/session/connect", s.handleConnect)
		r.Post("/session/disconnect", s.handleDisconnect)
		r.Post("/session/network/check", s.handleCheckNetwork)
		r.Post("/session/network/switch", s.handleSwitchNetwork)
		r.Get("/notification", s.handleNotification)
		r.Get("/stream", s.handleStream)

		r.Get("/agents", s.handleListAgents)
		r.Get("/agents/subscribed", s.handleSubscribedAgents)
		r.Get("/agents/{id}", s.handleGetAgent)
		r.Get("/agents/{id}/subscription", s.handleSubscription)
		r.Post("/agents/{id}/subscribe", s.handleSubscribe)

		r.Get("/feature-requests/{index}", s.handleGetFeatureRequest)
		r.Post("/feature-requests", s.handleSubmitFeatureRequest)
		r.Post("/feature-requests/{index}/upvote", s.handleUpvote)

		r.Get("/prices", s.handlePrices)
		r.Get("/prices/convert", s.handleConvert)
		r.Get("/onramp", s.handleOnramp)
		r.Get("/transactions", s.handleTransactions)
	})
	if s.deps.MetricsPath != "" {
		r.Handle(s.deps.MetricsPath, metrics.Handler())
	}
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
