package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"AgentHub-Chain/internal/api"
	"AgentHub-Chain/internal/catalog"
	"AgentHub-Chain/internal/config"
	"AgentHub-Chain/internal/events"
	"AgentHub-Chain/internal/journal"
	"AgentHub-Chain/internal/observability/alerting"
	"AgentHub-Chain/internal/onramp"
	"AgentHub-Chain/internal/pricing"
	"AgentHub-Chain/internal/session"
	"AgentHub-Chain/internal/wallet"
	"AgentHub-Chain/internal/web3"
	"AgentHub-Chain/internal/web3/provider"
	"AgentHub-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// main 是 AgentHub 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agenthubd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENTHUB_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agenthub.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Rotation: logger.RotationConfig{
			MaxSizeMB:  cfg.Logging.Rotation.MaxSizeMB,
			MaxBackups: cfg.Logging.Rotation.MaxBackups,
			MaxAgeDays: cfg.Logging.Rotation.MaxAgeDays,
			Compress:   cfg.Logging.Rotation.Compress,
		},
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.Audit.Enabled,
			Path:    cfg.Logging.Audit.Path,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	appLog := logger.Named("agenthubd")

	defs, err := web3.LoadChainDefinitions(cfg.Chain.DefinitionsPath)
	if err != nil {
		return err
	}
	if _, ok := defs.Chains[cfg.Chain.Required]; ok {
		defs.Required = cfg.Chain.Required
	}
	required, err := defs.RequiredParams()
	if err != nil {
		return err
	}

	walletProvider, cleanup, err := openWallet(ctx, cfg, defs, required)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := openBus(ctx, cfg.Events)
	if err != nil {
		return err
	}
	defer bus.Close()

	alerts := alerting.NewFanout(
		&alerting.LogNotifier{Logger: logger.Named("alert")},
		webhookNotifier(cfg.Alerting),
	)

	manager, err := session.New(walletProvider, session.Config{
		ContractAddress: common.HexToAddress(cfg.Contract.Address),
		RequiredChain:   required,
		NotificationTTL: cfg.Session.NotificationTTL.Std(),
		ReceiptPoll:     cfg.Session.ReceiptPoll.Std(),
	},
		session.WithJournal(store),
		session.WithPublisher(bus),
		session.WithAlerting(alerts),
	)
	if err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Close()

	cache, err := openRateCache(ctx, cfg.Pricing.Cache)
	if err != nil {
		return err
	}
	poller := pricing.NewPoller(pricing.NewClient(pricing.ClientConfig{
		BaseURL:    cfg.Pricing.BaseURL,
		Timeout:    cfg.Pricing.Timeout.Std(),
		Currencies: cfg.Pricing.Currencies,
	}), cache, cfg.Pricing.Interval.Std())
	go poller.Run(ctx)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	server := api.NewServer(cfg.Server.Address, api.Deps{
		Session:     manager,
		Scanner:     catalog.NewScanner(catalog.WithConcurrency(cfg.Session.ScanConcurrency)),
		ScanSize:    int(cfg.Session.ScanSize),
		Prices:      poller,
		Onramp:      onramp.New(onramp.Config{AppID: cfg.Onramp.AppID, BaseURL: cfg.Onramp.BaseURL}),
		Journal:     store,
		MetricsPath: metricsPath,
	}, api.WithShutdownTimeout(cfg.Server.ShutdownTimeout.Std()))

	appLog.Info("agenthubd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("wallet", cfg.Wallet.Driver),
		slog.String("required_chain", required.ChainID),
		slog.String("contract", cfg.Contract.Address),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openWallet 按驱动创建钱包 Provider。rpc 驱动未配置端点时返回 nil，
// 会话以“未安装钱包”的状态运行。
func openWallet(ctx context.Context, cfg *config.Config, defs web3.ChainDefinitions, required web3.ChainParams) (wallet.Provider, func(), error) {
	switch cfg.Wallet.Driver {
	case "keyed":
		raw := strings.TrimSpace(os.Getenv(cfg.Wallet.PrivateKeyEnv))
		if raw == "" {
			return nil, nil, fmt.Errorf("keyed 钱包需要设置环境变量 %s", cfg.Wallet.PrivateKeyEnv)
		}
		key, err := wallet.HexToKey(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("解析钱包私钥失败: %w", err)
		}
		chains, err := provider.NewRegistry(ctx, defs, nil)
		if err != nil {
			return nil, nil, err
		}
		approver := wallet.AutoApprove
		if !cfg.Wallet.AutoApprove {
			approver = func(context.Context, wallet.ApprovalRequest) bool { return false }
		}
		keyed, err := wallet.NewKeyedProvider(wallet.KeyedConfig{
			Key:      key,
			ChainID:  required.ChainID,
			Chains:   chains,
			Approver: approver,
		})
		if err != nil {
			chains.Close()
			return nil, nil, err
		}
		return keyed, chains.Close, nil
	default:
		rpcProvider, err := wallet.DialRPC(ctx, wallet.RPCConfig{
			Endpoint:     cfg.Wallet.Endpoint,
			PollInterval: cfg.Wallet.PollInterval.Std(),
		})
		if errors.Is(err, wallet.ErrNoProvider) {
			logger.Named("agenthubd").Warn("未检测到钱包", slog.Any("error", err))
			return nil, func() {}, nil
		}
		if err != nil {
			return nil, nil, err
		}
		rpcProvider.Start(ctx)
		return rpcProvider, rpcProvider.Close, nil
	}
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Driver {
	case "mysql":
		return journal.NewMySQLStore(ctx, journal.MySQLConfig{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		})
	default:
		return journal.NewMemoryStore(), nil
	}
}

func openBus(ctx context.Context, cfg config.EventsConfig) (events.Bus, error) {
	switch cfg.Driver {
	case "redis":
		return events.NewRedisBus(ctx, events.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
	case "rabbitmq":
		return events.NewRabbitMQBus(events.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
		})
	default:
		return events.NewMemoryBus(256), nil
	}
}

func openRateCache(ctx context.Context, cfg config.CacheConfig) (pricing.Cache, error) {
	if cfg.Driver == "redis" {
		return pricing.NewRedisCache(ctx, pricing.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Channel,
			TTL:      cfg.TTL.Std(),
		})
	}
	return pricing.NewMemoryCache(cfg.TTL.Std()), nil
}

// webhookNotifier 在未配置回调地址时返回 nil，由 Fanout 忽略。
func webhookNotifier(cfg config.AlertingConfig) alerting.Notifier {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil
	}
	return &alerting.WebhookNotifier{
		URL:    cfg.WebhookURL,
		Client: &http.Client{Timeout: cfg.Timeout.Std()},
	}
}
