package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config 描述了 AgentHub 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Wallet   WalletConfig   `json:"wallet"`
	Chain    ChainConfig    `json:"chain"`
	Contract ContractConfig `json:"contract"`
	Session  SessionConfig  `json:"session"`
	Journal  JournalConfig  `json:"journal"`
	Events   EventsConfig   `json:"events"`
	Pricing  PricingConfig  `json:"pricing"`
	Onramp   OnrampConfig   `json:"onramp"`
	Metrics  MetricsConfig  `json:"metrics"`
	Alerting AlertingConfig `json:"alerting"`
}

// Duration 支持在 JSON 中使用 "5s" 形式或整数毫秒。
type Duration time.Duration

// UnmarshalJSON 解析字符串或数字形式的时长。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v) * time.Millisecond)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("无效的时长 %q: %w", v, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("无效的时长 %v", raw)
	}
	return nil
}

// MarshalJSON 以字符串形式输出时长。
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std 返回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address         string   `json:"address"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// LoggingConfig 对应 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Rotation    RotationConfig `json:"rotation"`
	Audit       AuditConfig    `json:"audit"`
}

// RotationConfig 描述日志文件的滚动策略。
type RotationConfig struct {
	MaxSizeMB  int  `json:"max_size_mb"`
	MaxBackups int  `json:"max_backups"`
	MaxAgeDays int  `json:"max_age_days"`
	Compress   bool `json:"compress"`
}

// AuditConfig 描述审计日志输出。
type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// WalletConfig 选择钱包 Provider 的实现。
type WalletConfig struct {
	// Driver 取值 rpc 或 keyed。
	Driver       string   `json:"driver"`
	Endpoint     string   `json:"endpoint"`
	PollInterval Duration `json:"poll_interval"`
	// PrivateKeyEnv 为 keyed 驱动读取私钥的环境变量名。
	PrivateKeyEnv string `json:"private_key_env"`
	// AutoApprove 为 false 时 keyed 钱包会拒绝所有需要用户确认的请求。
	AutoApprove bool `json:"auto_approve"`
}

// ChainConfig 指定链定义文件以及平台要求的链。
type ChainConfig struct {
	DefinitionsPath string `json:"definitions_path"`
	Required        string `json:"required"`
}

// ContractConfig 指定代理注册合约地址。
type ContractConfig struct {
	Address string `json:"address"`
	// AddressEnv 为 address 留空时读取合约地址的环境变量名。
	AddressEnv string `json:"address_env"`
}

// SessionConfig 控制会话通知与批量扫描行为。
type SessionConfig struct {
	NotificationTTL Duration `json:"notification_ttl"`
	ScanSize        uint64   `json:"scan_size"`
	ScanConcurrency int      `json:"scan_concurrency"`
	ReceiptPoll     Duration `json:"receipt_poll"`
}

// JournalConfig 描述交易日志的存储后端。
type JournalConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	// MaxOpenConns 等连接池参数仅对 MySQL 生效。
	MaxOpenConns    int      `json:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
}

// EventsConfig 描述会话事件的发布方式。
type EventsConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 为 Redis 连接信息。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

// RabbitMQConfig 为 RabbitMQ 连接信息。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// PricingConfig 控制价格轮询。
type PricingConfig struct {
	BaseURL    string      `json:"base_url"`
	Interval   Duration    `json:"interval"`
	Timeout    Duration    `json:"timeout"`
	Currencies []string    `json:"currencies"`
	Cache      CacheConfig `json:"cache"`
}

// CacheConfig 描述汇率缓存后端。
type CacheConfig struct {
	Driver string      `json:"driver"`
	TTL    Duration    `json:"ttl"`
	Redis  RedisConfig `json:"redis"`
}

// OnrampConfig 为法币入金链接参数。
type OnrampConfig struct {
	AppID   string `json:"app_id"`
	BaseURL string `json:"base_url"`
}

// MetricsConfig 控制 Prometheus 指标。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// AlertingConfig 控制告警投递。
type AlertingConfig struct {
	WebhookURL string   `json:"webhook_url"`
	Timeout    Duration `json:"timeout"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse 解析 JSON 配置内容并补齐默认值。
func Parse(content []byte) (*Config, error) {
	var cfg Config
	if len(strings.TrimSpace(string(content))) > 0 {
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(5 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Wallet.Driver == "" {
		c.Wallet.Driver = "rpc"
	}
	if c.Wallet.PollInterval == 0 {
		c.Wallet.PollInterval = Duration(2 * time.Second)
	}
	if c.Wallet.PrivateKeyEnv == "" {
		c.Wallet.PrivateKeyEnv = "AGENTHUB_WALLET_KEY"
	}

	if c.Contract.AddressEnv == "" {
		c.Contract.AddressEnv = "AGENTHUB_CONTRACT_ADDRESS"
	}
	c.Contract.Address = strings.TrimSpace(c.Contract.Address)
	if c.Contract.Address == "" {
		c.Contract.Address = strings.TrimSpace(os.Getenv(c.Contract.AddressEnv))
	}

	if c.Chain.Required == "" {
		c.Chain.Required = "flow-testnet"
	}

	if c.Session.NotificationTTL == 0 {
		c.Session.NotificationTTL = Duration(5 * time.Second)
	}
	if c.Session.ScanSize == 0 {
		c.Session.ScanSize = 10
	}
	if c.Session.ScanConcurrency <= 0 {
		c.Session.ScanConcurrency = 4
	}
	if c.Session.ReceiptPoll == 0 {
		c.Session.ReceiptPoll = Duration(time.Second)
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Journal.MaxOpenConns == 0 {
		c.Journal.MaxOpenConns = 10
	}
	if c.Journal.MaxIdleConns == 0 {
		c.Journal.MaxIdleConns = 5
	}
	if c.Journal.ConnMaxLifetime == 0 {
		c.Journal.ConnMaxLifetime = Duration(30 * time.Minute)
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Events.Redis.Channel == "" {
		c.Events.Redis.Channel = "agenthub:session"
	}
	if c.Events.RabbitMQ.Exchange == "" {
		c.Events.RabbitMQ.Exchange = "agenthub.session"
	}
	if c.Events.RabbitMQ.RoutingKey == "" {
		c.Events.RabbitMQ.RoutingKey = "session.event"
	}

	if c.Pricing.BaseURL == "" {
		c.Pricing.BaseURL = "https://api.coinbase.com"
	}
	if c.Pricing.Interval == 0 {
		c.Pricing.Interval = Duration(60 * time.Second)
	}
	if c.Pricing.Timeout == 0 {
		c.Pricing.Timeout = Duration(10 * time.Second)
	}
	if len(c.Pricing.Currencies) == 0 {
		c.Pricing.Currencies = []string{"USD", "EUR", "GBP", "JPY", "AUD", "CAD", "CHF", "INR", "CNY"}
	}
	if c.Pricing.Cache.Driver == "" {
		c.Pricing.Cache.Driver = "memory"
	}
	if c.Pricing.Cache.TTL == 0 {
		c.Pricing.Cache.TTL = Duration(5 * time.Minute)
	}

	if c.Onramp.AppID == "" {
		c.Onramp.AppID = "58a3fa2e-617f-4198-81e7-096f5e498c00"
	}
	if c.Onramp.BaseURL == "" {
		c.Onramp.BaseURL = "https://pay.coinbase.com/buy/select-asset"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Alerting.Timeout == 0 {
		c.Alerting.Timeout = Duration(5 * time.Second)
	}
}

// validate 检查枚举类字段的取值。
func (c *Config) validate() error {
	switch c.Wallet.Driver {
	case "rpc", "keyed":
	default:
		return fmt.Errorf("未知的钱包驱动: %s", c.Wallet.Driver)
	}
	if c.Contract.Address == "" {
		return fmt.Errorf("未配置合约地址，请设置 contract.address 或环境变量 %s", c.Contract.AddressEnv)
	}
	if !common.IsHexAddress(c.Contract.Address) || common.HexToAddress(c.Contract.Address) == (common.Address{}) {
		return fmt.Errorf("合约地址无效: %s", c.Contract.Address)
	}
	switch c.Journal.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return errors.New("mysql 交易日志需要配置 dsn")
		}
	default:
		return fmt.Errorf("未知的交易日志驱动: %s", c.Journal.Driver)
	}
	switch c.Events.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的事件驱动: %s", c.Events.Driver)
	}
	switch c.Pricing.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("未知的汇率缓存驱动: %s", c.Pricing.Cache.Driver)
	}
	return nil
}

// resolvePaths 将相对路径解析为相对于配置文件所在目录。
func (c *Config) resolvePaths(baseDir string) {
	if c.Chain.DefinitionsPath != "" && !filepath.IsAbs(c.Chain.DefinitionsPath) {
		c.Chain.DefinitionsPath = filepath.Join(baseDir, c.Chain.DefinitionsPath)
	}
	if c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}
