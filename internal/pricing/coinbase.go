package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	xerrors "AgentHub-Chain/internal/errors"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBaseURL = "https://api.coinbase.com"
	defaultTimeout = 10 * time.Second
)

// ClientConfig 描述 Coinbase 行情接口的访问参数。
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Currencies []string
}

// Client 通过 Coinbase 公共现货价格接口获取汇率。
type Client struct {
	baseURL    string
	currencies []string
	httpClient *http.Client
}

// NewClient 根据配置创建行情客户端。
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	currencies := cfg.Currencies
	if len(currencies) == 0 {
		currencies = DefaultCurrencies
	}
	normalized := make([]string, 0, len(currencies))
	for _, c := range currencies {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			normalized = append(normalized, c)
		}
	}
	return &Client{
		baseURL:    baseURL,
		currencies: normalized,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch 并发获取 FLOW-USD 以及 USDT 对各法币的现货价格。
func (c *Client) Fetch(ctx context.Context) (Rates, error) {
	rates := Rates{
		USDTUSD:  decimal.NewFromInt(1),
		USDTFiat: make(map[string]decimal.Decimal, len(c.currencies)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		amount, err := c.spot(gctx, "FLOW-USD")
		if err != nil {
			return err
		}
		mu.Lock()
		rates.FlowUSD = amount
		mu.Unlock()
		return nil
	})
	for _, currency := range c.currencies {
		g.Go(func() error {
			amount, err := c.spot(gctx, "USDT-"+currency)
			if err != nil {
				return err
			}
			mu.Lock()
			rates.USDTFiat[currency] = amount
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Rates{}, err
	}
	if usd, ok := rates.USDTFiat["USD"]; ok && !usd.IsZero() {
		rates.USDTUSD = usd
	}
	rates.FetchedAt = time.Now().UTC()
	return rates, nil
}

func (c *Client) spot(ctx context.Context, pair string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v2/prices/%s/spot", c.baseURL, pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("构建行情请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "请求 Coinbase 失败", xerrors.WithMetadata("pair", pair))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return decimal.Zero, xerrors.New(xerrors.CodeUpstreamFailure,
			fmt.Sprintf("Coinbase 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			xerrors.WithMetadata("pair", pair))
	}

	var decoded struct {
		Data struct {
			Amount   decimal.Decimal `json:"amount"`
			Base     string          `json:"base"`
			Currency string          `json:"currency"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return decimal.Zero, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 Coinbase 响应失败", xerrors.WithMetadata("pair", pair))
	}
	return decoded.Data.Amount, nil
}
