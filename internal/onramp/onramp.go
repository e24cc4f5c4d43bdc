// Package onramp 生成 Coinbase 法币入金链接。
package onramp

import (
	"encoding/json"
	"net/url"
	"strings"

	xerrors "AgentHub-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	DefaultAppID   = "58a3fa2e-617f-4198-81e7-096f5e498c00"
	DefaultBaseURL = "https://pay.coinbase.com/buy/select-asset"
)

// 入金页面中可选的资产，收款地址只接收 FLOW。
var (
	depositAssets = []string{"FLOW"}
	offeredAssets = []string{"FLOW", "USDC"}
)

// Config 为入金链接的固定参数。
type Config struct {
	AppID   string
	BaseURL string
}

// Params 描述一次入金请求。
type Params struct {
	Address            string
	PresetCryptoAmount decimal.Decimal
	RedirectURL        string
}

// Generator 根据配置拼装入金链接。
type Generator struct {
	appID   string
	baseURL string
}

// New 创建 Generator，未配置的字段使用默认值。
func New(cfg Config) *Generator {
	g := &Generator{appID: strings.TrimSpace(cfg.AppID), baseURL: strings.TrimSpace(cfg.BaseURL)}
	if g.appID == "" {
		g.appID = DefaultAppID
	}
	if g.baseURL == "" {
		g.baseURL = DefaultBaseURL
	}
	return g
}

// GenerateURL 返回入金链接，零值的预设金额与空的回跳地址不会出现在参数中。
func (g *Generator) GenerateURL(p Params) (string, error) {
	address := strings.TrimSpace(p.Address)
	if !common.IsHexAddress(address) {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "收款地址无效", xerrors.WithMetadata("address", address))
	}
	addresses, err := json.Marshal(map[string][]string{address: depositAssets})
	if err != nil {
		return "", err
	}
	assets, err := json.Marshal(offeredAssets)
	if err != nil {
		return "", err
	}

	// url.Values.Encode 会按键排序，这里保持固定的参数顺序。
	query := []string{
		"appId=" + url.QueryEscape(g.appID),
		"addresses=" + url.QueryEscape(string(addresses)),
		"assets=" + url.QueryEscape(string(assets)),
	}
	if p.PresetCryptoAmount.IsPositive() {
		query = append(query, "presetCryptoAmount="+url.QueryEscape(p.PresetCryptoAmount.String()))
	}
	if redirect := strings.TrimSpace(p.RedirectURL); redirect != "" {
		query = append(query, "redirectUrl="+url.QueryEscape(redirect))
	}
	return g.baseURL + "?" + strings.Join(query, "&"), nil
}
