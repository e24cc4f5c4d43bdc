// Package pricing 提供 FLOW 与法币之间的汇率获取、缓存与换算。
package pricing

import (
	"fmt"
	"strings"
	"time"

	xerrors "AgentHub-Chain/internal/errors"

	"github.com/shopspring/decimal"
)

// Payment 表示用户选择的支付代币。
type Payment string

const (
	PaymentFLOW Payment = "FLOW"
	PaymentUSDT Payment = "USDT"
)

// DefaultCurrencies 是支持展示的法币列表。
var DefaultCurrencies = []string{"USD", "EUR", "GBP", "JPY", "AUD", "CAD", "CHF", "INR", "CNY"}

// Rates 为一次汇率快照。USDTFiat 以法币代码为键。
type Rates struct {
	FlowUSD   decimal.Decimal            `json:"flow_usd"`
	USDTUSD   decimal.Decimal            `json:"usdt_usd"`
	USDTFiat  map[string]decimal.Decimal `json:"usdt_fiat"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// IsZero 判断快照是否尚未获取。
func (r Rates) IsZero() bool {
	return r.FetchedAt.IsZero()
}

// Convert 将以 FLOW 计价的金额换算为指定支付方式下的法币金额，保留两位小数。
func Convert(rates Rates, amountFlow decimal.Decimal, payment Payment, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	if rates.USDTUSD.IsZero() {
		return decimal.Zero, xerrors.New(xerrors.CodeUpstreamFailure, "汇率尚未就绪")
	}
	factor := decimal.NewFromInt(1)
	if currency != "USD" {
		rate, ok := rates.USDTFiat[currency]
		if !ok || rate.IsZero() {
			return decimal.Zero, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的法币: %s", currency))
		}
		factor = rate.Div(rates.USDTUSD)
	}

	usd := amountFlow.Mul(rates.FlowUSD)
	switch Payment(strings.ToUpper(string(payment))) {
	case PaymentFLOW, "":
		return usd.Mul(factor).Round(2), nil
	case PaymentUSDT:
		return usd.Div(rates.USDTUSD).Mul(factor).Round(2), nil
	default:
		return decimal.Zero, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的支付方式: %s", payment))
	}
}
