package onramp

import (
	"net/url"
	"strings"
	"testing"

	xerrors "AgentHub-Chain/internal/errors"

	"github.com/shopspring/decimal"
)

const addr = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"

func TestGenerateURLRequiredParams(t *testing.T) {
	link, err := New(Config{}).GenerateURL(Params{Address: addr})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(link, DefaultBaseURL+"?appId="+DefaultAppID+"&addresses=") {
		t.Fatalf("unexpected prefix %s", link)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := parsed.Query()
	if q.Get("addresses") != `{"`+addr+`":["FLOW"]}` {
		t.Fatalf("unexpected addresses %s", q.Get("addresses"))
	}
	if q.Get("assets") != `["FLOW","USDC"]` {
		t.Fatalf("unexpected assets %s", q.Get("assets"))
	}
	if q.Has("presetCryptoAmount") || q.Has("redirectUrl") {
		t.Fatalf("optional params must be omitted: %s", link)
	}
}

func TestGenerateURLOptionalParams(t *testing.T) {
	g := New(Config{AppID: "app", BaseURL: "https://example.test/buy"})
	link, err := g.GenerateURL(Params{
		Address:            addr,
		PresetCryptoAmount: decimal.RequireFromString("12.5"),
		RedirectURL:        "https://agenthub.example/agents?tab=mine",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, _ := url.Parse(link)
	q := parsed.Query()
	if q.Get("appId") != "app" || q.Get("presetCryptoAmount") != "12.5" || q.Get("redirectUrl") != "https://agenthub.example/agents?tab=mine" {
		t.Fatalf("unexpected query %v", q)
	}
	if !strings.HasSuffix(link, "&redirectUrl="+url.QueryEscape("https://agenthub.example/agents?tab=mine")) {
		t.Fatalf("redirectUrl must be the last parameter: %s", link)
	}
}

func TestGenerateURLRejectsBadAddress(t *testing.T) {
	_, err := New(Config{}).GenerateURL(Params{Address: "not-an-address"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
