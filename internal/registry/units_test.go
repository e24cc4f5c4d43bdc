package registry

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToWei(t *testing.T) {
	wei, err := ToWei(decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("to wei: %v", err)
	}
	expected, _ := new(big.Int).SetString("10000000000000000000", 10)
	if wei.Cmp(expected) != 0 {
		t.Fatalf("unexpected wei %s", wei)
	}
	if _, err := ToWei(decimal.RequireFromString("-1")); err == nil {
		t.Fatalf("expected negative amount error")
	}
	if _, err := ToWei(decimal.RequireFromString("0.0000000000000000001")); err == nil {
		t.Fatalf("expected precision error")
	}
	if got := FromWei(expected).String(); got != "10" {
		t.Fatalf("unexpected round trip %s", got)
	}
}
