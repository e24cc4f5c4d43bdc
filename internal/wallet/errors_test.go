package wallet

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsUserRejected(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"code 4001", NewError(CodeUserRejected, "User rejected the request."), true},
		{"wrapped", fmt.Errorf("connect: %w", NewError(CodeUserRejected, "denied")), true},
		{"action rejected data", &Error{Code: -32603, Message: "user cancelled", Data: "ACTION_REJECTED"}, true},
		{"action rejected text", errors.New("ethers: ACTION_REJECTED"), true},
		{"other provider error", NewError(CodeUnrecognizedChain, "unknown"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsUserRejected(tc.err); got != tc.want {
			t.Fatalf("%s: IsUserRejected = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsUnrecognizedChain(t *testing.T) {
	if !IsUnrecognizedChain(fmt.Errorf("switch: %w", NewError(CodeUnrecognizedChain, "Unrecognized chain ID"))) {
		t.Fatalf("expected 4902 to be detected")
	}
	if IsUnrecognizedChain(NewError(CodeUserRejected, "no")) {
		t.Fatalf("4001 must not be treated as unknown chain")
	}
	if IsUnrecognizedChain(errors.New("4902")) {
		t.Fatalf("plain errors carry no provider code")
	}
}
