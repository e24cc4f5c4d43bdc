package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeAndCause(t *testing.T) {
	cause := stdErrors.New("execution reverted: inactive agent")
	err := Wrap(CodeCallReverted, cause, "getAgent failed", WithMetadata("agent_id", "3"))

	if CodeOf(err) != CodeCallReverted {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through errors.Is")
	}
	if !stdErrors.Is(fmt.Errorf("outer: %w", err), New(CodeCallReverted, "")) {
		t.Fatalf("expected errors.Is to match on code")
	}
	if got := err.Metadata()["agent_id"]; got != "3" {
		t.Fatalf("unexpected metadata: %q", got)
	}
	if err.Error() != "[CALL_REVERTED] getAgent failed: execution reverted: inactive agent" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestAttributesDefaults(t *testing.T) {
	if ShouldAlert(New(CodeUserRejected, "")) {
		t.Fatalf("user rejection must not alert")
	}
	if !ShouldAlert(New(CodeCallReverted, "")) {
		t.Fatalf("call revert should alert by default")
	}
	if ShouldAlert(New(CodeCallReverted, "", WithAlert(false))) {
		t.Fatalf("explicit option must override registry")
	}
	if SeverityOf(stdErrors.New("plain")) != SeverityCritical {
		t.Fatalf("plain errors fall back to UNKNOWN severity")
	}
	if SeverityOf(New(CodeStorageFailure, "")) != SeverityCritical {
		t.Fatalf("unexpected severity")
	}
	if New(CodeNotConnected, "").Message() != "wallet not connected" {
		t.Fatalf("expected registry message fallback")
	}
}

func TestUnregisteredCodeFallsBack(t *testing.T) {
	const code Code = "NOT_A_CODE"
	err := New(code, "")
	if err.Message() != "unknown error" || !ShouldAlert(err) || SeverityOf(err) != SeverityCritical {
		t.Fatalf("unexpected fallback: message=%s severity=%s", err.Message(), SeverityOf(err))
	}
	if CodeOf(err) != code {
		t.Fatalf("code must be kept even when unregistered, got %s", CodeOf(err))
	}
	if MessageOf(fmt.Errorf("ctx: %w", New(CodeUserRejected, "denied"))) != "denied" || MessageOf(stdErrors.New("x")) != "x" {
		t.Fatalf("unexpected MessageOf result")
	}
}
