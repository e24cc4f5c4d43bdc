package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "AgentHub-Chain/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDispatchesToAllChannels(t *testing.T) {
	a := &recordingNotifier{channel: "a"}
	b := &recordingNotifier{channel: "b", err: errors.New("down")}
	d := NewFanout(a, b, nil)

	event := FromError("purchaseSubscription", "0xabc", xerrors.New(xerrors.CodeCallReverted, "execution reverted", xerrors.WithMetadata("agent_id", "2")))
	err := d.Notify(context.Background(), event)
	if err == nil || !strings.Contains(err.Error(), "channel b") {
		t.Fatalf("expected joined channel error, got %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both notifiers to receive the event")
	}
	if a.events[0].Code != xerrors.CodeCallReverted || a.events[0].Metadata["agent_id"] != "2" {
		t.Fatalf("unexpected event %+v", a.events[0])
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Client: srv.Client()}
	event := Event{Code: xerrors.CodeCallReverted, Severity: xerrors.SeverityWarning, Operation: "upvoteFeatureRequest", Message: "already upvoted"}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Event.Operation != "upvoteFeatureRequest" || !strings.Contains(got.Text, "already upvoted") {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	n := &WebhookNotifier{URL: srv.URL}
	if err := n.Notify(context.Background(), Event{}); err == nil {
		t.Fatalf("expected status error")
	}
	if err := (&WebhookNotifier{}).Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("unconfigured webhook should be skipped, got %v", err)
	}
}

func TestLogNotifierWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	_ = n.Notify(context.Background(), Event{Code: xerrors.CodeCallReverted, Message: "boom", Metadata: map[string]string{"tx": "0x1"}})
	if !strings.Contains(buf.String(), `"meta.tx":"0x1"`) || !strings.Contains(buf.String(), `"code":"CALL_REVERTED"`) {
		t.Fatalf("unexpected log output %s", buf.String())
	}
}
