package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/agents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("/agents/{id}", http.MethodGet, "418"))
	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agents/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("/agents/{id}", http.MethodGet, "418"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests recorded under the pattern, got %v", after-before)
	}
}

func TestServerErrorsCounted(t *testing.T) {
	before := testutil.ToFloat64(httpErrors.WithLabelValues("/boom", http.MethodPost))
	ObserveHTTPRequest("/boom", http.MethodPost, 503, 0)
	ObserveHTTPRequest("/boom", http.MethodPost, 200, 0)
	if got := testutil.ToFloat64(httpErrors.WithLabelValues("/boom", http.MethodPost)) - before; got != 1 {
		t.Fatalf("expected one server error, got %v", got)
	}
}

func TestSessionCollectors(t *testing.T) {
	SetSessionState(true, true)
	if testutil.ToFloat64(sessionConnected) != 1 || testutil.ToFloat64(sessionWrongNetwork) != 1 {
		t.Fatalf("gauges not set")
	}
	SetSessionState(false, false)
	if testutil.ToFloat64(sessionConnected) != 0 {
		t.Fatalf("connected gauge not cleared")
	}

	before := testutil.ToFloat64(priceFetches.WithLabelValues("error"))
	ObservePriceFetch(errors.New("timeout"))
	if testutil.ToFloat64(priceFetches.WithLabelValues("error"))-before != 1 {
		t.Fatalf("price fetch error not counted")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveNotification("success")
	ObserveTransaction("purchaseSubscription", "confirmed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"agenthub_session_notifications_total", "agenthub_session_transactions_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metric %s missing from exposition", name)
		}
	}
}
