package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"options-flow-scanner/internal/flow"
	"options-flow-scanner/internal/trend"
)

func sampleDigest() Digest {
	return Digest{
		Date: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Repeated: []flow.AggregateGroup{{
			Key:         flow.GroupKey{Ticker: "GLD", Expiry: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), Strike: "380", Type: flow.Call},
			HitCount:    25,
			TotalDollar: decimal.NewFromInt(51_250_000),
		}},
		Trend: []trend.Status{{Ticker: "NVDA", Readings: []trend.Reading{
			{Timeframe: "1d", Available: true, Above: true},
			{Timeframe: "1wk", Available: true},
		}}},
		Sentiment: map[flow.Sentiment]decimal.Decimal{flow.Bullish: decimal.NewFromInt(1_500_000)},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("path should target sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleDigest()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "GLD 02/20 380 CALL x25 $51,250,000") {
		t.Fatalf("text should list the repeated flow, got %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleDigest()); err == nil {
		t.Fatal("ok=false should fail")
	}
}

func TestRenderDigest(t *testing.T) {
	text := RenderDigest(sampleDigest())
	for _, want := range []string{
		"[Options Flow] 2026-02-01",
		"Bullish $1,500,000 / Bearish $0",
		"NVDA 1/2 bullish",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("digest missing %q:\n%s", want, text)
		}
	}

	empty := RenderDigest(Digest{Date: time.Now()})
	if !strings.Contains(empty, "none") {
		t.Fatalf("empty digest should say none:\n%s", empty)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
