package reader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func fastConfig() ClientConfig {
	return ClientConfig{
		MaxRetries:     2,
		RetryDelayBase: time.Millisecond,
		TokenBudget:    100000,
	}
}

func TestFetch_JSONEnvelope(t *testing.T) {
	var gotAuth, gotBudget string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBudget = r.URL.Query().Get("token_budget")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"content": "# Markets\n\nWill BTC hit 100k?", "title": "Markets"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second, fastConfig())
	doc, err := client.Fetch(context.Background(), "https://example.com/markets")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !strings.Contains(doc.SourceText, "Will BTC hit 100k?") {
		t.Errorf("unexpected content: %q", doc.SourceText)
	}
	if doc.FetchedAt.IsZero() {
		t.Error("expected FetchedAt to be set")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotBudget != "100000" {
		t.Errorf("expected token_budget 100000, got %q", gotBudget)
	}
}

func TestFetch_PlainTextBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# Markets\n\nplain markdown body"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, fastConfig())
	doc, err := client.Fetch(context.Background(), "https://example.com/markets")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(doc.SourceText, "plain markdown body") {
		t.Errorf("unexpected content: %q", doc.SourceText)
	}
}

func TestFetch_StripsURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"content": "[Fed cut](https://example.com/fed) more at https://example.com/all"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, fastConfig())
	doc, err := client.Fetch(context.Background(), "https://example.com/markets")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if strings.Contains(doc.SourceText, "https://") {
		t.Errorf("expected URLs stripped, got %q", doc.SourceText)
	}
	if !strings.Contains(doc.SourceText, "[Fed cut]") {
		t.Errorf("expected link text kept, got %q", doc.SourceText)
	}
}

func TestFetch_RetriesServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data": {"content": "recovered"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, fastConfig())
	doc, err := client.Fetch(context.Background(), "https://example.com/markets")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.SourceText != "recovered" {
		t.Errorf("unexpected content: %q", doc.SourceText)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestFetch_SourceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, fastConfig())
	_, err := client.Fetch(context.Background(), "https://example.com/markets")
	if err == nil {
		t.Fatal("expected error")
	}

	var sue *SourceUnavailableError
	if !errors.As(err, &sue) {
		t.Fatalf("expected SourceUnavailableError, got %T", err)
	}
	if sue.URL != "https://example.com/markets" {
		t.Errorf("unexpected URL in error: %q", sue.URL)
	}
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-key", 5*time.Second, fastConfig())
	_, err := client.Fetch(context.Background(), "https://example.com/markets")
	if err == nil {
		t.Fatal("expected error")
	}
	// One call per token budget, no within-budget retries on 4xx.
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestFetch_NoDelayAfterLastBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	// 4xx fails each budget on its first attempt, so the only sleeps are the
	// two between budgets. Sleeping after the third budget too would push the
	// elapsed time to three full delays.
	cfg := fastConfig()
	cfg.RetryDelayBase = 250 * time.Millisecond
	client := NewClient(server.URL, "", 5*time.Second, cfg)

	start := time.Now()
	_, err := client.Fetch(context.Background(), "https://example.com/markets")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error")
	}
	if elapsed >= 3*cfg.RetryDelayBase {
		t.Errorf("Fetch took %v, should return without a final delay", elapsed)
	}
}

func TestStripURLs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "markdown link",
			in:   "[title](https://example.com/page)",
			want: "[title]",
		},
		{
			name: "bare url",
			in:   "see https://example.com/page for details",
			want: "see  for details",
		},
		{
			name: "no urls",
			in:   "plain text (parenthetical) stays",
			want: "plain text (parenthetical) stays",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripURLs(tt.in); got != tt.want {
				t.Errorf("StripURLs(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
