package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "Test Agent" {
			t.Errorf("Expected User-Agent 'Test Agent', got '%s'", r.Header.Get("User-Agent"))
		}
		if r.URL.Query().Get("q") != "weather" {
			t.Errorf("Expected query q=weather, got '%s'", r.URL.RawQuery)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), Options{Name: "test", UserAgent: "Test Agent"})
	resp, err := f.Get(context.Background(), server.URL+"/api", url.Values{"q": {"weather"}})
	if err != nil {
		t.Fatal(err)
	}

	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Unexpected body: %s", resp.Body)
	}
	if resp.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", resp.Attempts)
	}
	if resp.Latency <= 0 {
		t.Error("Expected positive latency")
	}
}

func TestGetRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), Options{Name: "test", BackoffUnit: time.Millisecond})
	resp, err := f.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	if resp.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", resp.Attempts)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestGetFailsAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), Options{Name: "test", MaxRetries: 2, BackoffUnit: time.Millisecond})
	_, err := f.Get(context.Background(), server.URL+"?Authorization=secret", nil)
	if err == nil {
		t.Fatal("Expected error")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %T", err)
	}
	if fetchErr.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", fetchErr.Attempts)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
	if !strings.Contains(fetchErr.Error(), "500") {
		t.Errorf("Expected status in error, got %v", fetchErr)
	}
	if strings.Contains(fetchErr.Error(), "secret") {
		t.Errorf("Expected credentials to be redacted, got %v", fetchErr)
	}
}

func TestGetEnforcesDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	delay := 100 * time.Millisecond
	f := NewFetcher(server.Client(), Options{Name: "test", Delay: delay})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := f.Get(context.Background(), server.URL, nil); err != nil {
			t.Fatal(err)
		}
	}

	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("Expected at least %v between three calls, got %v", 2*delay, elapsed)
	}
}

func TestGetCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := NewFetcher(server.Client(), Options{Name: "test", BackoffUnit: time.Second})
	start := time.Now()
	_, err := f.Get(ctx, server.URL, nil)
	if err == nil {
		t.Fatal("Expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected cancellation to interrupt the backoff")
	}
}

func TestRedact(t *testing.T) {
	got := redact("https://example.com/data?Authorization=abc&format=JSON")
	if strings.Contains(got, "abc") {
		t.Errorf("Expected key to be redacted, got %s", got)
	}
	if !strings.Contains(got, "format=JSON") {
		t.Errorf("Expected other params to be kept, got %s", got)
	}
}
