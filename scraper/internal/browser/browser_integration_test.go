package browser

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// chromeManager needs a local Chrome; set BROWSER_BIN to run these tests.
func chromeManager(t *testing.T) *Manager {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	bin := os.Getenv("BROWSER_BIN")
	if bin == "" {
		t.Skip("BROWSER_BIN not set")
	}
	m := NewManager(Config{Bin: bin})
	t.Cleanup(func() { m.Close() })
	return m
}

func TestFetchHTML_Integration(t *testing.T) {
	m := chromeManager(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `<html><body><div class="news-item"><h3>Voter list published</h3></div></body></html>`)
	}))
	defer srv.Close()

	ctx := context.Background()
	for range 2 {
		html, err := m.FetchHTML(ctx, srv.URL, FetchOptions{Timeout: 10 * time.Second, WaitTimeout: 5 * time.Second})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(html, "Voter list published") {
			t.Fatalf("html = %q", html)
		}
	}
}

func TestFetchHTML_NavigationTimeout(t *testing.T) {
	// WHAT: a server that never answers fails the fetch at opts.Timeout.
	// WHY: the parent context has no deadline; only the per-step one applies.
	m := chromeManager(t)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := m.FetchHTML(context.Background(), srv.URL, FetchOptions{Timeout: time.Second, WaitTimeout: time.Second})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if d := time.Since(start); d > 15*time.Second {
		t.Fatalf("fetch took %v", d)
	}
}
