package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestGitHubClient(serverURL string) *GitHubClient {
	c := NewGitHubClient(serverURL, "tum-esm/em27-metadata-storage", "", "secret")
	c.initialInterval = time.Millisecond
	c.maxElapsedTime = time.Second
	return c
}

func TestGitHubClient_FetchDocument(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(testLocationsJSON))
	}))
	defer srv.Close()

	c := newTestGitHubClient(srv.URL)
	data, err := c.FetchDocument(context.Background(), DocLocations)
	if err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	if string(data) != testLocationsJSON {
		t.Errorf("FetchDocument() = %q", data)
	}
	if gotPath != "/tum-esm/em27-metadata-storage/main/data/locations.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "token secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "token secret")
	}
	if c.Name() != "github:tum-esm/em27-metadata-storage@main" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestGitHubClient_NoTokenNoAuthHeader(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestGitHubClient(srv.URL)
	c.accessToken = ""
	if _, err := c.FetchDocument(context.Background(), DocCampaigns); err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	if sawAuth.Load() {
		t.Error("Authorization header sent without a token")
	}
}

func TestGitHubClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	data, err := newTestGitHubClient(srv.URL).FetchDocument(context.Background(), DocSensors)
	if err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("FetchDocument() = %q, want []", data)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestGitHubClient_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "404: Not Found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestGitHubClient(srv.URL).FetchDocument(context.Background(), DocSensors)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "status 404") || !strings.Contains(err.Error(), "Not Found") {
		t.Errorf("error = %q", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGitHubClient_RejectsMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "a list"}`))
	}))
	defer srv.Close()

	_, err := newTestGitHubClient(srv.URL).FetchDocument(context.Background(), DocLocations)
	if err == nil || !strings.Contains(err.Error(), ErrNotList.Error()) {
		t.Errorf("FetchDocument() error = %v, want %v", err, ErrNotList)
	}
}

func TestGitHubClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestGitHubClient(srv.URL)
	c.maxElapsedTime = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := c.FetchDocument(ctx, DocLocations); err == nil {
		t.Fatal("expected error after context deadline")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("FetchDocument took %s after the context expired", elapsed)
	}
}

func TestGitHubClient_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := NewGitHubClient(RawGitHubURL, "tum-esm/em27-metadata", "main", "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := client.FetchDocument(ctx, DocLocations)
	if err != nil {
		t.Skipf("live repository unavailable: %v", err)
	}
	t.Logf("Fetched %d bytes of locations from %s", len(data), client.Name())
}

func TestTruncateBody(t *testing.T) {
	t.Run("short string unchanged", func(t *testing.T) {
		input := "hello world"
		got := truncateBody([]byte(input))
		if got != input {
			t.Errorf("truncateBody() = %q, want %q", got, input)
		}
	})

	t.Run("exactly 512 chars unchanged", func(t *testing.T) {
		input := strings.Repeat("a", 512)
		got := truncateBody([]byte(input))
		if got != input {
			t.Errorf("truncateBody() len = %d, want 512", len(got))
		}
	})

	t.Run("over 512 chars truncated", func(t *testing.T) {
		got := truncateBody([]byte(strings.Repeat("x", 600)))
		suffix := "...(truncated)"
		if !strings.HasPrefix(got, strings.Repeat("x", 512)) || !strings.HasSuffix(got, suffix) {
			t.Errorf("truncateBody() = %q", got)
		}
		if len(got) != 512+len(suffix) {
			t.Errorf("truncateBody() len = %d, want %d", len(got), 512+len(suffix))
		}
	})
}
