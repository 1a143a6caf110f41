package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agleyzer/dashfetch/internal/artifact"
	"github.com/agleyzer/dashfetch/internal/failure"
	"github.com/agleyzer/dashfetch/internal/governor"
	"github.com/agleyzer/dashfetch/internal/metrics"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newTestFetcher(t *testing.T, maxNet int) (*Fetcher, artifact.Layout) {
	t.Helper()
	layout := artifact.NewLayout(t.TempDir())
	return New(nil, governor.New(maxNet, 1), layout, metrics.New(), 5*time.Second, createTestLogger()), layout
}

func TestFetchSegment_WritesFinalizedFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "payload for %s", r.URL.Path)
	}))
	defer server.Close()

	f, layout := newTestFetcher(t, 2)

	if err := f.FetchSegment(context.Background(), server.URL+"/seg-1.m4s", "clip.m4v", 0, 1); err != nil {
		t.Fatalf("FetchSegment: %v", err)
	}

	art := layout.Segment("clip.m4v", 0)
	data, err := os.ReadFile(art.Final)
	if err != nil {
		t.Fatalf("read finalized segment: %v", err)
	}
	if string(data) != "payload for /seg-1.m4s" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(art.Pending); !os.IsNotExist(err) {
		t.Error("pending file left behind after success")
	}
}

func TestFetchSegment_SkipsFinalized(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	f, layout := newTestFetcher(t, 2)
	art := layout.Segment("clip.m4v", 2)
	if err := os.MkdirAll(filepath.Dir(art.Final), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(art.Final, []byte("already here"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := f.FetchSegment(context.Background(), server.URL+"/x", "clip.m4v", 2, 3); err != nil {
		t.Fatalf("FetchSegment: %v", err)
	}

	if hits.Load() != 0 {
		t.Errorf("server hit %d times, want 0", hits.Load())
	}
	data, _ := os.ReadFile(art.Final)
	if string(data) != "already here" {
		t.Errorf("finalized file was rewritten: %q", data)
	}
}

func TestFetchSegment_ReplacesStalePending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("complete"))
	}))
	defer server.Close()

	f, layout := newTestFetcher(t, 2)
	art := layout.Segment("clip.m4a", 0)
	if err := os.MkdirAll(filepath.Dir(art.Pending), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(art.Pending, []byte("comp"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := f.FetchSegment(context.Background(), server.URL, "clip.m4a", 0, 1); err != nil {
		t.Fatalf("FetchSegment: %v", err)
	}

	data, _ := os.ReadFile(art.Final)
	if string(data) != "complete" {
		t.Errorf("content = %q, want %q", data, "complete")
	}
}

func TestFetchSegment_HTTPErrorLeavesPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f, layout := newTestFetcher(t, 2)

	err := f.FetchSegment(context.Background(), server.URL+"/missing.m4s", "clip.m4v", 4, 9)
	if !errors.Is(err, failure.ErrFetch) {
		t.Fatalf("error = %v, want fetch failure", err)
	}

	var fe *failure.Error
	if !errors.As(err, &fe) {
		t.Fatal("expected *failure.Error")
	}
	if fe.Index != 4 || fe.URL != server.URL+"/missing.m4s" {
		t.Errorf("failure context = index %d url %q", fe.Index, fe.URL)
	}

	art := layout.Segment("clip.m4v", 4)
	if art.Finalized() {
		t.Error("failed segment was finalized")
	}
	if st, _ := art.State(); st != artifact.Pending {
		t.Errorf("State = %v, want pending left for diagnosis", st)
	}
}

func TestFetchSegment_NetworkErrorIsFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f, _ := newTestFetcher(t, 1)

	if err := f.FetchSegment(context.Background(), url, "clip.m4v", 0, 1); !errors.Is(err, failure.ErrFetch) {
		t.Errorf("error = %v, want fetch failure", err)
	}
}

func TestFetchSegment_BoundedByNetworkPermit(t *testing.T) {
	var active, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("x"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, 3)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.FetchSegment(context.Background(), server.URL, "clip.m4v", i, 10); err != nil {
				t.Errorf("FetchSegment(%d): %v", i, err)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrent fetches = %d, want <= 3", got)
	}
	if got := f.gov.InUse(governor.Network); got != 0 {
		t.Errorf("network permits still held: %d", got)
	}
}

func TestFetchSegment_CancelledLeavesOnlyPending(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f, layout := newTestFetcher(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := f.FetchSegment(ctx, server.URL, "clip.m4v", 0, 1)
	if !errors.Is(err, failure.ErrFetch) {
		t.Fatalf("error = %v, want fetch failure", err)
	}

	if layout.Segment("clip.m4v", 0).Finalized() {
		t.Error("cancelled fetch produced a finalized segment")
	}
	if got := f.gov.InUse(governor.Network); got != 0 {
		t.Errorf("network permit leaked: %d", got)
	}
}
