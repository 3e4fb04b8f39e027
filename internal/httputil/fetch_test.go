package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("Range") != "bytes=0-3" {
			t.Errorf("Range header = %q", r.Header.Get("Range"))
		}
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("GRIB"))
	}))
	defer srv.Close()

	f := NewFetcher("test", 0, 5)
	f.InitialInterval = time.Millisecond
	resp, err := f.Get(context.Background(), srv.URL, http.Header{"Range": {"bytes=0-3"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body) != "GRIB" || resp.StatusCode != http.StatusPartialContent {
		t.Errorf("resp = %d %q", resp.StatusCode, resp.Body)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestFetcher_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad api key", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher("test", 0, 5)
	f.InitialInterval = time.Millisecond
	_, err := f.Get(context.Background(), srv.URL, nil)
	if !IsStatus(err, http.StatusForbidden) {
		t.Fatalf("err = %v, want 403 StatusError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetcher_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewFetcher("test", 0, 3)
	f.InitialInterval = time.Millisecond
	if _, err := f.Get(context.Background(), srv.URL, nil); !IsStatus(err, http.StatusTooManyRequests) {
		t.Fatalf("err = %v, want 429", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		if got := Retryable(tt.status); got != tt.want {
			t.Errorf("Retryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
