package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v1.2.0", "1.2.0", false},
		{"1.10.0", "1.9.0", true},
		{"1.0.0", "1.0.1", false},
		{"1.2.0", "dev", false},
		{"", "1.0.0", false},
	}
	for _, tt := range tests {
		if got := isNewerVersion(tt.latest, tt.current); got != tt.want {
			t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
}

func TestVersionCheckUsesETag(t *testing.T) {
	var gotETag string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		if gotETag == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte(`{"tag_name": "v2.1.0", "draft": false, "prerelease": false}`))
	}))
	defer srv.Close()

	vc := newVersionChecker(srv.URL)
	if err := vc.refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if got := vc.Info().Latest; got != "2.1.0" {
		t.Errorf("latest = %q, want 2.1.0", got)
	}

	if err := vc.refresh(context.Background()); err != nil {
		t.Fatalf("conditional refresh: %v", err)
	}
	if gotETag != `"abc"` {
		t.Errorf("If-None-Match = %q", gotETag)
	}
	if got := vc.Info().Latest; got != "2.1.0" {
		t.Errorf("latest after 304 = %q, want 2.1.0", got)
	}
}

func TestVersionInfoReportsUpdate(t *testing.T) {
	old := Version
	Version = "1.0.0"
	t.Cleanup(func() { Version = old })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name": "v1.1.0"}`))
	}))
	defer srv.Close()

	vc := newVersionChecker(srv.URL)
	if err := vc.refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	info := vc.Info()
	if !info.UpdateAvail || info.Current != "1.0.0" || info.Latest != "1.1.0" {
		t.Errorf("info = %+v, want update from 1.0.0 to 1.1.0", info)
	}
	if vc.notified != "1.1.0" {
		t.Errorf("notified = %q, want 1.1.0", vc.notified)
	}

	var nilChecker *VersionChecker
	if info := nilChecker.Info(); info.UpdateAvail || info.Latest != "" {
		t.Errorf("nil checker info = %+v", info)
	}
}

func TestVersionCheckSkipsPrerelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name": "v3.0.0-rc1", "prerelease": true}`))
	}))
	defer srv.Close()

	vc := newVersionChecker(srv.URL)
	if err := vc.refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := vc.Info().Latest; got != "" {
		t.Errorf("latest = %q, want empty", got)
	}
}

func TestVersionCheckRetryableStatus(t *testing.T) {
	tests := []struct {
		status int
		retry  bool
	}{
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusForbidden, true},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		_, _, err := newVersionChecker(srv.URL).fetchLatest(context.Background())
		srv.Close()
		if err == nil {
			t.Errorf("status %d: no error", tt.status)
			continue
		}
		if got := errors.Is(err, errReleaseRetry); got != tt.retry {
			t.Errorf("status %d: retry = %v, want %v", tt.status, got, tt.retry)
		}
	}
}

func TestVersionCheckerStopIsIdempotent(t *testing.T) {
	vc := NewVersionChecker()
	vc.Stop()
	vc.Stop()
}
