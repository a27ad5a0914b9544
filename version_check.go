package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
	"golang.org/x/mod/semver"
)

const (
	githubRepo = "oszuidwest/zwfm-vadrecorder"

	releasePollInterval = 24 * time.Hour
	releaseFirstPoll    = 30 * time.Second // keeps startup free of network calls
	releaseRetryDelay   = time.Minute
	releaseMaxAttempts  = 3
	releaseTimeout      = 30 * time.Second
)

// errReleaseRetry marks a release lookup worth repeating before the next poll.
var errReleaseRetry = errors.New("release lookup should be retried")

// VersionChecker polls GitHub for the newest published release of the
// recorder. It is safe for concurrent use.
type VersionChecker struct {
	releaseURL string
	client     *http.Client
	cancel     context.CancelFunc

	mu       sync.RWMutex
	latest   string
	etag     string
	notified string
}

// NewVersionChecker starts polling the GitHub releases API in the background
// until Stop is called.
func NewVersionChecker() *VersionChecker {
	vc := newVersionChecker("https://api.github.com/repos/" + githubRepo + "/releases/latest")
	ctx, cancel := context.WithCancel(context.Background())
	vc.cancel = cancel
	go vc.poll(ctx)
	return vc
}

func newVersionChecker(releaseURL string) *VersionChecker {
	return &VersionChecker{
		releaseURL: releaseURL,
		client:     &http.Client{Timeout: releaseTimeout},
		cancel:     func() {},
	}
}

// Stop ends background polling. It is safe to call more than once.
func (vc *VersionChecker) Stop() {
	vc.cancel()
}

// poll looks up the latest release on a fixed interval. Retryable failures
// are repeated a few times with a short delay before waiting for the next
// interval.
func (vc *VersionChecker) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	timer := time.NewTimer(releaseFirstPoll)
	defer timer.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		attempt++
		err := vc.refresh(ctx)
		switch {
		case errors.Is(err, errReleaseRetry) && attempt < releaseMaxAttempts:
			slog.Debug("release lookup failed, retrying", "attempt", attempt, "error", err)
			timer.Reset(releaseRetryDelay)
			continue
		case err != nil:
			slog.Debug("release lookup failed", "error", err)
		}
		attempt = 0
		timer.Reset(releasePollInterval)
	}
}

// refresh fetches the latest release and stores it. It logs once per release
// that is newer than the running build.
func (vc *VersionChecker) refresh(ctx context.Context) error {
	tag, etag, err := vc.fetchLatest(ctx)
	if err != nil || tag == "" {
		return err
	}

	vc.mu.Lock()
	vc.latest = strings.TrimPrefix(tag, "v")
	if etag != "" {
		vc.etag = etag
	}
	announce := vc.latest != vc.notified && isNewerVersion(vc.latest, Version)
	if announce {
		vc.notified = vc.latest
	}
	vc.mu.Unlock()

	if announce {
		slog.Info("newer recorder release available", "current", Version, "latest", tag)
	}
	return nil
}

type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// fetchLatest returns the tag of the newest stable release and the response
// ETag. An empty tag with a nil error means there is nothing new to record.
func (vc *VersionChecker) fetchLatest(ctx context.Context) (tag, etag string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vc.releaseURL, http.NoBody)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "zwfm-vadrecorder/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := vc.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errReleaseRetry, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotModified, resp.StatusCode == http.StatusNotFound:
		// Unchanged, or nothing released yet.
		return "", "", nil
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return "", "", fmt.Errorf("%w: status %d", errReleaseRetry, resp.StatusCode)
	default:
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", "", fmt.Errorf("%w: decode release: %w", errReleaseRetry, err)
	}
	if release.Draft || release.Prerelease {
		return "", "", nil
	}
	if release.TagName == "" {
		return "", "", fmt.Errorf("%w: release without tag", errReleaseRetry)
	}
	return release.TagName, resp.Header.Get("ETag"), nil
}

// Info returns the build version and the latest known release. A nil checker
// reports the build only.
func (vc *VersionChecker) Info() types.VersionInfo {
	info := types.VersionInfo{
		Current:   strings.TrimPrefix(strings.TrimSpace(Version), "v"),
		Commit:    Commit,
		BuildTime: BuildTime,
	}
	if vc == nil {
		return info
	}

	vc.mu.RLock()
	info.Latest = vc.latest
	vc.mu.RUnlock()
	info.UpdateAvail = isNewerVersion(info.Latest, info.Current)
	return info
}

// semverOf returns v in canonical semver form, or "" if v is not a release
// version such as "dev".
func semverOf(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

// isNewerVersion reports whether latest is a newer release than current.
// Builds without a release version never report an update.
func isNewerVersion(latest, current string) bool {
	l, c := semverOf(latest), semverOf(current)
	if l == "" || c == "" {
		return false
	}
	return semver.Compare(l, c) > 0
}
