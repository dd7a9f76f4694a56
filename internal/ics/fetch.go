// Package ics imports external iCalendar feeds as read-only tasks: fetch
// with HTTP caching, parse with golang-ical, expand recurrences with
// rrule-go and upsert the resulting day slices into the task store.
package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"dayplan/internal/fsutil"
	appLog "dayplan/internal/log"
)

// maxBodyBytes bounds a single feed download.
const maxBodyBytes = 16 << 20

// Calendar is one subscribed feed.
type Calendar struct {
	ID   string
	Name string
	URL  string
}

// cacheMeta is the validator state stored next to a cached body.
type cacheMeta struct {
	URL          string    `yaml:"url"`
	ETag         string    `yaml:"etag,omitempty"`
	LastModified string    `yaml:"last_modified,omitempty"`
	FetchedAt    time.Time `yaml:"fetched_at"`
}

// Fetcher downloads feeds with conditional requests and keeps the last good
// body on disk, so a flaky or unchanged feed still yields data.
type Fetcher struct {
	HTTP     *http.Client
	CacheDir string
}

// NewFetcher returns a Fetcher caching under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "dayplan-ics-cache")
	}
	return &Fetcher{
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		CacheDir: cacheDir,
	}
}

// Fetch returns the feed body. fromCache is true when the cached copy was
// used, either because the server answered 304 or because the request
// failed and a cached copy exists.
func (f *Fetcher) Fetch(ctx context.Context, cal Calendar) (body []byte, fromCache bool, err error) {
	if cal.URL == "" {
		return nil, false, errors.New("ics: calendar URL is empty")
	}
	dir := f.cacheDir(cal.URL)
	meta := f.loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	fallback := func(cause error) ([]byte, bool, error) {
		if len(cached) == 0 {
			return nil, false, cause
		}
		appLog.Warn("ics fetch failed; using cached body",
			"id", cal.ID, "url", redactURL(cal.URL), "err", cause.Error())
		return cached, true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cal.URL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("ics: build request: %w", err)
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", cal.ID, "url", redactURL(cal.URL))
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fallback(err)
		}
		next := cacheMeta{
			URL:          cal.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now().UTC(),
		}
		if err := f.store(dir, next, data); err != nil {
			appLog.Error("ics cache save failed", err, "id", cal.ID, "url", redactURL(cal.URL))
		}
		appLog.Info("ics fetch success", "id", cal.ID, "url", redactURL(cal.URL), "bytes", len(data))
		return data, false, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, false, errors.New("ics: 304 Not Modified without a cached body")
		}
		appLog.Debug("ics feed not modified", "id", cal.ID, "url", redactURL(cal.URL))
		return cached, true, nil

	default:
		return fallback(fmt.Errorf("ics: unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) cacheDir(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.CacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadMeta(dir string) cacheMeta {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.yaml"))
	if err != nil {
		return meta
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}
	}
	return meta
}

// store writes the body before the metadata so validators never describe
// a body that is not on disk.
func (f *Fetcher) store(dir string, meta cacheMeta, body []byte) error {
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, "body.ics"), body); err != nil {
		return err
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(dir, "meta.yaml"), data)
}

// redactURL keeps scheme and host only; feed URLs usually embed a secret.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
