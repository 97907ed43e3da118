package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is used when the response states no freshness lifetime.
	DefaultTTL = time.Minute

	// StaleRetention is how long a stale entry with a validator is kept for
	// conditional requests.
	StaleRetention = 10 * time.Minute
)

// ResponseToEntry reads resp into a CacheEntry. The body is restored so the
// caller can still decode it. It returns (nil, nil) for responses marked
// no-store.
func ResponseToEntry(resp *http.Response) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	directives := parseCacheControl(resp.Header.Get("Cache-Control"))
	if _, ok := directives["no-store"]; ok {
		return nil, nil
	}

	entry := &CacheEntry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
		Expires:    freshUntil(resp.Header, directives),
	}

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

func parseCacheControl(header string) map[string]string {
	directives := map[string]string{}
	for _, part := range strings.Split(header, ",") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		if name == "" {
			continue
		}
		directives[strings.ToLower(name)] = strings.Trim(value, `"`)
	}
	return directives
}

// freshUntil derives the expiry from max-age, no-cache, Expires, or DefaultTTL.
func freshUntil(headers http.Header, directives map[string]string) time.Time {
	now := time.Now()

	if _, ok := directives["no-cache"]; ok {
		return now
	}
	if maxAge, ok := directives["max-age"]; ok {
		if seconds, err := strconv.Atoi(maxAge); err == nil && seconds >= 0 {
			return now.Add(time.Duration(seconds) * time.Second)
		}
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(DefaultTTL)
	}
	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(DefaultTTL)
	}
	if expires.Before(now) {
		return now
	}
	return expires
}

// RefreshFromNotModified moves the entry's expiry forward using the headers
// of a 304 answer.
func RefreshFromNotModified(entry *CacheEntry, headers http.Header) {
	entry.Expires = freshUntil(headers, parseCacheControl(headers.Get("Cache-Control")))
	if etag := headers.Get("ETag"); etag != "" {
		entry.ETag = etag
	}
}

// ShouldMakeConditionalRequest reports whether entry can be revalidated.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	return entry != nil && entry.HasValidator()
}

// AddConditionalHeaders sets If-None-Match, or If-Modified-Since when the
// entry has no ETag.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
}

// EntryToResponse rebuilds an HTTP response from a stored entry.
func EntryToResponse(entry *CacheEntry) *http.Response {
	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        entry.Headers.Clone(),
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
	}
}
