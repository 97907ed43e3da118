// Package testutil provides a mock Mastodon-compatible instance for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockInstance is a configurable mock instance for testing.
type MockInstance struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	LastRequestURL    string
}

// NewMockInstance starts a new mock instance.
func NewMockInstance() *MockInstance {
	mock := &MockInstance{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastRequestURL = r.URL.String()

		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockInstance) URL() string {
	return m.server.URL
}

// WebSocketURL returns the server URL with the ws scheme.
func (m *MockInstance) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

// Close shuts down the mock server.
func (m *MockInstance) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockInstance) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.LastRequestURL = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockInstance) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockInstance) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPages serves pages as a Link-paginated collection at path. The first
// page is served without a query; later ones are reached through the
// "next" and "prev" links only.
func (m *MockInstance) SetPages(path string, pages []string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		index := 0
		if raw := r.URL.Query().Get("page"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 || n >= len(pages) {
				writeAPIError(w, http.StatusNotFound, "Record not found")
				return
			}
			index = n
		}

		var links []string
		if index+1 < len(pages) {
			links = append(links, fmt.Sprintf(`<%s%s?page=%d>; rel="next"`, m.server.URL, path, index+1))
		}
		if index > 0 {
			links = append(links, fmt.Sprintf(`<%s%s?page=%d>; rel="prev"`, m.server.URL, path, index-1))
		}
		if len(links) > 0 {
			w.Header().Set("Link", strings.Join(links, ", "))
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(pages[index]))
	})
}

// SetEventStream serves lines as a server-sent event stream at path and
// ends the response after the last one.
func (m *MockInstance) SetEventStream(path string, lines []string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
}

// SetWebSocketStream upgrades requests to path and sends each message as
// one text message before closing normally.
func (m *MockInstance) SetWebSocketStream(path string, messages []string) {
	upgrader := websocket.Upgrader{}
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockInstance) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockInstance) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetLastRequestHeader returns the headers of the latest request.
func (m *MockInstance) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetLastRequestURL returns the request URI of the latest request.
func (m *MockInstance) GetLastRequestURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestURL
}

// defaultHandler answers /api/v1/instance and 404s everything else.
func (m *MockInstance) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/instance" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"uri":"%s","title":"Mock","description":"","email":"admin@mock.example","version":"4.2.0","urls":{"streaming_api":"%s"}}`,
			strings.TrimPrefix(m.server.URL, "http://"), m.WebSocketURL())
		return
	}
	writeAPIError(w, http.StatusNotFound, "Record not found")
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// RateLimitHeaders returns X-RateLimit headers for a window ending at reset.
func RateLimitHeaders(limit, remaining int, reset time.Time) map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(limit),
		"X-RateLimit-Remaining": strconv.Itoa(remaining),
		"X-RateLimit-Reset":     reset.UTC().Format(time.RFC3339Nano),
	}
}

func withHeaders(base map[string]string, extra map[string]string) map[string]string {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// NewHealthyResponse creates a cacheable 200 OK response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: withHeaders(map[string]string{
			"ETag":          `W/"test-etag-123"`,
			"Cache-Control": "max-age=300, public",
			"Content-Type":  "application/json; charset=utf-8",
		}, RateLimitHeaders(300, 299, time.Now().Add(5*time.Minute))),
	}
}

// NewNotModifiedResponse creates a 304 Not Modified response.
func NewNotModifiedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotModified,
		Headers: withHeaders(map[string]string{
			"Cache-Control": "max-age=300, public",
		}, RateLimitHeaders(300, 298, time.Now().Add(5*time.Minute))),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"Too many requests"}`,
		Headers: withHeaders(map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		}, RateLimitHeaders(300, 0, time.Now().Add(30*time.Second))),
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":"Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewConditionalHandler creates a handler that responds with 304 when the
// request carries etag.
func NewConditionalHandler(etag string, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		for k, v := range RateLimitHeaders(300, 250, time.Now().Add(5*time.Minute)) {
			w.Header().Set(k, v)
		}

		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("Cache-Control", "max-age=0")
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("ETag", etag)
		// Stale immediately so every later read revalidates.
		w.Header().Set("Cache-Control", "max-age=0")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
