// Package testutil provides testing utilities for the fetch pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProductPath is the path prefix served by MockAPI; the identifier follows it.
const ProductPath = "/api/v1/products/"

// MockResponse defines one canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock product-detail API for testing.
type MockAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	scripts   map[int64][]MockResponse
	always    map[int64]MockResponse
	requests  map[int64]int
	total     int
	inflight  int
	maxFlight int
}

// NewMockAPI starts a mock API. Unknown identifiers get NewProductResponse(id).
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		scripts:  make(map[int64][]MockResponse),
		always:   make(map[int64]MockResponse),
		requests: make(map[int64]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server base URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// URLTemplate returns a fetch URL template pointing at this server.
func (m *MockAPI) URLTemplate() string {
	return m.server.URL + ProductPath + "%d"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetResponse makes every request for id return resp.
func (m *MockAPI) SetResponse(id int64, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.always[id] = resp
}

// SetSequence makes successive requests for id return resps in order; once
// exhausted the default product response is served.
func (m *MockAPI) SetSequence(id int64, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[id] = append([]MockResponse(nil), resps...)
}

// RequestCount returns how many requests were made for id.
func (m *MockAPI) RequestCount(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

// TotalRequests returns the number of requests served.
func (m *MockAPI) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// MaxInflight returns the highest number of concurrently served requests.
func (m *MockAPI) MaxInflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxFlight
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, ProductPath) {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, ProductPath), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requests[id]++
	m.total++
	m.inflight++
	if m.inflight > m.maxFlight {
		m.maxFlight = m.inflight
	}
	resp, ok := m.always[id]
	if !ok {
		if script := m.scripts[id]; len(script) > 0 {
			resp, m.scripts[id] = script[0], script[1:]
			ok = true
		}
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if !ok {
		resp = NewProductResponse(id)
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// ProductJSON returns a product-detail payload for id.
func ProductJSON(id int64) string {
	payload := map[string]any{
		"id":          id,
		"name":        fmt.Sprintf("Product %d", id),
		"url_key":     fmt.Sprintf("product-%d", id),
		"price":       100000 + id,
		"description": "&lt;p&gt;Great &lt;b&gt;product&lt;/b&gt;&lt;/p&gt;",
		"images": []map[string]string{
			{"base_url": fmt.Sprintf("https://img.example.com/%d.jpg", id)},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

// NewProductResponse creates a standard 200 OK product response.
func NewProductResponse(id int64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       ProductJSON(id),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}
