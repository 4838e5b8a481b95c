package testing

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockContentServer serves pack content and registry API responses for tests
type MockContentServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []MockRequest
}

// MockResponse holds response data for a path
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	// RedirectTo answers with a 302 to the given path on the same server
	RedirectTo string
}

// MockRequest records a request made to the mock server
type MockRequest struct {
	Method string
	Path   string
	Header http.Header
}

// NewMockContentServer creates a new mock server that is closed when the test ends
func NewMockContentServer(t *testing.T) *MockContentServer {
	t.Helper()

	mock := &MockContentServer{
		responses: make(map[string]MockResponse),
	}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, MockRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
		})
		response, ok := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}

		if response.RedirectTo != "" {
			http.Redirect(w, r, response.RedirectTo, http.StatusFound)
			return
		}

		for key, value := range response.Headers {
			w.Header().Set(key, value)
		}
		if response.Headers["Content-Type"] == "" {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(response.Body)))

		if response.StatusCode != 0 {
			w.WriteHeader(response.StatusCode)
		}
		w.Write(response.Body)
	}))

	t.Cleanup(func() {
		mock.Server.Close()
	})

	return mock
}

// SetFile serves content at path and returns the full URL and the sha1 of the content
func (m *MockContentServer) SetFile(path string, content []byte) (string, string) {
	m.SetRawResponse(path, http.StatusOK, content, nil)
	return m.URL + path, SHA1(content)
}

// SetAttachment serves content at path with a Content-Disposition file name
func (m *MockContentServer) SetAttachment(path, fileName string, content []byte) (string, string) {
	m.SetRawResponse(path, http.StatusOK, content, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, fileName),
	})
	return m.URL + path, SHA1(content)
}

// SetRedirect answers requests for path with a redirect to target
func (m *MockContentServer) SetRedirect(path, target string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{RedirectTo: target}
	return m.URL + path
}

// SetJSONResponse sets a JSON response with custom status code
func (m *MockContentServer) SetJSONResponse(path string, statusCode int, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.SetRawResponse(path, statusCode, jsonData, map[string]string{"Content-Type": "application/json"})
	return nil
}

// SetRawResponse sets a raw response
func (m *MockContentServer) SetRawResponse(path string, statusCode int, body []byte, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{
		StatusCode: statusCode,
		Body:       body,
		Headers:    headers,
	}
}

// Remove stops serving path
func (m *MockContentServer) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.responses, path)
}

// GetRequestCount returns the number of requests made to a path
func (m *MockContentServer) GetRequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, req := range m.requests {
		if req.Path == path {
			count++
		}
	}
	return count
}

// TotalRequests returns the number of requests made to any path
func (m *MockContentServer) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests
func (m *MockContentServer) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// ClearRequests clears the recorded requests
func (m *MockContentServer) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SHA1 returns the lowercase hex sha1 of data
func SHA1(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
