// Package testutil provides testing utilities for promptgrid.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// CompletionsPath is the path the mock serves chat completions on.
const CompletionsPath = "/v1/chat/completions"

// MockResponse defines the behavior for one mock chat completion response.
type MockResponse struct {
	StatusCode int
	// Content becomes choices[0].message.content of a 200 response.
	Content string
	// Body, when set, is written verbatim instead of a completion.
	Body  string
	Delay time.Duration
}

// MockChat is a configurable OpenAI-compatible chat completions server.
// Scripted responses are served in order; once the script is used up the
// default responder answers.
type MockChat struct {
	server *httptest.Server

	mu       sync.Mutex
	script   []MockResponse
	fallback func(req openai.ChatCompletionRequest) MockResponse

	// Tracking
	requestCount int
	inFlight     int
	maxInFlight  int
	requests     []openai.ChatCompletionRequest
	bodies       [][]byte
	lastHeader   http.Header
	arrivals     []time.Time
}

// NewMockChat creates a new mock chat server. By default every request is
// answered with "answer to: <prompt>".
func NewMockChat() *MockChat {
	mock := &MockChat{
		fallback: EchoResponder,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// EchoResponder answers with the prompt it received.
func EchoResponder(req openai.ChatCompletionRequest) MockResponse {
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[0].Content
	}
	return MockResponse{StatusCode: http.StatusOK, Content: "answer to: " + prompt}
}

// Endpoint returns the full chat completions URL of the mock.
func (m *MockChat) Endpoint() string {
	return m.server.URL + CompletionsPath
}

// Close shuts down the mock server.
func (m *MockChat) Close() {
	m.server.Close()
}

// Enqueue appends responses to the script.
func (m *MockChat) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// SetResponder replaces the default responder used once the script is empty.
func (m *MockChat) SetResponder(fn func(req openai.ChatCompletionRequest) MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
}

// RequestCount returns the number of requests received.
func (m *MockChat) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockChat) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Requests returns the decoded requests in arrival order.
func (m *MockChat) Requests() []openai.ChatCompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]openai.ChatCompletionRequest(nil), m.requests...)
}

// Bodies returns the raw request bodies in arrival order.
func (m *MockChat) Bodies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.bodies...)
}

// Arrivals returns the arrival times of all requests.
func (m *MockChat) Arrivals() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.arrivals...)
}

// LastHeader returns the headers of the most recent request.
func (m *MockChat) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

func (m *MockChat) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != CompletionsPath {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"read body: %v"}`, err), http.StatusBadRequest)
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"bad request: %v"}`, err), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requestCount++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)
	m.arrivals = append(m.arrivals, time.Now())
	m.lastHeader = r.Header.Clone()

	var resp MockResponse
	if len(m.script) > 0 {
		resp = m.script[0]
		m.script = m.script[1:]
	} else {
		resp = m.fallback(req)
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	writeResponse(w, req, resp)
}

func writeResponse(w http.ResponseWriter, req openai.ChatCompletionRequest, resp MockResponse) {
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")

	if resp.Body != "" || status != http.StatusOK {
		w.WriteHeader(status)
		w.Write([]byte(resp.Body))
		return
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: resp.Content,
				},
				FinishReason: openai.FinishReasonStop,
			},
		},
	})
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
	}
}

// NewContentResponse creates a 200 response carrying content.
func NewContentResponse(content string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Content: content}
}
