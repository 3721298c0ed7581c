// Package testutil provides mock upstream servers for testing the pipeline.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockMovieResponse defines one canned response for a movie lookup.
type MockMovieResponse struct {
	StatusCode int
	Body       string
}

// MockTMDB is a configurable mock TMDB server for testing.
type MockTMDB struct {
	server *httptest.Server
	mu     sync.Mutex

	// queued responses per movie id; the last response repeats once the
	// queue is drained
	responses map[int][]MockMovieResponse

	// Tracking
	RequestCount int
	CallsPerID   map[int]int
	LastAPIKey   string
}

// NewMockTMDB creates a new mock TMDB server.
func NewMockTMDB() *MockTMDB {
	mock := &MockTMDB{
		responses:  make(map[int][]MockMovieResponse),
		CallsPerID: make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		defer mock.mu.Unlock()

		mock.RequestCount++
		mock.LastAPIKey = r.URL.Query().Get("api_key")

		id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/movie/"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mock.CallsPerID[id]++

		queue, exists := mock.responses[id]
		if !exists || len(queue) == 0 {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status_message": "The resource you requested could not be found."}`)
			return
		}

		resp := queue[0]
		if len(queue) > 1 {
			mock.responses[id] = queue[1:]
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			fmt.Fprint(w, resp.Body)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockTMDB) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTMDB) Close() {
	m.server.Close()
}

// SetResponses queues responses for a movie id. Responses are served in
// order; the final one repeats for any further requests.
func (m *MockTMDB) SetResponses(id int, responses ...MockMovieResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[id] = responses
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockTMDB) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetCallCount returns the number of lookups for one movie id.
func (m *MockTMDB) GetCallCount(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallsPerID[id]
}

// MovieDoc returns a full TMDB-style movie document, including fields outside
// the projected set, so projection tests have something to discard.
func MovieDoc(id int, title string) string {
	return fmt.Sprintf(`{
		"adult": false,
		"backdrop_path": "/backdrop.jpg",
		"budget": 1000000,
		"id": %d,
		"title": %q,
		"original_title": %q,
		"release_date": "2020-01-15",
		"status": "Released",
		"runtime": 117,
		"original_language": "en",
		"spoken_languages": [{"english_name": "English", "iso_639_1": "en", "name": "English"}],
		"origin_country": ["US"],
		"genres": [{"id": 18, "name": "Drama"}],
		"popularity": 12.5,
		"vote_average": 7.2,
		"vote_count": 4521
	}`, id, title, title)
}

// NewOKResponse creates a 200 response carrying a full movie document.
func NewOKResponse(id int, title string) MockMovieResponse {
	return MockMovieResponse{
		StatusCode: http.StatusOK,
		Body:       MovieDoc(id, title),
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockMovieResponse {
	return MockMovieResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"status_message": "The resource you requested could not be found."}`,
	}
}

// NewRateLimitResponse creates a 429 response.
func NewRateLimitResponse() MockMovieResponse {
	return MockMovieResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status_message": "Your request count is over the allowed limit."}`,
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockMovieResponse {
	return MockMovieResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status_message": "Internal error"}`,
	}
}
