package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

// MockIndex mimics the GitHub surface the index source talks to: the
// recursive tree listing under /api and raw blob contents under /raw.
type MockIndex struct {
	server *httptest.Server
	mu     sync.Mutex

	// path -> entry type ("blob" or "tree")
	entries map[string]string
	// path -> raw file content
	contents map[string]string
	// paths that 500 on content fetch
	broken map[string]bool

	// Tracking
	ListingCount int
	ContentCount int
	FailListing  bool
}

type mockTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// NewMockIndex creates a new mock index server.
func NewMockIndex() *MockIndex {
	mock := &MockIndex{
		entries:  make(map[string]string),
		contents: make(map[string]string),
		broken:   make(map[string]bool),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/"):
			mock.handleListing(w, r)
		case strings.HasPrefix(r.URL.Path, "/raw/"):
			mock.handleContent(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	return mock
}

// APIBaseURL returns the base URL for tree listing requests.
func (m *MockIndex) APIBaseURL() string {
	return m.server.URL + "/api"
}

// RawBaseURL returns the base URL for raw content requests.
func (m *MockIndex) RawBaseURL() string {
	return m.server.URL + "/raw"
}

// Close shuts down the mock server.
func (m *MockIndex) Close() {
	m.server.Close()
}

// AddToken registers a blob entry with the given raw content.
func (m *MockIndex) AddToken(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[path] = "blob"
	m.contents[path] = content
}

// AddEntry registers a tree entry without content (directories, unrelated
// files).
func (m *MockIndex) AddEntry(path, entryType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[path] = entryType
}

// BreakToken makes content fetches for path fail with a 500.
func (m *MockIndex) BreakToken(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[path] = "blob"
	m.broken[path] = true
}

// SetFailListing makes the tree listing endpoint fail with a 500.
func (m *MockIndex) SetFailListing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailListing = fail
}

// GetContentCount returns the number of raw content fetches served.
func (m *MockIndex) GetContentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ContentCount
}

func (m *MockIndex) handleListing(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListingCount++

	if m.FailListing {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message": "Server Error"}`)
		return
	}

	tree := make([]mockTreeEntry, 0, len(m.entries))
	for path, entryType := range m.entries {
		tree = append(tree, mockTreeEntry{Path: path, Type: entryType})
	}
	sort.Slice(tree, func(i, j int) bool { return tree[i].Path < tree[j].Path })

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(map[string]any{"tree": tree}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (m *MockIndex) handleContent(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ContentCount++

	// Strip "/raw/{owner}/{repo}/{ref}/" to recover the token path.
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/raw/"), "/", 4)
	if len(parts) < 4 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	token := parts[3]

	if m.broken[token] {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	content, exists := m.contents[token]
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	fmt.Fprint(w, content)
}
