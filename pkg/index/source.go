// Package index resolves the external mapping repository into an ordered,
// resumable list of (token, TMDB id) work units. The repository publishes one
// small text file per token; the tree listing names the tokens and each
// token's file content is a single integer id.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for index resolution.
var (
	indexResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_token_resolutions_total",
		Help: "Total token resolutions by result",
	}, []string{"result"})

	indexListingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_listings_total",
		Help: "Total tree listing fetches",
	})
)

// Entry is one unit of work: an index token and the TMDB id it maps to.
type Entry struct {
	Token string
	ID    int
}

// Config holds the index source configuration.
type Config struct {
	// APIBaseURL serves the recursive tree listing (default: the GitHub API).
	APIBaseURL string

	// RawBaseURL serves raw file contents (default: raw.githubusercontent.com).
	RawBaseURL string

	// Owner, Repo, Ref identify the mapping repository.
	Owner string
	Repo  string
	Ref   string

	// Prefix and Suffix select candidate tokens from the listing.
	Prefix string
	Suffix string

	// FetchDelay paces per-token content fetches against the index host.
	// Independent of the TMDB rate limiter.
	FetchDelay time.Duration

	// Timeout per HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns the configuration for the production mapping
// repository.
func DefaultConfig() Config {
	return Config{
		APIBaseURL: "https://api.github.com",
		RawBaseURL: "https://raw.githubusercontent.com",
		Owner:      "12v",
		Repo:       "lbc",
		Ref:        "main",
		Prefix:     "docs/",
		Suffix:     ".txt",
		FetchDelay: 100 * time.Millisecond,
		Timeout:    30 * time.Second,
	}
}

// Source lists and resolves index tokens.
type Source struct {
	httpClient *http.Client
	config     Config
	pacer      *rate.Limiter
	memo       *Memo
	logger     zerolog.Logger

	// sorted candidate tokens, listed once per run
	tokens []string
	listed bool
}

// New creates an index source. memo may be nil to disable memoization.
func New(cfg Config, memo *Memo) *Source {
	if cfg.FetchDelay <= 0 {
		cfg.FetchDelay = 100 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		pacer:  rate.NewLimiter(rate.Every(cfg.FetchDelay), 1),
		memo:   memo,
		logger: log.With().Str("component", "index-source").Logger(),
	}
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

type treeResponse struct {
	Tree []treeEntry `json:"tree"`
}

// listTokens fetches the tree listing once per run and caches the sorted
// candidate token paths.
func (s *Source) listTokens(ctx context.Context) ([]string, error) {
	if s.listed {
		return s.tokens, nil
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		s.config.APIBaseURL, s.config.Owner, s.config.Repo, s.config.Ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create listing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	indexListingsTotal.Inc()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tree listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch tree listing: unexpected status %s", resp.Status)
	}

	var tree treeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode tree listing: %w", err)
	}

	seen := make(map[string]bool)
	tokens := make([]string, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		if entry.Type != "blob" {
			continue
		}
		if !strings.HasPrefix(entry.Path, s.config.Prefix) || !strings.HasSuffix(entry.Path, s.config.Suffix) {
			continue
		}
		if seen[entry.Path] {
			continue
		}
		seen[entry.Path] = true
		tokens = append(tokens, entry.Path)
	}
	sort.Strings(tokens)

	s.logger.Info().
		Int("candidates", len(tokens)).
		Msg("Index listing fetched")

	s.tokens = tokens
	s.listed = true
	return s.tokens, nil
}

// resolve fetches one token's content and parses it as a TMDB id.
func (s *Source) resolve(ctx context.Context, token string) (int, error) {
	if id, ok := s.memo.Get(ctx, token); ok {
		indexResolutionsTotal.WithLabelValues("memo").Inc()
		return id, nil
	}

	if err := s.pacer.Wait(ctx); err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/%s/%s",
		s.config.RawBaseURL, s.config.Owner, s.config.Repo, s.config.Ref, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create content request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch token content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch token content: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read token content: %w", err)
	}

	id, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("parse token content: %w", err)
	}

	s.memo.Set(ctx, token, id)
	indexResolutionsTotal.WithLabelValues("ok").Inc()
	return id, nil
}

// ListAll materializes the full index as entries sorted ascending by id, with
// duplicate ids removed. Tokens that fail to resolve are skipped and never
// fail the listing as a whole.
func (s *Source) ListAll(ctx context.Context) ([]Entry, error) {
	tokens, err := s.listTokens(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]string, len(tokens))
	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, err := s.resolve(ctx, token)
		if err != nil {
			indexResolutionsTotal.WithLabelValues("skipped").Inc()
			s.logger.Debug().
				Err(err).
				Str("token", token).
				Msg("Token did not resolve - skipping")
			continue
		}
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = token
	}

	entries := make([]Entry, 0, len(byID))
	for id, token := range byID {
		entries = append(entries, Entry{Token: token, ID: id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	return entries, nil
}

// NextBatch resolves up to batchSize candidate tokens that sort strictly
// after afterToken, in token order. Tokens that fail to resolve are skipped.
// lastToken is the last candidate examined so the caller can advance its
// cursor past skipped tokens; an empty lastToken means no candidates remain.
func (s *Source) NextBatch(ctx context.Context, afterToken string, batchSize int) (entries []Entry, lastToken string, err error) {
	tokens, err := s.listTokens(ctx)
	if err != nil {
		return nil, "", err
	}

	start := sort.SearchStrings(tokens, afterToken)
	for start < len(tokens) && tokens[start] == afterToken {
		start++
	}
	if start >= len(tokens) {
		return nil, "", nil
	}

	candidates := tokens[start:]
	if batchSize > 0 && len(candidates) > batchSize {
		candidates = candidates[:batchSize]
	}

	entries = make([]Entry, 0, len(candidates))
	for _, token := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		lastToken = token
		id, err := s.resolve(ctx, token)
		if err != nil {
			indexResolutionsTotal.WithLabelValues("skipped").Inc()
			s.logger.Debug().
				Err(err).
				Str("token", token).
				Msg("Token did not resolve - skipping")
			continue
		}
		entries = append(entries, Entry{Token: token, ID: id})
	}

	return entries, lastToken, nil
}
