// Package cache persists projected movie records as sharded JSON files.
// Files are keyed by id and sharded into two-character directories derived
// from the id's decimal form, keeping any single directory small.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/12v/tmdbc/pkg/tmdb"
)

var cacheWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cache_writes_total",
	Help: "Total movie records written to the file cache",
})

// Store writes one JSON file per movie id under the cache root.
// Writes are create-or-replace; the store never reads existing files.
type Store struct {
	root   string
	logger zerolog.Logger
}

// NewStore creates a store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{
		root:   root,
		logger: log.With().Str("component", "cache-store").Logger(),
	}
}

// ShardDir returns the shard directory name for a decimal id string: its
// first two characters, left-padded with zeros for single-digit ids.
func ShardDir(id string) string {
	if len(id) >= 2 {
		return id[:2]
	}
	return "0" + id
}

// Path returns the cache file path for a movie id.
func (s *Store) Path(id int) string {
	decimal := strconv.Itoa(id)
	return filepath.Join(s.root, ShardDir(decimal), decimal+".json")
}

// Put writes the record at <root>/<shard>/<id>.json, replacing any existing
// file. A write failure is returned to the caller; unlike fetch failures it
// must abort the run, since dropping a write silently would desync the cache
// from the checkpoint.
func (s *Store) Put(movie *tmdb.Movie) error {
	if movie == nil || movie.ID == nil {
		return fmt.Errorf("movie record has no id")
	}

	path := s.Path(*movie.ID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create shard directory: %w", err)
	}

	data, err := json.MarshalIndent(movie, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal movie %d: %w", *movie.ID, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	cacheWritesTotal.Inc()
	s.logger.Debug().Str("path", path).Msg("Cached movie")

	return nil
}
