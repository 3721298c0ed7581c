// Package checkpoint persists the ingestion cursor between runs.
// The cursor lives in one small JSON file; a missing or corrupt file means
// starting from the beginning of the index, never a fatal error.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode selects which cursor representation a deployment uses. Exactly one is
// active; the other cursor field stays at its zero value.
type Mode string

const (
	// ModeNumeric tracks the last processed TMDB id (snapshot index mode).
	ModeNumeric Mode = "numeric"

	// ModeToken tracks the last processed index token (paginated index mode).
	ModeToken Mode = "token"
)

// State is the durable cursor. ProcessedCount is the absolute number of
// units processed across all runs of the current sweep; the zero State is
// the start-of-index sentinel.
type State struct {
	LastID         int    `json:"last_id,omitempty"`
	LastToken      string `json:"last_token,omitempty"`
	ProcessedCount int    `json:"processed_count"`
}

// IsZero reports whether the state is the start-of-index sentinel.
func (s State) IsZero() bool {
	return s.LastID == 0 && s.LastToken == "" && s.ProcessedCount == 0
}

// File stores the state as JSON in a single file.
type File struct {
	path   string
	logger zerolog.Logger
}

// NewFile creates a checkpoint store at the given path.
func NewFile(path string) *File {
	return &File{
		path:   path,
		logger: log.With().Str("component", "checkpoint").Logger(),
	}
}

// Load returns the saved state, or the zero state when the file is missing,
// unreadable, or corrupt.
func (f *File) Load() State {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn().
				Err(err).
				Str("path", f.path).
				Msg("Checkpoint unreadable - starting from the beginning")
		}
		return State{}
	}

	var state State
	if err := json.Unmarshal(bytes.TrimSpace(data), &state); err != nil {
		f.logger.Warn().
			Err(err).
			Str("path", f.path).
			Msg("Checkpoint corrupt - starting from the beginning")
		return State{}
	}

	return state
}

// Save writes the state through a temp file and rename, so a crash mid-write
// leaves either the previous state or no state at the final path, never a
// truncated checkpoint.
func (f *File) Save(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}

	return nil
}

// Reset clears all progress, marking the index fully drained.
func (f *File) Reset() error {
	return f.Save(State{})
}
