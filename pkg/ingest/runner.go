// Package ingest drives the checkpointed ingestion run: pull work units from
// the index, fetch and cache each movie in order, and commit the cursor after
// every batch so a killed run resumes exactly where it stopped.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/12v/tmdbc/pkg/checkpoint"
	"github.com/12v/tmdbc/pkg/index"
	"github.com/12v/tmdbc/pkg/tmdb"
)

// Prometheus metrics for ingestion progress.
var (
	ingestProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_processed_total",
		Help: "Total work units processed (cached or skipped)",
	})

	ingestCachedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_cached_total",
		Help: "Total movie records written to the cache",
	})

	ingestSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_skipped_total",
		Help: "Total work units skipped because no record was available",
	})

	ingestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_runs_total",
		Help: "Total ingestion runs by result",
	}, []string{"result"})
)

// Fetcher retrieves one projected movie record. A nil record with a nil
// error means the upstream document is absent and the unit is skipped.
type Fetcher interface {
	FetchMovie(ctx context.Context, id int) (*tmdb.Movie, error)
}

// Store persists one projected record.
type Store interface {
	Put(movie *tmdb.Movie) error
}

// Index exposes the external work list. ListAll serves snapshot mode,
// NextBatch serves paginated mode; a runner uses exactly one of them.
type Index interface {
	ListAll(ctx context.Context) ([]index.Entry, error)
	NextBatch(ctx context.Context, afterToken string, batchSize int) ([]index.Entry, string, error)
}

// Checkpoints loads and persists the durable cursor.
type Checkpoints interface {
	Load() checkpoint.State
	Save(state checkpoint.State) error
	Reset() error
}

// Result describes how a run ended.
type Result string

const (
	// ResultDrained means the index held no unprocessed work when the run
	// finished.
	ResultDrained Result = "drained"

	// ResultTimeout means the wall-clock budget ran out with work remaining.
	ResultTimeout Result = "timeout"
)

// Config holds the runner configuration.
type Config struct {
	// Mode selects the index access mode and cursor representation.
	Mode checkpoint.Mode

	// Budget is the wall-clock limit for one run; zero disables it.
	// Checked at unit boundaries only, so a slow upstream call may overrun
	// it by that call's duration.
	Budget time.Duration

	// BatchSize is the number of units processed between checkpoint commits.
	BatchSize int
}

// Runner orchestrates one ingestion run.
type Runner struct {
	index       Index
	fetcher     Fetcher
	store       Store
	checkpoints Checkpoints
	config      Config
	logger      zerolog.Logger
	now         func() time.Time
}

// NewRunner creates a runner. The loop is strictly sequential; none of the
// collaborators need to be safe for concurrent use.
func NewRunner(idx Index, fetcher Fetcher, store Store, checkpoints Checkpoints, cfg Config) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Mode == "" {
		cfg.Mode = checkpoint.ModeNumeric
	}

	return &Runner{
		index:       idx,
		fetcher:     fetcher,
		store:       store,
		checkpoints: checkpoints,
		config:      cfg,
		logger:      log.With().Str("component", "ingest").Logger(),
		now:         time.Now,
	}
}

// Run executes one ingestion run and reports how it ended.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := r.now()

	state := r.checkpoints.Load()
	if !state.IsZero() {
		r.logger.Info().
			Int("last_id", state.LastID).
			Str("last_token", state.LastToken).
			Int("processed", state.ProcessedCount).
			Msg("Resuming from checkpoint")
	}

	var (
		result Result
		err    error
	)
	switch r.config.Mode {
	case checkpoint.ModeToken:
		result, err = r.runPaginated(ctx, start, state)
	default:
		result, err = r.runSnapshot(ctx, start, state)
	}

	if err != nil {
		ingestRunsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	ingestRunsTotal.WithLabelValues(string(result)).Inc()
	r.logger.Info().
		Str("result", string(result)).
		Dur("elapsed", r.now().Sub(start)).
		Msg("Run finished")
	return result, nil
}

// runSnapshot materializes the index once and processes every id above the
// numeric cursor, in ascending order, batch by batch.
func (r *Runner) runSnapshot(ctx context.Context, start time.Time, state checkpoint.State) (Result, error) {
	entries, err := r.index.ListAll(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Index listing failed - terminating run")
		return "", fmt.Errorf("list index: %w", err)
	}

	remaining := entries[:0:0]
	for _, entry := range entries {
		if entry.ID > state.LastID {
			remaining = append(remaining, entry)
		}
	}

	if len(remaining) == 0 {
		return r.drain(state)
	}

	r.logger.Info().
		Int("remaining", len(remaining)).
		Int("last_id", state.LastID).
		Msg("Processing new index entries")

	prog := &progress{total: len(remaining)}
	for batchStart := 0; batchStart < len(remaining); batchStart += r.config.BatchSize {
		batch := remaining[batchStart:min(batchStart+r.config.BatchSize, len(remaining))]

		completed, err := r.processBatch(ctx, start, &state, batch, prog)
		if err != nil {
			return "", err
		}

		if err := r.checkpoints.Save(state); err != nil {
			return "", fmt.Errorf("save checkpoint: %w", err)
		}

		if !completed {
			r.logger.Info().
				Int("last_id", state.LastID).
				Int("processed", state.ProcessedCount).
				Msg("Time budget exhausted - checkpoint saved")
			return ResultTimeout, nil
		}
	}

	r.logger.Info().
		Int("processed", state.ProcessedCount).
		Msg("Caught up with the index")
	return ResultDrained, nil
}

// runPaginated walks the index in token order, one batch of lexicographic
// successors at a time.
func (r *Runner) runPaginated(ctx context.Context, start time.Time, state checkpoint.State) (Result, error) {
	prog := &progress{}
	for {
		batch, lastToken, err := r.index.NextBatch(ctx, state.LastToken, r.config.BatchSize)
		if err != nil {
			r.logger.Error().Err(err).Msg("Index batch failed - terminating run")
			return "", fmt.Errorf("next index batch: %w", err)
		}

		if lastToken == "" {
			if prog.done > 0 {
				r.logger.Info().
					Int("processed", state.ProcessedCount).
					Msg("Caught up with the index")
				return ResultDrained, nil
			}
			return r.drain(state)
		}

		completed, err := r.processBatch(ctx, start, &state, batch, prog)
		if err != nil {
			return "", err
		}

		if completed {
			// Advance past tokens at the batch tail whose mapping failed to
			// resolve, so they are not re-listed forever.
			state.LastToken = lastToken
		}

		if err := r.checkpoints.Save(state); err != nil {
			return "", fmt.Errorf("save checkpoint: %w", err)
		}

		if !completed {
			r.logger.Info().
				Str("last_token", state.LastToken).
				Int("processed", state.ProcessedCount).
				Msg("Time budget exhausted - checkpoint saved")
			return ResultTimeout, nil
		}
	}
}

// drain handles a run that found no unprocessed work: the sweep is complete,
// so the cursor resets to the start-of-index sentinel and the next sweep
// picks up entries added since, including ones sorting below the old cursor.
func (r *Runner) drain(state checkpoint.State) (Result, error) {
	r.logger.Info().
		Int("processed", state.ProcessedCount).
		Msg("Index fully drained - resetting checkpoint")

	if err := r.checkpoints.Reset(); err != nil {
		return "", fmt.Errorf("reset checkpoint: %w", err)
	}
	return ResultDrained, nil
}

// processBatch handles the units of one batch in order. It returns false
// without error when the budget expired; the state then reflects the last
// fully completed unit. On a store failure the state is saved before the
// error propagates, so completed units are never refetched.
func (r *Runner) processBatch(ctx context.Context, start time.Time, state *checkpoint.State, batch []index.Entry, prog *progress) (bool, error) {
	for _, entry := range batch {
		if r.config.Budget > 0 && r.now().Sub(start) > r.config.Budget {
			return false, nil
		}

		movie, err := r.fetcher.FetchMovie(ctx, entry.ID)
		if err != nil {
			r.saveOnAbort(*state)
			return false, fmt.Errorf("fetch movie %d: %w", entry.ID, err)
		}

		if movie != nil {
			if err := r.store.Put(movie); err != nil {
				r.saveOnAbort(*state)
				return false, fmt.Errorf("cache movie %d: %w", entry.ID, err)
			}
			ingestCachedTotal.Inc()
		} else {
			ingestSkippedTotal.Inc()
			r.logger.Warn().
				Int("movie_id", entry.ID).
				Str("token", entry.Token).
				Msg("No record for movie - skipping")
		}

		// The cursor advances whether or not a record existed; a permanently
		// missing document must not block progress.
		switch r.config.Mode {
		case checkpoint.ModeToken:
			state.LastToken = entry.Token
		default:
			state.LastID = entry.ID
		}
		state.ProcessedCount++
		prog.done++
		ingestProcessedTotal.Inc()

		if prog.done%10 == 0 {
			r.logProgress(start, prog)
		}
	}

	return true, nil
}

// saveOnAbort persists the progress made before an unrecoverable error.
func (r *Runner) saveOnAbort(state checkpoint.State) {
	if err := r.checkpoints.Save(state); err != nil {
		r.logger.Error().Err(err).Msg("Checkpoint save failed during abort")
	}
}

// progress tracks per-run throughput for logging. total is zero in paginated
// mode, where the full extent of the index is unknown.
type progress struct {
	total int
	done  int
}

func (r *Runner) logProgress(start time.Time, prog *progress) {
	elapsed := r.now().Sub(start)
	event := r.logger.Info().
		Int("processed", prog.done)

	if elapsed > 0 {
		perSecond := float64(prog.done) / elapsed.Seconds()
		event = event.Float64("per_second", perSecond)
		if prog.total > 0 && perSecond > 0 {
			eta := time.Duration(float64(prog.total-prog.done)/perSecond) * time.Second
			event = event.Int("total", prog.total).Dur("eta", eta)
		}
	}

	event.Msg("Progress")
}
