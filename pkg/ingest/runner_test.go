package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/12v/tmdbc/pkg/checkpoint"
	"github.com/12v/tmdbc/pkg/index"
	"github.com/12v/tmdbc/pkg/tmdb"
)

type fakeFetcher struct {
	missing map[int]bool
	failID  int
	calls   []int
}

func (f *fakeFetcher) FetchMovie(_ context.Context, id int) (*tmdb.Movie, error) {
	f.calls = append(f.calls, id)
	if f.failID != 0 && id == f.failID {
		return nil, errors.New("upstream unreachable")
	}
	if f.missing[id] {
		return nil, nil
	}
	v := id
	return &tmdb.Movie{ID: &v}, nil
}

type fakeStore struct {
	failID int
	ids    []int
}

func (f *fakeStore) Put(movie *tmdb.Movie) error {
	if f.failID != 0 && movie.ID != nil && *movie.ID == f.failID {
		return errors.New("disk full")
	}
	f.ids = append(f.ids, *movie.ID)
	return nil
}

// batchPage is one scripted NextBatch response.
type batchPage struct {
	entries []index.Entry
	last    string
}

type fakeIndex struct {
	entries   []index.Entry
	listErr   error
	listCalls int
	batches   []batchPage
	batchErr  error
}

func (f *fakeIndex) ListAll(context.Context) ([]index.Entry, error) {
	f.listCalls++
	return f.entries, f.listErr
}

func (f *fakeIndex) NextBatch(context.Context, string, int) ([]index.Entry, string, error) {
	if f.batchErr != nil {
		return nil, "", f.batchErr
	}
	if len(f.batches) == 0 {
		return nil, "", nil
	}
	page := f.batches[0]
	f.batches = f.batches[1:]
	return page.entries, page.last, nil
}

type fakeCheckpoints struct {
	state   checkpoint.State
	saves   []checkpoint.State
	resets  int
	saveErr error
}

func (f *fakeCheckpoints) Load() checkpoint.State { return f.state }

func (f *fakeCheckpoints) Save(state checkpoint.State) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.state = state
	f.saves = append(f.saves, state)
	return nil
}

func (f *fakeCheckpoints) Reset() error {
	f.resets++
	f.state = checkpoint.State{}
	return nil
}

func entriesFor(ids ...int) []index.Entry {
	entries := make([]index.Entry, len(ids))
	for i, id := range ids {
		entries[i] = index.Entry{
			Token: fmt.Sprintf("docs/movie-%04d.txt", id),
			ID:    id,
		}
	}
	return entries
}

func TestRunner_Snapshot_FreshRun(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(10, 20, 30)}
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{})

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != ResultDrained {
		t.Errorf("Run() = %v, want %v", result, ResultDrained)
	}

	if len(fetcher.calls) != 3 || fetcher.calls[0] != 10 || fetcher.calls[2] != 30 {
		t.Errorf("Fetch order = %v, want ascending [10 20 30]", fetcher.calls)
	}
	if len(store.ids) != 3 {
		t.Errorf("Cached %d records, want 3", len(store.ids))
	}

	// A run that did work keeps its end-of-index cursor; only an idle run
	// resets the sweep.
	if checkpoints.resets != 0 {
		t.Errorf("Reset called %d times, want 0 after a productive run", checkpoints.resets)
	}
	if checkpoints.state.LastID != 30 || checkpoints.state.ProcessedCount != 3 {
		t.Errorf("Final checkpoint = %+v, want last_id 30, processed 3", checkpoints.state)
	}
}

func TestRunner_Snapshot_ResumesAfterCursor(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(10, 20, 30, 40)}
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{
		state: checkpoint.State{LastID: 20, ProcessedCount: 2},
	}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(fetcher.calls) != 2 || fetcher.calls[0] != 30 || fetcher.calls[1] != 40 {
		t.Errorf("Fetch calls = %v, want only ids above the cursor [30 40]", fetcher.calls)
	}
	if checkpoints.state.ProcessedCount != 4 {
		t.Errorf("ProcessedCount = %d, want 4 (absolute across runs)", checkpoints.state.ProcessedCount)
	}
}

func TestRunner_Snapshot_IdleRunResetsSweep(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(10, 20, 30)}
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{
		state: checkpoint.State{LastID: 30, ProcessedCount: 3},
	}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{})

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != ResultDrained {
		t.Errorf("Run() = %v, want %v", result, ResultDrained)
	}

	if len(fetcher.calls) != 0 {
		t.Errorf("Fetch calls = %v, want none when the cursor covers the index", fetcher.calls)
	}
	if checkpoints.resets != 1 {
		t.Errorf("Reset called %d times, want 1 for an idle run", checkpoints.resets)
	}
	if !checkpoints.state.IsZero() {
		t.Errorf("Checkpoint = %+v, want zero state after reset", checkpoints.state)
	}
}

func TestRunner_Snapshot_RerunAfterCompletionDoesNoWork(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(10, 20)}
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{})
	ctx := context.Background()

	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("First Run() error = %v", err)
	}
	fetchesAfterFirst := len(fetcher.calls)

	result, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Second Run() error = %v", err)
	}
	if result != ResultDrained {
		t.Errorf("Second Run() = %v, want %v", result, ResultDrained)
	}
	if len(fetcher.calls) != fetchesAfterFirst {
		t.Errorf("Second run fetched %d ids, want 0", len(fetcher.calls)-fetchesAfterFirst)
	}
}

func TestRunner_Snapshot_SkipsMissingRecords(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(10, 20, 30)}
	fetcher := &fakeFetcher{missing: map[int]bool{20: true}}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.ids) != 2 || store.ids[0] != 10 || store.ids[1] != 30 {
		t.Errorf("Cached ids = %v, want [10 30]", store.ids)
	}

	// The cursor still advances past the missing record, so it never blocks
	// progress.
	if checkpoints.state.LastID != 30 || checkpoints.state.ProcessedCount != 3 {
		t.Errorf("Checkpoint = %+v, want last_id 30, processed 3", checkpoints.state)
	}
}

func TestRunner_Snapshot_TimeoutMidBatch(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)}
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{
		Budget: 4 * time.Minute,
	})

	// The clock advances one minute per observation: the budget check before
	// the fifth unit sees five elapsed minutes and stops the run.
	clock := time.Unix(0, 0)
	runner.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != ResultTimeout {
		t.Errorf("Run() = %v, want %v", result, ResultTimeout)
	}

	if len(fetcher.calls) != 4 {
		t.Errorf("Fetched %d ids before the budget cut off, want 4", len(fetcher.calls))
	}

	// The checkpoint reflects the last fully completed unit.
	if checkpoints.state.LastID != 4 || checkpoints.state.ProcessedCount != 4 {
		t.Errorf("Checkpoint = %+v, want last_id 4, processed 4", checkpoints.state)
	}
	if checkpoints.resets != 0 {
		t.Errorf("Reset called %d times, want 0 on timeout", checkpoints.resets)
	}
}

func TestRunner_Snapshot_CheckpointPerBatch(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(1, 2, 3, 4, 5)}
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{BatchSize: 2})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(checkpoints.saves) != 3 {
		t.Fatalf("Save called %d times, want 3 (one per batch)", len(checkpoints.saves))
	}
	counts := []int{2, 4, 5}
	for i, want := range counts {
		if checkpoints.saves[i].ProcessedCount != want {
			t.Errorf("Save #%d processed = %d, want %d", i+1, checkpoints.saves[i].ProcessedCount, want)
		}
	}
}

func TestRunner_Snapshot_FetchErrorSavesProgress(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(10, 20, 30)}
	fetcher := &fakeFetcher{failID: 20}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{})

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("Run() should propagate an unrecoverable fetch error")
	}

	// Progress through the previous unit survives the abort.
	if checkpoints.state.LastID != 10 || checkpoints.state.ProcessedCount != 1 {
		t.Errorf("Checkpoint = %+v, want last_id 10, processed 1", checkpoints.state)
	}
}

func TestRunner_Snapshot_StoreErrorSavesProgress(t *testing.T) {
	idx := &fakeIndex{entries: entriesFor(10, 20, 30)}
	fetcher := &fakeFetcher{}
	store := &fakeStore{failID: 20}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{})

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatal("Run() should propagate a cache write error")
	}

	if checkpoints.state.LastID != 10 || checkpoints.state.ProcessedCount != 1 {
		t.Errorf("Checkpoint = %+v, want last_id 10, processed 1", checkpoints.state)
	}
}

func TestRunner_Snapshot_ListingError(t *testing.T) {
	idx := &fakeIndex{listErr: errors.New("tree unavailable")}
	runner := NewRunner(idx, &fakeFetcher{}, &fakeStore{}, &fakeCheckpoints{}, Config{})

	if _, err := runner.Run(context.Background()); err == nil {
		t.Error("Run() should fail when the index listing is unavailable")
	}
}

func TestRunner_Paginated_WalksBatches(t *testing.T) {
	pages := entriesFor(10, 20, 30)
	idx := &fakeIndex{
		batches: []batchPage{
			{entries: pages[:2], last: pages[1].Token},
			{entries: pages[2:], last: pages[2].Token},
		},
	}
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, store, checkpoints, Config{
		Mode:      checkpoint.ModeToken,
		BatchSize: 2,
	})

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != ResultDrained {
		t.Errorf("Run() = %v, want %v", result, ResultDrained)
	}

	if len(store.ids) != 3 {
		t.Errorf("Cached %d records, want 3", len(store.ids))
	}
	if checkpoints.state.LastToken != pages[2].Token {
		t.Errorf("LastToken = %q, want %q", checkpoints.state.LastToken, pages[2].Token)
	}
	if checkpoints.resets != 0 {
		t.Errorf("Reset called %d times, want 0 after a productive run", checkpoints.resets)
	}
}

func TestRunner_Paginated_IdleRunResetsSweep(t *testing.T) {
	idx := &fakeIndex{}
	fetcher := &fakeFetcher{}
	checkpoints := &fakeCheckpoints{
		state: checkpoint.State{LastToken: "docs/z.txt", ProcessedCount: 9},
	}

	runner := NewRunner(idx, fetcher, &fakeStore{}, checkpoints, Config{
		Mode: checkpoint.ModeToken,
	})

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != ResultDrained {
		t.Errorf("Run() = %v, want %v", result, ResultDrained)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("Fetch calls = %v, want none for an idle run", fetcher.calls)
	}
	if checkpoints.resets != 1 {
		t.Errorf("Reset called %d times, want 1", checkpoints.resets)
	}
}

func TestRunner_Paginated_CursorCoversUnresolvableTail(t *testing.T) {
	// The batch tail failed to resolve; the cursor still moves past it so it
	// is not re-listed forever.
	idx := &fakeIndex{
		batches: []batchPage{
			{entries: entriesFor(10), last: "docs/unresolvable.txt"},
		},
	}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, &fakeFetcher{}, &fakeStore{}, checkpoints, Config{
		Mode: checkpoint.ModeToken,
	})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if checkpoints.state.LastToken != "docs/unresolvable.txt" {
		t.Errorf("LastToken = %q, want the batch tail token", checkpoints.state.LastToken)
	}
}

func TestRunner_Paginated_TimeoutKeepsCompletedCursor(t *testing.T) {
	pages := entriesFor(1, 2, 3, 4, 5, 6)
	idx := &fakeIndex{
		batches: []batchPage{
			{entries: pages[:3], last: pages[2].Token},
			{entries: pages[3:], last: pages[5].Token},
		},
	}
	fetcher := &fakeFetcher{}
	checkpoints := &fakeCheckpoints{}

	runner := NewRunner(idx, fetcher, &fakeStore{}, checkpoints, Config{
		Mode:      checkpoint.ModeToken,
		BatchSize: 3,
		Budget:    4 * time.Minute,
	})

	clock := time.Unix(0, 0)
	runner.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != ResultTimeout {
		t.Errorf("Run() = %v, want %v", result, ResultTimeout)
	}

	// Units 1-4 completed; the batch cursor stays at the last completed unit,
	// not the second batch's tail.
	if len(fetcher.calls) != 4 {
		t.Errorf("Fetched %d ids, want 4", len(fetcher.calls))
	}
	if checkpoints.state.LastToken != pages[3].Token {
		t.Errorf("LastToken = %q, want %q", checkpoints.state.LastToken, pages[3].Token)
	}
	if checkpoints.state.ProcessedCount != 4 {
		t.Errorf("ProcessedCount = %d, want 4", checkpoints.state.ProcessedCount)
	}
}
