package index

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Prometheus metrics for the resolution memo.
var (
	memoHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_memo_hits_total",
		Help: "Total token resolutions served from the redis memo",
	})

	memoMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_memo_misses_total",
		Help: "Total memo lookups that fell through to a direct fetch",
	})

	memoErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_memo_errors_total",
		Help: "Total memo operation errors by operation",
	}, []string{"operation"})
)

const memoKeyPrefix = "lbc:token:"

// Memo caches token to id resolutions in redis. A token always maps to the
// same id and the index is append-only, so entries never expire. A nil *Memo
// is valid and disables memoization; every redis failure degrades to a
// direct fetch.
type Memo struct {
	redis *redis.Client
}

// NewMemo creates a memo backed by the given redis client, or nil when the
// client is nil.
func NewMemo(client *redis.Client) *Memo {
	if client == nil {
		return nil
	}
	return &Memo{redis: client}
}

// Get returns the memoized id for token, if present.
func (m *Memo) Get(ctx context.Context, token string) (int, bool) {
	if m == nil {
		return 0, false
	}

	id, err := m.redis.Get(ctx, memoKeyPrefix+token).Int()
	if err != nil {
		if err != redis.Nil {
			memoErrorsTotal.WithLabelValues("get").Inc()
		}
		memoMissesTotal.Inc()
		return 0, false
	}

	memoHitsTotal.Inc()
	return id, true
}

// Set memoizes the resolved id for token. Failures are recorded but not
// reported; the mapping will simply be fetched again next time.
func (m *Memo) Set(ctx context.Context, token string, id int) {
	if m == nil {
		return
	}

	if err := m.redis.Set(ctx, memoKeyPrefix+token, id, 0).Err(); err != nil {
		memoErrorsTotal.WithLabelValues("set").Inc()
	}
}
