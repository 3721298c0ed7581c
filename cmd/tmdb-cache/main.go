package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/12v/tmdbc/pkg/cache"
	"github.com/12v/tmdbc/pkg/checkpoint"
	"github.com/12v/tmdbc/pkg/config"
	"github.com/12v/tmdbc/pkg/index"
	"github.com/12v/tmdbc/pkg/ingest"
	"github.com/12v/tmdbc/pkg/logging"
	"github.com/12v/tmdbc/pkg/ratelimit"
	"github.com/12v/tmdbc/pkg/tmdb"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional redis memo for index resolutions.
	var memo *index.Memo
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable - index memo disabled")
		} else {
			logger.Info().Str("addr", cfg.RedisURL).Msg("Connected to Redis")
			memo = index.NewMemo(redisClient)
			defer redisClient.Close()
		}
	}

	// Optional metrics listener.
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow, logging.NewLogger("ratelimit"))

	fetcher, err := tmdb.New(tmdb.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIToken,
		Retry:   tmdb.DefaultRetryConfig(),
	}, limiter)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create TMDB client")
		return 1
	}

	source := index.New(index.Config{
		APIBaseURL: "https://api.github.com",
		RawBaseURL: "https://raw.githubusercontent.com",
		Owner:      cfg.IndexOwner,
		Repo:       cfg.IndexRepo,
		Ref:        cfg.IndexRef,
		Prefix:     cfg.IndexPrefix,
		Suffix:     cfg.IndexSuffix,
		FetchDelay: cfg.IndexDelay,
	}, memo)

	mode := checkpoint.ModeNumeric
	if cfg.IndexMode == config.IndexModePaginated {
		mode = checkpoint.ModeToken
	}

	runner := ingest.NewRunner(
		source,
		fetcher,
		cache.NewStore(cfg.CacheDir),
		checkpoint.NewFile(cfg.StateFile),
		ingest.Config{
			Mode:      mode,
			Budget:    cfg.MaxRuntime,
			BatchSize: cfg.BatchSize,
		},
	)

	result, err := runner.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Ingestion run failed")
		return 1
	}

	logger.Info().Str("result", string(result)).Msg("Ingestion run complete")
	return 0
}
