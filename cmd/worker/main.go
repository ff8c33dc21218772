// Command worker boots the Temporal workers this system runs: the query
// orchestrator (spec 4.F) and the CPU/GPU activity queues (spec 5). It is
// the composition root the rest of this repo is written against — the
// external collaborators spec section 1 scopes out of this repo (the platform
// scraper/downloader/STT/LLM engines, the web index regenerator) are wired
// here as either a real client or, for the black-box platform integrations
// this repo was never given a concrete implementation of, an explicit "not
// configured" stand-in. No HTTP enqueue adapter runs in this process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oxbowlabs/vqueryd/internal/activities"
	"github.com/oxbowlabs/vqueryd/internal/combined"
	"github.com/oxbowlabs/vqueryd/internal/llm"
	"github.com/oxbowlabs/vqueryd/internal/manifest"
	"github.com/oxbowlabs/vqueryd/internal/objectstore"
	"github.com/oxbowlabs/vqueryd/internal/platform/env"
	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
	"github.com/oxbowlabs/vqueryd/internal/temporalrt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := newObjectStore(ctx, log)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	manifestLocker, err := newManifestLocker(ctx, log)
	if err != nil {
		return fmt.Errorf("init manifest locker: %w", err)
	}
	manifestStore := manifest.NewStore(store, manifestLocker, log)

	llmClient, err := llm.NewClient(log)
	if err != nil {
		log.Warn("llm client unavailable; keyword extraction and summarization fall back to deterministic heuristics", "error", err.Error())
		llmClient = nil
	}

	builder := combined.NewBuilder(store, manifestStore, llmClient, newStitcher(log), log)

	acc := &activities.Activities{
		Log:         log,
		Store:       store,
		Manifest:    manifestStore,
		Scraper:     activities.UnconfiguredScraper{},
		Downloader:  activities.UnconfiguredDownloader{},
		Transcriber: activities.UnconfiguredTranscriber{},
		LLM:         llmClient,
		Index:       activities.NopIndexRefresher{},
		Combined:    builder,
	}

	tc, err := temporalrt.NewClient(log)
	if err != nil {
		return fmt.Errorf("init temporal client: %w", err)
	}
	if tc == nil {
		return fmt.Errorf("TEMPORAL_ADDRESS is required to run the worker")
	}
	defer tc.Close()

	runner, err := temporalrt.NewRunner(log, tc, acc)
	if err != nil {
		return fmt.Errorf("init temporal runner: %w", err)
	}
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start temporal runner: %w", err)
	}

	log.Info("worker running; waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping workers")
	return nil
}

func newObjectStore(ctx context.Context, log *logger.Logger) (objectstore.Store, error) {
	bucket := strings.TrimSpace(os.Getenv("OBJECT_STORE_BUCKET"))
	if bucket == "" {
		log.Warn("OBJECT_STORE_BUCKET not set; using an in-memory object store (artifacts do not persist across restarts)")
		return objectstore.NewMemoryStore(), nil
	}
	return objectstore.NewGCSStore(ctx, bucket, log)
}

func newManifestLocker(ctx context.Context, log *logger.Logger) (manifest.Locker, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		log.Warn("REDIS_ADDR not set; using an in-process manifest lock (safe only for a single worker process)")
		return manifest.NewInMemoryLocker(), nil
	}
	return manifest.NewRedisLocker(ctx, manifest.RedisLockerConfig{
		Addr:        addr,
		LockTTL:     env.GetEnvAsDuration("MANIFEST_LOCK_TTL_SECONDS", 0, log),
		AcquireWait: env.GetEnvAsDuration("MANIFEST_LOCK_ACQUIRE_WAIT_SECONDS", 0, log),
	}, log)
}

// newStitcher returns nil (disabling the optional stitched-video step) unless
// ENABLE_STITCHED_VIDEO is set, per spec section 9's open question: "the
// source treats it as best-effort and skippable via a flag."
func newStitcher(log *logger.Logger) combined.Stitcher {
	if !env.GetEnvAsBool("ENABLE_STITCHED_VIDEO", false, log) {
		return nil
	}
	return combined.NewFFmpegStitcher()
}
