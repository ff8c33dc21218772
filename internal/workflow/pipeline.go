package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/oxbowlabs/vqueryd/internal/activities"
	"github.com/oxbowlabs/vqueryd/internal/activities/errkind"
	"github.com/oxbowlabs/vqueryd/internal/combined"
	"github.com/oxbowlabs/vqueryd/internal/manifest"
	"github.com/oxbowlabs/vqueryd/internal/naming"
)

// baseRetryPolicy implements spec 4.D's retry table: 3 attempts, exponential
// 2s→60s, non-retryable on the named conditions or any Invalid/Fatal kind.
func baseRetryPolicy(nonRetryable ...string) *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        2 * time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        60 * time.Second,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: append([]string{string(errkind.Invalid), string(errkind.Fatal)}, nonRetryable...),
	}
}

func cpuOptions(ctx workflow.Context, timeout time.Duration, nonRetryable ...string) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           CPUTaskQueue,
		StartToCloseTimeout: timeout,
		RetryPolicy:         baseRetryPolicy(nonRetryable...),
	})
}

func gpuOptions(ctx workflow.Context, timeout time.Duration, nonRetryable ...string) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		TaskQueue:           GPUTaskQueue,
		StartToCloseTimeout: timeout,
		RetryPolicy:         baseRetryPolicy(nonRetryable...),
	})
}

// RunPipeline implements spec component 4.E inline inside the calling
// workflow (invoked directly by the Query Orchestrator, not as a child
// workflow — spec 4.F: "run Pipeline Runner inline with request fields").
// Activities are addressed by the registered name constants in types.go,
// matching the teacher's jobrun.ActivityTick pattern: the worker process
// registers a real *activities.Activities method under that name, and
// workflow code never touches the receiver itself.
func RunPipeline(ctx workflow.Context, req QueryRequest) (PipelineReport, error) {
	slug := naming.Slug(req.Query)

	searchCtx := cpuOptions(ctx, activities.Timeouts.Search, errkind.NoCandidates)
	var urls []string
	if err := workflow.ExecuteActivity(searchCtx, ActivitySearch, req.Query, req.Limit, req.MaxDurationMinutes, req.MaxAgeDays).Get(ctx, &urls); err != nil {
		var appErr *temporal.ApplicationError
		if temporalAs(err, &appErr) && appErr.Type() == errkind.NoCandidates {
			return buildEmptyReport(ctx, req, slug)
		}
		return PipelineReport{}, err
	}

	urls = dedupeURLs(urls)

	report := PipelineReport{Dispatched: len(urls)}
	var completed []combined.CompletedVideo

	parallelism := req.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	for start := 0; start < len(urls); start += parallelism {
		end := start + parallelism
		if end > len(urls) {
			end = len(urls)
		}
		chunk := urls[start:end]

		futures := make([]workflow.Future, len(chunk))
		for i, url := range chunk {
			idx := start + i
			futures[i] = runSubPipelineAsync(ctx, req, slug, url, idx)
		}
		for i, f := range futures {
			var result subPipelineResult
			err := f.Get(ctx, &result)
			if err != nil {
				report.Failed = append(report.Failed, FailureRecord{
					PipelineID: subPipelineID(slug, chunk[i], start+i),
					URL:        chunk[i],
					Error:      err.Error(),
				})
				continue
			}
			if result.Failure != nil {
				report.Failed = append(report.Failed, *result.Failure)
				continue
			}
			report.Completed++
			completed = append(completed, combined.CompletedVideo{VideoObject: result.VideoKey})
		}
	}

	combinedCtx := cpuOptions(ctx, activities.Timeouts.BuildCombined)
	var out combined.Output
	if err := workflow.ExecuteActivity(combinedCtx, ActivityBuildCombined, req.Query, completed).Get(ctx, &out); err != nil {
		return PipelineReport{}, err
	}
	report.CombinedOutput = out

	refreshCtx := cpuOptions(ctx, activities.Timeouts.RefreshIndex)
	_ = workflow.ExecuteActivity(refreshCtx, ActivityRefreshIndex).Get(ctx, nil) // best-effort, never fatal (spec 4.D)

	return report, nil
}

// subPipelineResult is the value runSubPipelineAsync's future settles with:
// either a successful VideoKey, or a Failure record for an isolated failure
// that must not abort sibling sub-pipelines (spec 4.E edge policy).
type subPipelineResult struct {
	VideoKey string
	Failure  *FailureRecord
}

// runSubPipelineAsync schedules one URL's download→transcribe→summarize
// chain as a workflow coroutine, returning a Future the caller awaits
// alongside its chunk siblings. Using workflow.Go+Future (not a real
// goroutine) keeps the fan-out deterministic and replay-safe.
func runSubPipelineAsync(ctx workflow.Context, req QueryRequest, slug, url string, idx int) workflow.Future {
	future, settable := workflow.NewFuture(ctx)
	workflow.Go(ctx, func(ctx workflow.Context) {
		result, err := runSubPipeline(ctx, req, slug, url, idx)
		settable.Set(result, err)
	})
	return future
}

// runSubPipeline implements spec 4.E step 3: deterministic pipeline_id,
// download → transcribe → summarize, with a manifest status upsert after
// every stage. A LiveStreamRejected download error is recorded as failed
// without retry (the retry policy already marks it non-retryable); any other
// terminal error is recorded the same way so siblings are unaffected.
func runSubPipeline(ctx workflow.Context, req QueryRequest, slug, url string, idx int) (subPipelineResult, error) {
	pipelineID := subPipelineID(slug, url, idx)

	upsert := func(rec manifest.VideoRecord) {
		upsertCtx := cpuOptions(ctx, activities.Timeouts.Download)
		_ = workflow.ExecuteActivity(upsertCtx, ActivityUpsertVideoStatus, req.Query, slug, rec).Get(ctx, nil)
	}

	upsert(manifest.VideoRecord{URL: url, Status: manifest.StatusDiscovered, SearchQuery: req.Query})

	downloadCtx := cpuOptions(ctx, activities.Timeouts.Download, errkind.LiveStreamRejected)
	var videoKey string
	candidate := activities.Candidate{URL: url}
	if err := workflow.ExecuteActivity(downloadCtx, ActivityDownload, candidate, slug, req.Query).Get(ctx, &videoKey); err != nil {
		upsert(manifest.VideoRecord{URL: url, Status: manifest.StatusFailed, SearchQuery: req.Query, Error: err.Error()})
		return subPipelineResult{Failure: &FailureRecord{PipelineID: pipelineID, URL: url, Error: err.Error()}}, nil
	}
	upsert(manifest.VideoRecord{URL: url, ObjectKey: videoKey, Status: manifest.StatusDownloaded, SearchQuery: req.Query})

	transcribeCtx := gpuOptions(ctx, activities.Timeouts.Transcribe, errkind.TranscriptionError)
	var transcriptText string
	if err := workflow.ExecuteActivity(transcribeCtx, ActivityTranscribe, videoKey).Get(ctx, &transcriptText); err != nil {
		upsert(manifest.VideoRecord{URL: url, ObjectKey: videoKey, Status: manifest.StatusFailed, SearchQuery: req.Query, Error: err.Error()})
		return subPipelineResult{Failure: &FailureRecord{PipelineID: pipelineID, URL: url, Error: err.Error()}}, nil
	}
	upsert(manifest.VideoRecord{URL: url, ObjectKey: videoKey, Status: manifest.StatusTranscribed, SearchQuery: req.Query})

	summarizeCtx := gpuOptions(ctx, activities.Timeouts.Summarize)
	var summaryResult activities.SummarizeResult
	if err := workflow.ExecuteActivity(summarizeCtx, ActivitySummarize, videoKey, transcriptText, req.Query).Get(ctx, &summaryResult); err != nil {
		upsert(manifest.VideoRecord{URL: url, ObjectKey: videoKey, Status: manifest.StatusFailed, SearchQuery: req.Query, Error: err.Error()})
		return subPipelineResult{Failure: &FailureRecord{PipelineID: pipelineID, URL: url, Error: err.Error()}}, nil
	}

	keywordTerms := make([]string, len(summaryResult.Keywords))
	for i, k := range summaryResult.Keywords {
		keywordTerms[i] = k.Term
	}
	upsert(manifest.VideoRecord{
		URL: url, ObjectKey: videoKey, Status: manifest.StatusSummarized,
		SearchQuery: req.Query, Summary: summaryResult.Summary, Keywords: keywordTerms,
	})

	return subPipelineResult{VideoKey: videoKey}, nil
}

// subPipelineID derives spec 4.E's "pipeline_id = video-<slug>-<video_id>-<idx>"
// without a platform-assigned video_id available pre-download: a stable FNV
// hash of the URL stands in for video_id so the id stays deterministic across
// workflow replay (no math/rand, no time.Now).
func subPipelineID(slug, url string, idx int) string {
	return fmt.Sprintf("video-%s-%s-%d", slug, fnv32(url), idx)
}

func fnv32(s string) string {
	const offset32 = 2166136261
	const prime32 = 16777619
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return fmt.Sprintf("%08x", h)
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// buildEmptyReport implements spec 4.E step 1's empty-search path: write an
// empty combined artifact and return without dispatching anything.
func buildEmptyReport(ctx workflow.Context, req QueryRequest, slug string) (PipelineReport, error) {
	combinedCtx := cpuOptions(ctx, activities.Timeouts.BuildCombined)
	var out combined.Output
	if err := workflow.ExecuteActivity(combinedCtx, ActivityBuildCombined, req.Query, []combined.CompletedVideo{}).Get(ctx, &out); err != nil {
		return PipelineReport{}, err
	}
	return PipelineReport{CombinedOutput: out}, nil
}

func temporalAs(err error, target **temporal.ApplicationError) bool {
	for err != nil {
		if e, ok := err.(*temporal.ApplicationError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
