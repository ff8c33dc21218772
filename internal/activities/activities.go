package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/oxbowlabs/vqueryd/internal/activities/errkind"
	"github.com/oxbowlabs/vqueryd/internal/combined"
	"github.com/oxbowlabs/vqueryd/internal/keyword"
	"github.com/oxbowlabs/vqueryd/internal/llm"
	"github.com/oxbowlabs/vqueryd/internal/manifest"
	"github.com/oxbowlabs/vqueryd/internal/naming"
	"github.com/oxbowlabs/vqueryd/internal/objectstore"
	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
	"github.com/oxbowlabs/vqueryd/internal/transcript"
)

// Activities bundles every activity function this system registers, mirroring
// the teacher's single Activities struct in internal/temporalx/jobrun/
// activities.go: one receiver, explicit constructor-injected dependencies, a
// heartbeat helper shared across long-running methods.
type Activities struct {
	Log         *logger.Logger
	Store       objectstore.Store
	Manifest    *manifest.Store
	Scraper     Scraper
	Downloader  Downloader
	Transcriber Transcriber
	LLM         llm.Client
	Index       IndexRefresher
	Combined    *combined.Builder
}

// toTemporalError turns an *errkind.Error into a temporal.ApplicationError
// whose Type is the error's named condition (for the conditions the retry
// policy table special-cases: LiveStreamRejected, NoCandidates,
// TranscriptionError) or its Kind otherwise, so
// RetryPolicy.NonRetryableErrorTypes can match on either without the
// workflow needing to know about errkind at all. Errors that aren't
// *errkind.Error pass through unchanged and fall back to Temporal's default
// (retryable) application-error handling.
func toTemporalError(err error) error {
	if err == nil {
		return nil
	}
	var e *errkind.Error
	if !errkind.As(err, &e) {
		return err
	}
	errType := string(e.Kind())
	switch e.Op() {
	case errkind.LiveStreamRejected, errkind.NoCandidates, errkind.TranscriptionError:
		errType = e.Op()
	}
	return temporal.NewApplicationError(e.Error(), errType)
}

// Search implements spec 4.D's search contract: over-fetch up to
// min(10*limit, 50), filter by duration/live/shape, dedupe, truncate to
// limit.
func (a *Activities) Search(ctx context.Context, query string, limit, maxDurationMinutes, maxAgeDays int) ([]string, error) {
	stop := a.heartbeat(ctx)
	defer stop()

	fetchLimit := limit * 10
	if fetchLimit > 50 {
		fetchLimit = 50
	}
	candidates, err := a.Scraper.Search(ctx, query, fetchLimit)
	if err != nil {
		return nil, toTemporalError(errkind.Transientf("search", err))
	}

	maxDurationSec := maxDurationMinutes * 60
	seen := make(map[string]bool)
	urls := make([]string, 0, limit)
	for _, c := range candidates {
		if c.IsLive || c.IsUpcoming {
			continue
		}
		if maxDurationSec > 0 && c.DurationSeconds > maxDurationSec {
			continue
		}
		if !isWatchURL(c.URL) {
			continue
		}
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		urls = append(urls, c.URL)
		if len(urls) >= limit {
			break
		}
	}

	if len(urls) == 0 {
		return nil, toTemporalError(errkind.Invalidf(errkind.NoCandidates, fmt.Errorf("search %q returned no admissible candidates", query)))
	}
	return urls, nil
}

func isWatchURL(u string) bool {
	return len(u) > 0 && !isLiveUpcomingMarker(u)
}

// isLiveUpcomingMarker is a defensive guard for scrapers that fail to set
// Candidate.IsLive/IsUpcoming but still encode it in the URL shape (e.g. a
// "/live/" path segment some platforms use for in-progress streams).
func isLiveUpcomingMarker(u string) bool {
	return containsSubstr(u, "/live/") && !containsSubstr(u, "/watch")
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// Download implements spec 4.D's download contract. Idempotent by
// destination key: calling it twice for the same candidate+slug writes the
// same canonical keys.
func (a *Activities) Download(ctx context.Context, candidate Candidate, slug, searchQuery string) (string, error) {
	stop := a.heartbeat(ctx)
	defer stop()

	if candidate.IsLive || candidate.IsUpcoming {
		return "", toTemporalError(errkind.Externalf(errkind.LiveStreamRejected, fmt.Errorf("candidate %s is live or upcoming", candidate.URL)))
	}

	res, err := a.Downloader.Download(ctx, candidate, slug, searchQuery)
	if err != nil {
		return "", toTemporalError(errkind.Transientf("download", err))
	}
	return res.VideoKey, nil
}

// Transcribe implements spec 4.D's transcribe contract: run STT, write the
// transcript JSON at the canonical key, return plain text.
func (a *Activities) Transcribe(ctx context.Context, videoKey string) (string, error) {
	stop := a.heartbeat(ctx)
	defer stop()

	result, err := a.Transcriber.Transcribe(ctx, videoKey)
	if err != nil {
		return "", toTemporalError(errkind.New(errkind.External, errkind.TranscriptionError, err))
	}

	key := naming.TranscriptKeyFromVideoKey(videoKey)
	if key == "" {
		return "", toTemporalError(errkind.Invalidf("transcribe", fmt.Errorf("cannot derive transcript key from %q", videoKey)))
	}

	segments := make([]transcript.Segment, len(result.Segments))
	for i, s := range result.Segments {
		segments[i] = transcript.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	doc := transcript.Transcript{Text: result.Text, Language: result.Language, Segments: segments}
	if err := a.Store.PutJSON(ctx, key, doc); err != nil {
		return "", toTemporalError(errkind.Transientf("transcribe", err))
	}
	return result.Text, nil
}

// SummarizeResult is what Summarize returns and merges into the transcript
// JSON and manifest.
type SummarizeResult struct {
	Summary     string
	Keywords    []keyword.Keyword
	SearchQuery string
}

// Summarize implements spec 4.D's summarize contract: language-pinned LLM
// prompt, hallucination-filtered keywords, deterministic fallback.
func (a *Activities) Summarize(ctx context.Context, videoKey, transcriptText, query string) (SummarizeResult, error) {
	stop := a.heartbeat(ctx)
	defer stop()

	candidates := keyword.Extract(ctx, a.LLM, query, transcriptText, 10)

	summary, err := a.summarizeText(ctx, transcriptText, query)
	if err != nil {
		a.Log.Warn("summarize: llm text generation failed, continuing with keywords only", "video_key", videoKey, "error", err.Error())
		summary = ""
	}

	key := naming.TranscriptKeyFromVideoKey(videoKey)
	var doc transcript.Transcript
	if key != "" {
		if gerr := a.Store.GetJSON(ctx, key, &doc); gerr != nil && !objectstore.IsNotFound(gerr) {
			return SummarizeResult{}, toTemporalError(errkind.Transientf("summarize", gerr))
		}
		doc.Summary = summary
		doc.SearchQuery = query
		doc.Keywords = toWireKeywords(candidates)
		if perr := a.Store.PutJSON(ctx, key, doc); perr != nil {
			return SummarizeResult{}, toTemporalError(errkind.Transientf("summarize", perr))
		}
	}

	return SummarizeResult{Summary: summary, Keywords: candidates, SearchQuery: query}, nil
}

func (a *Activities) summarizeText(ctx context.Context, text, query string) (string, error) {
	if a.LLM == nil {
		return "", fmt.Errorf("summarize: no llm client configured")
	}
	lang := "English"
	if transcript.CJKRatio(query) > 0.25 {
		lang = "Chinese"
	}
	system := "Summarize the following video transcript in 2-3 sentences, in " + lang + "."
	return a.LLM.GenerateText(ctx, system, text)
}

func toWireKeywords(ks []keyword.Keyword) []transcript.Keyword {
	out := make([]transcript.Keyword, len(ks))
	for i, k := range ks {
		out[i] = transcript.Keyword{Word: k.Term, Count: k.Count, Score: int(k.Score * 100)}
	}
	return out
}

// RefreshIndex implements spec 4.D: best-effort, never fatal to the batch.
func (a *Activities) RefreshIndex(ctx context.Context) (string, error) {
	if a.Index == nil {
		return "", nil
	}
	result, err := a.Index.Refresh(ctx)
	if err != nil {
		a.Log.Warn("refresh_index failed; continuing batch", "error", err.Error())
		return "", nil
	}
	return result, nil
}

// UpsertVideoStatus is a thin wrapper the Pipeline Runner calls after each
// sub-pipeline stage to record the transition (spec 4.E step 3).
func (a *Activities) UpsertVideoStatus(ctx context.Context, query, slug string, rec manifest.VideoRecord) error {
	_, err := a.Manifest.Upsert(ctx, slug, manifest.Partial{
		Query:  query,
		Videos: []manifest.VideoRecord{rec},
	})
	if err != nil {
		if err == manifest.ErrConflictLocked {
			return toTemporalError(errkind.Conflictf("upsert_video_status", err))
		}
		return toTemporalError(errkind.Transientf("upsert_video_status", err))
	}
	return nil
}

// BuildCombined implements spec component 4.I as a single activity: the
// Pipeline Runner calls this once per batch after every sub-pipeline has
// reached a terminal state, passing the videos that made it to
// StatusSummarized.
func (a *Activities) BuildCombined(ctx context.Context, query string, completed []combined.CompletedVideo) (combined.Output, error) {
	stop := a.heartbeat(ctx)
	defer stop()

	out, err := a.Combined.Build(ctx, query, completed)
	if err != nil {
		return combined.Output{}, toTemporalError(errkind.Transientf("build_combined", err))
	}
	return out, nil
}

// heartbeat mirrors the teacher's startHeartbeat: a ticking goroutine that
// calls activity.RecordHeartbeat so Temporal doesn't mark a long-running
// activity as stuck.
func (a *Activities) heartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
