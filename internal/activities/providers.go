// Package activities wires the typed, independently schedulable units of
// work named in spec component 4.D onto Temporal's activity runtime. Each
// external collaborator (scraper, downloader, STT engine) is a narrow
// interface here; a concrete implementation against the real platform is
// someone else's job — this repo only needs a stable contract and a worker
// process that can call it, same as the teacher treats job handlers as
// pluggable behind jobrt.Registry.
package activities

import (
	"context"
	"time"
)

// Candidate is one scraper hit before download.
type Candidate struct {
	URL             string
	DurationSeconds int
	IsLive          bool
	IsUpcoming      bool
}

// Scraper discovers candidate video URLs for a query. Over-fetch and
// filtering policy live in the search activity (activities.go), not here —
// this interface only has to return what the platform actually has.
type Scraper interface {
	Search(ctx context.Context, query string, fetchLimit int) ([]Candidate, error)
}

// DownloadResult names the artifacts a successful download produced.
type DownloadResult struct {
	VideoKey     string
	ThumbnailKey string
	DurationSec  float64
}

// Downloader retrieves one candidate's media and sidecars. Implementations
// own local temp cleanup on every exit path; this repo only depends on the
// returned canonical keys.
type Downloader interface {
	Download(ctx context.Context, candidate Candidate, slug, searchQuery string) (DownloadResult, error)
}

// TranscriptSegment mirrors the wire schema in spec section 6.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptResult is what Transcribe returns before keyword/summary fields
// are merged in by the summarize activity.
type TranscriptResult struct {
	Text     string
	Language string
	Segments []TranscriptSegment
}

// Transcriber runs STT against a downloaded video (GPU preferred, CPU
// fallback per spec 5). Device/model caching is the implementation's
// concern; this repo only calls it and persists the result.
type Transcriber interface {
	Transcribe(ctx context.Context, videoKey string) (TranscriptResult, error)
}

// IndexRefresher regenerates the static catalog or notifies a remote
// endpoint. Spec 4.D: best-effort, never fatal to the batch.
type IndexRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Timeouts mirrors the start_to_close_timeout table in spec section 5, so
// the Pipeline Runner's activity options (internal/workflow) and any test
// harness share one source of truth instead of duplicating magic durations.
var Timeouts = struct {
	Search        time.Duration
	Download      time.Duration
	Transcribe    time.Duration
	Summarize     time.Duration
	BuildCombined time.Duration
	RefreshIndex  time.Duration
}{
	Search:        10 * time.Minute,
	Download:      30 * time.Minute,
	Transcribe:    60 * time.Minute,
	Summarize:     10 * time.Minute,
	BuildCombined: 20 * time.Minute,
	RefreshIndex:  2 * time.Minute,
}
