// Package workflow implements the two durable Temporal workflows this system
// runs (spec components 4.E Pipeline Runner and 4.F Query Orchestrator).
// Every exported function here is workflow code: deterministic, replay-safe,
// no direct I/O, no clocks or RNG outside workflow.Now/workflow.SideEffect.
// All actual work happens in internal/activities via workflow.ExecuteActivity.
package workflow

import (
	"fmt"

	"github.com/oxbowlabs/vqueryd/internal/combined"
)

const (
	// OrchestratorWorkflowName is the workflow type registered for the Query
	// Orchestrator (spec 4.F). One long-lived run per query-intake instance.
	OrchestratorWorkflowName = "query_orchestrator"

	// SignalEnqueue carries a QueryRequest into a running orchestrator.
	SignalEnqueue = "enqueue"

	// QueryPendingCount answers the read-only pending_count() query.
	QueryPendingCount = "pending_count"

	// maxSeen bounds the orchestrator's deduplication set (spec 4.F: "seen:
	// bounded set of request_ids, size ≤ 1000, FIFO eviction").
	maxSeen = 1000

	// continueAsNewBatchThreshold is spec 4.F's processed_count cutover:
	// "When processed_count ≥ 100 AND queue.empty, continue-as-new."
	continueAsNewBatchThreshold = 100

	// CPUTaskQueue and GPUTaskQueue name the two worker classes spec section 5
	// requires: "CPU queue (search, download, refresh_index, manifest ops,
	// combined builder) and GPU queue (transcribe, summarize)." Both the
	// Pipeline Runner (this package, via per-activity TaskQueue overrides) and
	// internal/temporalrt (worker registration) reference these same names.
	CPUTaskQueue = "vqueryd-cpu"
	GPUTaskQueue = "vqueryd-gpu"

	// OrchestratorTaskQueue is where the Query Orchestrator workflow itself
	// is scheduled (distinct from the activity queues above, which only
	// carry activity tasks).
	OrchestratorTaskQueue = "vqueryd-orchestrator"
)

// Activity name constants, registered by internal/temporalrt and referenced
// by workflow.ExecuteActivity here by name (not method value), matching the
// teacher's jobrun.ActivityTick pattern of naming activities explicitly at
// both registration and call sites.
const (
	ActivitySearch            = "search"
	ActivityDownload          = "download"
	ActivityTranscribe        = "transcribe"
	ActivitySummarize         = "summarize"
	ActivityBuildCombined     = "build_combined"
	ActivityRefreshIndex      = "refresh_index"
	ActivityUpsertVideoStatus = "upsert_video_status"
)

// QueryRequest is the signal payload spec section 6 names for the Request
// API: "{request_id, query, limit, parallelism?, max_duration_minutes?,
// max_age_days?, category?}".
type QueryRequest struct {
	RequestID          string `json:"request_id"`
	Query              string `json:"query"`
	Limit              int    `json:"limit"`
	Parallelism        int    `json:"parallelism,omitempty"`
	MaxDurationMinutes int    `json:"max_duration_minutes,omitempty"`
	MaxAgeDays         int    `json:"max_age_days,omitempty"`
	Category           string `json:"category,omitempty"`
}

// Validate enforces spec section 3's QueryRequest invariants and fills in the
// documented defaults for the optional fields, matching spec 5's bound
// ("per-batch chunk size = parallelism (≤4)").
func (r *QueryRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("workflow: request_id is required")
	}
	if r.Query == "" {
		return fmt.Errorf("workflow: query is required")
	}
	if r.Limit < 1 || r.Limit > 50 {
		return fmt.Errorf("workflow: limit must be in [1,50], got %d", r.Limit)
	}
	if r.Parallelism == 0 {
		r.Parallelism = 1
	}
	if r.Parallelism < 1 || r.Parallelism > 4 {
		return fmt.Errorf("workflow: parallelism must be in [1,4], got %d", r.Parallelism)
	}
	if r.MaxDurationMinutes == 0 {
		r.MaxDurationMinutes = 180
	}
	if r.MaxDurationMinutes < 1 || r.MaxDurationMinutes > 180 {
		return fmt.Errorf("workflow: max_duration_minutes must be in [1,180], got %d", r.MaxDurationMinutes)
	}
	if r.MaxAgeDays < 0 {
		return fmt.Errorf("workflow: max_age_days must be >= 0, got %d", r.MaxAgeDays)
	}
	return nil
}

// OrchestratorState is the small snapshot carried across a continue-as-new
// boundary: the current queue (preserved per spec scenario 6: "pending
// requests queued just before the cutover are preserved in the new run"),
// the FIFO-bounded seen set, and processed_count reset to 0 by the caller
// before the new run starts.
type OrchestratorState struct {
	Queue          []QueryRequest `json:"queue"`
	Seen           []string       `json:"seen"` // ordered oldest-first, for FIFO eviction
	ProcessedCount int            `json:"processed_count"`
}

// FailureRecord is one entry in a PipelineReport's Failed list.
type FailureRecord struct {
	PipelineID string `json:"pipeline_id"`
	URL        string `json:"url"`
	Error      string `json:"error"`
}

// PipelineReport is the Pipeline Runner's return value (spec 4.E: "Returns a
// report {dispatched, completed, failed:[{pipeline_id,url,error}],
// combined_output}").
type PipelineReport struct {
	Dispatched     int             `json:"dispatched"`
	Completed      int             `json:"completed"`
	Failed         []FailureRecord `json:"failed"`
	CombinedOutput combined.Output `json:"combined_output"`
}
