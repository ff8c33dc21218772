package workflow

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/oxbowlabs/vqueryd/internal/activities"
	"github.com/oxbowlabs/vqueryd/internal/combined"
)

// mockPipelineActivities wires OnActivity expectations for every activity
// name RunPipeline calls, so Orchestrator tests can drive a full
// enqueue→pop→run-inline→continue-as-new cycle without a real worker.
func mockPipelineActivities(env *testsuite.TestWorkflowEnvironment, urls []string) {
	env.OnActivity(ActivitySearch, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(urls, nil)
	env.OnActivity(ActivityUpsertVideoStatus, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	env.OnActivity(ActivityDownload, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("videos/q/v0.mp4", nil)
	env.OnActivity(ActivityTranscribe, mock.Anything, mock.Anything).
		Return("hello world", nil)
	env.OnActivity(ActivitySummarize, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(activities.SummarizeResult{Summary: "a short summary"}, nil)
	env.OnActivity(ActivityBuildCombined, mock.Anything, mock.Anything, mock.Anything).
		Return(combined.Output{Status: "ok", Count: len(urls)}, nil)
	env.OnActivity(ActivityRefreshIndex, mock.Anything).
		Return("", nil)
}

func TestOrchestrator_RunsOneRequestThenWaitsWithoutContinueAsNew(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	mockPipelineActivities(env, []string{"https://example.com/watch?v=abc"})

	req := QueryRequest{RequestID: "r1", Query: "gophers", Limit: 1}
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalEnqueue, req)
	}, time.Millisecond)
	env.SetWorkflowRunTimeout(5 * time.Second)
	env.SetTestTimeout(10 * time.Second)

	// Orchestrator blocks forever once its single request drains (no more
	// signals arrive), so bound the run with a timer-based cancel instead of
	// expecting natural completion.
	env.RegisterDelayedCallback(func() {
		env.CancelWorkflow()
	}, 2*time.Second)

	env.ExecuteWorkflow(Orchestrator, OrchestratorState{})
	require.True(t, env.IsWorkflowCompleted())
}

func TestApplyEnqueue_DropsDuplicateRequestID(t *testing.T) {
	queue := []QueryRequest{}
	seenOrder := []string{}
	seen := map[string]bool{}

	req := QueryRequest{RequestID: "dup", Query: "x", Limit: 1}
	applyEnqueue(req, &queue, &seenOrder, seen)
	applyEnqueue(req, &queue, &seenOrder, seen)

	require.Len(t, queue, 1)
	require.Len(t, seenOrder, 1)
}

func TestApplyEnqueue_DropsInvalidRequest(t *testing.T) {
	queue := []QueryRequest{}
	seenOrder := []string{}
	seen := map[string]bool{}

	applyEnqueue(QueryRequest{RequestID: "r1"}, &queue, &seenOrder, seen) // missing query
	require.Empty(t, queue)
	require.Empty(t, seenOrder)
}

func TestApplyEnqueue_EvictsOldestWhenSeenExceedsBound(t *testing.T) {
	queue := []QueryRequest{}
	seenOrder := make([]string, 0, maxSeen+1)
	seen := map[string]bool{}

	for i := 0; i < maxSeen+1; i++ {
		id := requestIDFor(i)
		applyEnqueue(QueryRequest{RequestID: id, Query: "x", Limit: 1}, &queue, &seenOrder, seen)
	}

	require.Len(t, seenOrder, maxSeen)
	require.False(t, seen[requestIDFor(0)], "oldest entry must have been evicted")
	require.True(t, seen[requestIDFor(maxSeen)])
}

func requestIDFor(i int) string {
	return "req-" + strconv.Itoa(i)
}
