package workflow

import (
	"go.temporal.io/sdk/workflow"
)

// Orchestrator implements spec component 4.F: a single durable workflow per
// orchestrator instance holding a signal-fed request queue, a bounded
// dedupe set, and a processed_count that triggers continue-as-new once a
// batch threshold is crossed and the queue has drained. The run loop shape
// (wait on signals, act, maybe continue-as-new) follows the teacher's
// jobrun.Workflow: a for-loop that blocks on the enqueue signal channel when
// the queue is empty, drains any buffered signals without blocking, and ends
// in workflow.NewContinueAsNewError.
func Orchestrator(ctx workflow.Context, state OrchestratorState) error {
	log := workflow.GetLogger(ctx)

	seen := make(map[string]bool, len(state.Seen))
	for _, id := range state.Seen {
		seen[id] = true
	}
	queue := append([]QueryRequest(nil), state.Queue...)
	seenOrder := append([]string(nil), state.Seen...)
	processedCount := state.ProcessedCount

	err := workflow.SetQueryHandler(ctx, QueryPendingCount, func() (int, error) {
		return len(queue), nil
	})
	if err != nil {
		return err
	}

	enqueueCh := workflow.GetSignalChannel(ctx, SignalEnqueue)

	for {
		for len(queue) == 0 {
			var req QueryRequest
			enqueueCh.Receive(ctx, &req)
			applyEnqueue(req, &queue, &seenOrder, seen)
			drainSignals(enqueueCh, &queue, &seenOrder, seen) // pick up any more queued alongside it
		}

		drainSignals(enqueueCh, &queue, &seenOrder, seen) // pick up anything enqueued while busy

		req := queue[0]
		queue = queue[1:]

		report, runErr := RunPipeline(ctx, req)
		if runErr != nil {
			// spec 4.F failure semantics: "Orchestrator never fails due to a
			// single batch; on batch error it logs and continues."
			log.Error("pipeline run failed, continuing with next queued request",
				"request_id", req.RequestID, "query", req.Query, "error", runErr.Error())
		} else {
			log.Info("pipeline run completed",
				"request_id", req.RequestID, "dispatched", report.Dispatched,
				"completed", report.Completed, "failed", len(report.Failed))
		}
		processedCount++

		drainSignals(enqueueCh, &queue, &seenOrder, seen) // requests that arrived during the run must not be lost at the cutover
		if processedCount >= continueAsNewBatchThreshold && len(queue) == 0 {
			return workflow.NewContinueAsNewError(ctx, Orchestrator, OrchestratorState{
				Queue:          queue,
				Seen:           seenOrder,
				ProcessedCount: 0,
			})
		}
	}
}

// drainSignals applies every enqueue signal currently buffered on ch without
// blocking.
func drainSignals(ch workflow.ReceiveChannel, queue *[]QueryRequest, seenOrder *[]string, seen map[string]bool) {
	for {
		var req QueryRequest
		ok := ch.ReceiveAsync(&req)
		if !ok {
			return
		}
		applyEnqueue(req, queue, seenOrder, seen)
	}
}

// applyEnqueue implements spec 4.F's signal handler: "validates, drops if
// request_id ∈ seen, otherwise appends and marks seen", plus the FIFO
// eviction that keeps seen bounded at maxSeen entries.
func applyEnqueue(req QueryRequest, queue *[]QueryRequest, seenOrder *[]string, seen map[string]bool) {
	if err := req.Validate(); err != nil {
		return
	}
	if seen[req.RequestID] {
		return
	}
	seen[req.RequestID] = true
	*seenOrder = append(*seenOrder, req.RequestID)
	*queue = append(*queue, req)

	for len(*seenOrder) > maxSeen {
		evict := (*seenOrder)[0]
		*seenOrder = (*seenOrder)[1:]
		delete(seen, evict)
	}
}
