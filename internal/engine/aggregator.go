package engine

import "fmt"

// SubmitOutcome enumerates the results of a worker's submission.
type SubmitOutcome string

const (
	SubmitOK           SubmitOutcome = "ok"
	SubmitUnknownJob   SubmitOutcome = "unknown-job"
	SubmitCancelled    SubmitOutcome = "cancelled"
	SubmitUnauthorized SubmitOutcome = "unauthorized"
	SubmitDuplicate    SubmitOutcome = "duplicate"
)

// SubmitResult is returned to a worker's result submission.
type SubmitResult struct {
	Outcome   SubmitOutcome
	Completed bool
}

// Submit validates a worker's result submission against the job's current
// state, in order, returning on the first failure: unknown job, cancelled
// job, an unassigned worker, then a duplicate submission from an already-
// recorded worker. Only once all four pass does it record the result.
func (e *Engine) Submit(workerID, customerID string, result, usage []byte, outputFiles map[string][]byte) SubmitResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[customerID]
	if !ok {
		return SubmitResult{Outcome: SubmitUnknownJob}
	}
	if job.IsCancelled {
		return SubmitResult{Outcome: SubmitCancelled}
	}
	if !contains(job.AssignedWorkers, workerID) {
		return SubmitResult{Outcome: SubmitUnauthorized}
	}
	if _, already := job.Results[workerID]; already {
		return SubmitResult{Outcome: SubmitDuplicate}
	}

	now := e.now()

	job.Results[workerID] = result
	job.Usage[workerID] = usage
	job.OutputFiles[workerID] = outputFiles
	delete(job.Heartbeats, workerID)
	if job.PendingWorkers > 0 {
		job.PendingWorkers--
	}

	submitted := len(job.Results)
	feed := e.feedFor(customerID)
	feed.append(ProgressUpdate{
		CustomerID: customerID,
		Text:       fmt.Sprintf("worker %s submitted, %d/%d", workerID, submitted, job.NumWorkers),
		Timestamp:  now,
		Status:     StatusProgress,
		Progress:   newProgress(submitted, job.NumWorkers),
	})

	if submitted == job.NumWorkers && len(job.AssignedWorkers) == job.NumWorkers {
		job.IsCompleted = true
		job.CompletedAt = now
		if !job.CompletionNotified {
			feed.append(ProgressUpdate{
				CustomerID:   customerID,
				Text:         "job completed",
				Timestamp:    now,
				Status:       StatusCompleted,
				IsCompletion: true,
				Progress:     newProgress(submitted, job.NumWorkers),
			})
			job.CompletionNotified = true
		}
	}

	rec := parseUsage(workerID, customerID, usage, now)
	e.audit(func() error {
		if err := e.auditor.RecordUsage(bgCtx(), rec); err != nil {
			return err
		}
		if err := e.auditor.IncrCounter(bgCtx(), workerID, CounterTaskCompleted, 1); err != nil {
			return err
		}
		if err := e.auditor.IncrCounter(bgCtx(), workerID, CounterTaskRunning, -1); err != nil {
			return err
		}
		return e.auditor.IncrCounter(bgCtx(), workerID, CounterTaskPending, -1)
	}, "incr_counter_submit")

	return SubmitResult{Outcome: SubmitOK, Completed: job.IsCompleted}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
