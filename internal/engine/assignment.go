package engine

import "fmt"

// ClaimOutcome enumerates the three shapes Claim can return.
type ClaimOutcome string

const (
	ClaimAssigned  ClaimOutcome = "assigned"
	ClaimNoWork    ClaimOutcome = "no-work"
	ClaimCancelled ClaimOutcome = "cancelled"
)

// ClaimResult is returned to a worker's claim request.
type ClaimResult struct {
	Outcome     ClaimOutcome
	TaskID      string
	CustomerID  string
	Code        []byte
	Requirement []byte
	Dataset     []byte
	WorkerIndex int
	TotalWorkers int
}

// Claim pops the next work unit for workerID. It processes exactly one
// queue entry per call: an empty queue, a vanished job, a cancelled job,
// and a stale unit (raced against a rescue that already filled every slot)
// each return immediately rather than scanning further into the queue.
func (e *Engine) Claim(workerID string) ClaimResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	unit, ok := e.queue.claim()
	if !ok {
		return ClaimResult{Outcome: ClaimNoWork}
	}

	job, ok := e.jobs[unit.CustomerID]
	if !ok {
		return ClaimResult{Outcome: ClaimNoWork} // vanished job: discard this one unit
	}
	if job.IsCancelled {
		return ClaimResult{Outcome: ClaimCancelled}
	}

	if len(job.AssignedWorkers) >= job.NumWorkers {
		return ClaimResult{Outcome: ClaimNoWork} // stale unit from a race with a completed rescue
	}

	job.AssignedWorkers = append(job.AssignedWorkers, workerID)
	job.WorkerShard[workerID] = unit.ShardIndex
	now := e.now()
	job.Heartbeats[workerID] = now

	assigned := len(job.AssignedWorkers)
	feed := e.feedFor(unit.CustomerID)
	feed.append(ProgressUpdate{
		CustomerID: unit.CustomerID,
		Text:       fmt.Sprintf("worker %s assigned, %d/%d", workerID, assigned, job.NumWorkers),
		Timestamp:  now,
		Status:     StatusProgress,
		Progress:   newProgress(assigned, job.NumWorkers),
	})

	e.audit(func() error {
		if err := e.auditor.IncrCounter(bgCtx(), workerID, CounterTaskPending, 1); err != nil {
			return err
		}
		return e.auditor.IncrCounter(bgCtx(), workerID, CounterTaskRunning, 1)
	}, "incr_counter_claim")

	return ClaimResult{
		Outcome:      ClaimAssigned,
		TaskID:       unit.TaskID,
		CustomerID:   unit.CustomerID,
		Code:         job.Code,
		Requirement:  job.Requirement,
		Dataset:      job.DatasetShards[unit.ShardIndex],
		WorkerIndex:  unit.ShardIndex,
		TotalWorkers: job.NumWorkers,
	}
}
