package engine

import "fmt"

// Sweep performs one fault-detector tick. It walks every job that is
// neither completed nor cancelled and reclaims any slot whose heartbeat has
// gone stale, re-enqueuing a fresh WorkUnit so another worker can pick it
// up. Intended to be called periodically (by cmd/server's gocron
// scheduler) at Config.SweepInterval.
func (e *Engine) Sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	timeout := e.heartbeatTimeout()

	for customerID, job := range e.jobs {
		if job.IsCompleted || job.IsCancelled {
			continue
		}
		for workerID, lastBeat := range job.Heartbeats {
			if now.Sub(lastBeat) <= timeout {
				continue
			}

			shardIndex := job.WorkerShard[workerID]
			job.AssignedWorkers = removeWorker(job.AssignedWorkers, workerID)
			delete(job.WorkerShard, workerID)
			delete(job.Heartbeats, workerID)
			delete(job.Results, workerID)
			delete(job.Usage, workerID)
			delete(job.OutputFiles, workerID)
			job.TimedOutCount++
			// pendingWorkers is left untouched: it counts outstanding
			// submissions, not in-flight rescues — TimedOutCount covers the latter.

			// Re-enqueue the exact shard the timed-out worker held: the next
			// claimer's dataset slice is keyed by ShardIndex, not by
			// AssignedWorkers' length, so removing a non-tail worker here can
			// never hand out someone else's shard.
			e.queue.enqueue(WorkUnit{CustomerID: customerID, TaskID: job.TaskID, ShardIndex: shardIndex})

			feed := e.feedFor(customerID)
			feed.append(ProgressUpdate{
				CustomerID: customerID,
				Text:       fmt.Sprintf("worker %s timed out; reassigning", workerID),
				Timestamp:  now,
				Status:     StatusProgress,
				Progress:   newProgress(len(job.Results), job.NumWorkers),
			})

			workerID := workerID
			e.audit(func() error {
				if err := e.auditor.IncrCounter(bgCtx(), workerID, CounterTaskFailed, 1); err != nil {
					return err
				}
				if err := e.auditor.IncrCounter(bgCtx(), workerID, CounterTaskRunning, -1); err != nil {
					return err
				}
				return e.auditor.IncrCounter(bgCtx(), workerID, CounterTaskPending, -1)
			}, "incr_counter_timeout")
		}
	}
}

func removeWorker(workers []string, workerID string) []string {
	out := workers[:0:0]
	for _, w := range workers {
		if w == workerID {
			continue
		}
		out = append(out, w)
	}
	return out
}
