package engine

import "time"

// Cancel marks a job cancelled, draining its queued work units and
// clearing outstanding heartbeats. Idempotent: cancelling an already
// cancelled job is a no-op.
func (e *Engine) Cancel(customerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[customerID]
	if !ok {
		return ErrUnknownJob
	}
	if job.IsCancelled {
		return nil
	}

	e.queue.drop(customerID)

	job.PendingWorkers = 0
	job.IsCancelled = true
	job.Heartbeats = make(map[string]time.Time)

	now := e.now()
	feed := e.feedFor(customerID)
	feed.append(ProgressUpdate{
		CustomerID: customerID,
		Text:       "job cancelled",
		Timestamp:  now,
		Status:     StatusCancelled,
	})

	return nil
}

// IsCancelled reports a job's cancellation flag, polled periodically by
// workers between units of work.
func (e *Engine) IsCancelled(customerID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[customerID]
	if !ok {
		return false, ErrUnknownJob
	}
	return job.IsCancelled, nil
}
