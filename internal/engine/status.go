package engine

// StatusView is the response shape for the client-facing status poll.
type StatusView struct {
	Submitted    int
	Total        int
	Percentage   int
	IsCompleted  bool
	IsCancelled  bool
	CanDownload  bool
}

// Status reports a job's submission count and completion/cancellation
// state for client polling.
func (e *Engine) Status(customerID string) (StatusView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[customerID]
	if !ok {
		return StatusView{}, ErrUnknownJob
	}

	submitted := len(job.Results)
	p := newProgress(submitted, job.NumWorkers)
	return StatusView{
		Submitted:   p.Submitted,
		Total:       p.Total,
		Percentage:  p.Percentage,
		IsCompleted: job.IsCompleted,
		IsCancelled: job.IsCancelled,
		CanDownload: job.IsCompleted && !job.IsCancelled,
	}, nil
}

// UpdatesView is the response shape for the client-facing updates poll.
type UpdatesView struct {
	Updates     []ProgressUpdate
	Progress    *Progress
	IsCompleted bool
}

// Updates drains the customer's progress feed and reports current progress.
func (e *Engine) Updates(customerID string) (UpdatesView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[customerID]
	if !ok {
		return UpdatesView{}, ErrUnknownJob
	}

	feed := e.feedFor(customerID)
	entries := feed.drain(e.now())
	return UpdatesView{
		Updates:     entries,
		Progress:    newProgress(len(job.Results), job.NumWorkers),
		IsCompleted: job.IsCompleted,
	}, nil
}

// Heartbeat refreshes a worker's last-seen time for a job. Returns false
// without error when the job is cancelled or the worker is
// not assigned; the worker must then stop polling this slot.
func (e *Engine) Heartbeat(workerID, customerID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[customerID]
	if !ok {
		return false, ErrUnknownJob
	}
	if job.IsCancelled {
		return false, nil
	}
	if !contains(job.AssignedWorkers, workerID) {
		return false, nil
	}
	job.Heartbeats[workerID] = e.now()
	return true, nil
}

// DownloadableSnapshot returns a job snapshot suitable for building the
// result archive, or ErrNotReady/ErrCancelled: downloads are only gated in
// once a job is completed and never cancelled.
func (e *Engine) DownloadableSnapshot(customerID string) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[customerID]
	if !ok {
		return nil, ErrUnknownJob
	}
	if job.IsCancelled {
		return nil, ErrCancelled
	}
	if !job.IsCompleted {
		return nil, ErrNotReady
	}
	return job.snapshot(), nil
}
