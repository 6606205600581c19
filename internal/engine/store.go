package engine

import "time"

// splitShards splits data into n roughly-equal byte ranges: given a blob of
// length L and a desired shard count N, chunk = ceil(L/N); shard i is the
// byte range [i*chunk, min((i+1)*chunk, L)). An empty/absent blob yields N
// empty shards.
func splitShards(data []byte, n int) [][]byte {
	shards := make([][]byte, n)
	l := len(data)
	if l == 0 {
		for i := range shards {
			shards[i] = []byte{}
		}
		return shards
	}
	chunk := (l + n - 1) / n
	for i := 0; i < n; i++ {
		start := i * chunk
		if start > l {
			start = l
		}
		end := start + chunk
		if end > l {
			end = l
		}
		shards[i] = data[start:end]
	}
	return shards
}

// CreateJob allocates a new Job, splits the dataset into numWorkers shards,
// emits numWorkers WorkUnits into the TaskQueue, and seeds the
// ProgressFeed with the "queued" update.
func (e *Engine) CreateJob(customerID, taskID, customerName string, code, requirement, dataset []byte, numWorkers int) (*Job, error) {
	if customerID == "" || taskID == "" || len(code) == 0 || numWorkers < 1 {
		return nil, ErrValidation
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	job := &Job{
		CustomerID:      customerID,
		TaskID:          taskID,
		CustomerName:    customerName,
		Code:            code,
		Requirement:     requirement,
		DatasetShards:   splitShards(dataset, numWorkers),
		NumWorkers:      numWorkers,
		AssignedWorkers: make([]string, 0, numWorkers),
		WorkerShard:     make(map[string]int, numWorkers),
		Heartbeats:      make(map[string]time.Time),
		Results:         make(map[string][]byte),
		Usage:           make(map[string][]byte),
		OutputFiles:     make(map[string]map[string][]byte),
		PendingWorkers:  numWorkers,
		CreatedAt:       now,
	}
	e.jobs[customerID] = job

	for i := 0; i < numWorkers; i++ {
		e.queue.enqueue(WorkUnit{CustomerID: customerID, TaskID: taskID, ShardIndex: i})
	}

	feed := e.feedFor(customerID)
	feed.append(ProgressUpdate{
		CustomerID: customerID,
		Text:       "queued",
		Timestamp:  now,
		Status:     StatusProgress,
		Progress:   newProgress(0, numWorkers),
	})

	e.audit(func() error {
		return e.auditor.RecordFile(bgCtx(), JobFileRecord{
			CustomerID:   customerID,
			TaskID:       taskID,
			CustomerName: customerName,
			Code:         code,
			Requirement:  requirement,
			NumWorkers:   numWorkers,
		})
	}, "record_file")

	return job.snapshot(), nil
}

// Delete removes the job and its ProgressFeed, tying the cancellation
// flag's lifetime to the Job itself rather than a separate map.
func (e *Engine) Delete(customerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.jobs, customerID)
	delete(e.feeds, customerID)
}

// Snapshot returns a read-only copy of the job for a customerId, or
// ErrUnknownJob if none exists.
func (e *Engine) Snapshot(customerID string) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[customerID]
	if !ok {
		return nil, ErrUnknownJob
	}
	return job.snapshot(), nil
}
