// Package engine implements the job lifecycle: the task queue, assignment
// protocol, heartbeat-driven fault detector, result aggregation,
// cancellation semantics, and the progress feed.
package engine

import "time"

// Job is the aggregate state associated with one client submission.
type Job struct {
	CustomerID   string
	TaskID       string
	CustomerName string

	Code        []byte
	Requirement []byte

	DatasetShards [][]byte
	NumWorkers    int

	AssignedWorkers []string
	WorkerShard     map[string]int
	Heartbeats      map[string]time.Time
	Results         map[string][]byte
	Usage           map[string][]byte
	OutputFiles     map[string]map[string][]byte

	PendingWorkers int
	TimedOutCount  int

	IsCompleted        bool
	IsCancelled        bool
	CompletionNotified bool

	CreatedAt   time.Time
	CompletedAt time.Time
}

// WorkUnit is a single assignable replica of a job. ShardIndex pins the
// unit to one DatasetShards entry so a rescue re-enqueue hands the next
// claimer the exact shard the timed-out worker held, rather than whatever
// shard the current AssignedWorkers count happens to compute to.
type WorkUnit struct {
	CustomerID string
	TaskID     string
	ShardIndex int
}

// UpdateStatus enumerates the ProgressUpdate.Status values.
type UpdateStatus string

const (
	StatusProgress  UpdateStatus = "progress"
	StatusCompleted UpdateStatus = "completed"
	StatusCancelled UpdateStatus = "cancelled"
)

// Progress is the {submitted, total, percentage} triple reported alongside
// progress updates and the status poll.
type Progress struct {
	Submitted  int `json:"submitted"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// ProgressUpdate is a single entry in a customer's ProgressFeed.
type ProgressUpdate struct {
	CustomerID   string       `json:"customerId"`
	Text         string       `json:"text"`
	Timestamp    time.Time    `json:"timestamp"`
	Status       UpdateStatus `json:"status"`
	IsCompletion bool         `json:"isCompletion,omitempty"`
	Progress     *Progress    `json:"progress,omitempty"`
}

func newProgress(submitted, total int) *Progress {
	pct := 0
	if total > 0 {
		pct = (submitted * 100) / total
	}
	return &Progress{Submitted: submitted, Total: total, Percentage: pct}
}

// snapshot returns a deep-enough copy of Job for safe use outside the lock
// (e.g. while building a status/updates response or a ZIP archive).
func (j *Job) snapshot() *Job {
	cp := *j
	cp.AssignedWorkers = append([]string(nil), j.AssignedWorkers...)
	cp.WorkerShard = make(map[string]int, len(j.WorkerShard))
	for k, v := range j.WorkerShard {
		cp.WorkerShard[k] = v
	}
	cp.Heartbeats = cloneTimeMap(j.Heartbeats)
	cp.Results = cloneByteMap(j.Results)
	cp.Usage = cloneByteMap(j.Usage)
	cp.OutputFiles = make(map[string]map[string][]byte, len(j.OutputFiles))
	for w, files := range j.OutputFiles {
		cp.OutputFiles[w] = cloneByteMap(files)
	}
	cp.DatasetShards = append([][]byte(nil), j.DatasetShards...)
	return &cp
}

func cloneTimeMap(m map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneByteMap(m map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
