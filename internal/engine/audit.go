package engine

import "context"

// JobFileRecord is what gets handed to the audit adapter when a job is
// created — the code and requirement blobs plus identifying metadata. The
// dataset is not part of the record and is never handed to the adapter.
type JobFileRecord struct {
	CustomerID   string `json:"customer_id"`
	TaskID       string `json:"task_id"`
	CustomerName string `json:"customer_name"`
	Code         []byte `json:"code"`
	Requirement  []byte `json:"requirement,omitempty"`
	NumWorkers   int    `json:"num_workers"`
}

// Auditor is an external, best-effort collaborator for recording files,
// usage, and counters. Every method must return quickly or respect ctx; the
// engine invokes these from a detached goroutine and never waits on or
// branches on their result — failures are logged, never surfaced to the
// caller, and never roll back engine state.
type Auditor interface {
	RecordFile(ctx context.Context, rec JobFileRecord) error
	RecordUsage(ctx context.Context, rec UsageRecord) error
	IncrCounter(ctx context.Context, workerID, counter string, delta int) error
}

// bgCtx is used by fire-and-forget audit calls, which own no caller
// context to propagate.
func bgCtx() context.Context { return context.Background() }

// noopAuditor discards everything; used when no adapter is configured.
type noopAuditor struct{}

func (noopAuditor) RecordFile(context.Context, JobFileRecord) error   { return nil }
func (noopAuditor) RecordUsage(context.Context, UsageRecord) error    { return nil }
func (noopAuditor) IncrCounter(context.Context, string, string, int) error { return nil }

// Audit counter names tracked across claim, submit, and the fault-detector
// sweep.
const (
	CounterTaskPending   = "taskPending"
	CounterTaskRunning   = "taskRunning"
	CounterTaskCompleted = "taskCompleted"
	CounterTaskFailed    = "taskFailed"
)
