// Package db holds the schema and query helpers for the audit store: the
// best-effort, external-to-the-engine persistence of job files, per-worker
// usage stats, and per-worker resource counters.
package db

import (
	"context"
	"database/sql"
)

// FileRecord is one row of the files table: the code/requirement blobs
// handed to a job at creation, kept for audit purposes only. Code and
// Requirement are stored as caller-supplied AES-256-GCM nonce/ciphertext
// pairs — db never sees plaintext, mirroring how oauth_tokens holds only
// nonce/cipher columns for its refresh/access tokens.
type FileRecord struct {
	ID                int
	CustomerID        string
	TaskID            string
	CustomerName      string
	CodeNonce         []byte
	CodeCipher        []byte
	RequirementNonce  []byte
	RequirementCipher []byte
	NumWorkers        int
}

// InsertFile records a job's submission metadata.
func InsertFile(ctx context.Context, d *sql.DB, r FileRecord) error {
	_, err := d.ExecContext(ctx, `INSERT INTO files(customer_id, task_id, customer_name, code_nonce, code_cipher, requirement_nonce, requirement_cipher, num_workers)
       VALUES(?,?,?,?,?,?,?,?)`, r.CustomerID, r.TaskID, r.CustomerName, r.CodeNonce, r.CodeCipher, r.RequirementNonce, r.RequirementCipher, r.NumWorkers)
	return err
}

// UsageStat is one row of the worker_usage_stats table.
type UsageStat struct {
	WorkerID      string
	CustomerID    string
	CPUPercent    float64
	MemoryMB      float64
	ExecutionSecs int
	Raw           []byte
}

// InsertUsageStat records one worker's parsed usage report.
func InsertUsageStat(ctx context.Context, d *sql.DB, u UsageStat) error {
	_, err := d.ExecContext(ctx, `INSERT INTO worker_usage_stats(worker_id, customer_id, cpu_percent, memory_mb, execution_secs, raw)
       VALUES(?,?,?,?,?,?)`, u.WorkerID, u.CustomerID, u.CPUPercent, u.MemoryMB, u.ExecutionSecs, u.Raw)
	return err
}

// IncrCounter bumps a named per-worker counter (taskPending, taskRunning,
// taskCompleted, taskFailed) by delta, floored at 0.
func IncrCounter(ctx context.Context, d *sql.DB, workerID, counter string, delta int) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cur int
	err = tx.QueryRowContext(ctx, `SELECT value FROM resource_provider WHERE worker_id=? AND counter=?`, workerID, counter).Scan(&cur)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	next := cur + delta
	if next < 0 {
		next = 0
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO resource_provider(worker_id, counter, value) VALUES(?,?,?)
       ON CONFLICT(worker_id, counter) DO UPDATE SET value=excluded.value`, workerID, counter, next); err != nil {
		return err
	}
	return tx.Commit()
}

// Counters returns every counter value recorded for a worker.
func Counters(ctx context.Context, d *sql.DB, workerID string) (map[string]int, error) {
	rows, err := d.QueryContext(ctx, `SELECT counter, value FROM resource_provider WHERE worker_id=?`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var name string
		var val int
		if err := rows.Scan(&name, &val); err != nil {
			return nil, err
		}
		out[name] = val
	}
	return out, rows.Err()
}
