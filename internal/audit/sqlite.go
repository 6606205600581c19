// Package audit implements the best-effort external audit adapter: a
// collaborator that records job files, worker usage stats, and per-worker
// counters outside the engine's critical section. Nothing here is on the
// engine's critical path — every method may fail, block on I/O, or be
// skipped entirely without the engine's state being affected.
package audit

import (
	"context"
	"database/sql"

	"taskdispatch/internal/db"
	"taskdispatch/internal/engine"
	"taskdispatch/internal/secrets"
)

// SQLiteStore persists audit rows locally. It is the default Auditor
// implementation; cmd/server wires it up against the same database the
// rest of the process uses for settings and secrets.
type SQLiteStore struct {
	db *sql.DB
	km secrets.KeyManager
}

// NewSQLiteStore wraps an already-migrated *sql.DB. km encrypts the
// code/requirement blobs before they're written to the files table — the
// same envelope-encryption Manager internal/oauth uses for token storage.
func NewSQLiteStore(d *sql.DB, km secrets.KeyManager) *SQLiteStore {
	return &SQLiteStore{db: d, km: km}
}

var _ engine.Auditor = (*SQLiteStore)(nil)

func (s *SQLiteStore) RecordFile(ctx context.Context, rec engine.JobFileRecord) error {
	codeNonce, codeCipher, err := s.km.Encrypt(rec.Code)
	if err != nil {
		return err
	}
	reqNonce, reqCipher, err := s.km.Encrypt(rec.Requirement)
	if err != nil {
		return err
	}
	return db.InsertFile(ctx, s.db, db.FileRecord{
		CustomerID:        rec.CustomerID,
		TaskID:            rec.TaskID,
		CustomerName:      rec.CustomerName,
		CodeNonce:         codeNonce,
		CodeCipher:        codeCipher,
		RequirementNonce:  reqNonce,
		RequirementCipher: reqCipher,
		NumWorkers:        rec.NumWorkers,
	})
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, rec engine.UsageRecord) error {
	return db.InsertUsageStat(ctx, s.db, db.UsageStat{
		WorkerID:      rec.WorkerID,
		CustomerID:    rec.CustomerID,
		CPUPercent:    rec.CPUPercent,
		MemoryMB:      rec.MemoryMB,
		ExecutionSecs: rec.ExecutionSecs,
		Raw:           rec.Raw,
	})
}

func (s *SQLiteStore) IncrCounter(ctx context.Context, workerID, counter string, delta int) error {
	return db.IncrCounter(ctx, s.db, workerID, counter, delta)
}
