package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultHeartbeatTimeout is how long a worker can go without a
	// heartbeat before the fault detector reassigns its slot.
	DefaultHeartbeatTimeout = 30 * time.Second
	// DefaultSweepInterval is how often the fault detector sweeps for
	// stale workers.
	DefaultSweepInterval = 5 * time.Second
)

// Config carries the two engine tunables; listen port, token secret, and
// audit endpoint live at the process/HTTP layer, not here.
type Config struct {
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
}

// Engine owns every piece of process-wide mutable state: the job store, the
// task queue, and each job's progress feed. A single mutex guards all of
// it — no module-level singletons; callers construct an Engine value and
// thread it through explicitly.
type Engine struct {
	mu sync.Mutex

	jobs     map[string]*Job
	queue    *taskQueue
	feeds    map[string]*progressFeed
	clock    Clock
	auditor  Auditor
	cfg      Config
}

// New constructs an Engine. A nil auditor defaults to a no-op adapter; a
// nil clock defaults to the system clock.
func New(cfg Config, clock Clock, auditor Auditor) *Engine {
	if clock == nil {
		clock = NewSystemClock()
	}
	if auditor == nil {
		auditor = noopAuditor{}
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Engine{
		jobs:    make(map[string]*Job),
		queue:   newTaskQueue(),
		feeds:   make(map[string]*progressFeed),
		clock:   clock,
		auditor: auditor,
		cfg:     cfg,
	}
}

func (e *Engine) heartbeatTimeout() time.Duration {
	return e.cfg.HeartbeatTimeout
}

func (e *Engine) now() time.Time { return e.clock.Now() }

// audit fires an Auditor call in a detached goroutine, logging but never
// propagating failure back to the caller.
func (e *Engine) audit(fn func() error, what string) {
	go func() {
		if err := fn(); err != nil {
			log.Error().Err(err).Str("audit_op", what).Msg("audit write failed")
		}
	}()
}

func newTaskID() string { return uuid.NewString() }

func (e *Engine) feedFor(customerID string) *progressFeed {
	f, ok := e.feeds[customerID]
	if !ok {
		f = newProgressFeed()
		e.feeds[customerID] = f
	}
	return f
}
