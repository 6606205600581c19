package engine

// taskQueue is a FIFO of WorkUnits. Every method is called with the
// engine's mutex (Engine.mu) already held; taskQueue itself does no
// locking of its own.
type taskQueue struct {
	units []WorkUnit
}

func newTaskQueue() *taskQueue {
	return &taskQueue{units: make([]WorkUnit, 0, 16)}
}

// enqueue appends a unit to the tail.
func (q *taskQueue) enqueue(u WorkUnit) {
	q.units = append(q.units, u)
}

// claim pops the head unit, if any.
func (q *taskQueue) claim() (WorkUnit, bool) {
	if len(q.units) == 0 {
		return WorkUnit{}, false
	}
	u := q.units[0]
	q.units = q.units[1:]
	return u, true
}

// drop removes every unit whose CustomerID matches, preserving the
// relative order of the rest. Returns the number removed.
func (q *taskQueue) drop(customerID string) int {
	kept := q.units[:0:0]
	removed := 0
	for _, u := range q.units {
		if u.CustomerID == customerID {
			removed++
			continue
		}
		kept = append(kept, u)
	}
	q.units = kept
	return removed
}

// len reports the number of pending units (used by tests/metrics).
func (q *taskQueue) len() int { return len(q.units) }

// lenFor reports the number of pending units for one customer.
func (q *taskQueue) lenFor(customerID string) int {
	n := 0
	for _, u := range q.units {
		if u.CustomerID == customerID {
			n++
		}
	}
	return n
}
