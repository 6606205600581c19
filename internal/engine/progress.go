package engine

import "time"

const progressRetention = 60 * time.Second

// progressFeed is a per-customer append-only log of ProgressUpdate values.
// Like taskQueue, it is only ever touched under the engine's mutex.
type progressFeed struct {
	entries []ProgressUpdate
}

func newProgressFeed() *progressFeed {
	return &progressFeed{}
}

func (f *progressFeed) append(u ProgressUpdate) {
	f.entries = append(f.entries, u)
}

// drain returns the current buffer and retains only sticky (completed)
// entries plus anything younger than progressRetention.
func (f *progressFeed) drain(now time.Time) []ProgressUpdate {
	out := append([]ProgressUpdate(nil), f.entries...)

	kept := f.entries[:0:0]
	for _, e := range f.entries {
		if e.Status == StatusCompleted {
			kept = append(kept, e)
			continue
		}
		if now.Sub(e.Timestamp) < progressRetention {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	return out
}
