// Package summary renders the human-readable task_summary.txt bundled into
// a completed job's result archive.
package summary

import (
	"fmt"
	"strings"
	"time"
)

// Summary holds the counts and timing surfaced in a job's summary text.
type Summary struct {
	CustomerID    string
	TaskID        string
	NumWorkers    int
	Submitted     int
	TimedOutCount int
	TotalCPU      float64
	TotalMemoryMB float64
	Duration      time.Duration
}

// Render formats Summary as the plain-text report written to
// task_summary.txt. A worker is "timed out" if it never produced a
// results/usage row even though every slot ultimately filled (i.e. it was
// rescued by the fault detector).
func (s Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task Summary\n")
	fmt.Fprintf(&b, "============\n")
	fmt.Fprintf(&b, "Customer ID: %s\n", s.CustomerID)
	fmt.Fprintf(&b, "Task ID: %s\n", s.TaskID)
	fmt.Fprintf(&b, "Workers requested: %d\n", s.NumWorkers)
	fmt.Fprintf(&b, "Workers submitted: %d\n", s.Submitted)
	fmt.Fprintf(&b, "Workers reassigned after timeout: %d\n", s.TimedOutCount)
	fmt.Fprintf(&b, "Aggregate CPU: %.2f%%\n", s.TotalCPU)
	fmt.Fprintf(&b, "Aggregate memory: %.2f MB\n", s.TotalMemoryMB)
	fmt.Fprintf(&b, "Wall time: %s\n", s.Duration.Round(time.Second))
	return b.String()
}
