package engine

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// UsageRecord is the normalized form handed to the audit adapter after a
// worker's raw usage blob has been parsed.
type UsageRecord struct {
	WorkerID      string    `json:"worker_id"`
	CustomerID    string    `json:"customer_id"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	ExecutionSecs int       `json:"execution_secs"`
	Timestamp     time.Time `json:"timestamp"`
	Raw           []byte    `json:"raw,omitempty"`
}

type usageSample struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemUsageMB float64 `json:"mem_usage_MB"`
}

var (
	cpuLineRE       = regexp.MustCompile(`(?i)CPU Usage:\s*([0-9.]+)\s*%?`)
	memLineRE       = regexp.MustCompile(`(?i)Memory Usage:\s*([0-9.]+)\s*MB?`)
	execLineRE      = regexp.MustCompile(`(?i)Execution Time:\s*([0-9.]+)\s*seconds?`)
	timestampLineRE = regexp.MustCompile(`(?i)Timestamp:\s*(.+)`)
)

// ParseUsageForSummary exposes parseUsage for callers outside the package
// (the download handler's aggregate-CPU/memory rollup) without duplicating
// the usage-blob parsing rules.
func ParseUsageForSummary(workerID, customerID string, raw []byte, now time.Time) UsageRecord {
	return parseUsage(workerID, customerID, raw, now)
}

// parseUsage parses a worker's usage blob: a JSON array of per-second
// samples is tried first; on any parse failure it falls back to line-wise
// regex extraction of a plain-text report; on total failure it returns a
// zeroed record with the raw bytes preserved.
func parseUsage(workerID, customerID string, raw []byte, now time.Time) UsageRecord {
	rec := UsageRecord{WorkerID: workerID, CustomerID: customerID, Timestamp: now, Raw: raw}

	var samples []usageSample
	if err := json.Unmarshal(raw, &samples); err == nil && len(samples) > 0 {
		var cpuSum, memSum float64
		for _, s := range samples {
			cpuSum += s.CPUPercent
			memSum += s.MemUsageMB
		}
		n := float64(len(samples))
		rec.CPUPercent = cpuSum / n
		rec.MemoryMB = memSum / n
		rec.ExecutionSecs = len(samples)
		return rec
	}

	text := string(raw)
	matchedAny := false
	if m := cpuLineRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rec.CPUPercent = v
			matchedAny = true
		}
	}
	if m := memLineRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rec.MemoryMB = v
			matchedAny = true
		}
	}
	if m := execLineRE.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rec.ExecutionSecs = int(v)
			matchedAny = true
		}
	}
	if m := timestampLineRE.FindStringSubmatch(text); m != nil {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(m[1])); err == nil {
			rec.Timestamp = ts
			matchedAny = true
		}
	}
	if matchedAny {
		return rec
	}

	// total failure: zeroed record, raw bytes preserved for audit.
	return UsageRecord{WorkerID: workerID, CustomerID: customerID, Timestamp: now, Raw: raw}
}
