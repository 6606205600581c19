package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"

	"taskdispatch/internal/engine"
	"taskdispatch/internal/httpx"
	"taskdispatch/internal/summary"
)

// archiveGroup coalesces concurrent downloads of the same customerId into
// one ZIP build.
var archiveGroup singleflight.Group

// GetDownload serves the result archive for a completed job,
// streaming a ZIP of every worker's result/usage/output files plus a
// generated task_summary.txt and metadata.json.
func (c *Client) GetDownload(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customerId")
	if customerID == "" {
		httpx.Write(w, r, httpx.BadRequest("customerId required"))
		return
	}

	v, err, _ := archiveGroup.Do(customerID, func() (any, error) {
		job, err := c.engine.DownloadableSnapshot(customerID)
		if err != nil {
			return nil, err
		}
		return buildArchive(job)
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	buf := v.([]byte)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, customerID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf)
}

func buildArchive(job *engine.Job) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var totalCPU, totalMem float64
	for workerID, result := range job.Results {
		if err := writeZipFile(zw, fmt.Sprintf("results/worker_%s_result.txt", workerID), result); err != nil {
			return nil, err
		}
		if usage, ok := job.Usage[workerID]; ok {
			if err := writeZipFile(zw, fmt.Sprintf("usage/worker_%s_usage.txt", workerID), usage); err != nil {
				return nil, err
			}
			rec := engine.ParseUsageForSummary(workerID, job.CustomerID, usage, job.CompletedAt)
			totalCPU += rec.CPUPercent
			totalMem += rec.MemoryMB
		}
		for name, content := range job.OutputFiles[workerID] {
			path := fmt.Sprintf("output/%s/%s", workerID, name)
			if err := writeZipFile(zw, path, content); err != nil {
				return nil, err
			}
		}
	}

	duration := job.CompletedAt.Sub(job.CreatedAt)
	sum := summary.Summary{
		CustomerID:    job.CustomerID,
		TaskID:        job.TaskID,
		NumWorkers:    job.NumWorkers,
		Submitted:     len(job.Results),
		TimedOutCount: job.TimedOutCount,
		TotalCPU:      totalCPU,
		TotalMemoryMB: totalMem,
		Duration:      duration,
	}
	if err := writeZipFile(zw, "task_summary.txt", []byte(sum.Render())); err != nil {
		return nil, err
	}

	meta, err := json.MarshalIndent(map[string]any{
		"customerId": job.CustomerID,
		"taskId":     job.TaskID,
		"numWorkers": job.NumWorkers,
		"submitted":  len(job.Results),
		"createdAt":  job.CreatedAt,
		"completedAt": job.CompletedAt,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeZipFile(zw, "metadata.json", meta); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeZipFile(zw *zip.Writer, name string, content []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(content)
	return err
}
