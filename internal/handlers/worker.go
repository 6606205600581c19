package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"taskdispatch/internal/engine"
	"taskdispatch/internal/httpx"
)

type workerActionRequest struct {
	WorkerID   string `json:"workerId"`
	CustomerID string `json:"customerId"`
}

// PostClaim handles a worker's claim request. code/dataset/requirement
// travel as base64 text; implementers needing lower overhead may switch to
// a streaming variant keyed by taskId without changing the engine.
func (wk *Worker) PostClaim(w http.ResponseWriter, r *http.Request) {
	var req workerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validWorkerID(req.WorkerID) {
		httpx.Write(w, r, httpx.BadRequest("workerId required"))
		return
	}

	result := wk.engine.Claim(req.WorkerID)
	switch result.Outcome {
	case engine.ClaimNoWork:
		writeJSON(w, http.StatusOK, map[string]any{"outcome": "no-work"})
	case engine.ClaimCancelled:
		writeJSON(w, http.StatusOK, map[string]any{"outcome": "cancelled"})
	case engine.ClaimAssigned:
		writeJSON(w, http.StatusOK, map[string]any{
			"outcome":      "assigned",
			"taskId":       result.TaskID,
			"customerId":   result.CustomerID,
			"workerIndex":  result.WorkerIndex,
			"totalWorkers": result.TotalWorkers,
			"code":         base64.StdEncoding.EncodeToString(result.Code),
			"dataset":      base64.StdEncoding.EncodeToString(result.Dataset),
			"requirement":  base64.StdEncoding.EncodeToString(result.Requirement),
		})
	}
}

// outputFieldPrefix is the multipart field-name prefix carrying a worker's
// dynamically named output files.
const outputFieldPrefix = "output_"

// PostSubmit handles a worker's result submission.
func (wk *Worker) PostSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		httpx.Write(w, r, httpx.BadRequest("invalid multipart form"))
		return
	}

	workerID := r.FormValue("workerId")
	customerID := r.FormValue("customerId")
	if !validWorkerID(workerID) || customerID == "" {
		httpx.Write(w, r, httpx.BadRequest("workerId and customerId required"))
		return
	}

	result, err := readFormFile(r, "result")
	if err != nil {
		httpx.Write(w, r, httpx.BadRequest("result is required"))
		return
	}
	usage, err := readFormFile(r, "usage")
	if err != nil {
		httpx.Write(w, r, httpx.BadRequest("usage is required"))
		return
	}

	outputFiles := make(map[string][]byte)
	if r.MultipartForm != nil {
		for field := range r.MultipartForm.File {
			if !strings.HasPrefix(field, outputFieldPrefix) {
				continue
			}
			name := sanitizeOutputFilename(strings.TrimPrefix(field, outputFieldPrefix))
			if name == "" {
				continue
			}
			b, err := readFormFile(r, field)
			if err != nil {
				httpx.Write(w, r, httpx.BadRequest("invalid output file "+field))
				return
			}
			outputFiles[name] = b
		}
	}

	sr := wk.engine.Submit(workerID, customerID, result, usage, outputFiles)
	switch sr.Outcome {
	case engine.SubmitOK:
		writeJSON(w, http.StatusOK, map[string]any{"outcome": "ok", "completed": sr.Completed})
	case engine.SubmitUnknownJob:
		httpx.Write(w, r, httpx.NotFound("unknown job"))
	case engine.SubmitCancelled:
		httpx.Write(w, r, httpx.Cancelled("job is cancelled"))
	case engine.SubmitUnauthorized:
		httpx.Write(w, r, httpx.Forbidden("worker not assigned to job"))
	case engine.SubmitDuplicate:
		httpx.Write(w, r, httpx.Duplicate("worker already submitted"))
	}
}

// validWorkerID rejects the empty string, ".", "..", and any path
// separator: workerId flows unsanitized into the download archive's entry
// names (results/worker_<id>_result.txt, output/<id>/...), so an id like
// "../../etc/passwd" would otherwise let a worker write outside the
// archive's own directory structure once extracted.
func validWorkerID(id string) bool {
	return sanitizeOutputFilename(id) != ""
}

// sanitizeOutputFilename rejects path separators and ".." so an
// attacker-controlled field-name suffix can never escape the archive's
// output/<workerId>/ directory.
func sanitizeOutputFilename(name string) string {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") || strings.Contains(name, `\`) {
		return ""
	}
	if path.Base(name) != name {
		return ""
	}
	return name
}

// PostHeartbeat handles a worker's heartbeat.
func (wk *Worker) PostHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req workerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkerID == "" || req.CustomerID == "" {
		httpx.Write(w, r, httpx.BadRequest("workerId and customerId required"))
		return
	}
	ok, err := wk.engine.Heartbeat(req.WorkerID, req.CustomerID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok})
}

// GetCancelled handles a worker's cancellation poll.
func (wk *Worker) GetCancelled(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customerId")
	if customerID == "" {
		httpx.Write(w, r, httpx.BadRequest("customerId required"))
		return
	}
	cancelled, err := wk.engine.IsCancelled(customerID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancel": cancelled})
}
