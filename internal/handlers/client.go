package handlers

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"taskdispatch/internal/engine"
	"taskdispatch/internal/httpx"
)

var validate = validator.New()

// submitJobRequest mirrors the multipart fields of a job submission. Code
// is read separately from the multipart file part; the struct only carries
// the validator-checked scalar fields.
type submitJobRequest struct {
	CustomerName string `validate:"omitempty,max=200"`
	NumWorkers   int    `validate:"required,min=1,max=64"`
}

// PostJob handles a client's job submission.
func (c *Client) PostJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		httpx.Write(w, r, httpx.BadRequest("invalid multipart form"))
		return
	}

	req := submitJobRequest{
		CustomerName: r.FormValue("customername"),
		NumWorkers:   atoiDefault(r.FormValue("respn"), 0),
	}
	if err := validate.Struct(req); err != nil {
		httpx.Write(w, r, httpx.BadRequest("invalid request: "+err.Error()))
		return
	}

	code, err := readFormFile(r, "code")
	if err != nil || len(code) == 0 {
		httpx.Write(w, r, httpx.BadRequest("code is required"))
		return
	}
	dataset, _ := readFormFile(r, "dataset")
	requirement, _ := readFormFile(r, "requirement")

	customerID := uuid.NewString()
	taskID := uuid.NewString()

	job, err := c.engine.CreateJob(customerID, taskID, req.CustomerName, code, requirement, dataset, req.NumWorkers)
	if err != nil {
		httpx.Write(w, r, httpx.BadRequest(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"customerId": job.CustomerID,
		"taskId":     job.TaskID,
		"numWorkers": job.NumWorkers,
	})
}

type customerIDRequest struct {
	CustomerID string `json:"customerId"`
}

// GetUpdates handles a client's progress poll.
func (c *Client) GetUpdates(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if err := decodeJSONOrQuery(r, &req); err != nil || req.CustomerID == "" {
		httpx.Write(w, r, httpx.BadRequest("customerId required"))
		return
	}
	view, err := c.engine.Updates(req.CustomerID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"updates":     view.Updates,
		"progress":    view.Progress,
		"isCompleted": view.IsCompleted,
	})
}

// GetStatus handles a client's status poll.
func (c *Client) GetStatus(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if err := decodeJSONOrQuery(r, &req); err != nil || req.CustomerID == "" {
		httpx.Write(w, r, httpx.BadRequest("customerId required"))
		return
	}
	st, err := c.engine.Status(req.CustomerID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submitted":   st.Submitted,
		"total":       st.Total,
		"percentage":  st.Percentage,
		"isCompleted": st.IsCompleted,
		"isCancelled": st.IsCancelled,
		"canDownload": st.CanDownload,
	})
}

// PostCancel handles a client's cancellation request.
func (c *Client) PostCancel(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if err := decodeJSONOrQuery(r, &req); err != nil || req.CustomerID == "" {
		httpx.Write(w, r, httpx.BadRequest("customerId required"))
		return
	}
	if err := c.engine.Cancel(req.CustomerID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return def
		}
		n = n*10 + int(ch-'0')
	}
	return n
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch err {
	case engine.ErrUnknownJob:
		httpx.Write(w, r, httpx.NotFound("unknown job"))
	case engine.ErrCancelled:
		httpx.Write(w, r, httpx.Cancelled("job is cancelled"))
	case engine.ErrNotReady:
		httpx.Write(w, r, httpx.NotReady("job not ready for download"))
	case engine.ErrDuplicate:
		httpx.Write(w, r, httpx.Duplicate("worker already submitted"))
	case engine.ErrUnauthorized:
		httpx.Write(w, r, httpx.Forbidden("worker not assigned to job"))
	case engine.ErrValidation:
		httpx.Write(w, r, httpx.BadRequest("invalid request"))
	default:
		httpx.Write(w, r, httpx.Internal(err))
	}
}
