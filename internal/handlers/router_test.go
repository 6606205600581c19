package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"taskdispatch/internal/engine"
)

func newTestRouter(t *testing.T) (*chi.Mux, *engine.Engine) {
	t.Helper()
	e := engine.New(engine.Config{}, nil, nil)
	r := chi.NewRouter()
	Mount(r, e, "", nil)
	return r, e
}

func multipartJobBody(t *testing.T, numWorkers string, code, dataset []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("customername", "acme"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := w.WriteField("respn", numWorkers); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := w.CreateFormFile("code", "main.py")
	if err != nil {
		t.Fatalf("create code part: %v", err)
	}
	fw.Write(code)
	if dataset != nil {
		dw, err := w.CreateFormFile("dataset", "data.csv")
		if err != nil {
			t.Fatalf("create dataset part: %v", err)
		}
		dw.Write(dataset)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestPostJobThenFullLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	body, ctype := multipartJobBody(t, "1", []byte("print(1)"), []byte("rows"))
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		CustomerID string `json:"customerId"`
		TaskID     string `json:"taskId"`
		NumWorkers int    `json:"numWorkers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.CustomerID == "" || created.NumWorkers != 1 {
		t.Fatalf("unexpected create response: %+v", created)
	}

	// claim
	claimBody, _ := json.Marshal(map[string]string{"workerId": "w1"})
	req = httptest.NewRequest(http.MethodPost, "/api/workers/claim", bytes.NewReader(claimBody))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status %d: %s", rec.Code, rec.Body.String())
	}
	var claimResp struct {
		Outcome string `json:"outcome"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &claimResp); err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	if claimResp.Outcome != "assigned" {
		t.Fatalf("expected assigned, got %s", claimResp.Outcome)
	}
	decodedCode, err := base64.StdEncoding.DecodeString(claimResp.Code)
	if err != nil || string(decodedCode) != "print(1)" {
		t.Fatalf("unexpected code payload: %v %q", err, decodedCode)
	}

	// submit
	var subBuf bytes.Buffer
	mw := multipart.NewWriter(&subBuf)
	mw.WriteField("workerId", "w1")
	mw.WriteField("customerId", created.CustomerID)
	rf, _ := mw.CreateFormFile("result", "result.txt")
	rf.Write([]byte("done"))
	uf, _ := mw.CreateFormFile("usage", "usage.txt")
	uf.Write([]byte("CPU Usage: 5%"))
	of, _ := mw.CreateFormFile("output_report.txt", "report.txt")
	of.Write([]byte("report body"))
	mw.Close()

	req = httptest.NewRequest(http.MethodPost, "/api/workers/submit", &subBuf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status %d: %s", rec.Code, rec.Body.String())
	}
	var subResp struct {
		Outcome   string `json:"outcome"`
		Completed bool   `json:"completed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &subResp); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	if subResp.Outcome != "ok" || !subResp.Completed {
		t.Fatalf("unexpected submit response: %+v", subResp)
	}

	// status
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/status?customerId="+created.CustomerID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d: %s", rec.Code, rec.Body.String())
	}
	var st struct {
		IsCompleted bool `json:"isCompleted"`
		CanDownload bool `json:"canDownload"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.IsCompleted || !st.CanDownload {
		t.Fatalf("expected completed+downloadable, got %+v", st)
	}

	// download
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/download?customerId="+created.CustomerID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("expected zip content type, got %s", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty archive body")
	}
}

// TestS1TwoWorkerDownloadArchiveContents exercises the literal happy-path
// scenario end to end over HTTP: two workers claim, submit, and the
// resulting ZIP carries each worker's result and usage files alongside the
// generated task_summary.txt and metadata.json.
func TestS1TwoWorkerDownloadArchiveContents(t *testing.T) {
	r, _ := newTestRouter(t)

	body, ctype := multipartJobBody(t, "2", []byte("print(1)"), []byte("rows"))
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		CustomerID string `json:"customerId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	for _, workerID := range []string{"W1", "W2"} {
		claimBody, _ := json.Marshal(map[string]string{"workerId": workerID})
		req = httptest.NewRequest(http.MethodPost, "/api/workers/claim", bytes.NewReader(claimBody))
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("claim %s status %d: %s", workerID, rec.Code, rec.Body.String())
		}

		var subBuf bytes.Buffer
		mw := multipart.NewWriter(&subBuf)
		mw.WriteField("workerId", workerID)
		mw.WriteField("customerId", created.CustomerID)
		rf, _ := mw.CreateFormFile("result", "result.txt")
		rf.Write([]byte("result from " + workerID))
		uf, _ := mw.CreateFormFile("usage", "usage.txt")
		uf.Write([]byte("CPU Usage: 10%"))
		mw.Close()

		req = httptest.NewRequest(http.MethodPost, "/api/workers/submit", &subBuf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("submit %s status %d: %s", workerID, rec.Code, rec.Body.String())
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/download?customerId="+created.CustomerID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status %d: %s", rec.Code, rec.Body.String())
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}

	want := []string{
		"results/worker_W1_result.txt",
		"results/worker_W2_result.txt",
		"usage/worker_W1_usage.txt",
		"usage/worker_W2_usage.txt",
		"task_summary.txt",
		"metadata.json",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("expected archive entry %q, archive had %v", name, names)
		}
	}
}

func TestPostClaimRejectsPathLikeWorkerID(t *testing.T) {
	r, e := newTestRouter(t)
	if _, err := e.CreateJob("cust-x", "task-x", "", []byte("c"), nil, []byte("d"), 1); err != nil {
		t.Fatalf("create job: %v", err)
	}

	claimBody, _ := json.Marshal(map[string]string{"workerId": "../../etc/passwd"})
	req := httptest.NewRequest(http.MethodPost, "/api/workers/claim", bytes.NewReader(claimBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for path-like workerId, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostJobRejectsMissingCode(t *testing.T) {
	r, _ := newTestRouter(t)
	body, ctype := multipartJobBody(t, "1", nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetStatusUnknownJob(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/status?customerId=missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPostCancelThenDownloadRefused(t *testing.T) {
	r, e := newTestRouter(t)
	if _, err := e.CreateJob("cust-x", "task-x", "", []byte("c"), nil, []byte("d"), 1); err != nil {
		t.Fatalf("create job: %v", err)
	}

	cancelBody, _ := json.Marshal(map[string]string{"customerId": "cust-x"})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/cancel", bytes.NewReader(cancelBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/download?customerId=cust-x", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 cancelled, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRequireTokenRejectsMissingBearer(t *testing.T) {
	e := engine.New(engine.Config{}, nil, nil)
	r := chi.NewRouter()
	Mount(r, e, "secret-value", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/status?customerId=x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/status?customerId=x", nil)
	req.Header.Set("Authorization", "Bearer secret-value")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized {
		t.Fatalf("valid bearer token should not be rejected")
	}
}

func TestSanitizeOutputFilenameRejectsTraversal(t *testing.T) {
	cases := map[string]bool{
		"report.txt":      true,
		"../escape.txt":   false,
		"a/b.txt":         false,
		"..":              false,
		".":               false,
		`a\..\b.txt`:      false,
	}
	for in, wantOK := range cases {
		got := sanitizeOutputFilename(in)
		if (got != "") != wantOK {
			t.Errorf("sanitizeOutputFilename(%q) = %q, want ok=%v", in, got, wantOK)
		}
	}
}
