// Package handlers implements the HTTP surface:
// client-facing job submission/polling/download and worker-facing
// claim/submit/heartbeat/cancellation-poll.
package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskdispatch/internal/engine"
	"taskdispatch/internal/telemetry"
)

// Client groups the client-facing handlers; all state lives in the Engine.
type Client struct {
	engine *engine.Engine
}

// Worker groups the worker-facing handlers.
type Worker struct {
	engine *engine.Engine
}

// NewClient constructs the client-facing handler group.
func NewClient(e *engine.Engine) *Client { return &Client{engine: e} }

// NewWorker constructs the worker-facing handler group.
func NewWorker(e *engine.Engine) *Worker { return &Worker{engine: e} }

// Mount wires every route onto r. A non-empty tokenSecret gates every
// /api route behind bearer-token presence; an empty one gates nothing, and
// /healthz is never gated. keyDB is used only to report key-management status
// from /healthz; it may be nil in tests.
func Mount(r chi.Router, e *engine.Engine, tokenSecret string, keyDB *sql.DB) {
	c := NewClient(e)
	w := NewWorker(e)

	r.Get("/healthz", Healthz(keyDB))

	r.Group(func(r chi.Router) {
		r.Use(requestIDMiddleware, recordLatency, telemetry.HTTP, requireToken(tokenSecret))

		r.Route("/api/jobs", func(r chi.Router) {
			r.With(rateLimitSubmit).Post("/", c.PostJob)
			r.Get("/updates", c.GetUpdates)
			r.Get("/status", c.GetStatus)
			r.Post("/cancel", c.PostCancel)
			r.Get("/download", c.GetDownload)
			r.MethodNotAllowed(methodNotAllowed)
		})

		r.Route("/api/workers", func(r chi.Router) {
			r.Post("/claim", w.PostClaim)
			r.Post("/submit", w.PostSubmit)
			r.Post("/heartbeat", w.PostHeartbeat)
			r.Get("/cancelled", w.GetCancelled)
			r.MethodNotAllowed(methodNotAllowed)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSONOrQuery fills dst (a struct with a single "CustomerID" or
// "WorkerID"/"CustomerID" pair) from the URL query string on GET requests
// and from a JSON body otherwise — polling endpoints read more naturally
// as query params.
func decodeJSONOrQuery(r *http.Request, dst any) error {
	if r.Method == http.MethodGet {
		switch d := dst.(type) {
		case *customerIDRequest:
			d.CustomerID = r.URL.Query().Get("customerId")
		case *workerActionRequest:
			d.WorkerID = r.URL.Query().Get("workerId")
			d.CustomerID = r.URL.Query().Get("customerId")
		}
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
