package handlers

import (
	"crypto/subtle"
	"database/sql"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"taskdispatch/internal/httpx"
	"taskdispatch/internal/secrets"
)

var (
	latencyMu      sync.Mutex
	latencySamples []int64
	latencyP50     atomic.Int64
	latencyP95     atomic.Int64
)

// recordLatency feeds a rolling window of request durations into the p50/p95
// gauges exposed by the health endpoint.
func recordLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start).Milliseconds()

		latencyMu.Lock()
		latencySamples = append(latencySamples, dur)
		if len(latencySamples) > 100 {
			latencySamples = latencySamples[1:]
		}
		samples := append([]int64(nil), latencySamples...)
		latencyMu.Unlock()

		if len(samples) == 0 {
			return
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		latencyP50.Store(samples[len(samples)/2])
		idx := (len(samples) * 95) / 100
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		latencyP95.Store(samples[idx])
	})
}

// requestIDMiddleware stamps every request with an id, echoed back on the
// response and visible to handlers (and internal/httpx's error envelope)
// via the same request header.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// requireToken gates every client- and worker-facing route on bearer-token
// presence: the engine itself never inspects identity, it only requires
// that some token matching the configured secret was presented.
func requireToken(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			presented := strings.TrimPrefix(h, "Bearer ")
			if !strings.HasPrefix(h, "Bearer ") || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				httpx.Write(w, r, httpx.Unauthorized("token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// submitLimiter throttles job submission, the one client route that writes
// new engine state and queues work; polling/claim/heartbeat routes stay
// unthrottled since workers hit them continuously by design.
var submitLimiter = rate.NewLimiter(rate.Every(time.Second), 5)

func rateLimitSubmit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !submitLimiter.Allow() {
			httpx.Write(w, r, httpx.TooManyRequests("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Healthz reports process liveness, the rolling request-latency gauges
// recordLatency feeds, and (when keyDB is set) the master-key status from
// internal/secrets.
func Healthz(keyDB *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":       "ok",
			"latencyP50Ms": latencyP50.Load(),
			"latencyP95Ms": latencyP95.Load(),
		}
		if keyDB != nil {
			if status, err := secrets.Health(r.Context(), keyDB); err == nil {
				body["keys"] = status
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	w.WriteHeader(http.StatusMethodNotAllowed)
}
