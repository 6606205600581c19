package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// retryBaseDelay is the base of the exponential backoff applied to
// transient (429/5xx) audit-endpoint failures: attempt N waits
// retryBaseDelay*2^N before retrying.
const retryBaseDelay = 200 * time.Millisecond

// maxPostAttempts bounds the total number of POSTs postJSON sends, the
// first attempt and any 401 re-auth retry included, before giving up.
const maxPostAttempts = 5

// Error represents a non-2xx response from the remote audit endpoint.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func parseError(status int, body []byte) error {
	e := &Error{Status: status}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		e.Message = payload.Message
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 5 * time.Second
	transport.ResponseHeaderTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second
	return &http.Client{Timeout: 15 * time.Second, Transport: transport}
}

// doRequest executes req and logs a truncated view of the upstream
// response. Errors from reading the body are not treated as request
// failures; a caller interested in the error still gets a non-nil err
// from client.Do.
func doRequest(ctx context.Context, client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	logBody := body
	if len(logBody) > 512 {
		logBody = logBody[:512]
	}
	log.Ctx(ctx).Debug().
		Int("upstream_code", resp.StatusCode).
		Str("upstream_body", string(logBody)).
		Msg("audit endpoint response")

	return resp.StatusCode, body, nil
}

// postJSON retries transient failures (429/5xx) with exponential backoff,
// rebuilding the request from b on every attempt since a request body can
// only be read once. A single 401 triggers one token refresh and retry
// before the transient-failure loop continues.
func postJSON(ctx context.Context, client *http.Client, ts *tokenSource, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	newReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(b)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if err := addAuth(ctx, ts, req); err != nil {
			return nil, err
		}
		return req, nil
	}

	reauthed := false
	var lastErr error
	for attempt := 0; attempt < maxPostAttempts; attempt++ {
		req, err := newReq()
		if err != nil {
			return err
		}

		status, body, err := doRequest(ctx, client, req)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized && !reauthed {
			reauthed = true
			ts.reset(ctx)
			continue
		}

		if status < 200 || status >= 300 {
			lastErr = parseError(status, body)
			if status == http.StatusTooManyRequests || status >= 500 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(retryBaseDelay * time.Duration(1<<attempt)):
					continue
				}
			}
			return fmt.Errorf("post %s: %w", url, lastErr)
		}
		return nil
	}
	return fmt.Errorf("post %s: retry attempts exceeded: %w", url, lastErr)
}
