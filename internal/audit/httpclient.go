package audit

import (
	"context"
	"net/http"

	"taskdispatch/internal/engine"
	"taskdispatch/internal/oauth"
)

// HTTPClient forwards audit events to a remote collector over HTTP,
// authenticating with an OAuth2 client-credentials grant. It is optional:
// cmd/server only constructs one when an endpoint is configured, and
// appends it after a SQLiteStore in a Multi so local rows are always
// written first, even when the remote call fails.
type HTTPClient struct {
	cfg    Config
	client *http.Client
	tokens *tokenSource
}

var _ engine.Auditor = (*HTTPClient)(nil)

// NewHTTPClient builds a client for cfg. tokenStore may be nil, in which
// case the access token is re-fetched on every process restart instead of
// being persisted across them.
func NewHTTPClient(cfg Config, tokenStore *oauth.Service) (*HTTPClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	httpClient := newHTTPClient()
	return &HTTPClient{
		cfg:    cfg,
		client: httpClient,
		tokens: newTokenSource(cfg, httpClient, tokenStore),
	}, nil
}

func (c *HTTPClient) RecordFile(ctx context.Context, rec engine.JobFileRecord) error {
	return postJSON(ctx, c.client, c.tokens, c.cfg.normalizedBase()+"/v1/files", rec)
}

func (c *HTTPClient) RecordUsage(ctx context.Context, rec engine.UsageRecord) error {
	return postJSON(ctx, c.client, c.tokens, c.cfg.normalizedBase()+"/v1/usage", rec)
}

func (c *HTTPClient) IncrCounter(ctx context.Context, workerID, counter string, delta int) error {
	return postJSON(ctx, c.client, c.tokens, c.cfg.normalizedBase()+"/v1/counters", map[string]any{
		"worker_id": workerID,
		"counter":   counter,
		"delta":     delta,
	})
}

// Multi fans an audit event out to every configured Auditor, stopping at
// (and returning) the first error. Used to chain SQLiteStore and an
// optional HTTPClient.
type Multi []engine.Auditor

var _ engine.Auditor = Multi(nil)

func (m Multi) RecordFile(ctx context.Context, rec engine.JobFileRecord) error {
	for _, a := range m {
		if err := a.RecordFile(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordUsage(ctx context.Context, rec engine.UsageRecord) error {
	for _, a := range m {
		if err := a.RecordUsage(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) IncrCounter(ctx context.Context, workerID, counter string, delta int) error {
	for _, a := range m {
		if err := a.IncrCounter(ctx, workerID, counter, delta); err != nil {
			return err
		}
	}
	return nil
}
