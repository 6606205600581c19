package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"taskdispatch/internal/oauth"
)

// tokenSource manages the bearer token for one HTTPClient instance. The
// cache lives on the struct rather than a package-level variable so each
// HTTPClient is independently testable and nothing leaks across instances.
type tokenSource struct {
	cfg    Config
	client *http.Client
	store  *oauth.Service // optional; nil means no cross-restart persistence

	mu     sync.Mutex
	cached string
	expiry time.Time
}

func newTokenSource(cfg Config, client *http.Client, store *oauth.Service) *tokenSource {
	return &tokenSource{cfg: cfg, client: client, store: store}
}

const providerName = "audit"

func (t *tokenSource) get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cached != "" && time.Now().Before(t.expiry.Add(-10*time.Second)) {
		return t.cached, nil
	}

	var refresh string
	if t.store != nil {
		rec, err := t.store.Get(ctx, providerName)
		if err == nil && rec.AccessToken != "" && time.Now().Before(rec.Expiry.Add(-10*time.Second)) {
			t.cached, t.expiry = rec.AccessToken, rec.Expiry
			return t.cached, nil
		}
		if err == nil {
			refresh = rec.RefreshToken
		}
	}

	access, newRefresh, exp, err := t.fetch(ctx, refresh)
	if err != nil {
		return "", err
	}
	t.cached, t.expiry = access, exp
	if t.store != nil {
		_ = t.store.Store(ctx, providerName, oauth.Record{
			Scope:        t.cfg.Scope,
			AccessToken:  access,
			RefreshToken: newRefresh,
			Expiry:       exp,
		})
	}
	return access, nil
}

func (t *tokenSource) reset(ctx context.Context) {
	t.mu.Lock()
	t.cached = ""
	t.expiry = time.Time{}
	t.mu.Unlock()
	if t.store != nil {
		_ = t.store.Clear(ctx, providerName)
	}
}

// fetch performs the OAuth2 client-credentials (or, given a refresh token,
// refresh_token) grant against cfg.BaseURL + "/oauth2/token".
func (t *tokenSource) fetch(ctx context.Context, refresh string) (access, newRefresh string, exp time.Time, err error) {
	u, err := url.Parse(t.cfg.normalizedBase() + "/oauth2/token")
	if err != nil {
		return "", "", time.Time{}, err
	}
	data := url.Values{
		"client_id":     {t.cfg.ClientID},
		"client_secret": {t.cfg.ClientSecret},
	}
	if refresh == "" {
		data.Set("grant_type", "client_credentials")
		if t.cfg.Scope != "" {
			data.Set("scope", t.cfg.Scope)
		}
	} else {
		data.Set("grant_type", "refresh_token")
		data.Set("refresh_token", refresh)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(data.Encode()))
	if err != nil {
		return "", "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := doRequest(ctx, t.client, req)
	if err != nil {
		return "", "", time.Time{}, err
	}
	if status < 200 || status >= 300 {
		return "", "", time.Time{}, parseError(status, body)
	}

	var res struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", "", time.Time{}, err
	}
	if res.AccessToken == "" {
		return "", "", time.Time{}, errors.New("audit: token response missing access_token")
	}
	return res.AccessToken, res.RefreshToken, time.Now().Add(time.Duration(res.ExpiresIn) * time.Second), nil
}

func addAuth(ctx context.Context, ts *tokenSource, req *http.Request) error {
	tok, err := ts.get(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", tok))
	return nil
}
