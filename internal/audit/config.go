package audit

import (
	"errors"
	"net/url"
	"strings"
)

// Config is the remote audit endpoint's connection details: a base URL plus
// OAuth2 client-credentials for the bearer token exchange. Zero Config
// means "no remote forwarding" — cmd/server falls back to SQLiteStore only.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Scope        string
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("audit: base_url required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("audit: invalid base_url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("audit: base_url must be http(s)")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("audit: client_id and client_secret required")
	}
	return nil
}

func (c Config) normalizedBase() string {
	return strings.TrimSuffix(c.BaseURL, "/")
}
