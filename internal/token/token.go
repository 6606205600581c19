// Package token manages small named secrets backed by internal/secrets,
// through the Service handed to Init. cmd/server reads the bearer-token
// secret and the audit client secret from the environment, not from here.
package token

import (
	"context"

	"taskdispatch/internal/logx"
	"taskdispatch/internal/secrets"
)

var svc *secrets.Service

// Init sets the secrets service to use for token operations.
func Init(s *secrets.Service) { svc = s }

// Set stores a named secret.
func Set(name, value string) error {
	if svc == nil {
		return nil
	}
	return svc.Set(context.Background(), name, []byte(value))
}

// Get retrieves a named secret for internal use.
func Get(name string) (string, error) {
	if svc == nil {
		return "", nil
	}
	b, err := svc.Get(context.Background(), name)
	return string(b), err
}

// Exists reports whether a named secret is stored.
func Exists(name string) (bool, error) {
	if svc == nil {
		return false, nil
	}
	return svc.Exists(context.Background(), name)
}

// Clear removes a named secret.
func Clear(name string) error {
	if svc == nil {
		return nil
	}
	return svc.Delete(context.Background(), name)
}

// ForLog returns a named secret and a redacted version safe for logging.
func ForLog(name string) (string, string, error) {
	tok, err := Get(name)
	if err != nil {
		return "", "", err
	}
	return tok, logx.Secret(tok), nil
}
