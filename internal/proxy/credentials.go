package proxy

import (
	"errors"
	"net/http"
)

// ErrMissingCredential means the server holds no key for the upstream.
var ErrMissingCredential = errors.New("upstream credential not configured")

// Credential attaches server-held auth to an outgoing request.
type Credential func(r *http.Request) error

// Bearer sends key as an Authorization bearer token.
func Bearer(key string) Credential {
	return func(r *http.Request) error {
		if key == "" {
			return ErrMissingCredential
		}
		r.Header.Set("Authorization", "Bearer "+key)
		return nil
	}
}

// HeaderKey sends key in the named header.
func HeaderKey(name, key string) Credential {
	return func(r *http.Request) error {
		if key == "" {
			return ErrMissingCredential
		}
		r.Header.Set(name, key)
		return nil
	}
}

// SignedToken mints a bearer token per request, as KlingAI requires.
func SignedToken(configured bool, sign func() (string, error)) Credential {
	return func(r *http.Request) error {
		if !configured || sign == nil {
			return ErrMissingCredential
		}
		token, err := sign()
		if err != nil {
			return err
		}
		r.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}
