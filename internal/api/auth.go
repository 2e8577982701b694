package api

import (
	"errors"
	"net/http"
)

// Authenticator resolves the username behind an HTTP request. The hub does
// not run its own account system; deployments sit behind an auth proxy and
// plug in an Authenticator that trusts its headers.
type Authenticator func(r *http.Request) (string, error)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// HeaderAuthenticator trusts a username header set by the auth proxy.
// This is the default with the X-Username header.
func HeaderAuthenticator(header string) Authenticator {
	return func(r *http.Request) (string, error) {
		username := r.Header.Get(header)
		if !ValidUsername(username) {
			return "", ErrUnauthenticated
		}
		return username, nil
	}
}

// ValidUsername reports whether a username is 3-20 characters of lowercase
// letters, digits, underscores, or hyphens.
func ValidUsername(username string) bool {
	if len(username) < 3 || len(username) > 20 {
		return false
	}
	for _, c := range username {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
