package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenAuth checks a shared secret. An empty token disables the check.
type TokenAuth struct {
	token string
}

func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

func (a *TokenAuth) Enabled() bool { return a.token != "" }

// Check compares candidate with the configured token in constant time.
func (a *TokenAuth) Check(candidate string) error {
	if !a.Enabled() {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(a.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FromRequest takes the token from an "Authorization: Bearer" header or the
// token query parameter. Browsers cannot set headers on WebSocket upgrades.
func FromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects unauthenticated requests with 401.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Check(FromRequest(r)); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
