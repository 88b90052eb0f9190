package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKey requires an "Authorization: Bearer <key>" header matching one of
// keys. With no keys configured every request passes.
func APIKey(keys ...string) func(http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			allowed = append(allowed, []byte(k))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			presented := []byte(strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")))
			match := 0
			for _, k := range allowed {
				match |= subtle.ConstantTimeCompare(presented, k)
			}
			if match != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
