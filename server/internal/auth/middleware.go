package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// APIKey returns HTTP middleware that enforces API key authentication.
//
// Behaviour:
//   - If mode != "apikey" or key == "", every request passes through.
//   - Requests for one of the public paths always pass.
//   - Otherwise the value of header must equal key; a missing or wrong key
//     gets 401 with a JSON error body.
func APIKey(mode, header, key string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		if mode != "apikey" || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(header)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"}) //nolint:errcheck
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
