package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Supported modes.
const (
	ModeNone   = "none"
	ModeAPIKey = "apikey"
	ModeBearer = "bearer"
)

// TokenParam is the query parameter accepted in place of a header. Browsers
// cannot set headers on WebSocket upgrades.
const TokenParam = "token"

// Middleware returns HTTP middleware that enforces authentication on every
// request whose path is not listed in open.
//
// Behaviour:
//   - If mode is neither "apikey" nor "bearer", or key == "", all requests
//     are allowed (pass-through).
//   - "apikey" reads the named header and compares it to key.
//   - "bearer" reads "Authorization: Bearer <key>".
//   - Either mode also accepts ?token=<key>.
//   - A missing, empty, or incorrect key returns 401 with a JSON body.
func Middleware(mode, header, key string, open ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if (mode != ModeAPIKey && mode != ModeBearer) || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range open {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			if !equal(credential(r, mode, header), key) {
				w.Header().Set("Content-Type", "application/json")
				if mode == ModeBearer {
					w.Header().Set("WWW-Authenticate", `Bearer realm="floorscore"`)
				}
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"}) //nolint:errcheck
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// credential extracts the presented key for mode, or "".
func credential(r *http.Request, mode, header string) string {
	var v string
	switch mode {
	case ModeAPIKey:
		v = r.Header.Get(header)
	case ModeBearer:
		scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			v = strings.TrimSpace(tok)
		}
	}
	if v == "" {
		v = r.URL.Query().Get(TokenParam)
	}
	return v
}

func equal(got, want string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
