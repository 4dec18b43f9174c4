// Package auth provides authentication middleware for floorscore-server.
//
// Middleware(mode, header, key, open...) wraps an http.Handler and checks the
// key on every request. Mode "apikey" reads the named header, mode "bearer"
// reads the Authorization header, and both accept a ?token= query parameter
// for WebSocket clients.
//
// When mode is "none" or key == "", all requests pass through (useful for local
// development with auth disabled). Paths listed in open are never checked.
// When the key is incorrect or absent, the middleware returns 401 immediately.
package auth
