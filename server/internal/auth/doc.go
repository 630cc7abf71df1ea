// Package auth provides authentication middleware for the sleeperqc server.
//
// APIKey(mode, header, key, public...) wraps an http.Handler and validates
// the API key from the named request header. It guards both the agent ingest
// endpoint and the REST API.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled).
package auth
