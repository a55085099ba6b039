// Package middleware provides the HTTP middleware chain for the API server:
// request ID assignment, structured access logging and Redis-backed
// per-organization rate limiting.
package middleware
