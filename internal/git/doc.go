// Package git hosts a Git HTTP handler on a TCP listener.
//
// The Server type wraps the handler with request IDs, panic recovery, request logging and
// a health endpoint, and serves it in the background until shut down.
package git
