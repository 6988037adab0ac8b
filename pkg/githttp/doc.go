// Package githttp serves Git repositories over the Smart and Dumb HTTP
// transports.
//
// A Handler classifies each request under /{namespace}/{repo} into an
// Operation, resolves it to a repository directory through a Policy, applies
// the Policy's authorization decision, and then either streams a negotiation
// exchange through git upload-pack / receive-pack or serves a static
// repository file with protocol-correct caching headers.
//
// Authorization always happens before any repository byte is read or any
// subprocess is spawned. Pack data is streamed through fixed-size buffers and
// is never held in memory as a whole.
//
// Example usage:
//
//	policy := githttp.NewDefaultPolicy("/srv/git")
//	handler := githttp.NewHandler(policy, githttp.WithLogger(logger))
//	http.ListenAndServe(":8080", handler)
//
// DefaultPolicy rejects every request that requires credentials. Embed it and
// define Authenticate to plug in a credential store.
package githttp
