package githttp

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	// ExportOkFile marks a repository as publicly readable, as with git-daemon.
	ExportOkFile = "git-daemon-export-ok"

	// AllowAnonymousDirective is the repository config line that marks it as public.
	AllowAnonymousDirective = "http.allowAnonymous = true"
)

// ErrUnauthorized is the canonical rejection returned by Policy.Authenticate.
var ErrUnauthorized = errors.New("unauthorized")

// Policy decides where repositories live and who may access them. A single Policy is
// shared by all concurrent requests of a Handler and must be safe for concurrent use.
type Policy interface {
	// Rewrite maps a URL path to a filesystem location. Both the repository prefix and the
	// full request path are passed through it.
	Rewrite(ctx context.Context, urlPath string) string

	// Authenticate admits the request by returning nil. Any error rejects it; the error
	// is logged and never shown to the client.
	Authenticate(ctx context.Context, input AuthInput) error

	// IsPublicRepository reports whether the repository at repoPath may be read anonymously.
	IsPublicRepository(ctx context.Context, repoPath string) bool

	// AllowAnonymous reports whether op may skip authentication on a public repository.
	AllowAnonymous(ctx context.Context, op Operation) bool
}

// AuthInput carries the credentials of a request, copied out of it before the
// Policy is consulted.
type AuthInput struct {
	// Authorization is the raw Authorization header value. Empty when none was sent.
	Authorization string
}

// BasicCredentials decodes a Basic Authorization value.
func (a AuthInput) BasicCredentials() (username, password string, ok bool) {
	scheme, encoded, found := strings.Cut(a.Authorization, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	return username, password, true
}

// DefaultPolicy serves repositories below Root. Public repositories are readable by
// anyone; everything else is rejected. Embed it and define Authenticate to accept
// credentials.
type DefaultPolicy struct {
	Root string
}

// NewDefaultPolicy returns a DefaultPolicy serving repositories below root.
func NewDefaultPolicy(root string) *DefaultPolicy {
	return &DefaultPolicy{Root: root}
}

// Rewrite joins urlPath below Root. Neither ".." segments nor symlinks can resolve to a
// location outside Root.
func (p *DefaultPolicy) Rewrite(_ context.Context, urlPath string) string {
	resolved, err := securejoin.SecureJoin(p.Root, urlPath)
	if err != nil {
		return filepath.Join(p.Root, filepath.FromSlash(path.Clean("/"+urlPath)))
	}
	return resolved
}

// Authenticate rejects every request.
func (p *DefaultPolicy) Authenticate(context.Context, AuthInput) error {
	return ErrUnauthorized
}

// IsPublicRepository reports whether repoPath contains ExportOkFile, or its config
// contains AllowAnonymousDirective. An unreadable config counts as private.
func (p *DefaultPolicy) IsPublicRepository(_ context.Context, repoPath string) bool {
	if _, err := os.Stat(filepath.Join(repoPath, ExportOkFile)); err == nil {
		return true
	}

	config, err := os.Open(filepath.Join(repoPath, "config"))
	if err != nil {
		return false
	}
	defer config.Close()

	scanner := bufio.NewScanner(config)
	for scanner.Scan() {
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), AllowAnonymousDirective) {
			return true
		}
	}
	return false
}

// AllowAnonymous admits read operations. Writes and unrecognized requests always
// require authentication.
func (p *DefaultPolicy) AllowAnonymous(_ context.Context, op Operation) bool {
	return op != Other && !op.IsWrite()
}
