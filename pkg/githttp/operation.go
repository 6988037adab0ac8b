package githttp

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/ryanmoran/gitserve/internal/gitcmd"
)

// Operation is the Git protocol operation a request performs.
type Operation uint8

const (
	// Other is any request that does not match a known protocol shape.
	Other Operation = iota
	// InfoRefsUploadPack is GET info/refs?service=git-upload-pack.
	InfoRefsUploadPack
	// InfoRefsReceivePack is GET info/refs?service=git-receive-pack.
	InfoRefsReceivePack
	// UploadPack is POST git-upload-pack.
	UploadPack
	// ReceivePack is POST git-receive-pack.
	ReceivePack
	// GetText is GET of HEAD or objects/info/*.
	GetText
	// ObjectsInfoPacks is GET objects/info/packs.
	ObjectsInfoPacks
	// ObjectsPack is GET objects/pack/*.
	ObjectsPack
)

var operationNames = [...]string{
	Other:               "other",
	InfoRefsUploadPack:  "info-refs-upload-pack",
	InfoRefsReceivePack: "info-refs-receive-pack",
	UploadPack:          "upload-pack",
	ReceivePack:         "receive-pack",
	GetText:             "get-text",
	ObjectsInfoPacks:    "objects-info-packs",
	ObjectsPack:         "objects-pack",
}

func (o Operation) String() string {
	if int(o) < len(operationNames) {
		return operationNames[o]
	}
	return operationNames[Other]
}

// IsWrite reports whether the operation updates the repository.
func (o Operation) IsWrite() bool {
	return o == InfoRefsReceivePack || o == ReceivePack
}

// service returns the pack-protocol engine behind a smart operation.
func (o Operation) service() (gitcmd.Service, bool) {
	switch o {
	case InfoRefsUploadPack, UploadPack:
		return gitcmd.UploadPack, true
	case InfoRefsReceivePack, ReceivePack:
		return gitcmd.ReceivePack, true
	}
	return 0, false
}

// Classify maps a request method and URL to an Operation. The rules are checked in order;
// pack paths take precedence over everything else.
func Classify(method string, u *url.URL) Operation {
	p := u.Path
	switch {
	case strings.Contains(p, "objects/pack/"):
		return ObjectsPack
	case strings.Contains(p, "objects/info/packs"):
		return ObjectsInfoPacks
	case strings.HasSuffix(p, "/info/refs"):
		service, err := gitcmd.ParseService(u.Query().Get("service"))
		if err != nil {
			return Other
		}
		if service == gitcmd.ReceivePack {
			return InfoRefsReceivePack
		}
		return InfoRefsUploadPack
	case method == http.MethodPost && strings.HasSuffix(p, "/git-upload-pack"):
		return UploadPack
	case method == http.MethodPost && strings.HasSuffix(p, "/git-receive-pack"):
		return ReceivePack
	case method == http.MethodGet && (strings.HasSuffix(p, "/HEAD") || strings.Contains(p, "objects/info/")):
		return GetText
	}
	return Other
}

// RepositoryPrefix returns the URL path up to and including the first ".git". Paths
// without ".git" are returned whole.
func RepositoryPrefix(p string) string {
	if i := strings.Index(p, ".git"); i >= 0 {
		return p[:i+len(".git")]
	}
	return p
}

// Location is a classified request resolved against the filesystem.
type Location struct {
	Operation Operation

	// Repository is the rewritten repository prefix. It is used for authorization and as
	// the working directory of pack-protocol engines, never to serve content.
	Repository string

	// Resource is the rewritten full request path, served by the dumb protocol.
	Resource string
}

// Locate classifies the request and resolves both its repository and resource through
// the same Policy.Rewrite. The URL path is cleaned first, so the repository is always a
// prefix of the resource.
func Locate(ctx context.Context, policy Policy, method string, u *url.URL) Location {
	cleaned := *u
	cleaned.Path = path.Clean("/" + u.Path)
	cleaned.RawPath = ""

	return Location{
		Operation:  Classify(method, &cleaned),
		Repository: policy.Rewrite(ctx, RepositoryPrefix(cleaned.Path)),
		Resource:   policy.Rewrite(ctx, cleaned.Path),
	}
}

// contained reports whether Resource is Repository or lies below it.
func (l Location) contained() bool {
	return l.Resource == l.Repository ||
		strings.HasPrefix(l.Resource, strings.TrimSuffix(l.Repository, string(filepath.Separator))+string(filepath.Separator))
}
