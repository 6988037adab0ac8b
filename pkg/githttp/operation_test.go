package githttp_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryanmoran/gitserve/pkg/githttp"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		target   string
		expected githttp.Operation
	}{
		{"upload-pack refs", http.MethodGet, "/ns/repo.git/info/refs?service=git-upload-pack", githttp.InfoRefsUploadPack},
		{"receive-pack refs", http.MethodGet, "/ns/repo.git/info/refs?service=git-receive-pack", githttp.InfoRefsReceivePack},
		{"refs without service", http.MethodGet, "/ns/repo.git/info/refs", githttp.Other},
		{"refs with unknown service", http.MethodGet, "/ns/repo.git/info/refs?service=git-upload-archive", githttp.Other},
		{"upload-pack", http.MethodPost, "/ns/repo.git/git-upload-pack", githttp.UploadPack},
		{"receive-pack", http.MethodPost, "/ns/repo.git/git-receive-pack", githttp.ReceivePack},
		{"upload-pack over GET", http.MethodGet, "/ns/repo.git/git-upload-pack", githttp.Other},
		{"HEAD", http.MethodGet, "/ns/repo.git/HEAD", githttp.GetText},
		{"HEAD over POST", http.MethodPost, "/ns/repo.git/HEAD", githttp.Other},
		{"alternates", http.MethodGet, "/ns/repo.git/objects/info/alternates", githttp.GetText},
		{"http-alternates", http.MethodGet, "/ns/repo.git/objects/info/http-alternates", githttp.GetText},
		{"other info file", http.MethodGet, "/ns/repo.git/objects/info/commit-graph", githttp.GetText},
		{"info packs", http.MethodGet, "/ns/repo.git/objects/info/packs", githttp.ObjectsInfoPacks},
		{"pack", http.MethodGet, "/ns/repo.git/objects/pack/pack-1234.pack", githttp.ObjectsPack},
		{"idx", http.MethodGet, "/ns/repo.git/objects/pack/pack-1234.idx", githttp.ObjectsPack},
		{"description", http.MethodGet, "/ns/repo.git/description", githttp.Other},
		{"root", http.MethodGet, "/", githttp.Other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.target)
			require.NoError(t, err)
			require.Equal(t, tt.expected, githttp.Classify(tt.method, u))
		})
	}

	t.Run("pack paths take precedence over every other rule", func(t *testing.T) {
		targets := []string{
			"/ns/repo.git/objects/pack/x/info/refs?service=git-upload-pack",
			"/ns/repo.git/objects/pack/objects/info/packs",
			"/ns/repo.git/objects/pack/git-upload-pack",
			"/ns/repo.git/objects/pack/HEAD",
			"/objects/pack/",
		}
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut} {
			for _, target := range targets {
				u, err := url.Parse(target)
				require.NoError(t, err)
				require.Equal(t, githttp.ObjectsPack, githttp.Classify(method, u), "%s %s", method, target)
			}
		}
	})
}

func TestRepositoryPrefix(t *testing.T) {
	require.Equal(t, "/ns/repo.git", githttp.RepositoryPrefix("/ns/repo.git/objects/pack/pack-1234.pack"))
	require.Equal(t, "/ns/repo.git", githttp.RepositoryPrefix("/ns/repo.git"))
	require.Equal(t, "/ns/repo.git", githttp.RepositoryPrefix("/ns/repo.git/sub.git/HEAD"))
	require.Equal(t, "/ns/repo/HEAD", githttp.RepositoryPrefix("/ns/repo/HEAD"))
}

type recordingPolicy struct {
	*githttp.DefaultPolicy
	mu    sync.Mutex
	paths []string
}

func (p *recordingPolicy) Rewrite(ctx context.Context, urlPath string) string {
	p.mu.Lock()
	p.paths = append(p.paths, urlPath)
	p.mu.Unlock()
	return "/rewritten" + urlPath
}

func TestLocate(t *testing.T) {
	policy := &recordingPolicy{DefaultPolicy: githttp.NewDefaultPolicy("/srv")}

	u, err := url.Parse("/ns/repo.git/objects/pack/pack-1234.idx")
	require.NoError(t, err)

	loc := githttp.Locate(context.Background(), policy, http.MethodGet, u)
	require.Equal(t, githttp.Location{
		Operation:  githttp.ObjectsPack,
		Repository: "/rewritten/ns/repo.git",
		Resource:   "/rewritten/ns/repo.git/objects/pack/pack-1234.idx",
	}, loc)
	require.Equal(t, []string{"/ns/repo.git", "/ns/repo.git/objects/pack/pack-1234.idx"}, policy.paths)

	t.Run("resolves dot-dot segments before locating the repository", func(t *testing.T) {
		targets := []string{
			"/ns/public.git/objects/info/../../../../secret/private.git/HEAD",
			"/ns/public.git/objects/info/%2e%2e/%2e%2e/%2e%2e/%2e%2e/secret/private.git/HEAD",
			"/ns/public.git/../../secret/./private.git//HEAD",
		}
		for _, target := range targets {
			u, err := url.Parse(target)
			require.NoError(t, err)

			loc := githttp.Locate(context.Background(), policy, http.MethodGet, u)
			require.Equal(t, githttp.Location{
				Operation:  githttp.GetText,
				Repository: "/rewritten/secret/private.git",
				Resource:   "/rewritten/secret/private.git/HEAD",
			}, loc, target)
			require.True(t, strings.HasPrefix(loc.Resource, loc.Repository), target)
		}
	})

	t.Run("cannot climb above the root", func(t *testing.T) {
		u, err := url.Parse("/../../ns/repo.git/info/refs?service=git-receive-pack")
		require.NoError(t, err)

		loc := githttp.Locate(context.Background(), policy, http.MethodGet, u)
		require.Equal(t, githttp.InfoRefsReceivePack, loc.Operation)
		require.Equal(t, "/rewritten/ns/repo.git", loc.Repository)
	})
}

func TestOperation(t *testing.T) {
	require.Equal(t, "info-refs-receive-pack", githttp.InfoRefsReceivePack.String())
	require.Equal(t, "other", githttp.Operation(200).String())

	require.True(t, githttp.ReceivePack.IsWrite())
	require.True(t, githttp.InfoRefsReceivePack.IsWrite())
	require.False(t, githttp.UploadPack.IsWrite())
	require.False(t, githttp.ObjectsPack.IsWrite())
}
