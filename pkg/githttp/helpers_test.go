package githttp_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryanmoran/gitserve/pkg/githttp"
)

// testPolicy serves repositories below a root, with a fixed public flag and a single
// accepted Authorization value. It counts authenticator calls.
type testPolicy struct {
	*githttp.DefaultPolicy
	public    bool
	accept    string
	authCalls atomic.Int32
}

func (p *testPolicy) IsPublicRepository(context.Context, string) bool {
	return p.public
}

func (p *testPolicy) Authenticate(_ context.Context, input githttp.AuthInput) error {
	p.authCalls.Add(1)
	if p.accept != "" && input.Authorization == p.accept {
		return nil
	}
	return githttp.ErrUnauthorized
}

// newRepository lays out the files of a repository served at /some-namespace/some-repo.git
// and returns the root directory.
func newRepository(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	repo := filepath.Join(root, "some-namespace", "some-repo.git")

	files := map[string]string{
		"HEAD":                            "ref: refs/heads/main\n",
		"config":                          "[core]\n\tbare = true\n",
		"objects/info/packs":              "P pack-1234.pack\n\n",
		"objects/info/alternates":         "/srv/shared/objects\n",
		"objects/pack/pack-1234.pack":     "PACK-some-pack-data",
		"objects/pack/pack-1234.idx":      "some-index-data",
		"objects/pack/pack-1234.keep":     "",
		"objects/info/nested/placeholder": "",
	}
	for name, content := range files {
		path := filepath.Join(repo, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	return root
}

// stubGit writes a shell script standing in for git: it prints a fixed advertisement in
// --advertise-refs mode and echoes its input otherwise.
func stubGit(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "git")
	script := `#!/bin/sh
if [ "$3" = "--advertise-refs" ]; then
	printf 'some-advertisement'
	exit 0
fi
exec cat
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))

	return path
}
