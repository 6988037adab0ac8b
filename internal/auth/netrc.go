package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"os"

	netrc "github.com/jdx/go-netrc"

	"github.com/ryanmoran/gitserve/pkg/githttp"
)

// DefaultMachine is the netrc machine whose login and password are accepted.
const DefaultMachine = "gitserve"

// Netrc accepts the Basic credentials recorded for Machine in the netrc file at Path.
// The file is read on every call, so edits take effect without a restart.
type Netrc struct {
	Path    string
	Machine string
}

// NewNetrc returns a Netrc reading the credentials of machine from path.
func NewNetrc(path, machine string) Netrc {
	if machine == "" {
		machine = DefaultMachine
	}
	return Netrc{Path: path, Machine: machine}
}

// Authenticate admits requests whose Basic credentials match the netrc entry.
//
// Returns githttp.ErrUnauthorized when the credentials are missing or do not match, and
// when the file or the machine entry does not exist. Returns a wrapped error when the
// file cannot be parsed.
func (n Netrc) Authenticate(_ context.Context, input githttp.AuthInput) error {
	username, password, ok := input.BasicCredentials()
	if !ok {
		return githttp.ErrUnauthorized
	}

	login, secret, err := n.credentials()
	if err != nil {
		return err
	}

	loginMatch := subtle.ConstantTimeCompare([]byte(username), []byte(login))
	secretMatch := subtle.ConstantTimeCompare([]byte(password), []byte(secret))
	if loginMatch&secretMatch != 1 {
		return githttp.ErrUnauthorized
	}

	return nil
}

func (n Netrc) credentials() (string, string, error) {
	if n.Path == "" {
		return "", "", fmt.Errorf("%w: no netrc file configured", githttp.ErrUnauthorized)
	}

	if _, err := os.Stat(n.Path); errors.Is(err, fs.ErrNotExist) {
		return "", "", fmt.Errorf("%w: netrc file %s does not exist", githttp.ErrUnauthorized, n.Path)
	}

	file, err := netrc.Parse(n.Path)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse netrc file %s: %w", n.Path, err)
	}

	machine := file.Machine(n.Machine)
	if machine == nil {
		return "", "", fmt.Errorf("%w: no netrc entry for machine %q", githttp.ErrUnauthorized, n.Machine)
	}

	login, password := machine.Get("login"), machine.Get("password")
	if login == "" || password == "" {
		return "", "", fmt.Errorf("%w: incomplete netrc entry for machine %q", githttp.ErrUnauthorized, n.Machine)
	}

	return login, password, nil
}
