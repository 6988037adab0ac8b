//go:build !unix

package gitcmd

import "os/exec"

func terminate(cmd *exec.Cmd) func() error {
	return func() error {
		return cmd.Process.Kill()
	}
}
