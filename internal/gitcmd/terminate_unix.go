//go:build unix

package gitcmd

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// terminate asks the engine to exit. Engines holding ref-update locks get a chance to
// release them; Command.WaitDelay bounds how long they may take.
func terminate(cmd *exec.Cmd) func() error {
	return func() error {
		return cmd.Process.Signal(unix.SIGTERM)
	}
}
