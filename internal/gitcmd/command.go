package gitcmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBinary is the git executable looked up in PATH when Command.Binary is empty.
	DefaultBinary = "git"

	// DefaultBufferSize is the size of each transfer buffer used by the relay. Memory use of
	// a relay is bounded by a small multiple of this value regardless of pack size.
	DefaultBufferSize = 32 * 1024

	// DefaultWaitDelay is how long a terminated engine may take to exit before it is killed.
	DefaultWaitDelay = 5 * time.Second
)

// Output receives the relayed output of a Command.
type Output interface {
	io.Writer

	// Begin is called exactly once, before the first Write. It is not called when the
	// engine fails before producing any output, which lets callers commit response headers
	// only once the exchange is known to be underway.
	Begin() error
}

// StartError reports a failure that happened before any output reached the Output:
// the engine could not be spawned, or it exited unsuccessfully without writing anything.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start git service: %v", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Command describes one invocation of a pack-protocol engine against a repository.
type Command struct {
	// Binary is the git executable. Defaults to DefaultBinary.
	Binary string

	Service Service

	// Dir is the repository directory the engine runs in.
	Dir string

	// Env is the engine environment. A nil Env inherits the current process environment.
	Env []string

	// Stderr receives the engine's diagnostics. Nil discards them.
	Stderr io.Writer

	// BufferSize is the relay transfer buffer size. Defaults to DefaultBufferSize.
	BufferSize int

	// WaitDelay bounds how long a terminated engine may linger. Defaults to DefaultWaitDelay.
	WaitDelay time.Duration
}

// Advertise runs the engine in advertisement-only mode and relays its ref advertisement
// to out. No input is sent to the engine.
func (c Command) Advertise(ctx context.Context, out Output) error {
	return c.run(ctx, nil, out, "--stateless-rpc", "--advertise-refs", ".")
}

// StatelessRPC runs one stateless negotiation turn: in is streamed to the engine's stdin
// while its stdout is streamed to out. Both directions progress independently. If either
// copy fails, or ctx is cancelled, the engine is terminated and the relay stops.
//
// Returns a *StartError if nothing was written to out, otherwise any copy or exit error.
// Output already relayed cannot be retracted.
func (c Command) StatelessRPC(ctx context.Context, in io.Reader, out Output) error {
	return c.run(ctx, in, out, "--stateless-rpc", ".")
}

func (c Command) run(ctx context.Context, in io.Reader, out Output, args ...string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary(), append([]string{c.Service.String()}, args...)...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stderr = c.Stderr
	cmd.Cancel = terminate(cmd)
	cmd.WaitDelay = c.waitDelay()

	var stdin io.WriteCloser
	if in != nil {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return &StartError{Err: err}
		}
		stdin = pipe
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &StartError{Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &StartError{Err: fmt.Errorf("failed to run %s in %q: %w", c.Service.Name(), c.Dir, err)}
	}

	var eg errgroup.Group
	if stdin != nil {
		eg.Go(func() error {
			defer stdin.Close()
			if _, err := io.CopyBuffer(stdin, in, make([]byte, c.bufferSize())); err != nil {
				cancel()
				return fmt.Errorf("failed to relay input to %s: %w", c.Service.Name(), err)
			}
			return nil
		})
	}

	reader := bufio.NewReaderSize(stdout, c.bufferSize())
	if _, err := reader.Peek(1); err != nil {
		// The engine closed its output without writing anything.
		waitErr := cmd.Wait()
		relayErr := eg.Wait()
		if waitErr != nil || relayErr != nil {
			return &StartError{Err: multierr.Combine(waitErr, relayErr)}
		}
		return out.Begin()
	}

	var copyErr error
	if err := out.Begin(); err != nil {
		cancel()
		copyErr = err
	} else if _, err := reader.WriteTo(out); err != nil {
		cancel()
		copyErr = fmt.Errorf("failed to relay output of %s: %w", c.Service.Name(), err)
	}

	waitErr := cmd.Wait()
	if waitErr != nil {
		waitErr = fmt.Errorf("%s exited: %w", c.Service.Name(), waitErr)
	}
	return multierr.Combine(copyErr, eg.Wait(), waitErr)
}

func (c Command) binary() string {
	if c.Binary == "" {
		return DefaultBinary
	}
	return c.Binary
}

func (c Command) bufferSize() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

func (c Command) waitDelay() time.Duration {
	if c.WaitDelay <= 0 {
		return DefaultWaitDelay
	}
	return c.WaitDelay
}
