package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ryanmoran/gitserve/internal"
	"github.com/ryanmoran/gitserve/internal/auth"
	"github.com/ryanmoran/gitserve/internal/git"
	"github.com/ryanmoran/gitserve/pkg/githttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args, os.Environ(), os.Stderr, nil); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// policy serves the repositories below the configured root. Public repositories are
// readable anonymously; everything else needs the credentials of the netrc entry.
type policy struct {
	*githttp.DefaultPolicy
	auth.Netrc
}

func (p policy) Authenticate(ctx context.Context, input githttp.AuthInput) error {
	return p.Netrc.Authenticate(ctx, input)
}

// run serves until ctx is cancelled. When ready is non-nil, it receives the listening
// port once the server accepts connections.
func run(ctx context.Context, args, env []string, stderr io.Writer, ready chan<- int) error {
	config, err := internal.ParseConfig(args[1:], env)
	if err != nil {
		return err
	}

	logger, err := internal.NewLogger(stderr, config.LogLevel)
	if err != nil {
		return err
	}

	cleanupMgr := internal.NewCleanupManager(logger)
	defer cleanupMgr.Execute()
	cleanupMgr.Add("logger", func() error {
		// Syncing a terminal or pipe fails with EINVAL on some platforms.
		_ = logger.Sync()
		return nil
	})

	root, err := filepath.Abs(config.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path for %q: %w\nCheck that the path exists and is accessible", config.Root, err)
	}

	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		logger.Warn("repository root does not exist, creating it", zap.String("root", root))
		if err := os.MkdirAll(root, 0755); err != nil {
			return fmt.Errorf("failed to create repository root %q: %w\nCheck the permissions of its parent directory", root, err)
		}
	}

	if config.NetrcPath == "" {
		logger.Warn("no netrc file configured, only anonymous reads of public repositories are allowed")
	}

	handler := githttp.NewHandler(
		policy{
			DefaultPolicy: githttp.NewDefaultPolicy(root),
			Netrc:         auth.NewNetrc(config.NetrcPath, config.NetrcMachine),
		},
		githttp.WithLogger(logger.Named("githttp")),
		githttp.WithGitBinary(config.GitBinary),
	)

	server, err := git.NewServer(config.Address(), handler, logger)
	if err != nil {
		return fmt.Errorf("failed to start git server on %q: %w", config.Address(), err)
	}
	cleanupMgr.Add("git-server", server.Close)

	logger.Info("serving repositories", zap.String("root", root), zap.Int("port", server.Port()))
	if ready != nil {
		ready <- server.Port()
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.Duration("timeout", config.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}

	return nil
}
