package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultReadHeaderTimeout bounds how long a client may take to send request headers.
// Bodies and responses are not bounded, since a clone can stream for a long time.
const DefaultReadHeaderTimeout = 30 * time.Second

type Server struct {
	server   *http.Server
	listener net.Listener
	port     int
	group    *errgroup.Group
}

// NewServer creates and starts an HTTP server serving handler on addr. Use port 0 to pick
// a free port; Port reports the one chosen. Every request gets an ID, is logged to logger,
// and is recovered from panics. GET /health answers 200 without reaching handler.
//
// Returns an error if the TCP listener cannot be created. The server starts immediately
// in a background goroutine.
func NewServer(addr string, handler http.Handler, logger *zap.Logger) (Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return Server{}, fmt.Errorf("failed to listen on %q: %w\nAnother process may be using the port", addr, err)
	}

	_, portString, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		_ = listener.Close()
		return Server{}, fmt.Errorf("failed to split listener host/port: %w", err)
	}

	port, err := strconv.ParseInt(portString, 10, 64)
	if err != nil {
		_ = listener.Close()
		return Server{}, fmt.Errorf("failed to parse listener port: %w", err)
	}

	mux := chi.NewMux()
	mux.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		middleware.Recoverer,
	)
	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	mux.Mount("/", handler)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	group := &errgroup.Group{}
	group.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("git server stopped", zap.Error(err))
			return err
		}
		return nil
	})

	logger.Info("serving", zap.String("address", listener.Addr().String()))

	return Server{
		server:   server,
		listener: listener,
		port:     int(port),
		group:    group,
	}, nil
}

// Port returns the TCP port number that the server is listening on.
func (s Server) Port() int {
	return s.port
}

// Shutdown stops accepting connections and waits for in-flight requests to finish, or
// for ctx to be done.
// Returns an error if ctx expires first or the server failed while serving.
func (s Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down git server: %w", err)
	}
	return s.group.Wait()
}

// Close stops the server immediately, closing the listener and every connection.
// Returns an error if the server cannot be closed cleanly.
func (s Server) Close() error {
	if err := s.server.Close(); err != nil {
		return err
	}
	return s.group.Wait()
}
