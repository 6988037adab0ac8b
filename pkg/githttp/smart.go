package githttp

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/ryanmoran/gitserve/internal/gitcmd"
)

// responseOutput commits the HTTP response only when the engine starts producing output,
// and flushes every chunk so that progress reaches the client as it is generated.
type responseOutput struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	begin func() error
}

func newResponseOutput(w http.ResponseWriter, begin func() error) *responseOutput {
	return &responseOutput{
		w:     w,
		rc:    http.NewResponseController(w),
		begin: begin,
	}
}

func (o *responseOutput) Begin() error {
	return o.begin()
}

func (o *responseOutput) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := o.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}

// serveAdvertisement answers info/refs?service=... with the service announcement followed
// by the engine's own ref advertisement.
func (h *Handler) serveAdvertisement(w http.ResponseWriter, r *http.Request, logger *zap.Logger, loc Location) {
	service, _ := loc.Operation.service()

	announcement, err := ServiceAnnouncement(service.Name())
	if err != nil {
		logger.Error("failed to build service announcement", zap.Error(err))
		writePlain(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	out := newResponseOutput(w, func() error {
		header := w.Header()
		header.Set("Content-Type", fmt.Sprintf("application/x-%s-advertisement", service.Name()))
		setNoCacheHeaders(header)
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(announcement)
		return err
	})

	cmd, closeStderr := h.command(r, logger, service, loc)
	defer closeStderr()

	h.finishExchange(w, logger, cmd.Advertise(r.Context(), out))
}

// serveRPC relays one stateless negotiation turn between the client and the engine.
func (h *Handler) serveRPC(w http.ResponseWriter, r *http.Request, logger *zap.Logger, loc Location) {
	service, _ := loc.Operation.service()

	if contentType := r.Header.Get("Content-Type"); contentType != fmt.Sprintf("application/x-%s-request", service.Name()) {
		logger.Info("rejected request content type", zap.String("content_type", contentType))
		writePlain(w, http.StatusUnsupportedMediaType, http.StatusText(http.StatusUnsupportedMediaType))
		return
	}

	body, err := h.requestBody(r)
	if err != nil {
		logger.Info("rejected request body", zap.Error(err))
		if errors.Is(err, errUnsupportedEncoding) {
			writePlain(w, http.StatusUnsupportedMediaType, http.StatusText(http.StatusUnsupportedMediaType))
		} else {
			writePlain(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		}
		return
	}
	defer body.Close()

	// Without full duplex an HTTP/1.1 server stops reading the request body once the
	// response has started.
	if err := http.NewResponseController(w).EnableFullDuplex(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Debug("full duplex unavailable", zap.Error(err))
	}

	out := newResponseOutput(w, func() error {
		w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-result", service.Name()))
		w.WriteHeader(http.StatusOK)
		return nil
	})

	cmd, closeStderr := h.command(r, logger, service, loc)
	defer closeStderr()

	h.finishExchange(w, logger, cmd.StatelessRPC(r.Context(), body, out))
}

func (h *Handler) command(r *http.Request, logger *zap.Logger, service gitcmd.Service, loc Location) (gitcmd.Command, func()) {
	stderr := &zapio.Writer{Log: logger.With(zap.String("service", service.Name())), Level: zap.WarnLevel}
	cmd := gitcmd.Command{
		Binary:     h.gitBinary,
		Service:    service,
		Dir:        loc.Repository,
		Env:        environment(r),
		Stderr:     stderr,
		BufferSize: h.bufferSize,
	}
	return cmd, func() { _ = stderr.Close() }
}

// finishExchange reports the outcome of a relay. Failures before any output become a 500;
// failures after output has been sent can only truncate the response.
func (h *Handler) finishExchange(w http.ResponseWriter, logger *zap.Logger, err error) {
	if err == nil {
		logger.Debug("exchange finished")
		return
	}

	var startErr *gitcmd.StartError
	if errors.As(err, &startErr) {
		logger.Warn("git service failed before responding", zap.Error(err))
		writePlain(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	logger.Error("git service failed mid-stream", zap.Error(err))
}

// environment exports the client's requested protocol version to the engine.
func environment(r *http.Request) []string {
	protocol := r.Header.Get("Git-Protocol")
	if protocol == "" {
		return nil
	}
	return append(os.Environ(), "GIT_PROTOCOL="+protocol)
}

func setNoCacheHeaders(header http.Header) {
	header.Set("Expires", "Fri, 01 Jan 1980 00:00:00 GMT")
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache, max-age=0, must-revalidate")
}
