package githttp

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ryanmoran/gitserve/internal/gitcmd"
)

const fileNotFound = "File not found"

// Handler serves the Git HTTP protocols for the repositories a Policy exposes. It is
// immutable after construction and safe for concurrent use.
type Handler struct {
	policy     Policy
	logger     *zap.Logger
	gitBinary  string
	bufferSize int
	now        func() time.Time
	decoders   map[string]Decoder
	router     chi.Router
}

// HandlerOption is an option for a new Handler.
type HandlerOption func(*Handler)

// WithLogger returns a new HandlerOption that logs through logger.
//
// The default is to not log.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithGitBinary returns a new HandlerOption that runs the pack-protocol engines with the
// given git executable.
//
// The default is "git" from PATH.
func WithGitBinary(binary string) HandlerOption {
	return func(h *Handler) {
		h.gitBinary = binary
	}
}

// WithBufferSize returns a new HandlerOption that sets the relay transfer buffer size.
//
// The default is gitcmd.DefaultBufferSize.
func WithBufferSize(size int) HandlerOption {
	return func(h *Handler) {
		h.bufferSize = size
	}
}

// WithClock returns a new HandlerOption that reads the current time from now when
// computing cache headers.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// WithContentDecoder returns a new HandlerOption that decodes request bodies sent with the
// given Content-Encoding.
//
// The defaults decode gzip, x-gzip and deflate.
func WithContentDecoder(encoding string, decoder Decoder) HandlerOption {
	return func(h *Handler) {
		h.decoders[normalizeEncoding(encoding)] = decoder
	}
}

// WithoutContentDecoding returns a new HandlerOption that removes every content decoder,
// including the defaults. Encoded request bodies are then rejected.
func WithoutContentDecoding() HandlerOption {
	return func(h *Handler) {
		h.decoders = make(map[string]Decoder)
	}
}

// NewHandler returns a Handler serving the repositories exposed by policy under
// /{namespace}/{repo}.
func NewHandler(policy Policy, options ...HandlerOption) *Handler {
	h := &Handler{
		policy:     policy,
		logger:     zap.NewNop(),
		gitBinary:  gitcmd.DefaultBinary,
		bufferSize: gitcmd.DefaultBufferSize,
		now:        time.Now,
		decoders:   defaultDecoders(),
	}
	for _, option := range options {
		option(h)
	}

	router := chi.NewRouter()
	h.Map(router)
	router.NotFound(h.serveUnrouted)
	router.MethodNotAllowed(h.serveUnrouted)
	h.router = router

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Map registers the protocol routes on router under /{namespace}/{repo}.
func (h *Handler) Map(router chi.Router) {
	router.Route("/{namespace}/{repo}", func(r chi.Router) {
		r.Post("/git-upload-pack", h.serve)
		r.Post("/git-receive-pack", h.serve)
		r.Get("/info/refs", h.serve)
		r.Get("/HEAD", h.serve)
		r.Get("/objects/info/alternates", h.serve)
		r.Get("/objects/info/http-alternates", h.serve)
		r.Get("/objects/info/packs", h.serve)
		r.Get("/objects/info/*", h.serve)
		r.Get("/objects/pack/{pack}", h.serve)
		r.NotFound(h.serveUnrouted)
		r.MethodNotAllowed(h.serveUnrouted)
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, Locate(r.Context(), h.policy, r.Method, r.URL))
}

// serveUnrouted handles requests inside the repository scope that match no protocol
// route. They still pass through the gate so that nothing about the repository leaks
// to unauthorized clients.
func (h *Handler) serveUnrouted(w http.ResponseWriter, r *http.Request) {
	loc := Locate(r.Context(), h.policy, r.Method, r.URL)
	loc.Operation = Other
	h.dispatch(w, r, loc)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, loc Location) {
	ctx := r.Context()
	logger := h.logger.With(
		zap.Stringer("operation", loc.Operation),
		zap.String("namespace", chi.URLParam(r, "namespace")),
		zap.String("repo", chi.URLParam(r, "repo")),
	)

	input := AuthInput{Authorization: r.Header.Get("Authorization")}
	if !h.authorize(ctx, logger, loc, input) {
		writeUnauthorized(w)
		return
	}

	switch loc.Operation {
	case InfoRefsUploadPack, InfoRefsReceivePack:
		h.serveAdvertisement(w, r, logger, loc)
	case UploadPack, ReceivePack:
		h.serveRPC(w, r, logger, loc)
	case GetText, ObjectsInfoPacks:
		h.serveFile(w, r, logger, loc, h.textFileHeaders)
	case ObjectsPack:
		h.serveFile(w, r, logger, loc, h.packFileHeaders)
	default:
		writePlain(w, http.StatusNotFound, fileNotFound)
	}
}

// authorize admits anonymous operations on public repositories without looking at
// credentials. Every other request is decided by the Policy's authenticator.
func (h *Handler) authorize(ctx context.Context, logger *zap.Logger, loc Location, input AuthInput) bool {
	if h.policy.AllowAnonymous(ctx, loc.Operation) && h.policy.IsPublicRepository(ctx, loc.Repository) {
		logger.Debug("admitted anonymously")
		return true
	}

	if err := h.policy.Authenticate(ctx, input); err != nil {
		logger.Info("rejected", zap.Bool("credentials", input.Authorization != ""), zap.Error(err))
		return false
	}

	logger.Debug("admitted")
	return true
}

// writeUnauthorized sends the challenge Git clients answer with credentials. The body is
// empty so that the response reveals nothing about the repository.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="git"`)
	w.WriteHeader(http.StatusUnauthorized)
}

func writePlain(w http.ResponseWriter, status int, message string) {
	header := w.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}
