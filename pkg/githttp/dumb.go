package githttp

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// packMaxAge is how long pack files may be cached. A pack is never rewritten under the
// same name.
const packMaxAge = 24 * time.Hour

type headerPolicy func(header http.Header, urlPath string)

// serveFile serves loc.Resource as a static file. Conditional and range requests are
// answered from the file's modification time and size.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, logger *zap.Logger, loc Location, setHeaders headerPolicy) {
	if !loc.contained() {
		logger.Warn("resource outside repository", zap.String("repository", loc.Repository), zap.String("path", loc.Resource))
		writePlain(w, http.StatusNotFound, fileNotFound)
		return
	}

	info, err := os.Stat(loc.Resource)
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && info.IsDir():
		writePlain(w, http.StatusNotFound, fileNotFound)
		return
	case err != nil:
		logger.Warn("failed to stat file", zap.String("path", loc.Resource), zap.Error(err))
		writePlain(w, http.StatusInternalServerError, "Failed to open file")
		return
	}

	file, err := os.Open(loc.Resource)
	if err != nil {
		logger.Warn("failed to open file", zap.String("path", loc.Resource), zap.Error(err))
		writePlain(w, http.StatusInternalServerError, "Failed to open file")
		return
	}
	defer file.Close()

	setHeaders(w.Header(), r.URL.Path)
	http.ServeContent(w, r, "", info.ModTime(), file)
}

// textFileHeaders forbids caching: refs and info files change on every push.
func (h *Handler) textFileHeaders(header http.Header, _ string) {
	setNoCacheHeaders(header)
	header.Set("Content-Type", "text/plain")
}

func (h *Handler) packFileHeaders(header http.Header, urlPath string) {
	now := h.now().UTC()
	header.Set("Date", now.Format(http.TimeFormat))
	header.Set("Expires", now.Add(packMaxAge).Format(http.TimeFormat))
	header.Set("Cache-Control", "public, max-age=86400")
	header.Set("Content-Type", packContentType(urlPath))
}

func packContentType(urlPath string) string {
	switch {
	case strings.HasSuffix(urlPath, ".pack"):
		return "application/x-git-packed-objects"
	case strings.HasSuffix(urlPath, ".idx"):
		return "application/x-git-packed-objects-toc"
	}
	return "application/x-git-loose-object"
}
