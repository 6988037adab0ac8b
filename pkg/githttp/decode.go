package githttp

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/pgzip"
)

const (
	// gzip read-ahead is bounded to gzipBlocks blocks of gzipBlockSize bytes.
	gzipBlockSize = 256 * 1024
	gzipBlocks    = 4
)

var errUnsupportedEncoding = errors.New("unsupported content encoding")

// Decoder wraps an encoded request body in a reader yielding the decoded stream.
type Decoder func(io.Reader) (io.ReadCloser, error)

func defaultDecoders() map[string]Decoder {
	gzipDecoder := func(r io.Reader) (io.ReadCloser, error) {
		return pgzip.NewReaderN(r, gzipBlockSize, gzipBlocks)
	}
	return map[string]Decoder{
		"gzip":    gzipDecoder,
		"x-gzip":  gzipDecoder,
		"deflate": zlib.NewReader,
	}
}

// requestBody returns the request body with its Content-Encoding removed. Decoding is
// streaming; the caller must close the returned reader.
func (h *Handler) requestBody(r *http.Request) (io.ReadCloser, error) {
	encoding := normalizeEncoding(r.Header.Get("Content-Encoding"))
	if encoding == "" || encoding == "identity" {
		return r.Body, nil
	}

	decoder, ok := h.decoders[encoding]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnsupportedEncoding, encoding)
	}

	body, err := decoder(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s request body: %w", encoding, err)
	}
	return body, nil
}

func normalizeEncoding(encoding string) string {
	return strings.ToLower(strings.TrimSpace(encoding))
}
