package githttp

import (
	"bytes"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/format/pktline"
)

// ServiceAnnouncement returns the pkt-line "# service=<service>\n" followed by a flush-pkt,
// the prefix Smart HTTP clients expect before a ref advertisement.
func ServiceAnnouncement(service string) ([]byte, error) {
	var buf bytes.Buffer
	enc := pktline.NewEncoder(&buf)
	if err := enc.EncodeString("# service=" + service + "\n"); err != nil {
		return nil, fmt.Errorf("failed to encode service announcement: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("failed to encode flush-pkt: %w", err)
	}
	return buf.Bytes(), nil
}
