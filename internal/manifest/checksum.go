package manifest

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Length of a bare hex-encoded SHA-256 checksum.
const sha256HexLen = 64

// Parses a declared checksum into a digest.
//
// Accepts the algorithm-prefixed form ("sha256:<hex>") and, for
// compatibility, a bare 64-character hex string which is normalized to
// sha256. An empty string parses to an empty digest (no verification).
func ParseChecksum(s string) (digest.Digest, error) {
	if s == "" {
		return "", nil
	}

	if strings.Contains(s, ":") {
		d, err := digest.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: invalid checksum %q: %w", ErrDefinition, s, err)
		}
		return d, nil
	}

	d := digest.NewDigestFromEncoded(digest.SHA256, s)
	if err := d.Validate(); err != nil || len(s) != sha256HexLen {
		return "", fmt.Errorf("%w: invalid sha256 checksum %q", ErrDefinition, s)
	}
	return d, nil
}
