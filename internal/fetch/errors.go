package fetch

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

var (
	ErrIntegrity = errors.New("integrity violation")
	ErrFetch     = errors.New("fetch failed")
)

// Reports content that failed verification: a checksum mismatch on a
// downloaded artifact, or an archive entry escaping its destination root.
//
// Matches [ErrIntegrity] under errors.Is.
type IntegrityError struct {
	URL      string        // Source URL, for checksum mismatches.
	Entry    string        // Offending archive entry, for path traversal.
	Expected digest.Digest // Declared checksum.
	Actual   digest.Digest // Checksum of the fetched content.
}

func (e *IntegrityError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("archive entry %q escapes the destination root", e.Entry)
	}
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}
