package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kilnhq/kiln/internal/paths"
	"github.com/opencontainers/go-digest"
)

const (

	// Maximum download attempts for transient network failures.
	defaultAttempts = 4

	// Per-request timeout. Fetches are blocking, resource-bound operations
	// and must not hang indefinitely.
	defaultTimeout = 10 * time.Minute
)

// Downloads and verifies tarballs into a persistent downloads directory.
type Fetcher struct {
	dir      string       // Directory holding verified artifacts, keyed by digest.
	client   *http.Client // HTTP client used for downloads.
	attempts uint64       // Bounded retry count for transient failures.
}

// Creates a fetcher that stores verified artifacts in dir.
func New(dir string) *Fetcher {
	return &Fetcher{
		dir:      dir,
		client:   &http.Client{Timeout: defaultTimeout},
		attempts: defaultAttempts,
	}
}

// Downloads a URL, verifies its checksum, and returns the local path of the
// verified artifact.
//
// When expected is set, the content is hashed during the download and
// committed under its digest only if the hash matches; a mismatch fails
// with [IntegrityError] and discards the downloaded bytes. An artifact
// already present under the expected digest is returned without any network
// traffic.
//
// When expected is empty, the content is trusted at the caller's risk. This
// mode exists for first-bootstrap toolchains where no prior checksum is
// known and is logged as a warning.
//
// Transient network failures are retried with exponential backoff up to a
// bounded attempt count. Checksum mismatches and client errors are never
// retried.
func (f *Fetcher) Fetch(ctx context.Context, url string, expected digest.Digest) (string, error) {
	dest := f.artifactPath(url, expected)

	if _, err := os.Stat(dest); err == nil {
		slog.Debug("download cached", "url", url, "path", dest)
		return dest, nil
	}

	if expected == "" {
		slog.Warn("fetching without a checksum, content is trusted as-is", "url", url)
	}

	if err := os.MkdirAll(f.dir, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}

	op := func() error {
		return f.download(ctx, url, dest, expected)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.attempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}

	return dest, nil
}

// Performs a single download attempt.
//
// The body streams through a digest hasher into a temporary file, which is
// renamed to dest only after the checksum verifies. Errors are wrapped as
// permanent when retrying cannot help.
func (f *Fetcher) download(ctx context.Context, url, dest string, expected digest.Digest) error {
	slog.Info("downloading", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %w", ErrFetch, err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return classifyNetError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %s returned status %d", ErrFetch, url, resp.StatusCode)
		if resp.StatusCode >= 500 {
			return err // Server faults are worth retrying.
		}
		return backoff.Permanent(err)
	}

	tmp, err := os.CreateTemp(f.dir, "download-*")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %w", ErrFetch, err))
	}
	defer os.Remove(tmp.Name())

	algorithm := digest.Canonical
	if expected != "" {
		algorithm = expected.Algorithm()
	}
	digester := algorithm.Digester()

	if _, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), resp.Body); err != nil {
		tmp.Close()
		return classifyNetError(err)
	}
	if err := tmp.Close(); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %w", ErrFetch, err))
	}

	actual := digester.Digest()
	if expected != "" && actual != expected {
		return backoff.Permanent(&IntegrityError{URL: url, Expected: expected, Actual: actual})
	}

	// Atomic commit: the verified name only ever refers to complete content.
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %w", ErrFetch, err))
	}

	slog.Debug("download verified", "url", url, "digest", actual)
	return nil
}

// Returns the path an artifact is stored under.
//
// Verified artifacts are keyed by their declared digest. Unverified ones are
// keyed by a digest of the URL, since there is nothing else to key them by.
func (f *Fetcher) artifactPath(url string, expected digest.Digest) string {
	if expected != "" {
		return filepath.Join(f.dir, expected.Algorithm().String()+"-"+expected.Encoded())
	}
	return filepath.Join(f.dir, "unverified-"+digest.FromString(url).Encoded())
}

// Wraps a network-level error, marking it permanent unless it looks
// transient.
//
// Timeouts and temporary resolver or connection faults are left retryable;
// everything else is permanent.
func classifyNetError(err error) error {
	wrapped := fmt.Errorf("%w: %w", ErrFetch, err)

	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrapped
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return wrapped // Truncated body, retry.
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(wrapped)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return wrapped
	}

	return backoff.Permanent(wrapped)
}
