package fetch

import (
	"archive/tar"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/kilnhq/kiln/internal/paths"
	"github.com/klauspost/compress/gzip"
)

// Opaque-directory whiteout marker in OCI layers.
const opaqueWhiteout = ".wh..wh..opq"

// Prefix marking a deleted path in OCI layers.
const whiteoutPrefix = ".wh."

// Extracts a tarball into dest.
//
// Gzip compression is detected from the stream; plain tar works too. Every
// entry is scoped to dest (see [Untar]). Extraction over an existing tree is
// idempotent: files are truncated and rewritten, links are replaced.
func (f *Fetcher) Extract(archive, dest string) error {
	fh, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer fh.Close()

	gz, err := gzip.NewReader(fh)
	if err == nil {
		defer gz.Close()
		return Untar(gz, dest)
	}

	// Not gzip; rewind and treat as plain tar.
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return Untar(fh, dest)
}

// Unpacks a tar stream into dest with destination-path scoping.
//
// No entry may resolve outside dest: names containing ".." components are
// rejected, and paths are resolved through any symlinks planted by earlier
// entries so a redirecting link cannot smuggle a write out of the root.
// Violations fail with [IntegrityError].
func Untar(r io.Reader, dest string) error {
	return untar(r, dest, false)
}

// Unpacks an OCI image layer into dest.
//
// Identical to [Untar] except that whiteout entries are honored: a ".wh.x"
// entry removes x from the tree and a ".wh..wh..opq" entry clears the
// containing directory. Layers are applied oldest-first.
func ApplyLayer(r io.Reader, dest string) error {
	return untar(r, dest, true)
}

func untar(r io.Reader, dest string, whiteouts bool) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFetch, err)
		}

		if err := writeEntry(tr, hdr, dest, whiteouts); err != nil {
			return err
		}
	}
}

// Writes a single archive entry under dest.
func writeEntry(tr *tar.Reader, hdr *tar.Header, dest string, whiteouts bool) error {
	name := cleanEntryName(hdr.Name)
	if name == "" {
		return nil
	}

	if whiteouts {
		handled, err := applyWhiteout(name, dest)
		if handled || err != nil {
			return err
		}
	}

	target, err := scopedPath(dest, name)
	if err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return mkdir(target, hdr)

	case tar.TypeReg:
		return writeFile(tr, target, hdr)

	case tar.TypeSymlink:
		return writeSymlink(target, name, hdr)

	case tar.TypeLink:
		return writeHardlink(target, dest, hdr)

	default:
		// Device nodes and FIFOs need privileges the engine does not
		// assume; they are not part of any supported tarball.
		slog.Debug("skipping unsupported tar entry", "name", hdr.Name, "type", hdr.Typeflag)
		return nil
	}
}

// Normalizes an entry name to a relative, slash-cleaned path.
//
// Rootfs tarballs commonly prefix entries with "./" or "/"; both forms are
// treated as relative to the destination root.
func cleanEntryName(name string) string {
	name = filepath.Clean(strings.TrimPrefix(name, "/"))
	if name == "." {
		return ""
	}
	return name
}

// Resolves an entry name inside the destination root.
//
// Names with ".." components are rejected outright. The remaining path is
// resolved through existing symlinks so that it cannot land outside dest.
func scopedPath(dest, name string) (string, error) {
	for _, part := range strings.Split(name, string(filepath.Separator)) {
		if part == ".." {
			return "", &IntegrityError{Entry: name}
		}
	}

	target, err := securejoin.SecureJoin(dest, name)
	if err != nil {
		return "", &IntegrityError{Entry: name}
	}
	return target, nil
}

// Applies a whiteout entry, if the name is one.
//
// Returns true when the entry was a whiteout and has been handled.
func applyWhiteout(name, dest string) (bool, error) {
	base := filepath.Base(name)
	dir := filepath.Dir(name)

	if base == opaqueWhiteout {
		target, err := scopedPath(dest, dir)
		if err != nil {
			return true, err
		}
		return true, clearDir(target)
	}

	if strings.HasPrefix(base, whiteoutPrefix) {
		target, err := scopedPath(dest, filepath.Join(dir, strings.TrimPrefix(base, whiteoutPrefix)))
		if err != nil {
			return true, err
		}
		if err := os.RemoveAll(target); err != nil {
			return true, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		return true, nil
	}

	return false, nil
}

// Removes the contents of a directory, keeping the directory itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("%w: %w", ErrFetch, err)
		}
	}
	return nil
}

func mkdir(target string, hdr *tar.Header) error {
	if err := os.MkdirAll(target, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return os.Chmod(target, os.FileMode(hdr.Mode)&os.ModePerm)
}

func writeFile(tr *tar.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	fh, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&os.ModePerm)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if _, err := io.Copy(fh, tr); err != nil {
		fh.Close()
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return fh.Close()
}

// Writes a symlink entry.
//
// A relative link target that lexically escapes the destination root is an
// integrity violation. Absolute targets are allowed: they are inert path
// strings re-rooted when the image is entered, and later writes through
// them are contained by [scopedPath]'s symlink-aware resolution.
func writeSymlink(target, name string, hdr *tar.Header) error {
	link := hdr.Linkname

	if !filepath.IsAbs(link) {
		resolved := filepath.Join(filepath.Dir(name), link)
		if resolved == ".." || strings.HasPrefix(resolved, ".."+string(filepath.Separator)) {
			return &IntegrityError{Entry: name}
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	// Replace any previous link so re-extraction stays idempotent.
	os.Remove(target)
	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return nil
}

func writeHardlink(target, dest string, hdr *tar.Header) error {
	source, err := scopedPath(dest, cleanEntryName(hdr.Linkname))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	os.Remove(target)
	if err := os.Link(source, target); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return nil
}
