package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kilnhq/kiln/internal/paths"
)

// PATH value used inside build roots.
const DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Directories searched when a program name has no slash, in PATH order.
var pathDirs = strings.Split(DefaultPath, ":")

// A handle over a build root directory.
//
// The handle is lightweight: it does not verify the directory until a
// command is executed in it.
type Root struct {
	dir string // Host path of the root directory.
}

// Returns a handle for the build root at dir.
func NewRoot(dir string) *Root {
	return &Root{dir: dir}
}

// Host path of the root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Output of a command execution inside a root.
type ExecResult struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// Returns the minimal environment every process inside a root starts from.
//
// The inherited host environment is never passed through; only PATH and
// HOME are seeded. Callers overlay their own variables on top.
func BaseEnviron() []string {
	return []string{
		"PATH=" + DefaultPath,
		"HOME=/root",
	}
}

// Runs a command inside the root, capturing its output.
//
// argv[0] is resolved against PATH inside the root unless it contains a
// slash. A non-zero exit code is not treated as an error; the caller
// decides.
func (r *Root) Exec(ctx context.Context, argv, env []string, workdir string) (*ExecResult, error) {
	var stdout, stderr bytes.Buffer
	code, err := r.Run(ctx, argv, env, workdir, nil, &stdout, &stderr)
	if err != nil {
		return nil, err
	}
	return &ExecResult{
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Runs a shell command line inside the root.
//
// The command is passed as a single argument via "/bin/sh -c".
func (r *Root) Shell(ctx context.Context, command string, env []string, workdir string) (*ExecResult, error) {
	return r.Exec(ctx, []string{"/bin/sh", "-c", command}, env, workdir)
}

// Runs a command inside the root with the given streams, returning its exit
// code.
//
// The process is chrooted into the root and started with exactly the given
// environment. workdir is a path inside the root; empty means "/". A
// non-zero exit code is returned as-is with a nil error; any other failure
// to run the process is an error.
func (r *Root) Run(ctx context.Context, argv, env []string, workdir string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("%w: empty argv", ErrRuntime)
	}

	prog, err := r.lookPath(argv[0])
	if err != nil {
		return 0, err
	}

	if workdir == "" {
		workdir = "/"
	}

	slog.Debug("exec", "root", r.dir, "argv", argv, "workdir", workdir)

	cmd := exec.CommandContext(ctx, prog, argv[1:]...)
	cmd.Args = append([]string{argv[0]}, argv[1:]...)
	cmd.Env = env
	cmd.Dir = workdir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Chroot: r.dir}

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
}

// Creates a directory inside the root, including parents.
func (r *Root) MkdirAll(path string) error {
	if err := os.MkdirAll(r.HostPath(path), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}

// Resolves a program name to its path inside the root.
//
// Names containing a slash are taken as in-root paths verbatim; the process
// fails at exec time if they do not exist. Bare names are searched in the
// standard PATH directories of the root's filesystem.
func (r *Root) lookPath(prog string) (string, error) {
	if strings.Contains(prog, "/") {
		return prog, nil
	}

	for _, dir := range pathDirs {
		candidate := filepath.Join(dir, prog)
		info, err := os.Stat(filepath.Join(r.dir, candidate))
		if err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrProgramNotFound, prog)
}

// Maps an in-root path to its host location, keeping it inside the root.
func (r *Root) HostPath(path string) string {
	return filepath.Join(r.dir, filepath.Clean("/"+path))
}

// Merges override env vars on top of a base env slice.
//
// Later entries win on key collision. The result order is unspecified.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	for _, entry := range overrides {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	return result
}
