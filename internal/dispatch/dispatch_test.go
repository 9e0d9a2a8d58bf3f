package dispatch

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/manifest"
)

type fakePlanner struct {
	calls int
	image *cache.Image
	fail  error
}

func (p *fakePlanner) EnsureImage(ctx context.Context, ctr *manifest.Container) (*cache.Image, error) {
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	return p.image, nil
}

type fakeRunner struct {
	dir  string
	argv []string
	env  []string
	code int
}

func (r *fakeRunner) Run(ctx context.Context, imageDir string, argv, env []string) (int, error) {
	r.dir = imageDir
	r.argv = argv
	r.env = env
	return r.code, nil
}

const testManifest = `
containers:
  trusty:
    setup:
    - bootstrap:
        distribution: ubuntu
        release: trusty
    environ:
      LANG: en_US.UTF-8

commands:
  build:
    description: run the project build
    container: trusty
    run: [make, all]
    symlink-name: mk
  shell:
    container: trusty
    run: [/bin/sh]
`

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakePlanner, *fakeRunner) {
	t.Helper()

	m, err := manifest.Parse([]byte(testManifest))
	if err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}

	planner := &fakePlanner{image: &cache.Image{Path: "/cache/images/abc"}}
	runner := &fakeRunner{}
	return New(m, planner, runner), planner, runner
}

func TestResolve(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	cmd, err := d.Resolve("build")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cmd.Name != "build" {
		t.Fatalf("name = %q, want build", cmd.Name)
	}

	alias, err := d.Resolve("mk")
	if err != nil {
		t.Fatalf("resolve alias: %v", err)
	}
	if alias != cmd {
		t.Fatal("alias resolves to a different command")
	}
}

func TestResolveUnknown(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	_, err := d.Resolve("deploy")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error %v is not ErrNotFound", err)
	}

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error %v is not a NotFoundError", err)
	}
	if notFound.Name != "deploy" {
		t.Fatalf("name = %q, want deploy", notFound.Name)
	}
}

func TestInvokeAppendsArguments(t *testing.T) {
	d, planner, runner := newTestDispatcher(t)

	code, err := d.Invoke(context.Background(), "build", []string{"-j4", "--debug"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if planner.calls != 1 {
		t.Fatalf("ensure calls = %d, want 1", planner.calls)
	}
	if runner.dir != "/cache/images/abc" {
		t.Fatalf("image dir = %q", runner.dir)
	}

	want := []string{"make", "all", "-j4", "--debug"}
	if !reflect.DeepEqual(runner.argv, want) {
		t.Fatalf("argv = %v, want %v", runner.argv, want)
	}
}

func TestInvokeEnvironOverlay(t *testing.T) {
	d, _, runner := newTestDispatcher(t)

	if _, err := d.Invoke(context.Background(), "shell", nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	env := map[string]bool{}
	for _, entry := range runner.env {
		env[entry] = true
	}
	if !env["LANG=en_US.UTF-8"] {
		t.Fatalf("container environ missing from %v", runner.env)
	}
	if !env["HOME=/root"] {
		t.Fatalf("base environ missing from %v", runner.env)
	}
}

func TestInvokePropagatesExitCode(t *testing.T) {
	d, _, runner := newTestDispatcher(t)
	runner.code = 42

	code, err := d.Invoke(context.Background(), "build", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if code != 42 {
		t.Fatalf("code = %d, want 42", code)
	}
}

func TestInvokeEnsureFailure(t *testing.T) {
	d, planner, _ := newTestDispatcher(t)
	planner.fail = errors.New("registry unreachable")

	_, err := d.Invoke(context.Background(), "build", nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCommands(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	want := []string{"build", "shell"}
	if got := d.Commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
}
