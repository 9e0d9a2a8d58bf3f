package manifest

import (
	"errors"
	"testing"
)

const validDoc = `
containers:
  ubuntu:
    setup:
      - bootstrap: {distribution: ubuntu, release: xenial}
      - install: [git, make]
      - tar-install:
          url: https://static.rust-lang.org/dist/rust.tar.gz
          script: ./install.sh --prefix=/usr
          sha256: 9f59c6ef28ee78ab17eb1b52ef52b864f4b1b7f67e025b266bc2c2f43e859a9c
    environ:
      HOME: /work
commands:
  test:
    description: Run the test suite
    container: ubuntu
    run: [cargo, test]
    symlink-name: cargo-test
`

func TestParseValid(t *testing.T) {
	m, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctr, ok := m.Containers["ubuntu"]
	if !ok {
		t.Fatal("container ubuntu not found")
	}
	if len(ctr.Setup) != 3 {
		t.Fatalf("len(Setup) = %d, want 3", len(ctr.Setup))
	}
	if ctr.Setup[0].Kind != StepBootstrap {
		t.Fatalf("step 0 kind = %q, want %q", ctr.Setup[0].Kind, StepBootstrap)
	}
	if ctr.Environ["HOME"] != "/work" {
		t.Fatalf("environ[HOME] = %q, want /work", ctr.Environ["HOME"])
	}

	cmd, ok := m.Commands["test"]
	if !ok {
		t.Fatal("command test not found")
	}
	if cmd.Container != "ubuntu" {
		t.Fatalf("container = %q, want ubuntu", cmd.Container)
	}
	if cmd.SymlinkName != "cargo-test" {
		t.Fatalf("symlink-name = %q, want cargo-test", cmd.SymlinkName)
	}
	if len(cmd.Run) != 2 || cmd.Run[0] != "cargo" {
		t.Fatalf("run = %v, want [cargo test]", cmd.Run)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "dangling container reference",
			doc: `
containers:
  ubuntu:
    setup:
      - install: [git]
commands:
  test:
    container: alpine
    run: [make, test]
`,
		},
		{
			name: "command without run",
			doc: `
containers:
  ubuntu:
    setup:
      - install: [git]
commands:
  test:
    container: ubuntu
`,
		},
		{
			name: "container without steps",
			doc: `
containers:
  ubuntu: {}
commands: {}
`,
		},
		{
			name: "unknown step variant",
			doc: `
containers:
  ubuntu:
    setup:
      - provision: [git]
commands: {}
`,
		},
		{
			name: "step with multiple keys",
			doc: `
containers:
  ubuntu:
    setup:
      - install: [git]
        bootstrap: {distribution: ubuntu, release: xenial}
commands: {}
`,
		},
		{
			name: "bootstrap missing release",
			doc: `
containers:
  ubuntu:
    setup:
      - bootstrap: {distribution: ubuntu}
commands: {}
`,
		},
		{
			name: "install with empty package list",
			doc: `
containers:
  ubuntu:
    setup:
      - install: []
commands: {}
`,
		},
		{
			name: "tar-extract missing checksum",
			doc: `
containers:
  ubuntu:
    setup:
      - tar-extract: {url: "https://example.com/a.tar.gz", path: /opt}
commands: {}
`,
		},
		{
			name: "tar-install missing script",
			doc: `
containers:
  ubuntu:
    setup:
      - tar-install: {url: "https://example.com/a.tar.gz"}
commands: {}
`,
		},
		{
			name: "duplicate container name",
			doc: `
containers:
  ubuntu:
    setup:
      - install: [git]
  ubuntu:
    setup:
      - install: [make]
commands: {}
`,
		},
		{
			name: "not yaml",
			doc:  `{`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrDefinition) {
				t.Fatalf("error %v is not ErrDefinition", err)
			}
		})
	}
}

func TestParseAliasCollisions(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "alias collides with command name",
			doc: `
containers:
  c:
    setup:
      - install: [git]
commands:
  build:
    container: c
    run: [make]
  test:
    container: c
    run: [make, test]
    symlink-name: build
`,
		},
		{
			name: "alias used twice",
			doc: `
containers:
  c:
    setup:
      - install: [git]
commands:
  build:
    container: c
    run: [make]
    symlink-name: mk
  test:
    container: c
    run: [make, test]
    symlink-name: mk
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, ErrDefinition) {
				t.Fatalf("error %v is not ErrDefinition", err)
			}
		})
	}
}
