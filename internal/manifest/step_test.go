package manifest

import (
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStepUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Step
	}{
		{
			name: "bootstrap",
			doc:  `bootstrap: {distribution: ubuntu, release: xenial}`,
			want: Step{
				Kind:      StepBootstrap,
				Bootstrap: &BootstrapStep{Distribution: "ubuntu", Release: "xenial"},
			},
		},
		{
			name: "bootstrap tagged",
			doc:  `!Bootstrap {distribution: ubuntu, release: xenial}`,
			want: Step{
				Kind:      StepBootstrap,
				Bootstrap: &BootstrapStep{Distribution: "ubuntu", Release: "xenial"},
			},
		},
		{
			name: "install tagged",
			doc:  `!Install [git, make]`,
			want: Step{
				Kind:    StepInstall,
				Install: &InstallStep{Packages: []string{"git", "make"}},
			},
		},
		{
			name: "install",
			doc:  `install: [git, make]`,
			want: Step{
				Kind:    StepInstall,
				Install: &InstallStep{Packages: []string{"git", "make"}},
			},
		},
		{
			name: "tar-install",
			doc: `tar-install:
  url: https://example.com/rust.tar.gz
  script: ./install.sh --prefix=/usr
  sha256: abc123`,
			want: Step{
				Kind: StepTarInstall,
				TarInstall: &TarInstallStep{
					URL:      "https://example.com/rust.tar.gz",
					Script:   "./install.sh --prefix=/usr",
					Checksum: "abc123",
				},
			},
		},
		{
			name: "tar-extract",
			doc: `tar-extract:
  url: https://example.com/tools.tar.gz
  sha256: abc123
  path: /usr/local`,
			want: Step{
				Kind: StepTarExtract,
				TarExtract: &TarExtractStep{
					URL:      "https://example.com/tools.tar.gz",
					Checksum: "abc123",
					Path:     "/usr/local",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Step
			if err := yaml.Unmarshal([]byte(tt.doc), &got); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("step = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStepUnmarshalRejectsScalar(t *testing.T) {
	var s Step
	if err := yaml.Unmarshal([]byte(`"install git"`), &s); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSortedPackages(t *testing.T) {
	s := InstallStep{Packages: []string{"zsh", "git", "make", "git"}}

	got := s.SortedPackages()
	want := []string{"git", "make", "zsh"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SortedPackages() = %v, want %v", got, want)
	}

	// The original list is untouched.
	if !reflect.DeepEqual(s.Packages, []string{"zsh", "git", "make", "git"}) {
		t.Fatalf("Packages mutated: %v", s.Packages)
	}
}

func TestStepLabel(t *testing.T) {
	s := Step{
		Kind:      StepBootstrap,
		Bootstrap: &BootstrapStep{Distribution: "ubuntu", Release: "xenial"},
	}
	if got := s.Label(); got != "bootstrap ubuntu/xenial" {
		t.Fatalf("Label() = %q, want %q", got, "bootstrap ubuntu/xenial")
	}
}
