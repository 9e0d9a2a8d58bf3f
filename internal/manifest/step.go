package manifest

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Identifies a step variant.
type StepKind string

const (
	StepBootstrap  StepKind = "bootstrap"
	StepInstall    StepKind = "install"
	StepTarInstall StepKind = "tar-install"
	StepTarExtract StepKind = "tar-extract"
)

// A single setup step in a container definition.
//
// Exactly one of the variant fields is non-nil, selected by Kind. Steps are
// applied strictly in declaration order; each depends on the filesystem state
// left by the previous one.
type Step struct {
	Kind       StepKind
	Bootstrap  *BootstrapStep
	Install    *InstallStep
	TarInstall *TarInstallStep
	TarExtract *TarExtractStep
}

// Materializes a minimal base filesystem for a distribution release.
type BootstrapStep struct {
	Distribution string `yaml:"distribution"`
	Release      string `yaml:"release"`
}

// Installs a set of packages with the distribution's package manager.
//
// Package order is not significant; the set is sorted before fingerprinting
// and before invoking the installer.
type InstallStep struct {
	Packages []string
}

// Fetches a tarball, extracts it to a scratch location, and runs an install
// script against the extracted tree.
type TarInstallStep struct {
	URL      string `yaml:"url"`
	Script   string `yaml:"script"`
	Checksum string `yaml:"sha256"`
}

// Fetches a tarball and extracts it into the build root at a fixed path.
type TarExtractStep struct {
	URL      string `yaml:"url"`
	Checksum string `yaml:"sha256"`
	Path     string `yaml:"path"`
}

// Decodes a step from its YAML form.
//
// A step is a mapping with exactly one key naming the variant:
//
//	- bootstrap: {distribution: ubuntu, release: xenial}
//	- install: [git, build-essential]
//	- tar-install: {url: ..., script: ..., sha256: ...}
//	- tar-extract: {url: ..., sha256: ..., path: /usr/local}
//
// The tagged form is accepted as well (!Bootstrap {distribution: ubuntu,
// release: xenial}); both spellings decode identically.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if kind, ok := tagVariant(node.Tag); ok {
		return s.decode(kind, node)
	}

	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("%w: step must be a mapping with a single key", ErrDefinition)
	}
	return s.decode(StepKind(node.Content[0].Value), node.Content[1])
}

// Maps a YAML tag to its step variant.
func tagVariant(tag string) (StepKind, bool) {
	switch tag {
	case "!Bootstrap":
		return StepBootstrap, true
	case "!Install":
		return StepInstall, true
	case "!TarInstall":
		return StepTarInstall, true
	case "!TarExtract":
		return StepTarExtract, true
	}
	return "", false
}

// Decodes the variant's payload.
func (s *Step) decode(kind StepKind, value *yaml.Node) error {
	switch kind {
	case StepBootstrap:
		s.Kind = StepBootstrap
		s.Bootstrap = &BootstrapStep{}
		return value.Decode(s.Bootstrap)

	case StepInstall:
		s.Kind = StepInstall
		s.Install = &InstallStep{}
		return value.Decode(&s.Install.Packages)

	case StepTarInstall:
		s.Kind = StepTarInstall
		s.TarInstall = &TarInstallStep{}
		return value.Decode(s.TarInstall)

	case StepTarExtract:
		s.Kind = StepTarExtract
		s.TarExtract = &TarExtractStep{}
		return value.Decode(s.TarExtract)

	default:
		return fmt.Errorf("%w: unknown step %q", ErrDefinition, string(kind))
	}
}

// Validates the step's structure.
//
// Environmental problems (unreachable URLs, missing packages) are not
// detectable here; only structural ones are.
func (s *Step) validate() error {
	switch s.Kind {
	case StepBootstrap:
		if s.Bootstrap.Distribution == "" || s.Bootstrap.Release == "" {
			return fmt.Errorf("%w: bootstrap requires distribution and release", ErrDefinition)
		}

	case StepInstall:
		if len(s.Install.Packages) == 0 {
			return fmt.Errorf("%w: install requires at least one package", ErrDefinition)
		}
		for _, pkg := range s.Install.Packages {
			if pkg == "" {
				return fmt.Errorf("%w: install contains an empty package name", ErrDefinition)
			}
		}

	case StepTarInstall:
		if s.TarInstall.URL == "" {
			return fmt.Errorf("%w: tar-install requires a url", ErrDefinition)
		}
		if s.TarInstall.Script == "" {
			return fmt.Errorf("%w: tar-install requires a script", ErrDefinition)
		}
		if _, err := ParseChecksum(s.TarInstall.Checksum); err != nil {
			return err
		}

	case StepTarExtract:
		if s.TarExtract.URL == "" {
			return fmt.Errorf("%w: tar-extract requires a url", ErrDefinition)
		}
		if s.TarExtract.Checksum == "" {
			return fmt.Errorf("%w: tar-extract requires a sha256 checksum", ErrDefinition)
		}
		if s.TarExtract.Path == "" {
			return fmt.Errorf("%w: tar-extract requires a path", ErrDefinition)
		}
		if _, err := ParseChecksum(s.TarExtract.Checksum); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: step has no variant", ErrDefinition)
	}

	return nil
}

// Returns the package set sorted and deduplicated.
//
// The author's list order never reaches the fingerprint or the installer,
// so two containers differing only in package order share an image.
func (s *InstallStep) SortedPackages() []string {
	pkgs := make([]string, len(s.Packages))
	copy(pkgs, s.Packages)
	sort.Strings(pkgs)

	deduped := pkgs[:0]
	for i, pkg := range pkgs {
		if i == 0 || pkg != pkgs[i-1] {
			deduped = append(deduped, pkg)
		}
	}
	return deduped
}

// Returns a short human-readable label for the step, used in errors and logs.
func (s *Step) Label() string {
	switch s.Kind {
	case StepBootstrap:
		return fmt.Sprintf("bootstrap %s/%s", s.Bootstrap.Distribution, s.Bootstrap.Release)
	case StepInstall:
		return fmt.Sprintf("install %d packages", len(s.Install.Packages))
	case StepTarInstall:
		return fmt.Sprintf("tar-install %s", s.TarInstall.URL)
	case StepTarExtract:
		return fmt.Sprintf("tar-extract %s", s.TarExtract.URL)
	default:
		return "unknown"
	}
}
