package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// An in-memory, validated manifest.
//
// Definitions are owned for the lifetime of a single invocation; the manifest
// is parsed fresh each run and carries no cross-invocation state.
type Manifest struct {
	Settings   Settings
	Containers map[string]*Container
	Commands   map[string]*Command
}

// Optional tool-level settings.
type Settings struct {
	BootstrapRegistry string `yaml:"bootstrap-registry"` // Registry prefix for bootstrap base images.
}

// Raw document shape prior to validation.
type document struct {
	Settings   Settings                `yaml:"settings"`
	Containers map[string]rawContainer `yaml:"containers"`
	Commands   map[string]rawCommand   `yaml:"commands"`
}

type rawContainer struct {
	Setup   []Step            `yaml:"setup"`
	Environ map[string]string `yaml:"environ"`
}

type rawCommand struct {
	Description string   `yaml:"description"`
	Container   string   `yaml:"container"`
	Run         []string `yaml:"run"`
	SymlinkName string   `yaml:"symlink-name"`
}

// Reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDefinition, err)
	}
	return Parse(data)
}

// Parses and validates a manifest document.
//
// Validation is exhaustive: a manifest that parses successfully cannot fail
// a later build for structural reasons. YAML mapping keys are unique by
// construction, so duplicate container or command names are rejected by the
// decoder.
func Parse(data []byte) (*Manifest, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDefinition, err)
	}

	m := &Manifest{
		Settings:   doc.Settings,
		Containers: make(map[string]*Container, len(doc.Containers)),
		Commands:   make(map[string]*Command, len(doc.Commands)),
	}

	for name, raw := range doc.Containers {
		ctr := &Container{
			Name:    name,
			Setup:   raw.Setup,
			Environ: raw.Environ,
		}
		if err := ctr.validate(); err != nil {
			return nil, fmt.Errorf("container %q: %w", name, err)
		}
		m.Containers[name] = ctr
	}

	for name, raw := range doc.Commands {
		cmd := &Command{
			Name:        name,
			Description: raw.Description,
			Container:   raw.Container,
			Run:         raw.Run,
			SymlinkName: raw.SymlinkName,
		}
		if err := cmd.validate(); err != nil {
			return nil, fmt.Errorf("command %q: %w", name, err)
		}
		if _, ok := m.Containers[cmd.Container]; !ok {
			return nil, fmt.Errorf("command %q: %w: unknown container %q", name, ErrDefinition, cmd.Container)
		}
		m.Commands[name] = cmd
	}

	if err := m.validateAliases(); err != nil {
		return nil, err
	}

	return m, nil
}

// Rejects symlink aliases that collide with command names or other aliases.
//
// Alias resolution is a static lookup table; collisions would make it
// ambiguous, so they are a definition-time error.
func (m *Manifest) validateAliases() error {
	seen := make(map[string]string, len(m.Commands))

	for _, cmd := range m.Commands {
		alias := cmd.SymlinkName
		if alias == "" {
			continue
		}
		if _, ok := m.Commands[alias]; ok {
			return fmt.Errorf("command %q: %w: symlink-name %q collides with a command name", cmd.Name, ErrDefinition, alias)
		}
		if other, ok := seen[alias]; ok {
			return fmt.Errorf("command %q: %w: symlink-name %q already used by command %q", cmd.Name, ErrDefinition, alias, other)
		}
		seen[alias] = cmd.Name
	}

	return nil
}
