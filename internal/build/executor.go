package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kilnhq/kiln/internal/manifest"
	"github.com/kilnhq/kiln/internal/runtime"
	"github.com/opencontainers/go-digest"
)

// In-root scratch directory for tar-install extractions.
const tarInstallScratch = "/tmp/tar-install"

// Applies a single setup step to the build root.
//
// Each variant is deterministic with respect to its inputs and idempotent
// when re-run against a root already carrying its effects, which is what
// makes fingerprint-keyed caching sound.
func (p *Planner) executeStep(ctx context.Context, root *runtime.Root, step *manifest.Step) error {
	p.steps.Add(1)
	slog.Info("applying step", "step", step.Label())

	switch step.Kind {
	case manifest.StepBootstrap:
		return p.bootstrap.Bootstrap(ctx, step.Bootstrap.Distribution, step.Bootstrap.Release, root.Dir())

	case manifest.StepInstall:
		return root.InstallPackages(ctx, step.Install.SortedPackages())

	case manifest.StepTarInstall:
		return p.tarInstall(ctx, root, step.TarInstall)

	case manifest.StepTarExtract:
		return p.tarExtract(ctx, root, step.TarExtract)

	default:
		return fmt.Errorf("unhandled step kind %q", step.Kind)
	}
}

// Fetches a tarball, extracts it to a scratch directory inside the root,
// and runs the install script against it.
//
// The script runs once per effective fingerprint by construction: it only
// ever executes during a build, and a build happens at most once per
// fingerprint. The scratch tree is removed afterwards so the committed
// image does not carry it.
func (p *Planner) tarInstall(ctx context.Context, root *runtime.Root, step *manifest.TarInstallStep) error {
	expected, err := manifest.ParseChecksum(step.Checksum)
	if err != nil {
		return err
	}

	archive, err := p.fetcher.Fetch(ctx, step.URL, expected)
	if err != nil {
		return err
	}

	workdir := tarInstallScratch + "/" + digest.FromString(step.URL).Encoded()[:12]
	if err := root.MkdirAll(workdir); err != nil {
		return err
	}
	if err := p.fetcher.Extract(archive, root.HostPath(workdir)); err != nil {
		return err
	}
	defer os.RemoveAll(root.HostPath(tarInstallScratch))

	result, err := root.Shell(ctx, step.Script, runtime.BaseEnviron(), workdir)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("install script exited with code %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}

// Fetches a tarball and extracts it into the root at the step's path.
//
// The checksum is mandatory for this variant (enforced at load time), and
// extraction is scoped to the destination: archives cannot write outside
// it.
func (p *Planner) tarExtract(ctx context.Context, root *runtime.Root, step *manifest.TarExtractStep) error {
	expected, err := manifest.ParseChecksum(step.Checksum)
	if err != nil {
		return err
	}

	archive, err := p.fetcher.Fetch(ctx, step.URL, expected)
	if err != nil {
		return err
	}

	if err := root.MkdirAll(step.Path); err != nil {
		return err
	}
	return p.fetcher.Extract(archive, root.HostPath(step.Path))
}
