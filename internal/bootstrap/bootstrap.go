package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	goruntime "runtime"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/kilnhq/kiln/internal/fetch"
)

// Registry prefix used when the manifest does not override it.
const DefaultRegistry = "docker.io/library"

// Maximum pull attempts for transient registry failures.
const defaultAttempts = 4

var ErrBootstrap = errors.New("bootstrap failed")

// Materializes a base filesystem for a distribution release into a build
// root directory.
type Provider interface {
	Bootstrap(ctx context.Context, distribution, release, root string) error
}

// Bootstraps roots by pulling base images from a container registry.
type RegistryProvider struct {
	registry string // Registry prefix for base images (e.g. "docker.io/library").
	attempts uint64 // Bounded retry count for transient pull failures.
}

// Creates a registry provider.
//
// An empty registry selects [DefaultRegistry].
func NewRegistryProvider(registry string) *RegistryProvider {
	if registry == "" {
		registry = DefaultRegistry
	}
	return &RegistryProvider{
		registry: registry,
		attempts: defaultAttempts,
	}
}

// Pulls the base image for a distribution release and flattens it into the
// root directory.
//
// The distribution and release map directly to an image reference
// ("ubuntu"/"xenial" becomes docker.io/library/ubuntu:xenial). Layers are
// applied oldest-first with whiteout handling, producing the same tree a
// container runtime would mount. The pull itself is retried on transient
// faults; layer application is not, since a failed apply leaves the staging
// root for the caller to discard.
func (p *RegistryProvider) Bootstrap(ctx context.Context, distribution, release, root string) error {
	ref := p.imageRef(distribution, release)
	slog.Info("bootstrapping", "image", ref, "root", root)

	parsed, err := name.ParseReference(ref)
	if err != nil {
		return fmt.Errorf("%w: invalid image reference %q: %w", ErrBootstrap, ref, err)
	}

	img, err := p.pull(ctx, parsed)
	if err != nil {
		return err
	}

	layers, err := img.Layers()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBootstrap, err)
	}

	for i, layer := range layers {
		if err := applyLayer(layer, root); err != nil {
			return fmt.Errorf("%w: layer %d: %w", ErrBootstrap, i+1, err)
		}
	}

	slog.Debug("bootstrap complete", "image", ref, "layers", len(layers))
	return nil
}

// Fetches the image manifest for the host platform, with bounded retries.
func (p *RegistryProvider) pull(ctx context.Context, ref name.Reference) (v1.Image, error) {
	platform := v1.Platform{OS: "linux", Architecture: goruntime.GOARCH}

	var img v1.Image
	op := func() error {
		var err error
		img, err = remote.Image(ref,
			remote.WithContext(ctx),
			remote.WithPlatform(platform),
		)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %w", ErrBootstrap, err))
			}
			return fmt.Errorf("%w: %w", ErrBootstrap, err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.attempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return img, nil
}

// Unpacks one layer into the root.
func applyLayer(layer v1.Layer, root string) error {
	rc, err := layer.Uncompressed()
	if err != nil {
		return err
	}
	defer rc.Close()

	return fetch.ApplyLayer(rc, root)
}

// Returns the image reference for a distribution release.
func (p *RegistryProvider) imageRef(distribution, release string) string {
	return fmt.Sprintf("%s/%s:%s", p.registry, distribution, release)
}
