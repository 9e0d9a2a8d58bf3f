package build

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/kilnhq/kiln/internal/bootstrap"
	"github.com/kilnhq/kiln/internal/cache"
	"github.com/kilnhq/kiln/internal/manifest"
	"github.com/kilnhq/kiln/internal/runtime"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

// Downloads and extracts verified tarballs.
//
// Satisfied by [fetch.Fetcher]; tests substitute fakes.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string, expected digest.Digest) (string, error)
	Extract(archive, dest string) error
}

// Builds container images and decides when a cached one can be reused.
type Planner struct {
	cache     *cache.Cache       // Persistent image store and lock arbiter.
	fetcher   ContentFetcher     // Tarball fetch and extraction service.
	bootstrap bootstrap.Provider // Base filesystem service.
	steps     atomic.Uint64      // Count of executed steps, for observability.
}

// Creates a planner over the given services.
func New(c *cache.Cache, fetcher ContentFetcher, provider bootstrap.Provider) *Planner {
	return &Planner{
		cache:     c,
		fetcher:   fetcher,
		bootstrap: provider,
	}
}

// Returns an up-to-date image for the container, building it if needed.
//
// On a fingerprint match the committed image is returned without executing
// any steps. Otherwise the setup steps run in declaration order against a
// fresh staging root, which is atomically committed on full success. The
// first step failure aborts the build with a [ProvisionError] and nothing
// is committed.
func (p *Planner) EnsureImage(ctx context.Context, ctr *manifest.Container) (*cache.Image, error) {
	return p.ensure(ctx, ctr, false)
}

// Builds the container's image unconditionally, replacing any cached one.
func (p *Planner) Rebuild(ctx context.Context, ctr *manifest.Container) (*cache.Image, error) {
	return p.ensure(ctx, ctr, true)
}

func (p *Planner) ensure(ctx context.Context, ctr *manifest.Container, force bool) (*cache.Image, error) {
	fp := ctr.Fingerprint()

	// Serialize on the fingerprint: a concurrent builder of the same
	// definition finishes first and we take its image as a cache hit.
	release, err := p.cache.LockFingerprint(ctx, fp)
	if err != nil {
		return nil, err
	}
	defer release()

	if !force {
		img, err := p.cache.Lookup(ctx, fp)
		if err != nil {
			return nil, err
		}
		if img != nil {
			slog.Debug("cache hit", "container", ctr.Name, "fingerprint", fp)
			return img, nil
		}
	}

	return p.build(ctx, ctr, fp, force)
}

// Executes the container's steps against a fresh staging root and commits
// the result.
//
// A forced build displaces the cached image only at commit time, so it
// survives any failure of the rebuild.
func (p *Planner) build(ctx context.Context, ctr *manifest.Container, fp digest.Digest, force bool) (*cache.Image, error) {
	slog.Info("building container", "container", ctr.Name, "steps", len(ctr.Setup), "fingerprint", fp)

	staged, err := p.cache.Stage(fp)
	if err != nil {
		return nil, err
	}

	root := runtime.NewRoot(staged)

	for i := range ctr.Setup {
		step := &ctr.Setup[i]
		if err := p.executeStep(ctx, root, step); err != nil {
			p.cache.Discard(staged)
			return nil, &ProvisionError{
				Container: ctr.Name,
				Step:      step.Label(),
				Index:     i + 1,
				Err:       err,
			}
		}
	}

	commit := p.cache.Commit
	if force {
		commit = p.cache.Replace
	}

	img, err := commit(ctx, fp, ctr.Name, staged)
	if err != nil {
		p.cache.Discard(staged)
		return nil, err
	}

	slog.Info("container built", "container", ctr.Name, "path", img.Path)
	return img, nil
}

// Ensures images for several containers.
//
// Independent containers build concurrently with no ordering guarantee;
// steps within each container stay strictly sequential. The first failure
// cancels the remaining builds.
func (p *Planner) BuildAll(ctx context.Context, containers map[string]*manifest.Container, force bool) error {
	names := make([]string, 0, len(containers))
	for name := range containers {
		names = append(names, name)
	}
	sort.Strings(names)

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		ctr := containers[name]
		g.Go(func() error {
			_, err := p.ensure(ctx, ctr, force)
			return err
		})
	}
	return g.Wait()
}

// Returns the number of steps executed by this planner instance.
func (p *Planner) StepExecutions() uint64 {
	return p.steps.Load()
}
