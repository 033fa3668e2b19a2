package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/drvig/updns/pkg/environment"
	"github.com/drvig/updns/pkg/runtime"
	"github.com/drvig/updns/pkg/types"
)

// DigestResolver looks up the digest a registry currently publishes for
// an image reference
type DigestResolver interface {
	ManifestDigest(ctx context.Context, imageRef string) (string, error)
}

// Collector gathers the identity of every managed component: what is
// running (by content digest, never by tag) and what upstream publishes.
// It is the only phase that talks to the network; everything after it
// works from the collected identities.
type Collector struct {
	rt       runtime.Client
	resolver DigestResolver
	env      *environment.Environment
	logger   zerolog.Logger
}

// NewCollector creates an inventory collector
func NewCollector(rt runtime.Client, resolver DigestResolver, env *environment.Environment, logger zerolog.Logger) *Collector {
	return &Collector{
		rt:       rt,
		resolver: resolver,
		env:      env,
		logger:   logger,
	}
}

// Collect resolves identities for all declared components, in declaration
// order. A missing component or unreachable runtime is fatal; a failed
// latest-digest lookup only marks that component unknown.
//
// Side effect: when a component looks outdated its new artifact is pulled
// here, so the executor never waits on the network mid-plan.
func (c *Collector) Collect(ctx context.Context) ([]types.ComponentIdentity, error) {
	identities := make([]types.ComponentIdentity, 0, len(c.env.Components))

	for _, comp := range c.env.Components {
		state, err := c.rt.Running(ctx, comp.Container)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", comp.Name, err)
		}
		if !state.Running {
			return nil, fmt.Errorf("collect %s: %w", comp.Name, types.ErrComponentNotRunning)
		}

		id := types.ComponentIdentity{
			Name:          comp.Name,
			Container:     comp.Container,
			Image:         comp.Image,
			RunningTag:    tagOf(state.Ref),
			RunningDigest: state.Digest,
			Rank:          comp.Rank,
		}

		latest, err := c.latestDigest(ctx, comp.Image, state.Digest)
		if err != nil {
			c.logger.Warn().
				Str("component", comp.Name).
				Str("image", comp.Image).
				Err(err).
				Msg("latest digest unknown, excluding component from planning")
		} else {
			id.LatestDigest = latest
			id.LatestKnown = true
		}

		c.logger.Info().
			Str("component", comp.Name).
			Str("tag", id.RunningTag).
			Str("running", id.RunningDigest).
			Str("latest", id.LatestDigest).
			Bool("outdated", id.Outdated()).
			Msg("collected component identity")

		identities = append(identities, id)
	}

	return identities, nil
}

// latestDigest resolves the upstream digest for an image. The registry
// manifest lookup is tried first since it costs one request; when it
// reports a digest differing from the running one, the artifact is pulled
// so the exact local digest is what gets compared and later deployed.
func (c *Collector) latestDigest(ctx context.Context, imageRef, runningDigest string) (string, error) {
	published, err := c.resolver.ManifestDigest(ctx, imageRef)
	if err == nil && published == runningDigest {
		return published, nil
	}
	if err != nil {
		c.logger.Debug().
			Str("image", imageRef).
			Err(err).
			Msg("manifest lookup failed, falling back to pull")
	}

	pulled, pullErr := c.rt.Pull(ctx, imageRef)
	if pullErr != nil {
		if err != nil {
			return "", fmt.Errorf("manifest lookup failed (%v); pull failed: %w", err, pullErr)
		}
		return "", fmt.Errorf("pull failed: %w", pullErr)
	}

	return pulled, nil
}

// tagOf extracts the human-readable tag from an image reference
func tagOf(ref string) string {
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
		return ref[i+1:]
	}
	return "latest"
}
