// Package providers declares the shared contract every metadata
// provider client (MusicBrainz, Discogs, Last.fm, iTunes — C5)
// implements, so the API Orchestrator can fan out across them
// uniformly.
package providers

import (
	"context"

	"github.com/sundial-audio/yearkeeper/models"
)

// ArtistContext carries the facts the API Orchestrator resolved once
// per album (MusicBrainz activity period, region, script) down into
// each provider's scoring calls, so every candidate is judged against
// the same context regardless of which provider produced it.
type ArtistContext struct {
	Region        string
	Script        string
	HasActivity   bool
	ActivityBegin int
	ActivityEnd   int
	IsSoundtrack  bool
}

// Client is the narrow interface the API Orchestrator fans out across.
// Each provider's package-level constructor returns a concrete type
// satisfying this, plus whatever provider-specific extras (MusicBrainz's
// artist-activity lookups) the orchestrator needs directly.
type Client interface {
	// Name identifies the provider for scoring, logging, and
	// script_api_priorities lookups ("musicbrainz", "discogs", "lastfm",
	// "itunes").
	Name() string

	// GetScoredReleases returns every candidate release this provider can
	// find for (artistNorm, albumNorm), already scored via the injected
	// scorer. artistOrig/albumOrig are the pre-normalization strings, used
	// where a provider's own search API wants human-readable input.
	GetScoredReleases(ctx context.Context, artistNorm, albumNorm string, artistCtx ArtistContext, artistOrig, albumOrig string) ([]models.ScoredRelease, error)
}
