package cache

import "time"

// Policy names the TTL class a Generic Cache entry belongs to.
type Policy string

const (
	// PolicyAlbumYear entries never expire on their own; they're
	// superseded in place by AlbumYearCache.Set instead.
	PolicyAlbumYear Policy = "album_year"
	// PolicySuccessfulAPIMetadata covers a provider's confirmed match;
	// these are durable until the source track is edited.
	PolicySuccessfulAPIMetadata Policy = "successful_api_metadata"
	// PolicyFailedAPILookup covers a provider's "nothing found" answer,
	// retried periodically in case the provider's catalog grows.
	PolicyFailedAPILookup Policy = "failed_api_lookup"
	// PolicyGeneric covers everything else routed through the raw HTTP
	// response cache.
	PolicyGeneric Policy = "generic"
)

// DefaultTTL returns the policy's configured time-to-live. A zero
// duration means "does not expire".
func DefaultTTL(p Policy, failedLookupDays int, genericTTL time.Duration) time.Duration {
	switch p {
	case PolicyAlbumYear, PolicySuccessfulAPIMetadata:
		return 0
	case PolicyFailedAPILookup:
		return time.Duration(failedLookupDays) * 24 * time.Hour
	default:
		return genericTTL
	}
}
