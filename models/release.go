package models

// ScoredRelease is a candidate release returned by one provider client,
// annotated with a numeric score and the source that produced it.
type ScoredRelease struct {
	Title          string
	Year           string
	Score          float64
	Artist         string
	AlbumType      string // "album", "single", "ep", "compilation", "live", ...
	Country        string
	Status         string // "official", "promotion", "bootleg", ...
	Format         string
	Label          string
	CatalogNumber  string
	Barcode        string
	Disambiguation string
	Source         string // provider tag: "musicbrainz", "discogs", "lastfm", "itunes"
	IsReissue      bool
}

// CachedApiResult is one provider's verdict for an (artist, album,
// source) triple. A "negative" result has Year == "".
type CachedApiResult struct {
	Artist      string
	Album       string
	Year        string
	Source      string
	Timestamp   int64 // unix seconds
	TTLSeconds  int64 // 0 means "use policy default"
	Metadata    map[string]string
	APIResponse map[string]any
}

// AlbumCacheEntry is the Album-Year cache's persisted row.
type AlbumCacheEntry struct {
	Artist    string
	Album     string
	Year      string
	Timestamp float64 // epoch seconds with microsecond precision
}

// PendingReason enumerates why an album was deferred to the pending
// verification queue.
type PendingReason string

const (
	ReasonNoYearFound              PendingReason = "no_year_found"
	ReasonPrerelease               PendingReason = "prerelease"
	ReasonSuspiciousYearChange     PendingReason = "suspicious_year_change"
	ReasonAbsurdYearNoExisting     PendingReason = "absurd_year_no_existing"
	ReasonSpecialCompilation       PendingReason = "special_album_compilation"
	ReasonSpecialSpecial           PendingReason = "special_album_special"
	ReasonSpecialReissue           PendingReason = "special_album_reissue"
	ReasonSuspiciousAlbumName      PendingReason = "suspicious_album_name"
	ReasonVeryLowConfidenceNoExist PendingReason = "very_low_confidence_no_existing"
	ReasonImplausibleMatchingYear  PendingReason = "implausible_matching_year"
	ReasonImplausibleProposedYear  PendingReason = "implausible_proposed_year"
)

// PendingAlbumEntry is one row of the durable recheck queue.
type PendingAlbumEntry struct {
	Timestamp    int64
	Artist       string
	Album        string
	Reason       PendingReason
	Metadata     string // JSON-encoded
	AttemptCount int
}

// YearDecision is the tagged (year, is_definitive) result the API
// Orchestrator and Year Decision Engine hand back: a small struct
// rather than a bare (string, bool) pair, so callers can't mix up
// which bool belongs to which year.
type YearDecision struct {
	Year        string
	IsDefinitive bool
}
